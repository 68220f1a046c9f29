package handlers

import (
	"net/http"

	"deepface-gateway/internal/api/middleware"
	"deepface-gateway/internal/core/models"
	"deepface-gateway/internal/inference"
	"deepface-gateway/internal/util/timezone"
	"deepface-gateway/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ServerName wird in der Info-Antwort ausgegeben
const ServerName = "deepface-gateway"

// EngineStatus meldet, ob der Inferenz-Dienst bereits initialisiert ist
type EngineStatus interface {
	Initialized() bool
}

// JournalStats liefert zusammengefasste Journal-Daten
type JournalStats interface {
	Stats() ([]models.OperationStats, error)
}

// SystemHandler behandelt Info- und Health-Endpunkte
type SystemHandler struct {
	version string
	engine  EngineStatus
	pool    *inference.WorkerPool
	journal JournalStats
}

// NewSystemHandler erstellt einen neuen System-Handler. pool und journal dürfen nil sein.
func NewSystemHandler(version string, engine EngineStatus, pool *inference.WorkerPool, journal JournalStats) *SystemHandler {
	return &SystemHandler{
		version: version,
		engine:  engine,
		pool:    pool,
		journal: journal,
	}
}

// RegisterRoutes registriert die System-Routen
func (h *SystemHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/", h.Info)
	router.GET("/health", h.Health)
}

// endpoints beschreibt die erwarteten Anfragen je Route
var endpoints = gin.H{
	"GET /":       gin.H{"description": "Server information"},
	"GET /health": gin.H{"description": "Health check", "query": gin.H{"verbose": "true|false"}},
	"POST /analyze": gin.H{
		"description": "Facial attribute analysis",
		"body":        gin.H{"img": "path | url | data:image/...;base64,...", "actions": []string{"age", "gender", "emotion", "race"}},
	},
	"POST /verify": gin.H{
		"description": "Face verification",
		"body":        gin.H{"img1": "path | url | data URI", "img2": "path | url | data URI", "model_name": "optional"},
	},
	"POST /represent": gin.H{
		"description": "Face embedding extraction",
		"body":        gin.H{"img": "path | url | data URI", "model_name": "VGG-Face"},
	},
}

// Info liefert Serverinformationen und die Endpunkt-Übersicht
func (h *SystemHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":      ServerName,
		"version":   h.version,
		"message":   middleware.T(c, "InfoMessage"),
		"endpoints": endpoints,
	})
}

// Health meldet, dass der Server läuft. Der Inferenz-Dienst wird dabei nicht angesprochen.
func (h *SystemHandler) Health(c *gin.Context) {
	initialized := h.engine != nil && h.engine.Initialized()
	resp := gin.H{
		"status":             "healthy",
		"message":            middleware.T(c, "HealthMessage"),
		"engine_initialized": initialized,
	}

	if c.Query("verbose") == "true" {
		engineMsg := "HealthEnginePending"
		if initialized {
			engineMsg = "HealthEngineReady"
		}
		resp["engine"] = middleware.T(c, engineMsg)
		resp["system"] = utils.GetSystemStats(h.pool)
		resp["timestamp"] = timezone.ISO8601(timezone.Now())

		if h.journal != nil {
			stats, err := h.journal.Stats()
			if err != nil {
				log.Warnf("Failed to read journal stats: %v", err)
			} else {
				resp["journal"] = stats
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}
