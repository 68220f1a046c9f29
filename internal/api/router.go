// Package api baut den HTTP-Router des Gateways auf.
package api

import (
	"deepface-gateway/config"
	"deepface-gateway/internal/api/handlers"
	"deepface-gateway/internal/api/middleware"
	"deepface-gateway/internal/inference"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Dependencies bündelt alles, was die Handler benötigen
type Dependencies struct {
	Version    string
	Inference  *inference.Service
	Engine     handlers.EngineStatus
	Pool       *inference.WorkerPool
	Journal    handlers.JournalStats
	Translator *middleware.Translator
}

// NewRouter erstellt die gin-Engine mit Middleware und allen Routen
func NewRouter(cfg config.ServerConfig, deps Dependencies) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	router.Use(middleware.I18n(deps.Translator))

	handlers.NewSystemHandler(deps.Version, deps.Engine, deps.Pool, deps.Journal).RegisterRoutes(router)
	handlers.NewAPIHandler(deps.Inference).RegisterRoutes(router)

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, middleware.RequestIDHeader)
	c.ExposeHeaders = []string{middleware.RequestIDHeader}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
