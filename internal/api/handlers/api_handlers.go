package handlers

import (
	"fmt"
	"net/http"

	"deepface-gateway/internal/api/middleware"
	"deepface-gateway/internal/inference"
	"deepface-gateway/internal/integrations/facerecognition"

	"github.com/gin-gonic/gin"
)

// APIHandler behandelt die Inferenz-Endpunkte
type APIHandler struct {
	inference *inference.Service
}

// NewAPIHandler erstellt einen neuen API-Handler
func NewAPIHandler(svc *inference.Service) *APIHandler {
	return &APIHandler{inference: svc}
}

// RegisterRoutes registriert die Inferenz-Routen
func (h *APIHandler) RegisterRoutes(router gin.IRoutes) {
	router.POST("/analyze", h.Analyze)
	router.POST("/verify", h.Verify)
	router.POST("/represent", h.Represent)
}

type analyzeRequest struct {
	Img             string   `json:"img"`
	Actions         []string `json:"actions"`
	DetectorBackend string   `json:"detector_backend"`
	Align           *bool    `json:"align"`
}

type verifyRequest struct {
	Img1            string `json:"img1"`
	Img2            string `json:"img2"`
	ModelName       string `json:"model_name"`
	DetectorBackend string `json:"detector_backend"`
	DistanceMetric  string `json:"distance_metric"`
	Align           *bool  `json:"align"`
}

type representRequest struct {
	Img             string `json:"img"`
	ModelName       string `json:"model_name"`
	DetectorBackend string `json:"detector_backend"`
	Align           *bool  `json:"align"`
}

// Analyze bestimmt Alter, Geschlecht, Emotion und Herkunft
func (h *APIHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.inference.Analyze(c.Request.Context(), middleware.GetRequestID(c), inference.AnalyzeInput{
		Img:             req.Img,
		Actions:         req.Actions,
		DetectorBackend: req.DetectorBackend,
		Align:           req.Align,
	})
	respond(c, result, err)
}

// Verify prüft, ob zwei Bilder dieselbe Person zeigen
func (h *APIHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.inference.Verify(c.Request.Context(), middleware.GetRequestID(c), inference.VerifyInput{
		Img1:            req.Img1,
		Img2:            req.Img2,
		ModelName:       req.ModelName,
		DetectorBackend: req.DetectorBackend,
		DistanceMetric:  req.DistanceMetric,
		Align:           req.Align,
	})
	respond(c, result, err)
}

// Represent liefert die Gesichtseinbettungen eines Bildes
func (h *APIHandler) Represent(c *gin.Context) {
	var req representRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.inference.Represent(c.Request.Context(), middleware.GetRequestID(c), inference.RepresentInput{
		Img:             req.Img,
		ModelName:       req.ModelName,
		DetectorBackend: req.DetectorBackend,
		Align:           req.Align,
	})
	respond(c, result, err)
}

func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid JSON body: %v", err)})
		return false
	}
	return true
}

// respond gibt das Ergebnis des Dienstes unverändert weiter
func respond(c *gin.Context, result facerecognition.Result, err error) {
	if err != nil {
		c.JSON(inference.StatusCode(err), gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", result)
}
