package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"deepface-gateway/config"
	"deepface-gateway/internal/imageref"
	"deepface-gateway/internal/integrations/facerecognition"

	log "github.com/sirupsen/logrus"
)

// Log-Felder für die DeepFace-Komponente
var logFields = log.Fields{
	"component": "deepface",
}

// maxResponseBytes begrenzt die Größe einer Antwort des Dienstes
const maxResponseBytes = 32 << 20

// APIClient implementiert die Kommunikation mit einem DeepFace-kompatiblen Dienst
type APIClient struct {
	config     config.EngineConfig
	httpClient *http.Client
}

// analyzeBody ist der JSON-Body für POST /analyze
type analyzeBody struct {
	Img              string   `json:"img"`
	Actions          []string `json:"actions"`
	EnforceDetection bool     `json:"enforce_detection"`
	DetectorBackend  string   `json:"detector_backend,omitempty"`
	Align            *bool    `json:"align,omitempty"`
}

// verifyBody ist der JSON-Body für POST /verify
type verifyBody struct {
	Img1             string `json:"img1"`
	Img2             string `json:"img2"`
	EnforceDetection bool   `json:"enforce_detection"`
	ModelName        string `json:"model_name,omitempty"`
	DetectorBackend  string `json:"detector_backend,omitempty"`
	DistanceMetric   string `json:"distance_metric,omitempty"`
	Align            *bool  `json:"align,omitempty"`
}

// representBody ist der JSON-Body für POST /represent
type representBody struct {
	Img              string `json:"img"`
	ModelName        string `json:"model_name"`
	EnforceDetection bool   `json:"enforce_detection"`
	DetectorBackend  string `json:"detector_backend,omitempty"`
	Align            *bool  `json:"align,omitempty"`
}

// apiErrorResponse deckt beide Fehlerformate des Dienstes ab
type apiErrorResponse struct {
	Error     string `json:"error"`
	Exception string `json:"exception"`
}

// NewAPIClient erstellt einen neuen DeepFace-APIClient
func NewAPIClient(cfg config.EngineConfig) *APIClient {
	return &APIClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Ping prüft, ob der Dienst erreichbar ist
func (c *APIClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach engine: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &facerecognition.EngineError{Status: resp.StatusCode, Message: "engine is not ready"}
	}
	return nil
}

// Analyze sendet eine Attributanalyse an den Dienst
func (c *APIClient) Analyze(ctx context.Context, req facerecognition.AnalyzeRequest) (json.RawMessage, error) {
	img, err := encodeImage(req.Img)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "/analyze", analyzeBody{
		Img:              img,
		Actions:          req.Actions,
		EnforceDetection: false,
		DetectorBackend:  req.DetectorBackend,
		Align:            req.Align,
	})
}

// Verify sendet einen Gesichtsvergleich an den Dienst
func (c *APIClient) Verify(ctx context.Context, req facerecognition.VerifyRequest) (json.RawMessage, error) {
	img1, err := encodeImage(req.Img1)
	if err != nil {
		return nil, err
	}
	img2, err := encodeImage(req.Img2)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "/verify", verifyBody{
		Img1:             img1,
		Img2:             img2,
		EnforceDetection: false,
		ModelName:        req.ModelName,
		DetectorBackend:  req.DetectorBackend,
		DistanceMetric:   req.DistanceMetric,
		Align:            req.Align,
	})
}

// Represent fordert Gesichtseinbettungen beim Dienst an
func (c *APIClient) Represent(ctx context.Context, req facerecognition.RepresentRequest) (json.RawMessage, error) {
	img, err := encodeImage(req.Img)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "/represent", representBody{
		Img:              img,
		ModelName:        req.ModelName,
		EnforceDetection: false,
		DetectorBackend:  req.DetectorBackend,
		Align:            req.Align,
	})
}

func (c *APIClient) post(ctx context.Context, path string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	log.WithFields(logFields).Debugf("Engine request %s took %s (status %d)", path, time.Since(start), resp.StatusCode)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &facerecognition.EngineError{
			Status:  resp.StatusCode,
			Message: errorMessage(respBody),
		}
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("engine returned invalid JSON for %s", path)
	}
	return json.RawMessage(respBody), nil
}

// errorMessage entnimmt die Fehlermeldung aus der Antwort des Dienstes
func errorMessage(body []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Error != "" {
			return apiErr.Error
		}
		if apiErr.Exception != "" {
			return apiErr.Exception
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	return msg
}

// encodeImage bereitet eine aufgelöste Referenz für die Übertragung vor.
// URLs löst der Dienst selbst auf, lokale Dateien werden als Daten-URI gesendet.
func encodeImage(ref string) (string, error) {
	if imageref.Classify(ref) == imageref.KindURL {
		return ref, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", facerecognition.ErrImageUnavailable, err)
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
