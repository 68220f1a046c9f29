package deepface

import (
	"context"
	"fmt"

	"deepface-gateway/config"
	"deepface-gateway/internal/integrations/facerecognition"
)

// ProviderName ist der Name dieses Dienstes
const ProviderName = "deepface"

// Service implementiert facerecognition.Engine für DeepFace
type Service struct {
	client *APIClient
	config config.EngineConfig
}

// NewService erstellt einen neuen DeepFace-Service
func NewService(cfg config.EngineConfig) *Service {
	return &Service{
		client: NewAPIClient(cfg),
		config: cfg,
	}
}

// Name gibt den Namen des Dienstes zurück
func (s *Service) Name() string {
	return ProviderName
}

// Ping prüft, ob der Dienst erreichbar ist
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Analyze führt die Attributanalyse aus
func (s *Service) Analyze(ctx context.Context, req facerecognition.AnalyzeRequest) (facerecognition.Result, error) {
	if len(req.Actions) == 0 {
		req.Actions = facerecognition.DefaultActions()
	}
	req.Options = s.withDefaults(req.Options)

	result, err := s.client.Analyze(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("analyze failed: %w", err)
	}
	return result, nil
}

// Verify vergleicht zwei Gesichter
func (s *Service) Verify(ctx context.Context, req facerecognition.VerifyRequest) (facerecognition.Result, error) {
	req.Options = s.withDefaults(req.Options)

	result, err := s.client.Verify(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("verify failed: %w", err)
	}
	return result, nil
}

// Represent extrahiert Gesichtseinbettungen
func (s *Service) Represent(ctx context.Context, req facerecognition.RepresentRequest) (facerecognition.Result, error) {
	if req.ModelName == "" {
		req.ModelName = facerecognition.DefaultModelName
	}
	req.Options = s.withDefaults(req.Options)

	result, err := s.client.Represent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("represent failed: %w", err)
	}
	return result, nil
}

// withDefaults ergänzt nicht gesetzte Optionen aus der Konfiguration
func (s *Service) withDefaults(opts facerecognition.Options) facerecognition.Options {
	if opts.DetectorBackend == "" {
		opts.DetectorBackend = s.config.DetectorBackend
	}
	if opts.DistanceMetric == "" {
		opts.DistanceMetric = s.config.DistanceMetric
	}
	if opts.Align == nil {
		align := s.config.Align
		opts.Align = &align
	}
	return opts
}
