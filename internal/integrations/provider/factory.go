package provider

import (
	"context"
	"fmt"

	"deepface-gateway/config"
	"deepface-gateway/internal/integrations/deepface"
	"deepface-gateway/internal/integrations/facerecognition"

	log "github.com/sirupsen/logrus"
)

// NewEngineFactory liefert eine Factory, die den Gesichtsanalyse-Dienst
// anhand der Konfiguration erstellt. Mit engine.warmup wird der Dienst
// vor der ersten Verwendung angepingt.
func NewEngineFactory(cfg config.EngineConfig) Factory {
	return func(ctx context.Context) (facerecognition.Engine, error) {
		log.Infof("Initializing face analysis engine at %s", cfg.URL)
		engine := deepface.NewService(cfg)

		if cfg.Warmup {
			if err := engine.Ping(ctx); err != nil {
				return nil, fmt.Errorf("engine warmup failed: %w", err)
			}
			log.Info("Face analysis engine is reachable")
		}
		return engine, nil
	}
}
