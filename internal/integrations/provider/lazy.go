package provider

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"deepface-gateway/internal/integrations/facerecognition"

	log "github.com/sirupsen/logrus"
)

// Factory erstellt den Gesichtsanalyse-Dienst
type Factory func(ctx context.Context) (facerecognition.Engine, error)

type engineHolder struct {
	engine facerecognition.Engine
}

// LazyEngine erstellt den Dienst erst bei der ersten Anfrage und hält ihn
// danach für die Lebensdauer des Prozesses. Nebenläufige erste Anfragen
// teilen sich eine Initialisierung; ein Fehlschlag wird nicht gespeichert.
type LazyEngine struct {
	factory Factory
	mu      sync.Mutex
	current atomic.Pointer[engineHolder]
}

// NewLazyEngine erstellt einen neuen, noch nicht initialisierten Handle
func NewLazyEngine(factory Factory) *LazyEngine {
	return &LazyEngine{factory: factory}
}

// Get liefert den Dienst und initialisiert ihn bei Bedarf
func (l *LazyEngine) Get(ctx context.Context) (facerecognition.Engine, error) {
	if h := l.current.Load(); h != nil {
		return h.engine, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Ein anderer Aufrufer war schneller
	if h := l.current.Load(); h != nil {
		return h.engine, nil
	}

	engine, err := l.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	if engine == nil {
		return nil, fmt.Errorf("failed to initialize engine: factory returned nil")
	}

	l.current.Store(&engineHolder{engine: engine})
	log.WithField("component", "provider").Infof("Face analysis engine '%s' initialized", engine.Name())
	return engine, nil
}

// Initialized gibt an, ob der Dienst bereits erstellt wurde
func (l *LazyEngine) Initialized() bool {
	return l.current.Load() != nil
}
