// Package inference verbindet Bildauflösung, Dienstaufruf und die
// Nachbearbeitung (Journal, Ereignisse) zu den drei Inferenz-Operationen.
package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"deepface-gateway/internal/imageref"
	"deepface-gateway/internal/integrations/facerecognition"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrInvalidRequest kennzeichnet fehlerhafte Anfragen des Clients
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPoolClosed wird nach dem Herunterfahren des Worker-Pools zurückgegeben
	ErrPoolClosed = errors.New("inference worker pool is shut down")
)

// EngineSource liefert den (ggf. erst jetzt initialisierten) Dienst
type EngineSource interface {
	Get(ctx context.Context) (facerecognition.Engine, error)
}

// Event beschreibt eine abgeschlossene Inferenz-Anfrage
type Event struct {
	RequestID  string
	Operation  facerecognition.Operation
	Status     int
	Duration   time.Duration
	Error      string
	ImageKinds []imageref.Kind
	Timestamp  time.Time
}

// Observer wird nach jeder Anfrage benachrichtigt. Fehler eines Observers
// beeinflussen die Anfrage nicht.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// AnalyzeInput enthält die Felder einer /analyze-Anfrage
type AnalyzeInput struct {
	Img             string
	Actions         []string
	DetectorBackend string
	Align           *bool
}

// VerifyInput enthält die Felder einer /verify-Anfrage
type VerifyInput struct {
	Img1            string
	Img2            string
	ModelName       string
	DetectorBackend string
	DistanceMetric  string
	Align           *bool
}

// RepresentInput enthält die Felder einer /represent-Anfrage
type RepresentInput struct {
	Img             string
	ModelName       string
	DetectorBackend string
	Align           *bool
}

// Service führt die Inferenz-Operationen aus
type Service struct {
	resolver  *imageref.Resolver
	engines   EngineSource
	pool      *WorkerPool
	observers []Observer
}

// NewService erstellt einen neuen Inferenz-Service. pool darf nil sein,
// dann ruft jede Anfrage den Dienst direkt auf.
func NewService(resolver *imageref.Resolver, engines EngineSource, pool *WorkerPool, observers ...Observer) *Service {
	return &Service{
		resolver:  resolver,
		engines:   engines,
		pool:      pool,
		observers: observers,
	}
}

// Analyze führt die Attributanalyse aus
func (s *Service) Analyze(ctx context.Context, requestID string, in AnalyzeInput) (facerecognition.Result, error) {
	actions := in.Actions
	if len(actions) == 0 {
		actions = facerecognition.DefaultActions()
	}
	for _, a := range actions {
		if !facerecognition.IsValidAction(a) {
			err := fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, a)
			s.notify(ctx, requestID, facerecognition.OperationAnalyze, time.Now(), nil, err)
			return nil, err
		}
	}

	return s.execute(ctx, requestID, facerecognition.OperationAnalyze, []namedRef{{"img", in.Img}},
		func(ctx context.Context, engine facerecognition.Engine, refs []string) (facerecognition.Result, error) {
			return engine.Analyze(ctx, facerecognition.AnalyzeRequest{
				Img:     refs[0],
				Actions: actions,
				Options: facerecognition.Options{
					DetectorBackend: in.DetectorBackend,
					Align:           in.Align,
				},
			})
		})
}

// Verify vergleicht die Gesichter zweier Bilder
func (s *Service) Verify(ctx context.Context, requestID string, in VerifyInput) (facerecognition.Result, error) {
	return s.execute(ctx, requestID, facerecognition.OperationVerify, []namedRef{{"img1", in.Img1}, {"img2", in.Img2}},
		func(ctx context.Context, engine facerecognition.Engine, refs []string) (facerecognition.Result, error) {
			return engine.Verify(ctx, facerecognition.VerifyRequest{
				Img1:      refs[0],
				Img2:      refs[1],
				ModelName: in.ModelName,
				Options: facerecognition.Options{
					DetectorBackend: in.DetectorBackend,
					DistanceMetric:  in.DistanceMetric,
					Align:           in.Align,
				},
			})
		})
}

// Represent extrahiert Gesichtseinbettungen
func (s *Service) Represent(ctx context.Context, requestID string, in RepresentInput) (facerecognition.Result, error) {
	modelName := in.ModelName
	if modelName == "" {
		modelName = facerecognition.DefaultModelName
	}
	return s.execute(ctx, requestID, facerecognition.OperationRepresent, []namedRef{{"img", in.Img}},
		func(ctx context.Context, engine facerecognition.Engine, refs []string) (facerecognition.Result, error) {
			return engine.Represent(ctx, facerecognition.RepresentRequest{
				Img:       refs[0],
				ModelName: modelName,
				Options: facerecognition.Options{
					DetectorBackend: in.DetectorBackend,
					Align:           in.Align,
				},
			})
		})
}

type namedRef struct {
	field string
	ref   string
}

type call func(ctx context.Context, engine facerecognition.Engine, refs []string) (facerecognition.Result, error)

// execute löst alle Referenzen in einem Scope auf, ruft den Dienst auf und
// gibt die temporären Dateien in jedem Fall wieder frei
func (s *Service) execute(ctx context.Context, requestID string, op facerecognition.Operation, refs []namedRef, fn call) (result facerecognition.Result, err error) {
	start := time.Now()
	kinds := make([]imageref.Kind, 0, len(refs))
	defer func() {
		s.notify(ctx, requestID, op, start, kinds, err)
	}()

	scope := s.resolver.NewScope(requestID)
	defer scope.Release()

	resolved := make([]string, 0, len(refs))
	for _, r := range refs {
		img, resolveErr := scope.Resolve(r.ref)
		if resolveErr != nil {
			if errors.Is(resolveErr, imageref.ErrMissingImage) {
				return nil, fmt.Errorf("%w: field '%s' is required", ErrInvalidRequest, r.field)
			}
			return nil, fmt.Errorf("%s: %w", r.field, resolveErr)
		}
		kinds = append(kinds, img.Kind)
		resolved = append(resolved, img.Ref)
	}

	engine, err := s.engines.Get(ctx)
	if err != nil {
		return nil, err
	}

	run := func(ctx context.Context) (facerecognition.Result, error) {
		return fn(ctx, engine, resolved)
	}
	if s.pool != nil {
		return s.pool.Submit(ctx, string(op), run)
	}
	return run(ctx)
}

func (s *Service) notify(ctx context.Context, requestID string, op facerecognition.Operation, start time.Time, kinds []imageref.Kind, err error) {
	event := Event{
		RequestID:  requestID,
		Operation:  op,
		Status:     StatusCode(err),
		Duration:   time.Since(start),
		ImageKinds: kinds,
		Timestamp:  time.Now(),
	}
	if err != nil {
		event.Error = err.Error()
	}

	fields := log.Fields{
		"component":  "inference",
		"request_id": requestID,
		"operation":  op,
		"status":     event.Status,
		"duration":   event.Duration,
	}
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("Inference request failed")
	} else {
		log.WithFields(fields).Info("Inference request completed")
	}

	for _, o := range s.observers {
		o.Observe(ctx, event)
	}
}

// StatusCode bildet einen Fehler auf den HTTP-Status der Antwort ab:
// Fehler des Clients ergeben 400, alle übrigen 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, imageref.ErrMissingImage),
		errors.Is(err, imageref.ErrInvalidImage),
		errors.Is(err, facerecognition.ErrImageUnavailable),
		facerecognition.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
