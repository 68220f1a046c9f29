package facerecognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Operation benennt eine Inferenz-Operation des Gesichtsanalyse-Dienstes
type Operation string

const (
	// OperationAnalyze schätzt Attribute wie Alter, Geschlecht, Emotion und Herkunft
	OperationAnalyze Operation = "analyze"

	// OperationVerify prüft, ob zwei Bilder dieselbe Person zeigen
	OperationVerify Operation = "verify"

	// OperationRepresent extrahiert Gesichtseinbettungen
	OperationRepresent Operation = "represent"
)

// Unterstützte Attribute für die Analyse
const (
	ActionAge     = "age"
	ActionGender  = "gender"
	ActionEmotion = "emotion"
	ActionRace    = "race"
)

// DefaultModelName ist das Standardmodell für Einbettungen
const DefaultModelName = "VGG-Face"

// DefaultActions liefert die Standardattribute in fester Reihenfolge
func DefaultActions() []string {
	return []string{ActionAge, ActionGender, ActionEmotion, ActionRace}
}

// IsValidAction prüft, ob ein Attributname unterstützt wird
func IsValidAction(action string) bool {
	switch action {
	case ActionAge, ActionGender, ActionEmotion, ActionRace:
		return true
	}
	return false
}

// Options enthält optionale Parameter, die an den Dienst durchgereicht werden
type Options struct {
	DetectorBackend string
	DistanceMetric  string
	Align           *bool
}

// AnalyzeRequest enthält Parameter für die Attributanalyse
type AnalyzeRequest struct {
	// Img ist eine aufgelöste Bildreferenz (URL oder lokaler Pfad)
	Img     string
	Actions []string
	Options
}

// VerifyRequest enthält Parameter für den Gesichtsvergleich
type VerifyRequest struct {
	Img1      string
	Img2      string
	ModelName string
	Options
}

// RepresentRequest enthält Parameter für die Extraktion von Einbettungen
type RepresentRequest struct {
	Img       string
	ModelName string
	Options
}

// Result ist das unveränderte JSON-Ergebnis des Dienstes
type Result = json.RawMessage

// Engine definiert die Schnittstelle zum Gesichtsanalyse-Dienst.
// Alle Operationen laufen mit deaktivierter Erkennungspflicht, damit Bilder
// ohne erkennbares Gesicht den Aufruf nicht abbrechen.
type Engine interface {
	// Name gibt den Namen des Dienstes zurück
	Name() string

	// Ping prüft, ob der Dienst erreichbar ist
	Ping(ctx context.Context) error

	Analyze(ctx context.Context, req AnalyzeRequest) (Result, error)
	Verify(ctx context.Context, req VerifyRequest) (Result, error)
	Represent(ctx context.Context, req RepresentRequest) (Result, error)
}

// ErrImageUnavailable kennzeichnet eine lokale Bildreferenz, die nicht gelesen werden kann
var ErrImageUnavailable = errors.New("image not available")

// EngineError ist eine Fehlerantwort des Dienstes mit HTTP-Status
type EngineError struct {
	Status  int
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine returned status %d: %s", e.Status, e.Message)
}

// IsClientError gibt an, ob der Dienst die Anfrage selbst abgelehnt hat
// (z.B. kein Gesicht gefunden)
func IsClientError(err error) bool {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Status >= 400 && engineErr.Status < 500
	}
	return false
}
