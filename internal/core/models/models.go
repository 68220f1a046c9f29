package models

import (
	"time"

	"gorm.io/datatypes"
)

// InferenceRecord repräsentiert eine abgeschlossene Inferenz-Anfrage im Journal.
// Bilder und Ergebnisse werden nicht gespeichert.
type InferenceRecord struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	RequestID  string         `gorm:"index" json:"request_id"`
	Operation  string         `gorm:"index;not null" json:"operation"` // analyze, verify, represent
	Status     int            `gorm:"index" json:"status"`             // HTTP-Status der Antwort
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	ImageCount int            `json:"image_count"`
	ImageKinds datatypes.JSON `gorm:"type:json" json:"image_kinds"` // z.B. ["data_uri","url"]
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

// OperationStats fasst das Journal pro Operation zusammen
type OperationStats struct {
	Operation string `json:"operation"`
	Total     int64  `json:"total"`
	Failed    int64  `json:"failed"`
}
