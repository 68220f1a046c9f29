// Package journal protokolliert abgeschlossene Inferenz-Anfragen in SQLite.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"deepface-gateway/internal/core/models"
	"deepface-gateway/internal/inference"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recorder schreibt Journal-Einträge über GORM
type Recorder struct {
	db *gorm.DB
}

// NewRecorder erstellt einen neuen Recorder
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Observe speichert ein Ereignis. Fehler werden nur protokolliert.
func (r *Recorder) Observe(ctx context.Context, event inference.Event) {
	kinds, err := json.Marshal(event.ImageKinds)
	if err != nil {
		kinds = []byte("[]")
	}

	record := models.InferenceRecord{
		RequestID:  event.RequestID,
		Operation:  string(event.Operation),
		Status:     event.Status,
		DurationMs: event.Duration.Milliseconds(),
		Error:      event.Error,
		ImageCount: len(event.ImageKinds),
		ImageKinds: datatypes.JSON(kinds),
		CreatedAt:  event.Timestamp,
	}

	// Die Anfrage ist eventuell schon beendet, das Journal soll trotzdem schreiben
	if err := r.db.WithContext(context.WithoutCancel(ctx)).Create(&record).Error; err != nil {
		log.WithField("component", "journal").WithError(err).Warn("Failed to write journal entry")
	}
}

// Recent liefert die neuesten Einträge, neuester zuerst
func (r *Recorder) Recent(limit int) ([]models.InferenceRecord, error) {
	var records []models.InferenceRecord
	if err := r.db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch journal entries: %w", err)
	}
	return records, nil
}

// Stats zählt Anfragen und Fehlschläge je Operation
func (r *Recorder) Stats() ([]models.OperationStats, error) {
	var stats []models.OperationStats
	err := r.db.Model(&models.InferenceRecord{}).
		Select("operation, COUNT(*) AS total, SUM(CASE WHEN status >= 400 THEN 1 ELSE 0 END) AS failed").
		Group("operation").
		Order("operation").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate journal: %w", err)
	}
	return stats, nil
}

// Purge löscht Einträge, die älter als cutoff sind
func (r *Recorder) Purge(cutoff time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", cutoff).Delete(&models.InferenceRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge journal: %w", result.Error)
	}
	return result.RowsAffected, nil
}
