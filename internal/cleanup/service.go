package cleanup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"deepface-gateway/internal/imageref"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Purger entfernt Journal-Einträge, die älter als cutoff sind
type Purger interface {
	Purge(cutoff time.Time) (int64, error)
}

// Service entfernt verwaiste temporäre Bilder und alte Journal-Einträge
type Service struct {
	tempDir       string
	maxAge        time.Duration
	interval      time.Duration
	journal       Purger
	retentionDays int
	cron          *cron.Cron
	initial       sync.WaitGroup
}

// Result fasst einen Bereinigungslauf zusammen
type Result struct {
	FilesDeleted   int
	FilesFailed    int
	JournalDeleted int64
}

// NewService erstellt einen neuen Bereinigungsdienst. journal darf nil sein.
func NewService(tempDir string, maxAge, interval time.Duration, journal Purger, retentionDays int) *Service {
	log.Infof("Initializing CleanupService: TempDir='%s', MaxAge=%s, Interval=%s, RetentionDays=%d", tempDir, maxAge, interval, retentionDays)
	return &Service{
		tempDir:       tempDir,
		maxAge:        maxAge,
		interval:      interval,
		journal:       journal,
		retentionDays: retentionDays,
	}
}

// Start plant den Bereinigungslauf im konfigurierten Intervall
func (s *Service) Start() error {
	if s.interval <= 0 {
		log.Info("Automatic cleanup disabled (sweep_interval <= 0).")
		return nil
	}

	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.RunCleanupCycle(time.Now()) }); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	s.cron.Start()
	log.Infof("Background cleanup scheduled (%s)", spec)

	// Reste eines vorherigen Laufs sofort entfernen
	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.RunCleanupCycle(time.Now())
	}()
	return nil
}

// Stop beendet den Zeitplan und wartet auf einen laufenden Durchgang
func (s *Service) Stop() {
	if s == nil || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.initial.Wait()
	log.Info("Stopped background cleanup routine.")
}

// RunCleanupCycle führt einen Bereinigungslauf relativ zu now aus
func (s *Service) RunCleanupCycle(now time.Time) Result {
	var result Result
	result.FilesDeleted, result.FilesFailed = s.sweepTempFiles(now.Add(-s.maxAge))

	if s.journal != nil && s.retentionDays > 0 {
		cutoff := now.AddDate(0, 0, -s.retentionDays)
		deleted, err := s.journal.Purge(cutoff)
		if err != nil {
			log.Errorf("Cleanup: Error purging journal: %v", err)
		} else {
			result.JournalDeleted = deleted
		}
	}

	if result.FilesDeleted > 0 || result.FilesFailed > 0 || result.JournalDeleted > 0 {
		log.Infof("Cleanup cycle finished. Files deleted: %d, failed: %d, journal entries deleted: %d",
			result.FilesDeleted, result.FilesFailed, result.JournalDeleted)
	} else {
		log.Debug("Cleanup cycle finished, nothing to delete.")
	}
	return result
}

// sweepTempFiles löscht nur Dateien mit dem Präfix des Resolvers
func (s *Service) sweepTempFiles(cutoff time.Time) (deleted, failed int) {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Errorf("Cleanup: Error reading temp dir '%s': %v", s.tempDir, err)
		}
		return 0, 0
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), imageref.TempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warnf("Cleanup: Failed to delete orphaned file '%s': %v", path, err)
			failed++
			continue
		}
		log.Debugf("Cleanup: Deleted orphaned file '%s'", path)
		deleted++
	}
	return deleted, failed
}
