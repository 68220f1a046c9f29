package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"deepface-gateway/config"
	"deepface-gateway/internal/api"
	"deepface-gateway/internal/api/handlers"
	"deepface-gateway/internal/api/middleware"
	"deepface-gateway/internal/cleanup"
	"deepface-gateway/internal/db"
	"deepface-gateway/internal/imageref"
	"deepface-gateway/internal/inference"
	"deepface-gateway/internal/integrations/homeassistant"
	"deepface-gateway/internal/integrations/provider"
	"deepface-gateway/internal/journal"
	"deepface-gateway/internal/logger"
	"deepface-gateway/internal/mqtt"
	"deepface-gateway/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFlags(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	timezone.Initialize(cfg.Server.Timezone)

	// Der Dienst wird erst bei der ersten Inferenz-Anfrage erstellt
	engine := provider.NewLazyEngine(provider.NewEngineFactory(cfg.Engine))
	resolver := imageref.NewResolver(cfg.Images.TempDir, cfg.Images.MaxBytes)

	var pool *inference.WorkerPool
	if cfg.Inference.MaxConcurrent > 0 {
		pool = inference.NewWorkerPool(cfg.Inference.MaxConcurrent)
		defer pool.Shutdown()
	}

	var (
		observers    []inference.Observer
		journalStats handlers.JournalStats
		purger       cleanup.Purger
	)

	if cfg.Journal.Enabled {
		database, err := db.Initialize(cfg.Journal)
		if err != nil {
			return fmt.Errorf("failed to initialize journal: %w", err)
		}
		defer db.Close(database)

		recorder := journal.NewRecorder(database)
		observers = append(observers, recorder)
		journalStats = recorder
		purger = recorder
	} else {
		log.Info("Inference journal is disabled")
	}

	if cfg.MQTT.Enabled {
		mqttClient := mqtt.NewClient(cfg.MQTT)
		if cfg.MQTT.HomeAssistant {
			discovery := homeassistant.NewDiscoveryManager(mqttClient, cfg.MQTT.DiscoveryPrefix, version)
			mqttClient.OnConnect(func() {
				if err := discovery.Register(); err != nil {
					log.Warnf("Home Assistant discovery incomplete: %v", err)
				}
			})
		}
		if err := mqttClient.Start(); err != nil {
			log.Warnf("Failed to connect MQTT client: %v. Events are dropped until connected.", err)
		}
		defer mqttClient.Stop()
		observers = append(observers, mqttClient)
	}

	sweeper := cleanup.NewService(cfg.Images.TempDir, cfg.Images.MaxAge, cfg.Images.SweepInterval, purger, cfg.Journal.RetentionDays)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	translator, err := middleware.NewTranslator(cfg.Server.Language)
	if err != nil {
		return fmt.Errorf("failed to load translations: %w", err)
	}

	router := api.NewRouter(cfg.Server, api.Dependencies{
		Version:    version,
		Inference:  inference.NewService(resolver, engine, pool, observers...),
		Engine:     engine,
		Pool:       pool,
		Journal:    journalStats,
		Translator: translator,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-cmd.Context().Done():
	}

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
