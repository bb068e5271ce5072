package main

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"teleloop/work/cache"
	"teleloop/work/catalog"
	"teleloop/work/client"
	"teleloop/work/config"
	"teleloop/work/database"
	"teleloop/work/engine"
	"teleloop/work/handlers"
	"teleloop/work/logger"
	"teleloop/work/middleware"
	"teleloop/work/planner"
	"teleloop/work/recovery"
	"teleloop/work/store"
)

var (
	Version = "v0.1.0" // default version
)

// our main app worker
func main() {

	// load our config
	cfg := config.LoadConfig()

	// set up logging per the configured verbosity
	if cfg.Debug {
		logger.SetLogLevel("debug")
	}

	// worker pool for background snapshot refreshes
	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	defer workerPool.Release()

	// outbound media server client
	mediaClient := client.New(cfg)

	// snapshot layers: memory plus the persisted gzip store
	memoryCache := cache.NewCache(cfg.SnapshotTTL)
	diskStore, err := store.New(filepath.Join(cfg.DataDir, "snapshots"))
	if err != nil {
		log.Fatalf("Failed to open snapshot store: %v", err)
	}

	// catalog orchestrator over both layers
	orchestrator := catalog.New(cfg, mediaClient, memoryCache, diskStore, workerPool)

	// stream plan resolver and the adaptive recovery controller behind it
	plannerInstance := planner.New(cfg, mediaClient, planner.NewProber(mediaClient.Client))
	recoveryManager := recovery.NewManager(cfg, plannerInstance, mediaClient)

	// channel persistence
	db, err := database.Open(filepath.Join(cfg.DataDir, "channels.db"))
	if err != nil {
		log.Fatalf("Failed to open channel database: %v", err)
	}
	defer db.Close()

	// the application core
	eng, err := engine.New(cfg, orchestrator, plannerInstance, recoveryManager, mediaClient, db)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}

	// Setup HTTP routes
	router := mux.NewRouter()

	// lineup and schedule queries
	router.HandleFunc("/lineup", middleware.Gzip(handlers.HandleLineup(eng))).Methods("GET")
	router.HandleFunc("/channel/{id}/now", middleware.Gzip(handlers.HandleNow(eng))).Methods("GET")
	router.HandleFunc("/channel/{id}/next", middleware.Gzip(handlers.HandleNext(eng))).Methods("GET")

	// channel lifecycle
	router.HandleFunc("/channel", handlers.HandleBuildChannel(eng)).Methods("POST")
	router.HandleFunc("/channel/{id}", handlers.HandleDeleteChannel(eng)).Methods("DELETE")

	// stream plans and telemetry
	router.HandleFunc("/plan/{item}", handlers.HandlePlanItem(eng)).Methods("GET")
	router.HandleFunc("/channel/{id}/plan", handlers.HandlePlanChannel(eng)).Methods("GET")
	router.HandleFunc("/telemetry", handlers.HandleTelemetry(eng)).Methods("POST")

	// Metrics handler
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// add the admin routes
	setupAdminRoutes(router, eng)

	addr := fmt.Sprintf(":%d", cfg.ListenPort)

	// show info
	logger.Info("Starting Teleloop %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Base URL: %s", cfg.BaseURL)
	logger.Info("  - Data Dir: %s", cfg.DataDir)
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Endpoints: %d", len(cfg.Server.Endpoints))
	logger.Info("  - Snapshot TTL: %s", cfg.SnapshotTTL)
	logger.Info("  - Playlist Probe: %v", cfg.Playback.ProbeMasterPlaylist)
	logger.Info("  - Debug Enabled: %v", cfg.Debug)
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// gracefully apply configuration changes when requested
	go func() {
		for {
			<-reloadChan

			logger.Info("Configuration reload requested...")

			// clear the cached config and pull the file fresh
			config.ClearConfigCache()
			newConfig := config.LoadConfig()

			// every component reads through the shared pointer, so copying
			// the new values into place propagates them everywhere
			*cfg = *newConfig

			if cfg.Debug {
				logger.SetLogLevel("debug")
			} else {
				logger.SetLogLevel("info")
			}

			logger.Info("Configuration reload completed - %d endpoints configured", len(cfg.Server.Endpoints))
		}
	}()

	// fire us up
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}

}
