package main

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"teleloop/work/config"
	"teleloop/work/engine"
	"teleloop/work/logger"
	"teleloop/work/types"
)

var (
	// reloadChan signals the main loop to re-read configuration from disk
	// and apply it in place without dropping the listener.
	reloadChan = make(chan bool, 1)
)

// setupAdminRoutes wires the operational endpoints: config inspection and
// update, runtime stats, snapshot invalidation, and the reload trigger.
func setupAdminRoutes(router *mux.Router, eng *engine.Engine) {
	admin := router.PathPrefix("/admin").Subrouter()

	admin.HandleFunc("/config", corsMiddleware(handleGetConfig(eng))).Methods("GET", "OPTIONS")
	admin.HandleFunc("/config", corsMiddleware(handleSetConfig())).Methods("POST", "OPTIONS")
	admin.HandleFunc("/stats", corsMiddleware(handleGetStats(eng))).Methods("GET", "OPTIONS")
	admin.HandleFunc("/reload", corsMiddleware(handleReload)).Methods("POST", "OPTIONS")
	admin.HandleFunc("/snapshots/{key}", corsMiddleware(handleInvalidateSnapshot(eng))).Methods("DELETE", "OPTIONS")
}

// corsMiddleware allows the admin surface to be driven from a browser UI
// served on another origin.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// handleGetConfig returns the active configuration with credentials blanked.
func handleGetConfig(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redacted := *eng.Config
		redacted.Server.ServerToken = ""
		redacted.Server.AccountToken = ""

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(redacted)
	}
}

// handleSetConfig writes a replacement config file to disk and triggers a
// reload. The body must parse as the on-disk config shape before anything is
// written; a malformed config never clobbers a working one.
func handleSetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cf config.ConfigFile
		if err := json.NewDecoder(r.Body).Decode(&cf); err != nil {
			http.Error(w, "invalid config: "+err.Error(), http.StatusBadRequest)
			return
		}

		data, err := json.MarshalIndent(cf, "", "  ")
		if err != nil {
			http.Error(w, "failed to serialize config", http.StatusInternalServerError)
			return
		}
		if err := os.WriteFile(config.ConfigPath(), data, 0644); err != nil {
			http.Error(w, "failed to write config: "+err.Error(), http.StatusInternalServerError)
			return
		}

		select {
		case reloadChan <- true:
		default: // a reload is already pending
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

// handleGetStats reports a runtime snapshot: lineup size, total loop time,
// and the channel registry contents in summary form.
func handleGetStats(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineup := eng.Lineup()

		var totalItems int
		var totalLoop float64
		for _, ch := range lineup {
			totalItems += len(ch.Items)
			totalLoop += ch.TotalDuration()
		}

		stats := map[string]any{
			"version":          Version,
			"channels":         len(lineup),
			"totalItems":       totalItems,
			"totalLoopSeconds": totalLoop,
			"generatedAt":      time.Now(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

// handleReload queues a configuration reload.
func handleReload(w http.ResponseWriter, r *http.Request) {
	logger.Info("{admin - handleReload} Reload requested via admin API")
	select {
	case reloadChan <- true:
	default:
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleInvalidateSnapshot drops one catalog snapshot so the next query
// fetches fresh data. The key is "<libraryKey>:<kind>".
func handleInvalidateSnapshot(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["key"]

		var libKey string
		kind := types.KindMovie
		if i := len(key) - len(":show"); i > 0 && key[i:] == ":show" {
			libKey, kind = key[:i], types.KindShow
		} else if i := len(key) - len(":movie"); i > 0 && key[i:] == ":movie" {
			libKey = key[:i]
		} else {
			http.Error(w, "key must be <libraryKey>:<movie|show>", http.StatusBadRequest)
			return
		}

		if err := eng.Orchestrator.Invalidate(types.LibraryRef{Key: libKey, Type: kind}, kind); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
