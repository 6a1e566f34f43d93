// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package helpbot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// AdminRouter builds the admin API:
//
//	POST /api/reload-tags  re-read the tags file
//	GET  /api/health       liveness and current tag count
//	GET  /metrics          Prometheus metrics
func (b *HelpBot) AdminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Post("/api/reload-tags", b.HandleReloadTags)
	r.Get("/api/health", b.HandleHealth)
	r.Handle("/metrics", b.Metrics.Handler())
	return r
}

// StartAdminAPI serves AdminRouter on the configured address until ctx is
// cancelled. It does nothing when admin_api_addr is empty.
func (b *HelpBot) StartAdminAPI(ctx context.Context) {
	addr := b.Config.AdminAPIAddr
	if addr == "" {
		return
	}
	log := b.log.With().Str("component", "admin_api").Logger()
	server := &http.Server{
		Addr:         addr,
		Handler:      b.AdminRouter(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("Starting admin API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Admin API error")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Admin API shutdown error")
		}
	}()
}

// HandleReloadTags is an HTTP handler for POST /api/reload-tags. On failure
// the previous table stays active and the error is returned with status 500.
func (b *HelpBot) HandleReloadTags(w http.ResponseWriter, r *http.Request) {
	b.log.Info().
		Str("component", "admin_api").
		Str("remote_addr", r.RemoteAddr).
		Msg("Tag reload requested")

	n, err := b.ReloadTags("admin_api")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
			"tags":  n,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tags": n})
}

// HandleHealth is an HTTP handler for GET /api/health.
func (b *HelpBot) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tags":   b.Store.Snapshot().Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
