// Package httpapi serves the alert snapshot and push endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/sparkalerts/nwws-ingest/internal/config"
	"github.com/sparkalerts/nwws-ingest/internal/store"
)

const keepAliveInterval = 30 * time.Second

// Server exposes the alert store over HTTP: a snapshot endpoint and an
// SSE stream fed by the dispatch bus.
type Server struct {
	cfg   *config.Config
	store *store.Store
	bus   *store.Bus
	gate  *Gate
}

// NewServer wires the HTTP surface to the store and bus.
func NewServer(cfg *config.Config, st *store.Store, bus *store.Bus) *Server {
	return &Server{cfg: cfg, store: st, bus: bus, gate: NewGate(cfg)}
}

// Router builds the route tree. /ping is open; everything else sits
// behind the auth gate.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(recoverPanics)
	r.Use(preflightStatus)
	r.Use(cors.Handler(cors.Options{
		// The whitelist holds domain substrings, not full origins.
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			for _, domain := range s.cfg.DomainWhitelist {
				if domain != "" && strings.Contains(origin, domain) {
					return true
				}
			}
			return false
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-Time", "X-Signature"},
		AllowCredentials: false,
	}))

	r.Get("/ping", s.handlePing)

	r.Group(func(pr chi.Router) {
		pr.Use(s.gate.Middleware)
		pr.Get("/", s.handleRoot)
		pr.Get("/alerts", s.handleAlerts)
		pr.Get("/alerts/subscribe", s.handleSubscribe)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	return r
}

// ListenAndServe runs the HTTP listener until it fails or ctx is
// cancelled, draining in-flight requests on shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.ExpressPort),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown error")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("HTTP API listening")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// recoverPanics turns a handler panic into the JSON error envelope.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Handler panic")
				writeInternalError(w, fmt.Errorf("%v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// preflightStatus maps the CORS library's preflight success status onto
// the 204 this API's contract promises.
func preflightStatus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w = &preflightWriter{ResponseWriter: w}
		}
		next.ServeHTTP(w, r)
	})
}

type preflightWriter struct{ http.ResponseWriter }

func (w *preflightWriter) WriteHeader(status int) {
	if status == http.StatusOK {
		status = http.StatusNoContent
	}
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "AUTHORIZED"})
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "OK",
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// handleSubscribe streams store changes as Server-Sent Events with a
// periodic keep-alive comment.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternalError(w, fmt.Errorf("response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, cancel := s.bus.Subscribe()
	defer cancel()

	fmt.Fprint(w, "data: {\"status\":\"connected\"}\n\n")
	flusher.Flush()
	log.Debug().Int("subscribers", s.bus.SubscriberCount()).Msg("SSE subscriber connected")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Msg("SSE subscriber disconnected")
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev store.Event) error {
	var payload []byte
	var err error
	if ev.Alert != nil {
		payload, err = json.Marshal(ev.Alert)
	} else {
		payload, err = json.Marshal(map[string]any{"bulk": true})
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": "ERROR", "message": message})
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"status":     "ERROR",
		"message":    "Internal server error",
		"extra_info": err.Error(),
	})
}
