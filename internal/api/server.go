package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/usecases"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Addr           string
	UseCase        *usecases.RiverUseCase
	Logger         zerolog.Logger
	MetricsHandler http.Handler // defaults to promhttp.Handler()
}

// Server exposes the river list over HTTP
type Server struct {
	httpServer *http.Server
	useCase    *usecases.RiverUseCase
	logger     zerolog.Logger
}

// NewServer creates an HTTP server with the river page, JSON API, health, readiness and metrics routes.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		useCase: cfg.UseCase,
		logger:  cfg.Logger.With().Str("component", "http").Logger(),
	}

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Route("/api/rivers", func(r chi.Router) {
		r.Get("/", s.handleListRivers)
		r.Get("/{siteID}", s.handleGetRiver)
	})
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

var pageTemplate = template.Must(template.New("rivers").Funcs(template.FuncMap{
	"statusMessage": usecases.StatusMessage,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="300">
<title>River Flow</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td, th { padding: 4px 10px; border-bottom: 1px solid #ddd; text-align: left; }
.level-0 { background: #eeeeee; }
.level-1 { background: #f4f4f4; }
.level-2 { background: #fff6cc; }
.level-3 { background: #e3f6d5; }
.level-4 { background: #b9eba0; }
.level-5 { background: #ffd8a8; }
.level-6 { background: #ffb3b3; }
.rising-fast { font-weight: bold; color: #b00020; }
</style>
</head>
<body>
<h1>River Flow</h1>
{{if eq .Status.State "ready"}}
{{if .Status.Rivers}}
<table id="rivers">
<thead><tr><th>River</th><th>Flow (cfs)</th><th>Previous</th><th>Change</th><th>Condition</th><th>Class</th><th>Reading</th><th>Map</th></tr></thead>
<tbody>
{{range .Status.Rivers}}
<tr class="river level-{{.Level}}" data-site="{{.SiteID}}">
<td class="name">{{.Name}}</td>
<td class="flow">{{.CurrentFlow}}{{if .Rising}} &uarr;{{else if lt .CurrentFlow .PreviousFlow}} &darr;{{end}}</td>
<td class="previous">{{.PreviousFlow}}</td>
<td class="change{{if .RisingFast}} rising-fast{{end}}">{{with .PercentChanged}}{{.}}%{{else}}&ndash;{{end}}</td>
<td class="condition">{{.Condition}}</td>
<td class="class">{{.Class}}</td>
<td class="reading">{{if .DisplayDate}}{{.DisplayDate}} {{end}}{{.DisplayTime}}</td>
<td><a class="map" href="{{.MapLink}}">map</a></td>
</tr>
{{end}}
</tbody>
</table>
{{else}}
<p class="empty">No rivers are reporting right now.</p>
{{end}}
<p class="updated">Last update: {{.Status.UpdatedAt.Format "2006-01-02 15:04:05"}}</p>
{{else}}
<p class="status status-{{.Status.State}}">{{statusMessage .Status}}</p>
{{end}}
</body>
</html>
`))

type pageData struct {
	Status entities.Status
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	status, err := s.useCase.GetStatus(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load status")
		http.Error(w, "failed to load river data", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, pageData{Status: status}); err != nil {
		s.logger.Error().Err(err).Msg("failed to render page")
	}
}

func (s *Server) handleListRivers(w http.ResponseWriter, r *http.Request) {
	status, err := s.useCase.GetStatus(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load status")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load river data"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetRiver(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")

	status, err := s.useCase.GetStatus(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load status")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load river data"})
		return
	}

	for _, river := range status.Rivers {
		if river.SiteID == siteID {
			writeJSON(w, http.StatusOK, river)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "river not found", "siteId": siteID})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

var errNotReady = errors.New("river data not ready")

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, err := s.useCase.GetStatus(ctx)
	if err == nil && status.State != entities.StateReady {
		err = errNotReady
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"state":  string(status.State),
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// requestLogger logs each request with zerolog
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Debug().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
