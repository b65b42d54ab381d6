// Package app wires the HTTP router and readiness probes.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/config"
)

// ParseOrigins splits a comma-separated origin list. Empty input allows every origin.
func ParseOrigins(s string) []string {
	out := make([]string, 0, 2)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.RequestID())
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", httpserver.RequestIDHeader},
		ExposedHeaders: []string{httpserver.RequestIDHeader, "Location"},
		MaxAge:         300,
	}))

	r.Route("/v1", func(v1 chi.Router) {
		// Mutating routes call the LLM or speech providers; limit them per client IP.
		v1.Group(func(wr chi.Router) {
			if cfg.RateLimitPerMin > 0 {
				wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
			}
			wr.Post("/interviews", srv.StartHandler())
			wr.Post("/interviews/{id}/spoken", srv.SpokenHandler())
			wr.Post("/interviews/{id}/answers", srv.AnswerHandler())
			wr.Post("/interviews/{id}/audio", srv.AudioHandler())
			wr.Post("/interviews/{id}/results", srv.ResultsHandler())
			wr.Post("/interviews/{id}/reset", srv.ResetHandler())
			wr.Get("/interviews/{id}/speech", srv.SpeechHandler())
		})
		v1.Get("/interviews/{id}", srv.GetHandler())
		v1.Get("/records", srv.RecordsHandler())
		v1.Get("/records/{id}", srv.RecordHandler())
		v1.Get("/voices", srv.VoicesHandler())
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}
