package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of LLM requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)
	AIRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_retries_total",
			Help: "Rate-limited LLM calls that were retried",
		},
		[]string{"provider"},
	)
	AIParseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_response_parse_total",
			Help: "LLM responses by parse outcome (strict, salvaged, empty)",
		},
		[]string{"outcome"},
	)
	AISchemaViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_response_schema_violations_total",
			Help: "Parsed LLM responses that did not match the prompt contract",
		},
		[]string{"prompt"},
	)

	AnalysisOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_analysis_total",
			Help: "Answer analyses by outcome (ok, degraded, timeout, error)",
		},
		[]string{"outcome"},
	)
	AnswerScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "interview_answer_score",
			Help:    "Distribution of normalized answer scores ([0,10])",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)
	InterviewsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "interviews_started_total",
			Help: "Total number of interviews started",
		},
	)
	InterviewsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "interviews_completed_total",
			Help: "Total number of interviews whose results were shown",
		},
	)
	OverallScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "interview_overall_score",
			Help:    "Distribution of final interview scores",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)
	TranscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speech_transcriptions_total",
			Help: "Speech-to-text requests by provider and outcome (ok, empty, error)",
		},
		[]string{"provider", "outcome"},
	)
	RecordsArchivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_records_archived_total",
			Help: "interview-completed events handled by the archiver",
		},
		[]string{"outcome"},
	)
)

var initOnce sync.Once

// InitMetrics registers every collector with the default registry. Safe to call twice.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AIRetriesTotal,
			AIParseTotal,
			AISchemaViolationsTotal,
			AnalysisOutcomesTotal,
			AnswerScoreHistogram,
			InterviewsStartedTotal,
			InterviewsCompletedTotal,
			OverallScoreHistogram,
			TranscriptionsTotal,
			RecordsArchivedTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one provider call.
func ObserveAIRequest(provider, outcome string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveAnalysis records the outcome of one answer analysis and its score.
func ObserveAnalysis(outcome string, score float64) {
	AnalysisOutcomesTotal.WithLabelValues(outcome).Inc()
	if score >= 0 && score <= 10 {
		AnswerScoreHistogram.Observe(score)
	}
}

// ObserveCompletion records a finished interview.
func ObserveCompletion(overall float64) {
	InterviewsCompletedTotal.Inc()
	if overall >= 0 && overall <= 10 {
		OverallScoreHistogram.Observe(overall)
	}
}
