package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"anomaly-stream-processor/models"
	"anomaly-stream-processor/pipeline"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	samplesIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "samples_ingested_total",
			Help: "Total number of samples accepted for detection",
		},
	)
)

type SampleHandler struct {
	engine *pipeline.Engine
	logger *zap.Logger
}

func NewSampleHandler(engine *pipeline.Engine, logger *zap.Logger) *SampleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SampleHandler{engine: engine, logger: logger}
}

func (h *SampleHandler) HandleSample(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	defer func() {
		requestDurationSeconds.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	}()

	var sample models.Sample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "400").Inc()
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	if err := sample.Validate(); err != nil {
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "400").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.engine.Process(sample) {
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "503").Inc()
		http.Error(w, "sample queue is full", http.StatusServiceUnavailable)
		return
	}
	samplesIngestedTotal.Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "accepted",
		"source": sample.Source,
	})

	httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "202").Inc()
}

func (h *SampleHandler) HandleBaseline(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		http.Error(w, "metric parameter is required", http.StatusBadRequest)
		return
	}

	baseline, ok := h.engine.Baseline(metric)
	if !ok {
		http.Error(w, "no baseline for metric yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(baseline)
}

func (h *SampleHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.engine.Stats())
}

func (h *SampleHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !h.engine.HealthCheck() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
