package models

import "github.com/google/uuid"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyEvent is emitted when at least one metric in a sample is judged
// anomalous by at least one method. Immutable after construction; ownership
// passes to the delivery buffer on enqueue.
type AnomalyEvent struct {
	EventID         string                 `json:"event_id"`
	DetectorID      string                 `json:"detector_id"`
	Timestamp       float64                `json:"timestamp"`
	Severity        Severity               `json:"severity"`
	Confidence      float64                `json:"confidence"`
	AnomalyType     string                 `json:"anomaly_type"`
	AffectedMetrics []string               `json:"affected_metrics"`
	ZScores         map[string]float64     `json:"z_scores"`
	RawValues       map[string]float64     `json:"raw_values"`
	PredictedValues map[string]float64     `json:"predicted_values"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

func NewEventID() string {
	return uuid.NewString()
}

// BaselineStats is a derived snapshot of one metric's rolling window,
// recomputed after every sample and exposed read-only for introspection.
type BaselineStats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	Count  int     `json:"count"`
}

// DetectorStats tracks per-detector processing counters.
type DetectorStats struct {
	DetectorID    string  `json:"detector_id"`
	Processed     int64   `json:"processed"`
	Anomalies     int64   `json:"anomalies"`
	Errors        int64   `json:"errors"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	LastDetection float64 `json:"last_detection,omitempty"`
}

// ObserveLatency folds one measurement into the running average. Callers
// must have incremented Processed for the measured detection already.
func (s *DetectorStats) ObserveLatency(ms float64) {
	if s.Processed <= 1 {
		s.AvgLatencyMS = ms
		return
	}
	s.AvgLatencyMS = (s.AvgLatencyMS*float64(s.Processed-1) + ms) / float64(s.Processed)
}
