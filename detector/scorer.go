package detector

import (
	"math"

	"github.com/montanaflynn/stats"

	"anomaly-stream-processor/models"
)

// anomalyScorer owns the per-metric rolling windows and turns one sample
// into at most one AnomalyEvent. It is not safe for concurrent use; the
// owning Detector serializes access.
type anomalyScorer struct {
	cfg       Config
	windows   map[string]*RollingWindow
	baselines map[string]models.BaselineStats
}

func newScorer(cfg Config) *anomalyScorer {
	windows := make(map[string]*RollingWindow, len(cfg.Metrics))
	for _, metric := range cfg.Metrics {
		windows[metric] = NewRollingWindow(cfg.WindowSize)
	}
	return &anomalyScorer{
		cfg:       cfg,
		windows:   windows,
		baselines: make(map[string]models.BaselineStats, len(cfg.Metrics)),
	}
}

// score pushes the sample's values into the windows, evaluates every
// enabled method per configured metric, and builds one event aggregating
// all fired metrics. Returns nil when nothing fired.
func (s *anomalyScorer) score(detectorID string, sample models.Sample) *models.AnomalyEvent {
	var evidence []methodEvidence
	zScores := make(map[string]float64)
	rawValues := make(map[string]float64)
	predicted := make(map[string]float64)

	for _, metric := range s.cfg.Metrics {
		value, ok := sample.Values[metric]
		if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
			// Missing or non-finite value skips this metric only.
			continue
		}
		rawValues[metric] = value

		window := s.windows[metric]
		prior := window.Snapshot()
		window.Push(value)

		if window.Len() < s.cfg.MinSamples {
			continue
		}

		fired := s.evaluateMetric(metric, prior, value)
		for _, ev := range fired {
			if ev.score > zScores[metric] {
				zScores[metric] = ev.score
			}
		}
		if len(fired) > 0 {
			predicted[metric] = fired[0].predicted
			evidence = append(evidence, fired...)
		}
	}

	s.updateBaselines()

	if len(evidence) == 0 {
		return nil
	}

	// cfg.Metrics order keeps the affected set deterministic across runs.
	affected := make([]string, 0, len(zScores))
	for _, metric := range s.cfg.Metrics {
		if _, ok := zScores[metric]; ok {
			affected = append(affected, metric)
		}
	}

	methods := make([]string, 0, len(evidence))
	for _, ev := range evidence {
		methods = append(methods, ev.method)
	}

	return &models.AnomalyEvent{
		EventID:         models.NewEventID(),
		DetectorID:      detectorID,
		Timestamp:       sample.Timestamp,
		Severity:        severityForScore(maxScore(evidence)),
		Confidence:      s.confidence(evidence),
		AnomalyType:     "statistical_outlier",
		AffectedMetrics: affected,
		ZScores:         zScores,
		RawValues:       rawValues,
		PredictedValues: predicted,
		Metadata: map[string]interface{}{
			"detection_methods": methods,
			"window_size":       s.cfg.WindowSize,
			"min_samples":       s.cfg.MinSamples,
		},
	}
}

// evaluateMetric runs every enabled method against the prior window and
// returns evidence for each one that fired. A metric may fire multiple
// methods independently.
func (s *anomalyScorer) evaluateMetric(metric string, prior []float64, value float64) []methodEvidence {
	var fired []methodEvidence

	if score, mean, ok := evalZScore(prior, value, s.cfg.StdDevThreshold); ok {
		fired = append(fired, methodEvidence{
			metric:    metric,
			method:    methodZScore,
			score:     score,
			threshold: s.cfg.StdDevThreshold,
			predicted: mean,
			actual:    value,
		})
	}

	if s.cfg.UseIQR {
		if score, median, ok := evalIQR(prior, value, s.cfg.IQRMultiplier); ok {
			fired = append(fired, methodEvidence{
				metric:    metric,
				method:    methodIQR,
				score:     score,
				threshold: s.cfg.IQRMultiplier,
				predicted: median,
				actual:    value,
			})
		}
	}

	if s.cfg.UseMAD {
		if score, median, ok := evalMAD(prior, value, s.cfg.MADThreshold); ok {
			fired = append(fired, methodEvidence{
				metric:    metric,
				method:    methodMAD,
				score:     score,
				threshold: s.cfg.MADThreshold,
				predicted: median,
				actual:    value,
			})
		}
	}

	return fired
}

func severityForScore(score float64) models.Severity {
	switch {
	case score > 5:
		return models.SeverityCritical
	case score > 4:
		return models.SeverityHigh
	case score > 3.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func maxScore(evidence []methodEvidence) float64 {
	max := 0.0
	for _, ev := range evidence {
		if ev.score > max {
			max = ev.score
		}
	}
	return max
}

// confidence combines the strongest score, agreement between methods or
// metrics, and how full the first fired metric's window is. Confidence
// degrades while the window is still filling, even past min_samples.
func (s *anomalyScorer) confidence(evidence []methodEvidence) float64 {
	conf := math.Min(maxScore(evidence)/5.0, 1.0)
	if len(evidence) > 1 {
		conf = math.Min(conf*1.2, 1.0)
	}
	window := s.windows[evidence[0].metric]
	return conf * math.Min(float64(window.Len())/float64(s.cfg.WindowSize), 1.0)
}

// updateBaselines recomputes per-metric baseline statistics after each
// sample regardless of whether an anomaly fired.
func (s *anomalyScorer) updateBaselines() {
	for metric, window := range s.windows {
		if window.Len() < s.cfg.MinSamples {
			continue
		}
		values := window.Snapshot()

		mean, _ := stats.Mean(values)
		std, _ := stats.StandardDeviationPopulation(values)
		min, _ := stats.Min(values)
		max, _ := stats.Max(values)
		median, _ := stats.Median(values)

		s.baselines[metric] = models.BaselineStats{
			Mean:   mean,
			Std:    std,
			Min:    min,
			Max:    max,
			Median: median,
			Count:  len(values),
		}
	}
}

// clone copies the scorer with independent windows, used as the scratch
// path for health checks so live baselines stay untouched.
func (s *anomalyScorer) clone() *anomalyScorer {
	c := newScorer(s.cfg)
	for metric, window := range s.windows {
		c.windows[metric] = window.Clone()
	}
	return c
}
