package detector

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"anomaly-stream-processor/models"
)

// Detector wires the rolling windows, outlier methods, and scorer behind a
// stateful unit: Uninitialized -> Initialized -> (detecting)* -> Cleaned up.
// Re-initialization after Cleanup resets all state.
//
// A mutex serializes all calls, so samples for one metric are processed
// strictly in arrival order. For parallel detection run one instance per
// worker with independent windows (see the pipeline package).
type Detector struct {
	id     string
	logger *zap.Logger

	mu          sync.Mutex
	initialized bool
	cfg         Config
	scorer      *anomalyScorer
	stats       models.DetectorStats
}

func New(id string, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{id: id, logger: logger}
}

func (d *Detector) ID() string {
	return d.id
}

// Initialize validates the configuration and builds fresh per-metric
// windows. Must be called before Detect or DetectBatch.
func (d *Detector) Initialize(cfg Config) error {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.cfg = cfg
	d.scorer = newScorer(cfg)
	d.stats = models.DetectorStats{DetectorID: d.id}
	d.initialized = true

	d.logger.Info("detector initialized",
		zap.String("detector_id", d.id),
		zap.Int("window_size", cfg.WindowSize),
		zap.Strings("metrics", cfg.Metrics))
	return nil
}

// Detect scores one sample. Returns (nil, nil) when no metric is judged
// anomalous. Detection failures are counted, logged, and returned.
func (d *Detector) Detect(sample models.Sample) (*models.AnomalyEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detectLocked(sample)
}

func (d *Detector) detectLocked(sample models.Sample) (*models.AnomalyEvent, error) {
	if !d.initialized {
		return nil, ErrNotInitialized
	}

	if err := sample.Validate(); err != nil {
		d.stats.Errors++
		d.logger.Error("detection failed",
			zap.String("detector_id", d.id),
			zap.Error(err))
		return nil, &DetectionError{DetectorID: d.id, Err: err}
	}

	// Processed counts only scored samples, so the latency average below
	// divides by the number of observations.
	start := time.Now()
	d.stats.Processed++

	event := d.scorer.score(d.id, sample)

	d.stats.ObserveLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	if event != nil {
		d.stats.Anomalies++
		d.stats.LastDetection = sample.Timestamp
	}
	return event, nil
}

// DetectBatch processes samples sequentially in chunks of the preferred
// batch size, collecting only the samples that produced an event and
// preserving input order.
func (d *Detector) DetectBatch(samples []models.Sample) ([]models.AnomalyEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, ErrNotInitialized
	}

	chunk := d.cfg.PreferredBatchSize
	var events []models.AnomalyEvent
	for start := 0; start < len(samples); start += chunk {
		end := start + chunk
		if end > len(samples) {
			end = len(samples)
		}
		for _, sample := range samples[start:end] {
			event, err := d.detectLocked(sample)
			if err != nil {
				return events, err
			}
			if event != nil {
				events = append(events, *event)
			}
		}
	}
	return events, nil
}

// HealthCheck runs a synthetic sample through a cloned scorer and reports
// false on any failure. Live windows and baselines are never mutated.
func (d *Detector) HealthCheck() (healthy bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("health check failed",
				zap.String("detector_id", d.id),
				zap.Any("panic", r))
			healthy = false
		}
	}()

	values := make(map[string]float64, len(d.cfg.Metrics))
	for _, metric := range d.cfg.Metrics {
		values[metric] = 0.5
	}
	scratch := d.scorer.clone()
	scratch.score(d.id, models.Sample{
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Values:    values,
	})
	return true
}

// Cleanup releases detection state. The detector rejects Detect calls until
// it is initialized again.
func (d *Detector) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scorer = nil
	d.initialized = false
	d.logger.Info("detector cleaned up", zap.String("detector_id", d.id))
}

func (d *Detector) Stats() models.DetectorStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// BaselineFor returns the latest baseline snapshot for a metric, if the
// metric has accumulated at least min_samples observations.
func (d *Detector) BaselineFor(metric string) (models.BaselineStats, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return models.BaselineStats{}, false
	}
	baseline, ok := d.scorer.baselines[metric]
	return baseline, ok
}

// WindowLen reports the current fill of a metric's window, mostly for
// diagnostics.
func (d *Detector) WindowLen(metric string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return 0, ErrNotInitialized
	}
	window, ok := d.scorer.windows[metric]
	if !ok {
		return 0, fmt.Errorf("metric %q is not configured", metric)
	}
	return window.Len(), nil
}
