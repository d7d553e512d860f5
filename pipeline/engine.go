package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"anomaly-stream-processor/delivery"
	"anomaly-stream-processor/detector"
	"anomaly-stream-processor/models"
)

var (
	samplesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_samples_dropped_total",
		Help: "Total number of samples dropped because the worker queue was full",
	})

	anomaliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_anomalies_total",
		Help: "Total number of anomalies detected, by severity",
	}, []string{"severity"})
)

// AnomalyCallback is invoked for every detected anomaly, before delivery.
type AnomalyCallback func(event *models.AnomalyEvent)

type Options struct {
	// Workers defaults to 2*NumCPU clamped to [4,16].
	Workers int
	// QueueSize is the total buffered sample capacity, split across
	// workers. Default 10000.
	QueueSize int
}

// Engine fans samples out to a fixed pool of workers. Each worker owns an
// independent detector with its own windows, and samples are dispatched by
// source hash, so every window has a single writer.
type Engine struct {
	buffer    *delivery.Buffer
	logger    *zap.Logger
	onAnomaly AnomalyCallback
	workers   []*worker
	wg        sync.WaitGroup

	// mu serializes Process sends against Close's channel close: Close
	// takes the write lock before closing the worker channels, so no
	// Process call can be mid-send on a closed channel.
	mu     sync.RWMutex
	closed bool
}

type worker struct {
	detector *detector.Detector
	samples  chan models.Sample
}

func NewEngine(cfg detector.Config, opts Options, buffer *delivery.Buffer, logger *zap.Logger, onAnomaly AnomalyCallback) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU() * 2
		if numWorkers < 4 {
			numWorkers = 4
		}
		if numWorkers > 16 {
			numWorkers = 16
		}
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 10000
	}
	perWorker := queueSize/numWorkers + 1

	e := &Engine{
		buffer:    buffer,
		logger:    logger,
		onAnomaly: onAnomaly,
		workers:   make([]*worker, numWorkers),
	}

	for i := 0; i < numWorkers; i++ {
		det := detector.New(fmt.Sprintf("statistical-detector-%d", i), logger)
		if err := det.Initialize(cfg); err != nil {
			return nil, err
		}
		e.workers[i] = &worker{
			detector: det,
			samples:  make(chan models.Sample, perWorker),
		}
	}

	logger.Info("starting analytics workers", zap.Int("workers", numWorkers))
	for _, w := range e.workers {
		e.wg.Add(1)
		go e.run(w)
	}
	return e, nil
}

// Process hands a sample to its source's worker. Returns false when the
// engine is closed or the worker queue is full; the sample is dropped and
// counted rather than blocking the producer.
func (e *Engine) Process(sample models.Sample) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false
	}

	w := e.workerFor(sample.Source)
	select {
	case w.samples <- sample:
		return true
	default:
		samplesDroppedTotal.Inc()
		e.logger.Warn("worker queue full, dropping sample",
			zap.String("source", sample.Source))
		return false
	}
}

func (e *Engine) workerFor(source string) *worker {
	h := fnv.New32a()
	h.Write([]byte(source))
	return e.workers[h.Sum32()%uint32(len(e.workers))]
}

func (e *Engine) run(w *worker) {
	defer e.wg.Done()

	for sample := range w.samples {
		event, err := w.detector.Detect(sample)
		if err != nil {
			e.logger.Error("detection failed",
				zap.String("detector_id", w.detector.ID()),
				zap.Error(err))
			continue
		}
		if event == nil {
			continue
		}

		anomaliesTotal.WithLabelValues(string(event.Severity)).Inc()
		e.logger.Warn("anomaly detected",
			zap.String("detector_id", event.DetectorID),
			zap.Strings("affected_metrics", event.AffectedMetrics),
			zap.String("severity", string(event.Severity)),
			zap.Float64("confidence", event.Confidence))

		if e.onAnomaly != nil {
			e.onAnomaly(event)
		}
		if err := e.buffer.Enqueue(context.Background(), *event); err != nil {
			e.logger.Error("failed to enqueue anomaly",
				zap.String("event_id", event.EventID),
				zap.Error(err))
		}
	}
}

// HealthCheck reports true only if every worker's detector passes its own
// health check.
func (e *Engine) HealthCheck() bool {
	for _, w := range e.workers {
		if !w.detector.HealthCheck() {
			return false
		}
	}
	return true
}

// Baseline returns the most-populated baseline snapshot for a metric across
// workers. Each worker only sees its hash slice of sources, so the fullest
// window is the most representative one.
func (e *Engine) Baseline(metric string) (models.BaselineStats, bool) {
	var best models.BaselineStats
	found := false
	for _, w := range e.workers {
		if b, ok := w.detector.BaselineFor(metric); ok && (!found || b.Count > best.Count) {
			best = b
			found = true
		}
	}
	return best, found
}

// Stats returns a per-worker detector stats snapshot.
func (e *Engine) Stats() []models.DetectorStats {
	out := make([]models.DetectorStats, 0, len(e.workers))
	for _, w := range e.workers {
		out = append(out, w.detector.Stats())
	}
	return out
}

// Close stops accepting samples, drains the worker queues, and cleans up
// the detectors. Safe to call once.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, w := range e.workers {
		close(w.samples)
	}
	e.mu.Unlock()

	e.wg.Wait()
	for _, w := range e.workers {
		w.detector.Cleanup()
	}
	e.logger.Info("analytics engine stopped")
}
