package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"anomaly-stream-processor/models"
)

var (
	flushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_flushes_total",
		Help: "Total number of successful batch flushes",
	})

	flushFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_flush_failures_total",
		Help: "Total number of failed batch flushes",
	})

	eventsDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_events_delivered_total",
		Help: "Total number of anomaly events delivered downstream",
	})

	eventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_events_dropped_total",
		Help: "Total number of anomaly events dropped after the pending queue overflowed",
	})
)

// Sink is the downstream capability the buffer delivers to. One explicit
// contract: send a batch, in order, or report an error.
type Sink interface {
	Send(ctx context.Context, batch []models.AnomalyEvent) error
}

// Options configures the delivery buffer.
type Options struct {
	// BatchMode buffers events and flushes on a size threshold or timer.
	// When disabled, Enqueue sends each event immediately.
	BatchMode     bool
	MaxBatchSize  int           // default 500
	FlushInterval time.Duration // default 5s

	// MaxPending bounds the pending queue across failed-retry cycles. When
	// a re-buffered batch pushes the queue past this cap, the oldest events
	// are dropped and counted. Default 50 * MaxBatchSize.
	MaxPending int
}

func (o *Options) applyDefaults() {
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 500
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.MaxPending <= 0 {
		o.MaxPending = 50 * o.MaxBatchSize
	}
}

// Buffer decouples anomaly production rate from downstream send latency.
// Events leave the pending queue only on successful send or bounded-policy
// drop; a failed flush re-buffers the whole batch ahead of newer events.
type Buffer struct {
	sink   Sink
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	pending   []models.AnomalyEvent
	lastFlush time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewBuffer(sink Sink, opts Options, logger *zap.Logger) *Buffer {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Buffer{
		sink:      sink,
		opts:      opts,
		logger:    logger,
		lastFlush: time.Now(),
	}

	if opts.BatchMode {
		ctx, cancel := context.WithCancel(context.Background())
		b.cancel = cancel
		b.done = make(chan struct{})
		go b.flushLoop(ctx)
	}
	return b
}

// Enqueue appends an event to the pending queue, flushing inline when the
// queue reaches the batch size. With batch mode off the event is sent
// immediately and send failures are returned to the caller.
func (b *Buffer) Enqueue(ctx context.Context, event models.AnomalyEvent) error {
	if !b.opts.BatchMode {
		if err := b.sink.Send(ctx, []models.AnomalyEvent{event}); err != nil {
			return &DeliveryError{Events: 1, Err: err}
		}
		eventsDeliveredTotal.Inc()
		return nil
	}

	b.mu.Lock()
	b.pending = append(b.pending, event)
	full := len(b.pending) >= b.opts.MaxBatchSize
	b.mu.Unlock()

	if full {
		b.Flush(ctx)
	}
	return nil
}

// Flush swaps the pending queue for an empty one and sends the batch in
// FIFO order. On failure the batch is re-buffered ahead of events enqueued
// in the meantime; the error is logged, not propagated, so the next flush
// attempt can recover.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = nil
	b.lastFlush = time.Now()
	b.mu.Unlock()

	if err := b.sink.Send(ctx, batch); err != nil {
		flushFailuresTotal.Inc()
		b.logger.Error("flush failed, re-buffering batch",
			zap.Int("events", len(batch)),
			zap.Error(err))
		b.requeue(batch)
		return
	}

	flushesTotal.Inc()
	eventsDeliveredTotal.Add(float64(len(batch)))
	b.logger.Debug("flushed anomaly events", zap.Int("events", len(batch)))
}

// requeue puts a failed batch back in front of the live queue, dropping the
// oldest events if the result exceeds MaxPending. Keeping the freshest
// anomalies is the useful choice during a sustained downstream outage.
func (b *Buffer) requeue(batch []models.AnomalyEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := append(batch, b.pending...)
	if over := len(merged) - b.opts.MaxPending; over > 0 {
		merged = merged[over:]
		eventsDroppedTotal.Add(float64(over))
		b.logger.Warn("pending queue over capacity, dropping oldest events",
			zap.Int("dropped", over),
			zap.Int("max_pending", b.opts.MaxPending))
	}
	b.pending = merged
}

func (b *Buffer) flushLoop(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			due := len(b.pending) > 0 && time.Since(b.lastFlush) >= b.opts.FlushInterval
			b.mu.Unlock()
			if due {
				b.Flush(ctx)
			}
		}
	}
}

// Pending reports the number of buffered events awaiting flush.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close cancels the periodic flush and performs one final forced flush. It
// returns a DeliveryError if events remain undelivered after that attempt.
func (b *Buffer) Close(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}

	b.Flush(ctx)

	if n := b.Pending(); n > 0 {
		return &DeliveryError{Events: n, Err: errUndelivered}
	}
	b.logger.Info("delivery buffer closed")
	return nil
}
