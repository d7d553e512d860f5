package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anomaly-stream-processor/delivery"
	"anomaly-stream-processor/detector"
	"anomaly-stream-processor/models"
)

type captureSink struct {
	mu     sync.Mutex
	events []models.AnomalyEvent
}

func (s *captureSink) Send(ctx context.Context, batch []models.AnomalyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func testEngine(t *testing.T, onAnomaly AnomalyCallback) (*Engine, *captureSink, *delivery.Buffer) {
	t.Helper()

	sink := &captureSink{}
	buffer := delivery.NewBuffer(sink, delivery.Options{
		BatchMode:     true,
		MaxBatchSize:  100,
		FlushInterval: time.Hour,
	}, nil)

	engine, err := NewEngine(detector.Config{
		WindowSize:      20,
		StdDevThreshold: 2.0,
		MinSamples:      5,
		Metrics:         []string{"cpu"},
	}, Options{Workers: 2, QueueSize: 100}, buffer, nil, onAnomaly)
	require.NoError(t, err)
	return engine, sink, buffer
}

func TestEngineDetectsAndDeliversAnomalies(t *testing.T) {
	var callbacks int
	var mu sync.Mutex

	engine, sink, buffer := testEngine(t, func(event *models.AnomalyEvent) {
		mu.Lock()
		callbacks++
		mu.Unlock()
	})

	warmup := []float64{28, 32, 29, 31, 30, 30.5, 29.5, 31.5, 28.5, 30}
	for i, v := range warmup {
		ok := engine.Process(models.Sample{
			Timestamp: float64(i + 1),
			Source:    "host-1",
			Values:    map[string]float64{"cpu": v},
		})
		require.True(t, ok)
	}
	require.True(t, engine.Process(models.Sample{
		Timestamp: 11,
		Source:    "host-1",
		Values:    map[string]float64{"cpu": 95},
	}))

	engine.Close()
	require.NoError(t, buffer.Close(context.Background()))

	assert.Equal(t, 1, sink.count())
	mu.Lock()
	assert.Equal(t, 1, callbacks)
	mu.Unlock()
}

func TestEngineSingleWriterPerSource(t *testing.T) {
	engine, _, buffer := testEngine(t, nil)
	defer buffer.Close(context.Background())

	// Same source always lands on the same worker, so its window fills
	// to the full sample count instead of being split.
	for i := 0; i < 10; i++ {
		require.True(t, engine.Process(models.Sample{
			Timestamp: float64(i + 1),
			Source:    "host-1",
			Values:    map[string]float64{"cpu": 30},
		}))
	}
	engine.Close()

	baseline, ok := engine.Baseline("cpu")
	require.True(t, ok)
	assert.Equal(t, 10, baseline.Count)
	assert.InDelta(t, 30.0, baseline.Mean, 1e-9)
}

func TestEngineHealthCheck(t *testing.T) {
	engine, _, buffer := testEngine(t, nil)
	defer buffer.Close(context.Background())

	assert.True(t, engine.HealthCheck())
	engine.Close()
	assert.False(t, engine.HealthCheck(), "cleaned-up detectors are unhealthy")
}

func TestEngineCloseConcurrentWithProcess(t *testing.T) {
	engine, _, buffer := testEngine(t, nil)
	defer buffer.Close(context.Background())

	// Producers keep submitting while Close runs; sends must never land
	// on a closed channel.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 1; ; j++ {
				select {
				case <-stop:
					return
				default:
				}
				engine.Process(models.Sample{
					Timestamp: float64(j),
					Source:    fmt.Sprintf("host-%d", n),
					Values:    map[string]float64{"cpu": 30},
				})
			}
		}(i)
	}

	time.Sleep(5 * time.Millisecond)
	engine.Close()
	close(stop)
	wg.Wait()

	assert.False(t, engine.Process(models.Sample{
		Timestamp: 1,
		Values:    map[string]float64{"cpu": 30},
	}))
}

func TestEngineRejectsSamplesAfterClose(t *testing.T) {
	engine, _, buffer := testEngine(t, nil)
	defer buffer.Close(context.Background())

	engine.Close()
	assert.False(t, engine.Process(models.Sample{
		Timestamp: 1,
		Values:    map[string]float64{"cpu": 30},
	}))
}

func TestEngineStats(t *testing.T) {
	engine, _, buffer := testEngine(t, nil)
	defer buffer.Close(context.Background())

	for i := 0; i < 4; i++ {
		require.True(t, engine.Process(models.Sample{
			Timestamp: float64(i + 1),
			Source:    "host-1",
			Values:    map[string]float64{"cpu": 30},
		}))
	}
	engine.Close()

	var processed int64
	for _, s := range engine.Stats() {
		processed += s.Processed
	}
	assert.Equal(t, int64(4), processed)
}
