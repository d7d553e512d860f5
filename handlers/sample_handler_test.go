package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anomaly-stream-processor/delivery"
	"anomaly-stream-processor/detector"
	"anomaly-stream-processor/models"
	"anomaly-stream-processor/pipeline"
)

type discardSink struct{}

func (discardSink) Send(ctx context.Context, batch []models.AnomalyEvent) error {
	return nil
}

func newTestHandler(t *testing.T) (*SampleHandler, *pipeline.Engine) {
	t.Helper()

	buffer := delivery.NewBuffer(discardSink{}, delivery.Options{
		BatchMode:     true,
		FlushInterval: time.Hour,
	}, nil)
	t.Cleanup(func() { buffer.Close(context.Background()) })

	engine, err := pipeline.NewEngine(detector.Config{
		Metrics: []string{"cpu"},
	}, pipeline.Options{Workers: 1, QueueSize: 10}, buffer, nil, nil)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return NewSampleHandler(engine, nil), engine
}

func TestHandleSampleAccepted(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"timestamp": 1700000000, "source": "host-1", "values": {"cpu": 0.4}}`
	req := httptest.NewRequest(http.MethodPost, "/samples", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleSample(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "accepted")
}

func TestHandleSampleRejectsBadJSON(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/samples", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	h.HandleSample(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSampleRejectsInvalidSample(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/samples", strings.NewReader(`{"values": {"cpu": 1}}`))
	rec := httptest.NewRecorder()

	h.HandleSample(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBaselineRequiresMetric(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/baseline", nil)
	rec := httptest.NewRecorder()

	h.HandleBaseline(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBaselineNotFoundBeforeWarmup(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/baseline?metric=cpu", nil)
	rec := httptest.NewRecorder()

	h.HandleBaseline(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	h, engine := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	engine.Close()

	rec = httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
