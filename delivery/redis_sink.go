package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"anomaly-stream-processor/models"
)

// RedisSink publishes anomaly events to a pub/sub channel and caches the
// most recent event per detector under a TTL key for dashboard reads.
type RedisSink struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
}

func NewRedisSink(addr, channel string, ttl time.Duration) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	if channel == "" {
		channel = "anomaly_events"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &RedisSink{
		client:  rdb,
		channel: channel,
		ttl:     ttl,
	}, nil
}

// Send publishes the batch in order via a single pipeline round trip.
func (s *RedisSink) Send(ctx context.Context, batch []models.AnomalyEvent) error {
	pipe := s.client.Pipeline()
	for i := range batch {
		data, err := json.Marshal(&batch[i])
		if err != nil {
			return err
		}
		pipe.Publish(ctx, s.channel, data)
		pipe.Set(ctx, "anomaly:latest:"+batch[i].DetectorID, data, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// LatestEvent reads back the most recent cached event for a detector.
// Returns (nil, nil) when nothing is cached.
func (s *RedisSink) LatestEvent(ctx context.Context, detectorID string) (*models.AnomalyEvent, error) {
	val, err := s.client.Get(ctx, "anomaly:latest:"+detectorID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var event models.AnomalyEvent
	if err := json.Unmarshal([]byte(val), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
