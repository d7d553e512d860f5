package ingest

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"anomaly-stream-processor/models"
	"anomaly-stream-processor/pipeline"
)

// Consumer feeds samples from a message queue into the detection pipeline.
// Malformed payloads are rejected without requeue; samples the pipeline
// cannot accept right now are requeued.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	engine  *pipeline.Engine
	logger  *zap.Logger
}

func NewConsumer(url, exchange, routingKey, queue string, engine *pipeline.Engine, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	if exchange != "" {
		if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
			conn.Close()
			return nil, err
		}
	}

	if err := ch.Qos(100, 0, false); err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{
		conn:    conn,
		channel: ch,
		queue:   queue,
		engine:  engine,
		logger:  logger,
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.logger.Info("consuming samples", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("sample consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("amqp channel closed")
				return nil
			}
			c.handle(msg)
		}
	}
}

func (c *Consumer) handle(msg amqp.Delivery) {
	var sample models.Sample
	if err := json.Unmarshal(msg.Body, &sample); err != nil {
		c.logger.Warn("failed to unmarshal sample", zap.Error(err))
		msg.Nack(false, false)
		return
	}

	if err := sample.Validate(); err != nil {
		c.logger.Warn("rejecting invalid sample", zap.Error(err))
		msg.Nack(false, false)
		return
	}

	if !c.engine.Process(sample) {
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

func (c *Consumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}
