package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"anomaly-stream-processor/config"
	"anomaly-stream-processor/delivery"
	"anomaly-stream-processor/handlers"
	"anomaly-stream-processor/ingest"
	"anomaly-stream-processor/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	sink, err := delivery.NewRedisSink(cfg.Delivery.Redis.Addr, cfg.Delivery.Redis.Channel, cfg.Delivery.Redis.TTL)
	if err != nil {
		logger.Fatal("failed to connect to redis",
			zap.String("addr", cfg.Delivery.Redis.Addr),
			zap.Error(err))
	}
	defer sink.Close()
	logger.Info("connected to redis", zap.String("addr", cfg.Delivery.Redis.Addr))

	buffer := delivery.NewBuffer(sink, cfg.DeliveryOptions(), logger)

	engine, err := pipeline.NewEngine(cfg.DetectorConfig(), cfg.PipelineOptions(), buffer, logger, nil)
	if err != nil {
		logger.Fatal("failed to start analytics engine", zap.Error(err))
	}

	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()

	consumerDone := make(chan struct{})
	if cfg.Ingest.AMQPURL != "" {
		consumer, err := ingest.NewConsumer(cfg.Ingest.AMQPURL, cfg.Ingest.Exchange, cfg.Ingest.RoutingKey, cfg.Ingest.Queue, engine, logger)
		if err != nil {
			logger.Fatal("failed to connect to amqp",
				zap.String("queue", cfg.Ingest.Queue),
				zap.Error(err))
		}
		defer consumer.Close()
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ingestCtx); err != nil {
				logger.Error("sample consumer stopped", zap.Error(err))
			}
		}()
	} else {
		close(consumerDone)
	}

	r := mux.NewRouter()
	h := handlers.NewSampleHandler(engine, logger)

	r.HandleFunc("/health", h.HandleHealth).Methods("GET")
	r.HandleFunc("/samples", h.HandleSample).Methods("POST")
	r.HandleFunc("/baseline", h.HandleBaseline).Methods("GET")
	r.HandleFunc("/stats", h.HandleStats).Methods("GET")
	r.Path("/metrics").Handler(promhttp.Handler())

	srv := &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// The consumer must be fully stopped before the engine closes, so no
	// in-flight delivery can call Process during shutdown.
	stopIngest()
	<-consumerDone
	engine.Close()
	if err := buffer.Close(ctx); err != nil {
		logger.Warn("shutdown with undelivered events", zap.Error(err))
	}

	logger.Info("server exited")
}

func newLogger(level string) (*zap.Logger, error) {
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = atomic
	return zcfg.Build()
}
