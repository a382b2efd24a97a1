package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/crash-game-platform-poc/internal/round-archiver/consumer"
	"github.com/radieske/crash-game-platform-poc/internal/round-archiver/repository"
	"github.com/radieske/crash-game-platform-poc/internal/shared/config"
	"github.com/radieske/crash-game-platform-poc/internal/shared/db"
	skafka "github.com/radieske/crash-game-platform-poc/internal/shared/kafka"
	"github.com/radieske/crash-game-platform-poc/internal/shared/logger"
	"github.com/radieske/crash-game-platform-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Consumer Kafka (grupo round-archiver) + writer da DLQ
	reader := skafka.NewReader(cfg.KafkaBrokers, cfg.TopicRoundSettled, "round-archiver")
	defer reader.Close()
	dlq := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundSettledDLQ)
	defer dlq.Close()

	repo := repository.NewPostgresRepo(pg)

	// Métricas Prometheus do arquivamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "archiver_messages_consumed_total", Help: "mensagens consumidas"})
	persisted := prometheus.NewCounter(prometheus.CounterOpts{Name: "archiver_rounds_persisted_total", Help: "rounds arquivados"})
	deadLettered := prometheus.NewCounter(prometheus.CounterOpts{Name: "archiver_dlq_total", Help: "mensagens enviadas pra DLQ"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "archiver_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, persisted, deadLettered, errorsBy)

	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		Repo:       repo,
		DLQ:        dlq,
		OnConsumed: func() { consumed.Inc() },
		OnPersist:  func() { persisted.Inc() },
		OnDLQ:      func() { deadLettered.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// metrics/health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		return nil
	})
	defer metricsSrv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("round-archiver started")
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("round-archiver stopped")
}
