package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/crash-game-platform-poc/internal/game-service/engine"
	ghttp "github.com/radieske/crash-game-platform-poc/internal/game-service/http"
	"github.com/radieske/crash-game-platform-poc/internal/game-service/oracle"
	kpub "github.com/radieske/crash-game-platform-poc/internal/game-service/producer"
	"github.com/radieske/crash-game-platform-poc/internal/game-service/pubsub"
	"github.com/radieske/crash-game-platform-poc/internal/game-service/repo"
	"github.com/radieske/crash-game-platform-poc/internal/game-service/ws"
	"github.com/radieske/crash-game-platform-poc/internal/shared/cache"
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

	// Redis (cache de preços + pub/sub de broadcast)
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writers de liquidação
	roundWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundSettled)
	defer roundWriter.Close()
	betWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer betWriter.Close()

	// deps
	store := repo.NewPostgres(pg)
	prices := oracle.New(log, cfg.PriceAPIURL, oracle.RedisKV{R: rdb})
	bcast := pubsub.NewRedisBroadcaster(rdb, log, cfg.RedisPubSubChannel)
	stream := kpub.NewKafkaPublisher(roundWriter, betWriter)

	game := engine.New(log, store, prices, bcast, stream, cfg.Game)

	// Métricas Prometheus do ciclo de vida do jogo
	betsPlaced := prometheus.NewCounter(prometheus.CounterOpts{Name: "crash_bets_placed_total", Help: "apostas aceitas"})
	cashouts := prometheus.NewCounter(prometheus.CounterOpts{Name: "crash_cashouts_total", Help: "cashouts liquidados"})
	roundsStarted := prometheus.NewCounter(prometheus.CounterOpts{Name: "crash_rounds_started_total", Help: "rounds iniciados"})
	crashPoints := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crash_point",
		Help:    "distribuição dos crash points",
		Buckets: []float64{1.05, 1.25, 1.5, 2, 3, 5, 10, 25, 50, 120},
	})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "crash_engine_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(betsPlaced, cashouts, roundsStarted, crashPoints, errorsBy)

	game.OnBetPlaced = func() { betsPlaced.Inc() }
	game.OnCashout = func() { cashouts.Inc() }
	game.OnRoundStarted = func() { roundsStarted.Inc() }
	game.OnRoundCrashed = func(cp float64) { crashPoints.Observe(cp) }
	game.OnError = func(stage string) { errorsBy.WithLabelValues(stage).Inc() }

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// WebSocket: hub local alimentado pelo canal Redis Pub/Sub
	hub := ws.NewHub(log, game, func(r *http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, log, rdb, cfg.RedisPubSubChannel, hub)

	// HTTP público: REST + upgrade de WebSocket
	api := ghttp.NewServer(log, game, store, prices)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	mux.Handle("/", api.Router())
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: mux,
	}

	// metrics/health em porta separada
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	defer metricsSrv.Close()

	// loop de rounds
	game.Start(ctx)

	go func() {
		<-ctx.Done()
		_ = apiSrv.Shutdown(context.Background())
	}()

	log.Info("game-service listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
	log.Info("game-service stopped")
}
