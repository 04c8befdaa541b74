package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"video-concat-service/internal/api"
	"video-concat-service/internal/config"
	"video-concat-service/internal/pipeline"
	"video-concat-service/internal/ratelimit"
	"video-concat-service/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := newLogger(cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init job store")
	}
	defer st.Close()

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init publisher")
	}

	var limiter *ratelimit.CampaignLimiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter = ratelimit.NewCampaignLimiter(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("campaign rate limiting enabled")
	}

	runner := pipeline.NewRunner(cfg, st, publisher, logger)
	server := api.New(cfg, st, runner, limiter, logger)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Info().Str("port", cfg.HTTPPort).Msg("concat service listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func newStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, error) {
	if cfg.PostgresDSN == "" {
		logger.Info().Msg("no POSTGRES_DSN configured, job records kept in memory")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := pg.RunMigrations(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

func newPublisher(ctx context.Context, cfg config.Config, logger zerolog.Logger) (pipeline.Publisher, error) {
	if cfg.S3Bucket != "" {
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("publishing artifacts to s3")
		return pipeline.NewS3Publisher(ctx, cfg)
	}
	logger.Info().Str("dir", cfg.PublishDir).Msg("publishing artifacts to local directory")
	return pipeline.NewLocalPublisher(cfg.PublishDir), nil
}
