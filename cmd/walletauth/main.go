package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/walletauth/adapters/blob"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/ratelimit"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/config"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/internal/logger"
	"github.com/layer-3/walletauth/internal/metrics"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	"github.com/layer-3/walletauth/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("walletauth stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var accountStore ports.AccountStore
	if cfg.DatabaseURL != "" {
		pool, err := store.NewPostgresPool(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := store.RunMigrations(ctx, pool, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		accountStore = store.NewPostgresAccountStore(pool)
	} else {
		log.Warn("DATABASE_URL not set, accounts are kept in memory")
		accountStore = store.NewMemoryAccountStore()
	}

	var (
		nonceStore ports.NonceStore
		blobStore  ports.BlobStore
		limiter    ports.RateLimiter
		publisher  message.Publisher
	)
	if cfg.RedisURL != "" {
		redisClient, err := store.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()

		nonceStore = store.NewRedisNonceStore(redisClient)
		blobStore = blob.NewRedisBlobStore(redisClient, cfg.PublicBaseURL)
		if cfg.SignInRateLimit > 0 {
			limiter = ratelimit.NewRedisLimiter(redisClient, cfg.SignInRateLimit, time.Minute)
		}

		publisher, err = newRedisPublisher(redisClient, log)
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
	} else {
		log.Warn("REDIS_URL not set, nonces and avatars are kept in memory and events stay in process")
		nonceStore = store.NewMemoryNonceStore()
		blobStore = blob.NewMemoryBlobStore(cfg.PublicBaseURL)
		publisher = gochannel.NewGoChannel(gochannel.Config{}, events.NewZapLogger(log))
	}
	defer publisher.Close()
	eventPub := events.NewWatermillPublisher(publisher)

	accounts := service.NewAccountService(
		accountStore, blobStore, eventPub, m, log,
		service.WithStoreTimeout(cfg.StoreTimeout),
		service.WithAvatarMaxBytes(int(cfg.AvatarMaxBytes)),
	)
	authService := service.NewAuthService(
		service.AuthSettings{
			Domain:       cfg.Domain,
			SessionTTL:   cfg.SessionTTL,
			NonceTTL:     cfg.NonceTTL,
			StoreTimeout: cfg.StoreTimeout,
		},
		eth.NewVerifier(eth.WithMaxAge(cfg.MessageMaxAge)),
		tokenizer.NewJWTTokenizer(cfg.SessionSecret, cfg.SessionIssuer),
		nonceStore,
		accounts,
		eventPub,
		m,
		log,
	)
	guard := service.NewGuard(authService, cfg.ProtectedPaths, cfg.LandingPath)

	router := http.SetupRouter(http.RouterConfig{
		AuthService: authService,
		Accounts:    accounts,
		Guard:       guard,
		Limiter:     limiter,
		Metrics:     m,
		Gatherer:    registry,
		Cookies: http.CookieConfig{
			SessionName: cfg.SessionCookie,
			NonceName:   cfg.NonceCookie,
			Domain:      cfg.CookieDomain,
			Secure:      cfg.SecureCookies(),
			NonceTTL:    cfg.NonceTTL,
		},
		Info: http.ServiceInfo{
			Name:        "walletauth",
			Domain:      cfg.Domain,
			URI:         cfg.URI,
			ChainID:     cfg.ChainID,
			LandingPath: cfg.LandingPath,
		},
		AvatarMaxBytes: cfg.AvatarMaxBytes,
		Log:            log,
	})

	srv := &nethttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("domain", cfg.Domain))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRedisPublisher(client *redis.Client, log *zap.Logger) (message.Publisher, error) {
	return redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		events.NewZapLogger(log),
	)
}
