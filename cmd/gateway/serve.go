package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reasongate-gateway/internal/config"
	"reasongate-gateway/internal/gateway"
	"reasongate-gateway/internal/handlers"
	"reasongate-gateway/internal/httpserver"
	"reasongate-gateway/internal/llm"
	"reasongate-gateway/internal/llm/anthropic"
	"reasongate-gateway/internal/llm/deepseek"
	"reasongate-gateway/internal/llm/gemini"
	"reasongate-gateway/internal/metrics"
	"reasongate-gateway/internal/observability"
	"reasongate-gateway/internal/pricing"
	"reasongate-gateway/internal/version"
	"reasongate-gateway/pkg/logging/logging"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config and PORT)")
	return cmd
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("addr", cfg.Server.Address()),
		zap.String("pricing_backend", cfg.Pricing.Backend),
		zap.String("provider_a_base_url", cfg.Providers.ProviderA.BaseURL),
		zap.String("provider_b_kind", cfg.Providers.ProviderB.Kind),
		zap.String("provider_b_base_url", cfg.Providers.ProviderB.BaseURL),
		zap.Bool("otel_enabled", cfg.Observability.OTel.Enabled),
	)

	// ----- Tracing -----
	otelRuntime, err := observability.Setup(ctx, cfg.Observability.OTel, version.Version, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelRuntime.Shutdown(shutdownCtx); err != nil {
			logger.Warn("otel shutdown error", zap.Error(err))
		}
	}()

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Pricing.Backend == pricing.BackendRedis {
		redisClient, err = connectRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		defer redisClient.Close()
		logger.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
	}

	// ----- Pricing -----
	store, err := pricing.NewStore(pricing.Config{
		Backend:  cfg.Pricing.Backend,
		RedisKey: cfg.Pricing.RedisKey,
		Table:    cfg.Pricing.Table,
	}, redisClient)
	if err != nil {
		return err
	}

	// ----- Providers -----
	providerA, providerB, err := providerFactories(cfg.Providers, otelRuntime, logger)
	if err != nil {
		return err
	}

	// ----- Handlers -----
	chatHandler := handlers.NewChatHandler(
		gateway.New(store),
		providerA,
		providerB,
		handlers.CredentialHeaders{
			ProviderA: cfg.Providers.ProviderA.Header,
			ProviderB: cfg.Providers.ProviderB.Header,
		},
	)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, chatHandler, httpserver.Options{
		RequestTimeout: cfg.Server.RequestTimeout(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	// ----- HTTP server -----
	// WriteTimeout stays unset: streamed answers are bounded by the request
	// timeout middleware instead.
	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           otelRuntime.WrapHTTPHandler(r),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.String("version", version.Version),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		logger.Error("server error", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Fail fast if Redis is misconfigured
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// providerFactories builds one factory per role. Each factory shares a
// pooled, traced HTTP client between all per-request providers.
func providerFactories(cfg config.ProvidersConfig, otelRuntime *observability.Runtime, logger *zap.Logger) (llm.Factory, llm.Factory, error) {
	clientConfig := func(p config.ProviderConfig) llm.ClientConfig {
		c := llm.ClientConfig{
			BaseURL:         p.BaseURL,
			Model:           p.Model,
			UpstreamTimeout: p.Timeout(),
			MaxRetries:      p.MaxRetries,
		}
		if c.MaxRetries == 0 {
			c.MaxRetries = -1
		}
		c.HTTPClient = llm.NewHTTPClient(c.WithDefaults(), otelRuntime.WrapHTTPTransport)
		return c
	}

	providerA, err := deepseek.NewFactory(clientConfig(cfg.ProviderA), logger)
	if err != nil {
		return nil, nil, err
	}

	var providerB llm.Factory
	switch cfg.ProviderB.Kind {
	case config.ProviderKindGemini:
		providerB, err = gemini.NewFactory(clientConfig(cfg.ProviderB), logger)
	default:
		providerB, err = anthropic.NewFactory(clientConfig(cfg.ProviderB), logger)
	}
	if err != nil {
		return nil, nil, err
	}
	return providerA, providerB, nil
}
