package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/emberio/hearth/internal/cache/memory"
	rediscache "github.com/emberio/hearth/internal/cache/redis"
	"github.com/emberio/hearth/internal/config"
	"github.com/emberio/hearth/internal/domain"
	"github.com/emberio/hearth/internal/fallback"
	"github.com/emberio/hearth/internal/http"
	"github.com/emberio/hearth/internal/http/middleware"
	"github.com/emberio/hearth/internal/observability"
	"github.com/emberio/hearth/internal/provider/echo"
	"github.com/emberio/hearth/internal/provider/openai"
	"github.com/emberio/hearth/internal/provider/registry"
	"github.com/emberio/hearth/internal/validate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server, logger *zap.Logger) {
		defer func() { _ = logger.Sync() }()

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil {
				log.Fatalf("Server failed: %v", err)
			}
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				log.Fatalf("Shutdown failed: %v", err)
			}
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(func() *observability.Metrics {
		return observability.NewMetrics(prometheus.DefaultRegisterer)
	}); err != nil {
		log.Fatalf("Failed to provide metrics: %v", err)
	}
	if err := container.Provide(func(logger *zap.Logger) domain.EventPublisher {
		return observability.NewEventBus(logger)
	}); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}

	// Pricing and cost tracking
	if err := container.Provide(func() domain.PricingRegistry {
		return domain.NewInMemoryPricingRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide pricing registry: %v", err)
	}
	if err := container.Provide(func(pricing domain.PricingRegistry) domain.CostCalculator {
		return domain.NewStandardCostCalculator(pricing)
	}); err != nil {
		log.Fatalf("Failed to provide cost calculator: %v", err)
	}

	// Provider Registry
	if err := container.Provide(func() domain.ProviderRegistry {
		return registry.NewRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// Register providers with registry (invoked for side effects)
	if err := container.Invoke(registerProviders); err != nil {
		log.Fatalf("Failed to register providers: %v", err)
	}

	// Response cache
	if err := container.Provide(func(cfg *config.Config, metrics *observability.Metrics) domain.ResponseCache {
		if cfg.Cache.Backend == "redis" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Cache.RedisAddr,
				Password: cfg.Cache.RedisPassword,
				DB:       cfg.Cache.RedisDB,
			})
			return rediscache.NewCache(client, metrics)
		}
		return memory.NewCache(cfg.Cache.MaxBytes, metrics)
	}); err != nil {
		log.Fatalf("Failed to provide response cache: %v", err)
	}

	// Fallback engine
	if err := container.Provide(fallback.NewEngine); err != nil {
		log.Fatalf("Failed to provide fallback engine: %v", err)
	}

	// Orchestrator
	if err := container.Provide(func(
		engine *fallback.Engine,
		cache domain.ResponseCache,
		reg domain.ProviderRegistry,
		cfg *config.Config,
		metrics *observability.Metrics,
	) *domain.Orchestrator {
		cacheTasks := make([]domain.TaskType, 0, len(cfg.Cache.TaskTypes))
		for _, t := range cfg.Cache.TaskTypes {
			cacheTasks = append(cacheTasks, domain.TaskType(t))
		}

		var degraded domain.DegradedFunc
		if cfg.Fallback.DegradedEnabled {
			// A dedicated echo instance outside the registry, so disabling
			// the registered echo provider does not take the degraded path
			// down with it.
			safety := echo.NewProvider(metrics)
			degraded = func(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResponse, error) {
				return safety.Generate(ctx, req)
			}
		}

		return domain.NewOrchestrator(engine, cache, reg, validate.NewContentValidator(), degraded, domain.OrchestratorConfig{
			CacheTTL:        time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			CacheTaskTypes:  cacheTasks,
			FallbackEnabled: cfg.Fallback.Enabled,
			CostOptimize:    cfg.Fallback.CostOptimize,
		})
	}); err != nil {
		log.Fatalf("Failed to provide orchestrator: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(corsConfig *config.CORSConfig) middleware.Middleware {
		return middleware.BuildMiddlewareChain(corsConfig)
	}); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// registerProviders seeds model pricing and builds the provider chain from
// configuration: openai first, then the compat endpoint, then echo as an
// optional safety net.
func registerProviders(
	reg domain.ProviderRegistry,
	cfg *config.Config,
	calc domain.CostCalculator,
	metrics *observability.Metrics,
	pricing domain.PricingRegistry,
	logger *zap.Logger,
) error {
	ctx := context.Background()

	if err := openai.RegisterPricing(ctx, pricing); err != nil {
		return fmt.Errorf("failed to register openai pricing: %w", err)
	}
	if err := echo.RegisterPricing(ctx, pricing); err != nil {
		return fmt.Errorf("failed to register echo pricing: %w", err)
	}

	// The primary is always registered; without an API key it starts
	// DISABLED and shows up that way in statistics instead of silently
	// missing from the chain.
	primary := openai.NewProvider(cfg.OpenAI, calc, metrics)
	if err := reg.Register(ctx, primary, 1, 70); err != nil {
		return fmt.Errorf("failed to register openai provider: %w", err)
	}

	if cfg.Compat.APIKey != "" {
		secondary := openai.NewProvider(cfg.Compat, calc, metrics)
		if err := reg.Register(ctx, secondary, 2, 20); err != nil {
			return fmt.Errorf("failed to register compat provider: %w", err)
		}
	}

	if cfg.Echo.Enabled {
		if err := reg.Register(ctx, echo.NewProvider(metrics), 9, 10); err != nil {
			return fmt.Errorf("failed to register echo provider: %w", err)
		}
	}

	available := 0
	for _, p := range reg.Candidates(ctx) {
		if p.Available() {
			available++
		}
	}
	if available == 0 {
		logger.Warn("no provider is currently available; every request will exhaust the chain",
			zap.String("hint", "set OPENAI_API_KEY, COMPAT_API_KEY or ECHO_ENABLED"))
	}

	logger.Info("provider chain registered",
		zap.Int("providers", len(reg.Entries(ctx))),
		zap.Int("available", available))
	return nil
}
