package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/user/autolist-service/internal/adapter/apisource"
	"github.com/user/autolist-service/internal/adapter/chromedp_crawler"
	"github.com/user/autolist-service/internal/adapter/htmlsource"
	"github.com/user/autolist-service/internal/adapter/httpsource"
	"github.com/user/autolist-service/internal/adapter/local"
	"github.com/user/autolist-service/internal/adapter/memory"
	"github.com/user/autolist-service/internal/adapter/postgres"
	redis_adapter "github.com/user/autolist-service/internal/adapter/redis"
	"github.com/user/autolist-service/internal/delivery/http/handler"
	"github.com/user/autolist-service/internal/repository"
	"github.com/user/autolist-service/internal/usecase"
	"github.com/user/autolist-service/pkg/config"
)

// App holds the wired dependencies shared by the API server and the CLI.
type App struct {
	Collector usecase.Collector
	Products  repository.ProductRepository
	Runs      repository.RunRepository
	Checks    map[string]handler.Pinger

	closers []func()
}

// New connects to the configured stores and builds the collection pipeline.
// On error, everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Checks: map[string]handler.Pinger{}}
	if err := a.build(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := a.initStores(ctx, cfg, logger); err != nil {
		return err
	}

	rdb, err := a.redisClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var cooldown repository.CooldownRepository
	if cfg.KeywordCooldown > 0 {
		if rdb == nil {
			return fmt.Errorf("keyword cooldown requires redis")
		}
		cooldown = redis_adapter.NewCooldownRepo(rdb)
	}

	source, err := a.listingSource(cfg)
	if err != nil {
		return err
	}
	logger.Info("Listing source configured", "kind", cfg.SourceKind, "name", source.Name())

	fetcher := usecase.NewFetcher(source, rateLimiter(cfg, rdb), usecase.FetcherConfig{
		MaxRetries:  cfg.FetchMaxRetries,
		BackoffBase: cfg.FetchBackoffBase,
		BackoffMax:  cfg.FetchBackoffMax,
		PageTimeout: cfg.FetchPageTimeout,
	}, logger)

	a.Collector = usecase.NewCollectorUseCase(fetcher, a.Products, a.Runs, cooldown, usecase.CollectorConfig{
		SourceName:                  source.Name(),
		MaxPages:                    cfg.FetchMaxPages,
		RunTimeout:                  cfg.RunTimeout,
		MaxConsecutiveStoreFailures: cfg.MaxConsecutiveStoreFailures,
		KeywordCooldown:             cfg.KeywordCooldown,
	}, logger)

	return nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) initStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	switch cfg.StoreDriver {
	case "memory":
		a.Products = memory.NewProductRepo()
		a.Runs = memory.NewRunRepo()
		logger.Warn("Using in-memory store; collected products are not persisted")
		return nil
	case "postgres":
		dbpool, err := postgres.NewPool(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("unable to connect to database: %w", err)
		}
		a.closers = append(a.closers, dbpool.Close)
		logger.Info("PostgreSQL connection pool established")

		if cfg.PostgresAutoMigrate {
			if err := postgres.EnsureSchema(ctx, dbpool); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
			logger.Info("Database schema ensured")
		}

		a.Products = postgres.NewProductRepo(dbpool)
		a.Runs = postgres.NewRunRepo(dbpool)
		a.Checks["postgres"] = pingPostgres(dbpool)
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// redisClient connects only when a component needs redis.
func (a *App) redisClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*goredis.Client, error) {
	if cfg.RateLimiter != "redis" && cfg.KeywordCooldown <= 0 {
		return nil, nil
	}
	rdb, err := redis_adapter.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	a.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	logger.Info("Redis connection established")
	return rdb, nil
}

func (a *App) listingSource(cfg *config.Config) (repository.ListingSource, error) {
	rotator := httpsource.NewRotator(cfg.SourceProxies, cfg.SourceUserAgents)
	extractor := htmlsource.NewExtractor(htmlsource.Selectors{
		Item:   cfg.SelectorItem,
		IDAttr: cfg.SelectorIDAttr,
		Title:  cfg.SelectorTitle,
		Price:  cfg.SelectorPrice,
		Link:   cfg.SelectorLink,
		Image:  cfg.SelectorImage,
		Next:   cfg.SelectorNext,
	})

	switch cfg.SourceKind {
	case "api":
		return apisource.NewSource(cfg.SourceName, cfg.SourceSearchURL, cfg.SourceAPIKey, httpsource.NewClient(rotator)), nil
	case "html":
		return htmlsource.NewSource(cfg.SourceName, cfg.SourceSearchURL, httpsource.NewClient(rotator), extractor), nil
	case "browser":
		source := chromedp_crawler.NewBrowserSource(cfg.SourceName, cfg.SourceSearchURL, cfg.SelectorItem, cfg.BrowserPoolSize, extractor, rotator)
		a.closers = append(a.closers, source.Close)
		return source, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.SourceKind)
	}
}

func rateLimiter(cfg *config.Config, rdb *goredis.Client) repository.RateLimiter {
	if cfg.SourceRateLimit <= 0 {
		return nil
	}
	if cfg.RateLimiter == "redis" && rdb != nil {
		return redis_adapter.NewRateLimiter(rdb, cfg.SourceRateLimit, cfg.SourceRateWindow)
	}
	return local.NewRateLimiter(cfg.SourceRateLimit, cfg.SourceRateWindow)
}

func pingPostgres(db *pgxpool.Pool) handler.Pinger {
	return func(ctx context.Context) error { return db.Ping(ctx) }
}
