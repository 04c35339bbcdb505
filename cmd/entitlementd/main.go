// Command entitlementd serves the marketplace's entitlement API: plan
// resolution, feature access checks, usage metering and lawyer-chat caps.
//
// Plans, subscription statuses and chat relationships live in PostgreSQL.
// Usage counters default to PostgreSQL too; USAGE_BACKEND=redis or
// USAGE_BACKEND=mongo moves them to a dedicated counter store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/advomarket/entitlement/pkg/api"
	"github.com/advomarket/entitlement/pkg/billing"
	"github.com/advomarket/entitlement/pkg/config"
	"github.com/advomarket/entitlement/pkg/entitlement"
	"github.com/advomarket/entitlement/pkg/httpserver"
	"github.com/advomarket/entitlement/pkg/logger"
	"github.com/advomarket/entitlement/pkg/mongo"
	"github.com/advomarket/entitlement/pkg/mongostore"
	"github.com/advomarket/entitlement/pkg/pg"
	"github.com/advomarket/entitlement/pkg/pgstore"
	"github.com/advomarket/entitlement/pkg/redis"
	"github.com/advomarket/entitlement/pkg/redisstore"
)

type appConfig struct {
	Environment         string        `env:"APP_ENV" envDefault:"development"`
	UsageBackend        string        `env:"USAGE_BACKEND" envDefault:"postgres"`
	PlanCacheTTL        time.Duration `env:"PLAN_CACHE_TTL" envDefault:"5m"`
	PaddleWebhookSecret string        `env:"PADDLE_WEBHOOK_SECRET"`
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Environment, "entitlementd"))
	logger.SetAsDefault(log)

	var pgCfg pg.Config
	config.MustLoad(&pgCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	store := pgstore.New(pool)
	health := map[string]api.HealthCheck{
		"postgres": pg.Healthcheck(pool),
	}

	usage, err := buildUsageStore(ctx, appCfg.UsageBackend, store, health)
	if err != nil {
		return err
	}

	catalog := entitlement.NewCatalog(store, entitlement.WithCatalogTTL(appCfg.PlanCacheTTL))
	svc := entitlement.NewService(catalog, usage, store, entitlement.WithLogger(log))

	var webhook *billing.PaddleWebhook
	if appCfg.PaddleWebhookSecret != "" {
		webhook, err = billing.NewPaddleWebhook(
			billing.Config{WebhookSecret: appCfg.PaddleWebhookSecret},
			store,
			billing.WithLogger(log),
		)
		if err != nil {
			return fmt.Errorf("paddle webhook: %w", err)
		}
	} else {
		log.WarnContext(ctx, "PADDLE_WEBHOOK_SECRET not set, billing webhook disabled")
	}

	router := api.NewRouter(api.RouterOptions{
		Service: svc,
		Webhook: webhook,
		Health:  health,
		Logger:  log,
	})

	var httpCfg httpserver.Config
	config.MustLoad(&httpCfg)

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	log.InfoContext(ctx, "starting entitlement service",
		slog.String("env", appCfg.Environment),
		slog.String("usage_backend", appCfg.UsageBackend),
		slog.String("addr", httpCfg.Addr))

	return srv.Run(ctx, router)
}

// buildUsageStore selects the usage counter backend. PostgreSQL reuses the
// main store; redis and mongo get their own connections and health probes.
func buildUsageStore(ctx context.Context, backend string, store *pgstore.Store, health map[string]api.HealthCheck) (entitlement.UsageStore, error) {
	switch backend {
	case "postgres", "":
		return store, nil

	case "redis":
		var cfg redis.Config
		config.MustLoad(&cfg)

		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		health["redis"] = api.HealthCheck(redis.Healthcheck(client))
		return redisstore.New(client), nil

	case "mongo":
		var cfg mongo.Config
		config.MustLoad(&cfg)

		db, err := mongo.NewWithDatabase(ctx, cfg, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		usage := mongostore.New(db)
		if err := usage.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		health["mongo"] = api.HealthCheck(mongo.Healthcheck(db.Client()))
		return usage, nil

	default:
		return nil, fmt.Errorf("unknown usage backend %q: want postgres, redis or mongo", backend)
	}
}
