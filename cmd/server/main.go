package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"voltgrid/internal/bridge"
	"voltgrid/internal/bridge/sink"
	credservice "voltgrid/internal/credentials/service"
	"voltgrid/internal/handshake"
	hsmetrics "voltgrid/internal/handshake/metrics"
	hsservice "voltgrid/internal/handshake/service"
	httpapi "voltgrid/internal/http"
	"voltgrid/internal/ocpi/client"
	"voltgrid/internal/partners"
	partnermetrics "voltgrid/internal/partners/metrics"
	partnerservice "voltgrid/internal/partners/service"
	partnerstore "voltgrid/internal/partners/store"
	"voltgrid/internal/platform/config"
	"voltgrid/internal/platform/httpserver"
	kafkaadmin "voltgrid/internal/platform/kafka/admin"
	"voltgrid/internal/platform/kafka/consumer"
	"voltgrid/internal/platform/kafka/producer"
	"voltgrid/internal/platform/logger"
	"voltgrid/internal/platform/metrics"
	natsplatform "voltgrid/internal/platform/nats"
	"voltgrid/internal/platform/postgres"
	redisplatform "voltgrid/internal/platform/redis"
	"voltgrid/internal/ratelimit"
	rlmetrics "voltgrid/internal/ratelimit/metrics"
	rlmiddleware "voltgrid/internal/ratelimit/middleware"
	rlmodels "voltgrid/internal/ratelimit/models"
	"voltgrid/internal/ratelimit/store/bucket"
	"voltgrid/internal/registration/store"
	"voltgrid/internal/tenant"
	tenantmetrics "voltgrid/internal/tenant/metrics"
	tenantservice "voltgrid/internal/tenant/service"
	"voltgrid/internal/versions"
	verservice "voltgrid/internal/versions/service"
	"voltgrid/pkg/platform/middleware/admin"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// infra holds the optional backing services; nil fields are not configured.
type infra struct {
	db       *sql.DB
	redis    *redisplatform.Client
	producer *producer.Producer
}

func (i *infra) close() {
	if i.producer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		i.producer.Close(ctx)
		cancel()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func (i *infra) healthChecks() []httpapi.HealthCheck {
	var checks []httpapi.HealthCheck
	if i.db != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "postgres", Check: i.db.PingContext})
	}
	if i.redis != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "redis", Check: i.redis.Health})
	}
	if i.producer != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "kafka", Check: i.producer.Ping})
	}
	return checks
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	party, err := config.LoadParty(cfg.PartyFile)
	if err != nil {
		return err
	}
	platform, err := versions.PlatformFromParty(cfg.PublicURL, party)
	if err != nil {
		return fmt.Errorf("local platform: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := openInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	tenants, err := tenant.NewDirectory(ctx, party.Tenants,
		tenantservice.WithLogger(log),
		tenantservice.WithMetrics(tenantmetrics.New(reg)),
	)
	if err != nil {
		return err
	}

	registrations, err := registrationStore(ctx, cfg, deps)
	if err != nil {
		return err
	}

	bridgeMetrics := bridge.NewMetrics(reg)
	events := bridge.New(bridge.WithLogger(log), bridge.WithMetrics(bridgeMetrics))

	ocpiClient := client.New(cfg.OCPIClient.Timeout,
		client.WithLogger(log),
		client.WithGetRetry(cfg.OCPIClient.MaxGetTries, cfg.OCPIClient.RetryBackoff),
	)
	negotiator := versions.NewNegotiator(platform, ocpiClient, verservice.WithLogger(log))
	exchanger, err := credservice.New(negotiator, ocpiClient, tenants, cfg.PublicURL+"/ocpi/versions",
		credservice.WithLogger(log),
	)
	if err != nil {
		return err
	}
	orchestrator, err := handshake.NewOrchestrator(registrations, exchanger, events,
		hsservice.WithLogger(log),
		hsservice.WithMetrics(hsmetrics.New(reg)),
	)
	if err != nil {
		return err
	}

	var partnerStore partnerservice.Store = partnerstore.NewInMemory()
	if deps.redis != nil {
		partnerStore = partnerstore.NewRedis(deps.redis.Client, deps.redis.Prefix())
	}
	directory := partners.NewDirectory(partnerStore,
		partnerservice.WithLogger(log),
		partnerservice.WithMetrics(partnermetrics.New(reg)),
	)

	codec, err := bridge.NewCodec(cfg.Bridge.Codec)
	if err != nil {
		return err
	}

	var counters rlmiddleware.Limiter = bucket.NewInMemory()
	if deps.redis != nil {
		counters = bucket.NewRedis(deps.redis.Client, deps.redis.Prefix())
	}
	limiter := ratelimit.NewMiddleware(cfg.RateLimit, counters, log, rlmetrics.New(reg))

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:   log,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		OCPI: []httpapi.Registrar{
			httpapi.With(versions.NewHandler(platform, log), limiter.Limit(rlmodels.ClassDiscovery)),
			httpapi.With(handshake.NewCredentialsHandler(orchestrator, platform.VersionNumbers(), log), limiter.Limit(rlmodels.ClassCredentials)),
		},
		Admin: []httpapi.Registrar{
			handshake.NewAdminHandler(orchestrator, log),
			tenant.NewHandler(tenants, log),
			partners.NewHandler(directory, log),
		},
		AdminGuard: adminGuard(cfg, log),
		Health:     deps.healthChecks(),
		TrustProxy: cfg.RateLimit.TrustProxy,
	})
	srv := httpserver.New(cfg.Addr, router,
		httpserver.HandshakeBudget(cfg.OCPIClient.Timeout, cfg.OCPIClient.MaxGetTries, cfg.OCPIClient.RetryBackoff),
	)

	// Relays and the in-process partner feed outlive ctx so they can drain
	// the bridge after the HTTP server stops accepting handshakes.
	drainCtx, cancelDrain := context.WithCancel(context.Background())
	defer cancelDrain()

	g, gctx := errgroup.WithContext(ctx)
	var drainers errgroup.Group

	relayOpts := []bridge.RelayOption{
		bridge.WithRelayLogger(log),
		bridge.WithRelayMetrics(bridgeMetrics),
		bridge.WithMaxElapsed(cfg.Bridge.RelayMaxElapsed),
	}
	if deps.producer != nil {
		relay := bridge.NewRelay(events.Subscribe("kafka"), sink.NewKafka(deps.producer, cfg.Kafka.Topic, codec), relayOpts...)
		drainers.Go(func() error { return relay.Run(drainCtx) })
	}
	if cfg.NATS.Enabled() {
		nc, err := natsplatform.Connect(cfg.NATS, log)
		if err != nil {
			return err
		}
		defer nc.Drain()
		js, err := natsplatform.EnsureStream(ctx, nc, cfg.NATS)
		if err != nil {
			return err
		}
		relay := bridge.NewRelay(events.Subscribe("nats"), sink.NewNATS(js, cfg.NATS.Subject, codec), relayOpts...)
		drainers.Go(func() error { return relay.Run(drainCtx) })
	}

	if cfg.Kafka.Enabled() {
		c, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, []string{cfg.Kafka.Topic}, directory.KafkaHandler(codec), log)
		if err != nil {
			return err
		}
		defer c.Close()
		g.Go(func() error {
			if err := c.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		sub := events.Subscribe("partners")
		drainers.Go(func() error { return directory.Consume(drainCtx, sub) })
	}

	g.Go(func() error {
		log.Info("starting voltgrid OCPI server",
			"addr", cfg.Addr,
			"public_url", cfg.PublicURL,
			"versions", platform.VersionNumbers(),
			"registration_backend", cfg.RegistrationBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}

		// No handshake can publish any more; let subscribers drain what is queued.
		events.Close()
		timer := time.AfterFunc(cfg.Bridge.ShutdownGrace, cancelDrain)
		defer timer.Stop()
		if err := drainers.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("bridge drain incomplete", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func openInfra(ctx context.Context, cfg config.Server) (*infra, error) {
	deps := &infra{}
	var err error
	if deps.db, err = postgres.Open(ctx, cfg.Postgres); err != nil {
		return nil, err
	}
	if deps.redis, err = redisplatform.New(ctx, cfg.Redis); err != nil {
		deps.close()
		return nil, err
	}
	if cfg.Kafka.Enabled() {
		if err := kafkaadmin.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions, 1); err != nil {
			deps.close()
			return nil, err
		}
		if deps.producer, err = producer.New(cfg.Kafka.Brokers); err != nil {
			deps.close()
			return nil, err
		}
	}
	return deps, nil
}

func registrationStore(ctx context.Context, cfg config.Server, deps *infra) (hsservice.RegistrationStore, error) {
	switch cfg.RegistrationBackend {
	case "", "memory":
		return store.NewInMemory(), nil
	case "postgres":
		if deps.db == nil {
			return nil, errors.New("REGISTRATION_BACKEND=postgres requires DATABASE_URL")
		}
		pg := store.NewPostgres(deps.db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	case "redis":
		if deps.redis == nil {
			return nil, errors.New("REGISTRATION_BACKEND=redis requires REDIS_URL")
		}
		return store.NewRedis(deps.redis.Client, deps.redis.Prefix()), nil
	default:
		return nil, fmt.Errorf("unknown registration backend %q", cfg.RegistrationBackend)
	}
}

func adminGuard(cfg config.Server, log *slog.Logger) func(http.Handler) http.Handler {
	if cfg.AdminTokenHash != "" {
		return admin.RequireAdminTokenHash(cfg.AdminTokenHash, log)
	}
	if cfg.AdminToken == "" {
		log.Warn("admin API disabled: ADMIN_API_TOKEN not set")
	}
	return admin.RequireAdminToken(cfg.AdminToken, log)
}
