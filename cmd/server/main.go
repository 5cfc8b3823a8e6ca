package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"corpdesk/internal/audit"
	auditpostgres "corpdesk/internal/audit/store/postgres"
	"corpdesk/internal/compliance"
	compliancememory "corpdesk/internal/compliance/store/memory"
	compliancepostgres "corpdesk/internal/compliance/store/postgres"
	"corpdesk/internal/email"
	"corpdesk/internal/email/transport/smtp"
	jwttoken "corpdesk/internal/jwt_token"
	"corpdesk/internal/platform/clock"
	"corpdesk/internal/platform/config"
	"corpdesk/internal/platform/httpserver"
	"corpdesk/internal/platform/kafka"
	"corpdesk/internal/platform/logger"
	platformmetrics "corpdesk/internal/platform/metrics"
	"corpdesk/internal/platform/postgres"
	"corpdesk/internal/platform/redis"
	"corpdesk/internal/platform/worker"
	ratelimitmetrics "corpdesk/internal/ratelimit/metrics"
	"corpdesk/internal/ratelimit/ports"
	ratelimitservice "corpdesk/internal/ratelimit/service"
	"corpdesk/internal/ratelimit/store/bucket"
	"corpdesk/internal/reminder"
	claimsmemory "corpdesk/internal/reminder/claims/memory"
	claimspostgres "corpdesk/internal/reminder/claims/postgres"
	claimsredis "corpdesk/internal/reminder/claims/redis"
	kafkapublisher "corpdesk/internal/reminder/publisher/kafka"
	notificationmemory "corpdesk/internal/reminder/store/memory"
	notificationpostgres "corpdesk/internal/reminder/store/postgres"
	httptransport "corpdesk/internal/transport/http"
	"corpdesk/pkg/platform/circuit"
	"corpdesk/pkg/platform/tx"
)

func main() {
	mintSubject := flag.String("mint-admin-token", "", "print an admin bearer token for this operator and exit")
	mintTTL := flag.Duration("token-ttl", 12*time.Hour, "lifetime of a minted admin token")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	tokens, err := jwttoken.NewJWTService(cfg.Server.AdminJWTSecret, "corpdesk")
	if err != nil {
		log.Error("failed to build token service", "error", err)
		os.Exit(1)
	}
	if *mintSubject != "" {
		token, err := tokens.IssueAdminToken(*mintSubject, *mintTTL)
		if err != nil {
			log.Error("failed to mint admin token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, tokens, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// infra holds the optional shared backends. Nil fields are not configured.
type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kafka.Producer
}

func (i *infra) close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	inf := &infra{}
	var err error

	if inf.db, err = postgres.Open(ctx, cfg.Postgres); err != nil {
		return nil, err
	}
	if inf.db != nil {
		if err := postgres.Migrate(ctx, inf.db); err != nil {
			inf.close()
			return nil, err
		}
		log.Info("postgres connected")
	}

	if inf.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		inf.close()
		return nil, err
	}
	if inf.redis != nil {
		log.Info("redis connected")
	}

	if inf.kafka, err = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
		inf.close()
		return nil, err
	}
	if inf.kafka != nil {
		if err := inf.kafka.EnsureTopic(ctx, 1, 1); err != nil {
			log.Warn("could not ensure reminder topic", "topic", inf.kafka.Topic(), "error", err)
		}
		log.Info("kafka producer ready", "topic", inf.kafka.Topic())
	}
	return inf, nil
}

func run(ctx context.Context, cfg config.Config, tokens *jwttoken.JWTService, log *slog.Logger) error {
	if masked, err := cfg.MaskedJSON(); err == nil {
		log.Info("starting corpdesk", "config", string(masked))
	}

	inf, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer inf.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	clk := clock.Real{}

	auditOpts := []audit.Option{audit.WithLogger(log)}
	if cfg.Audit.MirrorPostgres {
		auditOpts = append(auditOpts, audit.WithMirror(cfg.Audit.MirrorBuffer))
	}
	auditLog := audit.NewLog(cfg.Audit.Capacity, auditOpts...)

	limiter, err := ratelimitservice.New(limiterStore(cfg, inf, log),
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithAuditLog(auditLog),
		ratelimitservice.WithMetrics(ratelimitmetrics.New(reg)),
	)
	if err != nil {
		return err
	}

	sender := smtp.New(cfg.Email)
	if !sender.Configured() {
		log.Warn("SMTP is not configured, queued email will be dropped")
	}
	queue, err := email.New(sender,
		email.WithCapacity(cfg.Email.Capacity),
		email.WithTTL(cfg.Email.JobTTL),
		email.WithTickInterval(cfg.Email.TickInterval),
		email.WithMinInterval(cfg.Email.MinInterval),
		email.WithMaxRetries(cfg.Email.MaxRetries),
		email.WithLogger(log),
		email.WithMetrics(email.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	var (
		deadlines     reminderDeadlineStore
		notifications notificationStore
		complianceOpt = []compliance.Option{compliance.WithLogger(log), compliance.WithAuditLog(auditLog)}
	)
	if cfg.Reminder.StoreBackend == config.BackendPostgres {
		store := compliancepostgres.New(inf.db)
		deadlines = store
		notifications = notificationpostgres.New(inf.db)
		complianceOpt = append(complianceOpt, compliance.WithTx(tx.NewRunner(inf.db)))
	} else {
		deadlines = compliancememory.New()
		notifications = notificationmemory.New()
	}
	complianceOpt = append(complianceOpt, compliance.WithLister(deadlines))
	complianceSvc, err := compliance.NewService(deadlines, complianceOpt...)
	if err != nil {
		return err
	}

	reminderOpts := []reminder.Option{
		reminder.WithLogger(log),
		reminder.WithAuditLog(auditLog),
		reminder.WithMetrics(reminder.NewMetrics(reg)),
		reminder.WithWindow(cfg.Reminder.LeadTime, cfg.Reminder.HalfWidth),
		reminder.WithDedupWindow(cfg.Reminder.DedupWindow),
		reminder.WithSchedule(cfg.Reminder.TickInterval, cfg.Reminder.InitialDelay),
	}
	if inf.kafka != nil {
		reminderOpts = append(reminderOpts, reminder.WithPublisher(kafkapublisher.New(inf.kafka)))
	}
	scheduler, err := reminder.New(deadlines, notifications, reminderClaims(cfg, inf, clk), queue, reminderOpts...)
	if err != nil {
		return err
	}

	sweeper, err := worker.New("ratelimit-sweep", cfg.RateLimit.SweepInterval, limiter.Sweep, worker.WithLogger(log))
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:        log,
		Tokens:        tokens,
		Limiter:       limiter,
		Email:         queue,
		Audit:         auditLog,
		Compliance:    complianceSvc,
		Reminders:     scheduler,
		Notifications: notifications,
		RateLimit:     limiter,
		Health:        healthChecks(inf),
		Gatherer:      reg,
		HTTPMetrics:   platformmetrics.New(reg),
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	if err := queue.Start(ctx); err != nil {
		return err
	}
	defer queue.Stop()
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()
	sweeper.Start(ctx)
	defer sweeper.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if cfg.Audit.MirrorPostgres {
		w := audit.NewWorker(auditpostgres.New(inf.db), auditLog.Mirror(), log)
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}

// reminderDeadlineStore is what both the compliance service and the
// reminder scheduler need from the deadline store.
type reminderDeadlineStore interface {
	compliance.DeadlineWriter
	compliance.DeadlineLister
	reminder.DeadlineReader
}

type notificationStore interface {
	reminder.NotificationStore
	httptransport.NotificationLister
}

func limiterStore(cfg config.Config, inf *infra, log *slog.Logger) ports.BucketStore {
	memory := bucket.New()
	if cfg.RateLimit.Backend != config.BackendRedis {
		return memory
	}
	breaker := circuit.New("ratelimit-redis")
	return bucket.NewResilient(bucket.NewRedis(inf.redis.Client, clock.Real{}), memory, breaker, log)
}

func reminderClaims(cfg config.Config, inf *infra, clk clock.Clock) reminder.Claims {
	switch cfg.Reminder.DedupBackend {
	case config.BackendRedis:
		return claimsredis.New(inf.redis.Client)
	case config.BackendPostgres:
		return claimspostgres.New(inf.db, clk)
	default:
		return claimsmemory.New(clk)
	}
}

func healthChecks(inf *infra) map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{}
	if inf.db != nil {
		checks["postgres"] = inf.db.PingContext
	}
	if inf.redis != nil {
		checks["redis"] = inf.redis.Health
	}
	if inf.kafka != nil {
		checks["kafka"] = inf.kafka.Health
	}
	return checks
}
