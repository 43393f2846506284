package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ispkit/notify/internal/api"
	"github.com/ispkit/notify/internal/db"
	"github.com/ispkit/notify/internal/jobs"
	"github.com/ispkit/notify/pkg/config"
	"github.com/ispkit/notify/pkg/devices"
	"github.com/ispkit/notify/pkg/dispatch"
	"github.com/ispkit/notify/pkg/fanout"
	"github.com/ispkit/notify/pkg/httpserver"
	"github.com/ispkit/notify/pkg/jobqueue"
	"github.com/ispkit/notify/pkg/logger"
	"github.com/ispkit/notify/pkg/mailer"
	"github.com/ispkit/notify/pkg/pg"
	"github.com/ispkit/notify/pkg/policy"
	redisconn "github.com/ispkit/notify/pkg/redis"
	"github.com/ispkit/notify/pkg/scheduler"
)

type appConfig struct {
	ServiceName string        `env:"SERVICE_NAME" envDefault:"notifyd"`
	LogLevel    slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat   logger.Format `env:"LOG_FORMAT" envDefault:"json"`

	HTTP   httpserver.Config
	PG     pg.Config
	Redis  redisconn.Config
	Queue  jobqueue.Config
	Fanout fanout.Config
	Mailer mailer.Config

	DeviceCleanupWindow   time.Duration `env:"DEVICE_CLEANUP_WINDOW" envDefault:"2160h"`
	DeviceCleanupInterval time.Duration `env:"DEVICE_CLEANUP_INTERVAL" envDefault:"24h"`
	RetentionInterval     time.Duration `env:"RETENTION_SWEEP_INTERVAL" envDefault:"1h"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
		logger.WithService(cfg.ServiceName),
	)
	logger.SetAsDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("service terminated", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg appConfig, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrations, err := fs.Sub(db.Migrations, "migrations")
	if err != nil {
		return err
	}
	if err := pg.Migrate(ctx, pool, migrations, cfg.PG, log); err != nil {
		return err
	}

	rdb, err := redisconn.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	// Delivery job queue and its workers.
	store := jobqueue.NewMemoryStore()
	defer func() { _ = store.Close() }()

	queueLog := log.With(logger.Component("jobqueue"))
	queue, err := jobqueue.NewQueue(store, jobqueue.WithQueueLogger(queueLog))
	if err != nil {
		return err
	}

	worker, err := jobqueue.NewWorker(queue,
		jobqueue.WithPollInterval(cfg.Queue.PollInterval),
		jobqueue.WithProcessTimeout(cfg.Queue.ProcessTimeout),
		jobqueue.WithConcurrency(cfg.Queue.Concurrency),
		jobqueue.WithWorkerLogger(queueLog),
	)
	if err != nil {
		return err
	}

	// Messaging transport: Postmark when configured, a local file drop
	// otherwise. Non-email recipients always fall through to simulated
	// sends so OTP jobs keep completing.
	var sender mailer.Sender
	if cfg.Mailer.Configured() {
		sender, err = mailer.NewPostmarkSender(cfg.Mailer)
		if err != nil {
			return err
		}
	} else {
		sender = mailer.NewFileSender(cfg.Mailer.DropDir)
		log.Warn("postmark not configured, dropping outbound email to disk",
			slog.String("dir", cfg.Mailer.DropDir))
	}
	messenger := jobs.EmailMessenger{
		Sender:   sender,
		Fallback: jobs.SimulatedMessenger{Log: log},
	}

	resolver := dispatch.NewStaticResolver()
	worker.RegisterHandlers(jobs.Handlers(messenger, resolver, log)...)

	// Real-time fan-out over redis pub/sub.
	fanoutLog := log.With(logger.Component("fanout"))
	bridge := fanout.NewRedisBridge(rdb,
		fanout.WithBusChannel(cfg.Fanout.BusChannel),
		fanout.WithBridgeLogger(fanoutLog),
	)
	hub, err := fanout.NewHub(bridge,
		fanout.WithSessionBuffer(cfg.Fanout.SessionBuffer),
		fanout.WithHubLogger(fanoutLog),
	)
	if err != nil {
		return err
	}
	defer func() { _ = hub.Close() }()

	wsHandler := fanout.NewWSHandler(hub,
		fanout.WithIdleTimeout(cfg.Fanout.IdleTimeout),
		fanout.WithWriteTimeout(cfg.Fanout.WriteTimeout),
		fanout.WithWSLogger(fanoutLog),
	)

	// Policy engine and device registry over postgres.
	engine, err := policy.NewEngine(policy.NewPostgresStore(pool), policy.WithEngineLogger(log.With(logger.Component("policy"))))
	if err != nil {
		return err
	}

	registry, err := devices.NewRegistry(devices.NewPostgresStore(pool), devices.WithRegistryLogger(log.With(logger.Component("devices"))))
	if err != nil {
		return err
	}

	records := dispatch.NewPostgresRecordStore(pool)
	dispatcher := dispatch.NewDispatcher(engine, hub, registry, queue, records,
		dispatch.WithResolver(resolver),
		dispatch.WithDispatcherLogger(log.With(logger.Component("dispatch"))),
	)

	// Background sweeps. The notification inbox is an external
	// collaborator; the retention sweep is only scheduled once a record
	// store is wired through policy.WithRetentionStore.
	sched := scheduler.New(scheduler.WithLogger(log.With(logger.Component("scheduler"))))
	if engine.RetentionEnabled() {
		if err := sched.Every(cfg.RetentionInterval, "settings retention sweep", engine.RetentionTask()); err != nil {
			return err
		}
	} else {
		log.Info("retention sweep disabled, no notification record store configured")
	}
	if err := sched.Every(cfg.DeviceCleanupInterval, "inactive device cleanup", registry.CleanupTask(cfg.DeviceCleanupWindow)); err != nil {
		return err
	}

	router := api.NewRouter(ctx, api.Deps{
		Queue:    api.NewQueueHandler(queue),
		Settings: api.NewSettingsHandler(engine),
		Devices:  api.NewDevicesHandler(registry),
		Events:   api.NewEventsHandler(dispatcher, records),
		WS:       wsHandler,
		Log:      log,
		HealthChecks: []func(context.Context) error{
			pg.Healthcheck(pool),
			redisconn.Healthcheck(rdb),
		},
	})

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(sched.Run(ctx))
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx, router) })

	return g.Wait()
}
