package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"discord-automod/internal/bot"
	"discord-automod/internal/cache"
	"discord-automod/internal/commands"
	"discord-automod/internal/config"
	"discord-automod/internal/database"
	"discord-automod/internal/engine/acl"
	"discord-automod/internal/engine/cde"
	"discord-automod/internal/engine/escalation"
	"discord-automod/internal/engine/ledger"
	"discord-automod/internal/engine/matcher"
	"discord-automod/internal/engine/pattern"
	"discord-automod/internal/engine/performance"
	"discord-automod/internal/models"
	"discord-automod/internal/presets"
	"discord-automod/internal/redis"
	"discord-automod/internal/services"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	// Trade memory for fewer GC pauses on the evaluation path
	debug.SetGCPercent(200)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("automod stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	db, err := database.NewDatabase(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("postgres connected", zap.String("host", cfg.Postgres.Host))
	db.StartPreparedStatementRefresher(ctx)

	// Redis is optional: without it the cache is L1 only and markers live in postgres
	var l2 cache.Remote
	var markers escalation.MarkerStore = db.Markers()
	pingers := []commands.Pinger{{
		Name: "Postgres",
		Ping: func(context.Context) error { return db.Ping() },
	}}
	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, cfg.Redis, logger.Named("redis"))
		if err != nil {
			return err
		}
		defer rdb.Close()
		l2 = rdb
		markers = rdb.Markers()
		pingers = append(pingers, commands.Pinger{Name: "Redis", Ping: rdb.Ping})
	}

	snapshots, err := cache.New(db, l2, cache.Config{DefaultTTL: cfg.Engine.CacheTTL()}, logger)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	compiler, err := pattern.NewCompiler(pattern.Options{
		Timeout:     cfg.Engine.PatternTimeout(),
		MaxLength:   cfg.Engine.MaxPatternLength,
		MaxInFlight: int64(cfg.Engine.MaxConcurrentMatches),
	})
	if err != nil {
		return err
	}
	defer compiler.Close()

	catalogue, err := presets.Builtin()
	if err != nil {
		return err
	}

	b, err := bot.New(bot.Options{
		Token:       cfg.Token,
		Logger:      logger,
		IngestQueue: cfg.Engine.IngestQueue,
		Workers:     cfg.Engine.IngestWorkers,
		EvalTimeout: cfg.Engine.EvalTimeout(),
	})
	if err != nil {
		return err
	}

	modlog := acl.NewModLog(b.Session, snapshots, logger, cfg.Engine.ModLogQueue)
	executor := acl.NewExecutor(b.Session, modlog, logger, cfg.Engine.ExecutorQueue, cfg.Engine.ExecutorWorkers)

	m := matcher.New(compiler,
		matcher.WithLogger(logger.Named("matcher")),
		matcher.WithFaultHandler(func(f models.Fault) {
			performance.RecordFault(f.Kind)
			modlog.ReportFault(f)
		}),
	)
	engine := cde.NewEngine(
		snapshots,
		snapshots,
		m,
		ledger.New(db.Ledger(), logger.Named("ledger")),
		escalation.NewEvaluator(markers, logger.Named("escalation")),
		logger.Named("engine"),
	)

	b.Engine = engine
	b.Executor = executor
	b.Commands = commands.NewRegistry(catalogue, pingers...)
	b.Automod = services.NewAutomodService(db, db, snapshots, compiler, catalogue, engine, executor, logger.Named("automod"))

	// Workers drain on shutdown, so they run on a context that outlives ctx
	workCtx, stopWork := context.WithCancel(context.Background())
	modlog.Start(workCtx)
	executor.Start(workCtx)

	if cfg.MetricsAddr != "" {
		performance.Serve(ctx, cfg.MetricsAddr, logger)
	}
	performance.StartPeriodicMetrics(ctx, 15*time.Second)

	if err := b.Start(ctx); err != nil {
		stopWork()
		return err
	}
	logger.Info("automod running", zap.Int("presets", len(catalogue.IDs())))

	<-ctx.Done()

	// Stop intake first, let queued evaluations finish, then the executor
	if err := b.Close(); err != nil {
		logger.Warn("session close failed", zap.Error(err))
	}
	stopWork()
	executor.Wait()
	return nil
}
