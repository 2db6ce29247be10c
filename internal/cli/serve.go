package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"timebank-engine/internal/clock"
	"timebank-engine/internal/config"
	"timebank-engine/internal/domain"
	"timebank-engine/internal/engine"
	"timebank-engine/internal/infra/memory"
	pgarchive "timebank-engine/internal/infra/postgres"
	redisstore "timebank-engine/internal/infra/redis"
	transport "timebank-engine/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the engine daemon.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the time-bank engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, *port)
		},
	}
}

func runServe(ctx context.Context, configPath, portFlag string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var store engine.KVStore = memory.NewStore()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = redisstore.NewStore(client)
		logger.Info("using redis persistence", "addr", cfg.Redis.Addr)
	} else {
		logger.Warn("no redis configured, state will not survive restarts")
	}

	eng := engine.New(store, clock.Real{}, logger, engineConfig(cfg))

	// The archive must subscribe before Load: the startup boundary check
	// closes a day finished while the process was down and publishes its
	// summary exactly once.
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		attachArchive(eng, pgarchive.NewArchive(pool), logger)
	}

	eng.Load(ctx)

	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(engineCtx) }()

	wsHandler := transport.NewWSHandler(eng, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/status", wsHandler.ServeStatus)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting time-bank engine", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := server.Shutdown(shutdownCtx)

	stopEngine()
	<-engineDone
	eng.Flush()
	return shutdownErr
}

// attachArchive subscribes the Postgres history sink to daily resets.
// Archive writes are best-effort: a failure is logged and the engine keeps
// going.
func attachArchive(eng *engine.Engine, archive *pgarchive.Archive, logger *slog.Logger) {
	eng.Notifier().Subscribe(domain.EventDailyReset, func(ev engine.Event) {
		summary, ok := ev.Payload.(domain.DailyResetSummary)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := archive.SaveDay(ctx, summary.Closed); err != nil {
			logger.Warn("daily history archive failed", "day", summary.Closed.Date, "error", err)
		}
	})
}

func engineConfig(cfg config.Config) engine.Config {
	rewards := make(map[string]time.Duration, len(cfg.Engine.Rewards))
	for category, raw := range cfg.Engine.Rewards {
		rewards[category] = config.DurationOr(raw, time.Minute)
	}
	return engine.Config{
		InitialGrant:    config.DurationOr(cfg.Engine.InitialGrant, 30*time.Minute),
		TickInterval:    config.DurationOr(cfg.Engine.Tick, time.Second),
		PenaltyInterval: config.DurationOr(cfg.Engine.PenaltyTick, 10*time.Second),
		ResetInterval:   config.DurationOr(cfg.Engine.ResetTick, time.Minute),
		Rewards: engine.RewardPolicy{
			Default:     config.DurationOr(cfg.Engine.RewardDefault, time.Minute),
			ByCategory:  rewards,
			StreakBonus: config.DurationOr(cfg.Engine.RewardStreakBonus, 30*time.Second),
		},
	}
}
