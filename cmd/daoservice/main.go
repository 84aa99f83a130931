package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dao-service/core"
	"dao-service/pkg/config"
	"dao-service/server"
)

func main() {
	rootCmd := &cobra.Command{Use: "daoservice", Short: "DAO backend ingestion and projection service"}
	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(refreshChallengeCmd())
	rootCmd.AddCommand(syncAccountsCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env bundles the shared service dependencies.
type env struct {
	cfg    *config.Config
	db     *gorm.DB
	store  *core.Store
	cache  *core.Cache
	alerts *logrus.Logger
	log    *logrus.Logger
}

func setup(needRedis bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logrus.StandardLogger()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	alerts := core.NewAlertLogger(cfg.LogLevel, cfg.SlackDefaultURL, map[string]string{
		"BLOCKCHAIN_URL":    cfg.Chain.URL,
		"APPLICATION_STAGE": cfg.ApplicationStage,
	})

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN()), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, db: db, store: core.NewStore(db), alerts: alerts, log: log}
	if needRedis {
		e.cache = core.NewCache(cfg.RedisAddr())
	}
	return e, nil
}

// migrate runs the schema migration, under a shared lock when a cache is
// configured so multiple containers starting at once do not race. Without a
// cache the migration runs unlocked.
func (e *env) migrate(ctx context.Context) error {
	if e.cache == nil {
		return e.store.Migrate()
	}
	return e.cache.WithLock(ctx, "running_migrations", e.store.Migrate)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "start the blockchain ingestor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			if err := e.migrate(ctx); err != nil {
				return err
			}

			chain, err := core.NewChainClient(e.cfg.Chain.URL, e.cfg.Chain.TypeRegistryPreset, e.log)
			if err != nil {
				return err
			}
			defer chain.Close()

			files, err := core.NewFileHandler(e.cfg)
			if err != nil {
				// unknown algorithm or upload driver is fatal
				return err
			}
			tasks := core.NewTasks(e.store, files, e.alerts)
			tasks.Start()
			defer tasks.Stop()

			handler := core.NewEventHandler(e.db, chain, e.cache, tasks, e.alerts)
			retrier := &core.Retrier{Delays: e.cfg.RetryDelays, Alerts: e.alerts}
			ingestor := core.NewIngestor(e.db, chain, handler, retrier, e.log, e.alerts, e.cfg.BlockCreationInterval)

			if err := ingestor.SyncInitialAccounts(ctx); err != nil {
				return err
			}
			return ingestor.Listen(ctx)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the read-only projection API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			if err := e.migrate(ctx); err != nil {
				return err
			}
			checkChain := func() bool {
				chain, err := core.NewChainClient(e.cfg.Chain.URL, e.cfg.Chain.TypeRegistryPreset, e.log)
				if err != nil {
					return false
				}
				_ = chain.Close()
				return true
			}
			router := server.New(e.store, e.cache, checkChain)
			e.log.Infof("projection api listening on %s", e.cfg.Server.Port)
			return server.ListenAndServe(e.cfg.Server.Port, router)
		},
	}
}

func refreshChallengeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-challenge",
		Short: "rotate the process wide signing challenge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(false)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			if err := e.migrate(ctx); err != nil {
				return err
			}
			return core.RefreshChallenge(ctx, e.db, e.cfg.ChallengeLifetime, e.alerts)
		},
	}
}

func syncAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-accounts",
		Short: "seed the account table from the chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(false)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			if err := e.migrate(ctx); err != nil {
				return err
			}
			chain, err := core.NewChainClient(e.cfg.Chain.URL, e.cfg.Chain.TypeRegistryPreset, e.log)
			if err != nil {
				return err
			}
			defer chain.Close()
			retrier := &core.Retrier{Delays: e.cfg.RetryDelays, Alerts: e.alerts}
			ingestor := core.NewIngestor(e.db, chain, nil, retrier, e.log, e.alerts, e.cfg.BlockCreationInterval)
			return ingestor.SyncInitialAccounts(ctx)
		},
	}
}
