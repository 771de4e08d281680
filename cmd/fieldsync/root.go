package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldsync/backend/internal/cache"
	"github.com/fieldsync/backend/internal/config"
	"github.com/fieldsync/backend/internal/connectivity"
	"github.com/fieldsync/backend/internal/db"
	"github.com/fieldsync/backend/internal/gateway"
	"github.com/fieldsync/backend/internal/logging"
	"github.com/fieldsync/backend/internal/queue"
	"github.com/fieldsync/backend/internal/services"
	syncpkg "github.com/fieldsync/backend/internal/sync"
)

const version = "0.3.0"

// app is the composition root: everything the commands need, wired once.
type app struct {
	cfg         *config.Config
	database    *db.DB
	queue       *queue.ActionQueue
	cache       *cache.DeliveryCache
	monitor     *connectivity.Monitor
	coordinator *syncpkg.Coordinator
	service     *services.DeliveryService
}

func newApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		database.Close()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		database.Close()
		return nil, err
	}

	tokens := gateway.NewMemoryTokenStore()
	client := gateway.NewClient(gateway.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout(),
	}, tokens)

	q := queue.New(db.NewActionStore(database.DB))
	deliveryCache := cache.New(db.NewCacheStore(database.DB))
	monitor := connectivity.NewMonitor(nil)
	coordinator := syncpkg.NewCoordinator(q, client, monitor, deliveryCache)
	service := services.NewDeliveryService(q, deliveryCache, client, monitor, coordinator, tokens)

	return &app{
		cfg:         cfg,
		database:    database,
		queue:       q,
		cache:       deliveryCache,
		monitor:     monitor,
		coordinator: coordinator,
		service:     service,
	}, nil
}

func (a *app) Close() error {
	return a.database.Close()
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "fieldsync",
		Short:   "Offline-first sync core for field deliveries",
		Long:    "fieldsync manages the durable offline action queue and delivery cache\nused by the field-delivery client.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logging.Init(os.Stderr, logging.LogLevel(cfg.LogLevel))
			cmd.SetContext(withConfig(cmd.Context(), cfg))
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newQueueCmd())
	rootCmd.AddCommand(newCacheCmd())

	return rootCmd
}
