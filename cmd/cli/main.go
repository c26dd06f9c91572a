package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/cmd/cli/commands"
	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/clients/redisclient"
	"github.com/jakechorley/clinic-planner/pkg/postgres"
	"github.com/jakechorley/clinic-planner/pkg/utils/logging"
	"github.com/jakechorley/clinic-planner/pkg/utils/telemetry"
)

var (
	env     string
	verbose bool
	app     = &commands.AppContext{}

	database *postgres.DB
	redis    *redisclient.Client
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "planner",
		Short: "Clinic planner - Assign staff to clinic half-days",
		Long:  `A CLI tool that assigns clinic staff to locations, surgical roles and closing duties for each half-day.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			shutdown()
		},
		SilenceUsage: true,
	}

	// Add persistent flags
	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to the console")
	rootCmd.MarkPersistentFlagRequired("env")
	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	// Add all commands
	rootCmd.AddCommand(commands.OptimizeCmd(app))
	rootCmd.AddCommand(commands.PreviewCmd(app))
	rootCmd.AddCommand(commands.DraftsCmd(app))
	rootCmd.AddCommand(commands.MigrateCmd(app))

	if err := rootCmd.Execute(); err != nil {
		shutdown()
		os.Exit(1)
	}
}

// initApp sets up logger, config, telemetry, database and the optional Redis client
func initApp() error {
	var err error
	app.Ctx = context.Background()

	// Initialize logger
	app.Logger, err = logging.InitLogger(env, logging.Options{Verbose: verbose})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Logger.Info("Starting application", zap.String("environment", env))

	// Load configuration
	app.Logger.Info("Loading configuration")
	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully", zap.String("mode", app.Cfg.Mode))

	// Register metric instruments
	if _, err := telemetry.Instruments(); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	// Connect to database
	app.Logger.Info("Connecting to database")
	database, err = postgres.NewDB(app.Ctx, app.Cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.Database = database
	app.Migrator = database
	app.Logger.Debug("Database connected successfully")

	// Connect to Redis when configured
	if app.Cfg.RedisAddr == "" {
		app.Logger.Info("No Redis configured, running without week locks or notifications")
		return nil
	}

	app.Logger.Info("Connecting to Redis", zap.String("addr", app.Cfg.RedisAddr))
	redis, err = redisclient.NewClient(app.Ctx, app.Cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.Locker = redisclient.NewWeekLock(redis, redisclient.DefaultLockTTL)
	app.Notifier = redisclient.NewNotifier(redis)
	app.Logger.Debug("Redis connected successfully")

	return nil
}

// normalizeFlagName accepts --max_nodes style spellings for --max-nodes
func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func shutdown() {
	if redis != nil {
		if err := redis.Close(); err != nil && app.Logger != nil {
			app.Logger.Warn("Failed to close Redis connection", zap.Error(err))
		}
		redis = nil
	}
	if database != nil {
		database.Close()
		database = nil
	}
	if app.Logger != nil {
		app.Logger.Sync()
	}
}
