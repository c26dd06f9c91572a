package commands

import (
	"context"

	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/services"
	"github.com/jakechorley/clinic-planner/pkg/db"
)

// Migrator applies pending schema migrations
type Migrator interface {
	RunMigrations(ctx context.Context) error
}

// AppContext holds the application dependencies shared across all commands.
// Locker and Notifier are nil when no Redis server is configured.
type AppContext struct {
	Cfg      *config.Config
	Database db.Database
	Migrator Migrator
	Locker   services.WeekLocker
	Notifier services.ChangeNotifier
	Logger   *zap.Logger
	Ctx      context.Context
}
