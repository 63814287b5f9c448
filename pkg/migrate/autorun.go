package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

// Strategy is how a process brings its schema up to date at boot.
type Strategy string

const (
	StrategyNone  Strategy = "none"
	StrategyGorm  Strategy = "gorm"
	StrategyGoose Strategy = "goose"
)

// StrategyFor picks the boot migration for cfg. Only dev environments with
// COMPONENTRY_AUTO_MIGRATE migrate themselves; sqlite has no goose history so
// it is built from the models.
func StrategyFor(cfg *config.Config) Strategy {
	switch {
	case !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate:
		return StrategyNone
	case cfg.FeatureFlags.UseSQLite:
		return StrategyGorm
	default:
		return StrategyGoose
	}
}

// MaybeRunDev applies StrategyFor(cfg) against client.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	strategy := StrategyFor(cfg)
	if strategy == StrategyNone {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "strategy": string(strategy)})
	logg.Info(ctx, "applying dev migrations")

	switch strategy {
	case StrategyGorm:
		if err := AutoMigrate(client.DB()); err != nil {
			return err
		}
	case StrategyGoose:
		sqlDB, err := client.DB().DB()
		if err != nil {
			return fmt.Errorf("unwrap sql.DB: %w", err)
		}
		steps, err := Run(ctx, sqlDB, DefaultDir, "up")
		if err != nil {
			return err
		}
		ctx = logg.WithField(ctx, "applied", len(steps))
	}
	logg.Info(ctx, "dev migrations applied")
	return nil
}
