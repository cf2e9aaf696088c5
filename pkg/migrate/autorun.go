package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/dealroom-backend/pkg/config"
	"github.com/angelmondragon/dealroom-backend/pkg/db"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup when running in dev
// with the auto-migrate flag on. Every binary calls it, so the advisory lock
// in Runner serialises them.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, nil, logg)
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": "embedded"})
	logg.Info(ctx, "migrations.autorun.start")
	if err := runner.Up(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "migrations.autorun.complete")
	return nil
}
