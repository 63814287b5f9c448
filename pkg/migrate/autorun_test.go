package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/internal/testutil"
	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/migrate"
)

func devConfig(env string, auto, sqlite bool) *config.Config {
	return &config.Config{
		App:          config.AppConfig{Env: env},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: auto, UseSQLite: sqlite},
	}
}

func TestStrategyFor(t *testing.T) {
	cases := []struct {
		name string
		cfg  *config.Config
		want migrate.Strategy
	}{
		{"prod never migrates", devConfig("prod", true, false), migrate.StrategyNone},
		{"dev without flag", devConfig("dev", false, true), migrate.StrategyNone},
		{"dev sqlite", devConfig("dev", true, true), migrate.StrategyGorm},
		{"dev postgres", devConfig("dev", true, false), migrate.StrategyGoose},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, migrate.StrategyFor(tc.cfg))
		})
	}
}

func TestMaybeRunDevBuildsSQLiteSchema(t *testing.T) {
	client := testutil.OpenDB(t)
	require.NoError(t, client.DB().Migrator().DropTable("outbox_dlq"))

	err := migrate.MaybeRunDev(context.Background(), devConfig("dev", true, true), logger.Nop(), client)
	require.NoError(t, err)
	assert.True(t, client.DB().Migrator().HasTable("outbox_dlq"))
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	client := testutil.OpenDB(t)
	require.NoError(t, client.DB().Migrator().DropTable("outbox_dlq"))

	err := migrate.MaybeRunDev(context.Background(), devConfig("prod", true, true), logger.Nop(), client)
	require.NoError(t, err)
	assert.False(t, client.DB().Migrator().HasTable("outbox_dlq"))
}
