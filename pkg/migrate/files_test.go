package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)

	path, err := createSQLMigration(dir, "Add Item Tags!", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260402083000_add_item_tags.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	assert.Contains(t, string(body), "-- rollback add_item_tags")
	require.NoError(t, ValidateDir(dir))

	_, err = createSQLMigration(dir, "add item tags", now)
	assert.Error(t, err, "existing file must not be overwritten")

	_, err = createSQLMigration(dir, "!!!", now)
	assert.Error(t, err)
}

func TestValidateFSReportsEveryProblem(t *testing.T) {
	fsys := fstest.MapFS{
		"20260301090000_ok.sql":       {Data: []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\n")},
		"20260301090000_dup.sql":      {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"20261399000000_badtime.sql":  {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"20260301090100_no_down.sql":  {Data: []byte("-- +goose Up\n")},
		"20260301090200_reversed.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		"create_things.sql":           {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"README.md":                   {Data: []byte("ignored")},
	}

	err := ValidateFS(fsys)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"already used by", "not a timestamp", "missing -- +goose Down", "precedes Up", "create_things.sql"} {
		assert.Contains(t, msg, want)
	}
}
