package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
)

// DefaultDir is where create and validate write and read. Database commands
// given this dir run the copy embedded in the binary instead.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Step reports one migration a command applied, rolled back or, for status,
// inspected.
type Step struct {
	Version  int64
	Path     string
	State    string
	Duration time.Duration
}

// Embedded exposes the bundled migration files.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func provider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	fsys := Embedded()
	switch dir {
	case "":
		return nil, errors.New("dir is required")
	case DefaultDir:
	default:
		fsys = os.DirFS(dir)
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return p, nil
}

// Run executes up, down, redo or status.
func Run(ctx context.Context, db *sql.DB, dir, command string) ([]Step, error) {
	p, err := provider(db, dir)
	if err != nil {
		return nil, err
	}
	switch command {
	case "up":
		return applied(p.Up(ctx))
	case "down":
		return applied(one(p.Down(ctx)))
	case "redo":
		down, err := applied(one(p.Down(ctx)))
		if err != nil {
			return down, err
		}
		up, err := applied(one(p.UpByOne(ctx)))
		return append(down, up...), err
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose status: %w", err)
		}
		steps := make([]Step, 0, len(statuses))
		for _, s := range statuses {
			steps = append(steps, Step{Version: s.Source.Version, Path: s.Source.Path, State: string(s.State)})
		}
		return steps, nil
	default:
		return nil, fmt.Errorf("unknown migrate command %q", command)
	}
}

// MigrateToVersion moves up or down until the database sits at target.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, target string) ([]Step, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	p, err := provider(db, dir)
	if err != nil {
		return nil, err
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < version:
		return applied(p.UpTo(ctx, version))
	case current > version:
		return applied(p.DownTo(ctx, version))
	}
	return nil, nil
}

func one(res *goose.MigrationResult, err error) ([]*goose.MigrationResult, error) {
	if res == nil {
		return nil, err
	}
	return []*goose.MigrationResult{res}, err
}

func applied(results []*goose.MigrationResult, err error) ([]Step, error) {
	steps := make([]Step, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		steps = append(steps, Step{
			Version:  r.Source.Version,
			Path:     r.Source.Path,
			State:    r.Direction,
			Duration: r.Duration,
		})
	}
	if err != nil {
		return steps, fmt.Errorf("goose: %w", err)
	}
	return steps, nil
}

// AutoMigrate builds the schema from the gorm models. Only sqlite uses it;
// postgres always goes through goose.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("gorm automigrate: %w", err)
	}
	return nil
}
