package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/migrate"
)

// OpenDB returns a migrated, isolated in-memory database. A single connection
// keeps sqlite from reporting table locks when tests run transactions.
func OpenDB(t *testing.T) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.AutoMigrate(conn); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db.NewFromGorm(conn)
}

// CreateUser inserts a user with sensible defaults; mutate adjusts fields before insert.
func CreateUser(t *testing.T, client *db.Client, mutate func(*models.User)) *models.User {
	t.Helper()

	u := &models.User{
		Email:           fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		PasswordHash:    "hash",
		Name:            "Test User",
		Role:            enums.RoleUser,
		IsActive:        true,
		Subscription:    enums.PlanFree,
		TokensLimit:     10000,
		TokensRemaining: 10000,
	}
	if mutate != nil {
		mutate(u)
	}
	if err := client.DB().Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreateTemplate inserts a marketplace template owned by ownerID.
func CreateTemplate(t *testing.T, client *db.Client, ownerID uuid.UUID, mutate func(*models.Template)) *models.Template {
	t.Helper()

	tpl := &models.Template{ContentFields: models.ContentFields{
		OwnerID:     ownerID,
		Title:       "Landing Page",
		Slug:        "landing-page-" + uuid.NewString()[:6],
		Price:       49900,
		Status:      enums.ContentStatusApproved,
		PreviewURL:  "https://cdn.example.com/preview.png",
		DownloadURL: "https://cdn.example.com/landing.zip",
	}}
	if mutate != nil {
		mutate(tpl)
	}
	if err := client.DB().Create(tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tpl
}

func Ptr[T any](v T) *T { return &v }
