package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/testutil"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
)

func TestRepositoryUpdatesReportMissingRows(t *testing.T) {
	client := testutil.OpenDB(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	assert.ErrorIs(t, repo.UpdateName(ctx, uuid.New(), "ghost"), gorm.ErrRecordNotFound)
	assert.ErrorIs(t, repo.UpdateLastLogin(ctx, uuid.New(), time.Now()), gorm.ErrRecordNotFound)

	user := testutil.CreateUser(t, client, nil)
	require.NoError(t, repo.UpdateActive(ctx, user.ID, false))
	got, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestRepositoryListSearchIgnoresCase(t *testing.T) {
	client := testutil.OpenDB(t)
	repo := NewRepository(client.DB())
	testutil.CreateUser(t, client, func(u *models.User) { u.Name = "Ada Lovelace" })
	testutil.CreateUser(t, client, func(u *models.User) { u.Name = "Grace Hopper" })

	rows, err := repo.List(context.Background(), listQuery{search: "lovelace", limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada Lovelace", rows[0].Name)
}
