package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/internal/testutil"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
)

func newService(t *testing.T) (*db.Client, Service) {
	t.Helper()
	client := testutil.OpenDB(t)
	svc, err := NewService(NewRepository(client.DB()), audit.NewService(client.DB(), logger.Nop()))
	require.NoError(t, err)
	return client, svc
}

func actorFor(u *models.User) access.Actor {
	return access.Actor{UserID: u.ID, Role: u.Role}
}

func TestUpdateProfileTrimsName(t *testing.T) {
	client, svc := newService(t)
	user := testutil.CreateUser(t, client, nil)

	dto, err := svc.UpdateProfile(context.Background(), user.ID, UpdateProfileInput{Name: "  Ada Lovelace "})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", dto.Name)

	_, err = svc.UpdateProfile(context.Background(), user.ID, UpdateProfileInput{Name: "   "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUsageMasksKeys(t *testing.T) {
	client, svc := newService(t)
	user := testutil.CreateUser(t, client, func(u *models.User) {
		u.Subscription = enums.PlanPro
		u.GLMAPIKey = testutil.Ptr("glm-abcdefghijklmnop")
		u.TokensUsed = 500
		u.TokensRemaining = 9500
	})

	usage, err := svc.Usage(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PlanPro, usage.Plan)
	assert.EqualValues(t, 500, usage.TokensUsed)
	assert.Equal(t, "glm-************mnop", usage.Keys[enums.KeyTypeGLM])
	assert.NotContains(t, usage.Keys, enums.KeyTypeBytez)
}

func TestSetRoleRules(t *testing.T) {
	client, svc := newService(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, client, func(u *models.User) { u.Role = enums.RoleAdmin })
	super := testutil.CreateUser(t, client, func(u *models.User) { u.Role = enums.RoleSuperadmin })
	target := testutil.CreateUser(t, client, nil)
	otherAdmin := testutil.CreateUser(t, client, func(u *models.User) { u.Role = enums.RoleAdmin })

	dto, err := svc.SetRole(ctx, actorFor(admin), target.ID, enums.RoleDeveloper)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleDeveloper, dto.Role)

	_, err = svc.SetRole(ctx, actorFor(admin), target.ID, enums.RoleAdmin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.SetRole(ctx, actorFor(admin), otherAdmin.ID, enums.RoleUser)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	dto, err = svc.SetRole(ctx, actorFor(super), target.ID, enums.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleAdmin, dto.Role)

	_, err = svc.SetRole(ctx, actorFor(super), super.ID, enums.RoleUser)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	var logs []models.AuditLog
	require.NoError(t, client.DB().Where("action = ?", enums.AuditUserRoleChanged).Find(&logs).Error)
	assert.Len(t, logs, 2)
}

func TestSetActive(t *testing.T) {
	client, svc := newService(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, client, func(u *models.User) { u.Role = enums.RoleAdmin })
	target := testutil.CreateUser(t, client, nil)

	dto, err := svc.SetActive(ctx, actorFor(admin), target.ID, false)
	require.NoError(t, err)
	assert.False(t, dto.IsActive)

	var stored models.User
	require.NoError(t, client.DB().First(&stored, "id = ?", target.ID).Error)
	assert.False(t, stored.IsActive)

	_, err = svc.SetActive(ctx, actorFor(admin), admin.ID, false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestListUsersFilters(t *testing.T) {
	client, svc := newService(t)
	for i := 0; i < 3; i++ {
		testutil.CreateUser(t, client, func(u *models.User) { u.Role = enums.RoleDeveloper })
	}
	testutil.CreateUser(t, client, nil)

	role := enums.RoleDeveloper
	res, err := svc.ListUsers(context.Background(), ListParams{Role: &role, Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	require.NotEmpty(t, res.NextCursor)

	res, err = svc.ListUsers(context.Background(), ListParams{Role: &role, Params: pagination.Params{Limit: 2, Cursor: res.NextCursor}})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Empty(t, res.NextCursor)
}

func TestGetMeNotFound(t *testing.T) {
	_, svc := newService(t)
	_, err := svc.GetMe(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
