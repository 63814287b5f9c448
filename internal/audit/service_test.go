package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/testutil"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

func TestRecordPersistsEntryWithContextIP(t *testing.T) {
	client := testutil.OpenDB(t)
	svc := NewService(client.DB(), logger.Nop())
	actor := uuid.New()

	ctx := WithClientIP(context.Background(), "10.0.0.1")
	svc.Record(ctx, Entry{
		ActorID:      &actor,
		ActorRole:    enums.RoleAdmin,
		Action:       enums.AuditUserRoleChanged,
		ResourceType: "user",
		ResourceID:   "u1",
		Metadata:     map[string]any{"from": "user", "to": "developer"},
	})

	var rows []models.AuditLog
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "10.0.0.1", rows[0].IPAddress)
	assert.Equal(t, "admin", rows[0].ActorRole)
	assert.JSONEq(t, `{"from":"user","to":"developer"}`, string(rows[0].Metadata))
}

func TestRecordSwallowsFailures(t *testing.T) {
	client := testutil.OpenDB(t)
	require.NoError(t, client.DB().Migrator().DropTable(&models.AuditLog{}))
	svc := NewService(client.DB(), logger.Nop())

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), Entry{Action: enums.AuditUserLogin})
	})
}

func TestRecordTxFailureDoesNotAbortCaller(t *testing.T) {
	client := testutil.OpenDB(t)
	require.NoError(t, client.DB().Migrator().DropTable(&models.AuditLog{}))
	svc := NewService(client.DB(), logger.Nop())

	user := &models.User{Email: "tx@example.com", PasswordHash: "x", Role: enums.RoleUser, Subscription: enums.PlanFree}
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		svc.RecordTx(context.Background(), tx, Entry{Action: enums.AuditPaymentVerified})
		return tx.Create(user).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, client.DB().Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRecordTxRollsBackWithCaller(t *testing.T) {
	client := testutil.OpenDB(t)
	svc := NewService(client.DB(), logger.Nop())

	_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		svc.RecordTx(context.Background(), tx, Entry{Action: enums.AuditPaymentVerified})
		return assert.AnError
	})

	var count int64
	require.NoError(t, client.DB().Model(&models.AuditLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListFiltersByAction(t *testing.T) {
	client := testutil.OpenDB(t)
	svc := NewService(client.DB(), logger.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.Record(ctx, Entry{Action: enums.AuditKeyAdded, ResourceType: "api_key"})
	}
	svc.Record(ctx, Entry{Action: enums.AuditUserLogin, ResourceType: "user"})

	res, err := svc.List(ctx, ListParams{Action: enums.AuditKeyAdded, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.NotEmpty(t, res.NextCursor)

	_, err = svc.List(ctx, ListParams{Cursor: "not-base64!"})
	assert.Error(t, err)
}
