package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/testutil"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
)

func TestDeadLetterCopiesRowAndTruncatesError(t *testing.T) {
	client := testutil.OpenDB(t)
	dlq := outbox.NewDLQRepository()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  10,
	}

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return dlq.DeadLetterTx(tx, row, enums.OutboxDLQReasonMaxAttempts, errors.New(strings.Repeat("x", 4096)))
	})
	require.NoError(t, err)

	var stored models.OutboxDLQ
	require.NoError(t, client.DB().Where("event_id = ?", row.ID).First(&stored).Error)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, stored.ErrorReason)
	assert.Equal(t, 10, stored.AttemptCount)
	assert.Equal(t, row.AggregateID, stored.AggregateID)
	require.NotNil(t, stored.ErrorMessage)
	assert.Len(t, *stored.ErrorMessage, 1024)
	assert.False(t, stored.FailedAt.IsZero())
}

func TestDeadLetterRequiresTransaction(t *testing.T) {
	err := outbox.NewDLQRepository().DeadLetterTx(nil, models.OutboxEvent{}, enums.OutboxDLQReasonNonRetryable, nil)
	assert.Error(t, err)
}
