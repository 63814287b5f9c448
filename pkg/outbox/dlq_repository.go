package outbox

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// DLQRepository copies outbox rows the relay gave up on into outbox_dlq so
// they can be inspected and replayed by hand.
type DLQRepository struct {
	now func() time.Time
}

func NewDLQRepository() *DLQRepository {
	return &DLQRepository{now: time.Now}
}

// DeadLetterTx snapshots row with the failure that ended it. It must share the
// transaction that marks the row terminal.
func (r *DLQRepository) DeadLetterTx(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	var msg *string
	if cause != nil {
		truncated := truncateError(cause)
		msg = &truncated
	}
	return tx.Create(&models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      r.now().UTC(),
	}).Error
}
