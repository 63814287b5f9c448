package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
)

const savepointName = "audit_entry"

type ctxKey struct{}

// WithClientIP stores the caller IP so entries recorded deeper in the stack carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKey{}, ip)
}

func clientIP(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Entry is one audit record to append.
type Entry struct {
	ActorID      *uuid.UUID
	ActorRole    enums.Role
	Action       enums.AuditAction
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	IPAddress    string
}

// Recorder appends audit entries. Both methods are best effort and never fail the caller.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
	RecordTx(ctx context.Context, tx *gorm.DB, entry Entry)
}

// ListParams filters the admin audit listing.
type ListParams struct {
	ActorID      *uuid.UUID
	Action       enums.AuditAction
	ResourceType string
	ResourceID   string
	Limit        int
	Cursor       string
}

type ListResult struct {
	Items      []models.AuditLog `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type Service struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewService(db *gorm.DB, logg *logger.Logger) *Service {
	return &Service{db: db, logg: logg}
}

// Record writes outside any transaction; failures are logged and dropped.
func (s *Service) Record(ctx context.Context, entry Entry) {
	row := s.toRow(ctx, entry)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logFailure(ctx, entry, err)
	}
}

// RecordTx writes inside tx under a savepoint so a failed insert is rolled
// back on its own and the caller's transaction stays usable.
func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, entry Entry) {
	if tx == nil {
		s.Record(ctx, entry)
		return
	}
	row := s.toRow(ctx, entry)
	if err := tx.SavePoint(savepointName).Error; err != nil {
		s.logFailure(ctx, entry, err)
		return
	}
	if err := tx.Create(&row).Error; err != nil {
		if rbErr := tx.RollbackTo(savepointName).Error; rbErr != nil {
			s.logFailure(ctx, entry, rbErr)
		}
		s.logFailure(ctx, entry, err)
	}
}

func (s *Service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if params.ActorID != nil {
		q = q.Where("actor_id = ?", *params.ActorID)
	}
	if params.Action != "" {
		q = q.Where("action = ?", params.Action)
	}
	if params.ResourceType != "" {
		q = q.Where("resource_type = ?", params.ResourceType)
	}
	if params.ResourceID != "" {
		q = q.Where("resource_id = ?", params.ResourceID)
	}

	var rows []models.AuditLog
	if err := q.Scopes(pagination.Scope("created_at", cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list audit logs")
	}
	items, next := pagination.Trim(rows, params.Limit, func(r models.AuditLog) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return &ListResult{Items: items, NextCursor: next}, nil
}

func (s *Service) toRow(ctx context.Context, entry Entry) models.AuditLog {
	var meta json.RawMessage
	if len(entry.Metadata) > 0 {
		if raw, err := json.Marshal(entry.Metadata); err == nil {
			meta = raw
		}
	}
	ip := strings.TrimSpace(entry.IPAddress)
	if ip == "" {
		ip = clientIP(ctx)
	}
	return models.AuditLog{
		ActorID:      entry.ActorID,
		ActorRole:    string(entry.ActorRole),
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Metadata:     meta,
		IPAddress:    ip,
		CreatedAt:    time.Now().UTC(),
	}
}

func (s *Service) logFailure(ctx context.Context, entry Entry, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"audit_action":  entry.Action,
		"resource_type": entry.ResourceType,
		"resource_id":   entry.ResourceID,
	})
	s.logg.Error(logCtx, "audit log write failed", err)
}

// Nop discards entries. Useful where auditing is not wired.
type Nop struct{}

func (Nop) Record(context.Context, Entry)             {}
func (Nop) RecordTx(context.Context, *gorm.DB, Entry) {}
