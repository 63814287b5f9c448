package approvals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/internal/marketplace"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
)

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Service moves catalog items through the review workflow.
type Service interface {
	Submit(ctx context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID, input SubmitInput) (*models.ContentApproval, error)
	Review(ctx context.Context, actor access.Actor, approvalID uuid.UUID, input ReviewInput) (*models.ContentApproval, error)
	Archive(ctx context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID) error
	ListPending(ctx context.Context, params pagination.Params) (*ListResult, error)
}

type SubmitInput struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type ReviewInput struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Notes    string `json:"notes" validate:"max=2000"`
}

type ListResult struct {
	Items      []models.ContentApproval `json:"items"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

// ListingInvalidator drops cached public listings after an item enters or
// leaves the approved state.
type ListingInvalidator interface {
	InvalidateListings()
}

type ServiceParams struct {
	DB       *db.Client
	Repo     *Repository
	Items    *marketplace.Repository
	Resolver access.Resolver
	Listings ListingInvalidator
	Audit    audit.Recorder
	Logger   *logger.Logger
}

type service struct {
	db       *db.Client
	repo     *Repository
	items    *marketplace.Repository
	resolver access.Resolver
	listings ListingInvalidator
	audit    audit.Recorder
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil || params.Items == nil {
		return nil, fmt.Errorf("approval and item repositories required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("access resolver required")
	}
	recorder := params.Audit
	if recorder == nil {
		recorder = audit.Nop{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:       params.DB,
		repo:     params.Repo,
		items:    params.Items,
		resolver: params.Resolver,
		listings: params.Listings,
		audit:    recorder,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Submit(ctx context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID, input SubmitInput) (*models.ContentApproval, error) {
	item, level, err := s.loadItem(ctx, actor, itemType, id)
	if err != nil {
		return nil, err
	}
	if !level.CanManage() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can submit this item")
	}
	if !item.Status.CanTransitionTo(enums.ContentStatusPendingApproval) {
		return nil, illegalTransition(item.Status, enums.ContentStatusPendingApproval)
	}

	var approval *models.ContentApproval
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.items.TransitionStatus(tx, itemType, id,
			[]enums.ContentStatus{enums.ContentStatusDraft, enums.ContentStatusRejected},
			enums.ContentStatusPendingApproval)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "submit item")
		}
		if !moved {
			return illegalTransition(item.Status, enums.ContentStatusPendingApproval)
		}
		approval = &models.ContentApproval{
			ContentID:   id,
			ContentType: itemType,
			Status:      enums.ContentStatusPendingApproval,
			SubmittedBy: actor.UserID,
			Notes:       strings.TrimSpace(input.Notes),
		}
		if err := s.repo.Create(tx, approval); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record submission")
		}
		s.audit.RecordTx(ctx, tx, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    actor.Role,
			Action:       enums.AuditContentSubmitted,
			ResourceType: string(itemType),
			ResourceID:   id.String(),
			Metadata:     map[string]any{"approval_id": approval.ID.String()},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approval, nil
}

func (s *service) Review(ctx context.Context, actor access.Actor, approvalID uuid.UUID, input ReviewInput) (*models.ContentApproval, error) {
	if !actor.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	var next enums.ContentStatus
	switch strings.ToLower(strings.TrimSpace(input.Decision)) {
	case DecisionApprove:
		next = enums.ContentStatusApproved
	case DecisionReject:
		next = enums.ContentStatusRejected
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be approve or reject")
	}

	approval, err := s.repo.FindByID(s.db.DB().WithContext(ctx), approvalID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load approval")
	}
	if approval == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "approval not found")
	}
	if approval.Status != enums.ContentStatusPendingApproval {
		return nil, illegalTransition(approval.Status, next)
	}

	now := s.now()
	notes := strings.TrimSpace(input.Notes)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		decided, err := s.repo.Decide(tx, approval.ID, actor.UserID, next, notes, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record decision")
		}
		if !decided {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "approval already reviewed")
		}
		moved, err := s.items.TransitionStatus(tx, approval.ContentType, approval.ContentID,
			[]enums.ContentStatus{enums.ContentStatusPendingApproval}, next)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "item is no longer pending approval")
		}
		s.audit.RecordTx(ctx, tx, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    actor.Role,
			Action:       enums.AuditContentReviewed,
			ResourceType: string(approval.ContentType),
			ResourceID:   approval.ContentID.String(),
			Metadata: map[string]any{
				"approval_id": approval.ID.String(),
				"decision":    string(next),
				"notes":       notes,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if next == enums.ContentStatusApproved {
		s.invalidate()
	}
	approval.Status = next
	approval.ReviewedBy = &actor.UserID
	approval.ReviewedAt = &now
	approval.Notes = notes
	return approval, nil
}

func (s *service) Archive(ctx context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID) error {
	item, level, err := s.loadItem(ctx, actor, itemType, id)
	if err != nil {
		return err
	}
	if !level.CanManage() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner or an admin can archive this item")
	}
	if !item.Status.CanTransitionTo(enums.ContentStatusArchived) {
		return illegalTransition(item.Status, enums.ContentStatusArchived)
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.items.TransitionStatus(tx, itemType, id, []enums.ContentStatus{item.Status}, enums.ContentStatusArchived)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive item")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "item status changed concurrently")
		}
		s.audit.RecordTx(ctx, tx, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    actor.Role,
			Action:       enums.AuditContentArchived,
			ResourceType: string(itemType),
			ResourceID:   id.String(),
			Metadata:     map[string]any{"previous_status": string(item.Status)},
		})
		return nil
	})
	if err != nil {
		return err
	}
	if item.Status == enums.ContentStatusApproved {
		s.invalidate()
	}
	return nil
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListPending(s.db.DB().WithContext(ctx), cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list approvals")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(a models.ContentApproval) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.SubmittedAt, ID: a.ID}
	})
	return &ListResult{Items: rows, NextCursor: next}, nil
}

func (s *service) loadItem(ctx context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID) (*marketplace.Item, access.Level, error) {
	if !itemType.IsValid() {
		return nil, access.NoAccess, pkgerrors.New(pkgerrors.CodeValidation, "invalid item type")
	}
	item, err := s.items.FindByID(s.db.DB().WithContext(ctx), itemType, id)
	if err != nil {
		return nil, access.NoAccess, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
	}
	if item == nil {
		return nil, access.NoAccess, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	level, err := s.resolver.Resolve(ctx, &actor, item.Resource())
	if err != nil {
		return nil, access.NoAccess, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve access")
	}
	if !access.CanPreview(level, item.Resource()) {
		return nil, access.NoAccess, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	return item, level, nil
}

func (s *service) invalidate() {
	if s.listings != nil {
		s.listings.InvalidateListings()
	}
}

func illegalTransition(from, to enums.ContentStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "illegal content status transition").
		WithDetails(map[string]any{"from": from, "to": to})
}
