package keypool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

// Assigner is the slice of the pool used by subscription activation and expiry.
type Assigner interface {
	Assign(ctx context.Context, tx *gorm.DB, userID uuid.UUID, keyType enums.KeyType) (*models.APIKeyPoolEntry, error)
	Release(ctx context.Context, tx *gorm.DB, userID uuid.UUID, keyType enums.KeyType) error
}

// Service manages the shared upstream API key pool.
type Service interface {
	Assigner
	AddKey(ctx context.Context, actor access.Actor, input AddKeyInput) (*KeyView, error)
	ListKeys(ctx context.Context, keyType *enums.KeyType) ([]KeyView, error)
	Deactivate(ctx context.Context, actor access.Actor, id uuid.UUID) error
	Stats(ctx context.Context) ([]TypeStats, error)
}

type AddKeyInput struct {
	KeyType  enums.KeyType
	Value    string
	MaxUsers int
	Label    string
}

// KeyView is the admin representation of a pool key; the value is masked.
type KeyView struct {
	ID              uuid.UUID     `json:"id"`
	KeyType         enums.KeyType `json:"key_type"`
	MaskedValue     string        `json:"masked_value"`
	Label           string        `json:"label"`
	MaxUsers        int           `json:"max_users"`
	AssignedCount   int           `json:"assigned_count"`
	IsActive        bool          `json:"is_active"`
	AssignedUserIDs []uuid.UUID   `json:"assigned_user_ids"`
	CreatedAt       time.Time     `json:"created_at"`
}

type TypeStats struct {
	KeyType   enums.KeyType `json:"key_type"`
	Keys      int64         `json:"keys"`
	Capacity  int64         `json:"capacity"`
	Assigned  int64         `json:"assigned"`
	Available int64         `json:"available"`
}

type service struct {
	db    *gorm.DB
	repo  *Repository
	audit audit.Recorder
	logg  *logger.Logger
}

func NewService(conn *gorm.DB, repo *Repository, recorder audit.Recorder, logg *logger.Logger) (Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("db required")
	}
	if repo == nil {
		return nil, fmt.Errorf("keypool repository required")
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{db: conn, repo: repo, audit: recorder, logg: logg}, nil
}

// Assign gives the user a key of keyType inside tx. An existing assignment is
// returned unchanged. When every key is full or inactive the result is nil with
// no error.
func (s *service) Assign(ctx context.Context, tx *gorm.DB, userID uuid.UUID, keyType enums.KeyType) (*models.APIKeyPoolEntry, error) {
	if !keyType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid key type")
	}

	existing, err := s.repo.FindAssignment(tx, userID, keyType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load key assignment")
	}
	if existing != nil {
		key, err := s.repo.FindKey(tx, existing.KeyID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load assigned key")
		}
		if err := s.repo.SetUserKey(tx, userID, keyType, &key.KeyValue); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write user key")
		}
		return key, nil
	}

	key, err := s.claimFirstFit(tx, keyType)
	if err != nil {
		return nil, err
	}
	if key != nil {
		if err := s.repo.CreateAssignment(tx, &models.APIKeyAssignment{
			KeyID:   key.ID,
			UserID:  userID,
			KeyType: keyType,
		}); err != nil {
			if db.IsUniqueViolation(err, "ux_api_key_assignments_user_type") {
				return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "key already assigned")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert key assignment")
		}
		if err := s.repo.SetUserKey(tx, userID, keyType, &key.KeyValue); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write user key")
		}
		return key, nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":  userID.String(),
		"key_type": keyType.String(),
	})
	s.logg.Warn(logCtx, "no api key available in pool")
	return nil, nil
}

// claimFirstFit walks candidate batches until a slot is won or the pool has
// no key left to try. Keys filled by concurrent claims are skipped.
func (s *service) claimFirstFit(tx *gorm.DB, keyType enums.KeyType) (*models.APIKeyPoolEntry, error) {
	var after *models.APIKeyPoolEntry
	for {
		candidates, err := s.repo.Candidates(tx, keyType, after)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list key candidates")
		}
		for i := range candidates {
			key := candidates[i]
			won, err := s.repo.Claim(tx, key.ID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim key slot")
			}
			if won {
				key.AssignedCount++
				return &key, nil
			}
		}
		if len(candidates) < candidateBatch {
			return nil, nil
		}
		after = &candidates[len(candidates)-1]
	}
}

// Release drops the user's key of keyType and frees its slot.
func (s *service) Release(ctx context.Context, tx *gorm.DB, userID uuid.UUID, keyType enums.KeyType) error {
	assignment, err := s.repo.FindAssignment(tx, userID, keyType)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load key assignment")
	}
	if assignment != nil {
		if err := s.repo.DeleteAssignment(tx, assignment.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete key assignment")
		}
		if err := s.repo.Unclaim(tx, assignment.KeyID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release key slot")
		}
	}
	if err := s.repo.SetUserKey(tx, userID, keyType, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear user key")
	}
	return nil
}

func (s *service) AddKey(ctx context.Context, actor access.Actor, input AddKeyInput) (*KeyView, error) {
	value := strings.TrimSpace(input.Value)
	if !input.KeyType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid key type")
	}
	if value == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "key value is required")
	}
	if input.MaxUsers < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max_users must be at least 1")
	}

	key := &models.APIKeyPoolEntry{
		KeyType:  input.KeyType,
		KeyValue: value,
		Label:    strings.TrimSpace(input.Label),
		MaxUsers: input.MaxUsers,
		IsActive: true,
	}
	if err := s.repo.CreateKey(ctx, s.db, key); err != nil {
		if db.IsUniqueViolation(err, "ux_api_key_pool_value") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "api key already in pool")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert api key")
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      &actor.UserID,
		ActorRole:    actor.Role,
		Action:       enums.AuditKeyAdded,
		ResourceType: "api_key",
		ResourceID:   key.ID.String(),
		Metadata:     map[string]any{"key_type": key.KeyType, "max_users": key.MaxUsers},
	})
	view := toView(*key, nil)
	return &view, nil
}

func (s *service) ListKeys(ctx context.Context, keyType *enums.KeyType) ([]KeyView, error) {
	if keyType != nil && !keyType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid key type")
	}
	keys, err := s.repo.ListKeys(ctx, s.db, keyType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list api keys")
	}
	ids := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.ID)
	}
	assignments, err := s.repo.AssignmentsForKeys(ctx, s.db, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list key assignments")
	}
	byKey := make(map[uuid.UUID][]uuid.UUID, len(keys))
	for _, a := range assignments {
		byKey[a.KeyID] = append(byKey[a.KeyID], a.UserID)
	}

	out := make([]KeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, toView(k, byKey[k.ID]))
	}
	return out, nil
}

// Deactivate stops new assignments to the key. Existing holders keep it.
func (s *service) Deactivate(ctx context.Context, actor access.Actor, id uuid.UUID) error {
	affected, err := s.repo.Deactivate(ctx, s.db, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate api key")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "api key not found")
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:      &actor.UserID,
		ActorRole:    actor.Role,
		Action:       enums.AuditKeyDeactivated,
		ResourceType: "api_key",
		ResourceID:   id.String(),
	})
	return nil
}

func (s *service) Stats(ctx context.Context) ([]TypeStats, error) {
	rows, err := s.repo.Stats(ctx, s.db)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "api key stats")
	}
	out := make([]TypeStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, TypeStats{
			KeyType:   r.KeyType,
			Keys:      r.KeyCount,
			Capacity:  r.Capacity,
			Assigned:  r.Assigned,
			Available: r.Capacity - r.Assigned,
		})
	}
	return out, nil
}

func toView(k models.APIKeyPoolEntry, users []uuid.UUID) KeyView {
	if users == nil {
		users = []uuid.UUID{}
	}
	return KeyView{
		ID:              k.ID,
		KeyType:         k.KeyType,
		MaskedValue:     Mask(k.KeyValue),
		Label:           k.Label,
		MaxUsers:        k.MaxUsers,
		AssignedCount:   k.AssignedCount,
		IsActive:        k.IsActive,
		AssignedUserIDs: users,
		CreatedAt:       k.CreatedAt,
	}
}

// Mask keeps the first and last four characters of long keys.
func Mask(value string) string {
	if len(value) <= 12 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
