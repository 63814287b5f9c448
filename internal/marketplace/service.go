package marketplace

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
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
)

// Service exposes the template and component catalog.
type Service interface {
	CreateItem(ctx context.Context, actor access.Actor, itemType enums.ItemType, input CreateItemInput) (*ItemDTO, error)
	UpdateItem(ctx context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID, input UpdateItemInput) (*ItemDTO, error)
	ListMine(ctx context.Context, actor access.Actor) ([]ItemDTO, error)
	ListApproved(ctx context.Context, params ListParams) (*ListResult, error)
	GetItem(ctx context.Context, actor *access.Actor, itemType enums.ItemType, id uuid.UUID) (*ItemDTO, error)
	Download(ctx context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID) (*DownloadResult, error)
	ClaimFree(ctx context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID) (*models.ItemPurchase, error)
	InvalidateListings()
}

type CreateItemInput struct {
	Title          string     `json:"title" validate:"required,min=3,max=200"`
	Description    string     `json:"description" validate:"max=5000"`
	Category       string     `json:"category" validate:"max=100"`
	Tags           []string   `json:"tags" validate:"max=20,dive,max=40"`
	Price          int64      `json:"price" validate:"gte=0"`
	PreviewURL     string     `json:"preview_url" validate:"omitempty,url"`
	DownloadURL    string     `json:"download_url" validate:"omitempty,url"`
	TechStack      string     `json:"tech_stack" validate:"max=200"`
	Framework      string     `json:"framework" validate:"max=100"`
	OrganizationID *uuid.UUID `json:"organization_id"`
}

type UpdateItemInput struct {
	Title       *string   `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string   `json:"description" validate:"omitempty,max=5000"`
	Category    *string   `json:"category" validate:"omitempty,max=100"`
	Tags        *[]string `json:"tags" validate:"omitempty,max=20"`
	Price       *int64    `json:"price" validate:"omitempty,gte=0"`
	PreviewURL  *string   `json:"preview_url" validate:"omitempty,url"`
	DownloadURL *string   `json:"download_url" validate:"omitempty,url"`
	TechStack   *string   `json:"tech_stack" validate:"omitempty,max=200"`
	Framework   *string   `json:"framework" validate:"omitempty,max=100"`
}

// ListParams filters the public catalog.
type ListParams struct {
	Type     enums.ItemType
	Category string
	Search   string
	FreeOnly bool
	pagination.Params
}

type ListResult struct {
	Items      []ItemDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type DownloadResult struct {
	ItemID      uuid.UUID      `json:"item_id"`
	ItemType    enums.ItemType `json:"item_type"`
	DownloadURL string         `json:"download_url"`
	Access      string         `json:"access"`
}

// ServiceParams groups dependencies for the marketplace service.
type ServiceParams struct {
	DB       *db.Client
	Repo     *Repository
	Resolver access.Resolver
	Audit    audit.Recorder
	Logger   *logger.Logger
	Currency string
	CacheTTL time.Duration
}

type service struct {
	db       *db.Client
	repo     *Repository
	resolver access.Resolver
	audit    audit.Recorder
	logg     *logger.Logger
	currency string
	listings *listingCache
}

// NewService builds the marketplace service. A zero CacheTTL disables the
// listing cache.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("marketplace repository required")
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
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "INR"
	}
	return &service{
		db:       params.DB,
		repo:     params.Repo,
		resolver: params.Resolver,
		audit:    recorder,
		logg:     logg,
		currency: currency,
		listings: newListingCache(params.CacheTTL),
	}, nil
}

func (s *service) CreateItem(ctx context.Context, actor access.Actor, itemType enums.ItemType, input CreateItemInput) (*ItemDTO, error) {
	if !actor.Role.AtLeast(enums.RoleDeveloper) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "developer role required to publish")
	}
	if !itemType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid item type")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if input.Price < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}

	conn := s.db.DB().WithContext(ctx)
	if input.OrganizationID != nil {
		ok, err := s.repo.ManagesOrganization(conn, *input.OrganizationID, actor.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check organization membership")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a manager of the organization")
		}
	}

	id := uuid.New()
	item := &Item{
		ContentFields: models.ContentFields{
			ID:             id,
			OwnerID:        actor.UserID,
			OrganizationID: input.OrganizationID,
			Title:          title,
			Slug:           Slugify(title) + "-" + id.String()[:8],
			Description:    strings.TrimSpace(input.Description),
			Category:       strings.ToLower(strings.TrimSpace(input.Category)),
			Tags:           joinTags(input.Tags),
			Price:          input.Price,
			IsFree:         input.Price == 0,
			Status:         enums.ContentStatusDraft,
			PreviewURL:     input.PreviewURL,
			DownloadURL:    input.DownloadURL,
		},
		Type:      itemType,
		TechStack: strings.TrimSpace(input.TechStack),
		Framework: strings.TrimSpace(input.Framework),
	}
	if err := s.repo.Create(conn, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create item")
	}

	owner := access.OwnerAccess
	dto := toDTO(item, &owner)
	return &dto, nil
}

func (s *service) UpdateItem(ctx context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID, input UpdateItemInput) (*ItemDTO, error) {
	conn := s.db.DB().WithContext(ctx)
	item, level, err := s.loadVisible(ctx, &actor, itemType, id)
	if err != nil {
		return nil, err
	}
	if !level.CanManage() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can edit this item")
	}
	if !item.Status.Editable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "item can only be edited while draft or rejected").
			WithDetails(map[string]any{"status": item.Status})
	}

	updates := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
		}
		updates["title"] = title
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Category != nil {
		updates["category"] = strings.ToLower(strings.TrimSpace(*input.Category))
	}
	if input.Tags != nil {
		updates["tags"] = joinTags(*input.Tags)
	}
	if input.Price != nil {
		if *input.Price < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
		}
		updates["price"] = *input.Price
		updates["is_free"] = *input.Price == 0
	}
	if input.PreviewURL != nil {
		updates["preview_url"] = *input.PreviewURL
	}
	if input.DownloadURL != nil {
		updates["download_url"] = *input.DownloadURL
	}
	if input.TechStack != nil && itemType == enums.ItemTypeTemplate {
		updates["tech_stack"] = strings.TrimSpace(*input.TechStack)
	}
	if input.Framework != nil && itemType == enums.ItemTypeComponent {
		updates["framework"] = strings.TrimSpace(*input.Framework)
	}
	if len(updates) > 0 {
		if err := s.repo.Update(conn, itemType, id, updates); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item")
		}
	}

	updated, err := s.repo.FindByID(conn, itemType, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload item")
	}
	if updated == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	dto := toDTO(updated, &level)
	return &dto, nil
}

func (s *service) ListMine(ctx context.Context, actor access.Actor) ([]ItemDTO, error) {
	items, err := s.repo.ListByOwner(s.db.DB().WithContext(ctx), actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list items")
	}
	owner := access.OwnerAccess
	out := make([]ItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toDTO(item, &owner))
	}
	return out, nil
}

func (s *service) ListApproved(ctx context.Context, params ListParams) (*ListResult, error) {
	if !params.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid item type")
	}
	params.Category = strings.ToLower(strings.TrimSpace(params.Category))
	params.Search = strings.TrimSpace(params.Search)
	params.Limit = pagination.NormalizeLimit(params.Limit)

	key := listingKey(params)
	if cached, ok := s.listings.get(key); ok {
		return cached, nil
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListApproved(s.db.DB().WithContext(ctx), approvedQuery{
		itemType: params.Type,
		category: params.Category,
		search:   params.Search,
		freeOnly: params.FreeOnly,
		cursor:   cursor,
		limit:    params.Limit,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list items")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(item *Item) pagination.Cursor {
		return pagination.Cursor{CreatedAt: item.CreatedAt, ID: item.ID}
	})

	result := &ListResult{Items: make([]ItemDTO, 0, len(rows)), NextCursor: next}
	for _, item := range rows {
		result.Items = append(result.Items, toDTO(item, nil))
	}
	s.listings.set(key, result)
	return result, nil
}

func (s *service) GetItem(ctx context.Context, actor *access.Actor, itemType enums.ItemType, id uuid.UUID) (*ItemDTO, error) {
	item, level, err := s.loadVisible(ctx, actor, itemType, id)
	if err != nil {
		return nil, err
	}
	dto := toDTO(item, &level)
	return &dto, nil
}

func (s *service) Download(ctx context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID) (*DownloadResult, error) {
	item, level, err := s.loadVisible(ctx, &actor, itemType, id)
	if err != nil {
		return nil, err
	}
	if !level.CanDownload() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "purchase required to download this item")
	}
	if item.DownloadURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item has no downloadable asset")
	}
	// Owners and staff fetching their own asset do not count as downloads.
	if level == access.LimitedAccess {
		if err := s.repo.IncrementDownloads(s.db.DB().WithContext(ctx), itemType, id); err != nil {
			s.logg.Error(ctx, "increment downloads failed", err)
		}
	}
	return &DownloadResult{
		ItemID:      item.ID,
		ItemType:    item.Type,
		DownloadURL: item.DownloadURL,
		Access:      level.String(),
	}, nil
}

func (s *service) ClaimFree(ctx context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID) (*models.ItemPurchase, error) {
	item, level, err := s.loadVisible(ctx, &actor, itemType, id)
	if err != nil {
		return nil, err
	}
	if item.Status != enums.ContentStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "item is not available")
	}
	if !item.IsFree {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item is not free; use checkout")
	}
	if level.CanManage() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "you already have full access to this item")
	}

	var purchase *models.ItemPurchase
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		owned, err := s.repo.HasCompletedPurchase(tx, actor.UserID, item.ID, item.Type)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ownership")
		}
		if owned {
			return pkgerrors.New(pkgerrors.CodeConflict, "item already claimed")
		}
		now := time.Now().UTC()
		purchase = &models.ItemPurchase{
			UserID:      actor.UserID,
			ItemID:      item.ID,
			ItemType:    item.Type,
			ItemTitle:   item.Title,
			DeveloperID: item.OwnerID,
			Currency:    s.currency,
			Status:      enums.PaymentStatusCompleted,
			CompletedAt: &now,
		}
		if err := tx.Create(purchase).Error; err != nil {
			if db.IsUniqueViolation(err, models.ItemPurchaseOwnedIndex) {
				return pkgerrors.New(pkgerrors.CodeConflict, "item already claimed")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record claim")
		}
		if err := tx.Model(purchase).Update("access_granted", true).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant access")
		}
		purchase.AccessGranted = true
		s.audit.RecordTx(ctx, tx, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    actor.Role,
			Action:       enums.AuditPurchaseCompleted,
			ResourceType: string(item.Type),
			ResourceID:   item.ID.String(),
			Metadata:     map[string]any{"purchase_id": purchase.ID.String(), "paid_amount": 0},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purchase, nil
}

func (s *service) InvalidateListings() {
	s.listings.flush()
}

// loadVisible fetches the item and resolves the caller's level, hiding items
// the caller may not even preview.
func (s *service) loadVisible(ctx context.Context, actor *access.Actor, itemType enums.ItemType, id uuid.UUID) (*Item, access.Level, error) {
	if !itemType.IsValid() {
		return nil, access.NoAccess, pkgerrors.New(pkgerrors.CodeValidation, "invalid item type")
	}
	item, err := s.repo.FindByID(s.db.DB().WithContext(ctx), itemType, id)
	if err != nil {
		return nil, access.NoAccess, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
	}
	if item == nil {
		return nil, access.NoAccess, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	res := item.Resource()
	level, err := s.resolver.Resolve(ctx, actor, res)
	if err != nil {
		return nil, access.NoAccess, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve access")
	}
	if !access.CanPreview(level, res) {
		return nil, access.NoAccess, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	return item, level, nil
}
