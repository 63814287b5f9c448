package marketplace

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// Item is a template or component with its type-specific attribute flattened.
type Item struct {
	models.ContentFields
	Type      enums.ItemType
	TechStack string
	Framework string
}

func (i *Item) Resource() access.Resource {
	return access.FromContent(i.Type, i.ContentFields)
}

func fromTemplate(t models.Template) *Item {
	return &Item{ContentFields: t.ContentFields, Type: enums.ItemTypeTemplate, TechStack: t.TechStack}
}

func fromComponent(c models.Component) *Item {
	return &Item{ContentFields: c.ContentFields, Type: enums.ItemTypeComponent, Framework: c.Framework}
}

// ItemDTO is the API shape. DownloadURL is only set when the caller may download.
type ItemDTO struct {
	ID             uuid.UUID           `json:"id"`
	Type           enums.ItemType      `json:"type"`
	OwnerID        uuid.UUID           `json:"owner_id"`
	OrganizationID *uuid.UUID          `json:"organization_id,omitempty"`
	Title          string              `json:"title"`
	Slug           string              `json:"slug"`
	Description    string              `json:"description"`
	Category       string              `json:"category,omitempty"`
	Tags           []string            `json:"tags"`
	Price          int64               `json:"price"`
	DisplayPrice   string              `json:"display_price"`
	IsFree         bool                `json:"is_free"`
	Status         enums.ContentStatus `json:"status"`
	PreviewURL     string              `json:"preview_url,omitempty"`
	DownloadURL    string              `json:"download_url,omitempty"`
	Downloads      int64               `json:"downloads"`
	TechStack      string              `json:"tech_stack,omitempty"`
	Framework      string              `json:"framework,omitempty"`
	Access         string              `json:"access,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func toDTO(item *Item, level *access.Level) ItemDTO {
	dto := ItemDTO{
		ID:             item.ID,
		Type:           item.Type,
		OwnerID:        item.OwnerID,
		OrganizationID: item.OrganizationID,
		Title:          item.Title,
		Slug:           item.Slug,
		Description:    item.Description,
		Category:       item.Category,
		Tags:           splitTags(item.Tags),
		Price:          item.Price,
		DisplayPrice:   decimal.New(item.Price, -2).StringFixed(2),
		IsFree:         item.IsFree,
		Status:         item.Status,
		PreviewURL:     item.PreviewURL,
		Downloads:      item.Downloads,
		TechStack:      item.TechStack,
		Framework:      item.Framework,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
	if level != nil {
		dto.Access = level.String()
		if level.CanDownload() {
			dto.DownloadURL = item.DownloadURL
		}
	}
	return dto
}

func splitTags(raw string) []string {
	out := []string{}
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func joinTags(tags []string) string {
	seen := make(map[string]bool, len(tags))
	clean := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		clean = append(clean, tag)
	}
	return strings.Join(clean, ",")
}

// Slugify lowercases and hyphenates a title.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
