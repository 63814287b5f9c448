package enums

import "fmt"

// ContentStatus is the approval state of a marketplace item.
type ContentStatus string

const (
	ContentStatusDraft           ContentStatus = "draft"
	ContentStatusPendingApproval ContentStatus = "pending_approval"
	ContentStatusApproved        ContentStatus = "approved"
	ContentStatusRejected        ContentStatus = "rejected"
	ContentStatusArchived        ContentStatus = "archived"
)

var contentTransitions = map[ContentStatus][]ContentStatus{
	ContentStatusDraft:           {ContentStatusPendingApproval, ContentStatusArchived},
	ContentStatusPendingApproval: {ContentStatusApproved, ContentStatusRejected},
	ContentStatusRejected:        {ContentStatusPendingApproval, ContentStatusArchived},
	ContentStatusApproved:        {ContentStatusArchived},
	ContentStatusArchived:        {},
}

func (c ContentStatus) String() string {
	return string(c)
}

func (c ContentStatus) IsValid() bool {
	_, ok := contentTransitions[c]
	return ok
}

// CanTransitionTo reports whether next is reachable from c in one step.
func (c ContentStatus) CanTransitionTo(next ContentStatus) bool {
	for _, candidate := range contentTransitions[c] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Editable reports whether the owner may still change the item's content.
func (c ContentStatus) Editable() bool {
	return c == ContentStatusDraft || c == ContentStatusRejected
}

// ParseContentStatus converts raw input into a ContentStatus.
func ParseContentStatus(value string) (ContentStatus, error) {
	status := ContentStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid content status %q", value)
	}
	return status, nil
}
