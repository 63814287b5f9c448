package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/componentry-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/componentry-backend/internal/analytics/writer"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/payloads"
)

const (
	sourceSubscription = "subscription"
	sourceMarketplace  = "marketplace"
)

// newRow fills the columns every revenue row carries. A zero occurred time
// falls back to the envelope's.
func newRow(envelope types.Envelope, userID uuid.UUID, source string, occurred time.Time, event any) (types.RevenueEventRow, error) {
	raw, err := analyticswriter.EncodeJSON(event)
	if err != nil {
		return types.RevenueEventRow{}, fmt.Errorf("encode %s payload: %w", envelope.EventType, err)
	}
	if occurred.IsZero() {
		occurred = envelope.OccurredAt
	}
	return types.RevenueEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: occurred.UTC(),
		UserID:     userID.String(),
		Source:     source,
		Payload:    raw,
	}, nil
}

// Subscription revenue is all platform fee.
func subscriptionRow(envelope types.Envelope, event *payloads.SubscriptionActivatedEvent) (types.RevenueEventRow, error) {
	row, err := newRow(envelope, event.UserID, sourceSubscription, event.StartDate, event)
	if err != nil {
		return row, err
	}
	row.Plan = optional(string(event.Plan))
	row.TransactionID = optionalID(event.TransactionID)
	row.Currency = event.Currency
	row.Amount = event.Amount
	row.PlatformFee = event.Amount
	return row, nil
}

func purchaseRow(envelope types.Envelope, event *payloads.PurchaseCompletedEvent) (types.RevenueEventRow, error) {
	row, err := newRow(envelope, event.BuyerID, sourceMarketplace, event.CompletedAt, event)
	if err != nil {
		return row, err
	}
	row.ItemType = optional(string(event.ItemType))
	row.ItemID = optionalID(event.ItemID)
	row.DeveloperID = optionalID(event.DeveloperID)
	if event.TransactionID != nil {
		row.TransactionID = optionalID(*event.TransactionID)
	}
	row.Gateway = optional(string(event.Gateway))
	row.Currency = event.Currency
	row.Amount = event.PaidAmount
	row.DeveloperEarnings = event.DeveloperEarnings
	row.PlatformFee = event.PlatformFee
	return row, nil
}

// Refunds are recorded as negative revenue so sums net out.
func refundRow(envelope types.Envelope, event *payloads.PurchaseRefundedEvent) (types.RevenueEventRow, error) {
	row, err := newRow(envelope, event.BuyerID, sourceMarketplace, event.RefundedAt, event)
	if err != nil {
		return row, err
	}
	row.DeveloperID = optionalID(event.DeveloperID)
	row.Amount = -event.PaidAmount
	return row, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func optionalID(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return optional(id.String())
}
