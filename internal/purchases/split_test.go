package purchases

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

func TestSplitFloorsDeveloperShare(t *testing.T) {
	cases := []struct {
		paid, dev, fee int64
	}{
		{paid: 100, dev: 70, fee: 30},
		{paid: 49900, dev: 34930, fee: 14970},
		{paid: 1, dev: 0, fee: 1},
		{paid: 3, dev: 2, fee: 1},
		{paid: 999, dev: 699, fee: 300},
		{paid: 0, dev: 0, fee: 0},
	}
	for _, tc := range cases {
		dev, fee := Split(tc.paid, DefaultDeveloperSharePct)
		assert.Equal(t, tc.dev, dev, "developer share of %d", tc.paid)
		assert.Equal(t, tc.fee, fee, "platform fee of %d", tc.paid)
		assert.Equal(t, tc.paid, dev+fee)
	}
}

func TestSplitFallsBackOnInvalidShare(t *testing.T) {
	dev, fee := Split(1000, 140)
	assert.Equal(t, int64(700), dev)
	assert.Equal(t, int64(300), fee)
}

func TestMarkCompleted(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p := &models.ItemPurchase{PaidAmount: 19900, Status: enums.PaymentStatusPending}
	MarkCompleted(p, now, DefaultDeveloperSharePct)

	assert.Equal(t, enums.PaymentStatusCompleted, p.Status)
	assert.True(t, p.AccessGranted)
	assert.Equal(t, now, *p.CompletedAt)
	assert.Equal(t, int64(13930), p.DeveloperEarnings)
	assert.Equal(t, int64(5970), p.PlatformFee)
}
