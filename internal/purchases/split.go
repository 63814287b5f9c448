package purchases

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// DefaultDeveloperSharePct is the developer's cut of each marketplace sale.
const DefaultDeveloperSharePct = 70

var hundred = decimal.NewFromInt(100)

// Split divides paid (minor units) between developer and platform. The
// developer share is floored, so the platform keeps the remainder and the two
// always add up to paid.
func Split(paid int64, developerPct int) (developer, platform int64) {
	if paid <= 0 {
		return 0, 0
	}
	if developerPct < 0 || developerPct > 100 {
		developerPct = DefaultDeveloperSharePct
	}
	developer = decimal.NewFromInt(paid).
		Mul(decimal.NewFromInt(int64(developerPct))).
		Div(hundred).
		Floor().
		IntPart()
	return developer, paid - developer
}

// MarkCompleted settles a purchase: completed status, access granted and the
// revenue split over its paid amount.
func MarkCompleted(p *models.ItemPurchase, now time.Time, developerPct int) {
	p.Status = enums.PaymentStatusCompleted
	p.CompletedAt = &now
	p.AccessGranted = true
	p.DeveloperEarnings, p.PlatformFee = Split(p.PaidAmount, developerPct)
}
