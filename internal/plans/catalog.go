package plans

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
)

// Period is the length of one paid billing cycle and of a token allowance window.
const Period = 30 * 24 * time.Hour

// Plan describes a subscription tier. Price is in paise.
type Plan struct {
	Name         enums.PlanName  `json:"name"`
	DisplayName  string          `json:"display_name"`
	Price        int64           `json:"price"`
	Currency     string          `json:"currency"`
	TokensLimit  int64           `json:"tokens_limit"`
	Duration     time.Duration   `json:"-"`
	DurationDays int             `json:"duration_days"`
	KeyTypes     []enums.KeyType `json:"key_types"`
}

// DisplayPrice renders the price in rupees, e.g. "299.00".
func (p Plan) DisplayPrice() string {
	return decimal.New(p.Price, -2).StringFixed(2)
}

func (p Plan) IsPaid() bool {
	return p.Price > 0
}

var catalog = []Plan{
	{
		Name:        enums.PlanFree,
		DisplayName: "Free",
		Price:       0,
		TokensLimit: 10_000,
	},
	{
		Name:        enums.PlanPayg,
		DisplayName: "Pay as you go",
		Price:       9_900,
		TokensLimit: 200_000,
		Duration:    Period,
		KeyTypes:    []enums.KeyType{enums.KeyTypeGLM},
	},
	{
		Name:        enums.PlanPro,
		DisplayName: "Pro",
		Price:       29_900,
		TokensLimit: 1_000_000,
		Duration:    Period,
		KeyTypes:    []enums.KeyType{enums.KeyTypeGLM},
	},
	{
		Name:        enums.PlanUltra,
		DisplayName: "Ultra",
		Price:       99_900,
		TokensLimit: 5_000_000,
		Duration:    Period,
		KeyTypes:    []enums.KeyType{enums.KeyTypeGLM, enums.KeyTypeBytez},
	},
}

const currencyINR = "INR"

// List returns the catalog in display order.
func List() []Plan {
	out := make([]Plan, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, decorate(p))
	}
	return out
}

// Get looks up a plan by name.
func Get(name enums.PlanName) (Plan, error) {
	for _, p := range catalog {
		if p.Name == name {
			return decorate(p), nil
		}
	}
	return Plan{}, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found").WithDetails(map[string]any{"plan": string(name)})
}

// MustGet panics on unknown names; only for compile-time constants.
func MustGet(name enums.PlanName) Plan {
	p, err := Get(name)
	if err != nil {
		panic(err)
	}
	return p
}

func IsPaid(name enums.PlanName) bool {
	p, err := Get(name)
	return err == nil && p.IsPaid()
}

// Free is the tier users fall back to on registration and expiry.
func Free() Plan {
	return MustGet(enums.PlanFree)
}

func decorate(p Plan) Plan {
	p.Currency = currencyINR
	p.DurationDays = int(p.Duration / (24 * time.Hour))
	p.KeyTypes = append([]enums.KeyType(nil), p.KeyTypes...)
	return p
}
