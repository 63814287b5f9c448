package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
)

func TestCatalogPrices(t *testing.T) {
	cases := map[enums.PlanName]struct {
		price  int64
		tokens int64
		keys   []enums.KeyType
	}{
		enums.PlanFree:  {0, 10_000, nil},
		enums.PlanPayg:  {9_900, 200_000, []enums.KeyType{enums.KeyTypeGLM}},
		enums.PlanPro:   {29_900, 1_000_000, []enums.KeyType{enums.KeyTypeGLM}},
		enums.PlanUltra: {99_900, 5_000_000, []enums.KeyType{enums.KeyTypeGLM, enums.KeyTypeBytez}},
	}
	for name, want := range cases {
		p, err := Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, want.price, p.Price, name)
		assert.Equal(t, want.tokens, p.TokensLimit, name)
		assert.ElementsMatch(t, want.keys, p.KeyTypes, name)
		assert.Equal(t, "INR", p.Currency)
	}
	assert.Len(t, List(), 4)
}

func TestGetUnknownPlan(t *testing.T) {
	_, err := Get("enterprise")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestIsPaidAndDuration(t *testing.T) {
	assert.False(t, IsPaid(enums.PlanFree))
	assert.True(t, IsPaid(enums.PlanPro))
	assert.False(t, IsPaid("bogus"))
	assert.Equal(t, 30, MustGet(enums.PlanUltra).DurationDays)
	assert.Equal(t, 0, Free().DurationDays)
}

func TestDisplayPrice(t *testing.T) {
	assert.Equal(t, "299.00", MustGet(enums.PlanPro).DisplayPrice())
	assert.Equal(t, "0.00", Free().DisplayPrice())
}

func TestGetReturnsCopyOfKeyTypes(t *testing.T) {
	p := MustGet(enums.PlanUltra)
	p.KeyTypes[0] = enums.KeyTypeOpenRouter
	assert.Equal(t, enums.KeyTypeGLM, MustGet(enums.PlanUltra).KeyTypes[0])
}
