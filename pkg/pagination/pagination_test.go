package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 5000, time.UTC), ID: uuid.New()}

	out, err := ParseCursor(in.String())
	require.NoError(t, err)
	assert.True(t, out.CreatedAt.Equal(in.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
	assert.NotContains(t, in.String(), "=")
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	c, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, c)

	for _, raw := range []string{"!!", "bm90LWEtY3Vyc29y", "YWJjLm5vdC1hLXV1aWQ"} {
		_, err := ParseCursor(raw)
		assert.ErrorIs(t, err, ErrInvalidCursor, raw)
	}
}

func TestTrim(t *testing.T) {
	rows := []int{1, 2, 3}
	cursorOf := func(i int) Cursor { return Cursor{CreatedAt: time.Unix(int64(i), 0), ID: uuid.Nil} }

	out, next := Trim(rows, 2, cursorOf)
	assert.Equal(t, []int{1, 2}, out)
	parsed, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), parsed.CreatedAt.Unix())

	out, next = Trim(rows, 5, cursorOf)
	assert.Len(t, out, 3)
	assert.Empty(t, next)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(1000))
	assert.Equal(t, 7, NormalizeLimit(7))
}
