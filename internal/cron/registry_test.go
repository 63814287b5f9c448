package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRunOrder(t *testing.T) {
	reminder, expiry := &stubJob{name: "expiry-reminders"}, &stubJob{name: "subscription-expiry"}
	registry, err := NewRegistry(reminder, expiry)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, reminder, jobs[0])
	assert.Equal(t, []string{"expiry-reminders", "subscription-expiry"}, registry.Names())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryLookup(t *testing.T) {
	registry, err := NewRegistry(&stubJob{name: "token-reset"}, &stubJob{name: "outbox-retention"})
	require.NoError(t, err)

	job, ok := registry.Lookup("outbox-retention")
	require.True(t, ok)
	assert.Equal(t, "outbox-retention", job.Name())
	_, ok = registry.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsBadJobs(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "token-reset"}, &stubJob{name: "token-reset"})
	assert.ErrorContains(t, err, "twice")
	_, err = NewRegistry(nil)
	assert.Error(t, err)
	_, err = NewRegistry(&stubJob{})
	assert.Error(t, err)
}
