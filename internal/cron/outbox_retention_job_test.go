package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

type fakeOutboxRetentionRepo struct {
	remaining int64
	cutoffs   []time.Time
	limits    []int
	err       error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	n := min(f.remaining, int64(limit))
	f.remaining -= n
	return n, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, batch int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		DB:         passthroughTx{},
		Repository: repo,
		Retention:  7 * 24 * time.Hour,
		BatchSize:  batch,
	})
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionDeletesInBatches(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{remaining: 25}
	job := newRetentionJob(t, repo, 10)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []int{10, 10, 10}, repo.limits)
	assert.Zero(t, repo.remaining)
	for _, c := range repo.cutoffs {
		assert.Equal(t, now.Add(-7*24*time.Hour), c)
	}
}

func TestOutboxRetentionStopsAtCap(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{remaining: 1 << 20}
	job := newRetentionJob(t, repo, 1)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, repo.limits, outboxRetentionMaxLoops)
}

func TestOutboxRetentionPropagatesError(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("lock timeout")}
	job := newRetentionJob(t, repo, 10)

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "lock timeout")
}

func TestOutboxRetentionDefaults(t *testing.T) {
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), DB: passthroughTx{}, Repository: &fakeOutboxRetentionRepo{}})
	require.NoError(t, err)
	concrete := job.(*outboxRetentionJob)
	assert.Equal(t, defaultOutboxRetention, concrete.retention)
	assert.Equal(t, outboxRetentionBatch, concrete.batch)

	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), DB: passthroughTx{}})
	assert.Error(t, err)
}
