package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/pkg/logger"
)

func TestOutboxRetentionJobUsesRetentionWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{remaining: 7}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-defaultOutboxRetention), repo.lastCutoff)
	assert.Equal(t, defaultOutboxPurgeBatch, repo.lastLimit)
	assert.Equal(t, 1, repo.calls)

	custom := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{Retention: 48 * time.Hour})
	custom.now = func() time.Time { return now }
	require.NoError(t, custom.Run(context.Background()))
	assert.Equal(t, now.Add(-48*time.Hour), repo.lastCutoff)
}

func TestOutboxRetentionJobDeletesInBatches(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{remaining: 25}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{Batch: 10})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, repo.calls, "10 + 10 + 5")
	assert.Zero(t, repo.remaining)

	repo.remaining = 20
	repo.calls = 0
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, repo.calls, "a full last batch needs one empty probe")
}

func TestOutboxRetentionJobStopsOnCancel(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{remaining: 100}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{Batch: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Zero(t, repo.calls)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("boom")}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{})

	assert.ErrorContains(t, job.Run(context.Background()), "boom")
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	params.DB = passthroughTx{}
	params.Repository = repo
	jobIface, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	job, ok := jobIface.(*outboxRetentionJob)
	require.True(t, ok)
	return job
}

type fakeOutboxRetentionRepo struct {
	remaining  int64
	lastCutoff time.Time
	lastLimit  int
	calls      int
	err        error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	f.calls++
	f.lastCutoff = cutoff
	f.lastLimit = limit
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
