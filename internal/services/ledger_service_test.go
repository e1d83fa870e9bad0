package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/models"
	"github.com/javajoker/remix-engine/internal/utils"
)

func newRootTemplate(t *testing.T, e *Engine, owner uuid.UUID) *models.PromptTemplate {
	t.Helper()
	tmpl, err := e.Templates.Create(context.Background(), owner, &CreateTemplateRequest{Body: "You are a {role} helping with {task}."})
	require.NoError(t, err)
	return tmpl
}

func TestAppendIsIdempotentOnDedupKey(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tmpl := newRootTemplate(t, e, uuid.New())

	req := &AppendUsageRequest{
		TemplateID:        tmpl.ID,
		RenderedVariables: map[string]string{"role": "advisor", "task": "hiring"},
		RevenueAmount:     1000,
		Source:            models.UsageSourceAPI,
		DedupKey:          "req-1",
	}

	first, duplicate, err := e.Ledger.Append(ctx, req)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.NotZero(t, first.Sequence)

	second, duplicate, err := e.Ledger.Append(ctx, req)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Sequence, second.Sequence)

	count, err := e.Ledger.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAppendConcurrentDuplicatesWriteOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tmpl := newRootTemplate(t, e, uuid.New())

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			event, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{
				TemplateID: tmpl.ID,
				Source:     models.UsageSourceDirectUse,
				DedupKey:   "same-key",
			})
			if assert.NoError(t, err) {
				ids[i] = event.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	count, err := e.Ledger.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAppendValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tmpl := newRootTemplate(t, e, uuid.New())

	_, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{TemplateID: tmpl.ID, RevenueAmount: -1, Source: models.UsageSourceAPI})
	assert.True(t, apperrors.IsValidation(err))

	_, _, err = e.Ledger.Append(ctx, &AppendUsageRequest{TemplateID: tmpl.ID, Source: "gift"})
	assert.True(t, apperrors.IsValidation(err))

	_, _, err = e.Ledger.Append(ctx, &AppendUsageRequest{TemplateID: uuid.New(), Source: models.UsageSourceAPI})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAppendGeneratesDedupKey(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tmpl := newRootTemplate(t, e, uuid.New())

	a, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{TemplateID: tmpl.ID, Source: models.UsageSourceLease})
	require.NoError(t, err)
	b, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{TemplateID: tmpl.ID, Source: models.UsageSourceLease})
	require.NoError(t, err)

	assert.NotEqual(t, a.DedupKey, b.DedupKey)
	assert.Equal(t, a.ID.String(), a.DedupKey)
}

func TestEventsAfterAndSeek(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tmpl := newRootTemplate(t, e, uuid.New())
	now := time.Now().UTC()

	var events []*models.UsageEvent
	for i, age := range []time.Duration{10 * 24 * time.Hour, 9 * 24 * time.Hour, time.Hour, time.Minute} {
		occurred := now.Add(-age)
		event, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{
			TemplateID: tmpl.ID,
			Source:     models.UsageSourceAPI,
			DedupKey:   uuid.NewString(),
			OccurredAt: &occurred,
		})
		require.NoError(t, err, "event %d", i)
		events = append(events, event)
	}

	page, err := e.Ledger.EventsAfter(ctx, events[0].Sequence, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, events[1].ID, page[0].ID)
	assert.Equal(t, events[2].ID, page[1].ID)

	position, err := e.Ledger.FirstSequenceSince(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, events[2].Sequence-1, position)

	position, err = e.Ledger.FirstSequenceSince(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, events[3].Sequence, position)
}

func TestListAndStats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tmpl := newRootTemplate(t, e, uuid.New())
	other := newRootTemplate(t, e, uuid.New())

	for i := 0; i < 3; i++ {
		_, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{TemplateID: tmpl.ID, Source: models.UsageSourceAPI, RevenueAmount: 250})
		require.NoError(t, err)
	}
	_, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{TemplateID: other.ID, Source: models.UsageSourceDirectUse})
	require.NoError(t, err)

	events, total, err := e.Ledger.List(ctx, UsageSearchParams{PaginationParams: utils.DefaultPagination(), TemplateID: &tmpl.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, events, 3)

	stats, err := e.Ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Events)
	assert.Equal(t, int64(750), stats.TotalRevenue)
	assert.Equal(t, uint64(4), stats.LastSequence)

	count, err := e.Ledger.CountByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	count, err = e.Ledger.CountByTemplate(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAppendRejectsFutureOccurredAt(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tmpl := newRootTemplate(t, e, uuid.New())

	future := time.Now().Add(time.Hour)
	_, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{TemplateID: tmpl.ID, Source: models.UsageSourceAPI, OccurredAt: &future})
	assert.True(t, apperrors.IsValidation(err))

	skewed := time.Now().Add(time.Minute)
	event, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{TemplateID: tmpl.ID, Source: models.UsageSourceAPI, OccurredAt: &skewed})
	require.NoError(t, err)
	assert.WithinDuration(t, skewed, event.OccurredAt, time.Millisecond)

	count, err := e.Ledger.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAppendCancelledWritesNothing(t *testing.T) {
	e := newTestEngine(t)
	tmpl := newRootTemplate(t, e, uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{TemplateID: tmpl.ID, Source: models.UsageSourceAPI, RevenueAmount: 100})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	count, err := e.Ledger.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	var head models.LedgerHead
	require.NoError(t, e.DB.First(&head, "name = ?", models.UsageLedgerName).Error)
	assert.Zero(t, head.Position)

	// the next append takes the first sequence
	event, _, err := e.Ledger.Append(context.Background(), &AppendUsageRequest{TemplateID: tmpl.ID, Source: models.UsageSourceAPI})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), event.Sequence)
}

func TestAppendSequencesAreContiguous(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tmpl := newRootTemplate(t, e, uuid.New())

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// requests share keys in pairs; a duplicate must not burn a sequence
			_, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{
				TemplateID: tmpl.ID,
				Source:     models.UsageSourceAPI,
				DedupKey:   fmt.Sprintf("key-%d", i/2),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	events, err := e.Ledger.EventsAfter(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, events, 6)
	for i, event := range events {
		assert.Equal(t, uint64(i+1), event.Sequence)
	}

	var head models.LedgerHead
	require.NoError(t, e.DB.First(&head, "name = ?", models.UsageLedgerName).Error)
	assert.Equal(t, uint64(len(events)), head.Position)
}
