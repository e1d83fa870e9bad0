// internal/services/consumer.go
package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/models"
)

// EventHandler processes one ledger event. A returned error stops the batch
// and the event is offered again on the next poll; handlers that want to
// skip a poisoned event must park it themselves and return nil.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *models.UsageEvent) error
}

type EventHandlerFunc func(ctx context.Context, event *models.UsageEvent) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *models.UsageEvent) error {
	return f(ctx, event)
}

// LedgerConsumer tails the usage ledger from its own cursor. Consumers never
// share a cursor, so one falling behind does not hold back another.
//
// Sequences are contiguous, so a missing sequence means an append that has
// not committed yet. The consumer holds its cursor below the gap and only
// steps over it once the gap has been open for gapTimeout.
type LedgerConsumer struct {
	name         string
	ledger       *LedgerService
	cursors      CursorStore
	handler      EventHandler
	batchSize    int
	pollInterval time.Duration
	gapTimeout   time.Duration

	now      func() time.Time
	gapAt    uint64
	gapSince time.Time
}

func NewLedgerConsumer(name string, ledger *LedgerService, cursors CursorStore, handler EventHandler, batchSize int, pollInterval, gapTimeout time.Duration) *LedgerConsumer {
	return &LedgerConsumer{
		name:         name,
		ledger:       ledger,
		cursors:      cursors,
		handler:      handler,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		gapTimeout:   gapTimeout,
		now:          time.Now,
	}
}

// SetClock replaces the wall clock used to age sequence gaps, for tests.
func (c *LedgerConsumer) SetClock(now func() time.Time) {
	c.now = now
}

func (c *LedgerConsumer) Name() string {
	return c.name
}

// ProcessBatch handles up to one batch past the cursor and returns how many
// events were handled. The cursor is saved after every handled event. The
// batch stops early at a sequence gap that is still inside its grace period.
func (c *LedgerConsumer) ProcessBatch(ctx context.Context) (int, error) {
	position, err := c.cursors.Load(ctx, c.name)
	if err != nil {
		return 0, err
	}

	events, err := c.ledger.EventsAfter(ctx, position, c.batchSize)
	if err != nil {
		return 0, err
	}

	expected := position + 1
	for i := range events {
		event := &events[i]
		if event.Sequence != expected && !c.skipGap(expected, event.Sequence) {
			return i, nil
		}

		if err := c.handler.HandleEvent(ctx, event); err != nil {
			return i, apperrors.Wrapf(err, "consumer %s at sequence %d", c.name, event.Sequence)
		}
		if err := c.cursors.Save(ctx, c.name, event.Sequence); err != nil {
			return i + 1, err
		}
		expected = event.Sequence + 1
	}

	return len(events), nil
}

// skipGap reports whether the consumer may move past the missing sequences
// [missing, next). A gap is first remembered, then skipped once it is older
// than gapTimeout.
func (c *LedgerConsumer) skipGap(missing, next uint64) bool {
	now := c.now()
	if c.gapAt != missing {
		c.gapAt = missing
		c.gapSince = now
		logrus.WithFields(logrus.Fields{
			"consumer": c.name,
			"missing":  missing,
			"next":     next,
		}).Debug("Ledger gap, waiting for pending appends")
		return false
	}
	if now.Sub(c.gapSince) < c.gapTimeout {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"consumer": c.name,
		"missing":  missing,
		"next":     next,
		"waited":   now.Sub(c.gapSince).String(),
	}).Warn("Skipping ledger gap that never filled")
	c.gapAt = 0
	return true
}

// Drain runs batches until the consumer has caught up with the ledger head.
func (c *LedgerConsumer) Drain(ctx context.Context) error {
	for {
		n, err := c.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		if n < c.batchSize {
			return nil
		}
	}
}

// Run polls until ctx is cancelled. Errors are logged and retried on the
// next tick.
func (c *LedgerConsumer) Run(ctx context.Context) {
	logger := logrus.WithField("consumer", c.name)
	logger.Info("Ledger consumer started")

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if err := c.Drain(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Ledger consumer batch failed")
		}

		select {
		case <-ctx.Done():
			logger.Info("Ledger consumer stopped")
			return
		case <-ticker.C:
		}
	}
}
