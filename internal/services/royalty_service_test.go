package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/models"
	"github.com/javajoker/remix-engine/internal/utils"
)

type RoyaltyServiceTestSuite struct {
	suite.Suite
	engine *Engine
	queue  *recordingQueue
	ctx    context.Context
	alice  uuid.UUID
	bob    uuid.UUID
}

func (suite *RoyaltyServiceTestSuite) SetupTest() {
	suite.engine = newTestEngine(suite.T())
	suite.queue = &recordingQueue{}
	suite.engine.Royalties.alerts = NewAlertService(suite.queue)
	suite.ctx = context.Background()
	suite.alice = uuid.New()
	suite.bob = uuid.New()
}

func (suite *RoyaltyServiceTestSuite) appendUsage(templateID uuid.UUID, revenue int64) *models.UsageEvent {
	event, _, err := suite.engine.Ledger.Append(suite.ctx, &AppendUsageRequest{
		TemplateID:    templateID,
		RevenueAmount: revenue,
		Source:        models.UsageSourceAPI,
		DedupKey:      uuid.NewString(),
	})
	require.NoError(suite.T(), err)
	return event
}

func (suite *RoyaltyServiceTestSuite) drain() {
	require.NoError(suite.T(), suite.engine.RoyaltyConsumer.Drain(suite.ctx))
}

func (suite *RoyaltyServiceTestSuite) TestRootTemplateTakesEverything() {
	root := newRootTemplate(suite.T(), suite.engine, suite.alice)
	event := suite.appendUsage(root.ID, 1000)
	suite.drain()

	entries, err := suite.engine.Royalties.EntriesForEvent(suite.ctx, event.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), entries, 1)
	assert.Equal(suite.T(), suite.alice, entries[0].BeneficiaryID)
	assert.Equal(suite.T(), int64(1000), entries[0].Amount)
	assert.Equal(suite.T(), 10000, entries[0].ShareBasisPoints)
	assert.Equal(suite.T(), 1.0, entries[0].Share())
}

func (suite *RoyaltyServiceTestSuite) TestRemixSplitsNinetyTen() {
	root := newRootTemplate(suite.T(), suite.engine, suite.alice)
	child, err := suite.engine.Templates.Remix(suite.ctx, suite.bob, root.ID, &RemixRequest{Append: "Use {format}."})
	require.NoError(suite.T(), err)

	event := suite.appendUsage(child.ID, 1000)
	suite.drain()

	entries, err := suite.engine.Royalties.EntriesForEvent(suite.ctx, event.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), entries, 2)

	assert.Equal(suite.T(), suite.bob, entries[0].BeneficiaryID)
	assert.Equal(suite.T(), child.ID, entries[0].TemplateID)
	assert.Equal(suite.T(), int64(900), entries[0].Amount)
	assert.Equal(suite.T(), suite.alice, entries[1].BeneficiaryID)
	assert.Equal(suite.T(), root.ID, entries[1].TemplateID)
	assert.Equal(suite.T(), int64(100), entries[1].Amount)
}

func (suite *RoyaltyServiceTestSuite) TestSelfRemixMergesIntoOneEntry() {
	root := newRootTemplate(suite.T(), suite.engine, suite.alice)
	child, err := suite.engine.Templates.Remix(suite.ctx, suite.alice, root.ID, &RemixRequest{Prepend: "Note:"})
	require.NoError(suite.T(), err)

	event := suite.appendUsage(child.ID, 999)
	suite.drain()

	entries, err := suite.engine.Royalties.EntriesForEvent(suite.ctx, event.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), entries, 1)
	assert.Equal(suite.T(), int64(999), entries[0].Amount)
}

func (suite *RoyaltyServiceTestSuite) TestReprocessingIsIdempotent() {
	root := newRootTemplate(suite.T(), suite.engine, suite.alice)
	child, err := suite.engine.Templates.Remix(suite.ctx, suite.bob, root.ID, &RemixRequest{})
	require.NoError(suite.T(), err)
	event := suite.appendUsage(child.ID, 1001)

	for i := 0; i < 3; i++ {
		require.NoError(suite.T(), suite.engine.Royalties.HandleEvent(suite.ctx, event))
	}

	entries, err := suite.engine.Royalties.EntriesForEvent(suite.ctx, event.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), entries, 2)
	assert.Equal(suite.T(), int64(901), entries[0].Amount)
	assert.Equal(suite.T(), int64(100), entries[1].Amount)
}

func (suite *RoyaltyServiceTestSuite) TestUnmonetizedEventsWriteNothing() {
	root := newRootTemplate(suite.T(), suite.engine, suite.alice)
	event := suite.appendUsage(root.ID, 0)
	suite.drain()

	entries, err := suite.engine.Royalties.EntriesForEvent(suite.ctx, event.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), entries)

	position, err := NewDBCursorStore(suite.engine.DB).Load(suite.ctx, RoyaltyConsumerName)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), event.Sequence, position)
}

func (suite *RoyaltyServiceTestSuite) TestCorruptLineageIsDeadLettered() {
	root := newRootTemplate(suite.T(), suite.engine, suite.alice)
	child, err := suite.engine.Templates.Remix(suite.ctx, suite.bob, root.ID, &RemixRequest{})
	require.NoError(suite.T(), err)

	broken := suite.appendUsage(child.ID, 500)
	healthy := suite.appendUsage(root.ID, 300)

	require.NoError(suite.T(), suite.engine.DB.Exec("UPDATE prompt_templates SET parent_id = ? WHERE id = ?", uuid.New(), child.ID).Error)
	suite.drain()

	// the consumer moved past the poisoned event
	position, err := NewDBCursorStore(suite.engine.DB).Load(suite.ctx, RoyaltyConsumerName)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), healthy.Sequence, position)

	entries, err := suite.engine.Royalties.EntriesForEvent(suite.ctx, broken.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), entries)
	entries, err = suite.engine.Royalties.EntriesForEvent(suite.ctx, healthy.ID)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), entries, 1)

	letters, total, err := suite.engine.Royalties.DeadLetters(suite.ctx, DeadLetterParams{PaginationParams: utils.DefaultPagination()})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int64(1), total)
	assert.Equal(suite.T(), broken.ID, letters[0].UsageEventID)
	assert.Equal(suite.T(), models.DeadLetterKindCorruptLineage, letters[0].ErrorKind)

	tasks := suite.queue.Tasks()
	require.Len(suite.T(), tasks, 1)
	assert.Equal(suite.T(), TypeDeadLetterAlert, tasks[0].Type())
	var payload DeadLetterAlertPayload
	require.NoError(suite.T(), json.Unmarshal(tasks[0].Payload(), &payload))
	assert.Equal(suite.T(), broken.ID, payload.UsageEventID)

	// handling the same event again neither duplicates the letter nor re-alerts
	require.NoError(suite.T(), suite.engine.Royalties.HandleEvent(suite.ctx, broken))
	assert.Len(suite.T(), suite.queue.Tasks(), 1)

	// repair the lineage and redrive
	require.NoError(suite.T(), suite.engine.DB.Exec("UPDATE prompt_templates SET parent_id = ? WHERE id = ?", root.ID, child.ID).Error)
	entries, err = suite.engine.Royalties.Redrive(suite.ctx, letters[0].ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), entries, 2)
	assert.Equal(suite.T(), int64(450), entries[0].Amount)
	assert.Equal(suite.T(), int64(50), entries[1].Amount)

	_, err = suite.engine.Royalties.Redrive(suite.ctx, letters[0].ID)
	assert.True(suite.T(), apperrors.IsValidation(err))

	_, open, err := suite.engine.Royalties.DeadLetters(suite.ctx, DeadLetterParams{PaginationParams: utils.DefaultPagination()})
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), open)
	_, all, err := suite.engine.Royalties.DeadLetters(suite.ctx, DeadLetterParams{PaginationParams: utils.DefaultPagination(), IncludeRedriven: true})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), all)
}

func (suite *RoyaltyServiceTestSuite) TestMissingTemplateIsDeadLettered() {
	root := newRootTemplate(suite.T(), suite.engine, suite.alice)
	event := suite.appendUsage(root.ID, 100)
	require.NoError(suite.T(), suite.engine.DB.Exec("DELETE FROM prompt_templates WHERE id = ?", root.ID).Error)

	suite.drain()

	letters, _, err := suite.engine.Royalties.DeadLetters(suite.ctx, DeadLetterParams{PaginationParams: utils.DefaultPagination()})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), letters, 1)
	assert.Equal(suite.T(), event.ID, letters[0].UsageEventID)
	assert.Equal(suite.T(), models.DeadLetterKindNotFound, letters[0].ErrorKind)
}

func (suite *RoyaltyServiceTestSuite) TestEarnings() {
	root := newRootTemplate(suite.T(), suite.engine, suite.alice)
	child, err := suite.engine.Templates.Remix(suite.ctx, suite.bob, root.ID, &RemixRequest{})
	require.NoError(suite.T(), err)

	suite.appendUsage(root.ID, 1000)
	suite.appendUsage(child.ID, 1000)
	suite.drain()

	earnings, err := suite.engine.Royalties.Earnings(suite.ctx, suite.alice)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1100), earnings.TotalAmount)
	assert.Equal(suite.T(), int64(2), earnings.EntryCount)
	assert.NotNil(suite.T(), earnings.LastEarnedAt)

	entries, total, err := suite.engine.Royalties.EntriesForBeneficiary(suite.ctx, suite.bob, utils.DefaultPagination())
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)
	assert.Equal(suite.T(), int64(900), entries[0].Amount)

	nobody, err := suite.engine.Royalties.Earnings(suite.ctx, uuid.New())
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), nobody.TotalAmount)
	assert.Nil(suite.T(), nobody.LastEarnedAt)
}

func (suite *RoyaltyServiceTestSuite) assertNothingWritten(event *models.UsageEvent) {
	entries, err := suite.engine.Royalties.EntriesForEvent(suite.ctx, event.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), entries)

	letters, total, err := suite.engine.Royalties.DeadLetters(suite.ctx, DeadLetterParams{PaginationParams: utils.DefaultPagination()})
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), total)
	assert.Empty(suite.T(), letters)
}

func (suite *RoyaltyServiceTestSuite) TestLineageTimeoutIsRetriedNotDeadLettered() {
	root := newRootTemplate(suite.T(), suite.engine, suite.alice)
	child, err := suite.engine.Templates.Remix(suite.ctx, suite.bob, root.ID, &RemixRequest{})
	require.NoError(suite.T(), err)
	event := suite.appendUsage(child.ID, 1000)

	suite.engine.Lineage.walkTimeout = time.Nanosecond

	err = suite.engine.Royalties.HandleEvent(suite.ctx, event)
	require.Error(suite.T(), err)
	assert.ErrorIs(suite.T(), err, context.DeadlineExceeded)
	assert.False(suite.T(), apperrors.IsCorruptLineage(err))
	assert.False(suite.T(), apperrors.IsNotFound(err))
	suite.assertNothingWritten(event)

	_, err = suite.engine.RoyaltyConsumer.ProcessBatch(suite.ctx)
	require.Error(suite.T(), err)
	position, err := NewDBCursorStore(suite.engine.DB).Load(suite.ctx, RoyaltyConsumerName)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), event.Sequence-1, position)

	// the event is distributed once the walk can finish
	suite.engine.Lineage.walkTimeout = 2 * time.Second
	suite.drain()
	entries, err := suite.engine.Royalties.EntriesForEvent(suite.ctx, event.ID)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), entries, 2)
}

func (suite *RoyaltyServiceTestSuite) TestCancelledDistributionWritesNothing() {
	root := newRootTemplate(suite.T(), suite.engine, suite.alice)
	child, err := suite.engine.Templates.Remix(suite.ctx, suite.bob, root.ID, &RemixRequest{})
	require.NoError(suite.T(), err)
	event := suite.appendUsage(child.ID, 1000)

	ctx, cancel := context.WithCancel(suite.ctx)
	cancel()

	err = suite.engine.Royalties.HandleEvent(ctx, event)
	require.Error(suite.T(), err)
	assert.ErrorIs(suite.T(), err, context.Canceled)
	suite.assertNothingWritten(event)
}

func TestRoyaltyServiceSuite(t *testing.T) {
	suite.Run(t, new(RoyaltyServiceTestSuite))
}
