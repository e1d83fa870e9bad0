package services

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/remix-engine/internal/config"
	"github.com/javajoker/remix-engine/internal/database"
	"github.com/javajoker/remix-engine/internal/models"
)

func testConfig(t testing.TB) *config.Config {
	return &config.Config{
		Environment: "test",
		Lineage:     config.LineageConfig{MaxDepth: 64, WalkTimeout: 2 * time.Second},
		Royalty: config.RoyaltyConfig{
			Policy:          config.RoyaltyPolicySingleHop,
			CreatorShareBps: 9000,
			MaxHops:         8,
		},
		Trending: config.TrendingConfig{
			Window:      7 * 24 * time.Hour,
			RemixWeight: 10,
			Bucket:      time.Minute,

			ViralThreshold: 0.1,
		},
		Consumer: config.ConsumerConfig{
			Enabled:      true,
			PollInterval: 10 * time.Millisecond,
			BatchSize:    100,
			GapTimeout:   time.Minute,
		},
		Statements: config.StatementsConfig{LocalDir: t.TempDir()},
	}
}

func newTestEngine(t testing.TB, mutate ...func(*config.Config)) *Engine {
	cfg := testConfig(t)
	for _, m := range mutate {
		m(cfg)
	}
	e, err := NewEngine(database.NewTestDB(t), cfg)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *recordingQueue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type()}, nil
}

func (q *recordingQueue) Tasks() []*asynq.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*asynq.Task(nil), q.tasks...)
}

type recordingObserver struct {
	mu      sync.Mutex
	parents []uuid.UUID
}

func (o *recordingObserver) RecordRemix(parent *models.PromptTemplate, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.parents = append(o.parents, parent.ID)
}
