// internal/services/engine.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/remix-engine/internal/config"
)

// Engine wires every service from one config. Handlers, the server and the
// CLI all build on it.
type Engine struct {
	Config *config.Config
	DB     *gorm.DB

	Templates   *TemplateService
	Lineage     *LineageService
	Renderer    *RenderService
	Ledger      *LedgerService
	Royalties   *RoyaltyService
	Trending    *TrendingService
	Alerts      *AlertService
	Leaderboard *LeaderboardService
	Storage     *StorageService
	Statements  *StatementService

	RoyaltyConsumer  *LedgerConsumer
	TrendingConsumer *LedgerConsumer
	trendingCursors  *MemoryCursorStore

	redisClient *redis.Client
	asynqClient *asynq.Client
	wg          sync.WaitGroup
}

func NewEngine(db *gorm.DB, cfg *config.Config) (*Engine, error) {
	e := &Engine{Config: cfg, DB: db}

	var queue TaskEnqueuer
	var leaderboardClient redis.UniversalClient
	if cfg.Redis.Enabled() {
		e.redisClient = NewRedisClient(cfg.Redis)
		e.asynqClient = NewAsynqClient(cfg.Redis)
		queue = e.asynqClient
		leaderboardClient = e.redisClient
	}

	storage, err := NewStorageService(cfg)
	if err != nil {
		return nil, err
	}

	e.Templates = NewTemplateService(db, cfg.Lineage.MaxDepth)
	e.Lineage = NewLineageService(db, cfg.Lineage.MaxDepth, cfg.Lineage.WalkTimeout)
	e.Renderer = NewRenderService()
	e.Ledger = NewLedgerService(db, e.Templates)
	e.Alerts = NewAlertService(queue)
	e.Royalties = NewRoyaltyService(db, e.Ledger, e.Lineage, NewSplitPolicy(cfg.Royalty), e.Alerts)
	e.Trending = NewTrendingService(cfg.Trending, e.Templates, e.Ledger)
	e.Leaderboard = NewLeaderboardService(leaderboardClient)
	e.Storage = storage
	e.Statements = NewStatementService(db, storage)

	e.Templates.AddRemixObserver(e.Trending)

	e.trendingCursors = NewMemoryCursorStore()
	e.RoyaltyConsumer = NewLedgerConsumer(RoyaltyConsumerName, e.Ledger, NewDBCursorStore(db), e.Royalties,
		cfg.Consumer.BatchSize, cfg.Consumer.PollInterval, cfg.Consumer.GapTimeout)
	e.TrendingConsumer = NewLedgerConsumer(TrendingConsumerName, e.Ledger, e.trendingCursors, e.Trending,
		cfg.Consumer.BatchSize, cfg.Consumer.PollInterval, cfg.Consumer.GapTimeout)

	logrus.WithFields(logrus.Fields{
		"royalty_policy": e.Royalties.Policy().Name(),
		"redis":          cfg.Redis.Enabled(),
		"s3":             storage.s3Client != nil,
	}).Info("Engine initialized")

	return e, nil
}

// Start warms the trending aggregator and launches the ledger consumers and
// background loops. They stop when ctx is cancelled; Wait blocks until then.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Trending.Warm(ctx, e.trendingCursors); err != nil {
		return err
	}

	e.spawn(func() { e.RoyaltyConsumer.Run(ctx) })
	e.spawn(func() { e.TrendingConsumer.Run(ctx) })
	e.spawn(func() { e.expireTrending(ctx) })
	e.spawn(func() { e.Leaderboard.Run(ctx, e.Trending, e.Config.Trending.Bucket) })

	return nil
}

func (e *Engine) spawn(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

func (e *Engine) expireTrending(ctx context.Context) {
	ticker := time.NewTicker(e.Config.Trending.Bucket)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Trending.Expire()
		}
	}
}

func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) Close() {
	if e.asynqClient != nil {
		if err := e.asynqClient.Close(); err != nil {
			logrus.WithError(err).Warn("Error closing task queue client")
		}
	}
	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			logrus.WithError(err).Warn("Error closing Redis client")
		}
	}
}
