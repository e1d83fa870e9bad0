// internal/services/leaderboard_service.go
package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/config"
	"github.com/javajoker/remix-engine/internal/models"
)

const (
	leaderboardKey  = "remix:trending"
	leaderboardSize = 100
)

// LeaderboardService mirrors the top trending scores into a Redis sorted set
// for read-heavy feed servers. Without a client every call is a no-op.
type LeaderboardService struct {
	client redis.UniversalClient
	key    string
	size   int
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewLeaderboardService(client redis.UniversalClient) *LeaderboardService {
	return &LeaderboardService{
		client: client,
		key:    leaderboardKey,
		size:   leaderboardSize,
	}
}

func (s *LeaderboardService) Enabled() bool {
	return s.client != nil
}

// Publish replaces the sorted set with scores in one transaction, so readers
// never see a half-written board.
func (s *LeaderboardService) Publish(ctx context.Context, scores []models.TrendingScore, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}

	members := make([]redis.Z, 0, len(scores))
	for _, score := range scores {
		members = append(members, redis.Z{Score: score.DecayedScore, Member: score.TemplateID.String()})
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, s.key, members...)
		pipe.Expire(ctx, s.key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(err, "failed to publish trending leaderboard")
	}
	return nil
}

// Top reads the mirrored board, highest score first.
func (s *LeaderboardService) Top(ctx context.Context, limit int64) ([]redis.Z, error) {
	if !s.Enabled() {
		return nil, nil
	}
	members, err := s.client.ZRevRangeWithScores(ctx, s.key, 0, limit-1).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read trending leaderboard")
	}
	return members, nil
}

// Run publishes the trending top list every interval until ctx is done.
func (s *LeaderboardService) Run(ctx context.Context, trending *TrendingService, interval time.Duration) {
	if !s.Enabled() {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Publish(ctx, trending.GetTrending(s.size), 3*interval); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Warn("Trending leaderboard publish failed")
			}
		}
	}
}
