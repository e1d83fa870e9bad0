// internal/services/trending_service.go
package services

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/config"
	"github.com/javajoker/remix-engine/internal/models"
)

const TrendingConsumerName = "trending"

// TrendingService keeps per-template use and remix counts over a trailing
// window. Counts live in fixed-width time buckets so expiry is a map delete,
// and the window is accurate to one bucket.
type TrendingService struct {
	templates *TemplateService
	ledger    *LedgerService

	window      time.Duration
	bucket      time.Duration
	halfLife    time.Duration
	remixWeight float64
	viralAbove  float64

	mu    sync.Mutex
	now   func() time.Time
	stats map[uuid.UUID]*templateActivity
}

type templateActivity struct {
	createdAt time.Time
	uses      map[int64]int64 // bucket start (unix nanos) -> count
	remixes   map[int64]int64
}

func NewTrendingService(cfg config.TrendingConfig, templates *TemplateService, ledger *LedgerService) *TrendingService {
	return &TrendingService{
		templates:   templates,
		ledger:      ledger,
		window:      cfg.Window,
		bucket:      cfg.Bucket,
		halfLife:    cfg.HalfLife,
		remixWeight: cfg.RemixWeight,
		viralAbove:  cfg.ViralThreshold,
		now:         func() time.Time { return time.Now().UTC() },
		stats:       make(map[uuid.UUID]*templateActivity),
	}
}

// SetClock replaces the wall clock, for tests.
func (s *TrendingService) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *TrendingService) RecordUse(tmpl *models.PromptTemplate, at time.Time) {
	s.record(tmpl, at, false)
}

// RecordRemix counts a new child of parent. It satisfies RemixObserver.
func (s *TrendingService) RecordRemix(parent *models.PromptTemplate, at time.Time) {
	s.record(parent, at, true)
}

func (s *TrendingService) record(tmpl *models.PromptTemplate, at time.Time, remix bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !at.After(s.cutoff()) {
		return
	}

	activity, ok := s.stats[tmpl.ID]
	if !ok {
		activity = &templateActivity{
			createdAt: tmpl.CreatedAt,
			uses:      make(map[int64]int64),
			remixes:   make(map[int64]int64),
		}
		s.stats[tmpl.ID] = activity
	}

	key := at.Truncate(s.bucket).UnixNano()
	if remix {
		activity.remixes[key]++
	} else {
		activity.uses[key]++
	}
}

func (s *TrendingService) cutoff() time.Time {
	return s.now().Add(-s.window)
}

// Expire drops buckets that have left the window and templates with no
// activity left.
func (s *TrendingService) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
}

func (s *TrendingService) expireLocked() {
	cutoff := s.cutoff()
	for id, activity := range s.stats {
		s.expireBuckets(activity.uses, cutoff)
		s.expireBuckets(activity.remixes, cutoff)
		if len(activity.uses) == 0 && len(activity.remixes) == 0 {
			delete(s.stats, id)
		}
	}
}

// A bucket stays while any part of it is inside the window.
func (s *TrendingService) expireBuckets(buckets map[int64]int64, cutoff time.Time) {
	for start := range buckets {
		end := time.Unix(0, start).Add(s.bucket)
		if !end.After(cutoff) {
			delete(buckets, start)
		}
	}
}

func (s *TrendingService) scoreLocked(id uuid.UUID, activity *templateActivity) models.TrendingScore {
	now := s.now()
	var uses, remixes int64
	var weightedUses, weightedRemixes float64

	for start, n := range activity.uses {
		uses += n
		weightedUses += float64(n) * s.weight(now, start)
	}
	for start, n := range activity.remixes {
		remixes += n
		weightedRemixes += float64(n) * s.weight(now, start)
	}

	denominator := uses
	if denominator < 1 {
		denominator = 1
	}

	coefficient := float64(remixes) / float64(denominator)
	return models.TrendingScore{
		TemplateID:       id,
		WindowUses:       uses,
		WindowRemixes:    remixes,
		ViralCoefficient: coefficient,
		DecayedScore:     weightedUses + s.remixWeight*weightedRemixes,
		Viral:            s.viralAbove > 0 && coefficient > s.viralAbove,
		CreatedAt:        activity.createdAt,
	}
}

// weight is 1 unless a half-life is configured, then it halves every
// half-life of bucket age.
func (s *TrendingService) weight(now time.Time, bucketStart int64) float64 {
	if s.halfLife <= 0 {
		return 1
	}
	age := now.Sub(time.Unix(0, bucketStart))
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(s.halfLife))
}

// GetTrending returns up to limit templates by score, newest template first
// on a tie, then by id. limit <= 0 returns every template with activity.
func (s *TrendingService) GetTrending(limit int) []models.TrendingScore {
	s.mu.Lock()
	s.expireLocked()
	scores := make([]models.TrendingScore, 0, len(s.stats))
	for id, activity := range s.stats {
		scores = append(scores, s.scoreLocked(id, activity))
	}
	s.mu.Unlock()

	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.DecayedScore != b.DecayedScore {
			return a.DecayedScore > b.DecayedScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.TemplateID.String() < b.TemplateID.String()
	})

	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}

// Score reports the template's current window. ok is false when the template
// has no activity inside the window.
func (s *TrendingService) Score(id uuid.UUID) (models.TrendingScore, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity, ok := s.stats[id]
	if !ok {
		return models.TrendingScore{TemplateID: id}, false
	}
	s.expireBuckets(activity.uses, s.cutoff())
	s.expireBuckets(activity.remixes, s.cutoff())
	if len(activity.uses) == 0 && len(activity.remixes) == 0 {
		delete(s.stats, id)
		return models.TrendingScore{TemplateID: id, CreatedAt: activity.createdAt}, false
	}
	return s.scoreLocked(id, activity), true
}

// HandleEvent counts a ledger event as a use. It is the trending consumer's
// handler.
func (s *TrendingService) HandleEvent(ctx context.Context, event *models.UsageEvent) error {
	tmpl, err := s.templates.Get(ctx, event.TemplateID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			logrus.WithFields(logrus.Fields{
				"event_id":    event.ID,
				"template_id": event.TemplateID,
			}).Warn("Trending skipped event for unknown template")
			return nil
		}
		return err
	}

	s.RecordUse(tmpl, event.OccurredAt)
	return nil
}

// Warm rebuilds in-memory state after a restart. Remixes created inside the
// window are replayed from the template table and the consumer cursor is
// moved to the first ledger event inside the window, so the full history is
// never re-read.
func (s *TrendingService) Warm(ctx context.Context, cursors CursorStore) error {
	s.mu.Lock()
	since := s.cutoff()
	s.mu.Unlock()

	children, err := s.templates.ListCreatedSince(ctx, since)
	if err != nil {
		return err
	}

	replayed := 0
	for i := range children {
		child := &children[i]
		if child.ParentID == nil {
			continue
		}
		parent, err := s.templates.Get(ctx, *child.ParentID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return err
		}
		s.RecordRemix(parent, child.CreatedAt)
		replayed++
	}

	position, err := s.ledger.FirstSequenceSince(ctx, since)
	if err != nil {
		return err
	}
	if err := cursors.Save(ctx, TrendingConsumerName, position); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"since":           since,
		"remixes":         replayed,
		"ledger_position": position,
	}).Info("Trending aggregator warmed")
	return nil
}
