// internal/services/cursor_store.go
package services

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/models"
)

// CursorStore remembers the last ledger sequence each named consumer has
// fully processed.
type CursorStore interface {
	Load(ctx context.Context, name string) (uint64, error)
	Save(ctx context.Context, name string, position uint64) error
}

// DBCursorStore keeps cursors in consumer_cursors so they survive restarts.
type DBCursorStore struct {
	db *gorm.DB
}

func NewDBCursorStore(db *gorm.DB) *DBCursorStore {
	return &DBCursorStore{db: db}
}

func (s *DBCursorStore) Load(ctx context.Context, name string) (uint64, error) {
	var cursor models.ConsumerCursor
	if err := s.db.WithContext(ctx).First(&cursor, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, apperrors.Wrapf(err, "failed to load cursor %s", name)
	}
	return cursor.Position, nil
}

func (s *DBCursorStore) Save(ctx context.Context, name string, position uint64) error {
	cursor := models.ConsumerCursor{Name: name, Position: position}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"position", "updated_at"}),
	}).Create(&cursor).Error
	if err != nil {
		return apperrors.Wrapf(err, "failed to save cursor %s", name)
	}
	return nil
}

// MemoryCursorStore is for consumers whose state is itself in memory and is
// rebuilt on start.
type MemoryCursorStore struct {
	mu        sync.Mutex
	positions map[string]uint64
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{positions: make(map[string]uint64)}
}

func (s *MemoryCursorStore) Load(_ context.Context, name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[name], nil
}

func (s *MemoryCursorStore) Save(_ context.Context, name string, position uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[name] = position
	return nil
}
