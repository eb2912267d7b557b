package archive

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/prepdash/battle-backend/internal/battle"
)

// BattleRecord is the persisted shape of a terminal battle outcome. Only
// what is needed to declare the result is kept; no per-submission history.
type BattleRecord struct {
	ID           string `gorm:"primaryKey"`
	ProblemID    string `gorm:"index"`
	Status       string
	WinnerID     string
	Participants int
	CreatedAt    time.Time
	StartedAt    time.Time
	EndedAt      time.Time
}

func (BattleRecord) TableName() string { return "battle_records" }

// Store persists battle outcomes to postgres. It satisfies
// battle.Archiver.
type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open archive db")
	}
	if err := db.AutoMigrate(&BattleRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate battle_records")
	}
	return &Store{db: db}, nil
}

func (s *Store) Record(ctx context.Context, o battle.Outcome) error {
	rec := BattleRecord{
		ID:           o.BattleID,
		ProblemID:    o.ProblemID,
		Status:       string(o.Status),
		WinnerID:     o.WinnerID,
		Participants: o.Participants,
		CreatedAt:    o.CreatedAt,
		StartedAt:    o.StartedAt,
		EndedAt:      o.EndedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrap(err, "insert battle record")
	}
	return nil
}
