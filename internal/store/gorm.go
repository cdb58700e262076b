package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/internal/engine"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const pgUniqueViolation = "23505"

// MatchRecord is the table row for a match. The event log is kept as a JSON
// column since it is only ever read and written whole.
type MatchRecord struct {
	MatchID            string         `gorm:"primaryKey;size:64"`
	Title              string         `gorm:"not null"`
	VideoID            string
	TeamA              string         `gorm:"not null"`
	TeamB              string         `gorm:"not null"`
	ScoreA             int
	ScoreB             int
	SetNumber          int
	IsLive             bool           `gorm:"index"`
	AutoScoringEnabled bool
	EventLog           []engine.Event `gorm:"serializer:json;type:text"`
	LastUpdated        time.Time      `gorm:"index"`
	CreatedBy          string
	CreatedAt          time.Time      `gorm:"autoCreateTime:false"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime:false"`
}

func (MatchRecord) TableName() string { return "matches" }

// OpenGorm connects to the given driver ("postgres" or "sqlite") and
// migrates the matches table.
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.AutoMigrate(&MatchRecord{}); err != nil {
		return nil, fmt.Errorf("migrate matches: %w", err)
	}
	return db, nil
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Get(ctx context.Context, id string) (engine.Match, error) {
	var rec MatchRecord
	err := r.db.WithContext(ctx).First(&rec, "match_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Match{}, engine.ErrMatchNotFound
	}
	if err != nil {
		return engine.Match{}, err
	}
	return rec.toMatch(), nil
}

func (r *GormRepository) Create(ctx context.Context, m engine.Match) error {
	rec := recordFrom(m)
	err := r.db.WithContext(ctx).Create(&rec).Error
	if isDuplicate(err) {
		return ErrDuplicateMatch
	}
	return err
}

func (r *GormRepository) Save(ctx context.Context, m engine.Match) error {
	rec := recordFrom(m)
	res := r.db.WithContext(ctx).
		Model(&MatchRecord{}).
		Where("match_id = ?", m.MatchID).
		Select("*").
		Omit("match_id", "created_at").
		Updates(&rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return engine.ErrMatchNotFound
	}
	return nil
}

func (r *GormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&MatchRecord{}, "match_id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return engine.ErrMatchNotFound
	}
	return nil
}

func (r *GormRepository) List(ctx context.Context, opts ListOptions) ([]engine.Match, error) {
	q := r.db.WithContext(ctx)
	if opts.LiveOnly {
		q = q.Where("is_live = ?", true).Order("last_updated desc")
	} else {
		q = q.Order("created_at desc")
	}

	var recs []MatchRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}

	out := make([]engine.Match, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toMatch())
	}
	return out, nil
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// sqlite builds without error translation
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func recordFrom(m engine.Match) MatchRecord {
	return MatchRecord{
		MatchID:            m.MatchID,
		Title:              m.Title,
		VideoID:            m.VideoID,
		TeamA:              m.TeamA,
		TeamB:              m.TeamB,
		ScoreA:             m.ScoreA,
		ScoreB:             m.ScoreB,
		SetNumber:          m.SetNumber,
		IsLive:             m.IsLive,
		AutoScoringEnabled: m.AutoScoringEnabled,
		EventLog:           m.Clone().EventLog,
		LastUpdated:        m.LastUpdated,
		CreatedBy:          m.CreatedBy,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func (rec MatchRecord) toMatch() engine.Match {
	m := engine.Match{
		MatchID:            rec.MatchID,
		Title:              rec.Title,
		VideoID:            rec.VideoID,
		TeamA:              rec.TeamA,
		TeamB:              rec.TeamB,
		ScoreA:             rec.ScoreA,
		ScoreB:             rec.ScoreB,
		SetNumber:          rec.SetNumber,
		IsLive:             rec.IsLive,
		AutoScoringEnabled: rec.AutoScoringEnabled,
		EventLog:           rec.EventLog,
		LastUpdated:        rec.LastUpdated,
		CreatedBy:          rec.CreatedBy,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
	if m.EventLog == nil {
		m.EventLog = []engine.Event{}
	}
	return m
}
