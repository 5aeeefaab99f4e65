package settings

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Well-known setting names consumed by the harvester core.
const (
	KeyAccessToken  = "access_token"
	KeyAPICode      = "api_code"
	KeyPollInterval = "interval_updates"
	KeyAdhocRunning = "is_adhoc_running"
	KeyHourlyQuota  = "api_hourly"
)

var ErrNotFound = errors.New("setting not found")

type Setting struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	Name      string    `json:"name" gorm:"column:name;uniqueIndex"`
	Value     string    `json:"value" gorm:"column:value"`
	Help      string    `json:"help,omitempty" gorm:"column:help"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Setting{})
}

func (s *Store) Get(ctx context.Context, name string) (string, error) {
	var setting Setting
	result := s.db.WithContext(ctx).Where("name = ?", name).First(&setting)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	return setting.Value, result.Error
}

func (s *Store) Set(ctx context.Context, name, value string) error {
	setting := Setting{
		ID:    uuid.New().String(),
		Name:  name,
		Value: value,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
}

// GetInt reads a numeric setting, falling back when missing or malformed.
func (s *Store) GetInt(ctx context.Context, name string, fallback int) int {
	raw, err := s.Get(ctx, name)
	if err != nil {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	return fallback
}
