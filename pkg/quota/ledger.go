package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestEntry is an append-only marker for one outbound API call. Entries
// are only ever counted and pruned, never referenced.
type RequestEntry struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
}

func (RequestEntry) TableName() string {
	return "api_requests"
}

type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) AutoMigrate() error {
	return l.db.AutoMigrate(&RequestEntry{})
}

func (l *Ledger) RecordCall(ctx context.Context) error {
	entry := RequestEntry{ID: uuid.New().String()}
	return l.db.WithContext(ctx).Create(&entry).Error
}

func (l *Ledger) CountSince(ctx context.Context, window time.Duration) (int64, error) {
	var count int64
	result := l.db.WithContext(ctx).
		Model(&RequestEntry{}).
		Where("created_at >= ?", time.Now().Add(-window)).
		Count(&count)
	return count, result.Error
}

func (l *Ledger) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	result := l.db.WithContext(ctx).
		Where("created_at < ?", time.Now().Add(-age)).
		Delete(&RequestEntry{})
	return result.RowsAffected, result.Error
}
