package store

import (
	"context"
	"fmt"

	"minter-core/internal/model"

	"gorm.io/gorm"
)

// GormLog stores records in the minter_events table.
type GormLog struct {
	db *gorm.DB
}

func NewGormLog(db *gorm.DB) *GormLog {
	return &GormLog{db: db}
}

// Append inserts rec; the primary key on seq rejects a second writer.
func (l *GormLog) Append(ctx context.Context, rec model.EventRecord) error {
	if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert event %d: %w", rec.Seq, err)
	}
	return nil
}

func (l *GormLog) Load(ctx context.Context) ([]model.EventRecord, error) {
	var records []model.EventRecord
	if err := l.db.WithContext(ctx).Order("seq ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return records, nil
}
