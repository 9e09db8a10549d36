package store

import (
	"context"
	"fmt"
	"sync"

	"minter-core/internal/model"
)

// Log is durable, append-only storage for event records.
// Load must return records in append order.
type Log interface {
	Append(ctx context.Context, rec model.EventRecord) error
	Load(ctx context.Context) ([]model.EventRecord, error)
}

// MemoryLog keeps records in process memory. Used in tests and in
// development when store.backend is "memory".
type MemoryLog struct {
	mu      sync.Mutex
	records []model.EventRecord
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, rec model.EventRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if want := uint64(len(l.records)) + 1; rec.Seq != want {
		return fmt.Errorf("%w: append seq %d, expected %d", ErrCorruptLog, rec.Seq, want)
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	rec.Digest = append([]byte(nil), rec.Digest...)
	l.records = append(l.records, rec)
	return nil
}

func (l *MemoryLog) Load(_ context.Context) ([]model.EventRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.EventRecord, len(l.records))
	copy(out, l.records)
	return out, nil
}
