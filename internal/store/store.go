package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"minter-core/internal/event"
	"minter-core/internal/model"
	"minter-core/internal/service/mq"
	"minter-core/internal/state"
	"minter-core/pkg/crypto_util"
	"minter-core/pkg/logger"
	"minter-core/pkg/monitor"

	"go.uber.org/zap"
)

// ErrCorruptLog means the durable log cannot be trusted: a gap in seq,
// a broken digest chain or an event that does not apply.
var ErrCorruptLog = errors.New("corrupt event log")

const publishKey = "minter"

// EventStore owns the withdrawal state. Every change is an event that is
// validated, written to the durable log and only then applied.
type EventStore struct {
	mu     sync.RWMutex
	log    Log
	state  *state.EthTransactions
	seq    uint64
	digest []byte

	hash      crypto_util.HashFunc
	now       func() time.Time
	publisher mq.Producer
	topic     string
	logger    *zap.Logger
}

type Option func(*EventStore)

// WithHash selects the digest chaining the records. Default blake3.
func WithHash(h crypto_util.HashFunc) Option {
	return func(s *EventStore) { s.hash = h }
}

// WithClock sets the source of event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *EventStore) { s.now = now }
}

// WithPublisher mirrors every appended event to topic. Publication is best effort.
func WithPublisher(p mq.Producer, topic string) Option {
	return func(s *EventStore) {
		s.publisher = p
		s.topic = topic
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *EventStore) { s.logger = l }
}

// Open loads the log, verifies it and replays it into a fresh state.
func Open(ctx context.Context, log Log, opts ...Option) (*EventStore, error) {
	s := &EventStore{
		log:    log,
		state:  state.NewEthTransactions(),
		hash:   crypto_util.Blake3,
		now:    time.Now,
		logger: logger.Named("store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	records, err := log.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load event log: %w", err)
	}
	for _, rec := range records {
		if rec.Seq != s.seq+1 {
			return nil, fmt.Errorf("%w: seq %d follows %d", ErrCorruptLog, rec.Seq, s.seq)
		}
		if want := s.hash(s.digest, rec.Payload); !bytes.Equal(want, rec.Digest) {
			return nil, fmt.Errorf("%w: digest mismatch at seq %d", ErrCorruptLog, rec.Seq)
		}
		var ev state.Event
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: decode seq %d: %v", ErrCorruptLog, rec.Seq, err)
		}
		if err := s.state.Apply(ev); err != nil {
			return nil, fmt.Errorf("%w: replay seq %d: %v", ErrCorruptLog, rec.Seq, err)
		}
		s.seq = rec.Seq
		s.digest = rec.Digest
	}

	s.logger.Info("event log replayed", zap.Uint64("seq", s.seq), zap.Any("collections", s.state.Counts()))
	monitor.SetCollectionSizes(s.state.Counts())
	return s, nil
}

// AppendAndApply records one transition. An event the current state
// rejects is never written; on any error the state is unchanged.
func (s *EventStore) AppendAndApply(ctx context.Context, payload state.Payload) (state.Event, error) {
	s.mu.Lock()
	ev := state.NewEvent(s.now(), payload)
	rec, err := s.append(ctx, ev)
	s.mu.Unlock()
	if err != nil {
		return state.Event{}, err
	}

	monitor.ObserveEvent(string(ev.Type()))
	s.publish(ctx, rec, ev)
	return ev, nil
}

func (s *EventStore) append(ctx context.Context, ev state.Event) (model.EventRecord, error) {
	if err := s.state.Validate(ev); err != nil {
		return model.EventRecord{}, err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	rec := model.EventRecord{
		Seq:       s.seq + 1,
		Type:      string(ev.Type()),
		Payload:   data,
		Digest:    s.hash(s.digest, data),
		CreatedAt: ev.Timestamp,
	}
	if err := s.log.Append(ctx, rec); err != nil {
		return model.EventRecord{}, fmt.Errorf("append %s: %w", ev.Type(), err)
	}
	if err := s.state.Apply(ev); err != nil {
		// validated above under the same lock
		panic(fmt.Sprintf("apply of validated event %d failed: %v", rec.Seq, err))
	}
	s.seq = rec.Seq
	s.digest = rec.Digest
	return rec, nil
}

func (s *EventStore) publish(ctx context.Context, rec model.EventRecord, ev state.Event) {
	if s.publisher == nil || s.topic == "" {
		return
	}
	msg, err := json.Marshal(event.MinterEvent{
		Seq:       rec.Seq,
		Type:      rec.Type,
		Timestamp: ev.Timestamp,
		Event:     rec.Payload,
		Digest:    hex.EncodeToString(rec.Digest),
	})
	if err == nil {
		err = s.publisher.Publish(ctx, s.topic, publishKey, msg)
	}
	if err != nil {
		s.logger.Warn("event publication failed", zap.Uint64("seq", rec.Seq), zap.Error(err))
	}
}

// Read runs fn with shared access to the current state. fn must not retain it.
func (s *EventStore) Read(fn func(*state.EthTransactions)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// Snapshot returns a deep copy of the current state.
func (s *EventStore) Snapshot() *state.EthTransactions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Seq is the number of events applied so far.
func (s *EventStore) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Events decodes the whole durable log.
func (s *EventStore) Events(ctx context.Context) ([]state.Event, error) {
	records, err := s.log.Load(ctx)
	if err != nil {
		return nil, err
	}
	events := make([]state.Event, 0, len(records))
	for _, rec := range records {
		var ev state.Event
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: decode seq %d: %v", ErrCorruptLog, rec.Seq, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
