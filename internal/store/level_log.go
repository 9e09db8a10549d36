package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"minter-core/internal/model"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var levelEventPrefix = []byte("minter/event/")

// LevelLog stores records in an embedded LevelDB under big-endian seq keys,
// so iteration order is append order.
type LevelLog struct {
	db *leveldb.DB
}

func NewLevelLog(db *leveldb.DB) *LevelLog {
	return &LevelLog{db: db}
}

func levelKey(seq uint64) []byte {
	key := make([]byte, len(levelEventPrefix)+8)
	copy(key, levelEventPrefix)
	binary.BigEndian.PutUint64(key[len(levelEventPrefix):], seq)
	return key
}

func (l *LevelLog) Append(_ context.Context, rec model.EventRecord) error {
	key := levelKey(rec.Seq)
	exists, err := l.db.Has(key, nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: seq %d already written", ErrCorruptLog, rec.Seq)
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return l.db.Put(key, value, &opt.WriteOptions{Sync: true})
}

func (l *LevelLog) Load(_ context.Context) ([]model.EventRecord, error) {
	iter := l.db.NewIterator(util.BytesPrefix(levelEventPrefix), nil)
	defer iter.Release()

	var records []model.EventRecord
	for iter.Next() {
		var rec model.EventRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("%w: decode key %x: %v", ErrCorruptLog, iter.Key(), err)
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return records, nil
}
