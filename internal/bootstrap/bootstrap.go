// Package bootstrap opens the backends selected by configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"minter-core/internal/ledger"
	"minter-core/internal/rpc"
	"minter-core/internal/service"
	"minter-core/internal/service/mq"
	"minter-core/internal/store"
	"minter-core/pkg/config"
	"minter-core/pkg/crypto_util"
	"minter-core/pkg/database"
	"minter-core/pkg/logger"
	"minter-core/pkg/utils/lock"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Resources owns every connection opened for one process.
type Resources struct {
	cfg     config.Config
	db      *gorm.DB
	rdb     *redis.Client
	closers []func()
}

func New(cfg config.Config) *Resources {
	return &Resources{cfg: cfg}
}

// Close releases connections in reverse opening order.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

func (r *Resources) onClose(fn func()) {
	r.closers = append(r.closers, fn)
}

func (r *Resources) postgres(ctx context.Context) (*gorm.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := database.ConnectPostgres(ctx, r.cfg.DB.DSN())
	if err != nil {
		return nil, err
	}
	r.db = db
	r.onClose(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db, nil
}

func (r *Resources) redis(ctx context.Context) (*redis.Client, error) {
	if r.rdb != nil {
		return r.rdb, nil
	}
	c := r.cfg.Redis
	rdb, err := database.ConnectRedis(ctx, c.Addr, c.Password, c.DB)
	if err != nil {
		return nil, err
	}
	r.rdb = rdb
	r.onClose(func() { _ = rdb.Close() })
	return rdb, nil
}

// EventLog opens the durable log of the configured backend.
func (r *Resources) EventLog(ctx context.Context) (store.Log, error) {
	switch r.cfg.Store.Backend {
	case config.StoreMemory:
		logger.Warn("event log is in memory, state is lost on restart")
		return store.NewMemoryLog(), nil
	case config.StorePostgres:
		db, err := r.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewGormLog(db), nil
	case config.StoreLevelDB:
		db, err := database.OpenLevelDB(r.cfg.LevelDB.Path)
		if err != nil {
			return nil, err
		}
		r.onClose(func() { _ = db.Close() })
		return store.NewLevelLog(db), nil
	case config.StoreMongo:
		db, err := database.ConnectMongo(ctx, r.cfg.Mongo.URI, r.cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		r.onClose(func() { _ = db.Client().Disconnect(context.Background()) })
		l := store.NewMongoLog(db)
		if err := l.CreateIndexes(ctx); err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", r.cfg.Store.Backend)
	}
}

// EventStore opens the log and replays it. When store.publish_topic is set
// every appended event is mirrored to the message queue.
func (r *Resources) EventStore(ctx context.Context) (*store.EventStore, error) {
	log, err := r.EventLog(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := crypto_util.HashByName(r.cfg.Store.Digest)
	if err != nil {
		return nil, err
	}
	opts := []store.Option{store.WithHash(hash)}
	if topic := r.cfg.Store.PublishTopic; topic != "" {
		producer, err := r.Producer(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, store.WithPublisher(producer, topic))
	}
	return store.Open(ctx, log, opts...)
}

// Producer builds the publisher selected by redis.mq_type.
func (r *Resources) Producer(ctx context.Context) (mq.Producer, error) {
	if r.cfg.Redis.MQType == "kafka" {
		logger.Info("publishing events to Kafka", zap.Strings("brokers", r.cfg.Kafka.Brokers))
		p := mq.NewKafkaProducer(r.cfg.Kafka.Brokers)
		r.onClose(func() { _ = p.Close() })
		return p, nil
	}
	rdb, err := r.redis(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing events to Redis Streams")
	return mq.NewRedisProducer(rdb), nil
}

// Consumer builds the intake consumer selected by redis.mq_type.
func (r *Resources) Consumer(ctx context.Context) (mq.Consumer, error) {
	if r.cfg.Redis.MQType == "kafka" {
		c := mq.NewKafkaConsumer(r.cfg.Kafka.Brokers, r.cfg.Kafka.GroupID)
		r.onClose(func() { _ = c.Close() })
		return c, nil
	}
	rdb, err := r.redis(ctx)
	if err != nil {
		return nil, err
	}
	return mq.NewRedisConsumer(rdb, r.cfg.Kafka.GroupID, "minter-0"), nil
}

// Ledger returns the credit ledger. The in-memory ledger only pairs with
// the in-memory event log; every durable log credits through postgres.
func (r *Resources) Ledger(ctx context.Context) (ledger.Ledger, error) {
	switch r.cfg.LedgerBackend() {
	case config.LedgerMemory:
		if r.cfg.Store.Backend != config.StoreMemory {
			return nil, fmt.Errorf("memory ledger cannot back the durable %s event log", r.cfg.Store.Backend)
		}
		return ledger.NewMemoryLedger(), nil
	case config.LedgerPostgres:
		db, err := r.postgres(ctx)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		return ledger.NewGormLedger(db), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", r.cfg.Ledger.Backend)
	}
}

// Guard returns the process-local guard or a redis lock shared by replicas.
func (r *Resources) Guard(ctx context.Context) (service.Guard, error) {
	if r.cfg.Pipeline.Guard != "redis" {
		return service.NewLocalGuard(), nil
	}
	rdb, err := r.redis(ctx)
	if err != nil {
		return nil, err
	}
	return service.NewRedisGuard(lock.NewRedisLock(rdb), r.cfg.Pipeline.GuardTTL, logger.Named("guard")), nil
}

// Chain dials every configured provider behind one consensus reader.
func (r *Resources) Chain(ctx context.Context) (*rpc.EthRpcClient, error) {
	providers, err := rpc.DialProviders(ctx, r.cfg.Eth.Providers)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, errors.New("no eth providers configured")
	}
	r.onClose(func() {
		for _, p := range providers {
			p.Close()
		}
	})
	reader := rpc.NewConsensusReader(rpc.AsProviders(providers), logger.Named("rpc"))
	return rpc.NewEthRpcClient(reader), nil
}
