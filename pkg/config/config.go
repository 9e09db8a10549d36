package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"minter-core/internal/rpc"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	LevelDB  LevelDBConfig  `mapstructure:"leveldb"`
	Store    StoreConfig    `mapstructure:"store"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Eth      EthConfig      `mapstructure:"eth"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Intake   IntakeConfig   `mapstructure:"intake"`
}

type AppConfig struct {
	Env       string `mapstructure:"env"`
	HttpPort  string `mapstructure:"http_port"`
	LogFormat string `mapstructure:"log_format"` // console, json or logfmt
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

// URL is the form golang-migrate expects.
func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type LevelDBConfig struct {
	Path string `mapstructure:"path"`
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreLevelDB  = "leveldb"
	StoreMongo    = "mongo"
)

type StoreConfig struct {
	Backend      string `mapstructure:"backend"`
	Digest       string `mapstructure:"digest"`        // blake3 or keccak256
	PublishTopic string `mapstructure:"publish_topic"` // empty disables publication
}

const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
)

// LedgerConfig selects where reimbursements are credited. Empty picks
// memory for the memory store and postgres otherwise; an in-memory ledger
// next to a durable event log is rejected.
type LedgerConfig struct {
	Backend string `mapstructure:"backend"`
}

type EthConfig struct {
	Network        rpc.Network          `mapstructure:"network"`
	ChainID        uint64               `mapstructure:"chain_id"`
	Providers      []rpc.ProviderConfig `mapstructure:"providers"`
	Mnemonic       string               `mapstructure:"mnemonic"`
	DerivationPath string               `mapstructure:"derivation_path"`
	// InitialNonce is the first nonce of a fresh event log. Negative reads
	// it from the latest transaction count of the minter address.
	InitialNonce int64 `mapstructure:"initial_nonce"`
}

type PipelineConfig struct {
	CreateBatchSize   int           `mapstructure:"create_batch_size"`
	SignBatchSize     int           `mapstructure:"sign_batch_size"`
	SendBatchSize     int           `mapstructure:"send_batch_size"`
	ResubmitBatchSize int           `mapstructure:"resubmit_batch_size"`
	FinalizeBatchSize int           `mapstructure:"finalize_batch_size"`
	ReimburseBatch    int           `mapstructure:"reimburse_batch_size"`
	RetryInterval     time.Duration `mapstructure:"retry_interval"`
	RetrieveSchedule  string        `mapstructure:"retrieve_schedule"`
	ReimburseSchedule string        `mapstructure:"reimburse_schedule"`
	StuckMinAge       time.Duration `mapstructure:"stuck_min_age"`
	StuckRule         string        `mapstructure:"stuck_rule"` // unmined or below_latest
	FeeBumpPercent    uint64        `mapstructure:"fee_bump_percent"`
	SendWindow        uint64        `mapstructure:"send_window"`
	ReceiptCacheSize  int           `mapstructure:"receipt_cache_size"`
	GuardTTL          time.Duration `mapstructure:"guard_ttl"`
	Guard             string        `mapstructure:"guard"` // local or redis
}

type IntakeConfig struct {
	Topic string `mapstructure:"topic"`
}

var Global Config

// Init loads the global configuration and exits on failure.
func Init() {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Unable to load configuration: %v", err)
	}
	Global = *cfg
	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Load reads .env, config.yaml and the environment, in increasing precedence.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		log.Printf("Warning: Config file not found, using defaults and environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	providers, err := rpc.ProviderSet(cfg.Eth.Network, cfg.Eth.Providers)
	if err != nil {
		return nil, fmt.Errorf("eth.providers: %w", err)
	}
	cfg.Eth.Providers = providers
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "8080")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "minter")
	v.SetDefault("db.password", "minter_password")
	v.SetDefault("db.name", "minter_db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.mq_type", "redis")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "minter")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "minter")

	v.SetDefault("leveldb.path", "data/events")

	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.digest", "blake3")
	v.SetDefault("store.publish_topic", "")

	v.SetDefault("eth.network", string(rpc.Sepolia))
	v.SetDefault("eth.chain_id", 11155111)
	v.SetDefault("eth.derivation_path", "m/44'/60'/0'/0/0")
	v.SetDefault("eth.initial_nonce", -1)

	v.SetDefault("ledger.backend", "")

	v.SetDefault("pipeline.create_batch_size", 10)
	v.SetDefault("pipeline.sign_batch_size", 10)
	v.SetDefault("pipeline.send_batch_size", 10)
	v.SetDefault("pipeline.resubmit_batch_size", 10)
	v.SetDefault("pipeline.finalize_batch_size", 10)
	v.SetDefault("pipeline.reimburse_batch_size", 10)
	v.SetDefault("pipeline.retry_interval", "30s")
	v.SetDefault("pipeline.retrieve_schedule", "@every 1m")
	v.SetDefault("pipeline.reimburse_schedule", "@every 1m")
	v.SetDefault("pipeline.stuck_min_age", "5m")
	v.SetDefault("pipeline.stuck_rule", "unmined")
	v.SetDefault("pipeline.fee_bump_percent", 10)
	v.SetDefault("pipeline.send_window", 1)
	v.SetDefault("pipeline.receipt_cache_size", 1024)
	v.SetDefault("pipeline.guard_ttl", "10m")
	v.SetDefault("pipeline.guard", "local")

	v.SetDefault("intake.topic", "minter.withdrawals")
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Eth.Providers) == 0 {
		return errors.New("eth.providers: at least one provider is required")
	}
	for i, p := range c.Eth.Providers {
		if p.URL == "" {
			return fmt.Errorf("eth.providers[%d]: url is required", i)
		}
	}
	if c.Eth.ChainID == 0 {
		return errors.New("eth.chain_id must be set")
	}
	batches := map[string]int{
		"create_batch_size":    c.Pipeline.CreateBatchSize,
		"sign_batch_size":      c.Pipeline.SignBatchSize,
		"send_batch_size":      c.Pipeline.SendBatchSize,
		"resubmit_batch_size":  c.Pipeline.ResubmitBatchSize,
		"finalize_batch_size":  c.Pipeline.FinalizeBatchSize,
		"reimburse_batch_size": c.Pipeline.ReimburseBatch,
	}
	for name, n := range batches {
		if n <= 0 {
			return fmt.Errorf("pipeline.%s must be positive", name)
		}
	}
	switch c.Store.Backend {
	case StoreMemory, StorePostgres, StoreLevelDB, StoreMongo:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	switch c.Store.Digest {
	case "blake3", "keccak256":
	default:
		return fmt.Errorf("store.digest: unknown digest %q", c.Store.Digest)
	}
	if c.LedgerBackend() == LedgerMemory && c.Store.Backend != StoreMemory {
		return fmt.Errorf("ledger.backend: memory ledger cannot back the durable %s event log", c.Store.Backend)
	}
	switch c.Ledger.Backend {
	case "", LedgerMemory, LedgerPostgres:
	default:
		return fmt.Errorf("ledger.backend: unknown backend %q", c.Ledger.Backend)
	}
	switch c.Pipeline.StuckRule {
	case "", "unmined", "below_latest":
	default:
		return fmt.Errorf("pipeline.stuck_rule: unknown rule %q", c.Pipeline.StuckRule)
	}
	switch c.Pipeline.Guard {
	case "local", "redis":
	default:
		return fmt.Errorf("pipeline.guard: unknown guard %q", c.Pipeline.Guard)
	}
	return nil
}

// LedgerBackend resolves the empty ledger backend against the store backend.
func (c *Config) LedgerBackend() string {
	if c.Ledger.Backend != "" {
		return c.Ledger.Backend
	}
	if c.Store.Backend == StoreMemory {
		return LedgerMemory
	}
	return LedgerPostgres
}
