package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	ChainID           uint64
	RPCURL            string
	Block             uint64
	FromBlock         uint64
	ToBlock           uint64
	Pools             []string
	FactoryFees       map[string]string
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool
	StateBackend      string
	PGDSN             string
	SQLitePath        string
	Routes            string
	RawOut            string
	Errors            string
	SnapshotsOut      string
	MetricsAddr       string
	Follow            bool
	PollInterval      time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	DedupeSize        int
	LogLevel          string

	Chains map[uint64]ChainConfig
}

// ChainConfig is one entry of the chains section of the config file.
type ChainConfig struct {
	RPC                string            `mapstructure:"rpc"`
	Multicall          string            `mapstructure:"multicall"`
	AnchorTokens       []string          `mapstructure:"anchor_tokens"`
	FactoryFees        map[string]uint64 `mapstructure:"factory_fees"`
	AeroFactories      []string          `mapstructure:"aero_factories"`
	RamsesQuoters      map[string]string `mapstructure:"ramses_quoters"`
	DefaultFee         uint64            `mapstructure:"default_fee"`
	FactoryDefaultFees map[string]uint64 `mapstructure:"factory_default_fees"`
	Pools              []string          `mapstructure:"pools"`
	RateLimit          float64           `mapstructure:"rate_limit"`
	RateBurst          int               `mapstructure:"rate_burst"`
}

// State backends accepted by --state-backend.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// LoadDotEnv loads path (".env" when empty) into the process environment. A missing file
// is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := LoadDotEnv(""); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("AMMSTATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", uint64(1))
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("state-backend", BackendFile)
	v.SetDefault("sqlite-path", "./data/ammstate.db")
	v.SetDefault("errors", "./data/decode_errors.jsonl")
	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("dedupe-size", 65536)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	chains, err := loadChains(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ChainID:           v.GetUint64("chain-id"),
		RPCURL:            v.GetString("rpc"),
		Block:             v.GetUint64("block"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Pools:             getStringSlice(v, "pool"),
		FactoryFees:       getStringMap(v, "factory-fees"),
		BatchSize:         v.GetUint64("batch-size"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		StateBackend:      strings.ToLower(v.GetString("state-backend")),
		PGDSN:             v.GetString("pg-dsn"),
		SQLitePath:        v.GetString("sqlite-path"),
		Routes:            v.GetString("routes"),
		RawOut:            v.GetString("raw-out"),
		Errors:            v.GetString("errors"),
		SnapshotsOut:      v.GetString("snapshots-out"),
		MetricsAddr:       v.GetString("metrics-addr"),
		Follow:            v.GetBool("follow"),
		PollInterval:      v.GetDuration("poll-interval"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		DedupeSize:        v.GetInt("dedupe-size"),
		LogLevel:          v.GetString("log-level"),
		Chains:            chains,
	}

	switch cfg.StateBackend {
	case BackendFile, BackendPostgres, BackendSQLite:
	default:
		return Config{}, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}

	return cfg, nil
}

func loadChains(v *viper.Viper) (map[uint64]ChainConfig, error) {
	chains := make(map[uint64]ChainConfig)
	if !v.IsSet("chains") {
		return chains, nil
	}
	var raw map[string]ChainConfig
	if err := v.UnmarshalKey("chains", &raw); err != nil {
		return nil, fmt.Errorf("decode chains: %w", err)
	}
	for key, chain := range raw {
		id, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q: %w", key, err)
		}
		chains[id] = chain
	}
	return chains, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case []string:
		return parseStringMap(strings.Join(typed, ","))
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

// parseStringMap reads "key=value,key=value". Malformed pairs are dropped.
func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
