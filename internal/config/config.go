package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// RPC settings
	RPCUrl       string
	RPCEndpoints []string
	PollInterval time.Duration

	// Retry/rotation settings
	HTTPTimeout         time.Duration
	AttemptsPerEndpoint int
	RetryBackoff        time.Duration
	MaxRotations        int

	// Program settings
	IDLPath           string
	ProgramIDOverride string
	MarketsPath       string

	// Transaction settings
	PriorityFeeMicroLamports uint64
	ComputeUnitLimit         uint32
	FillTimeout              time.Duration

	// Redis settings
	RedisAddr string

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// Wallet settings
	WalletPrivateKey string

	// API settings
	APIAddr string
	APIKey  string
	DevMode bool
}

func Load() *Config {
	cfg := &Config{
		// RPC
		RPCUrl:       getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		PollInterval: getDurationEnv("POLL_INTERVAL", 2*time.Second),

		// Retry/rotation
		HTTPTimeout:         getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		AttemptsPerEndpoint: getIntEnv("ATTEMPTS_PER_ENDPOINT", 2),
		RetryBackoff:        getDurationEnv("RETRY_BACKOFF", 500*time.Millisecond),
		MaxRotations:        getIntEnv("MAX_ROTATIONS", 3),

		// Program
		IDLPath:           getEnv("IDL_PATH", "idl/perpetuals.json"),
		ProgramIDOverride: getEnv("PROGRAM_ID", ""),
		MarketsPath:       getEnv("MARKETS_PATH", ""),

		// Transaction
		PriorityFeeMicroLamports: getUint64Env("PRIORITY_FEE_MICRO_LAMPORTS", 0),
		ComputeUnitLimit:         uint32(getIntEnv("COMPUTE_UNIT_LIMIT", 0)),
		FillTimeout:              getDurationEnv("FILL_TIMEOUT", 90*time.Second),

		// Redis
		RedisAddr: getEnv("REDIS_ADDR", ""),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "perps"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// Wallet
		WalletPrivateKey: getEnv("WALLET_PRIVATE_KEY", ""),

		// API
		APIAddr: getEnv("API_ADDR", ":8080"),
		APIKey:  getEnv("API_KEY", ""),
		DevMode: getBoolEnv("DEV_MODE", false),
	}

	// SOLANA_RPC_LIST is a comma-separated failover list; the single URL is
	// the first endpoint when the list is absent.
	if list := getEnv("SOLANA_RPC_LIST", ""); list != "" {
		for _, u := range strings.Split(list, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.RPCEndpoints = append(cfg.RPCEndpoints, u)
			}
		}
	}
	if len(cfg.RPCEndpoints) == 0 {
		cfg.RPCEndpoints = []string{cfg.RPCUrl}
	}

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getUint64Env(key string, defaultVal uint64) uint64 {
	if val := os.Getenv(key); val != "" {
		if u, err := strconv.ParseUint(val, 10, 64); err == nil {
			return u
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
