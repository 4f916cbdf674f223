// Package config loads gateway settings from defaults, the environment and an
// optional config file named by CONFIG_FILE.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"

	APITypeOpenAI = "openai"
	APITypeAzure  = "azure"
)

const (
	keyConfigFile        = "CONFIG_FILE"
	keySessionTable      = "SESSION_TABLE"
	keyStoreBackend      = "STORE_BACKEND"
	keySQLitePath        = "SQLITE_PATH"
	keyQuotaBackend      = "QUOTA_BACKEND"
	keyRedisAddr         = "REDIS_ADDR"
	keyRedisPassword     = "REDIS_PASSWORD"
	keyRedisTLS          = "REDIS_TLS"
	keyParamPrefix       = "PARAM_PREFIX"
	keyOpenAIAPIKey      = "OPENAI_API_KEY"
	keyOpenAIBaseURL     = "OPENAI_BASE_URL"
	keyOpenAIModel       = "OPENAI_MODEL"
	keyOpenAIAPIType     = "OPENAI_API_TYPE"
	keyOpenAIAPIVersion  = "OPENAI_API_VERSION"
	keyOpenAITimeout     = "OPENAI_TIMEOUT"
	keyDefaultDailyQuota = "DEFAULT_DAILY_QUOTA"
	keyCompactMaxTurns   = "COMPACT_MAX_TURNS"
	keyCompactMaxChars   = "COMPACT_MAX_CHARS"
	keyCORSOrigin        = "CORS_ALLOWED_ORIGIN"
	keyStrictStatusCodes = "STRICT_STATUS_CODES"
	keyLogLevel          = "LOG_LEVEL"
)

type Config struct {
	SessionTable string
	StoreBackend string
	SQLitePath   string

	QuotaBackend  string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	ParamPrefix      string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	OpenAIAPIType    string
	OpenAIAPIVersion string
	OpenAITimeout    time.Duration

	DefaultDailyQuota int
	CompactMaxTurns   int
	CompactMaxChars   int

	CORSAllowedOrigin string
	StrictStatusCodes bool
	LogLevel          string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyStoreBackend, BackendDynamoDB)
	v.SetDefault(keySQLitePath, "chat-gateway.db")
	v.SetDefault(keyOpenAIModel, "gpt-4o-mini")
	v.SetDefault(keyOpenAIAPIType, APITypeOpenAI)
	v.SetDefault(keyOpenAITimeout, 30*time.Second)
	v.SetDefault(keyDefaultDailyQuota, 10)
	v.SetDefault(keyCompactMaxTurns, 10)
	v.SetDefault(keyCompactMaxChars, 10000)
	v.SetDefault(keyCORSOrigin, "*")
	v.SetDefault(keyLogLevel, "info")
}

// Load reads the configuration into a Config and validates it. A nil v uses a
// fresh viper instance.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString(keyConfigFile)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := Config{
		SessionTable:      strings.TrimSpace(v.GetString(keySessionTable)),
		StoreBackend:      strings.ToLower(strings.TrimSpace(v.GetString(keyStoreBackend))),
		SQLitePath:        strings.TrimSpace(v.GetString(keySQLitePath)),
		QuotaBackend:      strings.ToLower(strings.TrimSpace(v.GetString(keyQuotaBackend))),
		RedisAddr:         strings.TrimSpace(v.GetString(keyRedisAddr)),
		RedisPassword:     v.GetString(keyRedisPassword),
		RedisTLS:          v.GetBool(keyRedisTLS),
		ParamPrefix:       strings.TrimSpace(v.GetString(keyParamPrefix)),
		OpenAIAPIKey:      strings.TrimSpace(v.GetString(keyOpenAIAPIKey)),
		OpenAIBaseURL:     strings.TrimSpace(v.GetString(keyOpenAIBaseURL)),
		OpenAIModel:       strings.TrimSpace(v.GetString(keyOpenAIModel)),
		OpenAIAPIType:     strings.ToLower(strings.TrimSpace(v.GetString(keyOpenAIAPIType))),
		OpenAIAPIVersion:  strings.TrimSpace(v.GetString(keyOpenAIAPIVersion)),
		OpenAITimeout:     v.GetDuration(keyOpenAITimeout),
		DefaultDailyQuota: v.GetInt(keyDefaultDailyQuota),
		CompactMaxTurns:   v.GetInt(keyCompactMaxTurns),
		CompactMaxChars:   v.GetInt(keyCompactMaxChars),
		CORSAllowedOrigin: strings.TrimSpace(v.GetString(keyCORSOrigin)),
		StrictStatusCodes: v.GetBool(keyStrictStatusCodes),
		LogLevel:          strings.TrimSpace(v.GetString(keyLogLevel)),
	}
	if cfg.QuotaBackend == "" {
		cfg.QuotaBackend = cfg.StoreBackend
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that makes the gateway unusable.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendDynamoDB, BackendSQLite:
	default:
		return fmt.Errorf("config: %s must be %q or %q, got %q", keyStoreBackend, BackendDynamoDB, BackendSQLite, c.StoreBackend)
	}
	switch c.QuotaBackend {
	case BackendDynamoDB, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("config: %s must be %q, %q or %q, got %q", keyQuotaBackend, BackendDynamoDB, BackendRedis, BackendSQLite, c.QuotaBackend)
	}
	if c.usesBackend(BackendDynamoDB) && c.SessionTable == "" {
		return fmt.Errorf("config: %s is required for the dynamodb backend", keySessionTable)
	}
	if c.usesBackend(BackendSQLite) && c.SQLitePath == "" {
		return fmt.Errorf("config: %s is required for the sqlite backend", keySQLitePath)
	}
	if c.QuotaBackend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("config: %s is required for the redis quota backend", keyRedisAddr)
	}

	if c.OpenAIAPIKey == "" && c.ParamPrefix == "" {
		return fmt.Errorf("config: one of %s or %s is required", keyOpenAIAPIKey, keyParamPrefix)
	}
	if c.OpenAIModel == "" {
		return fmt.Errorf("config: %s must not be empty", keyOpenAIModel)
	}
	switch c.OpenAIAPIType {
	case APITypeOpenAI:
	case APITypeAzure:
		if c.OpenAIBaseURL == "" || c.OpenAIAPIVersion == "" {
			return fmt.Errorf("config: azure requires %s and %s", keyOpenAIBaseURL, keyOpenAIAPIVersion)
		}
	default:
		return fmt.Errorf("config: %s must be %q or %q, got %q", keyOpenAIAPIType, APITypeOpenAI, APITypeAzure, c.OpenAIAPIType)
	}
	if c.OpenAITimeout <= 0 {
		return fmt.Errorf("config: %s must be positive", keyOpenAITimeout)
	}

	if c.DefaultDailyQuota <= 0 {
		return fmt.Errorf("config: %s must be positive", keyDefaultDailyQuota)
	}
	if c.CompactMaxTurns <= 0 || c.CompactMaxChars <= 0 {
		return errors.New("config: compaction thresholds must be positive")
	}
	return nil
}

func (c Config) usesBackend(name string) bool {
	return c.StoreBackend == name || c.QuotaBackend == name
}
