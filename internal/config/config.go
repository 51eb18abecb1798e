package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Realtime     RealtimeConfig
	Chat         ChatConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	SeedAdminName         string
	SeedAdminEmail        string
	SeedAdminPassword     string
}

// RealtimeConfig configures the websocket gateway and the cross-instance relay.
type RealtimeConfig struct {
	Host                string
	Port                string
	AllowedOrigins      []string
	SendBuffer          int
	PingIntervalSeconds int
	WriteTimeoutSeconds int
	RelayEnabled        bool
	RelayChannel        string
}

// ChatConfig bounds chat content and pagination.
type ChatConfig struct {
	MaxContentLength int
	PreviewLength    int
	DefaultPageSize  int
	MyChatsLimit     int
}

// NotificationConfig bounds inbox listing.
type NotificationConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			SeedAdminName:         getEnv("AUTH_SEED_ADMIN_NAME", "Administrator"),
			SeedAdminEmail:        os.Getenv("AUTH_SEED_ADMIN_EMAIL"),
			SeedAdminPassword:     os.Getenv("AUTH_SEED_ADMIN_PASSWORD"),
		},
		Realtime: RealtimeConfig{
			Host:                getEnv("REALTIME_HOST", "0.0.0.0"),
			Port:                getEnv("REALTIME_PORT", "8081"),
			AllowedOrigins:      getEnvAsList("REALTIME_ALLOWED_ORIGINS", []string{"*"}),
			SendBuffer:          getEnvAsInt("REALTIME_SEND_BUFFER", 64),
			PingIntervalSeconds: getEnvAsInt("REALTIME_PING_INTERVAL_SECONDS", 25),
			WriteTimeoutSeconds: getEnvAsInt("REALTIME_WRITE_TIMEOUT_SECONDS", 10),
			RelayEnabled:        getEnvAsBool("REALTIME_RELAY_ENABLED", false),
			RelayChannel:        getEnv("REALTIME_RELAY_CHANNEL", "helpdesk:events"),
		},
		Chat: ChatConfig{
			MaxContentLength: getEnvAsInt("CHAT_MAX_CONTENT_LENGTH", 2000),
			PreviewLength:    getEnvAsInt("CHAT_PREVIEW_LENGTH", 100),
			DefaultPageSize:  getEnvAsInt("CHAT_DEFAULT_PAGE_SIZE", 50),
			MyChatsLimit:     getEnvAsInt("CHAT_MY_CHATS_LIMIT", 50),
		},
		Notification: NotificationConfig{
			DefaultLimit: getEnvAsInt("NOTIFY_DEFAULT_LIMIT", 50),
			MaxLimit:     getEnvAsInt("NOTIFY_MAX_LIMIT", 100),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Addr returns the websocket gateway bind address.
func (r RealtimeConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// PingInterval returns the heartbeat period for live connections.
func (r RealtimeConfig) PingInterval() time.Duration {
	if r.PingIntervalSeconds <= 0 {
		return 25 * time.Second
	}
	return time.Duration(r.PingIntervalSeconds) * time.Second
}

// WriteTimeout bounds a single frame write.
func (r RealtimeConfig) WriteTimeout() time.Duration {
	if r.WriteTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.WriteTimeoutSeconds) * time.Second
}

// DefaultChatConfig mirrors the env defaults. Used by tests and tools.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{MaxContentLength: 2000, PreviewLength: 100, DefaultPageSize: 50, MyChatsLimit: 50}
}

// DefaultNotificationConfig mirrors the env defaults.
func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{DefaultLimit: 50, MaxLimit: 100}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
