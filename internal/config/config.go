package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App       AppConfig
	Discord   DiscordConfig
	Support   SupportConfig
	Lifecycle LifecycleConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Events    EventsConfig
}

// AppConfig controls the keep-alive HTTP server.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	SnowflakeNode         int64
}

// DiscordConfig holds the bot credential and command registration scope.
type DiscordConfig struct {
	Token         string
	ApplicationID string
	// CommandGuildID limits slash command registration to one guild; empty registers globally.
	CommandGuildID string
}

// SupportConfig identifies where tickets live and who may act on them.
type SupportConfig struct {
	CategoryID       string
	StaffChannelID   string
	ManagementRoleID string
}

// LifecycleConfig tunes the ticket timers.
type LifecycleConfig struct {
	PollInterval      time.Duration
	InactivityTimeout time.Duration
	ClosureDelay      time.Duration
	SelectionTTL      time.Duration
	ReplyMaxLength    int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	StreamKey    string
	StreamMaxLen int64
	JournalKey   string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// EventsConfig sizes the asynchronous event dispatcher.
type EventsConfig struct {
	BufferSize int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 5))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 10),
			SnowflakeNode:         int64(getEnvAsInt("SNOWFLAKE_NODE", 1)),
		},
		Discord: DiscordConfig{
			Token:          strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
			ApplicationID:  os.Getenv("DISCORD_APPLICATION_ID"),
			CommandGuildID: os.Getenv("DISCORD_COMMAND_GUILD_ID"),
		},
		Support: SupportConfig{
			CategoryID:       os.Getenv("SUPPORT_CATEGORY_ID"),
			StaffChannelID:   os.Getenv("SUPPORT_ANNOUNCE_CHANNEL_ID"),
			ManagementRoleID: os.Getenv("MANAGEMENT_ROLE_ID"),
		},
		Lifecycle: LifecycleConfig{
			PollInterval:      getEnvAsDuration("TICKET_POLL_INTERVAL", time.Minute),
			InactivityTimeout: getEnvAsDuration("TICKET_INACTIVITY_TIMEOUT", 15*time.Minute),
			ClosureDelay:      getEnvAsDuration("TICKET_CLOSURE_DELAY", 5*time.Minute),
			SelectionTTL:      getEnvAsDuration("SELECTION_TTL", 15*time.Minute),
			ReplyMaxLength:    getEnvAsInt("REPLY_MAX_LENGTH", 1000),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:         os.Getenv("REDIS_ADDR"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           redisDB,
			StreamKey:    getEnv("REDIS_EVENT_STREAM", "support:events"),
			StreamMaxLen: int64(getEnvAsInt("REDIS_EVENT_STREAM_MAXLEN", 10000)),
			JournalKey:   getEnv("REDIS_CLOSURE_JOURNAL", "support:closures"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Events: EventsConfig{
			BufferSize: getEnvAsInt("EVENT_BUFFER_SIZE", 256),
		},
	}

	return cfg, nil
}

// Validate checks the values the bot cannot run without.
func (c *Config) Validate() error {
	missing := []string{}
	if c.Discord.Token == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.Support.CategoryID == "" {
		missing = append(missing, "SUPPORT_CATEGORY_ID")
	}
	if c.Support.StaffChannelID == "" {
		missing = append(missing, "SUPPORT_ANNOUNCE_CHANNEL_ID")
	}
	if c.Support.ManagementRoleID == "" {
		missing = append(missing, "MANAGEMENT_ROLE_ID")
	}
	if len(missing) > 0 {
		return apperrors.NewConfigurationError("missing required configuration", map[string]any{"missing": missing})
	}

	l := c.Lifecycle
	if l.PollInterval <= 0 || l.InactivityTimeout <= 0 || l.ClosureDelay <= 0 || l.SelectionTTL <= 0 {
		return apperrors.NewConfigurationError("lifecycle durations must be positive", map[string]any{
			"poll_interval":      l.PollInterval.String(),
			"inactivity_timeout": l.InactivityTimeout.String(),
			"closure_delay":      l.ClosureDelay.String(),
			"selection_ttl":      l.SelectionTTL.String(),
		})
	}
	if l.ReplyMaxLength <= 0 {
		return apperrors.NewConfigurationError("REPLY_MAX_LENGTH must be positive", nil)
	}
	return nil
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

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
