package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration values: the chat/lottery
// tunables callers expect to adjust per deployment, plus the ambient
// server, datastore, and collaborator settings every node needs.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string

	// Datastores
	MongoURI string
	MongoDB  string
	RedisURL string

	// Auth
	JWTSecret         string
	ServiceAuthSecret string
	ServiceAuthHeader string

	// Collaborator base URLs (Directory, Payments, Storage, Notifier, Moderation)
	DirectoryBaseURL  string
	PaymentsBaseURL   string
	StorageBaseURL    string
	NotifierBaseURL   string
	ModerationBaseURL string

	// Collaborator timeouts
	DocumentUploadTimeout time.Duration
	StorageTimeout        time.Duration
	DirectoryTimeout      time.Duration
	PaymentsTimeout       time.Duration
	NotifierTimeout       time.Duration
	ModerationTimeout     time.Duration

	// Rate limiting
	RateLimitEnabled bool
	RateLimitRPM     int
	RateLimitBurst   int

	// Body limits
	MaxBodyBytes int64

	// Lottery / challenge tunables
	TicketPrice                  int64
	MaxTicketsPerUserPerMonth    int
	VotePrice                    int64
	MaxEntrepreneursPerChallenge int
	VideoMaxDurationSeconds      int

	// Status tunables
	StatusDefaultExpiryHours int
	StatusMaxVideoSeconds    int
	StatusMaxContentLength   int
	MessageMaxContentLength  int

	// Moderation thresholds and adapter selection
	ModerationBlockThreshold float64
	ModerationWarnThreshold  float64
	ModerationVariant        string // saas-image | saas-video | local-image | disabled

	// Distribution accounts (challenge fund split)
	LotteryPoolAccountID string
	CommissionAccountID  string

	// Presence / realtime TTLs
	PresenceOnlineTTL     time.Duration
	PresenceTypingTTL     time.Duration
	PresenceHeartbeat     time.Duration
	WebsocketPingInterval time.Duration
	WebsocketIdleTimeout  time.Duration

	// Background jobs
	StatusReaperInterval     time.Duration
	CollaboratorPollInterval time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables and an optional
// .env file, applying sane defaults for every tunable.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:            getEnv("ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(getEnvInt("GRACEFUL_TIMEOUT_SEC", 15)) * time.Second,
		RequestTimeout:  time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,
		AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGO_DB", "sbc_core"),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		JWTSecret:         getEnv("JWT_SECRET", "dev-secret-change-me"),
		ServiceAuthSecret: getEnv("SERVICE_AUTH_SECRET", "dev-service-secret"),
		ServiceAuthHeader: getEnv("SERVICE_NAME_HEADER", "X-Service-Name"),

		DirectoryBaseURL:  getEnv("DIRECTORY_BASE_URL", "http://directory.internal"),
		PaymentsBaseURL:   getEnv("PAYMENTS_BASE_URL", "http://payments.internal"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://storage.internal"),
		NotifierBaseURL:   getEnv("NOTIFIER_BASE_URL", "http://notifier.internal"),
		ModerationBaseURL: getEnv("MODERATION_BASE_URL", "http://moderation.internal"),

		DocumentUploadTimeout: time.Duration(getEnvInt("TIMEOUT_DOCUMENT_UPLOAD_SEC", 120)) * time.Second,
		StorageTimeout:        time.Duration(getEnvInt("TIMEOUT_STORAGE_SEC", 30)) * time.Second,
		DirectoryTimeout:      time.Duration(getEnvInt("TIMEOUT_DIRECTORY_SEC", 10)) * time.Second,
		PaymentsTimeout:       time.Duration(getEnvInt("TIMEOUT_PAYMENTS_SEC", 5)) * time.Second,
		NotifierTimeout:       time.Duration(getEnvInt("TIMEOUT_NOTIFIER_SEC", 5)) * time.Second,
		ModerationTimeout:     time.Duration(getEnvInt("TIMEOUT_MODERATION_SEC", 30)) * time.Second,

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 120),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 20),

		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 15*1024*1024)),

		TicketPrice:                  int64(getEnvInt("TICKET_PRICE", 200)),
		MaxTicketsPerUserPerMonth:    getEnvInt("MAX_TICKETS_PER_USER_PER_MONTH", 25),
		VotePrice:                    int64(getEnvInt("VOTE_PRICE", 200)),
		MaxEntrepreneursPerChallenge: getEnvInt("MAX_ENTREPRENEURS_PER_CHALLENGE", 3),
		VideoMaxDurationSeconds:      getEnvInt("VIDEO_MAX_DURATION_SECONDS", 90),

		StatusDefaultExpiryHours: getEnvInt("STATUS_DEFAULT_EXPIRY_HOURS", 24),
		StatusMaxVideoSeconds:    getEnvInt("STATUS_MAX_VIDEO_SECONDS", 30),
		StatusMaxContentLength:   getEnvInt("STATUS_MAX_CONTENT_LENGTH", 2000),
		MessageMaxContentLength:  getEnvInt("MESSAGE_MAX_CONTENT_LENGTH", 5000),

		ModerationBlockThreshold: getEnvFloat("MODERATION_THRESHOLD_BLOCK", 0.85),
		ModerationWarnThreshold:  getEnvFloat("MODERATION_THRESHOLD_WARN", 0.5),
		ModerationVariant:        getEnv("MODERATION_VARIANT", "saas-image"),

		LotteryPoolAccountID: getEnv("LOTTERY_POOL_ACCOUNT_ID", ""),
		CommissionAccountID:  getEnv("SBC_COMMISSION_ACCOUNT_ID", ""),

		PresenceOnlineTTL:     time.Duration(getEnvInt("PRESENCE_ONLINE_TTL_SEC", 300)) * time.Second,
		PresenceTypingTTL:     time.Duration(getEnvInt("PRESENCE_TYPING_TTL_SEC", 10)) * time.Second,
		PresenceHeartbeat:     time.Duration(getEnvInt("PRESENCE_HEARTBEAT_SEC", 60)) * time.Second,
		WebsocketPingInterval: time.Duration(getEnvInt("WS_PING_INTERVAL_SEC", 25)) * time.Second,
		WebsocketIdleTimeout:  time.Duration(getEnvInt("WS_IDLE_TIMEOUT_SEC", 60)) * time.Second,

		StatusReaperInterval:     time.Duration(getEnvInt("STATUS_REAPER_INTERVAL_SEC", 300)) * time.Second,
		CollaboratorPollInterval: time.Duration(getEnvInt("COLLABORATOR_POLL_INTERVAL_SEC", 30)) * time.Second,

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }
func (c *Config) IsProduction() bool  { return c.Env == "production" }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
