package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "voltgrid/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr       string
	PublicURL  string
	AdminToken string
	// AdminTokenHash is a bcrypt hash of the admin token; it wins over AdminToken when set.
	AdminTokenHash string
	LogLevel       string

	// RegistrationBackend selects the registration store: memory, postgres or redis.
	RegistrationBackend string
	// PartyFile points at the YAML description of the local platform; empty uses the embedded default.
	PartyFile string

	OCPIClient OCPIClientConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	NATS       NATSConfig
	Bridge     BridgeConfig
	RateLimit  RateLimitConfig
}

// OCPIClientConfig bounds every outbound call to a counterparty.
type OCPIClientConfig struct {
	Timeout      time.Duration
	MaxGetTries  uint64
	RetryBackoff time.Duration
}

type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	Partitions    int32
}

// Enabled reports whether a Kafka sink should be wired.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type NATSConfig struct {
	URL     string
	Stream  string
	Subject string
}

func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

type BridgeConfig struct {
	// Codec is the wire encoding for broker sinks: json or cbor.
	Codec           string
	RelayMaxElapsed time.Duration
	ShutdownGrace   time.Duration
}

// RateLimitConfig bounds OCPI traffic per client address. Counters live in
// Redis when it is configured so that replicas share them.
type RateLimitConfig struct {
	Disabled            bool
	TrustProxy          bool
	Window              time.Duration
	DiscoveryRequests   int
	CredentialsRequests int
	TokenFailures       int
	LockoutWindow       time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:                getEnv("OCPI_ADDR", ":8080"),
		PublicURL:           strings.TrimRight(getEnv("OCPI_PUBLIC_URL", "http://localhost:8080"), "/"),
		AdminToken:          os.Getenv("ADMIN_API_TOKEN"),
		AdminTokenHash:      os.Getenv("ADMIN_API_TOKEN_HASH"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		RegistrationBackend: getEnv("REGISTRATION_BACKEND", "memory"),
		PartyFile:           os.Getenv("OCPI_PARTY_FILE"),
		OCPIClient: OCPIClientConfig{
			Timeout:      getDuration("OCPI_CLIENT_TIMEOUT", 10*time.Second),
			MaxGetTries:  uint64(getInt("OCPI_CLIENT_GET_TRIES", 3)),
			RetryBackoff: getDuration("OCPI_CLIENT_RETRY_BACKOFF", 200*time.Millisecond),
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "ocpi"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:         getEnv("KAFKA_TOPIC", "ocpi.handshake.events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "ocpi-partner-directory"),
			Partitions:    int32(getInt("KAFKA_TOPIC_PARTITIONS", 6)),
		},
		NATS: NATSConfig{
			URL:     os.Getenv("NATS_URL"),
			Stream:  getEnv("NATS_STREAM", "OCPI_HANDSHAKE"),
			Subject: getEnv("NATS_SUBJECT_PREFIX", "ocpi.handshake"),
		},
		Bridge: BridgeConfig{
			Codec:           getEnv("BRIDGE_CODEC", "json"),
			RelayMaxElapsed: getDuration("BRIDGE_RELAY_MAX_ELAPSED", 0),
			ShutdownGrace:   getDuration("BRIDGE_SHUTDOWN_GRACE", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Disabled:            getBool("RATE_LIMIT_DISABLED", false),
			TrustProxy:          getBool("TRUST_PROXY_HEADERS", false),
			Window:              getDuration("RATE_LIMIT_WINDOW", time.Minute),
			DiscoveryRequests:   getInt("RATE_LIMIT_DISCOVERY_REQUESTS", 120),
			CredentialsRequests: getInt("RATE_LIMIT_CREDENTIALS_REQUESTS", 30),
			TokenFailures:       getInt("RATE_LIMIT_TOKEN_FAILURES", 10),
			LockoutWindow:       getDuration("RATE_LIMIT_LOCKOUT_WINDOW", 15*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	return pstrings.SplitList(v, ",")
}
