package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	ListenAddr string          `yaml:"listen_addr" env:"LISTEN_ADDR"`
	LogLevel   string          `yaml:"log_level" env:"LOG_LEVEL"`
	Store      StoreConfig     `yaml:"store"`
	Session    SessionConfig   `yaml:"session"`
	Engine     EngineConfig    `yaml:"engine"`
	Storage    StorageConfig   `yaml:"storage"`
	TLS        TLSConfig       `yaml:"tls"`
	Server     ServerConfig    `yaml:"server"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	Tracing    TracingConfig   `yaml:"tracing"`
	Audit      AuditConfig     `yaml:"audit"`
}

// StoreConfig holds the metadata store (Redis) configuration.
type StoreConfig struct {
	Addr        string        `yaml:"addr" env:"STORE_ADDR"`
	Password    string        `yaml:"password" env:"STORE_PASSWORD"`
	DB          int           `yaml:"db" env:"STORE_DB"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"STORE_DIAL_TIMEOUT"`
	OpTimeout   time.Duration `yaml:"op_timeout" env:"STORE_OP_TIMEOUT"`
}

// SessionConfig holds redaction session parameters.
type SessionConfig struct {
	// TTL is the lifetime of stored session metadata. After it elapses the
	// session is unrecoverable even with the correct key.
	TTL time.Duration `yaml:"ttl" env:"SESSION_TTL"`
	// SealAlgorithm selects the AEAD used to seal extracted items:
	// "aes-256-gcm" or "chacha20-poly1305".
	SealAlgorithm string `yaml:"seal_algorithm" env:"SESSION_SEAL_ALGORITHM"`
}

// EngineConfig holds redaction engine configuration.
type EngineConfig struct {
	// Timeout bounds a single engine invocation.
	Timeout time.Duration `yaml:"timeout" env:"ENGINE_TIMEOUT"`
	Vision  VisionConfig  `yaml:"vision"`
}

// VisionConfig holds the remote vision inference backend configuration.
type VisionConfig struct {
	Endpoint string `yaml:"endpoint" env:"VISION_ENDPOINT"`
	APIKey   string `yaml:"api_key" env:"VISION_API_KEY"`
}

// StorageConfig holds locations for request-scoped artifacts.
type StorageConfig struct {
	TempDir     string `yaml:"temp_dir" env:"STORAGE_TEMP_DIR"`
	RedactedDir string `yaml:"redacted_dir" env:"STORAGE_REDACTED_DIR"`
	RestoredDir string `yaml:"restored_dir" env:"STORAGE_RESTORED_DIR"`
}

// TLSConfig holds TLS configuration.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" env:"TLS_ENABLED"`
	CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"SERVER_READ_HEADER_TIMEOUT"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes" env:"SERVER_MAX_HEADER_BYTES"`
	// MaxUploadBytes caps the size of an uploaded document.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"SERVER_MAX_UPLOAD_BYTES"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	Limit   int           `yaml:"limit" env:"RATE_LIMIT_REQUESTS"`
	Window  time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled         bool    `yaml:"enabled" env:"TRACING_ENABLED"`
	ServiceName     string  `yaml:"service_name" env:"TRACING_SERVICE_NAME"`
	ServiceVersion  string  `yaml:"service_version" env:"TRACING_SERVICE_VERSION"`
	Exporter        string  `yaml:"exporter" env:"TRACING_EXPORTER"` // stdout, jaeger, otlp
	JaegerEndpoint  string  `yaml:"jaeger_endpoint" env:"TRACING_JAEGER_ENDPOINT"`
	OtlpEndpoint    string  `yaml:"otlp_endpoint" env:"TRACING_OTLP_ENDPOINT"`
	SamplingRatio   float64 `yaml:"sampling_ratio" env:"TRACING_SAMPLING_RATIO"`
	RedactSensitive bool    `yaml:"redact_sensitive" env:"TRACING_REDACT_SENSITIVE"`
}

// AuditConfig holds audit logging configuration.
type AuditConfig struct {
	Enabled   bool `yaml:"enabled" env:"AUDIT_ENABLED"`
	MaxEvents int  `yaml:"max_events" env:"AUDIT_MAX_EVENTS"`
}

// Seal algorithm values accepted by SessionConfig.
const (
	SealAES256GCM        = "aes-256-gcm"
	SealChaCha20Poly1305 = "chacha20-poly1305"
)

// LoadConfig loads configuration from a file and environment variables.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Store: StoreConfig{
			Addr:        "localhost:6379",
			DB:          0,
			DialTimeout: 5 * time.Second,
			OpTimeout:   3 * time.Second,
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			SealAlgorithm: SealAES256GCM,
		},
		Engine: EngineConfig{
			Timeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			TempDir:     "temp_uploads",
			RedactedDir: "redacted_files",
			RestoredDir: "restored_files",
		},
		Server: ServerConfig{
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
			MaxUploadBytes:    64 << 20,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			Limit:   100,
			Window:  60 * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:         false,
			ServiceName:     "redaction-gateway",
			ServiceVersion:  "dev",
			Exporter:        "stdout",
			SamplingRatio:   1.0,
			RedactSensitive: true,
		},
		Audit: AuditConfig{
			Enabled:   false,
			MaxEvents: 10000,
		},
	}

	// Load from file if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	loadFromEnv(config)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromEnv loads configuration values from environment variables.
func loadFromEnv(config *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		config.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("STORE_ADDR"); v != "" {
		config.Store.Addr = v
	}
	if v := os.Getenv("STORE_PASSWORD"); v != "" {
		config.Store.Password = v
	}
	if v := os.Getenv("STORE_DB"); v != "" {
		var db int
		if _, err := fmt.Sscanf(v, "%d", &db); err == nil && db >= 0 {
			config.Store.DB = db
		}
	}
	if v := os.Getenv("STORE_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Store.DialTimeout = d
		}
	}
	if v := os.Getenv("STORE_OP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Store.OpTimeout = d
		}
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Session.TTL = d
		}
	}
	if v := os.Getenv("SESSION_SEAL_ALGORITHM"); v != "" {
		config.Session.SealAlgorithm = v
	}
	if v := os.Getenv("ENGINE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Engine.Timeout = d
		}
	}
	if v := os.Getenv("VISION_ENDPOINT"); v != "" {
		config.Engine.Vision.Endpoint = v
	}
	if v := os.Getenv("VISION_API_KEY"); v != "" {
		config.Engine.Vision.APIKey = v
	}
	if v := os.Getenv("STORAGE_TEMP_DIR"); v != "" {
		config.Storage.TempDir = v
	}
	if v := os.Getenv("STORAGE_REDACTED_DIR"); v != "" {
		config.Storage.RedactedDir = v
	}
	if v := os.Getenv("STORAGE_RESTORED_DIR"); v != "" {
		config.Storage.RestoredDir = v
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		config.TLS.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		config.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		config.TLS.KeyFile = v
	}
	// Server timeouts from environment
	if v := os.Getenv("SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("SERVER_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.IdleTimeout = d
		}
	}
	if v := os.Getenv("SERVER_READ_HEADER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ReadHeaderTimeout = d
		}
	}
	if v := os.Getenv("SERVER_MAX_HEADER_BYTES"); v != "" {
		var maxBytes int
		if _, err := fmt.Sscanf(v, "%d", &maxBytes); err == nil && maxBytes > 0 {
			config.Server.MaxHeaderBytes = maxBytes
		}
	}
	if v := os.Getenv("SERVER_MAX_UPLOAD_BYTES"); v != "" {
		var maxBytes int64
		if _, err := fmt.Sscanf(v, "%d", &maxBytes); err == nil && maxBytes > 0 {
			config.Server.MaxUploadBytes = maxBytes
		}
	}
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		config.RateLimit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		var limit int
		if _, err := fmt.Sscanf(v, "%d", &limit); err == nil && limit > 0 {
			config.RateLimit.Limit = limit
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.RateLimit.Window = d
		}
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		config.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACING_SERVICE_NAME"); v != "" {
		config.Tracing.ServiceName = v
	}
	if v := os.Getenv("TRACING_EXPORTER"); v != "" {
		config.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACING_JAEGER_ENDPOINT"); v != "" {
		config.Tracing.JaegerEndpoint = v
	}
	if v := os.Getenv("TRACING_OTLP_ENDPOINT"); v != "" {
		config.Tracing.OtlpEndpoint = v
	}
	if v := os.Getenv("TRACING_SAMPLING_RATIO"); v != "" {
		var ratio float64
		if _, err := fmt.Sscanf(v, "%f", &ratio); err == nil && ratio >= 0 && ratio <= 1 {
			config.Tracing.SamplingRatio = ratio
		}
	}
	if v := os.Getenv("TRACING_REDACT_SENSITIVE"); v != "" {
		config.Tracing.RedactSensitive = v == "true" || v == "1"
	}
	if v := os.Getenv("AUDIT_ENABLED"); v != "" {
		config.Audit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AUDIT_MAX_EVENTS"); v != "" {
		var maxEvents int
		if _, err := fmt.Sscanf(v, "%d", &maxEvents); err == nil && maxEvents > 0 {
			config.Audit.MaxEvents = maxEvents
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.Store.Addr == "" {
		return fmt.Errorf("store.addr is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	switch c.Session.SealAlgorithm {
	case SealAES256GCM, SealChaCha20Poly1305:
	default:
		return fmt.Errorf("session.seal_algorithm must be %q or %q, got %q",
			SealAES256GCM, SealChaCha20Poly1305, c.Session.SealAlgorithm)
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine.timeout must be positive")
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Limit <= 0 {
			return fmt.Errorf("rate_limit.limit must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit.window must be positive")
		}
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout", "jaeger", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be stdout, jaeger or otlp, got %q", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
			return fmt.Errorf("tracing.sampling_ratio must be between 0.0 and 1.0")
		}
	}
	return nil
}
