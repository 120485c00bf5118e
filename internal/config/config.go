package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

// Storage drivers
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageR2     = "r2"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Upload     UploadConfig
	Storage    StorageConfig
	R2         R2Config
	Analysis   AnalysisConfig
	Generation GenerationConfig
	Progress   ProgressConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	PreviewPerMin   int
	AnalysisPerHour int
	GeneratePerHour int
}

type UploadConfig struct {
	MaxSizeMB  int
	Extensions []string
}

// MaxSizeBytes returns the upload limit in bytes
func (u UploadConfig) MaxSizeBytes() int64 {
	return int64(u.MaxSizeMB) * 1024 * 1024
}

type StorageConfig struct {
	Driver     string
	TTLMinutes int
	PublicURL  string // base URL used to build /api/resources links
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	URLExpiryMin    int
}

type AnalysisConfig struct {
	BaseURL string
	Timeout int // seconds
}

type GenerationConfig struct {
	BaseURL string
	Timeout int // seconds
}

type ProgressConfig struct {
	TotalDurationMs int
	TickMs          int
	Phases          []PhaseConfig
}

type PhaseConfig struct {
	ID          string `mapstructure:"id"`
	DisplayName string `mapstructure:"display_name"`
	Description string `mapstructure:"description"`
	Weight      int    `mapstructure:"weight"`
}

// DefaultPhases mirrors the four stages of the analysis backend.
var DefaultPhases = []PhaseConfig{
	{ID: "classification", DisplayName: "Classification", Description: "Checking whether the document is a scientific paper", Weight: 25},
	{ID: "paragraphs", DisplayName: "Paragraphs", Description: "Detecting paragraph regions", Weight: 35},
	{ID: "text_analysis", DisplayName: "Text analysis", Description: "Counting words and frequencies", Weight: 20},
	{ID: "compliance", DisplayName: "Compliance", Description: "Building the compliance report", Weight: 20},
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("ratelimit.preview_per_min", "RATELIMIT_PREVIEW_PER_MIN")
	_ = v.BindEnv("ratelimit.analysis_per_hour", "RATELIMIT_ANALYSIS_PER_HOUR")
	_ = v.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = v.BindEnv("upload.max_size_mb", "UPLOAD_MAX_SIZE_MB")
	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")
	_ = v.BindEnv("storage.ttl_minutes", "STORAGE_TTL_MINUTES")
	_ = v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.url_expiry_min", "R2_URL_EXPIRY_MIN")
	_ = v.BindEnv("analysis.base_url", "ANALYSIS_BASE_URL")
	_ = v.BindEnv("analysis.timeout", "ANALYSIS_TIMEOUT")
	_ = v.BindEnv("generation.base_url", "GENERATION_BASE_URL")
	_ = v.BindEnv("generation.timeout", "GENERATION_TIMEOUT")
	_ = v.BindEnv("progress.total_duration_ms", "PROGRESS_TOTAL_DURATION_MS")
	_ = v.BindEnv("progress.tick_ms", "PROGRESS_TICK_MS")

	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.preview_per_min", 60)
	v.SetDefault("ratelimit.analysis_per_hour", 30)
	v.SetDefault("ratelimit.generate_per_hour", 20)

	// Upload whitelist enforced before any decoding
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("upload.extensions", []string{".pdf", ".png", ".jpg", ".jpeg", ".tiff", ".tif"})

	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.ttl_minutes", 60)
	v.SetDefault("storage.public_url", "")
	v.SetDefault("r2.url_expiry_min", 15)

	// Backend defaults
	v.SetDefault("analysis.base_url", "http://localhost:8000")
	v.SetDefault("analysis.timeout", 120)
	v.SetDefault("generation.base_url", "http://localhost:8001")
	v.SetDefault("generation.timeout", 300)

	v.SetDefault("progress.total_duration_ms", 25000)
	v.SetDefault("progress.tick_ms", 100)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			PreviewPerMin:   v.GetInt("ratelimit.preview_per_min"),
			AnalysisPerHour: v.GetInt("ratelimit.analysis_per_hour"),
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
		},
		Upload: UploadConfig{
			MaxSizeMB:  v.GetInt("upload.max_size_mb"),
			Extensions: normalizeExtensions(v.GetStringSlice("upload.extensions")),
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(v.GetString("storage.driver")),
			TTLMinutes: v.GetInt("storage.ttl_minutes"),
			PublicURL:  strings.TrimRight(v.GetString("storage.public_url"), "/"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			URLExpiryMin:    v.GetInt("r2.url_expiry_min"),
		},
		Analysis: AnalysisConfig{
			BaseURL: strings.TrimRight(v.GetString("analysis.base_url"), "/"),
			Timeout: v.GetInt("analysis.timeout"),
		},
		Generation: GenerationConfig{
			BaseURL: strings.TrimRight(v.GetString("generation.base_url"), "/"),
			Timeout: v.GetInt("generation.timeout"),
		},
		Progress: ProgressConfig{
			TotalDurationMs: v.GetInt("progress.total_duration_ms"),
			TickMs:          v.GetInt("progress.tick_ms"),
		},
	}

	if err := v.UnmarshalKey("progress.phases", &cfg.Progress.Phases); err != nil {
		return nil, fmt.Errorf("invalid progress.phases: %w", err)
	}
	if len(cfg.Progress.Phases) == 0 {
		cfg.Progress.Phases = append([]PhaseConfig(nil), DefaultPhases...)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageRedis, StorageR2:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("upload.max_size_mb must be positive")
	}
	if c.Progress.TotalDurationMs <= 0 || c.Progress.TickMs <= 0 {
		return fmt.Errorf("progress durations must be positive")
	}
	total := 0
	for _, p := range c.Progress.Phases {
		if p.ID == "" || p.Weight <= 0 {
			return fmt.Errorf("progress phase %q must have an id and a positive weight", p.ID)
		}
		total += p.Weight
	}
	if total != 100 {
		return fmt.Errorf("progress phase weights sum to %d, want 100", total)
	}
	return nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
