package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type AnalysisProvider string

const (
	ProviderGemini AnalysisProvider = "gemini"
	ProviderOpenAI AnalysisProvider = "openai"
	ProviderMock   AnalysisProvider = "mock"
)

type Config struct {
	// Server
	Port        string `env:"PORT" envDefault:"8080"`
	Env         string `env:"ENV" envDefault:"development"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// Database
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Redis
	RedisURL string `env:"REDIS_URL,required"`

	// Analysis provider
	AnalysisProvider AnalysisProvider `env:"ANALYSIS_PROVIDER" envDefault:"mock"`
	GeminiAPIKey     string           `env:"GEMINI_API_KEY"`
	GeminiModel      string           `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GeminiConcurrent int              `env:"GEMINI_CONCURRENT_REQUESTS" envDefault:"5"`
	OpenAIAPIKey     string           `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string           `env:"OPENAI_BASE_URL"`
	OpenAIModel      string           `env:"OPENAI_MODEL"`
	MockDelay        time.Duration    `env:"MOCK_ANALYSIS_DELAY" envDefault:"2s"`

	// Audio storage
	StoragePath    string `env:"STORAGE_PATH" envDefault:"./uploads"`
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"recordings"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	// AudioAllowedHosts restricts http(s) audio references to these hosts.
	AudioAllowedHosts []string `env:"AUDIO_ALLOWED_HOSTS" envSeparator:","`

	// Workers
	WorkerCount            int           `env:"WORKER_COUNT" envDefault:"5"`
	QueueMaxDepth          int64         `env:"QUEUE_MAX_DEPTH" envDefault:"1000"`
	AnalysisMaxRetries     uint64        `env:"ANALYSIS_MAX_RETRIES" envDefault:"3"`
	AnalysisInitialBackoff time.Duration `env:"ANALYSIS_INITIAL_BACKOFF" envDefault:"1s"`
	AnalysisTimeout        time.Duration `env:"ANALYSIS_TIMEOUT" envDefault:"2m"`
	StaleProcessingAfter   time.Duration `env:"STALE_PROCESSING_AFTER" envDefault:"15m"`

	// Scheduler
	SnapshotCron string `env:"SNAPSHOT_CRON" envDefault:"55 23 * * *"`
	SweepCron    string `env:"SWEEP_CRON" envDefault:"@every 5m"`

	// Logging
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`

	// HTTP
	SubmitRate      string        `env:"SUBMIT_RATE" envDefault:"30-M"`
	SummaryCacheTTL time.Duration `env:"SUMMARY_CACHE_TTL" envDefault:"30s"`
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AnalysisProvider = AnalysisProvider(strings.ToLower(strings.TrimSpace(string(cfg.AnalysisProvider))))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) MinioEnabled() bool {
	return c.MinioEndpoint != ""
}

func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}

	switch c.AnalysisProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when ANALYSIS_PROVIDER=gemini"))
		}
		if c.GeminiConcurrent < 1 {
			errs = append(errs, errors.New("GEMINI_CONCURRENT_REQUESTS must be at least 1"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when ANALYSIS_PROVIDER=openai"))
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown ANALYSIS_PROVIDER %q", c.AnalysisProvider))
	}

	if c.WorkerCount < 1 {
		errs = append(errs, errors.New("WORKER_COUNT must be at least 1"))
	}
	if c.QueueMaxDepth < 0 {
		errs = append(errs, errors.New("QUEUE_MAX_DEPTH must not be negative"))
	}
	if c.AnalysisTimeout <= 0 {
		errs = append(errs, errors.New("ANALYSIS_TIMEOUT must be positive"))
	}
	if c.StaleProcessingAfter <= c.AnalysisTimeout {
		errs = append(errs, errors.New("STALE_PROCESSING_AFTER must be longer than ANALYSIS_TIMEOUT"))
	}
	if c.MinioEndpoint != "" && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
		errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required with MINIO_ENDPOINT"))
	}

	return errors.Join(errs...)
}
