package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Execution backends for Java and Python.
const (
	ExecutionRemote = "remote"
	ExecutionDocker = "docker"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	EventSubjectBase       string
	JWTSecret              string
	LogLevel               string
	LogFile                string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	DashboardCacheTTL      time.Duration
	SessionTTL             time.Duration
	AutosaveTicks          int
	ExecutionBackend       string
	ExecutionEndpoint      string
	ExecutionRatePerSecond float64
	ExecutionConcurrency   int
	ExecutionTimeout       time.Duration
	DockerHost             string
	CodeRunMemoryMB        int
	CodeRunCPUShares       int
	ReviewPurgeBatchSize   int
	RunRateLimit           int
	RunRateWindow          time.Duration
	OpenAIAPIKey           string
	OpenAIModel            string
	SeedEnabled            bool
	SeedToken              string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryEnabled reports whether review exports can be uploaded.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ASSESS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Assessment API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.subject_base", "assess")
	v.SetDefault("log.level", "info")
	v.SetDefault("cloudinary.folder", "gema/reviews")
	v.SetDefault("dashboard.cache_ttl", "5m")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.autosave_ticks", 10)
	v.SetDefault("execution.backend", ExecutionRemote)
	v.SetDefault("execution.endpoint", "https://emkc.org/api/v2/piston/execute")
	v.SetDefault("execution.rate_per_second", 4.0)
	v.SetDefault("execution.concurrency", 1)
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("review.purge_batch_size", 100)
	v.SetDefault("run.rate_limit", 30)
	v.SetDefault("run.rate_window", "1m")
	v.SetDefault("openai.model", "gpt-4o-mini")

	catalogTTL, err := parseDuration(v, "dashboard.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	sessionTTL, err := parseDuration(v, "session.ttl")
	if err != nil {
		return Config{}, err
	}
	runWindow, err := parseDuration(v, "run.rate_window")
	if err != nil {
		return Config{}, err
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventSubjectBase:       v.GetString("nats.subject_base"),
		JWTSecret:              v.GetString("jwt.secret"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		LogFile:                v.GetString("log.file"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		DashboardCacheTTL:      catalogTTL,
		SessionTTL:             sessionTTL,
		AutosaveTicks:          v.GetInt("session.autosave_ticks"),
		ExecutionBackend:       strings.ToLower(v.GetString("execution.backend")),
		ExecutionEndpoint:      v.GetString("execution.endpoint"),
		ExecutionRatePerSecond: v.GetFloat64("execution.rate_per_second"),
		ExecutionConcurrency:   v.GetInt("execution.concurrency"),
		ExecutionTimeout:       time.Duration(timeoutMs) * time.Millisecond,
		DockerHost:             v.GetString("docker_host"),
		CodeRunMemoryMB:        v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:       v.GetInt("code_run_cpu_shares"),
		ReviewPurgeBatchSize:   v.GetInt("review.purge_batch_size"),
		RunRateLimit:           v.GetInt("run.rate_limit"),
		RunRateWindow:          runWindow,
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIModel:            v.GetString("openai.model"),
		SeedEnabled:            v.GetBool("seed.enabled"),
		SeedToken:              v.GetString("seed.token"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.ExecutionBackend {
	case ExecutionRemote:
		if cfg.ExecutionEndpoint == "" {
			return Config{}, fmt.Errorf("execution endpoint must be provided for the remote backend")
		}
	case ExecutionDocker:
	default:
		return Config{}, fmt.Errorf("unknown execution backend %q", cfg.ExecutionBackend)
	}

	if cfg.ExecutionConcurrency < 1 {
		cfg.ExecutionConcurrency = 1
	}

	if cfg.AutosaveTicks <= 0 {
		cfg.AutosaveTicks = 10
	}

	if cfg.ReviewPurgeBatchSize <= 0 {
		cfg.ReviewPurgeBatchSize = 100
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
