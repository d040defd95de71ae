package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds everything the server and the validator read from the environment.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBHost      string `env:"DB_HOST" envDefault:"localhost"`
	DBPort      string `env:"DB_PORT" envDefault:"5432"`
	DBName      string `env:"DB_NAME" envDefault:"bizrank"`
	DBUser      string `env:"DB_USER" envDefault:"bizrank"`
	DBPass      string `env:"DB_PASS" envDefault:""`

	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	LLMURL         string        `env:"LLM_URL" envDefault:"http://localhost:11434/api/generate"`
	LLMModel       string        `env:"LLM_MODEL" envDefault:"llama3.1:8b"`
	LLMMaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"300"`
	LLMTemperature float64       `env:"LLM_TEMPERATURE" envDefault:"0.1"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	AnalyzerDelay      time.Duration `env:"ANALYZER_DELAY" envDefault:"1s"`
	AnalyzerBatchLimit int           `env:"ANALYZER_BATCH_LIMIT" envDefault:"50"`

	StaggerDelay      time.Duration `env:"RANKING_STAGGER_DELAY" envDefault:"2s"`
	AspectDelay       time.Duration `env:"RANKING_ASPECT_DELAY" envDefault:"500ms"`
	BadgeRefreshDelay time.Duration `env:"BADGE_REFRESH_DELAY" envDefault:"1s"`
	QueuePollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"250ms"`
	ScoringLockTTL    time.Duration `env:"SCORING_LOCK_TTL" envDefault:"2m"`

	CleanupSchedule      string `env:"CLEANUP_SCHEDULE" envDefault:"@hourly"`
	SystemUpdateSchedule string `env:"SYSTEM_UPDATE_SCHEDULE" envDefault:"0 3 * * *"`
	BadgeRefreshSchedule string `env:"BADGE_REFRESH_SCHEDULE" envDefault:"30 5 * * *"`

	AdminToken string `env:"ADMIN_TOKEN"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// Load reads an optional .env file (ENV_FILE, default ".env") and parses the
// environment into a Config.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// PostgresURL returns DATABASE_URL or one assembled from the DB_* variables.
func (c *Config) PostgresURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}
