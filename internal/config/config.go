package config

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development" validate:"oneof=development staging production"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	DBPath   string `envconfig:"DB_PATH" default:"./data/coaching.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error

	// APIToken protects the trigger/processor endpoints. Required outside
	// development.
	APIToken string `envconfig:"API_TOKEN"`

	// ProcessorURL is where the scheduler posts per-user jobs; defaults to
	// this process's own endpoint.
	ProcessorURL     string        `envconfig:"PROCESSOR_URL" default:"http://127.0.0.1:8080/v1/coaching/process" validate:"url"`
	DispatchParallel int           `envconfig:"DISPATCH_PARALLEL" default:"16" validate:"min=1"`
	DispatchTimeout  time.Duration `envconfig:"DISPATCH_TIMEOUT" default:"5s"`
	ProcessTimeout   time.Duration `envconfig:"PROCESS_TIMEOUT" default:"3m"`

	// CronEnabled turns on the in-process hourly trigger for deployments
	// without an external cron.
	CronEnabled bool `envconfig:"CRON_ENABLED" default:"false"`

	LLMBaseURL string        `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1" validate:"url"`
	LLMAPIKey  string        `envconfig:"LLM_API_KEY"`
	LLMModel   string        `envconfig:"LLM_MODEL" default:"gpt-4o"`
	LLMTimeout time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`

	PushEndpoint string        `envconfig:"PUSH_ENDPOINT" default:"https://exp.host/--/api/v2/push/send" validate:"url"`
	PushTimeout  time.Duration `envconfig:"PUSH_TIMEOUT" default:"10s"`
}

// IsDevelopment reports whether the service runs in development mode.
func (c Config) IsDevelopment() bool { return c.Env == "development" }

// Load reads environment variables into Config and checks its invariants.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, err
	}
	if !cfg.IsDevelopment() && cfg.APIToken == "" {
		return cfg, errors.New("API_TOKEN is required outside development")
	}
	return cfg, nil
}
