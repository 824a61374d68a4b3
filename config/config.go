// Package config loads vox settings from a YAML file, a .env file and the
// process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/vox/agentloop"
	"github.com/martinemde/vox/unifiedllm"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "vox.yaml"

// DotenvPath is loaded into the process environment before env parsing.
const DotenvPath = ".env"

// Config is the complete runtime configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Lookup    LookupConfig    `yaml:"lookup"`
	Serve     ServeConfig     `yaml:"serve"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LLMConfig selects the model and how calls to it are retried. BaseURL and
// Organization apply to the native OpenAI provider; MaxTokens applies to
// providers reached through gollm.
type LLMConfig struct {
	Provider           string        `yaml:"provider" env:"VOX_PROVIDER" validate:"required"`
	Model              string        `yaml:"model" env:"VOX_MODEL" validate:"required"`
	TranscriptionModel string        `yaml:"transcription_model" env:"VOX_TRANSCRIPTION_MODEL" validate:"required"`
	APIKey             string        `yaml:"-" env:"OPENAI_API_KEY"`
	BaseURL            string        `yaml:"base_url,omitempty" env:"OPENAI_BASE_URL" validate:"omitempty,url"`
	Organization       string        `yaml:"organization,omitempty" env:"OPENAI_ORG_ID"`
	Temperature        *float64      `yaml:"temperature,omitempty" env:"VOX_TEMPERATURE" validate:"omitempty,gte=0,lte=2"`
	MaxTokens          int           `yaml:"max_tokens,omitempty" env:"VOX_MAX_TOKENS" validate:"gte=0"`
	MaxRetries         int           `yaml:"max_retries" env:"VOX_MAX_RETRIES" validate:"gte=0,lte=10"`
	ModelTimeout       time.Duration `yaml:"model_timeout" env:"VOX_MODEL_TIMEOUT" validate:"gte=0"`
}

// AgentConfig bounds the orchestration loop.
type AgentConfig struct {
	Instructions   string        `yaml:"instructions,omitempty" env:"VOX_INSTRUCTIONS"`
	MaxIterations  int           `yaml:"max_iterations" env:"VOX_MAX_ITERATIONS" validate:"gte=1"`
	ToolTimeout    time.Duration `yaml:"tool_timeout" env:"VOX_TOOL_TIMEOUT" validate:"gte=0"`
	CommandTimeout time.Duration `yaml:"command_timeout" env:"VOX_COMMAND_TIMEOUT" validate:"gte=0"`
	LoopDetection  bool          `yaml:"loop_detection" env:"VOX_LOOP_DETECTION"`
}

// WorkspaceConfig says where per-session workspaces are created.
type WorkspaceConfig struct {
	Base string `yaml:"base" env:"VOX_WORKSPACE_BASE" validate:"required"`
}

// LookupConfig points the location and weather tools at their services.
type LookupConfig struct {
	Enabled     bool   `yaml:"enabled" env:"VOX_LOOKUP_TOOLS"`
	LocationURL string `yaml:"location_url" env:"VOX_LOCATION_URL" validate:"omitempty,url"`
	WeatherURL  string `yaml:"weather_url" env:"VOX_WEATHER_URL" validate:"omitempty,url"`
}

// ServeConfig controls the static file server for generated apps. Port 0
// picks a free port.
type ServeConfig struct {
	Host string `yaml:"host" env:"VOX_SERVE_HOST"`
	Port int    `yaml:"port" env:"VOX_SERVE_PORT" validate:"gte=0,lte=65535"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"VOX_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"VOX_LOG_FORMAT" validate:"oneof=console json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:           "openai",
			Model:              "gpt-4o",
			TranscriptionModel: "whisper-1",
			MaxRetries:         2,
			ModelTimeout:       2 * time.Minute,
		},
		Agent: AgentConfig{
			MaxIterations:  agentloop.DefaultMaxIterations,
			ToolTimeout:    5 * time.Minute,
			CommandTimeout: agentloop.DefaultCommandTimeout,
			LoopDetection:  true,
		},
		Workspace: WorkspaceConfig{Base: "./workspace"},
		Lookup: LookupConfig{
			Enabled:     true,
			LocationURL: agentloop.DefaultLocationURL,
			WeatherURL:  agentloop.DefaultWeatherURL,
		},
		Serve:   ServeConfig{Port: 3000},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load builds a Config from defaults, then the YAML file at path if it
// exists, then .env, then the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := loadDotenv(DotenvPath); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// loadDotenv exports the variables in path without overriding ones that
// are already set. A missing file is not an error.
func loadDotenv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q constraint", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireCredentials reports a missing API key for the native OpenAI
// provider. Other providers read their keys through gollm.
func (c *Config) RequireCredentials() error {
	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}
	return nil
}

// Profile returns the provider profile for the configured model.
func (c *Config) Profile() agentloop.ProviderProfile {
	p := agentloop.NewProviderProfile(c.LLM.Provider, c.LLM.Model)
	if c.Agent.Instructions != "" {
		p.Instructions = c.Agent.Instructions
	}
	return p
}

// SessionConfig maps the agent and LLM sections onto loop settings.
func (c *Config) SessionConfig() agentloop.SessionConfig {
	sc := agentloop.DefaultSessionConfig()
	sc.MaxIterations = c.Agent.MaxIterations
	sc.ToolTimeout = c.Agent.ToolTimeout
	sc.ModelTimeout = c.LLM.ModelTimeout
	sc.Temperature = c.LLM.Temperature
	sc.EnableLoopDetection = c.Agent.LoopDetection

	policy := unifiedllm.DefaultRetryPolicy()
	policy.MaxRetries = c.LLM.MaxRetries
	sc.RetryPolicy = policy
	return sc
}

// LookupOptions returns the endpoints for the lookup tools.
func (c *Config) LookupOptions() agentloop.LookupOptions {
	return agentloop.LookupOptions{
		LocationURL: c.Lookup.LocationURL,
		WeatherURL:  c.Lookup.WeatherURL,
	}
}

// ServeAddr is the listen address for the workspace file server.
func (c *Config) ServeAddr() string {
	return fmt.Sprintf("%s:%d", c.Serve.Host, c.Serve.Port)
}
