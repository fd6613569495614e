package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Rembg    RembgConfig    `yaml:"rembg"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EngineConfig holds settings for the image-generation engine.
type EngineConfig struct {
	Address        string `yaml:"address"`         // host:port of the engine
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per-generation budget
	HealthInterval string `yaml:"health_interval"` // cron @every descriptor body, e.g. "1m"
}

// WorkflowConfig holds the template path and the node ids the injector
// and locator rely on. Zero id values fall back to the template defaults.
type WorkflowConfig struct {
	Path          string   `yaml:"path"`
	PromptNode    int64    `yaml:"prompt_node"`
	WidthNode     int64    `yaml:"width_node"`
	HeightNode    int64    `yaml:"height_node"`
	SwitchNode    int64    `yaml:"switch_node"`
	RequiredNodes []int64  `yaml:"required_nodes"`
	SaveNodes     []string `yaml:"save_nodes"`
}

// GeminiConfig holds prompt-enhancement settings.
type GeminiConfig struct {
	APIKey             string `yaml:"api_key"` // usually via GOOGLE_API_KEY
	Model              string `yaml:"model"`
	MaxTokens          int32  `yaml:"max_tokens"`
	EnhancerPromptPath string `yaml:"enhancer_prompt_path"`
	ReactionPromptPath string `yaml:"reaction_prompt_path"`
}

// RembgConfig holds the external background-removal service settings.
// An empty URL disables the post-processing step.
type RembgConfig struct {
	URL string `yaml:"url"`
}

// DatabaseConfig holds database connection settings. An empty URL keeps
// generation history in memory only.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APISecretKey string `yaml:"api_secret_key"` // usually via API_SECRET_KEY
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Engine: EngineConfig{
			Address:        "127.0.0.1:8188",
			TimeoutSeconds: 300,
			HealthInterval: "1m",
		},
		Workflow: WorkflowConfig{
			Path: "workflows/pixel_art_server.json",
		},
		Gemini: GeminiConfig{
			Model:              "gemini-2.5-flash-preview-05-20",
			MaxTokens:          500,
			EnhancerPromptPath: "prompts/prompt_enhancer.md",
			ReactionPromptPath: "prompts/reaction_system.md",
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config with
// environment overrides applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, it returns defaults with environment
// overrides. Any other error (permissions, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets the environment override file values. Secrets are only
// ever expected from the environment; PORT follows the Cloud Run
// convention.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("COMFYUI_ADDRESS"); v != "" {
		c.Engine.Address = v
	}
	if v := os.Getenv("API_SECRET_KEY"); v != "" {
		c.Auth.APISecretKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REMBG_URL"); v != "" {
		c.Rembg.URL = v
	}
}

// Validate checks that required secrets are present.
func (c *Config) Validate() error {
	if c.Auth.APISecretKey == "" {
		return errors.New("config: API_SECRET_KEY is missing")
	}
	if c.Gemini.APIKey == "" {
		return errors.New("config: GOOGLE_API_KEY is missing")
	}
	return nil
}
