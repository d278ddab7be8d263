package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Oracle    OracleConfig    `yaml:"oracle" mapstructure:"oracle"`
	Loop      LoopConfig      `yaml:"loop" mapstructure:"loop"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Safety    SafetyConfig    `yaml:"safety" mapstructure:"safety"`
	Executor  ExecutorConfig  `yaml:"executor" mapstructure:"executor"`
	Research  ResearchConfig  `yaml:"research" mapstructure:"research"`
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	LogLevel  string          `yaml:"log_level" mapstructure:"log_level"`
	LogFile   string          `yaml:"log_file" mapstructure:"log_file"`
	Schedule  string          `yaml:"schedule" mapstructure:"schedule"`
	Reflector ReflectorConfig `yaml:"reflector" mapstructure:"reflector"`
}

type OracleConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	EmbeddingModel string  `yaml:"embedding_model" mapstructure:"embedding_model"`
	Temperature    float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type LoopConfig struct {
	MaxIterations    int `yaml:"max_iterations" mapstructure:"max_iterations"`
	MaxMemoryContent int `yaml:"max_memory_content" mapstructure:"max_memory_content"`
	MaxCodeLength    int `yaml:"max_code_length" mapstructure:"max_code_length"`
}

type CacheConfig struct {
	Enabled    bool `yaml:"enabled" mapstructure:"enabled"`
	MaxSize    int  `yaml:"max_size" mapstructure:"max_size"`
	TTLSeconds int  `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
}

type SafetyConfig struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`
	BlockDangerous  bool     `yaml:"block_dangerous" mapstructure:"block_dangerous"`
	RestrictedGlobs []string `yaml:"restricted_globs" mapstructure:"restricted_globs"`
}

type ExecutorConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSeconds int  `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type ResearchConfig struct {
	RenderJS bool `yaml:"render_js" mapstructure:"render_js"`
}

type ReflectorConfig struct {
	UseEmbeddings bool `yaml:"use_embeddings" mapstructure:"use_embeddings"`
}

type PathsConfig struct {
	MemoryFile string `yaml:"memory_file" mapstructure:"memory_file"`
	GoalsFile  string `yaml:"goals_file" mapstructure:"goals_file"`
	IndexDB    string `yaml:"index_db" mapstructure:"index_db"`
	ReportFile string `yaml:"report_file" mapstructure:"report_file"`
}

var envVarRe = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)

func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

func DefaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			BaseURL:        "https://api.openai.com/v1",
			APIKey:         "$OPENAI_API_KEY",
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Temperature:    0.7,
			MaxTokens:      2000,
			TimeoutSeconds: 60,
		},
		Loop: LoopConfig{
			MaxIterations:    3,
			MaxMemoryContent: 1000,
			MaxCodeLength:    5000,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSize:    1000,
			TTLSeconds: 3600,
		},
		Safety: SafetyConfig{
			Enabled:        true,
			BlockDangerous: true,
		},
		Executor: ExecutorConfig{
			Enabled:        false,
			TimeoutSeconds: 30,
		},
		Paths: PathsConfig{
			MemoryFile: "autopilot_memory.json",
			GoalsFile:  "autopilot_goals.json",
			IndexDB:    "autopilot.db",
			ReportFile: "autopilot_report.json",
		},
		LogLevel: "info",
		LogFile:  "autopilot.log",
	}
}

func configPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "autopilot", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "autopilot", "config.yaml")
}

// Load reads config.yaml from the working directory or the user config dir,
// overlays AUTOPILOT_* environment variables, and validates the result.
// All values are read once here; there is no hot-reload.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		viper.AddConfigPath(filepath.Join(xdg, "autopilot"))
	}
	home, _ := os.UserHomeDir()
	viper.AddConfigPath(filepath.Join(home, ".config", "autopilot"))

	viper.SetEnvPrefix("AUTOPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found; defaults apply
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.Oracle.APIKey = expandEnv(cfg.Oracle.APIKey)
	cfg.Oracle.BaseURL = expandEnv(cfg.Oracle.BaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the loop cannot run with. A failure here
// is fatal at startup; nothing else in the system returns config errors.
func (c *Config) Validate() error {
	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle.model must be set")
	}
	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle.base_url must be set")
	}
	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		return fmt.Errorf("oracle.temperature %.2f out of range [0, 2]", c.Oracle.Temperature)
	}
	if c.Oracle.MaxTokens <= 0 {
		return fmt.Errorf("oracle.max_tokens must be positive")
	}
	if c.Loop.MaxIterations < 1 {
		return fmt.Errorf("loop.max_iterations must be at least 1")
	}
	if c.Cache.MaxSize < 1 {
		return fmt.Errorf("cache.max_size must be at least 1")
	}
	if c.Cache.TTLSeconds < 1 {
		return fmt.Errorf("cache.ttl_seconds must be at least 1")
	}
	if c.Paths.MemoryFile == "" || c.Paths.GoalsFile == "" {
		return fmt.Errorf("paths.memory_file and paths.goals_file must be set")
	}
	return nil
}

// WriteDefault writes the default configuration to the user config path,
// refusing to overwrite an existing file.
func WriteDefault() (string, error) {
	path := configPath()
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, err
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return path, err
	}
	return path, os.WriteFile(path, data, 0644)
}
