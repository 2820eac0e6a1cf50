// Package config loads analyst configuration from defaults, an optional YAML
// file, .env files and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sakif/analysis-runner/internal/analysis"
	"github.com/sakif/analysis-runner/internal/executor/docker"
)

// EnvPrefix prefixes every environment override, e.g. ANALYST_SANDBOX_IMAGE.
const EnvPrefix = "ANALYST"

type ServerConfig struct {
	Port                  int           `mapstructure:"port" yaml:"port"`
	DBPath                string        `mapstructure:"db_path" yaml:"db_path"`
	CORSOrigins           []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	MaxConcurrentAnalyses int           `mapstructure:"max_concurrent_analyses" yaml:"max_concurrent_analyses"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxUploadBytes        int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

type SandboxConfig struct {
	Image string `mapstructure:"image" yaml:"image"`
	// MemoryLimit accepts docker style sizes such as "512m" or "1g".
	MemoryLimit       string        `mapstructure:"memory_limit" yaml:"memory_limit"`
	CPULimit          float64       `mapstructure:"cpu_limit" yaml:"cpu_limit"`
	PidsLimit         int64         `mapstructure:"pids_limit" yaml:"pids_limit"`
	Network           string        `mapstructure:"network" yaml:"network"`
	WorkDir           string        `mapstructure:"workdir" yaml:"workdir"`
	EnvironmentBudget time.Duration `mapstructure:"environment_budget" yaml:"environment_budget"`
	ExecTimeout       time.Duration `mapstructure:"exec_timeout" yaml:"exec_timeout"`
	ReclaimTimeout    time.Duration `mapstructure:"reclaim_timeout" yaml:"reclaim_timeout"`
	PullTimeout       time.Duration `mapstructure:"pull_timeout" yaml:"pull_timeout"`
	Dependencies      []string      `mapstructure:"dependencies" yaml:"dependencies"`
	SweepOnStart      bool          `mapstructure:"sweep_on_start" yaml:"sweep_on_start"`
}

type AuthConfig struct {
	// JWTSecret enables bearer token auth on the API when set.
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// legacyEnv maps keys to the unprefixed variable names older deployments
// still set.
var legacyEnv = map[string]string{
	"server.port":     "PORT",
	"server.db_path":  "DB_PATH",
	"auth.jwt_secret": "JWT_SECRET",
}

func setDefaults(v *viper.Viper) {
	d := docker.DefaultConfig()
	a := analysis.DefaultConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.db_path", "data/analyst.db")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.max_concurrent_analyses", 4)
	v.SetDefault("server.request_timeout", 6*time.Minute)
	v.SetDefault("server.max_upload_bytes", 10<<20)

	v.SetDefault("sandbox.image", d.Image)
	v.SetDefault("sandbox.memory_limit", units.BytesSize(float64(d.MemoryLimit)))
	v.SetDefault("sandbox.cpu_limit", d.CPULimit)
	v.SetDefault("sandbox.pids_limit", d.PidsLimit)
	v.SetDefault("sandbox.network", d.NetworkMode)
	v.SetDefault("sandbox.workdir", d.WorkDir)
	v.SetDefault("sandbox.environment_budget", a.Budget)
	v.SetDefault("sandbox.exec_timeout", d.ExecTimeout)
	v.SetDefault("sandbox.reclaim_timeout", a.ReclaimTimeout)
	v.SetDefault("sandbox.pull_timeout", d.PullTimeout)
	deps := make([]string, 0, len(a.Dependencies))
	for _, dep := range a.Dependencies {
		deps = append(deps, dep.String())
	}
	v.SetDefault("sandbox.dependencies", deps)
	v.SetDefault("sandbox.sweep_on_start", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load builds the configuration. If path is empty, analyst.yaml is looked up
// in the working directory and in $HOME/.analyst; a missing file is not an
// error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("analyst")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.analyst")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads .env.local and then .env into the process environment.
// Variables that are already set win; missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxConcurrentAnalyses < 0 {
		return fmt.Errorf("server.max_concurrent_analyses must not be negative")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := units.RAMInBytes(c.Sandbox.MemoryLimit); err != nil {
		return fmt.Errorf("sandbox.memory_limit: %w", err)
	}
	for name, d := range map[string]time.Duration{
		"sandbox.environment_budget": c.Sandbox.EnvironmentBudget,
		"sandbox.exec_timeout":       c.Sandbox.ExecTimeout,
		"sandbox.reclaim_timeout":    c.Sandbox.ReclaimTimeout,
		"sandbox.pull_timeout":       c.Sandbox.PullTimeout,
		"auth.token_ttl":             c.Auth.TokenTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Sandbox.ExecTimeout > c.Sandbox.EnvironmentBudget {
		return fmt.Errorf("sandbox.exec_timeout (%s) exceeds sandbox.environment_budget (%s)",
			c.Sandbox.ExecTimeout, c.Sandbox.EnvironmentBudget)
	}
	if _, err := analysis.ParseDependencies(c.Sandbox.Dependencies); err != nil {
		return fmt.Errorf("sandbox.dependencies: %w", err)
	}
	return nil
}

// Docker returns the provider configuration.
func (c *Config) Docker() docker.Config {
	mem, _ := units.RAMInBytes(c.Sandbox.MemoryLimit)
	return docker.Config{
		Image:       c.Sandbox.Image,
		MemoryLimit: mem,
		CPULimit:    c.Sandbox.CPULimit,
		PidsLimit:   c.Sandbox.PidsLimit,
		NetworkMode: c.Sandbox.Network,
		WorkDir:     c.Sandbox.WorkDir,
		ExecTimeout: c.Sandbox.ExecTimeout,
		PullTimeout: c.Sandbox.PullTimeout,
	}
}

// Analysis returns the pipeline configuration.
func (c *Config) Analysis() analysis.Config {
	deps, _ := analysis.ParseDependencies(c.Sandbox.Dependencies)
	return analysis.Config{
		Budget:         c.Sandbox.EnvironmentBudget,
		ReclaimTimeout: c.Sandbox.ReclaimTimeout,
		Dependencies:   deps,
	}
}

// NewLogger creates a structured logger writing to w at the configured level,
// as text or JSON.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// YAML renders the effective configuration with the JWT secret masked.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	if out.Auth.JWTSecret != "" {
		out.Auth.JWTSecret = "********"
	}
	return yaml.Marshal(&out)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}

// EnsureDir creates the directory holding the database file.
func (c *Config) EnsureDir() error {
	if c.Server.DBPath == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(c.Server.DBPath), 0o755)
}
