// Package config loads docindex configuration.
//
// Configuration is layered, later layers winning:
//  1. Built-in defaults (NewConfig)
//  2. YAML file (docindex.yaml in the working directory, or an explicit path)
//  3. Environment variables (WORKING_DIR, MAX_WORKERS, LIGHTRAG_API_URL, ...)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/docindex-mcp/internal/engine"
	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/jobs"
	"github.com/dshills/docindex-mcp/internal/logging"
)

// DefaultFileName is the config file picked up when no path is given
const DefaultFileName = "docindex.yaml"

// MemoryDB selects an in-memory jobs database
const MemoryDB = ":memory:"

// Config is the complete application configuration
type Config struct {
	WorkingDir string `yaml:"working_dir"`
	OutputDir  string `yaml:"output_dir"`
	StagingDir string `yaml:"staging_dir"`

	Indexing IndexingConfig `yaml:"indexing"`
	Engine   EngineConfig   `yaml:"engine"`
	Server   ServerConfig   `yaml:"server"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Log      logging.Config `yaml:"log"`
}

// IndexingConfig controls the orchestrator
type IndexingConfig struct {
	MaxWorkers     int      `yaml:"max_workers"`
	Extensions     []string `yaml:"extensions"`
	MaxErrorLength int      `yaml:"max_error_length"`
}

// EngineConfig selects and configures the indexing engine
type EngineConfig struct {
	Kind              string        `yaml:"kind"`
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries"`
	Command           []string      `yaml:"command"`
	FolderCommand     []string      `yaml:"folder_command"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// JobsConfig configures job tracking
type JobsConfig struct {
	DBPath    string        `yaml:"db_path"`
	Persist   bool          `yaml:"persist"`
	CacheSize int           `yaml:"cache_size"`
	TTL       time.Duration `yaml:"ttl"`
	// Retention is how long persisted jobs are kept. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

// NewConfig returns a Config populated with defaults
func NewConfig() *Config {
	return &Config{
		WorkingDir: filepath.Join(os.TempDir(), "rag_storage"),
		Indexing: IndexingConfig{
			MaxWorkers:     indexer.DefaultMaxWorkers,
			MaxErrorLength: indexer.DefaultMaxErrorLen,
		},
		Engine: EngineConfig{
			Kind:       engine.KindHTTP,
			URL:        "http://localhost:9621",
			Timeout:    60 * time.Second,
			MaxRetries: engine.MaxRetries,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			MaxUploadMB: 64,
		},
		Jobs: JobsConfig{
			Persist:   true,
			CacheSize: jobs.DefaultCacheSize,
			TTL:       jobs.DefaultTTL,
			Retention: 7 * 24 * time.Hour,
		},
		Log: logging.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment. An empty path loads DefaultFileName when it exists.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat(DefaultFileName); err == nil {
			path = DefaultFileName
		}
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML decodes path over the current values. Keys missing from the file
// keep their defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("WORKING_DIR"); v != "" {
		c.WorkingDir = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("STAGING_DIR"); v != "" {
		c.StagingDir = v
	}
	if v := os.Getenv("MAX_WORKERS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MAX_WORKERS: %w", err)
		}
		c.Indexing.MaxWorkers = n
	}
	if v := os.Getenv("ENGINE_KIND"); v != "" {
		c.Engine.Kind = strings.ToLower(v)
	}
	if v := os.Getenv("LIGHTRAG_API_URL"); v != "" {
		c.Engine.URL = v
	}
	if v := os.Getenv("LIGHTRAG_API_KEY"); v != "" {
		c.Engine.APIKey = v
	}
	if v := os.Getenv("LIGHTRAG_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("LIGHTRAG_TIMEOUT: %w", err)
		}
		c.Engine.Timeout = d
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = n
	}
	if v := os.Getenv("JOBS_DB_PATH"); v != "" {
		c.Jobs.DBPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// parseTimeout accepts plain seconds ("30", "2.5") or a Go duration ("90s")
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Validate checks the configuration for values the application cannot run with
func (c *Config) Validate() error {
	if c.WorkingDir == "" {
		return errors.New("working_dir is required")
	}
	if c.Indexing.MaxWorkers < 1 {
		return fmt.Errorf("indexing.max_workers must be at least 1, got %d", c.Indexing.MaxWorkers)
	}
	if c.Indexing.MaxErrorLength < 0 {
		return fmt.Errorf("indexing.max_error_length must be non-negative, got %d", c.Indexing.MaxErrorLength)
	}

	switch c.Engine.Kind {
	case engine.KindHTTP:
		if c.Engine.URL == "" {
			return errors.New("engine.url is required for the http engine")
		}
	case engine.KindCommand:
		if len(c.Engine.Command) == 0 {
			return errors.New("engine.command is required for the command engine")
		}
	default:
		return fmt.Errorf("engine.kind must be 'http' or 'command', got %q", c.Engine.Kind)
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine.timeout must be non-negative, got %s", c.Engine.Timeout)
	}
	if c.Engine.RequestsPerSecond < 0 {
		return fmt.Errorf("engine.requests_per_second must be non-negative, got %g", c.Engine.RequestsPerSecond)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be at least 1, got %d", c.Server.MaxUploadMB)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}

	return nil
}

// ResolvedOutputDir returns output_dir, defaulting to <working_dir>/output
func (c *Config) ResolvedOutputDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.WorkingDir, "output")
}

// ResolvedDBPath returns jobs.db_path, defaulting to <working_dir>/jobs.db
func (c *Config) ResolvedDBPath() string {
	if c.Jobs.DBPath != "" {
		return c.Jobs.DBPath
	}
	return filepath.Join(c.WorkingDir, "jobs.db")
}

// LockPath is the file serve locks to keep one server per working directory
func (c *Config) LockPath() string {
	return filepath.Join(c.WorkingDir, ".docindex.lock")
}

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MaxUploadBytes is the largest accepted upload request body
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// EngineOptions converts the engine section for engine.New
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Kind:              c.Engine.Kind,
		URL:               c.Engine.URL,
		APIKey:            c.Engine.APIKey,
		Timeout:           c.Engine.Timeout,
		RequestsPerSecond: c.Engine.RequestsPerSecond,
		MaxRetries:        c.Engine.MaxRetries,
		Command:           c.Engine.Command,
		FolderCommand:     c.Engine.FolderCommand,
	}
}

// IndexerConfig converts the indexing section for indexer.New
func (c *Config) IndexerConfig() indexer.Config {
	return indexer.Config{
		MaxWorkers:  c.Indexing.MaxWorkers,
		OutputDir:   c.ResolvedOutputDir(),
		Extensions:  c.Indexing.Extensions,
		MaxErrorLen: c.Indexing.MaxErrorLength,
	}
}

// JobsRegistryConfig converts the jobs section for jobs.NewRegistry
func (c *Config) JobsRegistryConfig() jobs.Config {
	return jobs.Config{
		CacheSize: c.Jobs.CacheSize,
		TTL:       c.Jobs.TTL,
	}
}

// WriteYAML writes the configuration to a YAML file
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
