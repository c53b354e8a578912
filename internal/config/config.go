package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sloppy/lynistracker/internal/report"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LYNIS_TRACKER_"

const (
	DefaultDBPath         = "lynis-tracker.db"
	DefaultListenAddr     = "127.0.0.1:8080"
	DefaultMaxReportBytes = 10 << 20
	DefaultQueryCacheSize = 512
)

// Config holds the server configuration.
type Config struct {
	DBPath          string   `yaml:"db_path"`
	ListenAddr      string   `yaml:"listen_addr"`
	MaxReportBytes  int64    `yaml:"max_report_bytes"`
	Timezone        string   `yaml:"timezone"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
	NATSURL         string   `yaml:"nats_url"`
	NATSSubject     string   `yaml:"nats_subject"`
	QueryCacheSize  int      `yaml:"query_cache_size"`
	DeprecatedTests []string `yaml:"deprecated_tests"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:          DefaultDBPath,
		ListenAddr:      DefaultListenAddr,
		MaxReportBytes:  DefaultMaxReportBytes,
		Timezone:        "Local",
		LogLevel:        "info",
		LogFormat:       "text",
		QueryCacheSize:  DefaultQueryCacheSize,
		DeprecatedTests: append([]string(nil), report.DefaultDeprecatedTests...),
	}
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist) over the defaults, then applies environment overrides
// looked up through getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	str("DB_PATH", &c.DBPath)
	str("LISTEN_ADDR", &c.ListenAddr)
	str("TIMEZONE", &c.Timezone)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("NATS_URL", &c.NATSURL)
	str("NATS_SUBJECT", &c.NATSSubject)

	if v := getenv(EnvPrefix + "MAX_REPORT_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %sMAX_REPORT_BYTES: %w", EnvPrefix, err)
		}
		c.MaxReportBytes = n
	}
	if v := getenv(EnvPrefix + "QUERY_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sQUERY_CACHE_SIZE: %w", EnvPrefix, err)
		}
		c.QueryCacheSize = n
	}
	if v, ok := lookup(getenv, "DEPRECATED_TESTS"); ok {
		c.DeprecatedTests = splitList(v)
	}
	return nil
}

// lookup distinguishes "unset" from "set to a single dash", which clears a list.
func lookup(getenv func(string) string, name string) (string, bool) {
	v := getenv(EnvPrefix + name)
	if v == "" {
		return "", false
	}
	if v == "-" {
		return "", true
	}
	return v, true
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path cannot be empty")
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr cannot be empty")
	}
	if c.MaxReportBytes <= 0 {
		return errors.New("max_report_bytes must be positive")
	}
	if c.QueryCacheSize <= 0 {
		return errors.New("query_cache_size must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Location resolves Timezone. "Local" and "" mean the process zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Parser returns a report parser configured from c.
func (c Config) Parser() (*report.Parser, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return &report.Parser{DeprecatedTests: c.DeprecatedTests, Location: loc}, nil
}
