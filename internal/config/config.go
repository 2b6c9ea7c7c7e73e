// Package config loads the chunked graph service's configuration from
// environment variables: os.Getenv/strconv/time.ParseDuration for
// env-driven settings, with an optional YAML file layer where env
// always wins over file values.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every environment-tunable setting this service reads.
type Config struct {
	// DataDir is the Badger data directory. Empty means in-memory.
	DataDir string `yaml:"data_dir"`
	// InMemory forces an in-memory store regardless of DataDir.
	InMemory bool `yaml:"in_memory"`

	// LockTTL bounds how long a root lease may be held before it expires.
	LockTTL time.Duration `yaml:"lock_ttl"`
	// RetryMaxAttempts is the Edit Engine's Conflict retry budget.
	RetryMaxAttempts int `yaml:"retry_max_attempts"`
	// RetryBaseBackoff is the first retry delay; each subsequent attempt
	// multiplies it by 4 (50ms, 200ms, 800ms with the default attempts/backoff).
	RetryBaseBackoff time.Duration `yaml:"retry_base_backoff"`

	// EditsExchange is the remesh notification exchange name.
	EditsExchange string `yaml:"edits_exchange"`

	// UndoRedoDenyList is the set of table IDs for which Undo/Redo/
	// RollbackUser are refused.
	UndoRedoDenyList []string `yaml:"deny_list"`

	// SegmentationURLPrefix is parsed but unused: this module never
	// renders URLs, it only keeps the setting recognizable to operators
	// migrating configuration from the original service.
	SegmentationURLPrefix string `yaml:"segmentation_url_prefix"`
}

// LoadFromEnv loads configuration from environment variables. All values
// have defaults, so LoadFromEnv() is safe to call with no environment set.
func LoadFromEnv() *Config {
	return &Config{
		DataDir:  getEnv("CHUNKEDGRAPH_DATA_DIR", "./data"),
		InMemory: getEnvBool("CHUNKEDGRAPH_IN_MEMORY", false),

		LockTTL:          getEnvDuration("CHUNKEDGRAPH_LOCK_TTL", 30*time.Second),
		RetryMaxAttempts: getEnvInt("CHUNKEDGRAPH_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseBackoff: getEnvDuration("CHUNKEDGRAPH_RETRY_BASE_BACKOFF", 50*time.Millisecond),

		EditsExchange: getEnv("PYCHUNKEDGRAPH_EDITS_EXCHANGE", "pychunkedgraph"),

		UndoRedoDenyList: getEnvStringSlice("CHUNKEDGRAPH_DENY_LIST", []string{"fly_v26", "fly_v31"}),

		SegmentationURLPrefix: getEnv("SEGMENTATION_URL_PREFIX", ""),
	}
}

// LoadFromFile loads configuration from a YAML file, starting from
// LoadFromEnv's defaults so unspecified fields stay sensible.
func LoadFromFile(path string) (*Config, error) {
	cfg := LoadFromEnv()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnvOrFile loads the YAML file at path (if non-empty and
// readable) and then re-applies environment variables on top, so env
// always wins over the file.
func LoadFromEnvOrFile(path string) *Config {
	if path == "" {
		return LoadFromEnv()
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		return LoadFromEnv()
	}
	overlayEnv(cfg)
	return cfg
}

func overlayEnv(cfg *Config) {
	if val := os.Getenv("CHUNKEDGRAPH_DATA_DIR"); val != "" {
		cfg.DataDir = val
	}
	if val := os.Getenv("CHUNKEDGRAPH_IN_MEMORY"); val != "" {
		cfg.InMemory = getEnvBool("CHUNKEDGRAPH_IN_MEMORY", cfg.InMemory)
	}
	if val := os.Getenv("CHUNKEDGRAPH_LOCK_TTL"); val != "" {
		cfg.LockTTL = getEnvDuration("CHUNKEDGRAPH_LOCK_TTL", cfg.LockTTL)
	}
	if val := os.Getenv("CHUNKEDGRAPH_RETRY_MAX_ATTEMPTS"); val != "" {
		cfg.RetryMaxAttempts = getEnvInt("CHUNKEDGRAPH_RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	}
	if val := os.Getenv("CHUNKEDGRAPH_RETRY_BASE_BACKOFF"); val != "" {
		cfg.RetryBaseBackoff = getEnvDuration("CHUNKEDGRAPH_RETRY_BASE_BACKOFF", cfg.RetryBaseBackoff)
	}
	if val := os.Getenv("PYCHUNKEDGRAPH_EDITS_EXCHANGE"); val != "" {
		cfg.EditsExchange = val
	}
	if val := os.Getenv("CHUNKEDGRAPH_DENY_LIST"); val != "" {
		cfg.UndoRedoDenyList = getEnvStringSlice("CHUNKEDGRAPH_DENY_LIST", cfg.UndoRedoDenyList)
	}
	if val := os.Getenv("SEGMENTATION_URL_PREFIX"); val != "" {
		cfg.SegmentationURLPrefix = val
	}
}

// Denies reports whether table is on the undo/redo/rollback deny list.
func (c *Config) Denies(table string) bool {
	for _, t := range c.UndoRedoDenyList {
		if t == table {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}
