package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/obby/libretto/internal/bridge"
	"github.com/obby/libretto/internal/logutil"
	"github.com/obby/libretto/internal/patterns"
	"github.com/obby/libretto/internal/watcher"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultStoragePath       = "/mnt/libretto"
	DefaultSubscribeAddr     = "127.0.0.1:5556"
	DefaultPublishAddr       = "127.0.0.1:5555"
	DefaultLogLevel          = "info"
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultPublishTimeout    = 10 * time.Second
	DefaultQueueCapacity     = 1024
	DefaultQueuePolicy       = "block"
	DefaultMetricsAddr       = ":9464"
	DefaultDFSAddr           = ":50051"
	DefaultDFSDBPath         = "libretto.db"
)

// Config holds the configuration shared by every libretto command.
type Config struct {
	StoragePath       string        `yaml:"storage_path"`
	SubscribeAddr     string        `yaml:"subscribe_addr"`
	PublishAddr       string        `yaml:"publish_addr"`
	LogLevel          string        `yaml:"log_level"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	PublishTimeout    time.Duration `yaml:"publish_timeout"`
	Queue             QueueConfig   `yaml:"queue"`
	Watch             WatchConfig   `yaml:"watch"`
	Metrics           MetricsConfig `yaml:"metrics"`
	DFS               DFSConfig     `yaml:"dfs"`
}

// QueueConfig sizes the queue between the notification source and the
// publisher. Capacity 0 means unbounded.
type QueueConfig struct {
	Capacity *int   `yaml:"capacity"`
	Policy   string `yaml:"policy"`
}

// WatchConfig selects the notification backend and what it ignores.
type WatchConfig struct {
	Backend        string   `yaml:"backend"`
	InstanceDirs   []string `yaml:"instance_dirs"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Addr     string `yaml:"addr"`
	Disabled bool   `yaml:"disabled"`
}

// DFSConfig configures the storage endpoint and its client.
type DFSConfig struct {
	Addr   string `yaml:"addr"`
	DBPath string `yaml:"db_path"`
	// Node names this process in heartbeats; defaults to the hostname.
	Node string `yaml:"node"`
	// Heartbeat forwards watcher liveness ticks to the storage service.
	Heartbeat bool `yaml:"heartbeat"`
}

// LoadConfig loads configuration from an optional .env file and environment
// variables with defaults.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoragePath:       os.Getenv("STORAGE_PATH"),
		SubscribeAddr:     os.Getenv("LIBRETTO_SUBSCRIBE_ADDR"),
		PublishAddr:       os.Getenv("LIBRETTO_PUBLISH_ADDR"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		Queue: QueueConfig{
			Policy: os.Getenv("QUEUE_POLICY"),
		},
		Watch: WatchConfig{
			Backend:        os.Getenv("WATCH_BACKEND"),
			InstanceDirs:   envList("INSTANCE_DIRS"),
			IgnorePatterns: envList("IGNORE_PATTERNS"),
		},
		Metrics: MetricsConfig{
			Addr: os.Getenv("METRICS_ADDR"),
		},
		DFS: DFSConfig{
			Addr:   os.Getenv("DFS_ADDR"),
			DBPath: os.Getenv("DFS_DB_PATH"),
			Node:   os.Getenv("DFS_NODE"),
		},
	}
	if err := errors.Join(
		envDuration("HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval),
		envDuration("PUBLISH_TIMEOUT", &cfg.PublishTimeout),
		envInt("QUEUE_CAPACITY", &cfg.Queue.Capacity),
		envBool("DFS_HEARTBEAT", &cfg.DFS.Heartbeat),
	); err != nil {
		return nil, fmt.Errorf("config.LoadConfig: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.LoadConfig: %w", err)
	}
	return cfg, nil
}

// Load reads and parses a YAML configuration file. String values may refer to
// the environment with ${VAR}.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StoragePath == "" {
		c.StoragePath = DefaultStoragePath
	}
	if c.SubscribeAddr == "" {
		c.SubscribeAddr = DefaultSubscribeAddr
	}
	if c.PublishAddr == "" {
		c.PublishAddr = DefaultPublishAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	if c.Queue.Capacity == nil {
		n := DefaultQueueCapacity
		c.Queue.Capacity = &n
	}
	if c.Queue.Policy == "" {
		c.Queue.Policy = DefaultQueuePolicy
	}
	if c.Watch.Backend == "" {
		c.Watch.Backend = watcher.BackendFsnotify
	}
	if len(c.Watch.InstanceDirs) == 0 {
		c.Watch.InstanceDirs = append([]string(nil), patterns.DefaultInstanceDirs...)
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.DFS.Addr == "" {
		c.DFS.Addr = DefaultDFSAddr
	}
	if c.DFS.DBPath == "" {
		c.DFS.DBPath = DefaultDFSDBPath
	}
	if c.DFS.Node == "" {
		c.DFS.Node, _ = os.Hostname()
	}
}

// Validate checks the configuration for logical errors.
func (c *Config) Validate() error {
	if _, err := logutil.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("config: heartbeat_interval must be positive, got %s", c.HeartbeatInterval)
	}
	if c.PublishTimeout < 0 {
		return fmt.Errorf("config: publish_timeout must be positive, got %s", c.PublishTimeout)
	}
	if c.Queue.Capacity != nil && *c.Queue.Capacity < 0 {
		return fmt.Errorf("config: queue.capacity must not be negative, got %d", *c.Queue.Capacity)
	}
	if _, err := bridge.ParsePolicy(c.Queue.Policy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Watch.Backend {
	case watcher.BackendFsnotify, watcher.BackendNotify:
	default:
		return fmt.Errorf("config: unknown watch.backend %q", c.Watch.Backend)
	}
	for _, dir := range c.Watch.InstanceDirs {
		if dir == "" || strings.Contains(dir, "/") {
			return fmt.Errorf("config: invalid instance dir %q", dir)
		}
	}
	return nil
}

// QueuePolicy returns the parsed overflow policy.
func (c *Config) QueuePolicy() bridge.Policy {
	p, _ := bridge.ParsePolicy(c.Queue.Policy)
	return p
}

// QueueCapacity returns the queue capacity, 0 meaning unbounded.
func (c *Config) QueueCapacity() int {
	if c.Queue.Capacity == nil {
		return DefaultQueueCapacity
	}
	return *c.Queue.Capacity
}

// Layout returns the instance layout under the storage root.
func (c *Config) Layout() patterns.Layout {
	return patterns.NewLayout(c.StoragePath, c.Watch.InstanceDirs)
}

// The env* helpers leave dst untouched when key is unset or empty.

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func envInt(key string, dst **int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = &n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
