package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the procurement bridge.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Service    ServiceConfig    `yaml:"service"`
	Transport  TransportConfig  `yaml:"transport"`
	Cache      CacheConfig      `yaml:"cache"`
	Automation AutomationConfig `yaml:"automation"`
}

// ServerConfig controls the gRPC admin listener and background warm-up.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	WarmInterval    time.Duration `yaml:"warmInterval"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ServiceConfig describes the remote procurement service and the client tunables.
// It is read-only once the client is constructed.
type ServiceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"baseURL"`
	AppURL       string `yaml:"appURL"`
	Token        string `yaml:"token"`
	AuthMode     string `yaml:"authMode"`
	AuthFallback bool   `yaml:"authFallback"`
	LabID        string `yaml:"labID"`
	GroupID      string `yaml:"groupID"`

	OrdersPerPage       int `yaml:"ordersPerPage"`
	InventoryPerPage    int `yaml:"inventoryPerPage"`
	MaxWorkers          int `yaml:"maxWorkers"`
	InventoryMaxWorkers int `yaml:"inventoryMaxWorkers"`
	NoGrowthThreshold   int `yaml:"noGrowthThreshold"`
	MaxPages            int `yaml:"maxPages"`
	LookupMaxPages      int `yaml:"lookupMaxPages"`

	EnablePartialStatus bool   `yaml:"enablePartialStatus"`
	PartialAdjustMode   string `yaml:"partialAdjustMode"`
	AllowAPICreate      bool   `yaml:"allowAPICreate"`
}

// TransportConfig tunes the shared HTTP client.
type TransportConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"maxRetries"`
	Backoff           time.Duration `yaml:"backoff"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

// CacheConfig controls the TTL cache and its backing store.
type CacheConfig struct {
	Backend   string                   `yaml:"backend"`
	TTL       time.Duration            `yaml:"ttl"`
	TTLs      map[string]time.Duration `yaml:"ttls"`
	RedisURL  string                   `yaml:"redisURL"`
	KeyPrefix string                   `yaml:"keyPrefix"`
}

// AutomationConfig points at the external UI-automation runner.
type AutomationConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queueSize"`
	PollInterval time.Duration `yaml:"pollInterval"`
	JobTimeout   time.Duration `yaml:"jobTimeout"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PROCUREMENT_BRIDGE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.Service.BaseURL = NormalizeBaseURL(cfg.Service.BaseURL)
	return &cfg, nil
}

// NormalizeBaseURL strips a trailing slash and a trailing /v2 segment.
func NormalizeBaseURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if strings.HasSuffix(strings.ToLower(u), "/v2") {
		u = u[:len(u)-3]
	}
	return u
}

// EffectiveInventoryPerPage falls back to the orders page size.
func (s ServiceConfig) EffectiveInventoryPerPage() int {
	if s.InventoryPerPage > 0 {
		return s.InventoryPerPage
	}
	return s.OrdersPerPage
}

// EffectiveInventoryWorkers falls back to the shared worker count.
func (s ServiceConfig) EffectiveInventoryWorkers() int {
	if s.InventoryMaxWorkers > 0 {
		return s.InventoryMaxWorkers
	}
	return s.MaxWorkers
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			WarmInterval:    0,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Service: ServiceConfig{
			Enabled:           true,
			AuthMode:          "auto",
			AuthFallback:      true,
			OrdersPerPage:     100,
			MaxWorkers:        8,
			NoGrowthThreshold: 3,
			MaxPages:          200,
			LookupMaxPages:    8,
			PartialAdjustMode: "ui",
		},
		Transport: TransportConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			Backoff:    400 * time.Millisecond,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			TTL:       120 * time.Second,
			KeyPrefix: "procurement-bridge:",
		},
		Automation: AutomationConfig{
			Workers:      2,
			QueueSize:    32,
			PollInterval: 2 * time.Second,
			JobTimeout:   5 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROCUREMENT_BRIDGE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_WARM_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WarmInterval = d
		}
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_ENABLED"); v != "" {
		cfg.Service.Enabled = parseBool(v)
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_BASE_URL"); v != "" {
		cfg.Service.BaseURL = v
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_APP_URL"); v != "" {
		cfg.Service.AppURL = v
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_TOKEN"); v != "" {
		cfg.Service.Token = v
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_AUTH_MODE"); v != "" {
		cfg.Service.AuthMode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_AUTH_FALLBACK"); v != "" {
		cfg.Service.AuthFallback = parseBool(v)
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_LAB_ID"); v != "" {
		cfg.Service.LabID = v
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_GROUP_ID"); v != "" {
		cfg.Service.GroupID = v
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_ORDERS_PER_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Service.OrdersPerPage = n
		}
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_INVENTORY_PER_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Service.InventoryPerPage = n
		}
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Service.MaxWorkers = n
		}
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_INVENTORY_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Service.InventoryMaxWorkers = n
		}
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_NO_GROWTH_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Service.NoGrowthThreshold = n
		}
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_ENABLE_PARTIAL_STATUS"); v != "" {
		cfg.Service.EnablePartialStatus = parseBool(v)
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_PARTIAL_ADJUST_MODE"); v != "" {
		cfg.Service.PartialAdjustMode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_ALLOW_API_CREATE"); v != "" {
		cfg.Service.AllowAPICreate = parseBool(v)
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transport.Timeout = d
		}
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_HTTP_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Transport.MaxRetries = n
		}
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_HTTP_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Transport.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("PROCUREMENT_BRIDGE_AUTOMATION_ENDPOINT"); v != "" {
		cfg.Automation.Endpoint = v
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
