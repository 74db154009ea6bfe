package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the frontend process.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Store   StoreConfig   `yaml:"store"`
	Chat    ChatConfig    `yaml:"chat"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig is where the web views listen.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// BackendConfig points at the remote agent backend.
type BackendConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the medium that persists the token.
type StoreConfig struct {
	Driver        string        `yaml:"driver"`
	Path          string        `yaml:"path"`
	Key           string        `yaml:"key"`
	Timeout       time.Duration `yaml:"timeout"`
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	RedisPrefix   string        `yaml:"redisPrefix"`
}

// ChatConfig tunes chat behavior.
type ChatConfig struct {
	Verbose    bool `yaml:"verbose"`
	AllowGuest bool `yaml:"allowGuest"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: "127.0.0.1:3000"},
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 60 * time.Second,
		},
		Store: StoreConfig{
			Driver:      DriverSQLite,
			Path:        "agentdesk.db",
			Key:         "access_token",
			Timeout:     2 * time.Second,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "agentdesk:",
		},
		Chat: ChatConfig{Verbose: true},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads the optional YAML file named by AGENTDESK_CONFIG, then applies
// environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("AGENTDESK_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API_BASE_URL value: %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("invalid API_TIMEOUT value: %s", c.Backend.Timeout)
	}
	if c.Store.Timeout < 0 {
		return fmt.Errorf("invalid STORE_TIMEOUT value: %s", c.Store.Timeout)
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("STORE_PATH is required for the sqlite driver")
		}
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER value: %q", c.Store.Driver)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	addr, err := loadServerAddr(cfg.Server.Addr)
	if err != nil {
		return err
	}
	cfg.Server.Addr = addr

	cfg.Backend.BaseURL = strings.TrimRight(getEnvOrDefault("API_BASE_URL", cfg.Backend.BaseURL), "/")

	timeout, err := parseOptionalIntEnv("API_TIMEOUT")
	if err != nil {
		return err
	}
	if timeout != nil {
		cfg.Backend.Timeout = time.Duration(*timeout) * time.Second
	}

	cfg.Store.Driver = strings.ToLower(getEnvOrDefault("STORE_DRIVER", cfg.Store.Driver))
	cfg.Store.Path = getEnvOrDefault("STORE_PATH", cfg.Store.Path)
	cfg.Store.Key = getEnvOrDefault("STORE_KEY", cfg.Store.Key)

	storeTimeout, err := parseOptionalIntEnv("STORE_TIMEOUT")
	if err != nil {
		return err
	}
	if storeTimeout != nil {
		cfg.Store.Timeout = time.Duration(*storeTimeout) * time.Second
	}

	cfg.Store.RedisAddr = getEnvOrDefault("REDIS_ADDR", cfg.Store.RedisAddr)
	cfg.Store.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", cfg.Store.RedisPassword)
	cfg.Store.RedisPrefix = getEnvOrDefault("REDIS_PREFIX", cfg.Store.RedisPrefix)

	redisDB, err := parseOptionalIntEnv("REDIS_DB")
	if err != nil {
		return err
	}
	if redisDB != nil {
		cfg.Store.RedisDB = *redisDB
	}

	if cfg.Chat.Verbose, err = parseBoolEnv("CHAT_VERBOSE", cfg.Chat.Verbose); err != nil {
		return err
	}
	if cfg.Chat.AllowGuest, err = parseBoolEnv("CHAT_ALLOW_GUEST", cfg.Chat.AllowGuest); err != nil {
		return err
	}

	cfg.Log.Level = strings.ToLower(getEnvOrDefault("LOG_LEVEL", cfg.Log.Level))
	if cfg.Log.JSON, err = parseBoolEnv("LOG_JSON", cfg.Log.JSON); err != nil {
		return err
	}
	return nil
}

// loadServerAddr resolves the listen address from PORT.
func loadServerAddr(fallback string) (string, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return fallback, nil
	}

	if strings.Contains(port, ":") {
		// A full address such as ":3000" or "127.0.0.1:3000" is used as is.
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	// A bare port stays on loopback; pass a full address to listen elsewhere.
	return "127.0.0.1:" + port, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
