package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration. Environment variables win over the
// optional YAML overlay, which wins over defaults.
type Config struct {
	ServerPort string

	// Public-data portal (data.go.kr) settings. An empty ServiceKey is not a
	// startup error: weather requests answer 400 until one is configured.
	ServiceKey string
	NX         string
	NY         string
	Station    string

	// Home-automation upstream.
	HomeURL   string
	HomeToken string

	StaticDir string

	CacheTTL        time.Duration
	UpstreamTimeout time.Duration
	RequestTimeout  time.Duration

	CacheBackend string // "file" or "memcached"
	CacheFile    string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	BreakerEnabled bool

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Weather struct {
		NX      string `yaml:"nx"`
		NY      string `yaml:"ny"`
		Station string `yaml:"station"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather"`

	Home struct {
		URL string `yaml:"url"`
	} `yaml:"home"`

	Static struct {
		Dir string `yaml:"dir"`
	} `yaml:"static"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		File      string `yaml:"file"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		BreakerEnabled *bool  `yaml:"breaker_enabled"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

// Load reads configuration. Order: defaults, then config/{ENV_NAME}.yaml if
// present, then environment variables (a .env file is loaded first when one
// exists). Secrets (PUBLIC_DATA_SERVICE_KEY, HA_TOKEN) come from env only.
func Load() (*Config, error) {
	// Best-effort: a missing .env just means env vars come from the process.
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:                    "9001",
		NX:                            "60",
		NY:                            "127",
		Station:                       "종로구",
		HomeURL:                       "http://192.168.10.104:8123",
		StaticDir:                     ".",
		CacheTTL:                      60 * time.Minute,
		UpstreamTimeout:               5 * time.Second,
		RequestTimeout:                30 * time.Second,
		CacheBackend:                  "file",
		CacheFile:                     "weather_cache.json",
		MemcachedAddrs:                "localhost:11211",
		MemcachedTimeout:              500 * time.Millisecond,
		MemcachedMaxIdleConns:         2,
		ShutdownTimeout:               30 * time.Second,
		ShutdownInFlightTimeout:       10 * time.Second,
		ShutdownInFlightCheckInterval: 100 * time.Millisecond,
	}

	if err := applyFile(cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config) error {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("config: get working directory: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(cwd, "config", env+".yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // overlay is optional
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&cfg.ServerPort, fc.Server.Port)
	setString(&cfg.NX, fc.Weather.NX)
	setString(&cfg.NY, fc.Weather.NY)
	setString(&cfg.Station, fc.Weather.Station)
	setDuration(&cfg.UpstreamTimeout, fc.Weather.Timeout)
	setString(&cfg.HomeURL, fc.Home.URL)
	setString(&cfg.StaticDir, fc.Static.Dir)
	setString(&cfg.CacheBackend, strings.ToLower(fc.Cache.Backend))
	setDuration(&cfg.CacheTTL, fc.Cache.TTL)
	setString(&cfg.CacheFile, fc.Cache.File)
	setString(&cfg.MemcachedAddrs, fc.Cache.Memcached.Addrs)
	setDuration(&cfg.MemcachedTimeout, fc.Cache.Memcached.Timeout)
	if fc.Cache.Memcached.MaxIdleConns > 0 {
		cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	}
	if fc.Reliability.BreakerEnabled != nil {
		cfg.BreakerEnabled = *fc.Reliability.BreakerEnabled
	}
	setDuration(&cfg.RequestTimeout, fc.Reliability.RequestTimeout)
	setDuration(&cfg.ShutdownTimeout, fc.Shutdown.Timeout)
	setDuration(&cfg.ShutdownInFlightTimeout, fc.Shutdown.InFlightTimeout)
	setDuration(&cfg.ShutdownInFlightCheckInterval, fc.Shutdown.InFlightCheckInterval)
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.ServerPort, os.Getenv("PORT"))
	setString(&cfg.ServiceKey, os.Getenv("PUBLIC_DATA_SERVICE_KEY"))
	setString(&cfg.NX, os.Getenv("NX"))
	setString(&cfg.NY, os.Getenv("NY"))
	setString(&cfg.Station, os.Getenv("STATION_NAME"))
	setString(&cfg.HomeURL, os.Getenv("HA_URL"))
	setString(&cfg.HomeToken, os.Getenv("HA_TOKEN"))
	setString(&cfg.StaticDir, os.Getenv("STATIC_DIR"))
	setString(&cfg.CacheFile, os.Getenv("CACHE_FILE"))
	setDuration(&cfg.CacheTTL, os.Getenv("CACHE_TTL"))
	setDuration(&cfg.UpstreamTimeout, os.Getenv("UPSTREAM_TIMEOUT"))
	setString(&cfg.CacheBackend, strings.ToLower(strings.TrimSpace(os.Getenv("CACHE_BACKEND"))))
	setString(&cfg.MemcachedAddrs, os.Getenv("MEMCACHED_ADDRS"))
	if v, err := strconv.ParseBool(os.Getenv("BREAKER_ENABLED")); err == nil {
		cfg.BreakerEnabled = v
	}
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setDuration(dst *time.Duration, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}

// validate performs post-load validation. The request timeout must leave room
// for a full upstream cycle, and the cache backend must be a known value.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "file", "memcached":
		// valid
	default:
		return fmt.Errorf("cache backend must be file or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	return nil
}
