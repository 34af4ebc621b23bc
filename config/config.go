// Package config loads daemon configuration from an optional YAML file,
// a .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/routing"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TickerRoute is the routing entry for one exact ticker.
type TickerRoute struct {
	Provider    string            `yaml:"provider"`
	SourceClass string            `yaml:"source_class"`
	URL         string            `yaml:"url"`
	DataType    string            `yaml:"data_type"`
	Extra       map[string]string `yaml:"extra"`
}

// Rule routes tickers by prefix or regular expression.
type Rule struct {
	Name        string `yaml:"name"`
	Prefix      string `yaml:"prefix"`
	Regex       string `yaml:"regex"`
	Provider    string `yaml:"provider"`
	SourceClass string `yaml:"source_class"`
}

// Derived defines a synthetic ticker computed from a base ticker.
type Derived struct {
	Ticker  string  `yaml:"ticker"`
	Base    string  `yaml:"base"`
	Divisor float64 `yaml:"divisor"`
}

type Providers struct {
	FinnhubAPIKey      string `yaml:"finnhub_api_key"`
	AlphaVantageAPIKey string `yaml:"alpha_vantage_api_key"`
	TimeoutMs          int    `yaml:"timeout_ms"`
}

type Thresholds struct {
	FastSeconds      int     `yaml:"fast_seconds"`
	SlowSeconds      int     `yaml:"slow_seconds"`
	HardExpiryFactor float64 `yaml:"hard_expiry_factor"`
}

type Worker struct {
	IntervalMs        int   `yaml:"interval_ms"`
	SpacingMs         int   `yaml:"spacing_ms"`
	MarketHoursGating *bool `yaml:"market_hours_gating"`
}

type Backoff struct {
	InitialSeconds int `yaml:"initial_seconds"`
	MaxSeconds     int `yaml:"max_seconds"`
}

type Sweep struct {
	Enabled   bool     `yaml:"enabled"`
	Schedule  string   `yaml:"schedule"`
	Watchlist []string `yaml:"watchlist"`
}

type Redis struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SQLite struct {
	Path string `yaml:"path"`
}

// L1 sizes the in-process cache. LocalTTLSeconds bounds how long a
// document read from a shared backend is served from memory.
type L1 struct {
	MaxCost         int64 `yaml:"max_cost"`
	LocalTTLSeconds int   `yaml:"local_ttl_seconds"`
}

type Server struct {
	GRPCAddr   string  `yaml:"grpc_addr"`
	HTTPAddr   string  `yaml:"http_addr"`
	CronSecret string  `yaml:"cron_secret"`
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
}

type Tracing struct {
	Stdout bool `yaml:"stdout"`
}

// Config is the root configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	Providers  Providers              `yaml:"providers"`
	Tickers    map[string]TickerRoute `yaml:"tickers"`
	Rules      []Rule                 `yaml:"rules"`
	Derived    []Derived              `yaml:"derived"`
	Thresholds Thresholds             `yaml:"thresholds"`
	Worker     Worker                 `yaml:"worker"`
	Backoff    Backoff                `yaml:"backoff"`
	Sweep      Sweep                  `yaml:"sweep"`
	Redis      Redis                  `yaml:"redis"`
	SQLite     SQLite                 `yaml:"sqlite"`
	L1         L1                     `yaml:"l1"`
	Server     Server                 `yaml:"server"`
	Tracing    Tracing                `yaml:"tracing"`
}

// Load reads configuration. path may be empty, in which case only the
// environment and defaults apply. A .env file in the working directory is
// loaded if present; variables already set in the process win.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Providers.FinnhubAPIKey, "FINNHUB_API_KEY")
	setString(&c.Providers.AlphaVantageAPIKey, "ALPHA_VANTAGE_API_KEY")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Redis.Host, "REDIS_HOST")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.SQLite.Path, "SQLITE_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Server.GRPCAddr, "GRPC_ADDR")
	setString(&c.Server.HTTPAddr, "HTTP_ADDR")
	setString(&c.Server.CronSecret, "CRON_SECRET")

	var errs []error
	errs = append(errs,
		setInt(&c.Redis.Port, "REDIS_PORT"),
		setInt(&c.Worker.IntervalMs, "REFRESH_WORKER_INTERVAL_MS"),
		setInt(&c.Backoff.InitialSeconds, "BACKOFF_INITIAL_SECONDS"),
		setInt(&c.Backoff.MaxSeconds, "BACKOFF_MAX_SECONDS"),
		setInt(&c.Thresholds.FastSeconds, "CACHE_STALE_THRESHOLD_SECONDS"),
		setBool(&c.Tracing.Stdout, "TRACE_STDOUT"),
		setBool(&c.LogPretty, "LOG_PRETTY"),
	)
	if v, ok := os.LookupEnv("MARKET_HOURS_GATING"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: MARKET_HOURS_GATING: %w", err))
		} else {
			c.Worker.MarketHoursGating = &b
		}
	}
	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Providers.TimeoutMs == 0 {
		c.Providers.TimeoutMs = 10_000
	}
	if c.Thresholds.FastSeconds == 0 {
		c.Thresholds.FastSeconds = int(quote.DefaultFastTTL / time.Second)
	}
	if c.Thresholds.SlowSeconds == 0 {
		c.Thresholds.SlowSeconds = int(quote.DefaultSlowTTL / time.Second)
	}
	if c.Worker.IntervalMs == 0 {
		c.Worker.IntervalMs = 2000
	}
	// The worker interval doubles as the spacing between provider calls
	// unless spacing is set on its own.
	if c.Worker.SpacingMs == 0 {
		c.Worker.SpacingMs = c.Worker.IntervalMs
	}
	if c.Worker.MarketHoursGating == nil {
		on := true
		c.Worker.MarketHoursGating = &on
	}
	if c.Backoff.InitialSeconds == 0 {
		c.Backoff.InitialSeconds = 2
	}
	if c.Backoff.MaxSeconds == 0 {
		c.Backoff.MaxSeconds = 60
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "@every 1m"
	}
	if c.Redis.Host != "" && c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.L1.MaxCost == 0 {
		c.L1.MaxCost = 10_000
	}
	if c.L1.LocalTTLSeconds == 0 {
		c.L1.LocalTTLSeconds = 60
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":50051"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.RPS == 0 {
		c.Server.RPS = 50
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = 100
	}
	if len(c.Tickers) == 0 && len(c.Rules) == 0 {
		c.Tickers = map[string]TickerRoute{
			"FXAIX": {Provider: routing.ProviderAlphaVantage, SourceClass: string(quote.ClassSlow)},
			"VFIAX": {Provider: routing.ProviderAlphaVantage, SourceClass: string(quote.ClassSlow)},
		}
	}
	if c.Derived == nil {
		c.Derived = []Derived{{Ticker: "NHFSMKX98", Base: "FXAIX", Divisor: 3.43}}
	}
}

// Validate reports every problem found in c.
func (c *Config) Validate() error {
	var errs []error
	if c.Worker.IntervalMs < 0 || c.Worker.SpacingMs < 0 {
		errs = append(errs, errors.New("worker intervals must not be negative"))
	}
	if c.Backoff.InitialSeconds < 0 || c.Backoff.MaxSeconds < c.Backoff.InitialSeconds {
		errs = append(errs, fmt.Errorf("backoff: need 0 <= initial (%d) <= max (%d)",
			c.Backoff.InitialSeconds, c.Backoff.MaxSeconds))
	}
	if c.Thresholds.FastSeconds < 0 || c.Thresholds.SlowSeconds < 0 {
		errs = append(errs, errors.New("staleness thresholds must not be negative"))
	}
	if c.Thresholds.HardExpiryFactor != 0 && c.Thresholds.HardExpiryFactor < 1 {
		errs = append(errs, fmt.Errorf("hard_expiry_factor %.2f must be 0 or >= 1", c.Thresholds.HardExpiryFactor))
	}
	if c.L1.MaxCost < 0 || c.L1.LocalTTLSeconds < 0 {
		errs = append(errs, errors.New("l1: max_cost and local_ttl_seconds must not be negative"))
	}
	for ticker, r := range c.Tickers {
		if quote.Canonical(ticker) == "" {
			errs = append(errs, errors.New("tickers: empty ticker"))
		}
		if r.Provider == "" {
			errs = append(errs, fmt.Errorf("tickers.%s: provider is required", ticker))
		}
		if _, err := quote.ParseSourceClass(r.SourceClass); err != nil {
			errs = append(errs, fmt.Errorf("tickers.%s: %w", ticker, err))
		}
	}
	for i, r := range c.Rules {
		if (r.Prefix == "") == (r.Regex == "") {
			errs = append(errs, fmt.Errorf("rules[%d]: exactly one of prefix or regex is required", i))
		}
		if r.Provider == "" {
			errs = append(errs, fmt.Errorf("rules[%d]: provider is required", i))
		}
		if _, err := quote.ParseSourceClass(r.SourceClass); err != nil {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, err))
		}
	}
	for i, d := range c.Derived {
		if d.Divisor == 0 {
			errs = append(errs, fmt.Errorf("derived[%d] %s: divisor must not be zero", i, d.Ticker))
		}
	}
	for name, addr := range map[string]string{"grpc_addr": c.Server.GRPCAddr, "http_addr": c.Server.HTTPAddr} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("server.%s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// RoutingTable builds the routing table described by c. Exact ticker routes
// are grouped per ticker so each keeps its own URL and extras.
func (c *Config) RoutingTable() (*routing.Table, error) {
	var groups []*routing.GroupBuilder
	for _, ticker := range slices.Sorted(maps.Keys(c.Tickers)) {
		r := c.Tickers[ticker]
		class, err := quote.ParseSourceClass(r.SourceClass)
		if err != nil {
			return nil, fmt.Errorf("config: tickers.%s: %w", ticker, err)
		}
		groups = append(groups, routing.Group(quote.Canonical(ticker)).
			Exact(ticker).
			Route(routing.Route{Provider: r.Provider, Class: class, URL: r.URL, DataType: r.DataType, Extra: r.Extra}))
	}
	for i, r := range c.Rules {
		class, err := quote.ParseSourceClass(r.SourceClass)
		if err != nil {
			return nil, fmt.Errorf("config: rules[%d]: %w", i, err)
		}
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i)
		}
		g := routing.Group(name)
		if r.Prefix != "" {
			g.Prefix(r.Prefix)
		} else if _, err := g.CompileRegex(r.Regex); err != nil {
			return nil, fmt.Errorf("config: rules[%d]: %w", i, err)
		}
		groups = append(groups, g.Route(routing.Route{Provider: r.Provider, Class: class}))
	}

	t := routing.NewTable(routing.Route{Provider: routing.ProviderFinnhub, Class: quote.ClassFast}, groups...)
	ds := make([]routing.Derived, 0, len(c.Derived))
	for _, d := range c.Derived {
		ds = append(ds, routing.Derived{Ticker: d.Ticker, Base: d.Base, Divisor: d.Divisor})
	}
	return t.WithDerived(ds...)
}

// RedisConfigured reports whether a Redis endpoint was given.
func (c *Config) RedisConfigured() bool {
	return c.Redis.URL != "" || c.Redis.Host != ""
}

// RedisAddr returns host:port for the Redis endpoint.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port))
}

// Helpers for typed durations.

func (c *Config) WorkerInterval() time.Duration {
	return time.Duration(c.Worker.IntervalMs) * time.Millisecond
}

func (c *Config) Spacing() time.Duration {
	return time.Duration(c.Worker.SpacingMs) * time.Millisecond
}

func (c *Config) BackoffInitial() time.Duration {
	return time.Duration(c.Backoff.InitialSeconds) * time.Second
}

func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Backoff.MaxSeconds) * time.Second
}

func (c *Config) FastThreshold() time.Duration {
	return time.Duration(c.Thresholds.FastSeconds) * time.Second
}

func (c *Config) SlowThreshold() time.Duration {
	return time.Duration(c.Thresholds.SlowSeconds) * time.Second
}

func (c *Config) L1LocalTTL() time.Duration {
	return time.Duration(c.L1.LocalTTLSeconds) * time.Second
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Providers.TimeoutMs) * time.Millisecond
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}
