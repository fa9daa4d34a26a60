// Package config loads boardstore server settings from defaults, a .env
// file, the environment and command-line flags, in increasing precedence
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/nainya/boardstore/pkg/canvas"
	"github.com/nainya/boardstore/pkg/store"
)

// Config holds server settings
type Config struct {
	HTTPPort    int
	GRPCPort    int
	MetricsPort int

	// DataDir holds the write-ahead log. Empty keeps whiteboards in memory.
	DataDir string

	LogLevel  string
	LogPretty bool

	// Canvas geometry of new whiteboards
	Width      int
	Height     int
	Background string

	// Per-client requests per second and burst on the HTTP API; zero disables
	RateLimit float64
	RateBurst int

	// Reverse proxies whose X-Forwarded-For and X-Real-IP headers are honoured
	TrustedProxies []netip.Prefix

	// Allowed websocket origins; empty allows any
	AllowedOrigins []string
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		HTTPPort:    8080,
		GRPCPort:    50051,
		MetricsPort: 9090,
		LogLevel:    "info",
		Width:       store.DefaultWidth,
		Height:      store.DefaultHeight,
		Background:  canvas.DefaultBackground,
		RateLimit:   20,
		RateBurst:   40,
	}
}

// Load reads envFile (if present), then the environment, then args
func Load(envFile string, args []string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}

	fsFlags := flag.NewFlagSet("boardstore", flag.ContinueOnError)
	cfg.RegisterFlags(fsFlags)
	if err := fsFlags.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RegisterFlags binds the settings to fs, using the current values as defaults
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.HTTPPort, "http-port", c.HTTPPort, "HTTP API port")
	fs.IntVar(&c.GRPCPort, "grpc-port", c.GRPCPort, "gRPC port (0 disables)")
	fs.IntVar(&c.MetricsPort, "metrics-port", c.MetricsPort, "Metrics and profiling port (0 disables)")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "Directory for the write-ahead log (empty keeps data in memory)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVar(&c.LogPretty, "log-pretty", c.LogPretty, "Human readable console logs")
	fs.IntVar(&c.Width, "width", c.Width, "Canvas width of new whiteboards")
	fs.IntVar(&c.Height, "height", c.Height, "Canvas height of new whiteboards")
	fs.StringVar(&c.Background, "background", c.Background, "Canvas background color")
	fs.Float64Var(&c.RateLimit, "rate-limit", c.RateLimit, "Requests per second per client (0 disables)")
	fs.IntVar(&c.RateBurst, "rate-burst", c.RateBurst, "Request burst per client")
	fs.Func("trusted-proxies", "Comma separated proxy addresses or CIDR prefixes", func(v string) error {
		prefixes, err := ParsePrefixes(v)
		if err != nil {
			return err
		}
		c.TrustedProxies = prefixes
		return nil
	})
	fs.Func("origins", "Comma separated websocket origins", func(v string) error {
		c.AllowedOrigins = splitList(v)
		return nil
	})
}

func (c *Config) applyEnv(getenv func(string) string) error {
	ints := map[string]*int{
		"BOARDSTORE_HTTP_PORT":    &c.HTTPPort,
		"BOARDSTORE_GRPC_PORT":    &c.GRPCPort,
		"BOARDSTORE_METRICS_PORT": &c.MetricsPort,
		"BOARDSTORE_WIDTH":        &c.Width,
		"BOARDSTORE_HEIGHT":       &c.Height,
		"BOARDSTORE_RATE_BURST":   &c.RateBurst,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := getenv("BOARDSTORE_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BOARDSTORE_RATE_LIMIT: %w", err)
		}
		c.RateLimit = f
	}
	if v := getenv("BOARDSTORE_LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BOARDSTORE_LOG_PRETTY: %w", err)
		}
		c.LogPretty = b
	}
	if v := getenv("BOARDSTORE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := getenv("BOARDSTORE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("BOARDSTORE_BACKGROUND"); v != "" {
		c.Background = v
	}
	if v := getenv("BOARDSTORE_TRUSTED_PROXIES"); v != "" {
		prefixes, err := ParsePrefixes(v)
		if err != nil {
			return fmt.Errorf("BOARDSTORE_TRUSTED_PROXIES: %w", err)
		}
		c.TrustedProxies = prefixes
	}
	if v := getenv("DOMAINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	return nil
}

// Validate checks ranges and formats
func (c *Config) Validate() error {
	for name, port := range map[string]int{"http-port": c.HTTPPort, "grpc-port": c.GRPCPort, "metrics-port": c.MetricsPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s %d out of range", name, port)
		}
	}
	if c.HTTPPort == 0 {
		return errors.New("http-port is required")
	}
	if c.Width <= 0 || c.Height <= 0 || c.Width > canvas.MaxDimension || c.Height > canvas.MaxDimension {
		return fmt.Errorf("canvas size %dx%d out of range", c.Width, c.Height)
	}
	if _, err := colorful.Hex(c.Background); err != nil {
		return fmt.Errorf("background %q: %w", c.Background, err)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.New("rate limits must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		c.RateBurst = 1
	}
	return nil
}

// ParsePrefixes parses a comma separated list of addresses and CIDR prefixes
func ParsePrefixes(v string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range splitList(v) {
		if p, err := netip.ParsePrefix(part); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
