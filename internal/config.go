package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultUserAgent is sent on every request unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config holds application configuration
type Config struct {
	OutputDir      string
	DefaultTimeout int // seconds, 0 disables the resolution timeout
	MaxRetries     int
	UserAgent      string
	ProxyURL       string
	RateLimit      string
	CookiesFile    string
	PageDelay      time.Duration
	DiskDomains    []string
	MailDomains    []string

	// Logging configuration
	LogLevel    string
	EnableDebug bool
	QuietMode   bool
	LogFile     string
}

// DefaultDiskDomains are the host suffixes served by the disk-share provider.
var DefaultDiskDomains = []string{
	"lanzou.com",
	"lanzoux.com",
	"lanzoui.com",
	"lanzouw.com",
	"lanzoul.com",
	"lanzouo.com",
	"lanzouq.com",
	"lanzouv.com",
	"lanzouy.com",
	"lanzoue.com",
	"lanzoum.com",
	"lanzout.com",
	"lanzoup.com",
	"lanzoub.com",
	"lanzouc.com",
	"lanzoug.com",
	"lanzouf.com",
}

// DefaultMailDomains are the host suffixes served by the webmail attachment provider.
var DefaultMailDomains = []string{
	"mail.qq.com",
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		OutputDir:      ".",
		DefaultTimeout: 0,
		MaxRetries:     3,
		UserAgent:      DefaultUserAgent,
		PageDelay:      3 * time.Second,
		DiskDomains:    append([]string(nil), DefaultDiskDomains...),
		MailDomains:    append([]string(nil), DefaultMailDomains...),

		// Logging defaults
		LogLevel:    "info",
		EnableDebug: false,
		QuietMode:   false,
		LogFile:     "", // Empty means stderr
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if dir := os.Getenv("LINKFETCH_OUTPUT_DIR"); dir != "" {
		c.OutputDir = dir
	}

	if timeout := os.Getenv("LINKFETCH_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil && t >= 0 {
			c.DefaultTimeout = t
		}
	}

	if retries := os.Getenv("LINKFETCH_MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil && r > 0 {
			c.MaxRetries = r
		}
	}

	c.UserAgent = GetEnvWithDefault("LINKFETCH_USER_AGENT", c.UserAgent)
	c.ProxyURL = GetEnvWithDefault("LINKFETCH_PROXY", c.ProxyURL)
	c.RateLimit = GetEnvWithDefault("LINKFETCH_RATE_LIMIT", c.RateLimit)
	c.CookiesFile = GetEnvWithDefault("LINKFETCH_COOKIES", c.CookiesFile)

	if delay := os.Getenv("LINKFETCH_PAGE_DELAY_MS"); delay != "" {
		if ms, err := strconv.Atoi(delay); err == nil && ms >= 0 {
			c.PageDelay = time.Duration(ms) * time.Millisecond
		}
	}

	if domains := os.Getenv("LINKFETCH_DISK_DOMAINS"); domains != "" {
		for _, d := range strings.Split(domains, ",") {
			if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
				c.DiskDomains = append(c.DiskDomains, d)
			}
		}
	}

	// Load logging configuration from environment
	if logLevel := os.Getenv("LINKFETCH_LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}

	if debug := os.Getenv("LINKFETCH_DEBUG"); debug != "" {
		c.EnableDebug = debug == "true" || debug == "1"
	}

	if quiet := os.Getenv("LINKFETCH_QUIET"); quiet != "" {
		c.QuietMode = quiet == "true" || quiet == "1"
	}

	if logFile := os.Getenv("LINKFETCH_LOG_FILE"); logFile != "" {
		c.LogFile = logFile
	}
}

// GetEnvWithDefault returns environment variable value or default
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ResolveTimeout returns the resolution timeout, zero meaning none.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.DefaultTimeout) * time.Second
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("invalid default timeout: %d (must be >= 0)", c.DefaultTimeout)
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("invalid max retries: %d (must be >= 1)", c.MaxRetries)
	}

	if strings.TrimSpace(c.UserAgent) == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if c.PageDelay < 0 {
		return fmt.Errorf("invalid page delay: %v (must be >= 0)", c.PageDelay)
	}

	if len(c.DiskDomains) == 0 {
		return fmt.Errorf("disk provider domain list cannot be empty")
	}

	if len(c.MailDomains) == 0 {
		return fmt.Errorf("mail provider domain list cannot be empty")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	return nil
}
