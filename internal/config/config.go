// Package config provides centralized configuration management for the
// application. Settings come from an optional YAML file layered under
// environment variables, with sensible defaults and startup validation
// to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// Every setting can be configured via environment variables; a YAML file
// named by CONFIG_FILE supplies values for anything the environment
// leaves unset.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Upload   UploadConfig    `yaml:"upload"`
	Convert  ConvertConfig   `yaml:"convert"`
	Rate     RateLimitConfig `yaml:"rate_limit"`
	Security SecurityConfig  `yaml:"security"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `yaml:"port" env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 5m,
	// large conversions stream their result in the response body)
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 5m)
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// UploadConfig holds DBF upload and session storage settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `yaml:"max_file_size" env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// Dir is where uploaded files are kept between upload and download.
	// Empty means a directory under the OS temp dir.
	Dir string `yaml:"dir" env:"UPLOAD_DIR"`

	// SessionTTL is how long an uploaded file stays available (default: 1h)
	SessionTTL time.Duration `yaml:"session_ttl" env:"UPLOAD_SESSION_TTL" default:"1h"`

	// CleanupInterval is how often expired sessions are removed (default: 10m)
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"UPLOAD_CLEANUP_INTERVAL" default:"10m"`

	// MaxConcurrent is the maximum number of parallel conversions (default: 4)
	MaxConcurrent int `yaml:"max_concurrent" env:"UPLOAD_MAX_CONCURRENT" default:"4"`
}

// ConvertConfig holds conversion defaults. Each request or command line
// invocation may override them.
type ConvertConfig struct {
	// Encoding is the default source encoding, "auto" probes candidates (default: auto)
	Encoding string `yaml:"encoding" env:"CONVERT_ENCODING" default:"auto"`

	// Delimiter is the CSV field separator, exactly one character (default: ;)
	Delimiter string `yaml:"delimiter" env:"CONVERT_DELIMITER" default:";"`

	// OutputEncoding is the encoding of generated CSV text (default: utf-8)
	OutputEncoding string `yaml:"output_encoding" env:"CONVERT_OUTPUT_ENCODING" default:"utf-8"`

	// ProgressInterval is the record period between progress reports (default: 1000)
	ProgressInterval int `yaml:"progress_interval" env:"CONVERT_PROGRESS_INTERVAL" default:"1000"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `yaml:"enabled" env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `yaml:"requests_per_minute" env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `yaml:"upload_limit" env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `yaml:"enable_csp" env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
