package config

import (
	"time"

	redisclient "github.com/vietddude/pkgwatch/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Monitoring MonitoringConfig   `yaml:"monitoring"`
	Redis      redisclient.Config `yaml:"redis"`
	Targets    []TargetConfig     `yaml:"targets"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MonitoringConfig holds settings shared by every target.
type MonitoringConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	WindowSize   int           `yaml:"window_size"`
	SLAThreshold float64       `yaml:"sla_threshold"` // exclusive, in (0,1)
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Jitter       *bool         `yaml:"jitter"`
}

// TargetConfig describes one monitored artifact. URL may contain the
// placeholders {PACKAGE_NAME}, {PACKAGE_LETTER} and {PACKAGE_VERSION}.
type TargetConfig struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	PackageName    string `yaml:"package_name"`
	PackageVersion string `yaml:"package_version"`
	ExpectedDigest string `yaml:"expected_digest"`
	Enabled        *bool  `yaml:"enabled"`
}

// IsEnabled reports whether the target should be monitored. Targets are
// enabled unless explicitly disabled.
func (t TargetConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// JitterEnabled reports whether first cycles are spread out. Defaults to true.
func (m MonitoringConfig) JitterEnabled() bool {
	return m.Jitter == nil || *m.Jitter
}
