package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/pkgwatch/internal/core/domain"
)

// Defaults for values left empty in the config file.
const (
	DefaultPort         = 8000
	DefaultInterval     = 30 * time.Second
	DefaultTimeout      = 10 * time.Second
	DefaultWindowSize   = 100
	DefaultSLAThreshold = 0.95
	DefaultUserAgent    = "pkgwatch/1.0"
)

// Load reads configuration from a YAML file, applies defaults and validates it.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration. ${VAR} references are expanded from
// the environment first. Numeric settings start from their defaults, so
// only keys missing from the file are defaulted and an explicit zero is
// rejected by Validate.
func Parse(data []byte) (*AppConfig, error) {
	cfg := defaultConfig()
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.UnmarshalStrict([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{Port: DefaultPort},
		Monitoring: MonitoringConfig{
			Interval:     DefaultInterval,
			Timeout:      DefaultTimeout,
			WindowSize:   DefaultWindowSize,
			SLAThreshold: DefaultSLAThreshold,
		},
	}
}

// applyDefaults fills string settings left blank.
func applyDefaults(cfg *AppConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Monitoring.UserAgent) == "" {
		cfg.Monitoring.UserAgent = DefaultUserAgent
	}
}

// Validate checks global settings and every target definition.
func (c *AppConfig) Validate() error {
	m := c.Monitoring
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if m.Interval <= 0 {
		return errors.New("config: monitoring.interval must be > 0")
	}
	if m.Timeout <= 0 {
		return errors.New("config: monitoring.timeout must be > 0")
	}
	if m.WindowSize < 1 {
		return fmt.Errorf("config: monitoring.window_size must be >= 1, got %d", m.WindowSize)
	}
	if m.SLAThreshold <= 0 || m.SLAThreshold >= 1 {
		return fmt.Errorf("config: monitoring.sla_threshold must be in (0,1), got %v", m.SLAThreshold)
	}
	if m.MaxBodyBytes < 0 {
		return errors.New("config: monitoring.max_body_bytes cannot be negative")
	}

	if _, err := c.BuildTargets(); err != nil {
		return err
	}
	return nil
}

// BuildTargets resolves URL templates and returns the enabled targets.
func (c *AppConfig) BuildTargets() ([]domain.Target, error) {
	if len(c.Targets) == 0 {
		return nil, errors.New("config: no targets provided")
	}

	seen := make(map[string]struct{}, len(c.Targets))
	targets := make([]domain.Target, 0, len(c.Targets))

	for i, tc := range c.Targets {
		name := strings.TrimSpace(tc.Name)
		if _, ok := seen[name]; ok && name != "" {
			return nil, fmt.Errorf("config: duplicate target name %q", name)
		}
		seen[name] = struct{}{}

		url, err := ResolveURL(tc.URL, tc.PackageName, tc.PackageVersion)
		if err != nil {
			return nil, fmt.Errorf("config: target[%d] %q: %w", i, name, err)
		}

		t, err := domain.NewTarget(name, url, tc.ExpectedDigest)
		if err != nil {
			return nil, fmt.Errorf("config: target[%d]: %w", i, err)
		}

		if tc.IsEnabled() {
			targets = append(targets, t)
		}
	}

	if len(targets) == 0 {
		return nil, errors.New("config: every target is disabled")
	}
	return targets, nil
}

// ResolveURL substitutes package placeholders in a URL template.
func ResolveURL(template, name, version string) (string, error) {
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)

	needsName := strings.Contains(template, "{PACKAGE_NAME}") || strings.Contains(template, "{PACKAGE_LETTER}")
	if needsName && name == "" {
		return "", errors.New("url uses {PACKAGE_NAME} but package_name is empty")
	}
	if strings.Contains(template, "{PACKAGE_VERSION}") && version == "" {
		return "", errors.New("url uses {PACKAGE_VERSION} but package_version is empty")
	}

	letter := ""
	if r, size := utf8.DecodeRuneInString(name); size > 0 {
		letter = string(r)
	}

	r := strings.NewReplacer(
		"{PACKAGE_NAME}", name,
		"{PACKAGE_LETTER}", letter,
		"{PACKAGE_VERSION}", version,
	)
	resolved := r.Replace(template)
	if strings.ContainsAny(resolved, "{}") {
		return "", fmt.Errorf("url %q has unresolved placeholders", resolved)
	}
	return resolved, nil
}
