package domain

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vietddude/pkgwatch/internal/integrity"
)

// Target is one monitored package artifact.
// It is immutable after NewTarget returns.
type Target struct {
	Name           string
	URL            string
	ExpectedDigest string
}

// ConfigurationError reports an invalid target definition.
type ConfigurationError struct {
	Target string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("invalid target: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid target %q: %s %s", e.Target, e.Field, e.Reason)
}

// NewTarget validates and builds a Target. The digest is normalized to lowercase.
func NewTarget(name, rawURL, digest string) (Target, error) {
	name = strings.TrimSpace(name)
	rawURL = strings.TrimSpace(rawURL)
	digest = strings.ToLower(strings.TrimSpace(digest))

	if name == "" {
		return Target{}, &ConfigurationError{Field: "name", Reason: "is empty"}
	}
	if rawURL == "" {
		return Target{}, &ConfigurationError{Target: name, Field: "url", Reason: "is empty"}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, &ConfigurationError{Target: name, Field: "url", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, &ConfigurationError{Target: name, Field: "url", Reason: "must use http or https"}
	}
	if u.Host == "" {
		return Target{}, &ConfigurationError{Target: name, Field: "url", Reason: "has no host"}
	}

	if !integrity.ValidDigest(digest) {
		return Target{}, &ConfigurationError{
			Target: name,
			Field:  "expected_digest",
			Reason: "must be a 64 character hex sha256",
		}
	}

	return Target{Name: name, URL: rawURL, ExpectedDigest: digest}, nil
}
