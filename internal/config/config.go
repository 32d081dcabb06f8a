package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied by ValidateConfig.
const (
	defaultTimeout   = 15 * time.Second
	defaultBatchSize = 100
	defaultCacheSize = 1000
	defaultMarker    = "Test Results"
	defaultTemplate  = `[{{ .Marker }}|{{ .ReportURL }}/{{ .ReportName }}]`
)

// LoadConfig loads the configuration from the given path.
// Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ValidateConfig checks the configuration and fills in defaults.
// All problems are reported at once.
func ValidateConfig(cfg *Config) error {
	var errs []string

	errs = append(errs, validateTracker(cfg.Tracker)...)
	errs = append(errs, validateAuth(cfg.Tracker)...)

	for i, name := range cfg.CustomFields {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Sprintf("customFields[%d]: name is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	setDefaults(cfg)

	return nil
}

// APIURL returns the parsed tracker URL with a trailing slash.
func (t Tracker) APIURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(t.URL))
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// validateTracker checks URL and numeric limits.
func validateTracker(t Tracker) []string {
	var errs []string

	switch u, err := t.APIURL(); {
	case strings.TrimSpace(t.URL) == "":
		errs = append(errs, "tracker.url is required")
	case err != nil:
		errs = append(errs, fmt.Sprintf("tracker.url: %v", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Sprintf("tracker.url: scheme must be http or https, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, "tracker.url: host is required")
	case !strings.Contains(u.Path, "/rest/api/"):
		errs = append(errs, fmt.Sprintf("tracker.url: path %q must contain /rest/api/", u.Path))
	}

	if t.Timeout < 0 {
		errs = append(errs, "tracker.timeout must be >= 0")
	}
	if t.BatchSize < 0 {
		errs = append(errs, "tracker.batchSize must be >= 0")
	}
	if t.CacheSize < 0 {
		errs = append(errs, "tracker.cacheSize must be >= 0")
	}

	return errs
}

// validateAuth requires exactly one of basic and bearer credentials.
func validateAuth(t Tracker) []string {
	basic := t.Username != "" || t.Password != ""
	bearer := t.BearerToken != ""

	switch {
	case basic && bearer:
		return []string{"tracker: set either username/password or bearerToken, not both"}
	case bearer:
		return nil
	case t.Username == "" && t.Password == "":
		return []string{"tracker: credentials are required (username/password or bearerToken)"}
	case t.Username == "":
		return []string{"tracker.username is required with password"}
	case t.Password == "":
		return []string{"tracker.password is required with username"}
	}
	return nil
}

// setDefault assigns dst to val only if *dst is empty.
func setDefault(dst *string, val string) {
	if *dst == "" {
		*dst = val
	}
}

// setDefaults fills in missing values.
func setDefaults(cfg *Config) {
	if cfg.Tracker.Timeout == 0 {
		cfg.Tracker.Timeout = defaultTimeout
	}
	if cfg.Tracker.BatchSize == 0 {
		cfg.Tracker.BatchSize = defaultBatchSize
	}
	if cfg.Tracker.CacheSize == 0 {
		cfg.Tracker.CacheSize = defaultCacheSize
	}
	setDefault(&cfg.Comment.Marker, defaultMarker)
	setDefault(&cfg.Comment.Template, defaultTemplate)
}
