package mocktracker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the mock tracker configuration root.
type Config struct {
	Port        int     `yaml:"port"`
	DataDir     string  `yaml:"dataDir"`
	RandomDelay bool    `yaml:"randomDelay"`
	Routes      []Route `yaml:"routes"`
}

// Route defines a single HTTP path and how to serve JSON for it.
type Route struct {
	Path       string    `yaml:"path"`                 // e.g. /rest/api/2/search
	Method     string    `yaml:"method,omitempty"`     // empty matches any method
	Status     int       `yaml:"status,omitempty"`     // response status, default 200
	ItemsField string    `yaml:"itemsField,omitempty"` // e.g. "issues"; if empty and file is a JSON array, that array is used
	Select     *Select   `yaml:"select,omitempty"`     // how to pick the data file token
	Paginate   *Paginate `yaml:"paginate,omitempty"`   // nil = no pagination
}

// Select configures how the mock chooses which data file to serve.
type Select struct {
	From         string `yaml:"from,omitempty"`         // "query" | "header" | "path" | "static"
	Key          string `yaml:"key,omitempty"`          // name of param/header (unused for path and static)
	Regex        string `yaml:"regex,omitempty"`        // optional regex with 1 capture group used as token
	FileTemplate string `yaml:"fileTemplate,omitempty"` // template like "%s.json" (default)
	Static       string `yaml:"static,omitempty"`       // used when From == "static"
}

// Paginate defines startAt/maxResults style pagination for a route.
type Paginate struct {
	StartField   string `yaml:"startField"`             // e.g. "startAt"
	LimitField   string `yaml:"limitField"`             // e.g. "maxResults"
	TotalField   string `yaml:"totalField"`             // e.g. "total"
	DefaultLimit int    `yaml:"defaultLimit,omitempty"` // used when the request has no limit (default 50)
}

// LoadConfig reads and validates the YAML configuration file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.setDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults fills defaults and validates every route.
func (cfg *Config) setDefaults() error {
	if cfg.Port == 0 {
		cfg.Port = 8081
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}

	for i := range cfg.Routes {
		rt := &cfg.Routes[i]
		if err := validateRoute(*rt); err != nil {
			return err
		}
		if rt.Select.FileTemplate == "" {
			rt.Select.FileTemplate = "%s.json"
		}
		if rt.Status == 0 {
			rt.Status = 200
		}
		if p := rt.Paginate; p != nil {
			if p.DefaultLimit <= 0 {
				p.DefaultLimit = 50
			}
			setDefault(&p.StartField, "startAt")
			setDefault(&p.LimitField, "maxResults")
			setDefault(&p.TotalField, "total")
		}
	}
	return nil
}

// validateRoute ensures minimal correctness of a single route.
func validateRoute(rt Route) error {
	if strings.TrimSpace(rt.Path) == "" {
		return errors.New("invalid route: empty path")
	}
	if rt.Select == nil {
		return fmt.Errorf("route %q: missing select block", rt.Path)
	}
	switch strings.ToLower(rt.Select.From) {
	case "static":
		if strings.TrimSpace(rt.Select.Static) == "" {
			return fmt.Errorf("route %q: select.static must be set when select.from=static", rt.Path)
		}
	case "query", "header":
		if strings.TrimSpace(rt.Select.Key) == "" {
			return fmt.Errorf("route %q: select.key is required for select.from=%s", rt.Path, rt.Select.From)
		}
	case "path":
	default:
		return fmt.Errorf("route %q: unsupported select.from=%q", rt.Path, rt.Select.From)
	}
	return nil
}

// setDefault assigns dst to val only if *dst is empty.
func setDefault(dst *string, val string) {
	if *dst == "" {
		*dst = val
	}
}
