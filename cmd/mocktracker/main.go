package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/containeroo/tinyflags"
	"github.com/gi8lino/jiralink/internal/logging"
	"github.com/gi8lino/jiralink/internal/mocktracker"
)

// main starts a mock tracker serving canned JSON files for local development.
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err) // nolint:errcheck
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		logBody    bool
	)

	tf := tinyflags.NewFlagSet("mocktracker", tinyflags.ContinueOnError)
	tf.StringVar(&configPath, "config", "", "Path to mock tracker config.yaml (required)").Value()
	tf.BoolVar(&logBody, "log-body", false, "Log request bodies (may contain secrets)").Value()

	if err := tf.Parse(args); err != nil {
		return fmt.Errorf("flag parse error: %w", err)
	}
	if strings.TrimSpace(configPath) == "" {
		return fmt.Errorf("missing required --config=<path to yaml>")
	}

	cfg, err := mocktracker.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// absolute stays absolute
	if !filepath.IsAbs(cfg.DataDir) {
		base := filepath.Dir(configPath)
		cfg.DataDir, _ = filepath.Abs(filepath.Join(base, cfg.DataDir))
	}

	logger := logging.SetupLogger(logging.LogFormatText, true, os.Stderr)
	handler, err := mocktracker.NewHandler(cfg, os.DirFS(cfg.DataDir), logger, logBody)
	if err != nil {
		return err
	}

	addr := ":" + strconv.Itoa(cfg.Port)
	logger.Info("mock tracker listening", "addr", addr, "dataDir", cfg.DataDir)
	return http.ListenAndServe(addr, handler)
}
