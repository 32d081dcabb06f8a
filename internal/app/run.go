package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/containeroo/tinyflags"
	"github.com/gi8lino/jiralink/internal/config"
	"github.com/gi8lino/jiralink/internal/credential"
	"github.com/gi8lino/jiralink/internal/flag"
	"github.com/gi8lino/jiralink/internal/jira"
	"github.com/gi8lino/jiralink/internal/logging"
	"github.com/gi8lino/jiralink/internal/metrics"
	"github.com/gi8lino/jiralink/internal/utils"
)

// Run executes one jiralink command. Results are written to out as JSON, logs go to logOut.
func Run(ctx context.Context, version, commit string, args []string, out, logOut io.Writer, getEnv func(string) string) error {
	// Create a new context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Parse command-line flags
	flags, err := flag.ParseArgs(version, args, out, getEnv)
	if err != nil {
		if tinyflags.IsHelpRequested(err) || tinyflags.IsVersionRequested(err) {
			fmt.Fprint(out, err.Error()) // nolint:errcheck
			return nil
		}
		return fmt.Errorf("parsing error: %w", err)
	}

	// Setup logger
	logger := logging.SetupLogger(flags.LogFormat, flags.Debug, logOut)
	logger.Debug("starting jiralink",
		"version", version,
		"commit", commit,
		"command", flags.Command,
	)

	// Load config
	cfg, err := config.LoadConfig(flags.Config)
	if err != nil {
		return fmt.Errorf("loading config error: %w", err)
	}
	if err := config.ValidateConfig(&cfg); err != nil {
		return fmt.Errorf("validating config error: %w", err)
	}

	// Setup tracker client
	creds := &credential.Resolver{}
	username, err := creds.Resolve(cfg.Tracker.Username)
	if err != nil {
		return fmt.Errorf("tracker.username: %w", err)
	}
	password, err := creds.Resolve(cfg.Tracker.Password)
	if err != nil {
		return fmt.Errorf("tracker.password: %w", err)
	}
	token, err := creds.Resolve(cfg.Tracker.BearerToken)
	if err != nil {
		return fmt.Errorf("tracker.bearerToken: %w", err)
	}
	auth, method, err := jira.ResolveAuth(token, username, password)
	if err != nil {
		return err
	}
	logger.Debug("tracker auth",
		"method", method,
		"header", utils.ObfuscateHeader(utils.GetAuthorizationHeader(auth)),
	)

	apiURL, err := cfg.Tracker.APIURL()
	if err != nil {
		return fmt.Errorf("tracker.url: %w", err)
	}
	collector := metrics.New()
	client, err := jira.NewClient(apiURL, auth, jira.Options{
		SkipTLSVerify: cfg.Tracker.SkipTLSVerify,
		Timeout:       cfg.Tracker.Timeout,
		BatchSize:     cfg.Tracker.BatchSize,
		CacheSize:     cfg.Tracker.CacheSize,
		CustomFields:  cfg.CustomFields,
		Logger:        logger,
		Metrics:       collector,
	})
	if err != nil {
		return fmt.Errorf("creating tracker client: %w", err)
	}

	// Run command
	result, err := dispatch(ctx, &commandEnv{
		client: client,
		cfg:    cfg,
		flags:  flags,
		logger: logger,
	})
	logger.Debug("tracker requests", "total", collector.TotalRequests())
	if err != nil {
		logger.Error("command failed", "command", flags.Command, "kind", jira.KindOf(err).String(), "error", err)
		return fmt.Errorf("%s: %w", flags.Command, err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
