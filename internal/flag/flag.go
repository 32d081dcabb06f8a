package flag

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/containeroo/tinyflags"
	"github.com/gi8lino/jiralink/internal/logging"
)

// Commands lists the accepted sub commands.
var Commands = []string{"search", "count", "issue", "versions", "fields", "options", "comments", "comment", "status", "transition"}

// Config aggregates CLI flags after parsing.
type Config struct {
	Config    string            // Path to config file
	Debug     bool              // Enables debug logging
	LogFormat logging.LogFormat // Log output format (text or json)
	DryRun    bool              // Log tracker writes instead of executing them
	Report    string            // Report name rendered into synced comments
	Command   string            // Sub command to run
	Args      []string          // Sub command arguments
}

// ParseArgs parses CLI arguments into Config, handling version/help flags.
func ParseArgs(version string, args []string, out io.Writer, getEnv func(string) string) (Config, error) {
	var cfg Config
	tf := tinyflags.NewFlagSet("jiralink", tinyflags.ContinueOnError)
	tf.Version(version)
	tf.SetGetEnvFn(getEnv)
	tf.EnvPrefix("JIRALINK")
	tf.SetOutput(out)

	tf.StringVar(&cfg.Config, "config", "config.yaml", "Path to config file").
		Finalize(func(s string) string {
			if filepath.IsAbs(s) {
				return s
			}
			path, err := filepath.Abs(s)
			if err != nil {
				return s
			}
			return path
		}).
		Value()

	// Writes
	tf.BoolVar(&cfg.DryRun, "dry-run", false, "Log comment and transition writes instead of sending them").Value()
	tf.StringVar(&cfg.Report, "report", "", "Report name used when syncing comments").
		Placeholder("NAME").
		Value()

	// Logging
	tf.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging").Value()
	logFormat := tf.String("log-format", "text", "Log format").Choices("text", "json").Short("l").Value()

	// Parse
	if err := tf.Parse(args); err != nil {
		return Config{}, err
	}

	// Post-parse
	cfg.LogFormat = logging.LogFormat(*logFormat)

	rest := tf.Args()
	if len(rest) == 0 {
		return Config{}, fmt.Errorf("missing command: one of %v", Commands)
	}
	cfg.Command, cfg.Args = rest[0], rest[1:]
	if !slices.Contains(Commands, cfg.Command) {
		return Config{}, fmt.Errorf("unknown command %q: one of %v", cfg.Command, Commands)
	}

	return cfg, nil
}
