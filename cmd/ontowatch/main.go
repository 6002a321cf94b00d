// Package main provides the ontowatch binary entry point.
// ontowatch tracks a published ontology document in a git working copy and
// mines that history for per-day triple churn.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/c360studio/ontowatch/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ontowatch"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by all subcommands.
type globalOptions struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Track changes of a published ontology",
		Long: `ontowatch tracks the evolution of a published ontology document.

It provides:
- sync: fetch the document, store it as RDF/XML, N-Triples and Turtle in a
  git working copy and commit when its declared modification date changes
- history: mine the git history of the stored N-Triples file for per-day
  statement churn and chart it with gnuplot`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(historyCmd(opts), syncCmd(opts), configCmd(opts), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

// newLogger installs a console logger on w. fallback is used when no
// --log-level was given.
func (o *globalOptions) newLogger(w io.Writer, fallback slog.Level) (*slog.Logger, error) {
	level := fallback
	if o.logLevel != "" {
		var err error
		if level, err = parseLevel(o.logLevel); err != nil {
			return nil, err
		}
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}))
	slog.SetDefault(logger)
	return logger, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// loadConfig reads --config when given, otherwise the layered defaults.
func (o *globalOptions) loadConfig(logger *slog.Logger) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(logger)
	if o.configPath != "" {
		cfg, err := config.LoadFromFile(o.configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, loader, nil
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, loader, nil
}
