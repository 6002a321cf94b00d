package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/c360studio/ontowatch/config"
	"github.com/c360studio/ontowatch/diff"
	"github.com/c360studio/ontowatch/history"
	"github.com/c360studio/ontowatch/metrics"
	"github.com/c360studio/ontowatch/tools/git"
)

type historyOptions struct {
	repo      string
	file      string
	dataFile  string
	gnuFile   string
	graphFile string
	patchDir  string
	noGraph   bool
	verbose   bool
}

func historyCmd(global *globalOptions) *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Chart per-day statement churn from the git history",
		Long: `Clone the repository, take the last commit of every day that touched the
N-Triples file and count the statements that stayed, were added and were
deleted relative to the previous day. Writes a data file and a gnuplot
script, then runs gnuplot unless --no-graph is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fallback := slog.LevelWarn
			if opts.verbose {
				fallback = slog.LevelInfo
			}
			logger, err := global.newLogger(os.Stderr, fallback)
			if err != nil {
				return err
			}
			cfg, _, err := global.loadConfig(logger)
			if err != nil {
				return err
			}
			opts.apply(cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runHistory(cmd, cfg, opts, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.repo, "repo", "", "Repository URL or local path to mine")
	f.StringVar(&opts.file, "file", "", "N-Triples file inside the repository")
	f.StringVar(&opts.dataFile, "datafile", "", "Data file to write to")
	f.StringVar(&opts.gnuFile, "gnufile", "", "gnuplot file to write to")
	f.StringVar(&opts.graphFile, "graphfile", "", "Graph file to write to")
	f.StringVar(&opts.patchDir, "patch-dir", "", "Write a unified patch per transition into this directory")
	f.BoolVarP(&opts.noGraph, "no-graph", "g", false, "Do not run gnuplot to make graph")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose")

	return cmd
}

// apply overrides configured values with the flags that were given.
func (o *historyOptions) apply(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.History.RepoURL, o.repo)
	set(&cfg.History.File, o.file)
	set(&cfg.History.DataFile, o.dataFile)
	set(&cfg.History.GnuFile, o.gnuFile)
	set(&cfg.History.GraphFile, o.graphFile)
}

func runHistory(cmd *cobra.Command, cfg *config.Config, opts *historyOptions, logger *slog.Logger) error {
	ctx := cmd.Context()

	tmpDir, err := os.MkdirTemp("", "ontowatch-history-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	repo, err := git.Clone(ctx, cfg.History.RepoURL, filepath.Join(tmpDir, "repo"), logger)
	if err != nil {
		return err
	}

	sampler := history.NewSampler(repo, cfg.History.File, logger)
	sampler.OntologyIRI = cfg.Source.OntologyIRI
	sampler.PredicateIRI = cfg.Source.DatePredicate

	if opts.patchDir != "" {
		if err := os.MkdirAll(opts.patchDir, 0755); err != nil {
			return fmt.Errorf("create patch dir: %w", err)
		}
	}

	var series metrics.Series
	err = history.Collect(ctx, sampler, func(t history.Transition) error {
		if series.Start == "" {
			series = metrics.NewSeries(t.PreviousDate)
		}
		var err error
		series, err = metrics.Accumulate(series, metrics.Record{
			Date:    t.Date,
			Same:    t.Result.Same,
			Added:   t.Result.Added,
			Deleted: t.Result.Removed,
			Total:   t.Size,
		})
		if err != nil {
			return err
		}
		logger.Info("Transition", "date", t.Date, "commit", t.CommitID, "result", t.Result.String())

		if opts.patchDir != "" {
			return writePatch(opts.patchDir, t)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := writeFile(cfg.History.DataFile, func(w *bufio.Writer) error {
		return metrics.WriteData(w, series)
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d transitions to %s\n", len(series.Records), cfg.History.DataFile)

	if opts.noGraph {
		return nil
	}
	if len(series.Records) == 0 {
		logger.Warn("Not enough history to chart", "file", cfg.History.File)
		return nil
	}

	if err := writeFile(cfg.History.GnuFile, func(w *bufio.Writer) error {
		return metrics.WriteChartScript(w, metrics.ChartParams{
			Series:    series,
			DataFile:  cfg.History.DataFile,
			GraphFile: cfg.History.GraphFile,
		})
	}); err != nil {
		return err
	}
	if err := metrics.RenderChart(ctx, cfg.History.GnuFile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote chart to %s\n", cfg.History.GraphFile)
	return nil
}

func writePatch(dir string, t history.Transition) error {
	patch, err := diff.Patch(t.Previous, t.Current, t.PreviousDate, t.Date)
	if err != nil {
		return fmt.Errorf("patch %s: %w", t.Date, err)
	}
	path := filepath.Join(dir, t.Date+".patch")
	if err := os.WriteFile(path, []byte(patch), 0644); err != nil {
		return fmt.Errorf("write patch: %w", err)
	}
	return nil
}

// writeFile creates path and hands a buffered writer to fn.
func writeFile(path string, fn func(w *bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
