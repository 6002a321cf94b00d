package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/c360studio/ontowatch/change"
	"github.com/c360studio/ontowatch/config"
	"github.com/c360studio/ontowatch/fetch"
	"github.com/c360studio/ontowatch/notify"
	"github.com/c360studio/ontowatch/snapshot"
	"github.com/c360studio/ontowatch/syncer"
	"github.com/c360studio/ontowatch/tools/git"
)

type syncOptions struct {
	once        bool
	schedule    bool
	workdir     string
	interval    time.Duration
	metricsAddr string
}

func syncCmd(global *globalOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync (--once | --schedule)",
		Short: "Fetch the ontology and commit it when it changed",
		Long: `Fetch the published document, compare its declared modification date with
the stored copy and, when it changed, rewrite the stored RDF/XML, N-Triples
and Turtle files, commit and push.

--once runs a single cycle. --schedule runs a cycle immediately and then once
per interval until interrupted; an interrupted run finishes its current
cycle first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.once && !opts.schedule {
				_ = cmd.Usage()
				return errors.New("one of --once or --schedule is required")
			}

			logger, err := global.newLogger(os.Stderr, slog.LevelInfo)
			if err != nil {
				return err
			}
			cfg, loader, err := global.loadConfig(logger)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			loader.ResolveRepoPath(cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runSync(cmd, cfg, opts, logger)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.once, "once", false, "Run a single sync cycle")
	f.BoolVar(&opts.schedule, "schedule", false, "Run sync cycles on an interval")
	f.StringVarP(&opts.workdir, "workdir", "d", "", "Working copy directory")
	f.DurationVar(&opts.interval, "interval", 0, "Interval between scheduled cycles (default from config)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.MarkFlagsMutuallyExclusive("once", "schedule")

	return cmd
}

func (o *syncOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	if o.workdir != "" {
		cfg.Repo.Path = o.workdir
	}
	if cmd.Flags().Changed("interval") {
		cfg.Sync.Interval = o.interval
	}
	if o.metricsAddr != "" {
		cfg.Sync.MetricsAddr = o.metricsAddr
	}
}

func runSync(cmd *cobra.Command, cfg *config.Config, opts *syncOptions, logger *slog.Logger) error {
	ctx := cmd.Context()

	repo, err := openWorkingCopy(ctx, cfg, logger)
	if err != nil {
		return err
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer notifier.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.Sync.MetricsAddr != "" {
		stop := serveMetrics(cfg.Sync.MetricsAddr, reg, logger)
		defer stop()
	}

	fetcher := fetch.New(cfg.Source.URL, cfg.Source.Timeout, logger)
	fetcher.OntologyIRI = cfg.Source.OntologyIRI
	fetcher.PredicateIRI = cfg.Source.DatePredicate

	orch := &syncer.Orchestrator{
		Fetcher: fetcher,
		Store: &snapshot.Store{
			Root:         repo.Root(),
			Dir:          cfg.Repo.SnapshotDir,
			BaseName:     cfg.Repo.BaseName,
			OntologyIRI:  cfg.Source.OntologyIRI,
			PredicateIRI: cfg.Source.DatePredicate,
			Logger:       logger,
		},
		Repo: repo,
		Detector: change.Detector{
			OntologyIRI:  cfg.Source.OntologyIRI,
			PredicateIRI: cfg.Source.DatePredicate,
		},
		Notifier:      notifier,
		Metrics:       syncer.NewMetrics(reg),
		Author:        git.Author{Name: cfg.Repo.AuthorName, Email: cfg.Repo.AuthorEmail},
		Source:        cfg.Source.URL,
		Pull:          cfg.Repo.PullEnabled(),
		Push:          cfg.Repo.PushEnabled(),
		CommitMessage: cfg.Repo.CommitMessage,
		Logger:        logger,
	}

	if opts.schedule {
		sched := &syncer.Scheduler{
			Interval:     cfg.Sync.Interval,
			CycleTimeout: cfg.Sync.CycleTimeout,
			Run:          orch.SyncOnce,
			Logger:       logger,
		}
		return sched.Start(ctx)
	}

	// a single cycle also finishes even when interrupted
	cycleCtx := context.WithoutCancel(ctx)
	if cfg.Sync.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(cycleCtx, cfg.Sync.CycleTimeout)
		defer cancel()
	}
	out := orch.SyncOnce(cycleCtx)
	fmt.Fprintln(cmd.OutOrStdout(), out.String())
	if out.Kind == syncer.Failed {
		return fmt.Errorf("sync failed: %s", out.Reason)
	}
	return nil
}

// openWorkingCopy opens Repo.Path, cloning Repo.URL into it first when it
// is not a working copy yet.
func openWorkingCopy(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*git.Repository, error) {
	repo, err := git.Open(cfg.Repo.Path, logger)
	if err == nil {
		return repo, nil
	}
	if cfg.Repo.URL == "" {
		return nil, fmt.Errorf("open working copy %s: %w", cfg.Repo.Path, err)
	}
	return git.Clone(ctx, cfg.Repo.URL, cfg.Repo.Path, logger)
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	if cfg.Notify.NATSURL == "" {
		return notify.Nop{}, nil
	}
	n, err := notify.NewNATS(cfg.Notify.NATSURL, cfg.Notify.Subject, logger)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// serveMetrics serves reg on addr until the returned stop function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
