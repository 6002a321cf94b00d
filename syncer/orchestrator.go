// Package syncer keeps a working copy's stored ontology snapshot in step with
// the published document.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/knakk/rdf"

	"github.com/c360studio/ontowatch/change"
	"github.com/c360studio/ontowatch/fetch"
	"github.com/c360studio/ontowatch/notify"
	"github.com/c360studio/ontowatch/snapshot"
	"github.com/c360studio/ontowatch/tools/git"
)

// Kind classifies a sync cycle.
type Kind int

const (
	NoChange Kind = iota
	Updated
	Failed
)

func (k Kind) String() string {
	switch k {
	case NoChange:
		return "no_change"
	case Updated:
		return "updated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of one sync cycle. Timestamp is the detected
// modification date for Updated; Reason and Err describe a Failed cycle.
type Outcome struct {
	Kind      Kind
	Timestamp string
	Commit    string
	Reason    string
	Err       error
	RunID     string
}

func (o Outcome) String() string {
	switch o.Kind {
	case Updated:
		return fmt.Sprintf("updated(%s)", o.Timestamp)
	case Failed:
		return fmt.Sprintf("failed(%s)", o.Reason)
	default:
		return o.Kind.String()
	}
}

// Fetcher retrieves the published document.
type Fetcher interface {
	Fetch(ctx context.Context) (*fetch.Document, error)
}

// Store is the persisted snapshot in the working copy.
type Store interface {
	Load(ctx context.Context) (*snapshot.Snapshot, error)
	Write(ctx context.Context, triples []rdf.Triple) error
	Paths() []string
}

// Repository is the working copy the snapshot is committed to.
type Repository interface {
	Root() string
	Pull(ctx context.Context) error
	Stage(ctx context.Context, paths ...string) error
	HasStagedChanges(ctx context.Context, paths ...string) (bool, error)
	Commit(ctx context.Context, author git.Author, message string, paths ...string) (string, error)
	Push(ctx context.Context) error
	Ahead(ctx context.Context) (int, error)
	Head(ctx context.Context) (string, error)
}

var (
	_ Fetcher    = (*fetch.Fetcher)(nil)
	_ Store      = (*snapshot.Store)(nil)
	_ Repository = (*git.Repository)(nil)
)

// Orchestrator runs sync cycles against one working copy.
type Orchestrator struct {
	Fetcher  Fetcher
	Store    Store
	Repo     Repository
	Detector change.Detector
	Notifier notify.Notifier
	Metrics  *Metrics
	Author   git.Author
	Source   string

	// Pull fast-forwards the working copy before each cycle.
	Pull bool
	// Push publishes the commit after each update.
	Push bool
	// CommitMessage is a format string receiving the detected timestamp.
	CommitMessage string

	Logger *slog.Logger
}

// DefaultCommitMessage is used when CommitMessage is empty.
const DefaultCommitMessage = "Update ontology snapshot to %s"

// SyncOnce runs one cycle: fetch, compare with the stored snapshot and, on
// change, rewrite the stored files, commit, push and notify. It never
// returns an error; failures are reported as a Failed outcome. Nothing is
// committed unless the fetch and the write succeeded. A commit left unpushed
// by an earlier cycle is pushed when nothing new was found.
func (o *Orchestrator) SyncOnce(ctx context.Context) Outcome {
	start := time.Now()
	runID := uuid.NewString()
	logger := o.logger().With("run_id", runID)

	outcome, statements := o.run(ctx, logger)
	outcome.RunID = runID
	o.Metrics.observe(outcome, time.Since(start), statements)

	switch outcome.Kind {
	case Failed:
		logger.Error("Sync cycle failed", "reason", outcome.Reason, "error", outcome.Err, "duration", time.Since(start))
	case Updated:
		logger.Info("Ontology updated", "timestamp", outcome.Timestamp, "commit", outcome.Commit, "duration", time.Since(start))
	default:
		logger.Info("No change", "duration", time.Since(start))
	}
	return outcome
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger) (Outcome, int) {
	lock := newWorkingCopyLock(o.Repo.Root())
	if err := lock.Lock(); err != nil {
		if errors.Is(err, ErrLocked) {
			return Outcome{Kind: Failed, Reason: err.Error(), Err: err}, 0
		}
		return failed("lock working copy", err), 0
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("Failed to release working copy lock", "error", err)
		}
	}()

	if o.Pull {
		if err := o.Repo.Pull(ctx); err != nil {
			return failed("pull", err), 0
		}
	}

	doc, err := o.Fetcher.Fetch(ctx)
	if err != nil {
		return failed("fetch", err), 0
	}
	statements := doc.Snapshot.Len()

	stored, err := o.Store.Load(ctx)
	if err != nil {
		return failed("load stored snapshot", err), statements
	}

	decision, err := o.Detector.HasChanged(stored, doc.Snapshot)
	if err != nil {
		return failed("detect change", err), statements
	}
	logger.Debug("Compared declared dates",
		"size", humanize.Bytes(uint64(doc.Bytes)),
		"stored", o.Detector.StoredDate(stored).String(),
		"fetched", doc.Snapshot.Declared.String(),
		"changed", decision.Changed)
	if !decision.Changed {
		return o.publishPending(ctx, logger, doc.Snapshot.Declared.Value), statements
	}

	paths := o.Store.Paths()
	if err := o.Store.Write(ctx, doc.Triples); err != nil {
		return failed("write snapshot", err), statements
	}
	if err := o.Repo.Stage(ctx, paths...); err != nil {
		return failed("stage", err), statements
	}
	staged, err := o.Repo.HasStagedChanges(ctx, paths...)
	if err != nil {
		return failed("stage", err), statements
	}
	if !staged {
		logger.Info("Stored files already match the fetched document", "timestamp", decision.Timestamp)
		return o.publishPending(ctx, logger, decision.Timestamp), statements
	}

	commit, err := o.Repo.Commit(ctx, o.Author, fmt.Sprintf(o.commitMessage(), decision.Timestamp), paths...)
	if err != nil {
		return failed("commit", err), statements
	}
	if o.Push {
		if err := o.Repo.Push(ctx); err != nil {
			return failed("push", err), statements
		}
	}

	o.notify(ctx, logger, notify.Event{
		Timestamp:  decision.Timestamp,
		Commit:     commit,
		Source:     o.Source,
		DetectedAt: time.Now().UTC(),
	})

	return Outcome{Kind: Updated, Timestamp: decision.Timestamp, Commit: commit}, statements
}

// publishPending pushes snapshot commits an earlier cycle committed but
// failed to push. With nothing unpushed, or pushing disabled, the cycle is
// NoChange; otherwise the push completes the earlier update and the event is
// sent now.
func (o *Orchestrator) publishPending(ctx context.Context, logger *slog.Logger, timestamp string) Outcome {
	if !o.Push {
		return Outcome{Kind: NoChange}
	}
	ahead, err := o.Repo.Ahead(ctx)
	if err != nil {
		return failed("check unpushed commits", err)
	}
	if ahead == 0 {
		return Outcome{Kind: NoChange}
	}

	logger.Info("Pushing unpublished commits", "count", ahead)
	if err := o.Repo.Push(ctx); err != nil {
		return failed("push", err)
	}
	commit, err := o.Repo.Head(ctx)
	if err != nil {
		return failed("push", err)
	}

	o.notify(ctx, logger, notify.Event{
		Timestamp:  timestamp,
		Commit:     commit,
		Source:     o.Source,
		DetectedAt: time.Now().UTC(),
	})
	return Outcome{Kind: Updated, Timestamp: timestamp, Commit: commit}
}

// notify delivers the update event. Failures do not change the outcome.
func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, ev notify.Event) {
	if o.Notifier == nil {
		return
	}
	if err := o.Notifier.Notify(ctx, ev); err != nil {
		logger.Warn("Failed to publish update event", "error", err)
	}
}

func (o *Orchestrator) commitMessage() string {
	if o.CommitMessage != "" {
		return o.CommitMessage
	}
	return DefaultCommitMessage
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func failed(reason string, err error) Outcome {
	return Outcome{Kind: Failed, Reason: fmt.Sprintf("%s: %v", reason, err), Err: err}
}
