package history

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/c360studio/ontowatch/diff"
	"github.com/c360studio/ontowatch/snapshot"
	"github.com/c360studio/ontowatch/tools/git"
	"github.com/c360studio/ontowatch/vocabulary/bibframe"
)

// RevisionAccessor reads revisions of a working copy. *git.Repository
// satisfies it.
type RevisionAccessor interface {
	Log(ctx context.Context, path string) ([]git.LogEntry, error)
	Checkout(ctx context.Context, rev string) error
	ReadFile(path string) ([]byte, error)
}

var _ RevisionAccessor = (*git.Repository)(nil)

// Transition is the change between two consecutive sampled days.
type Transition struct {
	Date         string
	PreviousDate string
	CommitID     string
	Result       diff.Result
	// Size is the number of statements on Date.
	Size int

	Previous *snapshot.Snapshot
	Current  *snapshot.Snapshot
}

// Sampler walks the daily revisions of one file.
type Sampler struct {
	Source       RevisionAccessor
	Path         string
	OntologyIRI  string
	PredicateIRI string
	Logger       *slog.Logger
}

// NewSampler returns a sampler for path using the BIBFRAME defaults.
func NewSampler(source RevisionAccessor, path string, logger *slog.Logger) *Sampler {
	return &Sampler{
		Source:       source,
		Path:         path,
		OntologyIRI:  bibframe.OntologyIRI,
		PredicateIRI: bibframe.DCTermsModified,
		Logger:       logger,
	}
}

// Transitions returns the day-to-day transitions in ascending date order.
// The first day only seeds the comparison, so a log with fewer than two days
// yields nothing. Each call re-reads the log.
//
// A day whose revision cannot be checked out or read is yielded with its
// error. A consumer that keeps iterating skips that day and the next
// transition is measured against the last day that was captured.
func (s *Sampler) Transitions(ctx context.Context) iter.Seq2[Transition, error] {
	return func(yield func(Transition, error) bool) {
		entries, err := s.Source.Log(ctx, s.Path)
		if err != nil {
			yield(Transition{}, fmt.Errorf("read log of %s: %w", s.Path, err))
			return
		}
		days := ReduceByDay(FromLog(entries))
		s.logger().Info("Sampling history", "path", s.Path, "commits", len(entries), "days", len(days))

		var previous *snapshot.Snapshot
		var previousDate string
		for _, day := range days {
			failed := Transition{Date: day.Date, CommitID: day.Commit.ID}
			if err := ctx.Err(); err != nil {
				yield(failed, err)
				return
			}

			s.logger().Info("Looking at commit", "date", day.Date, "commit", day.Commit.ID)
			current, err := s.capture(ctx, day)
			if err != nil {
				if !yield(failed, err) {
					return
				}
				continue
			}

			if previous == nil {
				previous, previousDate = current, day.Date
				continue
			}

			t := Transition{
				Date:         day.Date,
				PreviousDate: previousDate,
				CommitID:     day.Commit.ID,
				Result:       diff.Compute(previous, current),
				Size:         current.Len(),
				Previous:     previous,
				Current:      current,
			}
			previous, previousDate = current, day.Date
			if !yield(t, nil) {
				return
			}
		}
	}
}

func (s *Sampler) capture(ctx context.Context, day DayCommit) (*snapshot.Snapshot, error) {
	if err := s.Source.Checkout(ctx, day.Commit.ID); err != nil {
		return nil, fmt.Errorf("%w: checkout %s (%s): %w", snapshot.ErrSourceUnavailable, day.Commit.ID, day.Date, err)
	}
	data, err := s.Source.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s at %s: %w", snapshot.ErrSourceUnavailable, s.Path, day.Commit.ID, err)
	}
	return snapshot.FromNTriples(data, day.Commit.Authored, s.OntologyIRI, s.PredicateIRI), nil
}

func (s *Sampler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Collect feeds every transition to fn and stops at the first error, either
// from sampling or from fn.
func Collect(ctx context.Context, s *Sampler, fn func(Transition) error) error {
	for t, err := range s.Transitions(ctx) {
		if err != nil {
			if t.Date != "" {
				return fmt.Errorf("sample %s: %w", t.Date, err)
			}
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}
