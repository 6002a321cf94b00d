package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/knakk/rdf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ontowatch/change"
	"github.com/c360studio/ontowatch/export"
	"github.com/c360studio/ontowatch/fetch"
	"github.com/c360studio/ontowatch/notify"
	"github.com/c360studio/ontowatch/snapshot"
	"github.com/c360studio/ontowatch/tools/git"
	"github.com/c360studio/ontowatch/vocabulary/bibframe"
)

var testTime = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

func document(t *testing.T, modified string) *fetch.Document {
	t.Helper()
	ttl := `<http://id.loc.gov/ontologies/bibframe/Work> <http://www.w3.org/2000/01/rdf-schema#label> "Work" .` + "\n"
	if modified != "" {
		ttl += fmt.Sprintf(`<http://id.loc.gov/ontologies/bibframe/> <http://purl.org/dc/terms/modified> "%s" .`, modified) + "\n"
	}
	triples, err := export.Decode(strings.NewReader(ttl), export.FormatTurtle)
	require.NoError(t, err)
	snap, err := snapshot.FromTriples(triples, testTime, bibframe.OntologyIRI, bibframe.DCTermsModified)
	require.NoError(t, err)
	return &fetch.Document{Triples: triples, Snapshot: snap, Bytes: len(ttl)}
}

func storedSnapshot(t *testing.T, modified string) *snapshot.Snapshot {
	t.Helper()
	return document(t, modified).Snapshot
}

type fakeFetcher struct {
	doc *fetch.Document
	err error
}

func (f *fakeFetcher) Fetch(context.Context) (*fetch.Document, error) { return f.doc, f.err }

type fakeStore struct {
	stored   *snapshot.Snapshot
	loadErr  error
	writeErr error
	writes   int
}

func (s *fakeStore) Load(context.Context) (*snapshot.Snapshot, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.stored == nil {
		return snapshot.Empty(testTime), nil
	}
	return s.stored, nil
}

func (s *fakeStore) Write(_ context.Context, _ []rdf.Triple) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes++
	return nil
}

func (s *fakeStore) Paths() []string { return []string{"bf/b.rdf", "bf/b.nt", "bf/b.ttl"} }

type fakeRepo struct {
	root        string
	calls       []string
	failOn      string
	nothingNew  bool
	ahead       int
	message     string
	commitPaths []string
}

func newFakeRepo(t *testing.T) *fakeRepo {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
	return &fakeRepo{root: root}
}

func (r *fakeRepo) step(name string) error {
	r.calls = append(r.calls, name)
	if r.failOn == name {
		return fmt.Errorf("%w: %s failed", git.ErrRevisionControl, name)
	}
	return nil
}

func (r *fakeRepo) Root() string                          { return r.root }
func (r *fakeRepo) Pull(context.Context) error             { return r.step("pull") }
func (r *fakeRepo) Push(context.Context) error             { return r.step("push") }
func (r *fakeRepo) Stage(context.Context, ...string) error { return r.step("stage") }

func (r *fakeRepo) HasStagedChanges(context.Context, ...string) (bool, error) {
	return !r.nothingNew, r.step("staged")
}

func (r *fakeRepo) Commit(_ context.Context, _ git.Author, message string, paths ...string) (string, error) {
	r.message = message
	r.commitPaths = paths
	return "abc123", r.step("commit")
}

func (r *fakeRepo) Ahead(context.Context) (int, error)   { return r.ahead, r.step("ahead") }
func (r *fakeRepo) Head(context.Context) (string, error) { return "abc123", r.step("head") }

type fakeNotifier struct {
	events []notify.Event
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.events = append(n.events, ev)
	return n.err
}

func (n *fakeNotifier) Close() error { return nil }

type fixture struct {
	fetcher  *fakeFetcher
	store    *fakeStore
	repo     *fakeRepo
	notifier *fakeNotifier
	metrics  *Metrics
	orch     *Orchestrator
}

func newFixture(t *testing.T, stored *snapshot.Snapshot, fetched *fetch.Document) *fixture {
	f := &fixture{
		fetcher:  &fakeFetcher{doc: fetched},
		store:    &fakeStore{stored: stored},
		repo:     newFakeRepo(t),
		notifier: &fakeNotifier{},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	f.orch = &Orchestrator{
		Fetcher:  f.fetcher,
		Store:    f.store,
		Repo:     f.repo,
		Detector: change.NewDetector(),
		Notifier: f.notifier,
		Metrics:  f.metrics,
		Author:   git.Author{Name: "Sync Bot", Email: "bot@example.com"},
		Source:   bibframe.SourceURL,
		Pull:     true,
		Push:     true,
	}
	return f
}

func TestSyncOnceNoChange(t *testing.T) {
	f := newFixture(t, storedSnapshot(t, "2021-01-01"), document(t, "2021-01-01"))

	out := f.orch.SyncOnce(context.Background())

	assert.Equal(t, NoChange, out.Kind)
	assert.Empty(t, out.Timestamp)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, 0, f.store.writes)
	assert.Equal(t, []string{"pull", "ahead"}, f.repo.calls)
	assert.Empty(t, f.notifier.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues("no_change")))
}

func TestSyncOnceUpdated(t *testing.T) {
	f := newFixture(t, storedSnapshot(t, "2021-01-01"), document(t, "2021-02-01"))

	out := f.orch.SyncOnce(context.Background())

	require.Equal(t, Updated, out.Kind, out.Reason)
	assert.Equal(t, "2021-02-01", out.Timestamp)
	assert.Equal(t, "abc123", out.Commit)
	assert.Equal(t, 1, f.store.writes)
	assert.Equal(t, []string{"pull", "stage", "staged", "commit", "push"}, f.repo.calls)
	assert.Contains(t, f.repo.message, "2021-02-01")
	assert.Equal(t, f.store.Paths(), f.repo.commitPaths)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "2021-02-01", f.notifier.events[0].Timestamp)
	assert.Equal(t, "abc123", f.notifier.events[0].Commit)
	assert.Equal(t, bibframe.SourceURL, f.notifier.events[0].Source)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues("updated")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Statements))
	assert.Greater(t, testutil.ToFloat64(f.metrics.LastUpdate), 0.0)
}

func TestSyncOnceFallbackDate(t *testing.T) {
	// stored copy declares its date on a different subject
	stored := snapshot.New([]snapshot.Statement{
		`<http://example.org/other> <http://purl.org/dc/terms/modified> "2020-06-01" .`,
	}, testTime, snapshot.NotFound)
	f := newFixture(t, stored, document(t, "2020-07-01"))

	out := f.orch.SyncOnce(context.Background())
	require.Equal(t, Updated, out.Kind, out.Reason)
	assert.Equal(t, "2020-07-01", out.Timestamp)
}

func TestSyncOnceFirstRun(t *testing.T) {
	f := newFixture(t, nil, document(t, "2021-01-01"))

	out := f.orch.SyncOnce(context.Background())
	require.Equal(t, Updated, out.Kind, out.Reason)
	assert.Equal(t, 1, f.store.writes)
}

func TestSyncOnceFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *fixture)
		wantReason string
		wantErr    error
		wantWrites int
		wantCalls  []string
	}{
		{
			name:       "pull",
			setup:      func(f *fixture) { f.repo.failOn = "pull" },
			wantReason: "pull",
			wantErr:    git.ErrRevisionControl,
			wantCalls:  []string{"pull"},
		},
		{
			name: "fetch",
			setup: func(f *fixture) {
				f.fetcher.err = fmt.Errorf("%w: timeout", snapshot.ErrSourceUnavailable)
			},
			wantReason: "fetch",
			wantErr:    snapshot.ErrSourceUnavailable,
			wantCalls:  []string{"pull"},
		},
		{
			name:       "malformed fetched document",
			setup:      func(f *fixture) { f.fetcher.doc = document(t, "") },
			wantReason: "detect change",
			wantErr:    snapshot.ErrMalformedSource,
			wantCalls:  []string{"pull"},
		},
		{
			name:       "load",
			setup:      func(f *fixture) { f.store.loadErr = fmt.Errorf("%w: unreadable", snapshot.ErrSourceUnavailable) },
			wantReason: "load stored snapshot",
			wantErr:    snapshot.ErrSourceUnavailable,
			wantCalls:  []string{"pull"},
		},
		{
			name:       "write",
			setup:      func(f *fixture) { f.store.writeErr = errors.New("disk full") },
			wantReason: "write snapshot",
			wantCalls:  []string{"pull"},
		},
		{
			name:       "commit",
			setup:      func(f *fixture) { f.repo.failOn = "commit" },
			wantReason: "commit",
			wantErr:    git.ErrRevisionControl,
			wantWrites: 1,
			wantCalls:  []string{"pull", "stage", "staged", "commit"},
		},
		{
			name:       "push",
			setup:      func(f *fixture) { f.repo.failOn = "push" },
			wantReason: "push",
			wantErr:    git.ErrRevisionControl,
			wantWrites: 1,
			wantCalls:  []string{"pull", "stage", "staged", "commit", "push"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, storedSnapshot(t, "2021-01-01"), document(t, "2021-02-01"))
			tt.setup(f)

			out := f.orch.SyncOnce(context.Background())

			assert.Equal(t, Failed, out.Kind)
			assert.True(t, strings.HasPrefix(out.Reason, tt.wantReason), out.Reason)
			if tt.wantErr != nil {
				assert.ErrorIs(t, out.Err, tt.wantErr)
			}
			assert.Equal(t, tt.wantWrites, f.store.writes)
			assert.Equal(t, tt.wantCalls, f.repo.calls)
			assert.Empty(t, f.notifier.events)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues("failed")))
		})
	}
}

func TestSyncOnceNotifyFailureKeepsUpdate(t *testing.T) {
	f := newFixture(t, storedSnapshot(t, "2021-01-01"), document(t, "2021-02-01"))
	f.notifier.err = errors.New("nats down")

	out := f.orch.SyncOnce(context.Background())
	assert.Equal(t, Updated, out.Kind)
}

func TestSyncOnceNothingStaged(t *testing.T) {
	f := newFixture(t, storedSnapshot(t, "2021-01-01"), document(t, "2021-02-01"))
	f.repo.nothingNew = true

	out := f.orch.SyncOnce(context.Background())
	assert.Equal(t, NoChange, out.Kind)
	assert.NotContains(t, f.repo.calls, "commit")
}

func TestSyncOncePushesPendingCommit(t *testing.T) {
	f := newFixture(t, storedSnapshot(t, "2021-01-01"), document(t, "2021-01-01"))
	f.repo.ahead = 1

	out := f.orch.SyncOnce(context.Background())

	require.Equal(t, Updated, out.Kind, out.Reason)
	assert.Equal(t, "2021-01-01", out.Timestamp)
	assert.Equal(t, "abc123", out.Commit)
	assert.Equal(t, 0, f.store.writes)
	assert.Equal(t, []string{"pull", "ahead", "push", "head"}, f.repo.calls)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "2021-01-01", f.notifier.events[0].Timestamp)
}

func TestSyncOncePendingPushFails(t *testing.T) {
	f := newFixture(t, storedSnapshot(t, "2021-01-01"), document(t, "2021-01-01"))
	f.repo.ahead = 2
	f.repo.failOn = "push"

	out := f.orch.SyncOnce(context.Background())

	assert.Equal(t, Failed, out.Kind)
	assert.True(t, strings.HasPrefix(out.Reason, "push"), out.Reason)
	assert.ErrorIs(t, out.Err, git.ErrRevisionControl)
	assert.Empty(t, f.notifier.events)
}

func TestSyncOnceNothingUnpushedWithoutPush(t *testing.T) {
	f := newFixture(t, storedSnapshot(t, "2021-01-01"), document(t, "2021-01-01"))
	f.orch.Push = false
	f.repo.ahead = 1

	out := f.orch.SyncOnce(context.Background())
	assert.Equal(t, NoChange, out.Kind)
	assert.NotContains(t, f.repo.calls, "ahead")
}

func TestSyncOnceLocked(t *testing.T) {
	f := newFixture(t, storedSnapshot(t, "2021-01-01"), document(t, "2021-02-01"))

	held := newWorkingCopyLock(f.repo.root)
	require.NoError(t, held.Lock())
	defer held.Unlock()

	out := f.orch.SyncOnce(context.Background())
	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, "working copy locked", out.Reason)
	assert.ErrorIs(t, out.Err, ErrLocked)
	assert.Empty(t, f.repo.calls)
}

func TestSyncOnceReleasesLock(t *testing.T) {
	f := newFixture(t, storedSnapshot(t, "2021-01-01"), document(t, "2021-01-01"))

	f.orch.SyncOnce(context.Background())
	out := f.orch.SyncOnce(context.Background())
	assert.Equal(t, NoChange, out.Kind)

	_, err := os.Stat(filepath.Join(f.repo.root, ".git", lockFile))
	assert.True(t, os.IsNotExist(err))
}

func TestSyncOnceWithoutOptionalSteps(t *testing.T) {
	f := newFixture(t, storedSnapshot(t, "2021-01-01"), document(t, "2021-02-01"))
	f.orch.Pull = false
	f.orch.Push = false
	f.orch.Notifier = nil
	f.orch.Metrics = nil

	out := f.orch.SyncOnce(context.Background())
	assert.Equal(t, Updated, out.Kind)
	assert.Equal(t, []string{"stage", "staged", "commit"}, f.repo.calls)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "no_change", Outcome{Kind: NoChange}.String())
	assert.Equal(t, "updated(2021-01-01)", Outcome{Kind: Updated, Timestamp: "2021-01-01"}.String())
	assert.Equal(t, "failed(fetch: x)", Outcome{Kind: Failed, Reason: "fetch: x"}.String())
}
