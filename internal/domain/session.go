package domain

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"covfold.dev/pkg/covfold/internal/adapter"
	m "covfold.dev/pkg/covfold/internal/model"
)

// SessionState names the lifecycle phase a session is in.
type SessionState int

// Session lifecycle phases. Collection events are only legal while
// Collecting; RunEnd walks Merging and Reporting before returning to
// Idle.
const (
	StateIdle SessionState = iota
	StateCollecting
	StateMerging
	StateReporting
)

func (s SessionState) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateMerging:
		return "merging"
	case StateReporting:
		return "reporting"
	default:
		return "idle"
	}
}

// Renderer receives the final summary for display.
type Renderer interface {
	RenderSummary(ctx context.Context, summary m.RunSummary) error
}

// Session drives one coverage run from the first collection event to
// the final report. It owns the only mutable shared state of a run,
// the accumulated coverage map, and serializes every change to it.
type Session interface {
	// RunStart resets the session and moves it to Collecting. Unless
	// the run is configured fresh, a persisted snapshot seeds the map.
	RunStart(ctx context.Context) error

	// CollectEvent absorbs one event: raw records are converted,
	// fragments filtered and merged, the snapshot flushed. The merge
	// has completed when CollectEvent returns.
	CollectEvent(ctx context.Context, event m.CollectionEvent) error

	// TestEnd records the coverage a finished test produced. It is
	// CollectEvent under the name test runners call it by.
	TestEnd(ctx context.Context, event m.CollectionEvent) error

	// RunEnd drains the remaining coverage sources, persists the final
	// map and summary, hands the summary to the renderer and returns
	// the final map.
	RunEnd(ctx context.Context) (m.CoverageMap, error)

	// Reset discards all accumulated state, including the persisted
	// snapshot, for an interactive re-run.
	Reset(ctx context.Context) error

	// State reports the current lifecycle phase.
	State() SessionState
}

// Snapshot and summary artifacts inside the snapshot dir.
const (
	SnapshotFileName = "coverage-final.json"
	SummaryFileName  = "coverage-summary.yaml"
)

type session struct {
	adapter.SnapshotStore
	adapter.BackendClient
	adapter.DebugSink
	Converter
	Merger

	cfg      m.RunConfig
	counters CounterStream
	renderer Renderer

	mu       sync.Mutex
	state    SessionState
	coverage m.CoverageMap
	events   int
}

// NewSession creates a Session with the provided collaborators. The
// counter source and renderer are optional and may be nil; everything
// else is required.
func NewSession(
	cfg m.RunConfig,
	store adapter.SnapshotStore,
	backend adapter.BackendClient,
	sink adapter.DebugSink,
	converter Converter,
	merger Merger,
	source CounterSource,
	renderer Renderer,
) Session {
	s := &session{
		SnapshotStore: store,
		BackendClient: backend,
		DebugSink:     sink,
		Converter:     converter,
		Merger:        merger,
		cfg:           cfg,
		renderer:      renderer,
		coverage:      m.CoverageMap{},
	}

	if source != nil {
		s.counters = NewCounterStream(source, cfg.PollInterval, s.collectCounters)
	}

	return s
}

func (s *session) RunStart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("cannot start a run in %s state", s.state)
	}

	s.ResetCache()
	s.events = 0
	s.coverage = m.CoverageMap{}

	if !s.cfg.Fresh {
		s.coverage = s.LoadOrEmpty(s.snapshotPath())
	}

	if s.counters != nil {
		s.counters.Start(ctx)
	}

	s.state = StateCollecting
	slog.Debug("Coverage run started", "seededFiles", len(s.coverage), "fresh", s.cfg.Fresh)

	return nil
}

func (s *session) CollectEvent(ctx context.Context, event m.CollectionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCollecting {
		return fmt.Errorf("cannot collect event %q in %s state", event.Label, s.state)
	}

	s.absorb(ctx, event)

	return nil
}

func (s *session) TestEnd(ctx context.Context, event m.CollectionEvent) error {
	return s.CollectEvent(ctx, event)
}

func (s *session) RunEnd(ctx context.Context) (m.CoverageMap, error) {
	// Stopping first lets the final counter drain land as a regular
	// collection event.
	if s.counters != nil {
		s.counters.Stop()
	}

	if err := s.transition(StateCollecting, StateMerging); err != nil {
		return nil, err
	}

	s.collectSSRDump(ctx)

	if err := s.collectBackends(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.state = StateReporting
	coverage := s.coverage
	s.mu.Unlock()

	if err := s.Save(s.snapshotPath(), coverage); err != nil {
		return nil, fmt.Errorf("persist final coverage: %w", err)
	}

	summary := Summarize(coverage)
	if err := s.WriteSummary(s.summaryPath(), summary); err != nil {
		return nil, fmt.Errorf("write run summary: %w", err)
	}

	if s.renderer != nil {
		if err := s.renderer.RenderSummary(ctx, summary); err != nil {
			return nil, fmt.Errorf("render summary: %w", err)
		}
	}

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	slog.Debug("Coverage run ended", "files", len(coverage))

	return coverage, nil
}

func (s *session) Reset(_ context.Context) error {
	if s.counters != nil {
		s.counters.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.coverage = m.CoverageMap{}
	s.events = 0
	s.ResetCache()

	if err := s.Remove(s.snapshotPath()); err != nil {
		slog.Warn("Failed to remove persisted snapshot", "path", s.snapshotPath(), "error", err)
	}

	s.state = StateIdle
	slog.Debug("Coverage session reset")

	return nil
}

func (s *session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// absorb runs one event through convert, filter, merge, flush and dump.
// Callers hold s.mu.
func (s *session) absorb(ctx context.Context, event m.CollectionEvent) {
	fragment := event.Fragment
	if fragment == nil {
		fragment = m.CoverageMap{}
	}

	if len(event.Raw) > 0 {
		s.Merge(fragment, s.ConvertBatch(ctx, event.Raw, event.RootHint))
	}

	filtered := Filter(fragment, s.cfg.Exclusion())
	stats := s.Merge(s.coverage, filtered)
	s.flushLocked()

	s.events++
	s.DumpEvent(s.events, event.Label, event.Raw, filtered)

	slog.Debug("Absorbed collection event",
		"label", event.Label,
		"files", len(filtered),
		"added", stats.FilesAdded,
		"merged", stats.FilesMerged,
	)
}

// collectCounters is the sink behind the live counter stream.
func (s *session) collectCounters(ctx context.Context, batch []m.RawScriptCoverage) {
	if err := s.CollectEvent(ctx, m.CollectionEvent{Label: "live-counters", Raw: batch, RootHint: s.cfg.WorkDir}); err != nil {
		slog.Warn("Dropping live counter batch", "error", err)
	}
}

// collectSSRDump absorbs the raw dump a server-side render left behind,
// when one is configured. An unreadable dump is skipped.
func (s *session) collectSSRDump(ctx context.Context) {
	if s.cfg.SSRDump == "" {
		return
	}

	raw, err := s.LoadRaw(s.cfg.SSRDump)
	if err != nil {
		slog.Warn("Skipping SSR coverage dump", "path", s.cfg.SSRDump, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.absorb(ctx, m.CollectionEvent{Label: "ssr-dump", Raw: raw, RootHint: s.cfg.WorkDir})
}

// collectBackends fetches every configured endpoint concurrently and
// absorbs whatever coverage they report. Failures are skipped unless
// backend coverage is mandatory.
func (s *session) collectBackends(ctx context.Context) error {
	if len(s.cfg.API) == 0 {
		return nil
	}

	var group errgroup.Group

	for _, endpoint := range s.cfg.API {
		group.Go(func() error {
			fragment, err := s.fetchBackend(ctx, endpoint)
			if err != nil {
				return err
			}

			if fragment == nil {
				return nil
			}

			s.mu.Lock()
			defer s.mu.Unlock()

			s.absorb(ctx, m.CollectionEvent{Label: "backend-" + endpoint, Fragment: fragment})

			return nil
		})
	}

	return group.Wait()
}

// fetchBackend requests one endpoint with the configured timeout. A nil
// map with a nil error means the endpoint had nothing for us and the
// run may proceed.
func (s *session) fetchBackend(ctx context.Context, endpoint string) (m.CoverageMap, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	fragment, ok, err := s.FetchCoverage(fetchCtx, endpoint)
	if err != nil {
		if s.cfg.ExpectBackendCoverage {
			return nil, fmt.Errorf("mandatory backend coverage from %s: %w", endpoint, err)
		}

		slog.Warn("Skipping backend coverage", "endpoint", endpoint, "error", err)

		return nil, nil
	}

	if !ok {
		if s.cfg.ExpectBackendCoverage {
			return nil, fmt.Errorf("mandatory backend coverage from %s: response carries no coverage", endpoint)
		}

		slog.Debug("Backend returned no coverage", "endpoint", endpoint)

		return nil, nil
	}

	return fragment, nil
}

// flushLocked persists the accumulated map after a merge. A failed
// flush is logged and the run continues; the counts stay in memory for
// the next flush. Callers hold s.mu.
func (s *session) flushLocked() {
	if err := s.Save(s.snapshotPath(), s.coverage); err != nil {
		slog.Error("Failed to flush coverage snapshot", "path", s.snapshotPath(), "error", err)
	}
}

func (s *session) transition(from, to SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != from {
		return fmt.Errorf("cannot move to %s state from %s", to, s.state)
	}

	s.state = to

	return nil
}

func (s *session) snapshotPath() m.Path {
	return m.Path(filepath.Join(string(s.cfg.SnapshotDir), SnapshotFileName))
}

func (s *session) summaryPath() m.Path {
	return m.Path(filepath.Join(string(s.cfg.SnapshotDir), SummaryFileName))
}
