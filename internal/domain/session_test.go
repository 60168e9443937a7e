package domain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"covfold.dev/pkg/covfold/internal/adapter"
	m "covfold.dev/pkg/covfold/internal/model"
)

// convertedFile is the shape the fake converter produces for every
// script: a single statement on line one.
func convertedFile(path m.Path, count int64) *m.FileCoverage {
	fc := m.NewFileCoverage(path)
	fc.StatementMap[0] = m.Range{Start: m.Position{Line: 1}, End: m.Position{Line: 1, Column: 10}}
	fc.S[0] = count

	return fc
}

type fakeConverter struct {
	mu     sync.Mutex
	resets int
}

func (f *fakeConverter) ConvertScript(_ context.Context, raw m.RawScriptCoverage, _ m.Path) m.CoverageMap {
	var count int64
	if len(raw.Functions) > 0 && len(raw.Functions[0].Ranges) > 0 {
		count = raw.Functions[0].Ranges[0].Count
	}

	path := m.Path(strings.TrimPrefix(raw.ScriptOrigin, "file://"))

	return m.CoverageMap{path: convertedFile(path, count)}
}

func (f *fakeConverter) ConvertBatch(ctx context.Context, batch []m.RawScriptCoverage, rootHint m.Path) m.CoverageMap {
	out := m.CoverageMap{}
	merger := NewMerger()

	for _, raw := range batch {
		merger.Merge(out, f.ConvertScript(ctx, raw, rootHint))
	}

	return out
}

func (f *fakeConverter) ResetCache() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resets++
}

func (f *fakeConverter) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.resets
}

type fakeRenderer struct {
	mu        sync.Mutex
	summaries []m.RunSummary
}

func (f *fakeRenderer) RenderSummary(_ context.Context, summary m.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.summaries = append(f.summaries, summary)

	return nil
}

func (f *fakeRenderer) received() []m.RunSummary {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]m.RunSummary{}, f.summaries...)
}

type sessionHarness struct {
	session  Session
	cfg      m.RunConfig
	conv     *fakeConverter
	renderer *fakeRenderer
}

func newSessionHarness(t *testing.T, mutate func(*m.RunConfig), source *fakeCounterSource) *sessionHarness {
	t.Helper()

	dir := t.TempDir()
	cfg := m.RunConfig{
		WorkDir:      m.Path(dir),
		SnapshotDir:  m.Path(filepath.Join(dir, ".covfold")),
		FetchTimeout: 2 * time.Second,
		PollInterval: time.Hour,
	}

	if mutate != nil {
		mutate(&cfg)
	}

	require.NoError(t, cfg.Validate())

	h := &sessionHarness{
		cfg:      cfg,
		conv:     &fakeConverter{},
		renderer: &fakeRenderer{},
	}

	var counterSource CounterSource
	if source != nil {
		counterSource = source
	}

	h.session = NewSession(
		cfg,
		adapter.NewJSONSnapshotStore(),
		adapter.NewHTTPBackendClient(cfg.FetchTimeout),
		adapter.NewFileDebugSink(cfg.DebugDir),
		h.conv,
		NewMerger(),
		counterSource,
		h.renderer,
	)

	return h
}

func (h *sessionHarness) snapshotFile() string {
	return filepath.Join(string(h.cfg.SnapshotDir), "coverage-final.json")
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newSessionHarness(t, nil, nil)

	require.Equal(t, StateIdle, h.session.State())
	require.NoError(t, h.session.RunStart(ctx))
	require.Equal(t, StateCollecting, h.session.State())

	require.NoError(t, h.session.TestEnd(ctx, m.CollectionEvent{
		Label: "adds numbers",
		Raw:   rawBatch("file:///work/src/app.js"),
	}))
	require.NoError(t, h.session.CollectEvent(ctx, m.CollectionEvent{
		Label: "adds negatives",
		Raw:   rawBatch("file:///work/src/app.js"),
	}))

	coverage, err := h.session.RunEnd(ctx)
	require.NoError(t, err)
	require.Equal(t, StateIdle, h.session.State())

	require.Equal(t, int64(2), coverage["/work/src/app.js"].S[0])

	summaries := h.renderer.received()
	require.Len(t, summaries, 1)
	require.Equal(t, m.Tally{Covered: 1, Total: 1}, summaries[0].Statements)

	require.FileExists(t, h.snapshotFile())
	require.FileExists(t, filepath.Join(string(h.cfg.SnapshotDir), "coverage-summary.yaml"))
}

func TestSessionRejectsEventsWhenIdle(t *testing.T) {
	h := newSessionHarness(t, nil, nil)

	err := h.session.CollectEvent(context.Background(), m.CollectionEvent{Label: "early"})
	require.ErrorContains(t, err, "idle")
}

func TestSessionRejectsDoubleStart(t *testing.T) {
	ctx := context.Background()
	h := newSessionHarness(t, nil, nil)

	require.NoError(t, h.session.RunStart(ctx))
	require.Error(t, h.session.RunStart(ctx))
}

func TestSessionSeedsFromPersistedSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newSessionHarness(t, nil, nil)

	store := adapter.NewJSONSnapshotStore()
	require.NoError(t, store.Save(m.Path(h.snapshotFile()), m.CoverageMap{
		"/work/src/app.js": convertedFile("/work/src/app.js", 5),
	}))

	require.NoError(t, h.session.RunStart(ctx))
	require.NoError(t, h.session.CollectEvent(ctx, m.CollectionEvent{
		Label: "next process",
		Raw:   rawBatch("file:///work/src/app.js"),
	}))

	coverage, err := h.session.RunEnd(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(6), coverage["/work/src/app.js"].S[0])
}

func TestSessionFreshRunIgnoresSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newSessionHarness(t, func(cfg *m.RunConfig) { cfg.Fresh = true }, nil)

	store := adapter.NewJSONSnapshotStore()
	require.NoError(t, store.Save(m.Path(h.snapshotFile()), m.CoverageMap{
		"/work/src/app.js": convertedFile("/work/src/app.js", 5),
	}))

	require.NoError(t, h.session.RunStart(ctx))
	require.NoError(t, h.session.CollectEvent(ctx, m.CollectionEvent{
		Label: "fresh",
		Raw:   rawBatch("file:///work/src/app.js"),
	}))

	coverage, err := h.session.RunEnd(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), coverage["/work/src/app.js"].S[0])
}

func TestSessionFiltersConfiguredPatterns(t *testing.T) {
	ctx := context.Background()
	h := newSessionHarness(t, func(cfg *m.RunConfig) {
		cfg.TestGlobs = []string{"**/*.spec.js"}
	}, nil)

	spec := m.Path(filepath.Join(string(h.cfg.WorkDir), "src", "app.spec.js"))
	app := m.Path(filepath.Join(string(h.cfg.WorkDir), "src", "app.js"))

	require.NoError(t, h.session.RunStart(ctx))
	require.NoError(t, h.session.CollectEvent(ctx, m.CollectionEvent{
		Label: "browser",
		Fragment: m.CoverageMap{
			spec: convertedFile(spec, 1),
			app:  convertedFile(app, 1),
		},
	}))

	coverage, err := h.session.RunEnd(ctx)
	require.NoError(t, err)
	require.Contains(t, coverage, app)
	require.NotContains(t, coverage, spec)
}

func backendPayload(t *testing.T, coverage m.CoverageMap) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, _ *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]m.CoverageMap{"coverage": coverage}))
	}
}

func TestSessionFetchesBackendCoverage(t *testing.T) {
	ctx := context.Background()
	api := m.Path("/work/src/api.js")

	server := httptest.NewServer(backendPayload(t, m.CoverageMap{api: convertedFile(api, 3)}))
	defer server.Close()

	h := newSessionHarness(t, func(cfg *m.RunConfig) { cfg.API = []string{server.URL} }, nil)

	require.NoError(t, h.session.RunStart(ctx))

	coverage, err := h.session.RunEnd(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), coverage[api].S[0])
}

func TestSessionSkipsFailingBackendByDefault(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	h := newSessionHarness(t, func(cfg *m.RunConfig) { cfg.API = []string{server.URL} }, nil)

	require.NoError(t, h.session.RunStart(ctx))

	coverage, err := h.session.RunEnd(ctx)
	require.NoError(t, err)
	require.Empty(t, coverage)
}

func TestSessionMandatoryBackendFailureNamesEndpoint(t *testing.T) {
	ctx := context.Background()

	t.Run("unreachable endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		h := newSessionHarness(t, func(cfg *m.RunConfig) {
			cfg.API = []string{server.URL}
			cfg.ExpectBackendCoverage = true
		}, nil)

		require.NoError(t, h.session.RunStart(ctx))

		_, err := h.session.RunEnd(ctx)
		require.ErrorContains(t, err, server.URL)
	})

	t.Run("response without coverage", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		h := newSessionHarness(t, func(cfg *m.RunConfig) {
			cfg.API = []string{server.URL}
			cfg.ExpectBackendCoverage = true
		}, nil)

		require.NoError(t, h.session.RunStart(ctx))

		_, err := h.session.RunEnd(ctx)
		require.ErrorContains(t, err, "no coverage")
		require.ErrorContains(t, err, server.URL)
	})
}

func TestSessionAbsorbsSSRDump(t *testing.T) {
	ctx := context.Background()

	dir := t.TempDir()
	dump, err := json.Marshal(rawBatch("file:///work/src/server.js"))
	require.NoError(t, err)

	dumpPath := filepath.Join(dir, "ssr.json")
	require.NoError(t, os.WriteFile(dumpPath, dump, 0o644))

	h := newSessionHarness(t, func(cfg *m.RunConfig) { cfg.SSRDump = m.Path(dumpPath) }, nil)

	require.NoError(t, h.session.RunStart(ctx))

	coverage, err := h.session.RunEnd(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), coverage["/work/src/server.js"].S[0])
}

func TestSessionDrainsCounterStreamAtRunEnd(t *testing.T) {
	ctx := context.Background()
	source := &fakeCounterSource{batches: [][]m.RawScriptCoverage{rawBatch("file:///work/src/live.js")}}

	// The hour-long poll interval never fires; the batch arrives through
	// the final drain.
	h := newSessionHarness(t, nil, source)

	require.NoError(t, h.session.RunStart(ctx))

	coverage, err := h.session.RunEnd(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), coverage["/work/src/live.js"].S[0])
}

func TestSessionResetDropsEverything(t *testing.T) {
	ctx := context.Background()
	h := newSessionHarness(t, nil, nil)

	require.NoError(t, h.session.RunStart(ctx))
	require.NoError(t, h.session.CollectEvent(ctx, m.CollectionEvent{
		Label: "before reset",
		Raw:   rawBatch("file:///work/src/app.js"),
	}))
	require.FileExists(t, h.snapshotFile())

	require.NoError(t, h.session.Reset(ctx))
	require.Equal(t, StateIdle, h.session.State())
	require.NoFileExists(t, h.snapshotFile())
	require.Equal(t, 2, h.conv.resetCount())

	require.NoError(t, h.session.RunStart(ctx))

	coverage, err := h.session.RunEnd(ctx)
	require.NoError(t, err)
	require.Empty(t, coverage)
}

func TestSessionWritesDebugDumps(t *testing.T) {
	ctx := context.Background()
	h := newSessionHarness(t, func(cfg *m.RunConfig) {
		cfg.DebugDir = m.Path(filepath.Join(string(cfg.WorkDir), "debug"))
	}, nil)

	require.NoError(t, h.session.RunStart(ctx))
	require.NoError(t, h.session.CollectEvent(ctx, m.CollectionEvent{
		Label: "adds numbers",
		Raw:   rawBatch("file:///work/src/app.js"),
	}))

	require.FileExists(t, filepath.Join(string(h.cfg.DebugDir), "001-adds-numbers.json"))
}

func TestSessionConcurrentEventsAllLand(t *testing.T) {
	ctx := context.Background()
	h := newSessionHarness(t, nil, nil)

	require.NoError(t, h.session.RunStart(ctx))

	const events = 16

	var wg sync.WaitGroup
	for range events {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = h.session.CollectEvent(ctx, m.CollectionEvent{
				Label: "parallel",
				Raw:   rawBatch("file:///work/src/app.js"),
			})
		}()
	}

	wg.Wait()

	coverage, err := h.session.RunEnd(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(events), coverage["/work/src/app.js"].S[0])
}
