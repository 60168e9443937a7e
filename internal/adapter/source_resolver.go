package adapter

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-sourcemap/sourcemap"

	m "covfold.dev/pkg/covfold/internal/model"
)

// ResolvedSource is one original source file recovered for a script.
type ResolvedSource struct {
	Path m.Path
	Text []byte
}

// ResolvedScript ties an engine script origin to its local generated
// text and, when a source map is available, to the original sources the
// generated code was built from.
type ResolvedScript struct {
	ScriptPath m.Path
	Generated  []byte

	consumer *sourcemap.Consumer
	resolver *LocalSourceResolver
	mapBase  m.Path // directory relative source names resolve against
	rootHint m.Path

	mu      sync.Mutex
	sources map[string]*ResolvedSource
}

// Mapped reports whether a source map was recovered for the script.
func (rs *ResolvedScript) Mapped() bool {
	return rs.consumer != nil
}

// Translate maps a generated position to an original source position.
// Lines are 1-based and columns 0-based on both sides. ok is false when
// the script has no map or the position is outside all mappings.
func (rs *ResolvedScript) Translate(genLine, genColumn int) (source string, line, column int, ok bool) {
	if rs.consumer == nil {
		return "", 0, 0, false
	}

	source, _, line, column, ok = rs.consumer.Source(genLine, genColumn)
	if !ok || source == "" {
		return "", 0, 0, false
	}

	return source, line, column, true
}

// SourceFor returns the original source behind a name Translate produced,
// or nil when neither the map nor the disk can supply its text or the
// name cannot be tied to a local path. Resolutions are cached, including
// failed ones.
func (rs *ResolvedScript) SourceFor(name string) *ResolvedSource {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if cached, ok := rs.sources[name]; ok {
		return cached
	}

	resolved := rs.resolveSource(name)
	rs.sources[name] = resolved

	return resolved
}

func (rs *ResolvedScript) resolveSource(name string) *ResolvedSource {
	path, ok := rs.resolver.localizeSource(name, rs.mapBase, rs.rootHint)
	if !ok {
		slog.Debug("dropping unmappable source", "source", name, "script", rs.ScriptPath)
		return nil
	}

	if rs.consumer != nil {
		if content := rs.consumer.SourceContent(name); content != "" {
			return &ResolvedSource{Path: path, Text: []byte(content)}
		}
	}

	text, err := os.ReadFile(string(path))
	if err != nil {
		slog.Debug("dropping source without recoverable text", "source", name, "path", path, "error", err)
		return nil
	}

	return &ResolvedSource{Path: path, Text: text}
}

// SourceResolver maps engine script origins to local source text. It
// intentionally absorbs every failure: a script that cannot be resolved
// is skipped by the caller, never an error.
type SourceResolver interface {
	// Resolve returns the local view of a script origin, or nil when the
	// origin cannot be tied to project sources.
	Resolve(ctx context.Context, scriptOrigin string, rootHint m.Path) *ResolvedScript

	// ResetCache drops all memoized resolutions. Called at run start so
	// stale text never crosses runs.
	ResetCache()
}

// LocalSourceResolver is the concrete SourceResolver backed by the local
// filesystem and the configured client root mappings.
type LocalSourceResolver struct {
	roots map[string]string

	mu    sync.Mutex
	cache map[string]*ResolvedScript
}

// NewLocalSourceResolver constructs a LocalSourceResolver. roots maps
// "{scheme}://{host}" origin prefixes to local directories.
func NewLocalSourceResolver(roots map[string]string) *LocalSourceResolver {
	return &LocalSourceResolver{
		roots: roots,
		cache: map[string]*ResolvedScript{},
	}
}

// Resolve implements SourceResolver.
func (r *LocalSourceResolver) Resolve(_ context.Context, scriptOrigin string, rootHint m.Path) *ResolvedScript {
	key := scriptOrigin + "\x00" + string(rootHint)

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	resolved := r.resolve(scriptOrigin, rootHint)

	r.mu.Lock()
	r.cache[key] = resolved
	r.mu.Unlock()

	return resolved
}

// ResetCache implements SourceResolver.
func (r *LocalSourceResolver) ResetCache() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = map[string]*ResolvedScript{}
}

func (r *LocalSourceResolver) resolve(scriptOrigin string, rootHint m.Path) *ResolvedScript {
	path, ok := r.localizeOrigin(scriptOrigin, rootHint)
	if !ok {
		slog.Debug("skipping script with unmappable origin", "origin", scriptOrigin)
		return nil
	}

	generated, err := os.ReadFile(string(path))
	if err != nil {
		slog.Debug("skipping unreadable script", "origin", scriptOrigin, "path", path, "error", err)
		return nil
	}

	resolved := &ResolvedScript{
		ScriptPath: path,
		Generated:  generated,
		resolver:   r,
		mapBase:    m.Path(filepath.Dir(string(path))),
		rootHint:   rootHint,
		sources:    map[string]*ResolvedSource{},
	}

	mapRef, found := sourceMappingURL(generated)
	if !found {
		return resolved
	}

	mapURL, data, err := r.loadMap(mapRef, resolved.mapBase)
	if err != nil {
		// A declared but unusable map degrades to identity resolution.
		slog.Debug("ignoring unusable source map", "script", path, "error", err)
		return resolved
	}

	consumer, err := sourcemap.Parse(mapURL, data)
	if err != nil {
		slog.Debug("ignoring unparsable source map", "script", path, "error", err)
		return resolved
	}

	resolved.consumer = consumer

	return resolved
}

var errNotBase64Data = errors.New("inline source map is not base64 encoded")

// sourceMappingURL finds the last sourceMappingURL comment in a script.
func sourceMappingURL(generated []byte) (string, bool) {
	text := string(generated)

	idx := strings.LastIndex(text, "//# sourceMappingURL=")
	if idx < 0 {
		idx = strings.LastIndex(text, "//@ sourceMappingURL=")
		if idx < 0 {
			return "", false
		}
	}

	ref := text[idx:]
	ref = ref[strings.Index(ref, "=")+1:]

	if end := strings.IndexAny(ref, "\n\r"); end >= 0 {
		ref = ref[:end]
	}

	ref = strings.TrimSpace(ref)

	return ref, ref != ""
}

// loadMap materializes map bytes from an inline data URL or a map file
// next to the script. The returned mapURL feeds sourcemap.Parse.
func (r *LocalSourceResolver) loadMap(ref string, base m.Path) (string, []byte, error) {
	if strings.HasPrefix(ref, "data:") {
		idx := strings.Index(ref, "base64,")
		if idx < 0 {
			return "", nil, errNotBase64Data
		}

		data, err := base64.StdEncoding.DecodeString(ref[idx+len("base64,"):])
		if err != nil {
			return "", nil, err
		}

		return "", data, nil
	}

	mapPath := ref
	if !filepath.IsAbs(mapPath) && !strings.Contains(mapPath, "://") {
		mapPath = filepath.Join(string(base), filepath.FromSlash(ref))
	} else if strings.Contains(mapPath, "://") {
		// Served maps live next to the served script locally.
		mapPath = filepath.Join(string(base), filepath.Base(stripQuery(mapPath)))
	}

	data, err := os.ReadFile(mapPath)
	if err != nil {
		return "", nil, err
	}

	return "", data, nil
}

// localizeOrigin turns a script origin into a local file path.
func (r *LocalSourceResolver) localizeOrigin(origin string, rootHint m.Path) (m.Path, bool) {
	// Server-side engines report file URLs rather than bare paths.
	if after, ok := strings.CutPrefix(origin, "file://"); ok {
		return m.Path(filepath.FromSlash(stripQuery(after))), true
	}

	if strings.Contains(origin, "://") {
		return r.rewriteURL(origin, rootHint)
	}

	if filepath.IsAbs(origin) {
		return m.Path(filepath.Clean(origin)), true
	}

	if rootHint != "" {
		return m.Path(filepath.Join(string(rootHint), filepath.FromSlash(origin))), true
	}

	abs, err := filepath.Abs(origin)
	if err != nil {
		return "", false
	}

	return m.Path(abs), true
}

// localizeSource turns an original source name from a map into a local
// path. URL-form names go through the root mappings, relative names
// resolve against the map location.
func (r *LocalSourceResolver) localizeSource(name string, base m.Path, rootHint m.Path) (m.Path, bool) {
	if after, ok := strings.CutPrefix(name, "file://"); ok {
		return m.Path(filepath.FromSlash(stripQuery(after))), true
	}

	if strings.Contains(name, "://") {
		return r.rewriteURL(name, rootHint)
	}

	if filepath.IsAbs(name) {
		return m.Path(filepath.Clean(name)), true
	}

	return m.Path(filepath.Join(string(base), filepath.FromSlash(name))), true
}

// rewriteURL maps a URL through the longest matching configured root
// prefix. Equal-length prefixes prefer the one mapped onto the event's
// root, then the lexicographically smallest, keeping resolution
// deterministic run over run.
func (r *LocalSourceResolver) rewriteURL(rawURL string, rootHint m.Path) (m.Path, bool) {
	trimmed := stripQuery(rawURL)

	type match struct {
		prefix string
		root   string
	}

	var matches []match

	for prefix, root := range r.roots {
		if !strings.HasPrefix(trimmed, prefix) {
			continue
		}

		rest := trimmed[len(prefix):]
		if rest != "" && !strings.HasPrefix(rest, "/") {
			continue
		}

		matches = append(matches, match{prefix: prefix, root: root})
	}

	if len(matches) == 0 {
		return "", false
	}

	sort.Slice(matches, func(i, j int) bool {
		if len(matches[i].prefix) != len(matches[j].prefix) {
			return len(matches[i].prefix) > len(matches[j].prefix)
		}

		iHinted := m.Path(matches[i].root) == rootHint
		jHinted := m.Path(matches[j].root) == rootHint
		if iHinted != jHinted {
			return iHinted
		}

		return matches[i].prefix < matches[j].prefix
	})

	best := matches[0]
	rest := trimmed[len(best.prefix):]

	return m.Path(filepath.Join(best.root, filepath.FromSlash(rest))), true
}

func stripQuery(rawURL string) string {
	if idx := strings.IndexAny(rawURL, "?#"); idx >= 0 {
		return rawURL[:idx]
	}

	return rawURL
}
