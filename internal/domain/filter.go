package domain

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	m "covfold.dev/pkg/covfold/internal/model"
)

// Filter returns coverage without the files the exclusion policy
// rejects: the project's own test files and the machinery the bundler
// or test runner injects. It never mutates its input, dropping a file
// is independent of every other file, and filtering an already filtered
// map changes nothing.
func Filter(coverage m.CoverageMap, cfg m.ExclusionConfig) m.CoverageMap {
	out := m.CoverageMap{}

	for path, fc := range coverage {
		if excludedByPattern(path, cfg) {
			slog.Debug("filtering out test file", "path", path)
			continue
		}

		if infrastructureFile(path) {
			slog.Debug("filtering out infrastructure file", "path", path)
			continue
		}

		out[path] = fc
	}

	return out
}

// excludedByPattern matches a file against the test globs and the
// configured exclusions.
func excludedByPattern(path m.Path, cfg m.ExclusionConfig) bool {
	abs := filepath.ToSlash(string(path))

	rel := abs
	if cfg.WorkDir != "" {
		if r, err := filepath.Rel(string(cfg.WorkDir), string(path)); err == nil && !strings.HasPrefix(r, "..") {
			rel = filepath.ToSlash(r)
		}
	}

	for _, pattern := range append(append([]string{}, cfg.TestGlobs...), cfg.Exclude...) {
		if matchesPattern(pattern, rel, abs) {
			return true
		}
	}

	return false
}

// matchesPattern tries the pattern as a glob against both the relative
// and absolute form of the path. Patterns without glob metacharacters
// fall back to a verbatim suffix match, which tolerates callers that
// hand over plain paths rooted differently than the work dir.
func matchesPattern(pattern, rel, abs string) bool {
	if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
		return true
	}

	if ok, err := doublestar.Match(pattern, abs); err == nil && ok {
		return true
	}

	if strings.ContainsAny(pattern, "*?[{") {
		return false
	}

	verbatim := strings.TrimPrefix(pattern, "./")

	return rel == verbatim || abs == verbatim || strings.HasSuffix(abs, "/"+verbatim)
}

// infraSegments are path segments only bundler or runner internals live
// under; real project sources never do.
var infraSegments = []string{
	"/__web-dev-server__/",
	"/node_modules/.vite/",
	"/webpack/runtime",
}

// syntheticPrefixes mark basenames of virtual modules that exist only
// inside the bundler.
var syntheticPrefixes = []string{"\x00", "__virtual__"}

// infrastructureFile reports whether the path is build machinery rather
// than project source.
func infrastructureFile(path m.Path) bool {
	slashed := filepath.ToSlash(string(path))

	for _, segment := range infraSegments {
		if strings.Contains(slashed, segment) {
			return true
		}
	}

	base := filepath.Base(slashed)

	for _, prefix := range syntheticPrefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}

	// Webpack names external modules `external "<name>"`.
	return strings.HasPrefix(base, `external "`) && strings.HasSuffix(base, `"`)
}
