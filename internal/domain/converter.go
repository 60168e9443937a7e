// Package domain contains the core coverage collection pipeline.
package domain

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"covfold.dev/pkg/covfold/internal/adapter"
	m "covfold.dev/pkg/covfold/internal/model"
)

// Converter turns raw engine records into coverage fragments keyed by
// original source path. Conversion never fails a batch: scripts that
// cannot be resolved, parsed, or translated contribute nothing and the
// remaining scripts are unaffected.
type Converter interface {
	// ConvertScript converts a single script's records.
	ConvertScript(ctx context.Context, raw m.RawScriptCoverage, rootHint m.Path) m.CoverageMap

	// ConvertBatch converts one engine dump, combining fragments that
	// land in the same original file.
	ConvertBatch(ctx context.Context, batch []m.RawScriptCoverage, rootHint m.Path) m.CoverageMap

	// ResetCache drops cached script resolutions. Scripts are immutable
	// within a run but not across runs.
	ResetCache()
}

// converter attributes translated hit ranges onto parsed source units.
type converter struct {
	adapter.SourceResolver
	adapter.JSFileAdapter
	Merger
}

// NewConverter creates a new Converter instance.
func NewConverter(resolver adapter.SourceResolver, files adapter.JSFileAdapter, merger Merger) Converter {
	return &converter{
		SourceResolver: resolver,
		JSFileAdapter:  files,
		Merger:         merger,
	}
}

// ConvertScript implements Converter.
func (c *converter) ConvertScript(ctx context.Context, raw m.RawScriptCoverage, rootHint m.Path) m.CoverageMap {
	fragment := m.CoverageMap{}
	c.convertScriptInto(ctx, fragment, raw, rootHint)

	return fragment
}

// ConvertBatch implements Converter.
func (c *converter) ConvertBatch(ctx context.Context, batch []m.RawScriptCoverage, rootHint m.Path) m.CoverageMap {
	fragment := m.CoverageMap{}

	for _, raw := range batch {
		if ctx.Err() != nil {
			return fragment
		}

		c.convertScriptInto(ctx, fragment, raw, rootHint)
	}

	return fragment
}

func (c *converter) convertScriptInto(ctx context.Context, fragment m.CoverageMap, raw m.RawScriptCoverage, rootHint m.Path) {
	script := c.Resolve(ctx, raw.ScriptOrigin, rootHint)
	if script == nil {
		return
	}

	if vendorPath(script.ScriptPath) {
		slog.Debug("skipping vendored script", "path", script.ScriptPath)
		return
	}

	for _, source := range c.collectSources(script, raw.Functions) {
		c.attributeSource(ctx, fragment, source)
	}
}

// attributedSource is one original source together with the hit ranges
// that translate into it.
type attributedSource struct {
	path   m.Path
	text   []byte
	ranges []translatedRange
}

// collectSources carries the script's hit ranges into its original
// sources. Without a map the generated text is its own single source.
func (c *converter) collectSources(script *adapter.ResolvedScript, functions []m.RawFunctionCoverage) []attributedSource {
	if !script.Mapped() {
		var ranges []translatedRange

		for _, function := range functions {
			for _, r := range function.Ranges {
				span := clampSpan(r.Start, r.End, len(script.Generated))
				if span.Len() <= 0 {
					continue
				}

				ranges = append(ranges, translatedRange{span: span, count: r.Count})
			}
		}

		return []attributedSource{{path: script.ScriptPath, text: script.Generated, ranges: ranges}}
	}

	translator := newRangeTranslator(script)

	grouped := map[string][]translatedRange{}

	var order []string

	for _, function := range functions {
		for _, r := range function.Ranges {
			for _, ss := range translator.translate(r.Start, r.End, r.Count) {
				if ss.span.Len() <= 0 {
					continue
				}

				if _, seen := grouped[ss.source]; !seen {
					order = append(order, ss.source)
				}

				grouped[ss.source] = append(grouped[ss.source], translatedRange{span: ss.span, count: ss.count})
			}
		}
	}

	sources := make([]attributedSource, 0, len(order))

	for _, name := range order {
		resolved := script.SourceFor(name)
		if resolved == nil {
			continue
		}

		sources = append(sources, attributedSource{
			path:   resolved.Path,
			text:   resolved.Text,
			ranges: grouped[name],
		})
	}

	return sources
}

// attributeSource parses one original source and attributes each unit
// the count of the innermost hit range fully containing it.
func (c *converter) attributeSource(ctx context.Context, fragment m.CoverageMap, source attributedSource) {
	if vendorPath(source.path) {
		slog.Debug("skipping vendored source", "path", source.path)
		return
	}

	structure, err := c.ExtractStructure(ctx, source.path, source.text)
	if err != nil {
		slog.Warn("skipping source that failed to parse", "path", source.path, "error", err)
		return
	}

	fc := m.NewFileCoverage(source.path)

	for i, statement := range structure.Statements {
		fc.StatementMap[i] = statement.Loc
		fc.S[i] = countFor(statement.Span, source.ranges)
	}

	for i, function := range structure.Functions {
		fc.FnMap[i] = m.FunctionMeta{
			Name: function.Name,
			Decl: function.Decl,
			Loc:  function.Loc,
			Line: function.Line,
		}
		fc.F[i] = countFor(function.Span, source.ranges)
	}

	for i, branch := range structure.Branches {
		locations := make([]m.Range, len(branch.Arms))
		counts := make([]int64, len(branch.Arms))

		for j, arm := range branch.Arms {
			locations[j] = arm.Loc
			counts[j] = countFor(arm.Span, source.ranges)
		}

		fc.BranchMap[i] = m.BranchMeta{
			Type:      branch.Type,
			Loc:       branch.Loc,
			Locations: locations,
			Line:      branch.Line,
		}
		fc.B[i] = counts
	}

	c.Merge(fragment, m.CoverageMap{source.path: fc})
}

// countFor returns the count of the innermost hit range fully containing
// the unit span, or zero when no range contains it.
func countFor(span adapter.ByteSpan, ranges []translatedRange) int64 {
	bestLen := -1

	var count int64

	for _, r := range ranges {
		if !r.span.Contains(span) {
			continue
		}

		if bestLen < 0 || r.span.Len() < bestLen {
			bestLen = r.span.Len()
			count = r.count
		}
	}

	return count
}

func clampSpan(start, end, limit int) adapter.ByteSpan {
	if start < 0 {
		start = 0
	}

	if end > limit {
		end = limit
	}

	return adapter.ByteSpan{Start: start, End: end}
}

// vendorSegments mark paths that are build or runner machinery rather
// than project sources; they are skipped before any parsing happens.
var vendorSegments = []string{
	"/node_modules/",
	"/__web-dev-server__/",
	"/.vite/",
	"/webpack/runtime",
}

func vendorPath(path m.Path) bool {
	slashed := filepath.ToSlash(string(path))

	for _, segment := range vendorSegments {
		if strings.Contains(slashed, segment) {
			return true
		}
	}

	return strings.HasPrefix(filepath.Base(slashed), "\x00")
}
