package domain

import (
	"log/slog"

	"covfold.dev/pkg/covfold/internal/adapter"
	"covfold.dev/pkg/covfold/pkg"
)

// translatedRange is an engine hit range carried into one original
// source's byte space.
type translatedRange struct {
	span  adapter.ByteSpan
	count int64
}

// sourceSpan is a translated range tagged with the source it landed in.
type sourceSpan struct {
	source string
	span   adapter.ByteSpan
	count  int64
}

// rangeTranslator maps generated byte offsets into original source byte
// spans through a resolved script's source map. Offsets translate via
// their line/column, the only currency source maps deal in.
type rangeTranslator struct {
	script   *adapter.ResolvedScript
	genIndex *pkg.LineIndex
	indexes  map[string]*pkg.LineIndex
}

func newRangeTranslator(script *adapter.ResolvedScript) *rangeTranslator {
	return &rangeTranslator{
		script:   script,
		genIndex: pkg.NewLineIndex(script.Generated),
		indexes:  map[string]*pkg.LineIndex{},
	}
}

// endpoint resolves one generated offset to a source name and byte
// offset within that source.
func (t *rangeTranslator) endpoint(genOffset int) (source string, offset int, ok bool) {
	genLine, genColumn := t.genIndex.Position(genOffset)

	source, line, column, ok := t.script.Translate(genLine+1, genColumn)
	if !ok {
		return "", 0, false
	}

	index := t.indexFor(source)
	if index == nil {
		return "", 0, false
	}

	return source, index.Offset(line-1, column), true
}

// translate carries a half-open generated range into original sources.
// When the endpoints land in different sources the range contributes a
// clamped span to each endpoint's source; sources the range may pass
// through in between receive nothing.
func (t *rangeTranslator) translate(start, end int, count int64) []sourceSpan {
	startSource, startOffset, startOK := t.endpoint(start)
	endSource, endOffset, endOK := t.endpoint(end)

	switch {
	case startOK && endOK && startSource == endSource:
		if endOffset <= startOffset {
			return nil
		}

		return []sourceSpan{{
			source: startSource,
			span:   adapter.ByteSpan{Start: startOffset, End: endOffset},
			count:  count,
		}}

	case startOK && endOK:
		slog.Debug("hit range crosses sources, clamping to endpoints",
			"script", t.script.ScriptPath, "start", startSource, "end", endSource)

		return []sourceSpan{
			{
				source: startSource,
				span:   adapter.ByteSpan{Start: startOffset, End: t.sourceLen(startSource)},
				count:  count,
			},
			{
				source: endSource,
				span:   adapter.ByteSpan{Start: 0, End: endOffset},
				count:  count,
			},
		}

	case startOK:
		return []sourceSpan{{
			source: startSource,
			span:   adapter.ByteSpan{Start: startOffset, End: t.sourceLen(startSource)},
			count:  count,
		}}

	case endOK:
		return []sourceSpan{{
			source: endSource,
			span:   adapter.ByteSpan{Start: 0, End: endOffset},
			count:  count,
		}}

	default:
		return nil
	}
}

func (t *rangeTranslator) indexFor(source string) *pkg.LineIndex {
	if index, ok := t.indexes[source]; ok {
		return index
	}

	resolved := t.script.SourceFor(source)
	if resolved == nil {
		t.indexes[source] = nil
		return nil
	}

	index := pkg.NewLineIndex(resolved.Text)
	t.indexes[source] = index

	return index
}

func (t *rangeTranslator) sourceLen(source string) int {
	resolved := t.script.SourceFor(source)
	if resolved == nil {
		return 0
	}

	return len(resolved.Text)
}
