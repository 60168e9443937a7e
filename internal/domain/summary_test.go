package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	m "covfold.dev/pkg/covfold/internal/model"
)

func pos(line, column int) m.Position {
	return m.Position{Line: line, Column: column}
}

func span(startLine, startCol, endLine, endCol int) m.Range {
	return m.Range{Start: pos(startLine, startCol), End: pos(endLine, endCol)}
}

func TestSummarizeTalliesOneFile(t *testing.T) {
	fc := m.NewFileCoverage("/work/src/app.js")
	fc.StatementMap[0] = span(1, 0, 1, 10)
	fc.StatementMap[1] = span(1, 12, 1, 20)
	fc.StatementMap[2] = span(3, 0, 3, 8)
	fc.S[0] = 0
	fc.S[1] = 2
	fc.S[2] = 0

	fc.FnMap[0] = m.FunctionMeta{Name: "run", Decl: span(1, 0, 1, 3), Loc: span(1, 0, 3, 1), Line: 1}
	fc.FnMap[1] = m.FunctionMeta{Name: "skip", Decl: span(5, 0, 5, 4), Loc: span(5, 0, 6, 1), Line: 5}
	fc.F[0] = 2
	fc.F[1] = 0

	fc.BranchMap[0] = m.BranchMeta{Type: "if", Loc: span(2, 0, 2, 10), Locations: []m.Range{span(2, 4, 2, 10), span(2, 12, 2, 18)}, Line: 2}
	fc.B[0] = []int64{2, 0}

	summary := Summarize(m.CoverageMap{"/work/src/app.js": fc})

	require.Len(t, summary.Files, 1)
	file := summary.Files[0]
	require.Equal(t, m.Path("/work/src/app.js"), file.Path)
	require.Equal(t, m.Tally{Covered: 1, Total: 3}, file.Statements)
	require.Equal(t, m.Tally{Covered: 1, Total: 2}, file.Branches)
	require.Equal(t, m.Tally{Covered: 1, Total: 2}, file.Functions)

	// Line 1 carries a hit statement next to a missed one, line 3 only
	// a missed one.
	require.Equal(t, m.Tally{Covered: 1, Total: 2}, file.Lines)
}

func TestSummarizeAggregatesAndSorts(t *testing.T) {
	first := m.NewFileCoverage("/work/src/a.js")
	first.StatementMap[0] = span(1, 0, 1, 5)
	first.S[0] = 1

	second := m.NewFileCoverage("/work/src/b.js")
	second.StatementMap[0] = span(1, 0, 1, 5)
	second.S[0] = 0

	summary := Summarize(m.CoverageMap{
		"/work/src/b.js": second,
		"/work/src/a.js": first,
	})

	require.Equal(t, m.Path("/work/src/a.js"), summary.Files[0].Path)
	require.Equal(t, m.Path("/work/src/b.js"), summary.Files[1].Path)
	require.Equal(t, m.Tally{Covered: 1, Total: 2}, summary.Statements)
	require.Equal(t, m.Tally{Covered: 1, Total: 2}, summary.Lines)
	require.InEpsilon(t, 50.0, summary.Statements.Percent(), 0.001)
}

func TestSummarizeEmptyCoverage(t *testing.T) {
	summary := Summarize(m.CoverageMap{})

	require.Empty(t, summary.Files)
	require.Equal(t, m.Tally{}, summary.Statements)
	require.InEpsilon(t, 100.0, summary.Statements.Percent(), 0.001)
}
