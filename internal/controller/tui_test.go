package controller

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	m "covfold.dev/pkg/covfold/internal/model"
)

func summaryWithFiles(n int) m.RunSummary {
	var summary m.RunSummary

	for i := 0; i < n; i++ {
		file := m.FileSummary{
			Path:  m.Path(fmt.Sprintf("src/file%02d.js", i)),
			Lines: m.Tally{Covered: i, Total: n},
		}
		summary.Files = append(summary.Files, file)
		summary.Lines.Add(file.Lines)
	}

	return summary
}

func pressKey(t *testing.T, cm coverageModel, key string) coverageModel {
	t.Helper()

	updated, _ := cm.handleKeyPress(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})

	next, ok := updated.(coverageModel)
	require.True(t, ok)

	return next
}

func TestTUI_RenderSummaryPrintsWhenOutputIsNotATerminal(t *testing.T) {
	var buf bytes.Buffer

	ui := NewTUI(&buf)
	require.NoError(t, ui.RenderSummary(context.Background(), summaryWithFiles(3)))

	got := buf.String()
	require.Contains(t, got, "Coverage by file")
	require.Contains(t, got, "src/file00.js")
	require.Contains(t, got, "src/file02.js")
	require.Contains(t, got, "3 file(s)")
	require.NotContains(t, got, "Page")
}

func TestCoverageModelPagination(t *testing.T) {
	model := newCoverageModel(summaryWithFiles(30))
	model.height = 15 // 6 rows per page after reserved lines

	require.Equal(t, 6, model.itemsPerPage())
	require.Equal(t, 24, model.maxOffset())
	require.True(t, model.needsPagination())

	model = pressKey(t, model, "G")
	require.Equal(t, 24, model.offset)

	model = pressKey(t, model, "j")
	require.Equal(t, 24, model.offset, "scrolling past the last file stays put")

	model = pressKey(t, model, "g")
	require.Equal(t, 0, model.offset)

	model = pressKey(t, model, "d")
	require.Equal(t, 6, model.offset)

	model = pressKey(t, model, "u")
	require.Equal(t, 0, model.offset)
}

func TestCoverageModelViewShowsPageFooter(t *testing.T) {
	model := newCoverageModel(summaryWithFiles(30))
	model.height = 15

	view := model.View()

	require.Contains(t, view, "Page 1/5")
	require.Contains(t, view, "q: quit")
	require.Contains(t, view, "src/file00.js")
	require.NotContains(t, view, "src/file10.js")
}

func TestIsTTY(t *testing.T) {
	var buf bytes.Buffer
	require.False(t, IsTTY(&buf))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	require.False(t, IsTTY(f), "regular files are not terminals")
}

func TestNewUIPicksRendererByTerminal(t *testing.T) {
	cmd := &cobra.Command{}

	require.IsType(t, &TUI{}, NewUI(cmd, true))
	require.IsType(t, &SimpleUI{}, NewUI(cmd, false))
}
