// Package controller provides output adapters for displaying collected coverage.
package controller

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "covfold.dev/pkg/covfold/internal/model"
)

// UI defines the interface for displaying a coverage summary.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	RenderSummary(ctx context.Context, summary m.RunSummary) error
}

// NewUI picks the interactive viewer on a terminal and the plain table
// printer everywhere else.
func NewUI(cmd *cobra.Command, tty bool) UI {
	if tty {
		return NewTUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)

	return ok && term.IsTerminal(int(f.Fd()))
}

// Coverage percentages below lowWatermark render as poor, above
// highWatermark as good.
const (
	lowWatermark  = 50.0
	highWatermark = 80.0
)

func percentLabel(t m.Tally) string {
	return fmt.Sprintf("%.1f%%", t.Percent())
}
