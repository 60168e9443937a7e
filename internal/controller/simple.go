package controller

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "covfold.dev/pkg/covfold/internal/model"
)

// SimpleUI implements UI using cobra Command's output stream.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// RenderSummary prints a per-file coverage table followed by run totals.
func (s *SimpleUI) RenderSummary(ctx context.Context, summary m.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(summary.Files) == 0 {
		s.printf("No coverage collected.\n")
		return nil
	}

	s.printf("\n%s", renderSummaryTable(summary))
	s.printf("Statements %s of %s, branches %s of %s, functions %s of %s\n",
		humanize.Comma(int64(summary.Statements.Covered)), humanize.Comma(int64(summary.Statements.Total)),
		humanize.Comma(int64(summary.Branches.Covered)), humanize.Comma(int64(summary.Branches.Total)),
		humanize.Comma(int64(summary.Functions.Covered)), humanize.Comma(int64(summary.Functions.Total)))

	return nil
}

func renderSummaryTable(summary m.RunSummary) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"File", "Stmts", "Branch", "Funcs", "Lines"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
	})

	for _, file := range summary.Files {
		table.Append([]string{
			string(file.Path),
			percentLabel(file.Statements),
			percentLabel(file.Branches),
			percentLabel(file.Functions),
			percentLabel(file.Lines),
		})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Files %d", len(summary.Files)),
		percentLabel(summary.Statements),
		percentLabel(summary.Branches),
		percentLabel(summary.Functions),
		percentLabel(summary.Lines),
	})

	table.Render()

	return tableBuffer.String()
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
