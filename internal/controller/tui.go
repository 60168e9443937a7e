package controller

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	m "covfold.dev/pkg/covfold/internal/model"
)

const (
	lowColor  = "#d75f5f"
	midColor  = "#d7af5f"
	highColor = "#5faf5f"

	barWidth = 24
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	helpStyle  = lipgloss.NewStyle().Faint(true)
	lowStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(lowColor))
	midStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(midColor))
	highStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(highColor))
)

func styleFor(pct float64) lipgloss.Style {
	switch {
	case pct < lowWatermark:
		return lowStyle
	case pct < highWatermark:
		return midStyle
	}

	return highStyle
}

// TUI implements UI using Bubble Tea for interactive display.
type TUI struct {
	output io.Writer
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// RenderSummary shows per-file coverage bars, paginated when the file
// list does not fit the terminal.
func (p *TUI) RenderSummary(ctx context.Context, summary m.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	model := newCoverageModel(summary)

	// Get initial terminal size
	if f, ok := p.output.(*os.File); ok {
		width, height, err := term.GetSize(int(f.Fd()))
		if err == nil {
			model.height = height
			model.width = width
		}
	}

	// If list is small, just print and exit
	if !model.needsPagination() {
		_, err := fmt.Fprint(p.output, model.View())
		return err
	}

	program := tea.NewProgram(model, tea.WithOutput(p.output), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return err
	}

	return nil
}

// coverageModel represents the Bubble Tea model for displaying per-file coverage.
type coverageModel struct {
	summary  m.RunSummary
	lowBar   progress.Model
	midBar   progress.Model
	highBar  progress.Model
	height   int
	width    int
	offset   int // Current scroll offset
	quitting bool
}

func newCoverageModel(summary m.RunSummary) coverageModel {
	newBar := func(color string) progress.Model {
		return progress.New(
			progress.WithSolidFill(color),
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
		)
	}

	return coverageModel{
		summary:  summary,
		lowBar:   newBar(lowColor),
		midBar:   newBar(midColor),
		highBar:  newBar(highColor),
		height:   0, // Will be set on first WindowSizeMsg
		width:    0,
		offset:   0,
		quitting: false,
	}
}

func (cm coverageModel) Init() tea.Cmd {
	return nil
}

func (cm coverageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		cm.height = msg.Height
		cm.width = msg.Width

		return cm, nil

	case tea.KeyMsg:
		return cm.handleKeyPress(msg)
	}

	return cm, nil
}

//nolint:cyclop,exhaustive // Key handling requires multiple cases for UI navigation
func (cm coverageModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		cm.quitting = true
		return cm, tea.Quit
	default:
		// Handle other key types in the string switch below
	}

	switch msg.String() {
	case "q":
		cm.quitting = true
		return cm, tea.Quit

	case "down", "j":
		cm.offset++

		maxOffset := cm.maxOffset()
		if cm.offset > maxOffset {
			cm.offset = maxOffset
		}

		return cm, nil

	case "up", "k":
		cm.offset--
		if cm.offset < 0 {
			cm.offset = 0
		}

		return cm, nil

	case "g", "home":
		cm.offset = 0

		return cm, nil

	case "G", "end":
		cm.offset = cm.maxOffset()

		return cm, nil

	case "d", "pgdown":
		cm.offset += cm.itemsPerPage()

		maxOffset := cm.maxOffset()
		if cm.offset > maxOffset {
			cm.offset = maxOffset
		}

		return cm, nil

	case "u", "pgup":
		cm.offset -= cm.itemsPerPage()
		if cm.offset < 0 {
			cm.offset = 0
		}

		return cm, nil
	}

	return cm, nil
}

// itemsPerPage calculates how many file rows can fit on screen.
func (cm coverageModel) itemsPerPage() int {
	if cm.height == 0 {
		return 10 // Default
	}
	// Reserve space for:
	// - Title: 2 lines (title + empty)
	// - Totals: 3 lines (empty + two totals)
	// - Footer: 3 lines (empty + page + help)
	// - Top margin: 1 line
	// Total: 9 lines
	reserved := 9

	available := cm.height - reserved
	if available < 1 {
		return 1
	}

	return available
}

// maxOffset returns the maximum scroll offset.
func (cm coverageModel) maxOffset() int {
	itemCount := len(cm.summary.Files)

	perPage := cm.itemsPerPage()
	if perPage <= 0 {
		return 0
	}

	maxOff := itemCount - perPage
	if maxOff < 0 {
		return 0
	}

	return maxOff
}

// needsPagination returns true if the file list is too large to fit on screen.
func (cm coverageModel) needsPagination() bool {
	totalFiles := len(cm.summary.Files)
	if totalFiles == 0 {
		return false
	}

	itemsPerPage := cm.itemsPerPage()

	return totalFiles > itemsPerPage && cm.height > 0
}

func (cm coverageModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Coverage by file"))
	b.WriteString("\n\n")

	if len(cm.summary.Files) == 0 {
		b.WriteString("  No coverage collected.\n")
		return b.String()
	}

	cm.renderFileList(&b)

	return b.String()
}

func (cm coverageModel) barFor(t m.Tally) string {
	pct := t.Percent()

	bar := cm.highBar
	switch {
	case pct < lowWatermark:
		bar = cm.lowBar
	case pct < highWatermark:
		bar = cm.midBar
	}

	return bar.ViewAs(pct / 100)
}

func (cm coverageModel) renderFileList(b *strings.Builder) {
	files := cm.summary.Files
	totalFiles := len(files)

	// Calculate pagination
	itemsPerPage := cm.itemsPerPage()
	needsPagination := totalFiles > itemsPerPage && cm.height > 0

	start := cm.offset

	end := start + itemsPerPage
	if end > totalFiles {
		end = totalFiles
	}

	if start >= totalFiles {
		start = totalFiles - 1
		if start < 0 {
			start = 0
		}
	}

	// Show rows for current page
	visible := files

	if needsPagination {
		visible = files[start:end]
	}

	for _, file := range visible {
		pct := file.Lines.Percent()
		fmt.Fprintf(b, "  %s %s %s\n",
			cm.barFor(file.Lines),
			styleFor(pct).Render(fmt.Sprintf("%5.1f%%", pct)),
			string(file.Path))
	}

	// Run totals
	b.WriteString("\n")
	fmt.Fprintf(b, "  Lines %s | Statements %s | Branches %s | Functions %s\n",
		percentLabel(cm.summary.Lines),
		percentLabel(cm.summary.Statements),
		percentLabel(cm.summary.Branches),
		percentLabel(cm.summary.Functions))
	fmt.Fprintf(b, "  %s of %s lines covered across %d file(s)\n",
		humanize.Comma(int64(cm.summary.Lines.Covered)),
		humanize.Comma(int64(cm.summary.Lines.Total)),
		totalFiles)

	// Footer with navigation help
	if needsPagination {
		b.WriteString("\n")

		currentPage := (cm.offset / itemsPerPage) + 1
		totalPages := (totalFiles + itemsPerPage - 1) / itemsPerPage
		fmt.Fprintf(b, "  Page %d/%d | Showing %d-%d of %d\n",
			currentPage, totalPages, start+1, end, totalFiles)
		b.WriteString(helpStyle.Render("  ↑/k: up | ↓/j: down | g: top | G: bottom | q: quit"))
		b.WriteString("\n")
	}
}
