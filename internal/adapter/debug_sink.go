package adapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	m "covfold.dev/pkg/covfold/internal/model"
	"covfold.dev/pkg/covfold/pkg"
)

// DebugSink records per-event payloads for offline inspection. Dumps are
// diagnostics only: they are never read back and a failed dump must not
// disturb the run, so the interface reports nothing.
type DebugSink interface {
	// DumpEvent writes one event's raw records and converted fragment.
	DumpEvent(seq int, label string, raw []m.RawScriptCoverage, fragment m.CoverageMap)
}

// FileDebugSink is the concrete DebugSink writing one JSON file per
// event. An empty directory disables it.
type FileDebugSink struct {
	dir m.Path
}

// NewFileDebugSink constructs a FileDebugSink rooted at dir.
func NewFileDebugSink(dir m.Path) *FileDebugSink {
	return &FileDebugSink{dir: dir}
}

type eventDump struct {
	Label    string                `json:"label"`
	Raw      []m.RawScriptCoverage `json:"raw,omitempty"`
	Coverage m.CoverageMap         `json:"coverage,omitempty"`
}

// DumpEvent implements DebugSink.
func (s *FileDebugSink) DumpEvent(seq int, label string, raw []m.RawScriptCoverage, fragment m.CoverageMap) {
	if s.dir == "" {
		return
	}

	data, err := json.MarshalIndent(eventDump{Label: label, Raw: raw, Coverage: fragment}, "", "  ")
	if err != nil {
		slog.Debug("skipping event dump", "label", label, "error", err)
		return
	}

	if err := os.MkdirAll(string(s.dir), 0o755); err != nil {
		slog.Debug("skipping event dump", "label", label, "error", err)
		return
	}

	name := fmt.Sprintf("%03d-%s.json", seq, pkg.SanitizeLabel(label))

	if err := os.WriteFile(filepath.Join(string(s.dir), name), data, 0o644); err != nil {
		slog.Debug("skipping event dump", "label", label, "error", err)
	}
}
