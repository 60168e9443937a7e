package domain

import (
	"sort"

	m "covfold.dev/pkg/covfold/internal/model"
)

// Summarize reduces a coverage map to per-file and aggregate tallies.
// Line coverage is derived from statements: a line counts as covered
// when at least one statement starting on it has executed.
func Summarize(coverage m.CoverageMap) m.RunSummary {
	summary := m.RunSummary{Files: make([]m.FileSummary, 0, len(coverage))}

	for path, fc := range coverage {
		file := summarizeFile(path, fc)
		summary.Files = append(summary.Files, file)

		summary.Statements.Add(file.Statements)
		summary.Branches.Add(file.Branches)
		summary.Functions.Add(file.Functions)
		summary.Lines.Add(file.Lines)
	}

	sort.Slice(summary.Files, func(i, j int) bool {
		return summary.Files[i].Path < summary.Files[j].Path
	})

	return summary
}

func summarizeFile(path m.Path, fc *m.FileCoverage) m.FileSummary {
	file := m.FileSummary{Path: path}

	lineHit := map[int]bool{}

	for id, loc := range fc.StatementMap {
		file.Statements.Total++
		if fc.S[id] > 0 {
			file.Statements.Covered++
		}

		if hit, seen := lineHit[loc.Start.Line]; !seen || !hit {
			lineHit[loc.Start.Line] = fc.S[id] > 0
		}
	}

	file.Lines.Total = len(lineHit)
	for _, hit := range lineHit {
		if hit {
			file.Lines.Covered++
		}
	}

	for id := range fc.FnMap {
		file.Functions.Total++
		if fc.F[id] > 0 {
			file.Functions.Covered++
		}
	}

	for id := range fc.BranchMap {
		for _, count := range fc.B[id] {
			file.Branches.Total++
			if count > 0 {
				file.Branches.Covered++
			}
		}
	}

	return file
}
