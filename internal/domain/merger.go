package domain

import (
	"log/slog"

	m "covfold.dev/pkg/covfold/internal/model"
)

// MergeStats summarizes one merge pass.
type MergeStats struct {
	FilesAdded   int
	FilesMerged  int
	DroppedUnits int
}

// Merger folds coverage fragments into an accumulator. Counters sum id
// by id, so merging is commutative and associative for fragments built
// from the same source text, and feeding the same fragment twice doubles
// counts without ever duplicating units.
type Merger interface {
	// Merge folds src into dst. dst is mutated, src is never aliased:
	// new files enter as deep copies.
	Merge(dst, src m.CoverageMap) MergeStats
}

type merger struct{}

// NewMerger creates a new Merger instance.
func NewMerger() Merger {
	return &merger{}
}

// Merge implements Merger.
func (mg *merger) Merge(dst, src m.CoverageMap) MergeStats {
	var stats MergeStats

	for path, incoming := range src {
		existing, ok := dst[path]
		if !ok {
			dst[path] = copyFileCoverage(incoming)
			stats.FilesAdded++

			continue
		}

		dropped := mergeFileCoverage(existing, incoming)
		if dropped > 0 {
			slog.Warn("dropped structurally mismatched units during merge",
				"path", path, "units", dropped)
		}

		stats.FilesMerged++
		stats.DroppedUnits += dropped
	}

	return stats
}

// mergeFileCoverage sums incoming counters into existing. Units the
// accumulator has not seen are adopted as-is; units whose structure
// disagrees with the accumulator are dropped so accumulated counts are
// never corrupted by a skewed fragment. Returns the number dropped.
func mergeFileCoverage(existing, incoming *m.FileCoverage) int {
	dropped := 0

	for id, loc := range incoming.StatementMap {
		current, ok := existing.StatementMap[id]

		switch {
		case !ok:
			existing.StatementMap[id] = loc
			existing.S[id] = incoming.S[id]
		case current == loc:
			existing.S[id] += incoming.S[id]
		default:
			dropped++
		}
	}

	for id, meta := range incoming.FnMap {
		current, ok := existing.FnMap[id]

		switch {
		case !ok:
			existing.FnMap[id] = meta
			existing.F[id] = incoming.F[id]
		case current == meta:
			existing.F[id] += incoming.F[id]
		default:
			dropped++
		}
	}

	for id, meta := range incoming.BranchMap {
		current, ok := existing.BranchMap[id]

		switch {
		case !ok:
			existing.BranchMap[id] = copyBranchMeta(meta)
			existing.B[id] = append([]int64(nil), incoming.B[id]...)
		case branchMetaEqual(current, meta) && len(existing.B[id]) == len(incoming.B[id]):
			for i, count := range incoming.B[id] {
				existing.B[id][i] += count
			}
		default:
			dropped++
		}
	}

	return dropped
}

func branchMetaEqual(a, b m.BranchMeta) bool {
	if a.Type != b.Type || a.Loc != b.Loc || a.Line != b.Line {
		return false
	}

	if len(a.Locations) != len(b.Locations) {
		return false
	}

	for i := range a.Locations {
		if a.Locations[i] != b.Locations[i] {
			return false
		}
	}

	return true
}

func copyBranchMeta(meta m.BranchMeta) m.BranchMeta {
	meta.Locations = append([]m.Range(nil), meta.Locations...)
	return meta
}

func copyFileCoverage(fc *m.FileCoverage) *m.FileCoverage {
	out := m.NewFileCoverage(fc.Path)

	for id, loc := range fc.StatementMap {
		out.StatementMap[id] = loc
	}

	for id, count := range fc.S {
		out.S[id] = count
	}

	for id, meta := range fc.FnMap {
		out.FnMap[id] = meta
	}

	for id, count := range fc.F {
		out.F[id] = count
	}

	for id, meta := range fc.BranchMap {
		out.BranchMap[id] = copyBranchMeta(meta)
	}

	for id, counts := range fc.B {
		out.B[id] = append([]int64(nil), counts...)
	}

	return out
}
