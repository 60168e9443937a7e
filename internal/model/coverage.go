// Package model defines the data structures for coverage collection.
package model

// Path represents a file system path.
type Path string

// Position locates a point in original source text. Lines are 1-based
// and columns are 0-based byte columns, matching the coverage JSON
// consumed by downstream report tooling.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range is a half-open span of original source text.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// FunctionMeta describes one function found in a source file.
type FunctionMeta struct {
	Name string `json:"name"`
	Decl Range  `json:"decl"` // declaration header (name or arrow params)
	Loc  Range  `json:"loc"`  // full body
	Line int    `json:"line"`
}

// BranchMeta describes one branch group (if/else, ternary, logical
// expression, switch) found in a source file. Locations holds one range
// per arm, in source order.
type BranchMeta struct {
	Type      string  `json:"type"`
	Loc       Range   `json:"loc"`
	Locations []Range `json:"locations"`
	Line      int     `json:"line"`
}

// FileCoverage holds coverage for a single source file. Unit ids are
// derived from one structural parse of the file, so equal sources yield
// equal maps and counters can be summed id by id. The JSON form, with
// ids as numeric object keys, is the interchange format for snapshots,
// fragments, and backend payloads and must round-trip losslessly.
type FileCoverage struct {
	Path         Path                 `json:"path"`
	StatementMap map[int]Range        `json:"statementMap"`
	S            map[int]int64        `json:"s"`
	FnMap        map[int]FunctionMeta `json:"fnMap"`
	F            map[int]int64        `json:"f"`
	BranchMap    map[int]BranchMeta   `json:"branchMap"`
	B            map[int][]int64      `json:"b"`
}

// NewFileCoverage returns an empty FileCoverage with all maps allocated.
func NewFileCoverage(path Path) *FileCoverage {
	return &FileCoverage{
		Path:         path,
		StatementMap: map[int]Range{},
		S:            map[int]int64{},
		FnMap:        map[int]FunctionMeta{},
		F:            map[int]int64{},
		BranchMap:    map[int]BranchMeta{},
		B:            map[int][]int64{},
	}
}

// CoverageMap is a set of per-file coverage keyed by absolute source path.
type CoverageMap map[Path]*FileCoverage
