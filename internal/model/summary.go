package model

// Tally counts covered units against the total present.
type Tally struct {
	Covered int `yaml:"covered" json:"covered"`
	Total   int `yaml:"total" json:"total"`
}

// Percent returns coverage as a percentage. An empty tally is 100:
// a file with no branches has all of its branches covered.
func (t Tally) Percent() float64 {
	if t.Total == 0 {
		return 100
	}

	return float64(t.Covered) / float64(t.Total) * 100
}

// Add folds another tally into this one.
func (t *Tally) Add(other Tally) {
	t.Covered += other.Covered
	t.Total += other.Total
}

// FileSummary holds the computed coverage for a single file.
type FileSummary struct {
	Path       Path  `yaml:"path" json:"path"`
	Statements Tally `yaml:"statements" json:"statements"`
	Branches   Tally `yaml:"branches" json:"branches"`
	Functions  Tally `yaml:"functions" json:"functions"`
	Lines      Tally `yaml:"lines" json:"lines"`
}

// RunSummary is the run-end artifact handed to report rendering: per-file
// tallies in path order plus the project totals.
type RunSummary struct {
	Files      []FileSummary `yaml:"files" json:"files"`
	Statements Tally         `yaml:"statements" json:"statements"`
	Branches   Tally         `yaml:"branches" json:"branches"`
	Functions  Tally         `yaml:"functions" json:"functions"`
	Lines      Tally         `yaml:"lines" json:"lines"`
}
