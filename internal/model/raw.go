package model

// RawRange is one contiguous byte span of generated code with the number
// of times the engine observed it executing. Offsets index the generated
// script text, not any original source.
type RawRange struct {
	Start int   `json:"start"`
	End   int   `json:"end"`
	Count int64 `json:"count"`
}

// RawFunctionCoverage is the engine's record for a single function. When
// IsBlockCoverage is set the ranges nest: the first spans the whole
// function and later, smaller ranges override the count inside their span.
type RawFunctionCoverage struct {
	Name            string     `json:"name"`
	Ranges          []RawRange `json:"ranges"`
	IsBlockCoverage bool       `json:"isBlockCoverage"`
}

// RawScriptCoverage is the engine's record for one script, identified by
// the origin it was loaded from (a URL in browser runs, a path otherwise).
// Raw records are ephemeral: they are converted per collection event and
// never persisted.
type RawScriptCoverage struct {
	ScriptOrigin string                `json:"scriptOrigin"`
	Functions    []RawFunctionCoverage `json:"functions"`
}
