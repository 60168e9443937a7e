package model

// CollectionEvent carries the coverage captured around one test, render,
// or counter poll. Exactly one of Raw and Fragment is set: Raw holds
// engine records still to be converted, Fragment holds coverage that is
// already in file/statement form (live counter dumps, backend payloads).
// Events are ephemeral; only their merged result survives the run.
type CollectionEvent struct {
	Label    string
	RootHint Path // local root the event's sources resolve against
	Raw      []RawScriptCoverage
	Fragment CoverageMap
}
