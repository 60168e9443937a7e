package model

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// RunConfig is the resolved configuration for one collection run. It is
// built once by the command layer and validated before any collaborator
// sees it; downstream code treats it as trusted.
type RunConfig struct {
	Client      bool              // expect browser-origin scripts
	ClientRoots map[string]string // "{scheme}://{host}" -> local source root
	SSRDump     Path              // optional raw dump captured during server rendering
	API         []string          // backend coverage endpoints fetched at run end

	// ExpectBackendCoverage turns a missing or unreachable backend
	// payload from a diagnostic skip into a run-ending error.
	ExpectBackendCoverage bool

	Exclude   []string // extra exclusion globs
	TestGlobs []string // globs the host runner matches test files with

	WorkDir     Path // project root paths are relativized against
	SnapshotDir Path // where the running snapshot and summary live
	DebugDir    Path // per-event dump directory, empty disables dumps
	Fresh       bool // discard any persisted snapshot at run start

	FetchTimeout time.Duration // per backend request
	PollInterval time.Duration // live counter poll period
}

// Validate reports the first configuration error found, or nil.
func (c RunConfig) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("run config: work dir is required")
	}

	if c.SnapshotDir == "" {
		return fmt.Errorf("run config: snapshot dir is required")
	}

	if c.Client && len(c.ClientRoots) == 0 {
		return fmt.Errorf("run config: client mode requires at least one client root mapping")
	}

	for prefix := range c.ClientRoots {
		if !strings.Contains(prefix, "://") {
			return fmt.Errorf("run config: client root %q is not a scheme://host prefix", prefix)
		}
	}

	for _, endpoint := range c.API {
		u, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("run config: api endpoint %q: %w", endpoint, err)
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("run config: api endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
		}
	}

	if c.ExpectBackendCoverage && len(c.API) == 0 {
		return fmt.Errorf("run config: backend coverage is mandatory but no api endpoints are configured")
	}

	if c.FetchTimeout <= 0 {
		return fmt.Errorf("run config: fetch timeout must be positive, got %s", c.FetchTimeout)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("run config: poll interval must be positive, got %s", c.PollInterval)
	}

	return nil
}

// ExclusionConfig is the subset of RunConfig the coverage filter consumes.
type ExclusionConfig struct {
	WorkDir   Path
	TestGlobs []string
	Exclude   []string
}

// Exclusion extracts the filter's view of the configuration.
func (c RunConfig) Exclusion() ExclusionConfig {
	return ExclusionConfig{
		WorkDir:   c.WorkDir,
		TestGlobs: c.TestGlobs,
		Exclude:   c.Exclude,
	}
}
