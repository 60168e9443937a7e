package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	m "covfold.dev/pkg/covfold/internal/model"
)

// BackendClient fetches coverage a backend process accumulated during
// the run. Endpoints respond with a JSON object whose "coverage" field
// holds an already converted coverage map.
type BackendClient interface {
	// FetchCoverage GETs endpoint and unwraps its coverage payload. ok
	// is false when the response decoded but carried no coverage field;
	// transport and status failures are errors.
	FetchCoverage(ctx context.Context, endpoint string) (coverage m.CoverageMap, ok bool, err error)
}

// HTTPBackendClient is the concrete BackendClient speaking plain HTTP.
type HTTPBackendClient struct {
	client *http.Client
}

// NewHTTPBackendClient constructs an HTTPBackendClient. timeout bounds
// each request on top of whatever deadline the caller's context carries.
func NewHTTPBackendClient(timeout time.Duration) *HTTPBackendClient {
	return &HTTPBackendClient{
		client: &http.Client{Timeout: timeout},
	}
}

type coverageEnvelope struct {
	Coverage m.CoverageMap `json:"coverage"`
}

// FetchCoverage implements BackendClient.
func (c *HTTPBackendClient) FetchCoverage(ctx context.Context, endpoint string) (m.CoverageMap, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request for %s: %w", endpoint, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining only
		return nil, false, fmt.Errorf("fetch %s: unexpected status %s", endpoint, resp.Status)
	}

	var envelope coverageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, false, fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	if envelope.Coverage == nil {
		return nil, false, nil
	}

	return envelope.Coverage, true, nil
}
