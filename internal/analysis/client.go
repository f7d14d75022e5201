package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the external layout-analysis service. The pipeline
// consumes this service; it never reimplements it.
type Client interface {
	// Submit starts analysis of the object behind locator and returns the
	// remote job id.
	Submit(ctx context.Context, locator string) (string, error)

	// Poll reports the state of a remote job. Blocks are only returned in
	// the SUCCEEDED state.
	Poll(ctx context.Context, jobID string) (JobState, []Block, error)
}

// HTTPClient implements Client over the service's REST API.
type HTTPClient struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
}

// NewHTTPClient creates a client for the service at endpoint.
func NewHTTPClient(endpoint, apiKey string) *HTTPClient {
	return &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("analysis service %s %s: %s: %s",
			method, path, resp.Status, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Submit starts analysis of the object behind locator.
func (c *HTTPClient) Submit(ctx context.Context, locator string) (string, error) {
	var resp struct {
		JobID string `json:"jobId"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/jobs", map[string]string{"sourceLocator": locator}, &resp)
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("analysis service returned no job id")
	}
	return resp.JobID, nil
}

// Poll reports the state of a remote job.
func (c *HTTPClient) Poll(ctx context.Context, jobID string) (JobState, []Block, error) {
	var resp struct {
		Status JobState `json:"status"`
		Blocks []Block  `json:"blocks"`
		Error  string   `json:"error"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID, nil, &resp); err != nil {
		return "", nil, err
	}
	if resp.Status == StateFailed && resp.Error != "" {
		return resp.Status, nil, fmt.Errorf("remote analysis failed: %s", resp.Error)
	}
	return resp.Status, resp.Blocks, nil
}
