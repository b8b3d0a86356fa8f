package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// SyncPathPrefix is followed by the platform tag, e.g. /v1/sync/tripadvisor
	SyncPathPrefix = "/v1/sync/"

	PriorityNormal = "normal"
	PriorityHigh   = "high"

	// maxErrorBody caps how much of a failed response ends up in job.error_message
	maxErrorBody = 512
)

var ErrNotConfigured = errors.New("worker base URL is not configured")

type Client struct {
	baseURL    string
	syncPath   string
	httpClient *http.Client
}

// NewClient returns a client that authenticates every request with apiKey as a bearer token
// and posts jobs to the platform's sync endpoint
func NewClient(baseURL, apiKey, platform string, timeout time.Duration) *Client {
	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: apiKey,
		TokenType:   "Bearer",
	})

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		syncPath: SyncPathPrefix + url.PathEscape(platform),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: source,
				Base:   http.DefaultTransport,
			},
		},
	}
}

// SyncRequest asks the remote worker to run one account's sync
type SyncRequest struct {
	JobID       string `json:"job_id"`
	AccountID   string `json:"account_id"`
	LocationID  string `json:"location_id"`
	FullHistory bool   `json:"full_history"`
	Priority    string `json:"priority"`
}

type syncResponse struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StartSync submits the job to the worker. A nil error means the worker
// acknowledged it; the job's outcome is reported by the worker later.
func (c *Client) StartSync(ctx context.Context, req SyncRequest) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.syncPath, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("worker error (status %d): %s", resp.StatusCode, errorDetail(body))
	}

	// An empty or non-JSON 2xx body is treated as an acknowledgement
	var parsed syncResponse
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &parsed) != nil {
		return nil
	}
	if parsed.Success != nil && !*parsed.Success {
		detail := parsed.Error
		if detail == "" {
			detail = parsed.Message
		}
		if detail == "" {
			detail = "worker rejected sync request"
		}
		return fmt.Errorf("worker rejected sync: %s", detail)
	}
	return nil
}

// errorDetail extracts a short failure reason from a worker response body
func errorDetail(body []byte) string {
	var parsed syncResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}

	detail := strings.TrimSpace(string(body))
	if detail == "" {
		return "empty response"
	}
	if len(detail) > maxErrorBody {
		detail = detail[:maxErrorBody]
	}
	return detail
}
