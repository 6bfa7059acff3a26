package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/technosupport/ts-dispatch/internal/alerts"
)

// StatusError is an authoritative 4xx/5xx rejection from the backend.
// 4xx rejections are surfaced inline to the operator; local state is left
// untouched (the write path never mutates optimistically).
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend error: status=%d, body=%s", e.Code, e.Body)
}

// IsRejection reports whether err is an authoritative 4xx.
func IsRejection(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

// Client talks to the dispatch backend's REST surface on behalf of the
// operator. All calls carry the operator's bearer credential.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		sample, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(sample)}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// ActiveAlerts fetches the current unresolved alert set for hydration.
func (c *Client) ActiveAlerts(ctx context.Context) ([]alerts.Alert, error) {
	var out []alerts.Alert
	if err := c.do(ctx, http.MethodGet, "/alerts/active", nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Media.SnapshotURL == "" {
			out[i].Media.SnapshotURL = alerts.PlaceholderSnapshotURL
		}
	}
	return out, nil
}

// UpdateAlertStatus requests a lifecycle transition. Fire-and-forget from
// the store's perspective: success is observed when the alert-updated
// event round-trips over the push channel.
func (c *Client) UpdateAlertStatus(ctx context.Context, alertID string, status alerts.Status) error {
	body := map[string]string{"status": string(status)}
	return c.do(ctx, http.MethodPost, "/alerts/"+alertID+"/status", body, nil)
}

// AddNote appends an operator note to an alert.
func (c *Client) AddNote(ctx context.Context, alertID, text string) error {
	body := map[string]string{"text": text}
	return c.do(ctx, http.MethodPost, "/alerts/"+alertID+"/notes", body, nil)
}

// SourceURL resolves the camera's source-stream locator.
func (c *Client) SourceURL(ctx context.Context, cameraID string) (string, error) {
	body := map[string]string{"cameraId": cameraID}
	var resp struct {
		SourceURL string `json:"sourceUrl"`
	}
	if err := c.do(ctx, http.MethodPost, "/video/source-url", body, &resp); err != nil {
		return "", err
	}
	if resp.SourceURL == "" {
		return "", fmt.Errorf("source locator missing for camera %s", cameraID)
	}
	return resp.SourceURL, nil
}

// StartRelay instructs the relay to ingest the source under path.
func (c *Client) StartRelay(ctx context.Context, path, sourceURL string) error {
	body := map[string]string{"path": path, "sourceUrl": sourceURL}
	return c.do(ctx, http.MethodPost, "/video/start-relay", body, nil)
}

// RenewRelay keeps an active relay path alive.
func (c *Client) RenewRelay(ctx context.Context, path, sourceURL string) error {
	body := map[string]string{"path": path, "sourceUrl": sourceURL}
	return c.do(ctx, http.MethodPatch, "/video/stream", body, nil)
}
