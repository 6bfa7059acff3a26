package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client performs the WHEP-style offer/answer exchange against the
// streaming relay: POST {base}/{path}/whep with an SDP offer body,
// answer SDP comes back in the response body.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Negotiate exchanges the local SDP offer for the relay's answer.
func (c *Client) Negotiate(ctx context.Context, path, offerSDP string) (string, error) {
	url := c.BaseURL + "/" + path + "/whep"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(offerSDP))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("whep request to %s failed with status %d", url, resp.StatusCode)
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read whep answer: %w", err)
	}
	if len(answer) == 0 {
		return "", fmt.Errorf("empty whep answer from %s", url)
	}
	return string(answer), nil
}
