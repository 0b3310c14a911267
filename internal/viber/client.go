package viber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// AuthTokenHeader carries the bot's API key on every platform API call.
	AuthTokenHeader = "X-Viber-Auth-Token"

	// DefaultAPIURL is the Viber public-account set_webhook endpoint.
	DefaultAPIURL = "https://chatapi.viber.com/pa/set_webhook"

	// defaultRequestTimeout bounds outbound platform API calls.
	defaultRequestTimeout = 30 * time.Second

	// maxResponseBodySize limits how much of an error response is read
	// for logging.
	maxResponseBodySize = 1024
)

// Client performs outbound calls against the Viber platform API.
type Client struct {
	httpClient *http.Client
	token      string
}

// NewClient creates a platform API client authenticated with the given
// token. A nil httpClient gets a default with a bounded timeout.
func NewClient(httpClient *http.Client, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{httpClient: httpClient, token: token}
}

// setWebhookRequest is the set_webhook call body.
type setWebhookRequest struct {
	URL      string `json:"url"`
	SendName bool   `json:"send_name"`
}

// setWebhookResponse is the subset of the platform's reply this service
// inspects. Status 0 means success.
type setWebhookResponse struct {
	Status        int    `json:"status"`
	StatusMessage string `json:"status_message"`
}

// NewSetWebhookRequest builds the registration request: a POST to endpoint
// with the auth token header and a JSON body naming the callback URL. The
// request is returned unexecuted so callers (and tests) can inspect it.
func (c *Client) NewSetWebhookRequest(ctx context.Context, endpoint, callbackURL string) (*http.Request, error) {
	body, err := json.Marshal(setWebhookRequest{URL: callbackURL, SendName: true})
	if err != nil {
		return nil, fmt.Errorf("viber: failed to marshal set_webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("viber: failed to create set_webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AuthTokenHeader, c.token)
	return req, nil
}

// SetWebhook registers callbackURL as this bot's event sink. It fails on
// transport errors, non-2xx statuses, and non-zero in-body status codes.
// Registration is a one-shot setup call, not part of the event path.
func (c *Client) SetWebhook(ctx context.Context, endpoint, callbackURL string) error {
	req, err := c.NewSetWebhookRequest(ctx, endpoint, callbackURL)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("viber: set_webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
		return fmt.Errorf("viber: set_webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result setWebhookResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&result); err != nil {
		return fmt.Errorf("viber: failed to decode set_webhook response: %w", err)
	}
	if result.Status != 0 {
		return fmt.Errorf("viber: set_webhook rejected: status=%d message=%q", result.Status, result.StatusMessage)
	}
	return nil
}
