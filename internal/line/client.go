// Package line implements the messaging-platform client used by fanline.
//
// It wraps the platform's HTTP API: the single-use reply primitive, the
// address-bound push primitive, and the best-effort profile lookup. All
// outbound calls carry a bounded timeout and surface the platform-assigned
// request id so delivery attempts can be audited against it.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jujuling/fanline/internal/models"
)

// Client configuration constants.
const (
	// DefaultBaseURL is the platform API endpoint.
	DefaultBaseURL = "https://api.line.me"
	// DefaultRequestTimeout bounds every outbound transport call. A hung
	// call must never stall webhook batch processing indefinitely.
	DefaultRequestTimeout = 10 * time.Second
	// MaxMessagesPerSend is the platform's bundle-size limit. Excess parts
	// are truncated silently; this is a documented boundary, not an error.
	MaxMessagesPerSend = 5
	// RequestIDHeader carries the transport-assigned request id.
	RequestIDHeader = "X-Line-Request-Id"
	// maxErrorBodyBytes bounds how much of an error response is read back
	// for logging and audit detail.
	maxErrorBodyBytes = 2048
)

// Opts holds client configuration applied via Option functions.
type Opts struct {
	AccessToken   string
	ChannelSecret string
	BaseURL       string
	HTTPClient    *http.Client
}

// Option configures the client.
type Option func(*Opts)

// WithAccessToken sets the channel access token used for outbound calls.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithChannelSecret sets the shared secret used for webhook signature
// verification.
func WithChannelSecret(secret string) Option {
	return func(o *Opts) { o.ChannelSecret = secret }
}

// WithBaseURL overrides the platform API endpoint (used in tests).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the messaging platform.
type Client struct {
	accessToken   string
	channelSecret string
	baseURL       string
	httpClient    *http.Client
}

// NewClient creates a platform client. A missing access token is not an
// error at construction time: outbound calls will fail loudly with
// models.ErrNoAccessToken instead of silently no-opping.
func NewClient(opts ...Option) *Client {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	slog.Debug("line.NewClient: client created",
		"base_url", cfg.BaseURL,
		"token_set", cfg.AccessToken != "",
		"secret_set", cfg.ChannelSecret != "")
	return &Client{
		accessToken:   cfg.AccessToken,
		channelSecret: cfg.ChannelSecret,
		baseURL:       cfg.BaseURL,
		httpClient:    cfg.HTTPClient,
	}
}

// SecretConfigured reports whether webhook signature verification can run.
func (c *Client) SecretConfigured() bool {
	return c.channelSecret != ""
}

// VerifySignature checks the webhook signature header against the raw
// request body using the configured channel secret.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	return ValidateSignature(c.channelSecret, signature, body)
}

// Profile is the subset of the platform profile used for enrichment.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

type replyPayload struct {
	ReplyToken string    `json:"replyToken"`
	Messages   []Message `json:"messages"`
}

type pushPayload struct {
	To       string    `json:"to"`
	Messages []Message `json:"messages"`
}

// Reply sends a bundle bound to a single-use reply token. The token is
// only valid briefly after the triggering event and cannot be used twice.
// Returns the transport-assigned request id.
func (c *Client) Reply(ctx context.Context, replyToken string, msgs []Message) (string, error) {
	if replyToken == "" {
		return "", fmt.Errorf("reply token cannot be empty")
	}
	msgs = capBundle(msgs)
	slog.Debug("line.Reply: sending reply", "parts", len(msgs))
	return c.send(ctx, "/v2/bot/message/reply", replyPayload{ReplyToken: replyToken, Messages: msgs})
}

// Push sends a bundle addressed directly at a subscriber id. No freshness
// requirement, but subject to platform and policy rate limits.
func (c *Client) Push(ctx context.Context, to string, msgs []Message) (string, error) {
	if to == "" {
		return "", models.ErrEmptySubscriberID
	}
	msgs = capBundle(msgs)
	slog.Debug("line.Push: sending push", "to", to, "parts", len(msgs))
	return c.send(ctx, "/v2/bot/message/push", pushPayload{To: to, Messages: msgs})
}

// GetProfile fetches a subscriber's display profile. Callers treat this as
// optional enrichment; failures must not block the main transition.
func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if c.accessToken == "" {
		return nil, models.ErrNoAccessToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/bot/profile/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("profile request returned %d: %s", resp.StatusCode, string(body))
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}
	slog.Debug("line.GetProfile: profile fetched", "user_id", userID, "display_name_set", p.DisplayName != "")
	return &p, nil
}

// send posts a JSON payload to the platform and returns the request id.
func (c *Client) send(ctx context.Context, path string, payload interface{}) (string, error) {
	if c.accessToken == "" {
		slog.Error("line.send: no channel access token configured", "path", path)
		return "", models.ErrNoAccessToken
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal platform payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build platform request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("line.send: transport call failed", "path", path, "error", err)
		return "", fmt.Errorf("platform call %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	requestID := resp.Header.Get(RequestIDHeader)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		slog.Error("line.send: platform returned error status",
			"path", path, "status", resp.StatusCode, "request_id", requestID, "body", string(errBody))
		return requestID, fmt.Errorf("platform call %s returned %d: %s", path, resp.StatusCode, string(errBody))
	}

	slog.Debug("line.send: platform call succeeded", "path", path, "request_id", requestID)
	return requestID, nil
}

// capBundle truncates a bundle to the platform's maximum size.
func capBundle(msgs []Message) []Message {
	if len(msgs) > MaxMessagesPerSend {
		slog.Warn("line.capBundle: truncating oversized bundle", "parts", len(msgs), "max", MaxMessagesPerSend)
		return msgs[:MaxMessagesPerSend]
	}
	return msgs
}
