package whatsapp

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
)

const defaultBridgeTimeout = 15 * time.Second

// ErrSessionNotFound is returned when the bridge has no session for an org.
var ErrSessionNotFound = errors.New("whatsapp: session not found")

// Bridge controls headless WhatsApp clients hosted by the session bridge.
type Bridge interface {
	Start(ctx context.Context, orgID string) (*Session, error)
	Stop(ctx context.Context, orgID string) error
	Status(ctx context.Context, orgID string) (*Session, error)
	Send(ctx context.Context, orgID, chatID, text string) (string, error)
}

// BridgeClient talks to the session bridge over HTTP.
type BridgeClient struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewBridgeClient creates a client for the bridge at baseURL.
func NewBridgeClient(baseURL, secret string, timeout time.Duration) *BridgeClient {
	if strings.TrimSpace(baseURL) == "" {
		panic("whatsapp: bridge URL cannot be empty")
	}
	if timeout <= 0 {
		timeout = defaultBridgeTimeout
	}
	return &BridgeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Start asks the bridge to start (or resume) the org's session.
func (c *BridgeClient) Start(ctx context.Context, orgID string) (*Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, orgID, "start", nil, &resp); err != nil {
		return nil, err
	}
	return resp.session(orgID), nil
}

// Stop tears down the org's session.
func (c *BridgeClient) Stop(ctx context.Context, orgID string) error {
	return c.do(ctx, http.MethodPost, orgID, "stop", nil, nil)
}

// Status fetches the current session state including any pending QR code.
func (c *BridgeClient) Status(ctx context.Context, orgID string) (*Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodGet, orgID, "qr", nil, &resp); err != nil {
		return nil, err
	}
	return resp.session(orgID), nil
}

// Send delivers text to chatID and returns the WhatsApp message id.
func (c *BridgeClient) Send(ctx context.Context, orgID, chatID, text string) (string, error) {
	var resp sendResponse
	if err := c.do(ctx, http.MethodPost, orgID, "send", sendRequest{ChatID: chatID, Message: text}, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("whatsapp: bridge send failed: %s", resp.Error)
	}
	return resp.MessageID, nil
}

func (c *BridgeClient) do(ctx context.Context, method, orgID, action string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("whatsapp: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	endpoint := fmt.Sprintf("%s/sessions/%s/%s", c.baseURL, url.PathEscape(orgID), action)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: %s %s: %w", action, orgID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("whatsapp: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrSessionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp: bridge %s returned %d: %s", action, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("whatsapp: decode response: %w", err)
	}
	return nil
}

func (r sessionResponse) session(orgID string) *Session {
	status := r.Status
	if !status.Valid() {
		status = StatusDisconnected
	}
	return &Session{
		OrgID:       orgID,
		Status:      status,
		QRCode:      r.QRCode,
		PhoneNumber: r.PhoneNumber,
		PushName:    r.PushName,
	}
}
