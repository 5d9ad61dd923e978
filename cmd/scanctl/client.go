package main

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

type gateClient struct {
	base  string
	token string
	http  *http.Client
}

func newGateClient(base, token string, timeout time.Duration) *gateClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &gateClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

type sessionInfo struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	EventID   string `json:"event_id"`
}

type guestInfo struct {
	TicketID   string     `json:"ticket_id"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	AttendedAt *time.Time `json:"attended_at,omitempty"`
}

type scanResult struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Outcome string     `json:"outcome"`
	Guest   *guestInfo `json:"guest,omitempty"`
}

// apiError is the server's error envelope.
type apiError struct {
	Status     int
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter string
}

func (e *apiError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("%s: %s (retry after %ss)", e.Code, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// retryable reports whether the same request may succeed later.
func retryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusServiceUnavailable || ae.Status == http.StatusTooManyRequests
	}
	return false
}

func (c *gateClient) createSession(ctx context.Context, eventID, pin, device string) (sessionInfo, error) {
	var out sessionInfo
	err := c.do(ctx, http.MethodPost, "/scanner/sessions", map[string]string{
		"event_id": eventID,
		"pin":      pin,
		"device":   device,
	}, &out)
	return out, err
}

func (c *gateClient) scan(ctx context.Context, payload string) (scanResult, error) {
	var out scanResult
	err := c.do(ctx, http.MethodPost, "/scanner/scan", map[string]string{"payload": payload}, &out)
	return out, err
}

func (c *gateClient) logout(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/scanner/sessions", nil, nil)
}

func (c *gateClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var env struct {
			Error apiError `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env)
		ae := env.Error
		ae.Status = resp.StatusCode
		ae.RetryAfter = resp.Header.Get("Retry-After")
		if ae.Code == "" {
			ae.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
			ae.Message = http.StatusText(resp.StatusCode)
		}
		return &ae
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out)
}

// liveURL derives the live feed URL from the HTTP base URL.
func liveURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/live"
	return u.String(), nil
}
