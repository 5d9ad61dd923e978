package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"guestgate/cmd/internal/app"
)

const e2eAdminToken = "organizer-secret-token"

func newGateServer(t *testing.T) *httptest.Server {
	t.Helper()

	t.Setenv("GG_ADMIN_TOKEN", e2eAdminToken)
	t.Setenv("GG_LIVE_ORIGIN_REQUIRED", "false")
	t.Setenv("GG_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("GG_ARGON2_ITERATIONS", "1")

	a, err := app.New(app.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return srv
}

func adminPost(t *testing.T, url string, body any) map[string]any {
	t.Helper()

	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Authorization", "Bearer "+e2eAdminToken)
	req.Header.Set("Content-Type", "application/json")
	return adminDo(t, req, http.StatusCreated)
}

func adminDo(t *testing.T, req *http.Request, want int) map[string]any {
	t.Helper()

	req.Header.Set("Authorization", "Bearer "+e2eAdminToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("%s %s: %d %s", req.Method, req.URL, resp.StatusCode, raw)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestDoorClient_EndToEnd(t *testing.T) {
	srv := newGateServer(t)
	ctx := context.Background()

	ev := adminPost(t, srv.URL+"/events", map[string]any{
		"name":      "Gala",
		"starts_at": time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339),
		"category":  "business",
		"pin":       "4821",
	})
	eventID := ev["id"].(string)

	guest := adminPost(t, srv.URL+"/events/"+eventID+"/attendees", map[string]any{
		"name":  "Omar Said",
		"phone": "0791112223",
	})
	ticketID := guest["ticket_id"].(string)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/attendees/"+ticketID+"/ticket", nil)
	payload := adminDo(t, req, http.StatusOK)["payload"].(string)

	var tokenOut, stderr bytes.Buffer
	if err := run(ctx, []string{"auth", "--server", srv.URL, "--event", eventID, "--pin", "4821", "--device", "gate-a"}, nil, &tokenOut, &stderr); err != nil {
		t.Fatalf("auth: %v (%s)", err, stderr.String())
	}
	tok := strings.TrimSpace(tokenOut.String())
	if tok == "" {
		t.Fatalf("auth printed no token")
	}

	var before bytes.Buffer
	if err := run(ctx, []string{"watch", "--server", srv.URL, "--token", tok, "--once"}, nil, &before, &stderr); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !strings.Contains(before.String(), "Gala: 0/1 in") {
		t.Fatalf("unexpected roster before scan: %q", before.String())
	}

	var scans bytes.Buffer
	in := strings.NewReader(payload + "\n" + "not-a-ticket\n")
	if err := run(ctx, []string{"scan", "--server", srv.URL, "--token", tok}, in, &scans, &stderr); err != nil {
		t.Fatalf("scan: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(scans.String()), "\n")
	if len(lines) != 2 || lines[0] != "OK Entry allowed | Omar Said (general)" || lines[1] != "ERR Invalid code" {
		t.Fatalf("unexpected scan output: %q", scans.String())
	}

	var after bytes.Buffer
	if err := run(ctx, []string{"watch", "--server", srv.URL, "--token", tok, "--once"}, nil, &after, &stderr); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !strings.Contains(after.String(), "Gala: 1/1 in") {
		t.Fatalf("unexpected roster after scan: %q", after.String())
	}
}

func TestDoorClient_WrongPIN(t *testing.T) {
	srv := newGateServer(t)

	ev := adminPost(t, srv.URL+"/events", map[string]any{
		"name":      "Gala",
		"starts_at": time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339),
		"category":  "business",
		"pin":       "4821",
	})

	err := run(context.Background(), []string{"auth", "--server", srv.URL, "--event", ev["id"].(string), "--pin", "0000"}, nil, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "invalid_credentials") {
		t.Fatalf("expected invalid_credentials, got %v", err)
	}
}
