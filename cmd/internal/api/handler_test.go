package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"guestgate/cmd/identity/ids"
	"guestgate/cmd/internal/checkin"
	"guestgate/cmd/internal/realtime"
	"guestgate/cmd/internal/scanner"
	"guestgate/cmd/internal/ticket"
	"guestgate/cmd/security/pin"
	v1 "guestgate/shared/contracts/live/v1"
)

const testAdminToken = "organizer-secret"

// outageStore fails ticket lookups while down is set.
type outageStore struct {
	*ticket.MemoryStore
	down atomic.Bool
}

func (s *outageStore) Lookup(ctx context.Context, id string) (ticket.Attendee, error) {
	if s.down.Load() {
		return ticket.Attendee{}, fmt.Errorf("ticket: lookup: %w: dial tcp: connection refused", ticket.ErrUnavailable)
	}
	return s.MemoryStore.Lookup(ctx, id)
}

type apiFixture struct {
	srv   *httptest.Server
	store *outageStore
	feed  *realtime.Feed
}

func newAPIFixture(t *testing.T, cfg Config) *apiFixture {
	t.Helper()

	pins := pin.DefaultConfig()
	pins.Params.MemoryKiB = 8 * 1024
	pins.Params.Iterations = 1

	st := &outageStore{MemoryStore: ticket.NewMemoryStore()}
	feed := realtime.NewFeed(nil)

	scanners, err := scanner.NewService(st, pins, scanner.DefaultConfig())
	if err != nil {
		t.Fatalf("scanner.NewService: %v", err)
	}
	authority, err := checkin.NewAuthority(st, checkin.WithPublisher(feed))
	if err != nil {
		t.Fatalf("checkin.NewAuthority: %v", err)
	}

	if cfg.AdminToken == "" {
		cfg.AdminToken = testAdminToken
	}
	h, err := NewHandler(nil, cfg, Deps{Store: st, Scanners: scanners, Authority: authority, Feed: feed})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, store: st, feed: feed}
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body any) (int, http.Header, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header, out
}

func mustDecode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", string(b), err)
	}
	return v
}

func (f *apiFixture) createEvent(t *testing.T, pinCode string, allowMultiple bool) eventResponse {
	t.Helper()
	status, _, body := f.do(t, http.MethodPost, "/events", testAdminToken, map[string]any{
		"name":                 "Wedding",
		"starts_at":            time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339),
		"location":             "Amman",
		"category":             "social",
		"theme_color":          "#4f46e5",
		"pin":                  pinCode,
		"allow_multiple_entry": allowMultiple,
	})
	if status != http.StatusCreated {
		t.Fatalf("create event: %d %s", status, body)
	}
	return mustDecode[eventResponse](t, body)
}

func (f *apiFixture) createAttendee(t *testing.T, eventID string) attendeeResponse {
	t.Helper()
	status, _, body := f.do(t, http.MethodPost, "/events/"+eventID+"/attendees", testAdminToken, map[string]any{
		"name":     "Layla Haddad",
		"phone":    "0791234567",
		"category": "vip",
	})
	if status != http.StatusCreated {
		t.Fatalf("create attendee: %d %s", status, body)
	}
	return mustDecode[attendeeResponse](t, body)
}

func (f *apiFixture) login(t *testing.T, eventID, pinCode string) string {
	t.Helper()
	status, _, body := f.do(t, http.MethodPost, "/scanner/sessions", "", map[string]any{
		"event_id": eventID,
		"pin":      pinCode,
		"device":   "gate-1",
	})
	if status != http.StatusCreated {
		t.Fatalf("login: %d %s", status, body)
	}
	return mustDecode[sessionCreateResponse](t, body).Token
}

func (f *apiFixture) ticketPayload(t *testing.T, ticketID string) string {
	t.Helper()
	status, _, body := f.do(t, http.MethodGet, "/attendees/"+ticketID+"/ticket", testAdminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("ticket: %d %s", status, body)
	}
	return mustDecode[ticketCodeResponse](t, body).Payload
}

func TestAPI_DoorFlow(t *testing.T) {
	f := newAPIFixture(t, Config{})
	ev := f.createEvent(t, "4821", false)
	sub := f.feed.Subscribe(ev.ID, 8)
	defer sub.Close()

	guest := f.createAttendee(t, ev.ID)
	payload := f.ticketPayload(t, guest.TicketID)
	tok := f.login(t, ev.ID, "4821")

	status, _, body := f.do(t, http.MethodPost, "/scanner/scan", tok, scanRequest{Payload: payload})
	if status != http.StatusOK {
		t.Fatalf("scan: %d %s", status, body)
	}
	res := mustDecode[scanResponse](t, body)
	if res.Status != "success" || res.Outcome != "first_entry" || res.Guest == nil || res.Guest.Name != "Layla Haddad" {
		t.Fatalf("unexpected first scan: %+v", res)
	}

	_, _, body = f.do(t, http.MethodPost, "/scanner/scan", tok, scanRequest{Payload: payload})
	res = mustDecode[scanResponse](t, body)
	if res.Status != "duplicate" || res.Message != "Ticket already used" {
		t.Fatalf("unexpected second scan: %+v", res)
	}

	_, _, body = f.do(t, http.MethodPost, "/scanner/scan", tok, scanRequest{Payload: "not a ticket"})
	res = mustDecode[scanResponse](t, body)
	if res.Status != "error" || res.Outcome != "invalid_payload" || res.Guest != nil {
		t.Fatalf("unexpected garbage scan: %+v", res)
	}

	var kinds []string
	for len(kinds) < 2 {
		select {
		case c := <-sub.C:
			kinds = append(kinds, c.Kind)
		case <-time.After(time.Second):
			t.Fatalf("feed delivered %v", kinds)
		}
	}
	if kinds[0] != v1.KindCreated || kinds[1] != v1.KindCheckedIn {
		t.Fatalf("unexpected feed order %v", kinds)
	}
}

func TestAPI_ScanOtherEventsTicket(t *testing.T) {
	f := newAPIFixture(t, Config{})
	evA := f.createEvent(t, "4821", false)
	evB := f.createEvent(t, "7314", false)
	guest := f.createAttendee(t, evA.ID)
	tokB := f.login(t, evB.ID, "7314")

	unknownID, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	unknownPayload, err := checkin.EncodePayload(unknownID)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	statusA, _, bodyA := f.do(t, http.MethodPost, "/scanner/scan", tokB, scanRequest{Payload: f.ticketPayload(t, guest.TicketID)})
	statusB, _, bodyB := f.do(t, http.MethodPost, "/scanner/scan", tokB, scanRequest{Payload: unknownPayload})
	if statusA != statusB {
		t.Fatalf("status differs: %d vs %d", statusA, statusB)
	}
	if !bytes.Equal(bodyA, bodyB) {
		t.Fatalf("responses differ:\n%s\n%s", bodyA, bodyB)
	}
	res := mustDecode[scanResponse](t, bodyA)
	if res.Outcome != "invalid_ticket" || res.Message != "Invalid ticket" || res.Guest != nil {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAPI_AttendeeBatchImport(t *testing.T) {
	f := newAPIFixture(t, Config{})
	ev := f.createEvent(t, "4821", false)
	f.createAttendee(t, ev.ID)

	status, _, body := f.do(t, http.MethodPost, "/events/"+ev.ID+"/attendees/batch", testAdminToken, map[string]any{
		"guests": []map[string]any{
			{"name": "Rania", "phone": "0791111111", "category": "vip"},
			{"name": "", "phone": "0792222222"},
			{"name": "Sami", "phone": "079-bad"},
			{"name": "  Huda ", "phone": "0793333333", "email": " huda@example.com "},
		},
	})
	if status != http.StatusCreated {
		t.Fatalf("batch: %d %s", status, body)
	}
	res := mustDecode[attendeeBatchResponse](t, body)
	if len(res.Created) != 2 || res.Created[0].Name != "Rania" || res.Created[1].Name != "Huda" {
		t.Fatalf("unexpected created rows %+v", res.Created)
	}
	if res.Created[1].Category != "general" || res.Created[1].Email == nil || *res.Created[1].Email != "huda@example.com" {
		t.Fatalf("row not normalized: %+v", res.Created[1])
	}
	if len(res.Failed) != 2 || res.Failed[0].Index != 1 || res.Failed[1].Index != 2 || res.Failed[0].Message == "" {
		t.Fatalf("unexpected failures %+v", res.Failed)
	}

	status, _, body = f.do(t, http.MethodGet, "/events/"+ev.ID, testAdminToken, nil)
	if status != http.StatusOK || mustDecode[eventResponse](t, body).GuestCount != 3 {
		t.Fatalf("guest_count after batch: %d %s", status, body)
	}

	status, _, body = f.do(t, http.MethodPost, "/events/"+ev.ID+"/attendees/batch", testAdminToken, map[string]any{
		"guests": []map[string]any{{"name": "Nobody", "phone": "12"}},
	})
	if status != http.StatusBadRequest || len(mustDecode[attendeeBatchResponse](t, body).Failed) != 1 {
		t.Fatalf("all rows invalid: %d %s", status, body)
	}
	if status, _, _ := f.do(t, http.MethodPost, "/events/"+ev.ID+"/attendees/batch", testAdminToken, map[string]any{"guests": []any{}}); status != http.StatusBadRequest {
		t.Fatalf("empty batch: %d", status)
	}
	status, _, _ = f.do(t, http.MethodPost, "/events/01J1N5N0Y8A8S7G1B2C3D4E5F6/attendees/batch", testAdminToken, map[string]any{
		"guests": []map[string]any{{"name": "Lost", "phone": "0794444444"}},
	})
	if status != http.StatusNotFound {
		t.Fatalf("unknown event: %d", status)
	}
	if status, _, _ := f.do(t, http.MethodPost, "/events/"+ev.ID+"/attendees/batch", "", map[string]any{"guests": []any{}}); status != http.StatusUnauthorized {
		t.Fatalf("missing admin token: %d", status)
	}
}

func TestAPI_LoginFailureIsGeneric(t *testing.T) {
	f := newAPIFixture(t, Config{})
	ev := f.createEvent(t, "4821", false)

	statusA, _, bodyA := f.do(t, http.MethodPost, "/scanner/sessions", "", map[string]any{"event_id": ev.ID, "pin": "9999"})
	statusB, _, bodyB := f.do(t, http.MethodPost, "/scanner/sessions", "", map[string]any{"event_id": "01J1N5N0Y8A8S7G1B2C3D4E5F6", "pin": "4821"})
	if statusA != http.StatusUnauthorized || statusB != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", statusA, statusB)
	}
	if !bytes.Equal(bodyA, bodyB) {
		t.Fatalf("responses differ:\n%s\n%s", bodyA, bodyB)
	}
	if e := mustDecode[errorResponse](t, bodyA); e.Error.Code != "invalid_credentials" {
		t.Fatalf("code=%q", e.Error.Code)
	}
}

func TestAPI_LoginRateLimited(t *testing.T) {
	f := newAPIFixture(t, Config{AuthRateMax: 2, AuthRateWindow: time.Minute})
	ev := f.createEvent(t, "4821", false)

	for i := 0; i < 2; i++ {
		status, _, _ := f.do(t, http.MethodPost, "/scanner/sessions", "", map[string]any{"event_id": ev.ID, "pin": "0000"})
		if status != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d", i, status)
		}
	}
	status, _, body := f.do(t, http.MethodPost, "/scanner/sessions", "", map[string]any{"event_id": ev.ID, "pin": "4821"})
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %s", status, body)
	}
}

func TestAPI_StoreOutageIsRetryable(t *testing.T) {
	f := newAPIFixture(t, Config{RetryAfter: 3 * time.Second})
	ev := f.createEvent(t, "4821", false)
	guest := f.createAttendee(t, ev.ID)
	payload := f.ticketPayload(t, guest.TicketID)
	tok := f.login(t, ev.ID, "4821")

	f.store.down.Store(true)
	status, hdr, body := f.do(t, http.MethodPost, "/scanner/scan", tok, scanRequest{Payload: payload})
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %s", status, body)
	}
	if hdr.Get("Retry-After") != "3" {
		t.Fatalf("Retry-After=%q", hdr.Get("Retry-After"))
	}

	f.store.down.Store(false)
	_, _, body = f.do(t, http.MethodPost, "/scanner/scan", tok, scanRequest{Payload: payload})
	if res := mustDecode[scanResponse](t, body); res.Outcome != "first_entry" {
		t.Fatalf("retry after outage: %+v", res)
	}
}

func TestAPI_ScannerRoutesRequireSession(t *testing.T) {
	f := newAPIFixture(t, Config{})
	ev := f.createEvent(t, "4821", false)
	tok := f.login(t, ev.ID, "4821")

	if status, _, _ := f.do(t, http.MethodPost, "/scanner/scan", "", scanRequest{Payload: "x"}); status != http.StatusUnauthorized {
		t.Fatalf("no token: %d", status)
	}
	if status, _, _ := f.do(t, http.MethodDelete, "/scanner/sessions", tok, nil); status != http.StatusNoContent {
		t.Fatalf("logout: %d", status)
	}
	if status, _, _ := f.do(t, http.MethodPost, "/scanner/scan", tok, scanRequest{Payload: "x"}); status != http.StatusUnauthorized {
		t.Fatalf("revoked token: %d", status)
	}
}

func TestAPI_ChangePIN(t *testing.T) {
	f := newAPIFixture(t, Config{})
	evA := f.createEvent(t, "4821", false)
	evB := f.createEvent(t, "7314", false)
	tok := f.login(t, evA.ID, "4821")

	status, _, _ := f.do(t, http.MethodPut, "/scanner/pin", tok, map[string]any{"event_id": evB.ID, "new_pin": "5555"})
	if status != http.StatusForbidden {
		t.Fatalf("other event: %d", status)
	}
	status, _, body := f.do(t, http.MethodPut, "/scanner/pin", tok, map[string]any{"new_pin": "12"})
	if status != http.StatusBadRequest || mustDecode[errorResponse](t, body).Error.Code != "invalid_pin" {
		t.Fatalf("short pin: %d %s", status, body)
	}
	if status, _, _ := f.do(t, http.MethodPut, "/scanner/pin", tok, map[string]any{"new_pin": "6042"}); status != http.StatusNoContent {
		t.Fatalf("change: %d", status)
	}

	// Old sessions keep working; the old PIN does not.
	if status, _, _ := f.do(t, http.MethodPost, "/scanner/scan", tok, scanRequest{Payload: "x"}); status != http.StatusOK {
		t.Fatalf("old session after change: %d", status)
	}
	if status, _, _ := f.do(t, http.MethodPost, "/scanner/sessions", "", map[string]any{"event_id": evA.ID, "pin": "4821"}); status != http.StatusUnauthorized {
		t.Fatalf("old pin accepted: %d", status)
	}
	f.login(t, evA.ID, "6042")
}

func TestAPI_OrganizerRoutes(t *testing.T) {
	f := newAPIFixture(t, Config{})

	if status, _, _ := f.do(t, http.MethodPost, "/events", "", map[string]any{"name": "x"}); status != http.StatusUnauthorized {
		t.Fatalf("missing admin token: %d", status)
	}
	if status, _, _ := f.do(t, http.MethodPost, "/events", "wrong", map[string]any{"name": "x"}); status != http.StatusUnauthorized {
		t.Fatalf("wrong admin token: %d", status)
	}

	ev := f.createEvent(t, "4821", false)

	status, _, body := f.do(t, http.MethodPost, "/events/"+ev.ID+"/attendees", testAdminToken, map[string]any{
		"name": "Omar", "phone": "07-9123", "category": "general",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("bad phone: %d %s", status, body)
	}

	guest := f.createAttendee(t, ev.ID)

	status, _, body = f.do(t, http.MethodPatch, "/attendees/"+guest.TicketID+"/rsvp", testAdminToken, map[string]any{
		"status": "declined", "regret_reason": "  travelling  ",
	})
	if status != http.StatusOK {
		t.Fatalf("rsvp: %d %s", status, body)
	}
	got := mustDecode[attendeeResponse](t, body)
	if got.RSVP != "declined" || got.RegretReason == nil || *got.RegretReason != "travelling" {
		t.Fatalf("unexpected rsvp result %+v", got)
	}

	status, _, body = f.do(t, http.MethodPatch, "/events/"+ev.ID+"/policy", testAdminToken, map[string]any{"allow_multiple_entry": true})
	if status != http.StatusOK || !mustDecode[eventResponse](t, body).AllowMultipleEntry {
		t.Fatalf("policy: %d %s", status, body)
	}

	// Manual check-in twice: first entry, then repeat entry under the new policy.
	for _, want := range []string{"first_entry", "repeat_entry"} {
		status, _, body = f.do(t, http.MethodPost, "/attendees/"+guest.TicketID+"/checkin", testAdminToken, nil)
		if status != http.StatusOK || mustDecode[scanResponse](t, body).Outcome != want {
			t.Fatalf("manual check-in want %s: %d %s", want, status, body)
		}
	}

	status, _, body = f.do(t, http.MethodPatch, "/events/"+ev.ID, testAdminToken, map[string]any{
		"name": "  Garden party  ", "location": "Madaba", "theme_color": "#0f766e",
	})
	if status != http.StatusOK {
		t.Fatalf("update event: %d %s", status, body)
	}
	upd := mustDecode[eventResponse](t, body)
	if upd.Name != "Garden party" || upd.Location != "Madaba" || upd.ThemeColor != "#0f766e" {
		t.Fatalf("unexpected update result %+v", upd)
	}
	if upd.Category != ev.Category || !upd.StartsAt.Equal(ev.StartsAt) || !upd.AllowMultipleEntry {
		t.Fatalf("update changed omitted fields: %+v", upd)
	}
	for _, bad := range []map[string]any{
		{"category": "concert"},
		{"theme_color": "teal"},
		{"name": "   "},
	} {
		if status, _, body := f.do(t, http.MethodPatch, "/events/"+ev.ID, testAdminToken, bad); status != http.StatusBadRequest {
			t.Fatalf("update %v: %d %s", bad, status, body)
		}
	}
	if status, _, _ := f.do(t, http.MethodPatch, "/events/01J1N5N0Y8A8S7G1B2C3D4E5F6", testAdminToken, map[string]any{"name": "x"}); status != http.StatusNotFound {
		t.Fatalf("update unknown event: %d", status)
	}

	status, _, body = f.do(t, http.MethodGet, "/events/"+ev.ID, testAdminToken, nil)
	if status != http.StatusOK || mustDecode[eventResponse](t, body).GuestCount != 1 {
		t.Fatalf("get event: %d %s", status, body)
	}
	if got := mustDecode[eventResponse](t, body); got.Name != "Garden party" {
		t.Fatalf("update not persisted: %+v", got)
	}

	if status, _, _ := f.do(t, http.MethodDelete, "/attendees/"+guest.TicketID, testAdminToken, nil); status != http.StatusNoContent {
		t.Fatalf("delete: %d", status)
	}
	status, _, body = f.do(t, http.MethodGet, "/events/"+ev.ID+"/attendees", testAdminToken, nil)
	if status != http.StatusOK || len(mustDecode[attendeeListResponse](t, body).Attendees) != 0 {
		t.Fatalf("list after delete: %d %s", status, body)
	}
	if status, _, _ := f.do(t, http.MethodGet, "/attendees/"+guest.TicketID+"/ticket", testAdminToken, nil); status != http.StatusNotFound {
		t.Fatalf("ticket after delete: %d", status)
	}
	if status, _, _ := f.do(t, http.MethodGet, "/events/not-an-id", testAdminToken, nil); status != http.StatusNotFound {
		t.Fatalf("bad id: %d", status)
	}
}
