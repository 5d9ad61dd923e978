package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"guestgate/cmd/identity/ids"
	"guestgate/cmd/internal/checkin"
	"guestgate/cmd/internal/realtime"
	"guestgate/cmd/internal/scanner"
	"guestgate/cmd/internal/ticket"
	"guestgate/cmd/security/pin"
	"guestgate/cmd/security/token"

	"github.com/go-chi/httprate"
)

// Deps are the services the API fronts.
type Deps struct {
	Store     ticket.Store
	Scanners  *scanner.Service
	Authority *checkin.Authority
	Feed      *realtime.Feed
	// Live serves GET /live. Optional.
	Live http.Handler
}

// Handler wires HTTP endpoints to the check-in services.
type Handler struct {
	log *slog.Logger
	cfg Config

	store     ticket.Store
	scanners  *scanner.Service
	authority *checkin.Authority
	feed      *realtime.Feed
	live      http.Handler

	adminHash string
	now       func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, deps Deps) (*Handler, error) {
	if deps.Store == nil || deps.Scanners == nil || deps.Authority == nil {
		return nil, errors.New("api: store, scanners and authority are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 2 * time.Second
	}
	if cfg.AuthRateMax <= 0 {
		cfg.AuthRateMax = 10
	}
	if cfg.AuthRateWindow <= 0 {
		cfg.AuthRateWindow = time.Minute
	}

	h := &Handler{
		log:       log,
		cfg:       cfg,
		store:     deps.Store,
		scanners:  deps.Scanners,
		authority: deps.Authority,
		feed:      deps.Feed,
		live:      deps.Live,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if cfg.AdminToken != "" {
		h.adminHash = token.HashSHA256Hex(cfg.AdminToken)
	}
	return h, nil
}

// Register wires routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}

	mux.Handle("POST /scanner/sessions", h.authLimiter()(http.HandlerFunc(h.handleSessionCreate)))
	mux.HandleFunc("DELETE /scanner/sessions", h.handleSessionDelete)
	mux.HandleFunc("POST /scanner/scan", h.handleScan)
	mux.HandleFunc("PUT /scanner/pin", h.handlePINChange)
	if h.live != nil {
		mux.Handle("GET /live", h.live)
	}

	mux.HandleFunc("POST /events", h.admin(h.handleEventCreate))
	mux.HandleFunc("GET /events/{id}", h.admin(h.handleEventGet))
	mux.HandleFunc("PATCH /events/{id}", h.admin(h.handleEventUpdate))
	mux.HandleFunc("PATCH /events/{id}/policy", h.admin(h.handleEventPolicy))
	mux.HandleFunc("PUT /events/{id}/pin", h.admin(h.handleEventPIN))
	mux.HandleFunc("POST /events/{id}/attendees", h.admin(h.handleAttendeeCreate))
	mux.HandleFunc("POST /events/{id}/attendees/batch", h.admin(h.handleAttendeeBatch))
	mux.HandleFunc("GET /events/{id}/attendees", h.admin(h.handleAttendeeList))
	mux.HandleFunc("PATCH /attendees/{id}/rsvp", h.admin(h.handleAttendeeRSVP))
	mux.HandleFunc("DELETE /attendees/{id}", h.admin(h.handleAttendeeDelete))
	mux.HandleFunc("POST /attendees/{id}/checkin", h.admin(h.handleAttendeeCheckIn))
	mux.HandleFunc("GET /attendees/{id}/ticket", h.admin(h.handleAttendeeTicket))
}

// authLimiter throttles PIN attempts per client IP.
func (h *Handler) authLimiter() func(http.Handler) http.Handler {
	keyFunc := httprate.KeyByIP
	if h.cfg.TrustProxy {
		keyFunc = httprate.KeyByRealIP
	}
	return httprate.Limit(
		h.cfg.AuthRateMax,
		h.cfg.AuthRateWindow,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(writeRateLimited),
	)
}

// ---- auth helpers ----

func (h *Handler) requireScanner(w http.ResponseWriter, r *http.Request) (scanner.Session, bool) {
	tok := bearerToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return scanner.Session{}, false
	}
	sess, err := h.scanners.Validate(r.Context(), tok)
	if err != nil {
		if errors.Is(err, scanner.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return scanner.Session{}, false
		}
		h.storeError(w, r, "scanner.validate", err)
		return scanner.Session{}, false
	}
	return sess, true
}

func (h *Handler) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.adminHash == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "organizer access disabled")
			return
		}
		tok := bearerToken(r)
		if tok == "" || !token.EqualHex(token.HashSHA256Hex(tok), h.adminHash) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// pathID returns the canonical {id} path value, or false when it is not an id.
func pathID(r *http.Request) (string, bool) {
	return ids.Normalize(r.PathValue("id"))
}

// ---- error mapping ----

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ticket.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, ticket.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	case errors.Is(err, ticket.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "already exists")
	case errors.Is(err, ticket.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		h.log.Warn(op+".unavailable", "err", err, "path", r.URL.Path)
		writeUnavailable(w, h.cfg.RetryAfter)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		h.log.Error(op+".fail", "err", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func pinPolicyError(err error) bool {
	return errors.Is(err, pin.ErrPINTooShort) ||
		errors.Is(err, pin.ErrPINTooLong) ||
		errors.Is(err, pin.ErrPINNotNumeric) ||
		errors.Is(err, pin.ErrWeakPIN)
}

func (h *Handler) publish(kind string, a ticket.Attendee) {
	if h.feed == nil {
		return
	}
	h.feed.Publish(realtime.Change{Kind: kind, EventID: a.EventID, Attendee: a, At: h.now()})
}
