package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"guestgate/cmd/internal/scanner"
	"guestgate/cmd/internal/ticket"
	v1 "guestgate/shared/contracts/live/v1"

	"github.com/coder/websocket"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// SessionValidator resolves a scanner token to its session.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (scanner.Session, error)
}

// RosterSource loads the snapshot sent after hello.
type RosterSource interface {
	GetEvent(ctx context.Context, eventID string) (ticket.Event, error)
	ListAttendees(ctx context.Context, eventID string) ([]ticket.Attendee, error)
}

// WSGateway is the WebSocket entrypoint for the live feed.
//
// It enforces origin policy, subprotocol selection, rate limits and heartbeats,
// authenticates the device with its scanner token, and streams the event's changes.
type WSGateway struct {
	log      *slog.Logger
	feed     *Feed
	sessions SessionValidator
	roster   RosterSource

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout  time.Duration
	helloTimeout  time.Duration
	sendQueueSize int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewWSGateway constructs a gateway with secure defaults read from GG_LIVE_* env vars.
func NewWSGateway(log *slog.Logger, feed *Feed, sessions SessionValidator, roster RosterSource) (*WSGateway, error) {
	if feed == nil || sessions == nil || roster == nil {
		return nil, errors.New("realtime: feed, sessions and roster are required")
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &WSGateway{log: log, feed: feed, sessions: sessions, roster: roster}

	// NOTE: InsecureSkipVerify disables the library's own origin check. Dev only.
	g.devInsecure = envBoolWS("GG_LIVE_DEV_INSECURE", false)

	g.originRequired = envBoolWS("GG_LIVE_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("GG_LIVE_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept enforces its own origin policy:
	// - same-host is ok
	// - cross-origin requires OriginPatterns (host patterns)
	// We derive these patterns from allowed origins so the two layers agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("GG_LIVE_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.helloTimeout = envDurationWS("GG_LIVE_HELLO_TIMEOUT", helloTimeout)

	g.sendQueueSize = envIntWS("GG_LIVE_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("GG_LIVE_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("GG_LIVE_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("GG_LIVE_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("GG_LIVE_RATE_WINDOW", rateLimitWindow)

	return g, nil
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// start is handed from the read loop to the writer once hello succeeded.
// The initial envelopes are written before any change from sub.
type start struct {
	initial []v1.Envelope
	sub     *Subscription
}

// HandleWS upgrades an HTTP request and streams one event's changes to the device.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("live.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("live.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("live.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	connID, err := NewConnectionID(time.Now().UTC())
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		closeOnce sync.Once
		sub       *Subscription
		subMu     sync.Mutex
	)
	out := make(chan v1.Envelope, g.sendQueueSize)
	started := make(chan start, 1)

	// shutdown is idempotent. It leaves the feed before closing the socket.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			subMu.Lock()
			if sub != nil {
				sub.Close()
			}
			subMu.Unlock()

			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		var changes <-chan Change
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-started:
				for _, env := range st.initial {
					if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
						g.log.Info("live.write.fail", "connection_id", connID, "err", err)
						shutdown(websocket.StatusAbnormalClosure, "write failed")
						return
					}
				}
				changes = st.sub.C
			case env := <-out:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("live.write.fail", "connection_id", connID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			case c := <-changes:
				env, err := changeEnvelope(c)
				if err != nil {
					g.log.Error("live.encode.fail", "connection_id", connID, "err", err)
					continue
				}
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("live.write.fail", "connection_id", connID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("live.ping.fail", "connection_id", connID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)
	authed := false

readLoop:
	for {
		readCtx := ctx
		readCancel := context.CancelFunc(func() {})
		if !authed {
			readCtx, readCancel = context.WithTimeout(ctx, g.helloTimeout)
		}
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				if !authed && ctx.Err() == nil {
					g.trySendError(ctx, out, "hello_timeout", "hello required")
					shutdown(websocket.StatusPolicyViolation, "hello timeout")
				} else {
					shutdown(websocket.StatusNormalClosure, "context done")
				}
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, out, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("live.read.fail", "connection_id", connID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.Allow(time.Now().UTC()) {
			g.trySendError(ctx, out, "rate_limited", "too many frames")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, out, "bad_envelope", err.Error())
			continue readLoop
		}

		switch {
		case env.Type == v1.TypeHello && !authed:
			st, err := g.onHello(ctx, connID, env)
			if err != nil {
				code := "hello_failed"
				if errors.Is(err, scanner.ErrUnauthorized) {
					code = "unauthorized"
				} else if errors.Is(err, ticket.ErrUnavailable) {
					code = "unavailable"
				}
				g.trySendError(ctx, out, code, "hello failed")
				shutdown(websocket.StatusPolicyViolation, "hello failed")
				break readLoop
			}
			subMu.Lock()
			sub = st.sub
			subMu.Unlock()
			started <- st
			authed = true

		case env.Type == v1.TypeHello:
			g.trySendError(ctx, out, "already_authenticated", "hello already accepted")

		default:
			g.trySendError(ctx, out, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handlers ----

func (g *WSGateway) onHello(ctx context.Context, connID string, env v1.Envelope) (start, error) {
	var p v1.HelloPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return start{}, fmt.Errorf("invalid payload: %w", err)
	}

	sess, err := g.sessions.Validate(ctx, p.Token)
	if err != nil {
		g.log.Info("live.hello.reject", "connection_id", connID, "err", err)
		return start{}, err
	}

	// Subscribe before reading the snapshot so no change falls in between.
	// Changes that raced the snapshot are re-sent; roster upserts are idempotent.
	sub := g.feed.Subscribe(sess.EventID, g.sendQueueSize)

	ev, err := g.roster.GetEvent(ctx, sess.EventID)
	if err != nil {
		sub.Close()
		return start{}, err
	}
	attendees, err := g.roster.ListAttendees(ctx, sess.EventID)
	if err != nil {
		sub.Close()
		return start{}, err
	}

	now := time.Now().UTC()
	ack, err := v1.NewEnvelope(v1.TypeHelloAck, NewEnvelopeID(now), sess.EventID, now, v1.HelloAckPayload{
		ConnectionID: connID,
		EventID:      sess.EventID,
	})
	if err != nil {
		sub.Close()
		return start{}, err
	}
	snap, err := snapshotEnvelope(ev, attendees, now)
	if err != nil {
		sub.Close()
		return start{}, err
	}

	g.log.Info("live.hello.ok", "connection_id", connID, "event_id", sess.EventID, "session_id", sess.ID)
	return start{initial: []v1.Envelope{ack, snap}, sub: sub}, nil
}

// ---- send helpers ----

func (g *WSGateway) trySendError(ctx context.Context, out chan<- v1.Envelope, code, msg string) {
	now := time.Now().UTC()
	env, err := v1.NewEnvelope(v1.TypeError, NewEnvelopeID(now), "", now, v1.ErrorPayload{Code: code, Message: msg})
	if err != nil {
		return
	}
	select {
	case <-ctx.Done():
	case out <- env:
	default:
	}
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, errBadJSON
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

var errBadJSON = errors.New("invalid JSON")

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if errors.Is(err, errBadJSON) {
		return readErrBadJSON
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// Only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
