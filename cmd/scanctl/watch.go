package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"guestgate/cmd/internal/roster"
	v1 "guestgate/shared/contracts/live/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20

type watchOptions struct {
	URL     string
	Token   string
	Origin  string
	Timeout time.Duration
	Once    bool
}

// watch follows the live feed and prints the guest counts after every change.
func watch(ctx context.Context, opts watchOptions, out io.Writer) error {
	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(opts.Origin) != "" {
		h.Set("Origin", opts.Origin)
	}
	conn, resp, err := websocket.Dial(dialCtx, opts.URL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	conn.SetReadLimit(maxReadBytes)

	hello, err := v1.NewEnvelope(v1.TypeHello, "scanctl-hello", "", time.Now().UTC(), v1.HelloPayload{Token: opts.Token})
	if err != nil {
		return err
	}
	if err := writeEnvelope(ctx, conn, hello, opts.Timeout); err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	state := roster.New()
	for {
		env, err := readEnvelope(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch env.Type {
		case v1.TypeHelloAck:
			var ack v1.HelloAckPayload
			if err := json.Unmarshal(env.Payload, &ack); err != nil {
				return fmt.Errorf("hello_ack: %w", err)
			}
			fmt.Fprintf(out, "connected %s event=%s\n", ack.ConnectionID, ack.EventID)
			continue
		case v1.TypeError:
			var p v1.ErrorPayload
			_ = json.Unmarshal(env.Payload, &p)
			return fmt.Errorf("server: %s: %s", p.Code, p.Message)
		}

		if err := state.ApplyEnvelope(env); err != nil {
			if errors.Is(err, roster.ErrUnknownEvent) {
				continue
			}
			return err
		}

		if env.Type == v1.TypeAttendeeChanged {
			var p v1.AttendeeChangedPayload
			if err := json.Unmarshal(env.Payload, &p); err == nil {
				fmt.Fprintf(out, "%s %s %s\n", p.Kind, p.Attendee.TicketID, p.Attendee.Name)
			}
		}
		fmt.Fprintln(out, formatCounts(state))

		if opts.Once && env.Type == v1.TypeRosterSnapshot {
			return nil
		}
	}
}

func formatCounts(s *roster.State) string {
	c := s.Counts()
	return fmt.Sprintf("%s: %d/%d in | confirmed=%d invited=%d declined=%d",
		s.EventName(), c.Attended, c.Total, c.Confirmed, c.Invited, c.Declined)
}

func writeEnvelope(ctx context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, b)
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if typ != websocket.MessageText {
		return v1.Envelope{}, errors.New("unexpected binary frame")
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, env.Validate()
}
