package scanner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"guestgate/cmd/identity/ids"
	"guestgate/cmd/internal/ticket"
	"guestgate/cmd/security/pin"
	"guestgate/cmd/security/token"
)

// maxPINInput bounds what is handed to the hasher for a check.
const maxPINInput = 64

// Session is an authorized door device.
type Session struct {
	ID        string
	EventID   string
	Device    string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Issued is returned once, on successful authentication.
// Token is shown to the device and never stored.
type Issued struct {
	Token   string
	Session Session
}

// Service implements the PIN gate and scanner session lifecycle.
type Service struct {
	store ticket.Store
	pins  pin.Config
	cfg   Config
	log   *slog.Logger
	now   func() time.Time

	dummyHash string
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService constructs a Service.
func NewService(store ticket.Store, pins pin.Config, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ticket.ErrInvalidInput
	}
	if cfg.TokenBytes <= 0 {
		cfg.TokenBytes = token.DefaultBytes
	}
	if cfg.MaxDeviceLabel <= 0 {
		cfg.MaxDeviceLabel = DefaultConfig().MaxDeviceLabel
	}

	dummy, err := pins.DummyHash()
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:     store,
		pins:      pins,
		cfg:       cfg,
		log:       slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		dummyHash: dummy,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Authorize reports whether pin matches the event's stored hash.
// Wrong PINs, unknown events and malformed input all return (false, nil).
// Only store failures return an error, and it wraps ticket.ErrUnavailable.
func (s *Service) Authorize(ctx context.Context, eventID, suppliedPIN string) (bool, error) {
	suppliedPIN = pin.Normalize(suppliedPIN)
	if suppliedPIN == "" || len(suppliedPIN) > maxPINInput || !utf8.ValidString(suppliedPIN) {
		AuthTotal.WithLabelValues("fail").Inc()
		return false, nil
	}
	eventID, ok := ids.Normalize(eventID)
	if !ok {
		s.burn(suppliedPIN)
		AuthTotal.WithLabelValues("fail").Inc()
		return false, nil
	}

	match, err := ticket.VerifyPIN(ctx, s.store, s.pins, eventID, suppliedPIN)
	switch {
	case err == nil:
	case errors.Is(err, ticket.ErrNotFound):
		s.burn(suppliedPIN)
		match = false
	case errors.Is(err, ticket.ErrUnavailable), ctx.Err() != nil:
		AuthTotal.WithLabelValues("unavailable").Inc()
		return false, err
	default:
		// Corrupt stored hash: fail closed and tell the operator.
		s.log.Error("scanner.auth.bad_hash", "event_id", eventID, "err", err)
		match = false
	}

	if match {
		AuthTotal.WithLabelValues("ok").Inc()
	} else {
		AuthTotal.WithLabelValues("fail").Inc()
	}
	return match, nil
}

// Authenticate checks the PIN and, on success, issues a session token for the device.
func (s *Service) Authenticate(ctx context.Context, eventID, suppliedPIN, device string) (Issued, error) {
	ok, err := s.Authorize(ctx, eventID, suppliedPIN)
	if err != nil {
		s.log.Warn("scanner.auth.unavailable", "event_id", eventID, "err", err)
		return Issued{}, err
	}
	if !ok {
		s.log.Info("scanner.auth.fail", "event_id", eventID)
		return Issued{}, ErrAuthFailure
	}
	eventID, _ = ids.Normalize(eventID)

	s.upgradeLegacyHash(ctx, eventID, pin.Normalize(suppliedPIN))

	now := s.now()
	plain, err := token.NewOpaque(s.cfg.TokenBytes)
	if err != nil {
		return Issued{}, err
	}
	sessionID, err := ids.NewULID(now)
	if err != nil {
		return Issued{}, err
	}

	in := ticket.NewSession{
		ID:        sessionID,
		EventID:   eventID,
		TokenHash: token.HashCapabilityHex(plain),
		Device:    clampLabel(device, s.cfg.MaxDeviceLabel),
		CreatedAt: now,
	}
	if s.cfg.SessionTTL > 0 {
		exp := now.Add(s.cfg.SessionTTL)
		in.ExpiresAt = &exp
	}

	stored, err := s.store.CreateScannerSession(ctx, in)
	if err != nil {
		return Issued{}, err
	}

	s.log.Info("scanner.session.issued", "event_id", eventID, "session_id", stored.ID, "device", stored.Device)
	return Issued{Token: plain, Session: toSession(stored)}, nil
}

// Validate resolves a presented token to its active session.
func (s *Service) Validate(ctx context.Context, plainToken string) (Session, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return Session{}, ErrUnauthorized
	}

	stored, err := s.store.GetScannerSession(ctx, token.HashCapabilityHex(plainToken))
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, err
	}
	if !stored.Active(s.now()) {
		return Session{}, ErrUnauthorized
	}
	return toSession(stored), nil
}

// Logout revokes the session behind plainToken.
func (s *Service) Logout(ctx context.Context, plainToken string) error {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return ErrUnauthorized
	}
	err := s.store.RevokeScannerSession(ctx, token.HashCapabilityHex(plainToken), s.now())
	if errors.Is(err, ticket.ErrNotFound) {
		return ErrUnauthorized
	}
	return err
}

// ChangePIN lets an authorized device set a new PIN for its own event.
// Existing sessions, including the caller's, stay valid.
func (s *Service) ChangePIN(ctx context.Context, caller Session, eventID, newPIN string) error {
	eventID, ok := ids.Normalize(eventID)
	if !ok || caller.EventID != eventID {
		return ErrForbidden
	}
	if err := s.SetEventPIN(ctx, eventID, newPIN); err != nil {
		return err
	}
	s.log.Info("scanner.pin.changed", "event_id", eventID, "session_id", caller.ID)
	return nil
}

// SetEventPIN hashes newPIN under the current policy and stores it.
// Policy violations are returned as pin.Err* values.
func (s *Service) SetEventPIN(ctx context.Context, eventID, newPIN string) error {
	h, err := s.pins.Hash(pin.Normalize(newPIN))
	if err != nil {
		return err
	}
	return s.store.SetPINHash(ctx, eventID, h)
}

// HashPIN hashes a PIN for a new event.
func (s *Service) HashPIN(newPIN string) (string, error) {
	return s.pins.Hash(pin.Normalize(newPIN))
}

// upgradeLegacyHash rehashes with current parameters after a successful check.
// Failures are logged and otherwise ignored; the old hash keeps working.
func (s *Service) upgradeLegacyHash(ctx context.Context, eventID, plainPIN string) {
	current, err := s.store.PINHash(ctx, eventID)
	if err != nil || !s.pins.NeedsRehash(current) {
		return
	}
	h, err := s.pins.Hash(plainPIN)
	if err != nil {
		s.log.Warn("scanner.pin.rehash_skipped", "event_id", eventID, "err", err)
		return
	}
	if err := s.store.SetPINHash(ctx, eventID, h); err != nil {
		s.log.Warn("scanner.pin.rehash_failed", "event_id", eventID, "err", err)
		return
	}
	s.log.Info("scanner.pin.rehashed", "event_id", eventID)
}

// burn spends one verification on the dummy hash so unknown events cost the same as known ones.
func (s *Service) burn(p string) {
	_, _ = s.pins.Verify(s.dummyHash, p)
}

func toSession(st ticket.ScannerSession) Session {
	return Session{
		ID:        st.ID,
		EventID:   st.EventID,
		Device:    st.Device,
		CreatedAt: st.CreatedAt,
		ExpiresAt: st.ExpiresAt,
	}
}

func clampLabel(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxRunes])
}
