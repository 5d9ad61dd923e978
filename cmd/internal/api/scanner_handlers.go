package api

import (
	"errors"
	"net/http"
	"strings"

	"guestgate/cmd/internal/scanner"
	"guestgate/cmd/internal/ticket"
)

func (h *Handler) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if msg := validateRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	issued, err := h.scanners.Authenticate(r.Context(), req.EventID, req.PIN, req.Device)
	if err != nil {
		if errors.Is(err, scanner.ErrAuthFailure) {
			// One answer for unknown events and wrong PINs.
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid event or pin")
			return
		}
		h.storeError(w, r, "scanner.session.create", err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionCreateResponse{
		Token:     issued.Token,
		SessionID: issued.Session.ID,
		EventID:   issued.Session.EventID,
		Device:    issued.Session.Device,
		ExpiresAt: issued.Session.ExpiresAt,
	})
}

func (h *Handler) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	tok := bearerToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if err := h.scanners.Logout(r.Context(), tok); err != nil {
		if errors.Is(err, scanner.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		h.storeError(w, r, "scanner.session.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireScanner(w, r)
	if !ok {
		return
	}

	var req scanRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	res, err := h.authority.Scan(r.Context(), sess.EventID, []byte(req.Payload))
	if err != nil {
		h.storeError(w, r, "scanner.scan", err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(res))
}

func (h *Handler) handlePINChange(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireScanner(w, r)
	if !ok {
		return
	}

	var req pinChangeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if msg := validateRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		eventID = sess.EventID
	}

	err := h.scanners.ChangePIN(r.Context(), sess, eventID, req.NewPIN)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, scanner.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "session not valid for this event")
	case pinPolicyError(err):
		writeError(w, http.StatusBadRequest, "invalid_pin", err.Error())
	case errors.Is(err, ticket.ErrNotFound):
		// The session outlived its event; treat it as no longer authorized.
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
	default:
		h.storeError(w, r, "scanner.pin.change", err)
	}
}
