package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"guestgate/cmd/identity/ids"
	"guestgate/cmd/internal/checkin"
	"guestgate/cmd/internal/ticket"
	v1 "guestgate/shared/contracts/live/v1"
)

func (h *Handler) handleEventCreate(w http.ResponseWriter, r *http.Request) {
	var req eventCreateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)
	if msg := validateRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	hash, err := h.scanners.HashPIN(req.PIN)
	if err != nil {
		if pinPolicyError(err) {
			writeError(w, http.StatusBadRequest, "invalid_pin", err.Error())
			return
		}
		h.log.Error("events.create.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	now := h.now()
	id, err := ids.NewULID(now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	ev, err := h.store.CreateEvent(r.Context(), ticket.NewEvent{
		ID:                 id,
		Name:               req.Name,
		StartsAt:           req.StartsAt.UTC(),
		Location:           req.Location,
		Category:           ticket.EventCategory(req.Category),
		ThemeColor:         req.ThemeColor,
		PINHash:            hash,
		AllowMultipleEntry: req.AllowMultipleEntry,
		CreatedAt:          now,
	})
	if err != nil {
		h.storeError(w, r, "events.create", err)
		return
	}
	h.log.Info("events.created", "event_id", ev.ID)
	writeJSON(w, http.StatusCreated, toEventResponse(ev))
}

func (h *Handler) handleEventGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	ev, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "events.get", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

func (h *Handler) handleEventUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	var req eventUpdateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.Name != nil {
		n := strings.TrimSpace(*req.Name)
		req.Name = &n
	}
	if req.Location != nil {
		l := strings.TrimSpace(*req.Location)
		req.Location = &l
	}
	if msg := validateRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}
	if req.Name != nil && *req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	cur, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "events.update", err)
		return
	}
	upd := ticket.EventUpdate{
		Name:       cur.Name,
		StartsAt:   cur.StartsAt,
		Location:   cur.Location,
		Category:   cur.Category,
		ThemeColor: cur.ThemeColor,
	}
	if req.Name != nil {
		upd.Name = *req.Name
	}
	if req.StartsAt != nil {
		upd.StartsAt = req.StartsAt.UTC()
	}
	if req.Location != nil {
		upd.Location = *req.Location
	}
	if req.Category != nil {
		upd.Category = ticket.EventCategory(*req.Category)
	}
	if req.ThemeColor != nil {
		upd.ThemeColor = *req.ThemeColor
	}

	ev, err := h.store.UpdateEvent(r.Context(), id, upd)
	if err != nil {
		h.storeError(w, r, "events.update", err)
		return
	}
	h.log.Info("events.updated", "event_id", ev.ID)
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

func (h *Handler) handleEventPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	var req policyRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if msg := validateRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}
	if err := h.store.SetAllowMultipleEntry(r.Context(), id, *req.AllowMultipleEntry); err != nil {
		h.storeError(w, r, "events.policy", err)
		return
	}
	ev, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "events.policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

func (h *Handler) handleEventPIN(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	var req eventPINRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if msg := validateRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}
	if err := h.scanners.SetEventPIN(r.Context(), id, req.PIN); err != nil {
		if pinPolicyError(err) {
			writeError(w, http.StatusBadRequest, "invalid_pin", err.Error())
			return
		}
		h.storeError(w, r, "events.pin", err)
		return
	}
	h.log.Info("events.pin.reset", "event_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAttendeeCreate(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	var req attendeeCreateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	req.normalize()
	if msg := validateRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	in, err := h.newAttendee(eventID, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	a, err := h.store.CreateAttendee(r.Context(), in)
	if err != nil {
		h.storeError(w, r, "attendees.create", err)
		return
	}
	h.publish(v1.KindCreated, a)
	writeJSON(w, http.StatusCreated, toAttendeeResponse(a))
}

// handleAttendeeBatch imports a guest list. Rows that fail validation are
// reported by index; the remaining rows are inserted in one transaction.
func (h *Handler) handleAttendeeBatch(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	var req attendeeBatchRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if len(req.Guests) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "guests is required")
		return
	}
	if len(req.Guests) > ticket.MaxBatchAttendees {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("guests must contain at most %d entries", ticket.MaxBatchAttendees))
		return
	}

	out := attendeeBatchResponse{
		EventID: eventID,
		Created: []attendeeResponse{},
		Failed:  []batchRowError{},
	}
	rows := make([]ticket.NewAttendee, 0, len(req.Guests))
	for i, g := range req.Guests {
		g.normalize()
		if msg := validateRequest(g); msg != "" {
			out.Failed = append(out.Failed, batchRowError{Index: i, Message: msg})
			continue
		}
		in, err := h.newAttendee(eventID, g)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		rows = append(rows, in)
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusBadRequest, out)
		return
	}

	created, err := h.store.CreateAttendees(r.Context(), eventID, rows)
	if err != nil {
		h.storeError(w, r, "attendees.batch", err)
		return
	}
	for _, a := range created {
		h.publish(v1.KindCreated, a)
		out.Created = append(out.Created, toAttendeeResponse(a))
	}
	h.log.Info("attendees.batch.created", "event_id", eventID, "created", len(created), "failed", len(out.Failed))
	writeJSON(w, http.StatusCreated, out)
}

func (req *attendeeCreateRequest) normalize() {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Email != nil {
		e := strings.TrimSpace(*req.Email)
		req.Email = &e
		if e == "" {
			req.Email = nil
		}
	}
	if req.Category == "" {
		req.Category = string(ticket.GuestGeneral)
	}
}

func (h *Handler) newAttendee(eventID string, req attendeeCreateRequest) (ticket.NewAttendee, error) {
	now := h.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return ticket.NewAttendee{}, err
	}
	return ticket.NewAttendee{
		ID:        id,
		EventID:   eventID,
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		Category:  ticket.GuestCategory(req.Category),
		CreatedAt: now,
	}, nil
}

func (h *Handler) handleAttendeeList(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	if _, err := h.store.GetEvent(r.Context(), eventID); err != nil {
		h.storeError(w, r, "attendees.list", err)
		return
	}
	list, err := h.store.ListAttendees(r.Context(), eventID)
	if err != nil {
		h.storeError(w, r, "attendees.list", err)
		return
	}
	out := attendeeListResponse{EventID: eventID, Attendees: make([]attendeeResponse, 0, len(list))}
	for _, a := range list {
		out.Attendees = append(out.Attendees, toAttendeeResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAttendeeRSVP(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	var req rsvpRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if msg := validateRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}
	a, err := h.store.UpdateRSVP(r.Context(), id, ticket.RSVPUpdate{
		Status:       ticket.RSVPStatus(req.Status),
		RegretReason: req.RegretReason,
	})
	if err != nil {
		h.storeError(w, r, "attendees.rsvp", err)
		return
	}
	h.publish(v1.KindRSVP, a)
	writeJSON(w, http.StatusOK, toAttendeeResponse(a))
}

func (h *Handler) handleAttendeeDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	a, err := h.store.Lookup(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "attendees.delete", err)
		return
	}
	if err := h.store.DeleteAttendee(r.Context(), id); err != nil {
		h.storeError(w, r, "attendees.delete", err)
		return
	}
	h.publish(v1.KindDeleted, a)
	w.WriteHeader(http.StatusNoContent)
}

// handleAttendeeCheckIn lets staff admit a guest without a readable code.
// It goes through the same Authority as scans, so the one-time rule still holds.
func (h *Handler) handleAttendeeCheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	a, err := h.store.Lookup(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "attendees.checkin", err)
		return
	}
	res, err := h.authority.CheckIn(r.Context(), a.EventID, id)
	if err != nil {
		h.storeError(w, r, "attendees.checkin", err)
		return
	}
	if res.Outcome == checkin.OutcomeNotFound {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(res))
}

func (h *Handler) handleAttendeeTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	if _, err := h.store.Lookup(r.Context(), id); err != nil {
		h.storeError(w, r, "attendees.ticket", err)
		return
	}
	payload, err := checkin.EncodePayload(id)
	if err != nil {
		if errors.Is(err, checkin.ErrInvalidPayload) {
			writeError(w, http.StatusNotFound, "not_found", "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, ticketCodeResponse{TicketID: id, Payload: payload})
}
