package api

import "time"

type sessionCreateRequest struct {
	EventID string `json:"event_id" validate:"required,max=64"`
	PIN     string `json:"pin" validate:"required,max=64"`
	Device  string `json:"device" validate:"max=128"`
}

type sessionCreateResponse struct {
	Token     string     `json:"token"`
	SessionID string     `json:"session_id"`
	EventID   string     `json:"event_id"`
	Device    string     `json:"device,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type scanRequest struct {
	Payload string `json:"payload"`
}

type guestResponse struct {
	TicketID   string     `json:"ticket_id"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	RSVP       string     `json:"rsvp"`
	AttendedAt *time.Time `json:"attended_at,omitempty"`
}

type scanResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Outcome string         `json:"outcome"`
	Guest   *guestResponse `json:"guest,omitempty"`
}

type pinChangeRequest struct {
	EventID string `json:"event_id" validate:"omitempty,ulid"`
	NewPIN  string `json:"new_pin" validate:"required,max=64"`
}

type eventCreateRequest struct {
	Name               string    `json:"name" validate:"required,max=100"`
	StartsAt           time.Time `json:"starts_at" validate:"required"`
	Location           string    `json:"location" validate:"max=200"`
	Category           string    `json:"category" validate:"required,oneof=social business"`
	ThemeColor         string    `json:"theme_color" validate:"omitempty,hexcolor"`
	PIN                string    `json:"pin" validate:"required,max=64"`
	AllowMultipleEntry bool      `json:"allow_multiple_entry"`
}

type eventResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	StartsAt           time.Time `json:"starts_at"`
	Location           string    `json:"location"`
	Category           string    `json:"category"`
	ThemeColor         string    `json:"theme_color,omitempty"`
	AllowMultipleEntry bool      `json:"allow_multiple_entry"`
	GuestCount         int       `json:"guest_count"`
	CreatedAt          time.Time `json:"created_at"`
}

// eventUpdateRequest is a partial update. Omitted fields keep their value.
type eventUpdateRequest struct {
	Name       *string    `json:"name" validate:"omitempty,min=1,max=100"`
	StartsAt   *time.Time `json:"starts_at"`
	Location   *string    `json:"location" validate:"omitempty,max=200"`
	Category   *string    `json:"category" validate:"omitempty,oneof=social business"`
	ThemeColor *string    `json:"theme_color" validate:"omitempty,hexcolor"`
}

type policyRequest struct {
	AllowMultipleEntry *bool `json:"allow_multiple_entry" validate:"required"`
}

type eventPINRequest struct {
	PIN string `json:"pin" validate:"required,max=64"`
}

type attendeeCreateRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Phone    string  `json:"phone" validate:"required,phone"`
	Email    *string `json:"email" validate:"omitempty,email,max=254"`
	Category string  `json:"category" validate:"omitempty,oneof=general vip family"`
}

type attendeeBatchRequest struct {
	Guests []attendeeCreateRequest `json:"guests"`
}

type batchRowError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

type attendeeBatchResponse struct {
	EventID string             `json:"event_id"`
	Created []attendeeResponse `json:"created"`
	Failed  []batchRowError    `json:"failed"`
}

type attendeeResponse struct {
	TicketID     string     `json:"ticket_id"`
	EventID      string     `json:"event_id"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	Email        *string    `json:"email,omitempty"`
	Category     string     `json:"category"`
	RSVP         string     `json:"rsvp"`
	RegretReason *string    `json:"regret_reason,omitempty"`
	Attended     bool       `json:"attended"`
	AttendedAt   *time.Time `json:"attended_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type attendeeListResponse struct {
	EventID   string             `json:"event_id"`
	Attendees []attendeeResponse `json:"attendees"`
}

type rsvpRequest struct {
	Status       string  `json:"status" validate:"required,oneof=invited confirmed declined"`
	RegretReason *string `json:"regret_reason" validate:"omitempty,max=500"`
}

type ticketCodeResponse struct {
	TicketID string `json:"ticket_id"`
	Payload  string `json:"payload"`
}
