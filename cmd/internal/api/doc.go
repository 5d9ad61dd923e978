// Package api is the HTTP surface for door devices and organizers.
//
// Scanner routes authenticate with the opaque token returned by POST /scanner/sessions.
// Organizer routes authenticate with the deployment's admin token. Every error body uses
// the same envelope:
//
//	{"error":{"code":"...","message":"..."}}
//
// Store outages are answered with 503 and a Retry-After header so devices can retry the
// same scan safely.
package api
