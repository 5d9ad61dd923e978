// Package scanner gates door devices behind the event PIN.
//
// This is a low-assurance convenience gate, not an authentication system: anyone who
// knows the PIN can scan for the event. A successful PIN check mints an opaque token
// the device keeps and presents on every scan. Only the token's hash is stored.
// Sessions do not expire unless GG_SCANNER_SESSION_TTL is set; they end when the
// device logs out. Changing the PIN does not end existing sessions.
//
// Rejections never say whether the event exists. Store failures are reported as
// retryable errors and never as a wrong PIN.
package scanner
