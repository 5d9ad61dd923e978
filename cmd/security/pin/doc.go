// Package pin provides hashing and verification for event scanner PINs.
//
// New PINs are hashed with Argon2id into a PHC-like encoded string. Hashes written by
// the previous bcrypt-based migration are still accepted by Verify so existing events
// keep working until their PIN is changed.
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Verification refuses hashes with parameters that exceed reasonable bounds.
// - Comparison is constant-time; a PIN is never compared in plaintext.
package pin
