// Package password hashes and verifies account passwords.
//
// New hashes are Argon2id in a PHC-style encoded string. Legacy bcrypt hashes,
// as produced by the previous document-store backend, still verify and report
// NeedsRehash so callers can upgrade them after a successful login.
//
// Security notes:
// - Hash strings are untrusted input during Verify and are validated accordingly.
// - Verification refuses Argon2id parameters or bcrypt costs beyond configured bounds.
package password
