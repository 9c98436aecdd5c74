// Package crypto implements envelope encryption for credential custody:
// AES-256-GCM under a key derived from a master secret with PBKDF2
// (SHA-256, 100k iterations).
//
// Failures surface as api.AuthError; the vault layer wraps them into the
// domain error kind with the cause preserved.
package crypto
