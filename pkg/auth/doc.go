// Package auth issues and verifies the HMAC-signed bearer tokens that
// identify API callers, and records security-relevant events to the
// audit log.
//
// Tokens are self-contained: the payload carries the user ID and expiry,
// signed with the service secret. Verification needs no store round
// trip, so it sits cheaply in front of every request.
package auth
