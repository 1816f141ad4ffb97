// Package token mints opaque random tokens and signs small payloads with
// HMAC-SHA256.
//
// Opaque tokens back the anti-forgery cookie. Signed payloads back the flash
// message cookie so a client cannot forge a success message.
//
// Environment:
//   - CLUBHOUSE_FLASH_KEY: signing key, at least 32 bytes when required by policy.
package token
