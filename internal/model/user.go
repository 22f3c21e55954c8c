// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// A user can authenticate in two ways: with an email + password (PasswordHash
// is set) or through LINE login (a linked Authentication record exists).
// Both kinds share this one struct — there is no subtype for OAuth users.
// Every user has at least one of the two; the signup and OAuth paths each
// guarantee their half of that invariant.
//
// WHY PasswordHash string (not *string)?
// Pure-OAuth accounts never set a password. We use the empty string as the
// "no password" marker rather than a nullable pointer — simpler to work with,
// and the login path already treats "no hash" the same as "wrong password".
//
// The `json:"-"` tag on PasswordHash keeps the hash out of every API response.
// Even a bcrypt hash should never leave the server.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	LineUserID   string    `json:"-"`         // LINE's stable user ID (empty unless linked)
	LineLogin    bool      `json:"lineLogin"` // true once a LINE account is linked
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Authentication links a User to one external identity provider account.
//
// The (Provider, UID) pair is UNIQUE in the database — it is the lookup key
// used to find the local account for a returning OAuth user. A user may have
// several Authentication rows (one per provider), but each provider account
// maps to exactly one user. Rows are cascade-deleted with their user.
type Authentication struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	Provider   string    `json:"provider"` // e.g. "line"
	UID        string    `json:"uid"`      // the provider's user ID
	LineUserID string    `json:"-"`        // provider-specific duplicate of UID for LINE
	CreatedAt  time.Time `json:"createdAt"`
}
