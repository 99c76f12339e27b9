package storage

import "time"

// identityKey is the record key the proxy reads on every request.
const identityKey = "user_agent"

// IdentityChange is one entry of the identity history, written on every
// successful update.
type IdentityChange struct {
	ID        string
	Value     string
	CreatedAt time.Time
}
