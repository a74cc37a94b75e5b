package signal

import "github.com/google/uuid"

// NewIdentity generates a short opaque identity: the first 8 hex characters
// of a v4 UUID. Short enough to read over the phone, random enough that
// collisions are not a practical concern for a rendezvous namespace.
func NewIdentity() string {
	return uuid.NewString()[:8]
}
