package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionRecord is what the session slot persists: a signed token naming the user.
type SessionRecord struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticating
	Authenticated
)

func (s SessionState) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// NewMessageID derives a message id from its creation time plus a random suffix.
func NewMessageID(at time.Time) string {
	return fmt.Sprintf("msg_%d_%s", at.UnixMilli(), uuid.NewString()[:8])
}
