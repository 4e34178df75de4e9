package issuer

import (
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// signingKey is the process-local private key. It is never persisted; the
// public half is published to the shared store before the key is used.
type signingKey struct {
	keyID     string
	private   jwk.Key
	public    jwk.Key
	createdAt time.Time
	deadline  time.Time
}

func (s *signingKey) expiredForIssuingTokens(now time.Time) bool {
	return s == nil || s.deadline.Before(now)
}
