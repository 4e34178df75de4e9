package keystore

import (
	"context"
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

var (
	ErrKeyExists    = errors.New("key already exists")
	ErrMissingKeyID = errors.New("public key has no key ID")
)

// Record is the shared, durable public half of a signing key. Records are
// immutable once written and are identified by the key ID of Key.
type Record struct {
	Key       jwk.Key
	CreatedAt time.Time
}

func (r *Record) KeyID() string {
	keyID, _ := r.Key.KeyID()
	return keyID
}

// ExpiresAt returns the instant after which the record no longer needs to be
// listed, given how long records are retained after creation.
func (r *Record) ExpiresAt(retention time.Duration) time.Time {
	return r.CreatedAt.Add(retention)
}

func (r *Record) Expired(now time.Time, retention time.Duration) bool {
	return r.ExpiresAt(retention).Before(now)
}

// Store is shared by every instance of the fleet. Implementations must be
// safe for concurrent, uncoordinated use from many processes: writes are
// keyed by unique key ID, reads are snapshots and removals are idempotent.
type Store interface {
	// AddKey durably inserts the record. It returns ErrKeyExists if a record
	// with the same key ID is already stored.
	AddKey(ctx context.Context, r *Record) error
	// ListKeys returns every stored record ordered by creation time. Records
	// that cannot be decoded are logged and left out.
	ListKeys(ctx context.Context) ([]*Record, error)
	// RemoveKeys deletes the records with the given key IDs. Unknown IDs
	// are ignored.
	RemoveKeys(ctx context.Context, ids []string) error
	Close() error
}
