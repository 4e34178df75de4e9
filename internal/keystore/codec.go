package keystore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// storedRecord is the serialized form of a Record for backends that store
// documents rather than columns.
type storedRecord struct {
	Key       json.RawMessage `json:"key"`
	CreatedAt time.Time       `json:"createdAt"`
}

func encodeKey(r *Record) (keyID string, b []byte, err error) {
	keyID = r.KeyID()
	if keyID == "" {
		return "", nil, ErrMissingKeyID
	}
	b, err = json.Marshal(r.Key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal public key %s: %w", keyID, err)
	}
	return keyID, b, nil
}

func decodeKey(keyID string, b []byte, createdAt time.Time) (*Record, error) {
	key, err := jwk.ParseKey(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", keyID, err)
	}
	return &Record{Key: key, CreatedAt: createdAt.UTC()}, nil
}

func encodeRecord(r *Record) (string, []byte, error) {
	keyID, key, err := encodeKey(r)
	if err != nil {
		return "", nil, err
	}
	b, err := json.Marshal(storedRecord{Key: key, CreatedAt: r.CreatedAt.UTC()})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal record %s: %w", keyID, err)
	}
	return keyID, b, nil
}

func decodeRecord(keyID string, b []byte) (*Record, error) {
	var s storedRecord
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", keyID, err)
	}
	return decodeKey(keyID, s.Key, s.CreatedAt)
}
