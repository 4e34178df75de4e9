package issuer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/matheuscscp/fleet-issuer/internal/constants"
	"github.com/matheuscscp/fleet-issuer/internal/keystore"
)

const generationKey = "signing-key"

type privateKeySource interface {
	current(ctx context.Context, now time.Time) (*signingKey, error)
}

// keyManager lazily generates the signing key of this process and rotates
// it once its deadline has passed. At most one generation is in flight at
// any time and every caller that arrives meanwhile shares its outcome.
type keyManager struct {
	store    keystore.Store
	duration time.Duration
	logger   logrus.FieldLogger
	metrics  *metrics

	generateKey func() (*ecdsa.PrivateKey, error)

	cur   *signingKey
	mu    sync.Mutex
	group singleflight.Group
}

func newKeyManager(st keystore.Store, duration time.Duration, l logrus.FieldLogger, m *metrics) *keyManager {
	return &keyManager{
		store:       st,
		duration:    duration,
		logger:      l,
		metrics:     m,
		generateKey: generateECDSAKey,
	}
}

func generateECDSAKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

func (k *keyManager) current(ctx context.Context, now time.Time) (*signingKey, error) {
	if cur := k.load(); !cur.expiredForIssuingTokens(now) {
		return cur, nil
	}

	// The attempt must outlive the caller that happened to start it, since
	// other callers may be waiting on it.
	genCtx := context.WithoutCancel(ctx)
	ch := k.group.DoChan(generationKey, func() (any, error) {
		return k.rotate(genCtx, now)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*signingKey), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (k *keyManager) load() *signingKey {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cur
}

// rotate runs inside the single-flight group. A caller may observe the
// expired key and reach the group right after a previous attempt published
// its successor, so the current key is checked again first.
func (k *keyManager) rotate(ctx context.Context, now time.Time) (*signingKey, error) {
	if cur := k.load(); !cur.expiredForIssuingTokens(now) {
		return cur, nil
	}

	next, err := k.generateNew(ctx, now)
	if err != nil {
		k.metrics.keyGenerationFailures.Inc()
		k.logger.WithError(err).Error("failed to generate signing key")
		return nil, err
	}
	k.metrics.keysGenerated.Inc()

	k.mu.Lock()
	k.cur = next
	k.mu.Unlock()

	return next, nil
}

func (k *keyManager) generateNew(ctx context.Context, now time.Time) (*signingKey, error) {
	ctx, span := tracer.Start(ctx, "keyManager.generateNew")
	defer span.End()

	key, err := k.buildKey(now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String(jwk.KeyIDKey, key.keyID))

	record := &keystore.Record{
		Key:       key.public,
		CreatedAt: now,
	}
	if err := k.store.AddKey(ctx, record); err != nil {
		err = fmt.Errorf("failed to store public key: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logData := logrus.Fields{
		jwk.KeyIDKey: key.keyID,
		"deadline":   key.deadline,
	}
	k.logger.WithField("key", logData).Info("key generated")

	return key, nil
}

func (k *keyManager) buildKey(now time.Time) (*signingKey, error) {
	priv, err := k.generateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ecdsa key: %w", err)
	}

	private, err := jwk.Import(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to convert ecdsa key to jwk: %w", err)
	}

	public, err := private.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get public key from jwk: %w", err)
	}

	keyID := uuid.NewString()
	for _, key := range []jwk.Key{private, public} {
		if err := setKeyMetadata(key, keyID); err != nil {
			return nil, err
		}
	}

	return &signingKey{
		keyID:     keyID,
		private:   private,
		public:    public,
		createdAt: now,
		deadline:  now.Add(k.duration),
	}, nil
}

func setKeyMetadata(key jwk.Key, keyID string) error {
	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return fmt.Errorf("failed to set key ID: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, Algorithm()); err != nil {
		return fmt.Errorf("failed to set key algorithm: %w", err)
	}
	if err := key.Set(jwk.KeyUsageKey, constants.KeyUseSig); err != nil {
		return fmt.Errorf("failed to set key usage: %w", err)
	}
	return nil
}
