package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PublicKeys returns the public keys of every instance that may still have
// unexpired tokens in circulation. Records past their retention are removed
// in the background; a failed removal is retried on a later call.
func (t *tokenIssuer) PublicKeys(ctx context.Context, now time.Time) ([]jwk.Key, error) {
	ctx, span := tracer.Start(ctx, "tokenIssuer.PublicKeys")
	defer span.End()

	records, err := t.store.ListKeys(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list public keys: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	keys := make([]jwk.Key, 0, len(records))
	var expired []string
	for _, r := range records {
		if r.Expired(now, t.retention) {
			expired = append(expired, r.KeyID())
			continue
		}
		keys = append(keys, r.Key)
	}
	span.SetAttributes(
		attribute.Int("keys.valid", len(keys)),
		attribute.Int("keys.expired", len(expired)),
	)

	if len(expired) > 0 {
		t.prunes.Add(1)
		go func() {
			defer t.prunes.Done()
			t.prune(context.WithoutCancel(ctx), expired)
		}()
	}

	return keys, nil
}

func (t *tokenIssuer) prune(ctx context.Context, ids []string) {
	l := t.logger.WithField("keyIDs", ids)
	if err := t.store.RemoveKeys(ctx, ids); err != nil {
		t.metrics.pruneFailures.Inc()
		l.WithError(err).Error("failed to prune expired keys")
		return
	}
	t.metrics.keysPruned.Add(float64(len(ids)))
	l.Debug("expired keys pruned")
}

func (t *tokenIssuer) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.prunes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
