package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/matheuscscp/fleet-issuer/internal/logging"
)

const pgUniqueViolation = "23505"

type postgresStore struct {
	pool   *pgxpool.Pool
	logger logrus.FieldLogger
}

func NewPostgresStore(ctx context.Context, dsn string, l logrus.FieldLogger) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	const q = `
CREATE TABLE IF NOT EXISTS public_keys (
	kid        TEXT PRIMARY KEY,
	jwk        TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_public_keys_created_at ON public_keys (created_at)`
	if _, err := pool.Exec(ctx, q); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create public_keys table: %w", err)
	}

	return &postgresStore{
		pool:   pool,
		logger: logging.Component(l, "keystore").WithField("driver", "postgres"),
	}, nil
}

func (p *postgresStore) AddKey(ctx context.Context, r *Record) error {
	keyID, b, err := encodeKey(r)
	if err != nil {
		return err
	}

	const q = `INSERT INTO public_keys (kid, jwk, created_at) VALUES ($1, $2, $3)`
	if _, err := p.pool.Exec(ctx, q, keyID, string(b), r.CreatedAt.UTC()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrKeyExists
		}
		p.logger.WithError(err).WithField("keyID", keyID).Error("failed to insert public key")
		return err
	}
	return nil
}

func (p *postgresStore) ListKeys(ctx context.Context) ([]*Record, error) {
	const q = `SELECT kid, jwk, created_at FROM public_keys ORDER BY created_at ASC, kid ASC`
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		p.logger.WithError(err).Error("failed to query public keys")
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			keyID     string
			key       string
			createdAt time.Time
		)
		if err := rows.Scan(&keyID, &key, &createdAt); err != nil {
			return nil, err
		}
		r, err := decodeKey(keyID, []byte(key), createdAt)
		if err != nil {
			p.logger.WithError(err).WithField("keyID", keyID).Warn("skipping undecodable public key")
			continue
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (p *postgresStore) RemoveKeys(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `DELETE FROM public_keys WHERE kid = ANY($1)`
	if _, err := p.pool.Exec(ctx, q, ids); err != nil {
		p.logger.WithError(err).WithField("keyIDs", ids).Error("failed to delete public keys")
		return err
	}
	return nil
}

func (p *postgresStore) Close() error {
	p.pool.Close()
	return nil
}
