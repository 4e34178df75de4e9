package keystore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/matheuscscp/fleet-issuer/internal/logging"
)

const redisPingTimeout = 5 * time.Second

// redisStore keeps every record as a field of a single hash, keyed by key ID.
type redisStore struct {
	client *redis.Client
	hash   string
	logger logrus.FieldLogger
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewRedisStore(ctx context.Context, opts RedisOptions, l logrus.FieldLogger) (Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return newRedisStore(rdb, opts.Prefix, l), nil
}

func newRedisStore(rdb *redis.Client, prefix string, l logrus.FieldLogger) *redisStore {
	return &redisStore{
		client: rdb,
		hash:   redisHashName(prefix),
		logger: logging.Component(l, "keystore").WithField("driver", "redis"),
	}
}

func redisHashName(prefix string) string {
	if prefix == "" {
		return "public-keys"
	}
	return strings.TrimSuffix(prefix, ":") + ":public-keys"
}

func (s *redisStore) AddKey(ctx context.Context, r *Record) error {
	keyID, b, err := encodeRecord(r)
	if err != nil {
		return err
	}
	ok, err := s.client.HSetNX(ctx, s.hash, keyID, b).Result()
	if err != nil {
		s.logger.WithError(err).WithField("keyID", keyID).Error("failed to store public key")
		return err
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

func (s *redisStore) ListKeys(ctx context.Context) ([]*Record, error) {
	fields, err := s.client.HGetAll(ctx, s.hash).Result()
	if err != nil {
		s.logger.WithError(err).Error("failed to read public keys")
		return nil, err
	}

	records := make([]*Record, 0, len(fields))
	for keyID, v := range fields {
		r, err := decodeRecord(keyID, []byte(v))
		if err != nil {
			s.logger.WithError(err).WithField("keyID", keyID).Warn("skipping undecodable public key")
			continue
		}
		records = append(records, r)
	}
	slices.SortFunc(records, func(a, b *Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.KeyID(), b.KeyID())
	})
	return records, nil
}

func (s *redisStore) RemoveKeys(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.hash, ids...).Err(); err != nil {
		s.logger.WithError(err).WithField("keyIDs", ids).Error("failed to delete public keys")
		return err
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
