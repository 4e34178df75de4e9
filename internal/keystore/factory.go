package keystore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/matheuscscp/fleet-issuer/internal/config"
)

// New opens the shared key store selected by conf.
func New(ctx context.Context, conf *config.StoreConfig, l logrus.FieldLogger) (Store, error) {
	switch conf.Driver {
	case config.StoreDriverMemory, "":
		return NewMemoryStore(), nil
	case config.StoreDriverSQLite:
		return NewSQLiteStore(conf.DSN, l)
	case config.StoreDriverMySQL:
		return NewMySQLStore(conf.DSN, l)
	case config.StoreDriverPostgres:
		return NewPostgresStore(ctx, conf.DSN, l)
	case config.StoreDriverRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
			Prefix:   conf.Redis.Prefix,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported store driver '%s'", conf.Driver)
	}
}
