package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/matheuscscp/fleet-issuer/internal/logging"
)

// PublicKeyModel is the gorm model of a public key record.
type PublicKeyModel struct {
	KeyID     string    `gorm:"type:varchar(64);primaryKey"`
	JWK       []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"precision:6;not null;index:idx_public_keys_created_at"`
}

func (PublicKeyModel) TableName() string {
	return "public_keys"
}

func (m *PublicKeyModel) toRecord() (*Record, error) {
	return decodeKey(m.KeyID, m.JWK, m.CreatedAt)
}

type gormStore struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

// NewSQLiteStore opens a sqlite database. A single connection is used so
// that in-memory databases are shared by every query.
func NewSQLiteStore(dsn string, l logrus.FieldLogger) (Store, error) {
	s, err := newGormStore(sqlite.Open(dsn), 1, l)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func NewMySQLStore(dsn string, l logrus.FieldLogger) (Store, error) {
	s, err := newGormStore(mysql.Open(dsn), 10, l)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newGormStore(dialector gorm.Dialector, maxOpenConns int, l logrus.FieldLogger) (*gormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s connection pool: %w", dialector.Name(), err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(&PublicKeyModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate %s table: %w", PublicKeyModel{}.TableName(), err)
	}

	return &gormStore{
		db:     db,
		logger: logging.Component(l, "keystore").WithField("driver", dialector.Name()),
	}, nil
}

func (g *gormStore) AddKey(ctx context.Context, r *Record) error {
	keyID, b, err := encodeKey(r)
	if err != nil {
		return err
	}
	model := &PublicKeyModel{
		KeyID:     keyID,
		JWK:       b,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if err := g.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrKeyExists
		}
		g.logger.WithError(err).WithField("keyID", keyID).Error("failed to create public key")
		return err
	}
	return nil
}

func (g *gormStore) ListKeys(ctx context.Context) ([]*Record, error) {
	var models []PublicKeyModel
	err := g.db.WithContext(ctx).
		Order("created_at ASC").
		Order("key_id ASC").
		Find(&models).Error
	if err != nil {
		g.logger.WithError(err).Error("failed to list public keys")
		return nil, err
	}

	records := make([]*Record, 0, len(models))
	for i := range models {
		r, err := models[i].toRecord()
		if err != nil {
			g.logger.WithError(err).WithField("keyID", models[i].KeyID).Warn("skipping undecodable public key")
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func (g *gormStore) RemoveKeys(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := g.db.WithContext(ctx).
		Where("key_id IN ?", ids).
		Delete(&PublicKeyModel{}).Error
	if err != nil {
		g.logger.WithError(err).WithField("keyIDs", ids).Error("failed to delete public keys")
		return err
	}
	return nil
}

func (g *gormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
