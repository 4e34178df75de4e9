package config

import (
	"fmt"
	"slices"
)

const (
	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMySQL    = "mysql"
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"

	defaultRedisPrefix = "fleet-issuer"
)

var storeDrivers = []string{
	StoreDriverMemory,
	StoreDriverSQLite,
	StoreDriverMySQL,
	StoreDriverPostgres,
	StoreDriverRedis,
}

type StoreConfig struct {
	Driver string      `yaml:"driver" json:"driver"`
	DSN    string      `yaml:"dsn" json:"dsn"`
	Redis  RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

func (s *StoreConfig) validateAndInitialize() error {
	if s.Driver == "" {
		s.Driver = StoreDriverMemory
	}
	if !slices.Contains(storeDrivers, s.Driver) {
		return fmt.Errorf("store.driver '%s' is not supported, must be one of %v", s.Driver, storeDrivers)
	}

	switch s.Driver {
	case StoreDriverSQLite, StoreDriverMySQL, StoreDriverPostgres:
		if s.DSN == "" {
			return fmt.Errorf("store.dsn must be set for driver '%s'", s.Driver)
		}
	case StoreDriverRedis:
		if s.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr must be set for driver '%s'", s.Driver)
		}
		if s.Redis.Prefix == "" {
			s.Redis.Prefix = defaultRedisPrefix
		}
	}
	return nil
}
