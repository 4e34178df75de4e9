package config

import (
	"fmt"
	"time"
)

const (
	defaultServerAddr = ":8080"
)

type ServerConfig struct {
	Addr             string `yaml:"addr" json:"addr"`
	JWKSCacheSeconds int    `yaml:"jwksCacheSeconds" json:"jwksCacheSeconds"`
}

func (s *ServerConfig) validateAndInitialize() error {
	if s.Addr == "" {
		s.Addr = defaultServerAddr
	}
	if s.JWKSCacheSeconds < 0 {
		return fmt.Errorf("server.jwksCacheSeconds must not be negative, got %d", s.JWKSCacheSeconds)
	}
	return nil
}

func (s *ServerConfig) JWKSCacheDuration() time.Duration {
	return time.Duration(s.JWKSCacheSeconds) * time.Second
}
