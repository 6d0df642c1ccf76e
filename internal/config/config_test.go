package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Port:        "8480",
		Env:         "development",
		JWTSecret:   "a-development-secret-long-enough-0123",
		StoreDriver: "memory",
		BlobDriver:  "memory",
	}
}

func TestValidate_Development(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Port = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.JWTSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_UnknownDrivers(t *testing.T) {
	cfg := validConfig()
	cfg.StoreDriver = "mongodb"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.BlobDriver = "s3????"
	assert.Error(t, cfg.Validate())
}

func TestValidate_ProductionStrictness(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	cfg.StoreDriver = "postgres"
	cfg.BlobDriver = "minio"
	cfg.DBPassword = "p@ssw0rd-strong-enough"

	cfg.JWTSecret = "your-secret-key-change-in-production"
	assert.Error(t, cfg.Validate(), "default secret rejected in production")

	cfg.JWTSecret = "short"
	assert.Error(t, cfg.Validate(), "short secret rejected in production")

	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.Validate())

	cfg.StoreDriver = "memory"
	assert.Error(t, cfg.Validate(), "memory store rejected in production")
}

func TestDSN(t *testing.T) {
	cfg := validConfig()
	cfg.DBHost = "db"
	cfg.DBPort = "5432"
	cfg.DBUser = "beacon"
	cfg.DBPassword = "pw"
	cfg.DBName = "beacon"
	cfg.DBSSLMode = "disable"
	assert.Equal(t,
		"host=db port=5432 user=beacon password=pw dbname=beacon sslmode=disable",
		cfg.DSN())
}
