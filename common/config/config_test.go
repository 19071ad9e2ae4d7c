package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("connected")
	require.NoError(t, err)

	assert.Equal(t, "connected", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Service.Port)
	assert.Equal(t, time.Hour, cfg.Registry.Retention)
	assert.Equal(t, 10*time.Minute, cfg.Registry.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Transfer.EphemeralTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Transfer.ArtifactTTL)
	assert.Equal(t, 50, cfg.Transfer.ListLimit)
	assert.Equal(t, int64(5<<20), cfg.Upload.MaxDirectSize)
	assert.Equal(t, "http://localhost:8080/files", cfg.Storage.PublicBaseURL)
	assert.True(t, cfg.UsesRedis())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("BROKER_BACKEND", "memory")
	t.Setenv("REGISTRY_BACKEND", "badger")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("PUBLIC_URL", "https://connected.example/")

	cfg, err := Load("connected")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Service.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "badger", cfg.Registry.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "https://connected.example/files", cfg.Storage.PublicBaseURL)
	assert.False(t, cfg.UsesRedis())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "70000"}},
		{"unknown store", map[string]string{"STORE_BACKEND": "mongo"}},
		{"unknown registry", map[string]string{"REGISTRY_BACKEND": "etcd"}},
		{"s3 without bucket", map[string]string{"STORAGE_BACKEND": "s3"}},
		{"unknown broker", map[string]string{"BROKER_BACKEND": "kafka"}},
		{"conn bounds", map[string]string{"POSTGRES_MAX_CONNS": "1", "POSTGRES_MIN_CONNS": "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("connected")
			assert.Error(t, err)
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, Database: "d"}}
	assert.Equal(t, "postgres://u:p@db:5433/d?sslmode=disable", cfg.DatabaseURL())
}
