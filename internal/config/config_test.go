package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  host: 127.0.0.1
  port: 9000
storage:
  backend: postgres
database:
  host: localhost
  port: 5432
  name: courier
  user: courier
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendPostgres {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendPostgres)
	}
	if cfg.Database.Name != "courier" {
		t.Errorf("Database.Name = %q, want %q", cfg.Database.Name, "courier")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
storage:
  backend: postgres
database:
  host: localhost
  name: courier
  user: courier
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "server:\n  port: 9000\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Storage.Backend != DefaultBackend {
		t.Errorf("Storage.Backend = %q, want default %q", cfg.Storage.Backend, DefaultBackend)
	}
	if cfg.Storage.ChunkSize != DefaultChunkSize {
		t.Errorf("Storage.ChunkSize = %d, want default %d", cfg.Storage.ChunkSize, DefaultChunkSize)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Sockets.PingInterval != DefaultPingInterval {
		t.Errorf("Sockets.PingInterval = %v, want default %v", cfg.Sockets.PingInterval, DefaultPingInterval)
	}
	if cfg.Sockets.ReadTimeout != DefaultReadTimeout {
		t.Errorf("Sockets.ReadTimeout = %v, want default %v", cfg.Sockets.ReadTimeout, DefaultReadTimeout)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "mongodb" },
			wantErr: `storage.backend must be one of postgres, sqlite, memory; got "mongodb"`,
		},
		{
			name:    "postgres backend requires host",
			mutate:  func(c *Config) { c.Storage.Backend = BackendPostgres },
			wantErr: "database.host is required",
		},
		{
			name: "redis pending backend requires url",
			mutate: func(c *Config) {
				c.Storage.PendingBackend = PendingRedis
			},
			wantErr: "redis.url is required when storage.pending_backend is redis",
		},
		{
			name:    "chunk size must be positive",
			mutate:  func(c *Config) { c.Storage.ChunkSize = -1 },
			wantErr: "storage.chunk_size must be >= 1",
		},
		{
			name: "read timeout must exceed ping interval",
			mutate: func(c *Config) {
				c.Sockets.ReadTimeout = 10 * time.Second
				c.Sockets.PingInterval = 30 * time.Second
			},
			wantErr: "sockets.read_timeout must exceed sockets.ping_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
