package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Storage.Backend {
	case BackendPostgres:
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendMemory:
		// Nothing to check; state is lost on restart.
	default:
		return fmt.Errorf("storage.backend must be one of postgres, sqlite, memory; got %q", c.Storage.Backend)
	}

	switch c.Storage.PendingBackend {
	case PendingStore:
	case PendingRedis:
		if c.Redis.URL == "" {
			return errors.New("redis.url is required when storage.pending_backend is redis")
		}
	default:
		return fmt.Errorf("storage.pending_backend must be store or redis; got %q", c.Storage.PendingBackend)
	}

	if c.Storage.ChunkSize < 1 {
		return errors.New("storage.chunk_size must be >= 1")
	}

	if c.Sockets.ReadTimeout <= c.Sockets.PingInterval {
		return errors.New("sockets.read_timeout must exceed sockets.ping_interval")
	}
	if c.Sockets.MaxMessageBytes < 1 {
		return errors.New("sockets.max_message_bytes must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
