package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultBackend         = BackendMemory
	DefaultPendingBackend  = PendingStore
	DefaultChunkSize       = 300
	DefaultSQLitePath      = "courier.db"
	DefaultPingInterval    = 30 * time.Second
	DefaultReadTimeout     = 75 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultMaxMessageBytes = 64 * 1024
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultBackend
	}
	if c.Storage.PendingBackend == "" {
		c.Storage.PendingBackend = DefaultPendingBackend
	}
	if c.Storage.ChunkSize == 0 {
		c.Storage.ChunkSize = DefaultChunkSize
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = DefaultSQLitePath
	}

	// Sockets defaults
	if c.Sockets.PingInterval == 0 {
		c.Sockets.PingInterval = DefaultPingInterval
	}
	if c.Sockets.ReadTimeout == 0 {
		c.Sockets.ReadTimeout = DefaultReadTimeout
	}
	if c.Sockets.WriteTimeout == 0 {
		c.Sockets.WriteTimeout = DefaultWriteTimeout
	}
	if c.Sockets.MaxMessageBytes == 0 {
		c.Sockets.MaxMessageBytes = DefaultMaxMessageBytes
	}
}
