package config

import "time"

// Storage backend names.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"

	// Pending queue backends. "store" keeps pending entries in the same
	// backend as the conversation log; "redis" moves them to Redis.
	PendingStore = "store"
	PendingRedis = "redis"
)

// Config is the root configuration for a relay instance.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Database DBConfig      `yaml:"database"`
	Redis    RedisConfig   `yaml:"redis"`
	Storage  StorageConfig `yaml:"storage"`
	Sockets  SocketsConfig `yaml:"sockets"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DBConfig holds a PostgreSQL connection. Only consulted when the
// storage backend is "postgres".
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the Redis connection for the optional redis pending
// queue backend.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig selects and tunes the persistent stores.
type StorageConfig struct {
	Backend        string `yaml:"backend"`         // postgres | sqlite | memory
	PendingBackend string `yaml:"pending_backend"` // store | redis
	ChunkSize      int    `yaml:"chunk_size"`      // messages per conversation chunk
	SQLitePath     string `yaml:"sqlite_path"`
}

// SocketsConfig tunes per-connection websocket behavior.
type SocketsConfig struct {
	PingInterval    time.Duration `yaml:"ping_interval"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
}
