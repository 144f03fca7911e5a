// Package database provides connection pool management for PostgreSQL.
//
// One pool serves the whole relay: conversation chunks, pending
// entries, user directory, and contacts all live in the same database.
package database
