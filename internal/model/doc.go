// Package model defines the shared data types of the relay.
//
// Conventions:
//   - Identities (usernames) and conversation ids are opaque strings
//     supplied by clients; the relay never derives or mutates them.
//   - Message ids are ULIDs assigned by the server on first receipt.
//     ULIDs sort lexicographically in creation order, which is what the
//     pending queue relies on for redelivery order.
//   - Timestamps: time.Time in UTC, serialized as RFC 3339 on the wire.
package model
