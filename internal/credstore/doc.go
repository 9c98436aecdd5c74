// Package credstore is the durable, query-addressable store of versioned
// encrypted records behind the credential vault.
//
// Records are keyed by id and addressable by (provider, accountId). Every
// payload is sealed in an outer envelope {v, salt, iv, ciphertext} with a
// per-record random salt; the checksum in the sync block covers the
// encrypted payload only. Revocation is terminal: revoked records are
// never returned again.
//
// Two implementations exist: BoltStore (bbolt file, the daemon default)
// and MemoryStore (tests, ephemeral deployments).
package credstore
