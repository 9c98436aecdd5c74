// Package vault provides per-integration credential custody.
//
// The EncryptedVault composes the credential store with key encryption:
// credentials are JSON-serialized, sealed in the vault's inner envelope
// {v, ciphertext, iv}, and written to the store under
// integration:<id>:<type> where the store adds its own outer envelope.
// The MemoryVault mirrors the same interface for tests and deployments
// without a configured store.
//
// Integration ids are normalized (trim + lowercase) uniformly across all
// operations; within one integration at most one credential per type
// coexists and retrieval prefers oauth > api_key > local_path.
package vault
