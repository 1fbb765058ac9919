// Package store provides file-based persistence for the owner's signing key.
//
// The key is serialised as JSON, sealed with ChaCha20-Poly1305 under a key
// derived from the passphrase with scrypt, and written atomically via a temp
// file. The owner address is kept in clear next to the ciphertext and bound
// to it as associated data, so it can be shown without the passphrase. All
// methods are concurrency-safe via internal locking. Files live under the
// configured home directory.
package store
