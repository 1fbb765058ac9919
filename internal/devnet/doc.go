// Package devnet is a single-process sandbox of the external collaborators a
// session client talks to: the session ledger, the fee token, the encryption
// engine and the backend oracle.
//
// It is not a blockchain. Every successful state change is committed
// atomically to a state.Store and "mined" into its own block with a
// timestamp from the injected clock. Failed calls revert without a block.
// The encryption engine keeps ciphertexts under a master key, hands out
// content-addressed handles with per-handle access lists, and re-encrypts
// clear values to the caller's single-use key after verifying an EIP-712
// grant.
//
// Server exposes the sandbox over HTTP; Client talks to that server.
package devnet
