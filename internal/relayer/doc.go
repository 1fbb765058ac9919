// Package relayer provides an HTTP implementation of domain.EncryptionEngine
// for a remote encryption service, plus the JSON wire types that service
// speaks.
//
// Supported operations include:
//   - Fetching the engine's transport key (GET /v1/keys).
//   - Encrypting a batch of plaintext integers bound to a (contract, owner)
//     pair and receiving handles plus an attestation proof
//     (POST /v1/input-proof). Each plaintext is sealed to the transport key
//     before it leaves the process.
//   - Requesting user decryption under a signed grant (POST /v1/user-decrypt).
//     Results come back sealed to the caller's single-use public key and are
//     opened locally; the private key is never sent.
//
// All requests are JSON over HTTP, carry an X-Request-Id, and accept a
// context for cancellation and deadlines. Transport failures and 429/502/
// 503/504 responses are retried with jittered exponential backoff when the
// call is safe to repeat. Other non-2xx statuses are returned as *StatusError.
package relayer
