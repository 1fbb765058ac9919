// Package main runs the sandbox ledger used by healthctl during development
// and tests. It serves the session ledger, fee token, encryption engine and
// backend oracle of internal/devnet over JSON/HTTP.
//
// HTTP API
//
//	GET  /health
//	GET  /v1/network
//	    Chain id, contract addresses, visit fee and head block.
//
//	GET  /v1/keys
//	POST /v1/input-proof
//	POST /v1/user-decrypt
//	    Encryption engine: transport key, batch encryption with an
//	    attestation proof, grant-checked decryption sealed to an ephemeral key.
//
//	GET  /v1/ledger
//	GET  /v1/ledger/sessions/{id}
//	GET  /v1/ledger/sessions/{id}/events
//	GET  /v1/blocks/{number}
//	GET  /v1/token/balances/{owner}
//	GET  /v1/token/allowances/{owner}/{spender}
//	    Read-only views.
//
//	POST /v1/tx
//	    A signed transaction whose data names the ledger or token method.
//
//	POST /v1/faucet
//	POST /v1/oracle/sessions/{id}/process
//	    Sandbox-only privileged operations.
//
// Behaviour
//
//   - State lives in BadgerDB under --path, or in memory with --in-memory.
//   - Errors are JSON envelopes carrying a code, a message and the request id.
//   - An access log records method, path, remote, status, bytes and
//     duration for each request.
//   - The default listen address is :8080.
//
// The sandbox holds every key it uses. It is meant for local use only.
package main
