// Package session is the client-side session protocol.
//
// It gates session creation behind the visit fee, submits encrypted inputs
// bound to the (ledger, owner) pair, rebuilds a caller's history from the
// ledger by linear scan, and performs authenticated decryption of results
// through a single-use key pair and a signed, time-bounded grant.
//
// Every operation takes an explicit domain.Caller; the package keeps no
// wallet or chain state of its own. Transaction inclusion waits are bounded
// by Config.InclusionTimeout and surface as *domain.TimeoutError.
package session
