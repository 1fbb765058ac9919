// Package crypto exposes the primitives healthvault needs on the client side.
//
// Contents
//
//   - Single-use X25519 key pairs for decryption calls (GenerateKeypair,
//     GenerateX25519) and best-effort wiping (Wipe, WipeKeypair)
//   - The owner's secp256k1 signing key (KeySigner, GenerateOwnerKey)
//   - EIP-712 decryption grants (GrantTypedData, BuildGrant, RecoverGrantSigner)
//   - Anonymous sealed boxes used to carry re-encrypted values (Seal, Open)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Ephemeral private keys are returned as fixed-size arrays defined in
// internal/domain. Callers own them and must Wipe them once the call that
// needed them returns.
package crypto
