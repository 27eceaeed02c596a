// Package session owns the wallet-connection lifecycle and the
// allowlist operations driven from the UI.
//
// Ownership boundary:
// - connect/verify-chain handshake and the connected/signer flags
// - membership and count caches (advisory, refreshed after every
//   state-changing action)
// - join submission, confirmation polling and the pending-write flag
// - join attempt journal and retry/backoff primitives
package session
