// Package integration hosts the integration catalogue and its lifecycle.
//
// The registry holds installed integrations keyed by normalized id. Each
// integration owns a six-state machine (installed, configured, connected,
// active, suspended, disconnected); the lifecycle manager drives
// transitions and performs side effects at the boundaries: connect before
// entering connected, tool registration before entering active,
// disconnect plus credential revocation before entering disconnected.
// Transitions for one integration are serialized; different integrations
// transition independently.
package integration
