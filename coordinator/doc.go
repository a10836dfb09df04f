// Package coordinator implements the admission and onboarding protocol that
// gates entry to the overlay: a public-facing BootstrapServer that accepts
// new sessions and runs version/identity checks, a BridgeNode that joins the
// DHT as a passive observer and selects onboarding helpers on the bootstrap
// server's behalf, a HelperAgent that an ordinary peer runs when selected as
// a helper, and a Joiner that drives the invitee side of the same handshake.
// The BootstrapServer/BridgeNode split is deliberate: the bootstrap server
// never holds persistent bridge connections, and a bridge never originates
// application store/get traffic or becomes an onboarding helper itself.
package coordinator
