// Package secrets retrieves and stores credential bundles in the
// secrets service.
//
// A workload identity token is exchanged for a session token on every
// operation; session expiry is not tracked. Production deployments list
// two regional endpoints and the client falls back to the secondary
// after exhausting the retry budget against the primary.
package secrets
