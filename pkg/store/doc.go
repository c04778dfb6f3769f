// Package store persists provisioned cluster records locally: a bbolt
// cache used as a tertiary discovery source, and a per-cluster JSON
// fallback file mirroring what was written to the secrets service.
package store
