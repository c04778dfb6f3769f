// Package types defines the domain types shared across pcectl
// packages: the cluster provisioning record and the label vocabulary
// used by the policy platform.
package types
