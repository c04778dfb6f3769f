// Package provision converges a cluster name onto its policy platform
// resources.
//
// Discovery consults three sources: the platform itself (container
// cluster and pairing profile by name), the secrets service, and the
// local record cache. Any trace of the cluster routes reconciliation
// down the backfill path; otherwise the full creation path runs. All
// creation steps are existence-checked first, so a run that dies
// halfway is repaired by running again.
package provision
