// Package pce is a minimal client for the policy platform REST API.
//
// The client covers the resources the provisioning workflow touches:
// labels, container clusters, pairing profiles and keys, and container
// workload profiles. Every request is scoped to one organization and
// authenticated with an API key via HTTP basic auth.
//
// Object identifiers are derived from hrefs; the platform never returns
// bare IDs. Use IDFromHref or the ID methods on the resource types.
package pce
