// Package labels derives categorical labels from cluster naming
// conventions and reconciles them against the platform's workload
// profiles.
package labels
