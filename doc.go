// Package vulnlab holds the domain model for a registry of compose-based
// vulnerable lab environments: one Environment per manifest directory, the
// sorted Snapshot listing, and snapshot-level statistics.
//
// Discovery lives in internal/scan, caching in internal/cache, and container
// lifecycle in internal/compose; internal/registry composes them.
package vulnlab
