// Package types defines the core data model shared by the dispatch,
// catalog, and geo packages: agents, sessions, service listings, and
// the structured error type used across the module.
package types
