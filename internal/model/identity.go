// Package model holds the data-model types shared read-only once
// published: folders, identities, experiments/datasets, fingerprints, and
// the per-file verification/upload state machines.
package model

// User is an identity record mapped from a folder-path component via the
// configured folder-structure template.
type User struct {
	Username string
	Email    string

	// UpstreamID is the archive's identifier for this user (a resource
	// URI in practice). Empty when HasServerMapping is false.
	UpstreamID string

	// HasServerMapping is false when the archive has no record matching
	// this user; the user is still allowed into the scan result when the
	// template permits unmapped owners.
	HasServerMapping bool
}

// Group is an identity record for a shared owner folder (e.g. "User
// Group / Instrument / Researcher / Dataset" templates).
type Group struct {
	Name       string
	UpstreamID string

	HasServerMapping bool
}
