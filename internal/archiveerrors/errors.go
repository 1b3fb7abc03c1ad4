// Package archiveerrors defines the typed error kinds the pipeline and its
// collaborators use to decide whether a failure is routine, fatal to the
// run, or scoped to a single task.
package archiveerrors

import "fmt"

// Unauthorized is returned when the archive rejects the configured
// credentials. It is fatal to the run.
type Unauthorized struct {
	Message string
}

func (e *Unauthorized) Error() string { return "unauthorized: " + e.Message }

// DuplicateKey is returned when a create operation collides with an
// existing record (HTTP 409, or create-then-found).
type DuplicateKey struct {
	Message string
}

func (e *DuplicateKey) Error() string { return "duplicate key: " + e.Message }

// DoesNotExist is returned when a lookup finds nothing (HTTP 404). It is
// routine and is consumed inside get-or-create flows.
type DoesNotExist struct {
	ResourceType string
	Query        string
}

func (e *DoesNotExist) Error() string {
	return fmt.Sprintf("%s does not exist (%s)", e.ResourceType, e.Query)
}

// IncompatibleVersion is returned when the archive's schema does not match
// what this client speaks. It is fatal to the run.
type IncompatibleVersion struct {
	Message string
}

func (e *IncompatibleVersion) Error() string { return "incompatible archive version: " + e.Message }

// HttpError wraps any other non-2xx response. //nolint:revive,stylecheck
type HttpError struct { //nolint:revive,stylecheck
	StatusCode int
	Body       string
}

func (e *HttpError) Error() string { //nolint:revive,stylecheck
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Body)
}

// InvalidFolderStructure is returned by the scanner when the on-disk
// layout is incompatible with the configured folder-structure template.
// It is fatal to the scan.
type InvalidFolderStructure struct {
	Message string
}

func (e *InvalidFolderStructure) Error() string { return "invalid folder structure: " + e.Message }

// PrivateKeyDoesNotExist is returned when the configured SSH key pair is
// missing from disk.
type PrivateKeyDoesNotExist struct {
	Path string
}

func (e *PrivateKeyDoesNotExist) Error() string {
	return "private key does not exist: " + e.Path
}

// SshFailure wraps a non-zero exit from the ssh subprocess used to create
// remote directories. //nolint:revive,stylecheck
type SshFailure struct { //nolint:revive,stylecheck
	Stderr   string
	ExitCode int
}

func (e *SshFailure) Error() string { //nolint:revive,stylecheck
	return fmt.Sprintf("ssh failed (exit %d): %s", e.ExitCode, e.Stderr)
}

// ScpFailure wraps a non-zero exit from the secure-copy subprocess used to
// stream a file body. //nolint:revive,stylecheck
type ScpFailure struct { //nolint:revive,stylecheck
	Stderr   string
	ExitCode int
}

func (e *ScpFailure) Error() string { //nolint:revive,stylecheck
	return fmt.Sprintf("scp failed (exit %d): %s", e.ExitCode, e.Stderr)
}

// StorageBoxOptionNotFound is returned when the archive has no storage
// box configured for staged uploads.
type StorageBoxOptionNotFound struct {
	Message string
}

func (e *StorageBoxOptionNotFound) Error() string {
	return "storage box option not found: " + e.Message
}

// Cancelled is returned by in-flight operations after the run's abort flag
// has been set. //nolint:revive,stylecheck
type Cancelled struct{} //nolint:revive,stylecheck

func (e *Cancelled) Error() string { return "cancelled" }
