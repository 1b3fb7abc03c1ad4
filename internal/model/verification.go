package model

import (
	"fmt"
	"sync"
	"time"
)

// VerificationState is the lifecycle of one file's server-side check.
// Terminal states are immutable once reached.
type VerificationState int

// Recognized verification states.
const (
	VerificationNotStarted VerificationState = iota
	VerificationInProgress
	VerificationFoundVerified
	VerificationFoundUnverifiedFullSize
	VerificationFoundUnverifiedPartial
	VerificationNotFoundOnServer
	VerificationFailed
)

func (s VerificationState) String() string {
	switch s {
	case VerificationNotStarted:
		return "NotStarted"
	case VerificationInProgress:
		return "InProgress"
	case VerificationFoundVerified:
		return "FoundVerified"
	case VerificationFoundUnverifiedFullSize:
		return "FoundUnverifiedFullSize"
	case VerificationFoundUnverifiedPartial:
		return "FoundUnverifiedPartial"
	case VerificationNotFoundOnServer:
		return "NotFoundOnServer"
	case VerificationFailed:
		return "Failed"
	default:
		return fmt.Sprintf("VerificationState(%d)", int(s))
	}
}

// IsTerminal reports whether s is one of the states the state machine
// cannot leave.
func (s VerificationState) IsTerminal() bool {
	switch s {
	case VerificationFoundVerified, VerificationFoundUnverifiedFullSize,
		VerificationFoundUnverifiedPartial, VerificationNotFoundOnServer,
		VerificationFailed:
		return true
	default:
		return false
	}
}

// VerificationRecord is exclusively owned by the worker processing it
// until it reaches a terminal state, after which it is read-only.
type VerificationRecord struct {
	mu sync.Mutex

	Folder   *Folder
	File     DatasetFile
	Fp       FileFingerprint
	State    VerificationState
	// BytesUploadedPreviously carries the size of an existing partial
	// staged object, set only when State is
	// VerificationFoundUnverifiedPartial.
	BytesUploadedPreviously int64
	// Reason distinguishes which unverified-terminal branch produced a
	// FoundUnverifiedPartial/FoundUnverifiedFullSize result, for logging
	// only; no behavior branches on it (see SPEC_FULL.md §4.2 on folding
	// FoundUnverifiedNoDfos/FoundUnverifiedUnstaged together).
	Reason string
}

// NewVerificationRecord constructs a record in the NotStarted state.
func NewVerificationRecord(folder *Folder, file DatasetFile, fp FileFingerprint) *VerificationRecord {
	return &VerificationRecord{
		Folder: folder,
		File:   file,
		Fp:     fp,
		State:  VerificationNotStarted,
	}
}

// Start transitions NotStarted -> InProgress.
func (r *VerificationRecord) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.State = VerificationInProgress
}

// Finish transitions InProgress -> one of the terminal states. It is a
// programming error to call Finish twice; the second call is a no-op
// since the record is documented as read-only once terminal.
func (r *VerificationRecord) Finish(state VerificationState, reason string, bytesUploadedPreviously int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State.IsTerminal() {
		return
	}

	r.State = state
	r.Reason = reason
	r.BytesUploadedPreviously = bytesUploadedPreviously
}

// CurrentState returns the record's state under its own lock.
func (r *VerificationRecord) CurrentState() VerificationState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.State
}

// UploadState is the lifecycle of one file's transfer to the archive.
type UploadState int

// Recognized upload states.
const (
	UploadNotStarted UploadState = iota
	UploadInProgress
	UploadCompleted
	UploadFailed
	UploadCanceled
)

func (s UploadState) String() string {
	switch s {
	case UploadNotStarted:
		return "NotStarted"
	case UploadInProgress:
		return "InProgress"
	case UploadCompleted:
		return "Completed"
	case UploadFailed:
		return "Failed"
	case UploadCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("UploadState(%d)", int(s))
	}
}

// IsTerminal reports whether s is one of Completed/Failed/Canceled.
func (s UploadState) IsTerminal() bool {
	switch s {
	case UploadCompleted, UploadFailed, UploadCanceled:
		return true
	default:
		return false
	}
}

// UploadRecord is exclusively owned by the worker processing it until it
// reaches a terminal state.
type UploadRecord struct {
	mu sync.Mutex

	Folder *Folder
	File   DatasetFile
	Fp     FileFingerprint

	// BytesUploadedPreviously seeds resumption for the staged method.
	BytesUploadedPreviously int64

	State        UploadState
	BytesUploaded int64
	StartedAt     time.Time
	LatestAt      time.Time
	FailureReason string

	// SubprocessID is the PID of the secure-copy child process, recorded
	// so cancellation can terminate it. Zero when the bulk-HTTP method is
	// in use.
	SubprocessID int
}

// NewUploadRecord constructs a record in the NotStarted state.
func NewUploadRecord(folder *Folder, file DatasetFile, fp FileFingerprint, bytesUploadedPreviously int64) *UploadRecord {
	return &UploadRecord{
		Folder:                  folder,
		File:                    file,
		Fp:                      fp,
		BytesUploadedPreviously: bytesUploadedPreviously,
		State:                   UploadNotStarted,
	}
}

// Start transitions NotStarted -> InProgress and records the start time.
func (r *UploadRecord) Start(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.State = UploadInProgress
	r.StartedAt = now
	r.LatestAt = now
}

// SetSubprocess records the PID of the transfer child process.
func (r *UploadRecord) SetSubprocess(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.SubprocessID = pid
}

// Subprocess returns the recorded PID, or 0 if none.
func (r *UploadRecord) Subprocess() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.SubprocessID
}

// Progress updates the bytes-uploaded counter and latest-activity
// timestamp without changing state.
func (r *UploadRecord) Progress(bytes int64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.BytesUploaded = bytes
	r.LatestAt = now
}

// Finish transitions InProgress -> one of the terminal states.
func (r *UploadRecord) Finish(state UploadState, reason string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State.IsTerminal() {
		return
	}

	r.State = state
	r.FailureReason = reason
	r.LatestAt = now
}

// CurrentState returns the record's state under its own lock.
func (r *UploadRecord) CurrentState() UploadState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.State
}
