// Package events defines the typed notifications the pipeline controller
// writes to its single outbound channel. This is the "notify-window event
// queue" of SPEC_FULL.md §5: the controller is the sole writer, the UI or
// a test harness the subscriber, and the channel is closed exactly once,
// after shutdown has joined every worker.
package events

import "github.com/manishkumr/mydata/internal/model"

// Kind discriminates the Event payload.
type Kind int

// Recognized event kinds.
const (
	KindMessage Kind = iota
	KindVerificationProgress
	KindUploadProgress
	KindFoundVerified
	KindFoundFullSizeStaged
	KindNeedsUpload
	KindNeedsReupload
	KindVerificationFailed
	KindUploadStarted
	KindUploadCompleted
	KindUploadFailed
	KindUploadCanceled
	KindShutdownUploads
)

// Event is the single type flowing over the notification channel. Only
// the fields relevant to Kind are populated.
type Event struct {
	Kind Kind

	// Message carries a user-visible string for KindMessage and the final
	// shutdown summary.
	Message string
	// Fatal marks a KindMessage as run-ending (Unauthorized,
	// IncompatibleVersion, InvalidFolderStructure).
	Fatal bool

	Folder *model.Folder

	Verification *model.VerificationRecord
	Upload       *model.UploadRecord

	// Completed is set on KindShutdownUploads per spec.md §4.4.
	Completed bool
}

// Bus is the controller's outbound notification channel. Subscribers
// range over Events until it is closed.
type Bus struct {
	ch chan Event
}

// NewBus creates a Bus with the given buffer size.
func NewBus(buffer int) *Bus {
	return &Bus{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the bus for subscribers.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Post publishes an event. It blocks while the buffer is full, so a
// subscriber must keep reading until the bus is closed; the bus is sized
// generously at construction to absorb bursts.
func (b *Bus) Post(e Event) {
	b.ch <- e
}

// Close closes the channel. Safe to call exactly once, after every writer
// goroutine has stopped.
func (b *Bus) Close() {
	close(b.ch)
}
