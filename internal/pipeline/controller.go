// Package pipeline implements the Pipeline Controller: the single
// authority owning the verification and upload pools, their queues and
// counters, the lifecycle flags, and the shutdown protocol described in
// SPEC_FULL.md §4.4.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/manishkumr/mydata/internal/archiveclient"
	"github.com/manishkumr/mydata/internal/events"
	"github.com/manishkumr/mydata/internal/logging"
	"github.com/manishkumr/mydata/internal/model"
	"github.com/manishkumr/mydata/internal/settings"
	"github.com/manishkumr/mydata/internal/transfer"
	"github.com/manishkumr/mydata/internal/upload"
	"github.com/manishkumr/mydata/internal/verifiedcache"
	"github.com/manishkumr/mydata/internal/verify"
)

var log = logging.Module("pipeline")

// State is the controller's own run state, distinct from the per-task
// VerificationState/UploadState machines.
type State int

// Recognized controller states.
const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateShuttingDown
	StateCompleted
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInitializing:
		return "Initializing"
	case StateRunning:
		return "Running"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type counters struct {
	mu sync.Mutex

	verificationsToPerform int64
	verificationsCompleted int64
	verificationsFailed    int64

	uploadsToPerform int64
	uploadsCompleted int64
	uploadsFailed    int64
	uploadsCanceled  int64
}

// Controller wires the scanner's output into the verification and upload
// pools and decides, after every terminal event, whether the run is done.
type Controller struct {
	s      settings.Settings
	client *archiveclient.Client
	cache  *verifiedcache.Cache
	bus    *events.Bus
	xfer   transfer.FileTransfer

	testRun bool

	started     atomic.Bool
	canceled    atomic.Bool
	failed      atomic.Bool
	completed   atomic.Bool
	scanning    atomic.Bool
	running     atomic.Bool
	shouldAbort atomic.Bool

	state atomic.Int32

	expMu sync.Mutex // getOrCreateExpThreadingLock

	folderWG sync.WaitGroup
	c        counters

	verify *verify.Worker
	upload *upload.Worker

	shutdownOnce sync.Once

	lastMessage string
}

// New constructs a Controller. testRun enables the dry-run mode where
// uploads are only logged as "would upload".
func New(s settings.Settings, client *archiveclient.Client, cache *verifiedcache.Cache, xfer transfer.FileTransfer, bus *events.Bus, testRun bool) *Controller {
	c := &Controller{s: s, client: client, cache: cache, bus: bus, xfer: xfer, testRun: testRun}
	c.state.Store(int32(StateIdle))

	return c
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// State returns the controller's current run state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// InitForUploads chooses the upload method by asking the archive for
// staging access and starts both worker pools. Counters are not reset
// here; they start at zero in New. It never
// starts the pools on an unrecoverable setup error; callers should treat a
// non-nil return as fatal to the run.
func (c *Controller) InitForUploads(ctx context.Context) error {
	c.setState(StateInitializing)
	c.started.Store(true)
	c.scanning.Store(true)
	c.running.Store(true)

	access, err := c.client.RequestStagingAccess(ctx)
	if err != nil {
		c.setState(StateFailed)
		c.failed.Store(true)
		c.postMessage(err.Error(), true)

		return err
	}

	method := upload.SelectMethod(access)

	if method == upload.MethodBulkHTTP && access.State == model.StagingAccessPending {
		c.postMessage("staging access request is pending approval; falling back to bulk HTTP uploads", false)
	} else if method == upload.MethodBulkHTTP && access.State == model.StagingAccessAbsent {
		c.postMessage("no staging access on record; falling back to bulk HTTP uploads", false)
	}

	c.verify = verify.New(c.client, c.cache, c.bus, c.s.MaxVerificationThreads)
	c.upload = upload.New(method, c.client, c.xfer, c.bus, c.s)

	c.setState(StateRunning)

	return nil
}

func (c *Controller) postMessage(msg string, fatal bool) {
	if msg == c.lastMessage {
		return
	}

	c.lastMessage = msg
	c.bus.Post(events.Event{Kind: events.KindMessage, Message: msg, Fatal: fatal})
}

// StartUploadsForFolder increments the verification counter by the
// folder's file count, resolves (and if necessary creates) the folder's
// experiment and dataset, then enqueues one verification task per file.
// Any per-folder error is reported as a message event; it never stops the
// run.
func (c *Controller) StartUploadsForFolder(ctx context.Context, folder *model.Folder) {
	c.folderWG.Add(1)

	go func() {
		defer c.folderWG.Done()

		c.c.mu.Lock()
		c.c.verificationsToPerform += int64(folder.FileCount())
		c.c.mu.Unlock()

		if folder.FileCount() == 0 {
			return
		}

		exp, err := c.getOrCreateExperiment(ctx, folder)
		if err != nil {
			c.postMessage(fmt.Sprintf("unable to resolve experiment for %s: %v", folder.DatasetName, err), false)
			return
		}

		folder.ExperimentRef = &exp

		ds, err := c.client.CreateDatasetIfNecessary(ctx, exp, folder.DatasetName)
		if err != nil {
			c.postMessage(fmt.Sprintf("unable to resolve dataset %s: %v", folder.DatasetName, err), false)
			return
		}

		folder.DatasetRef = &ds

		for _, file := range folder.Files {
			if c.shouldAbort.Load() {
				return
			}

			file := file

			c.verify.Submit(ctx, folder, file, ds.ID, func(rec *model.VerificationRecord) {
				c.onVerificationDone(ctx, folder, rec)
			})
		}
	}()
}

// getOrCreateExperiment serializes get-or-create calls through a single
// mutex, guaranteeing at most one create-experiment request is in flight
// for any title across all concurrently scanning folders.
func (c *Controller) getOrCreateExperiment(ctx context.Context, folder *model.Folder) (model.Experiment, error) {
	c.expMu.Lock()
	defer c.expMu.Unlock()

	return c.client.GetOrCreateExperimentForFolder(ctx, folder.ExperimentTitle)
}

func (c *Controller) onVerificationDone(ctx context.Context, folder *model.Folder, rec *model.VerificationRecord) {
	c.c.mu.Lock()
	if rec.CurrentState() == model.VerificationFailed {
		c.c.verificationsFailed++
	} else {
		c.c.verificationsCompleted++
	}
	c.c.mu.Unlock()

	switch rec.CurrentState() {
	case model.VerificationFoundVerified:
		c.bus.Post(events.Event{Kind: events.KindFoundVerified, Folder: folder, Verification: rec})
	case model.VerificationFoundUnverifiedFullSize:
		c.bus.Post(events.Event{Kind: events.KindFoundFullSizeStaged, Folder: folder, Verification: rec})
	case model.VerificationNotFoundOnServer:
		c.bus.Post(events.Event{Kind: events.KindNeedsUpload, Folder: folder, Verification: rec})
		c.enqueueUpload(ctx, folder, rec, 0)
	case model.VerificationFoundUnverifiedPartial:
		c.bus.Post(events.Event{Kind: events.KindNeedsReupload, Folder: folder, Verification: rec})
		c.enqueueUpload(ctx, folder, rec, rec.BytesUploadedPreviously)
	case model.VerificationFailed:
		c.bus.Post(events.Event{Kind: events.KindVerificationFailed, Folder: folder, Verification: rec})
	}

	c.CountCompletedUploadsAndVerifications()
}

func (c *Controller) enqueueUpload(ctx context.Context, folder *model.Folder, rec *model.VerificationRecord, bytesUploadedPreviously int64) {
	c.c.mu.Lock()
	c.c.uploadsToPerform++
	c.c.mu.Unlock()

	if c.testRun {
		log.Infof("test run: would upload %s", rec.File.RelativePath)

		c.c.mu.Lock()
		c.c.uploadsCompleted++
		c.c.mu.Unlock()

		c.CountCompletedUploadsAndVerifications()

		return
	}

	c.upload.Submit(ctx, folder, rec.File, rec.Fp, bytesUploadedPreviously, func(uRec *model.UploadRecord) {
		c.c.mu.Lock()

		switch uRec.CurrentState() {
		case model.UploadCompleted:
			c.c.uploadsCompleted++
		case model.UploadFailed:
			c.c.uploadsFailed++
		case model.UploadCanceled:
			c.c.uploadsCanceled++
		}

		c.c.mu.Unlock()

		c.CountCompletedUploadsAndVerifications()
	})
}

// FinishedScanningForDatasetFolders blocks until every folder already
// handed to StartUploadsForFolder has finished resolving its
// experiment/dataset and enqueuing its verification tasks, then marks the
// scan as complete. The folder barrier must clear before scanning is
// marked false: otherwise a verify callback racing a not-yet-counted
// folder could see the per-folder-counted totals momentarily balanced and
// trigger shutdown early, closing the pools out from under a folder
// goroutine still about to call Submit. Unlike the originating
// implementation's 10ms busy-wait, this blocks on a sync.WaitGroup; the
// external contract — the controller completes exactly once, after the
// last terminal event — is unchanged.
func (c *Controller) FinishedScanningForDatasetFolders() {
	c.folderWG.Wait()
	c.scanning.Store(false)
	c.CountCompletedUploadsAndVerifications()
}

// CountCompletedUploadsAndVerifications evaluates the completion
// predicate and, if satisfied, triggers shutdown. Safe to call
// concurrently; it is invoked after every terminal verify/upload event,
// including from inside a verify/upload worker goroutine, so a satisfied
// predicate hands shutdown to a fresh goroutine rather than running it
// inline: ShutDownUploadThreads joins the very pools those workers belong
// to, and a worker cannot wait on its own pool's WaitGroup without
// deadlocking it.
func (c *Controller) CountCompletedUploadsAndVerifications() {
	if c.scanning.Load() {
		return
	}

	c.c.mu.Lock()
	verificationsDone := c.c.verificationsCompleted+c.c.verificationsFailed == c.c.verificationsToPerform
	uploadsDone := c.c.uploadsCompleted+c.c.uploadsFailed+c.c.uploadsCanceled == c.c.uploadsToPerform
	c.c.mu.Unlock()

	if verificationsDone && uploadsDone {
		go c.ShutDownUploadThreads("")
	}
}

// ShutDownUploadThreads is idempotent: the first call drains and joins
// both pools, closes the cache, and posts the final status event; later
// calls are no-ops that return the same terminal state.
func (c *Controller) ShutDownUploadThreads(reason string) {
	c.shutdownOnce.Do(func() {
		if reason != "" {
			log.Infof("shutting down upload threads: %s", reason)
		}

		c.setState(StateShuttingDown)

		if c.verify != nil {
			c.verify.Close()
		}

		if c.upload != nil {
			c.upload.Close()
		}

		if err := c.cache.Close(); err != nil {
			log.Warnf("error closing verified-files cache: %v", err)
		}

		c.c.mu.Lock()
		summary := c.summaryLocked()
		c.c.mu.Unlock()

		switch {
		case c.shouldAbort.Load():
			c.setState(StateCanceled)
			c.canceled.Store(true)
		case c.failed.Load():
			c.setState(StateFailed)
		default:
			c.setState(StateCompleted)
			c.completed.Store(true)
		}

		c.running.Store(false)

		c.bus.Post(events.Event{Kind: events.KindShutdownUploads, Message: summary, Completed: true})
		c.bus.Close()
	})
}

// summaryLocked builds the final status string from spec.md §6, assuming
// c.c.mu is already held.
func (c *Controller) summaryLocked() string {
	switch {
	case c.shouldAbort.Load():
		return "were canceled"
	case c.c.verificationsToPerform == 0:
		return "no folders were found to upload from"
	case c.c.uploadsToPerform == 0:
		return "no new files were found to upload"
	case c.c.uploadsFailed > 0:
		return fmt.Sprintf("completed with %d failed upload(s)", c.c.uploadsFailed)
	default:
		return "completed successfully"
	}
}

// Abort sets the cancellation flag. The scanner polls it between owner
// folders when handed ShouldAbort, and StartUploadsForFolder checks it
// before submitting each file for verification. The verification and
// upload workers and the upload progress monitor do not check it, and it
// does not stop transfers already in flight.
func (c *Controller) Abort() {
	c.shouldAbort.Store(true)
}

// ShouldAbort reports whether Abort has been called; collaborators poll
// this at their own suspension points.
func (c *Controller) ShouldAbort() bool {
	return c.shouldAbort.Load()
}

// Events exposes the controller's outbound notification channel.
func (c *Controller) Events() <-chan events.Event {
	return c.bus.Events()
}

// Snapshot is a point-in-time read of the controller's counters, useful
// for progress displays and tests.
type Snapshot struct {
	VerificationsToPerform int64
	VerificationsCompleted int64
	VerificationsFailed    int64
	UploadsToPerform       int64
	UploadsCompleted       int64
	UploadsFailed          int64
	UploadsCanceled        int64
	State                  State
}

// Counts returns a Snapshot of the controller's current counters.
func (c *Controller) Counts() Snapshot {
	c.c.mu.Lock()
	defer c.c.mu.Unlock()

	return Snapshot{
		VerificationsToPerform: c.c.verificationsToPerform,
		VerificationsCompleted: c.c.verificationsCompleted,
		VerificationsFailed:    c.c.verificationsFailed,
		UploadsToPerform:       c.c.uploadsToPerform,
		UploadsCompleted:       c.c.uploadsCompleted,
		UploadsFailed:          c.c.uploadsFailed,
		UploadsCanceled:        c.c.uploadsCanceled,
		State:                  c.State(),
	}
}

// WaitIdle blocks until the controller reaches a terminal state or the
// given timeout elapses, for use by tests and the CLI's run command.
func (c *Controller) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		switch c.State() {
		case StateCompleted, StateFailed, StateCanceled:
			return true
		}

		time.Sleep(10 * time.Millisecond)
	}

	return false
}
