// Package upload implements the upload worker pool: BulkHTTP (a single
// POST carrying the file body) and Staged (register-then-secure-copy),
// selected once per run per SPEC_FULL.md §4.3 based on the archive's
// answer to RequestStagingAccess.
package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/manishkumr/mydata/internal/archiveclient"
	"github.com/manishkumr/mydata/internal/archiveerrors"
	"github.com/manishkumr/mydata/internal/events"
	"github.com/manishkumr/mydata/internal/logging"
	"github.com/manishkumr/mydata/internal/model"
	"github.com/manishkumr/mydata/internal/settings"
	"github.com/manishkumr/mydata/internal/transfer"
	"github.com/manishkumr/mydata/internal/workerpool"
)

var log = logging.Module("upload")

// Method is the transport used for a run's uploads, fixed once at
// StagingAccessApproved/absent resolution time.
type Method int

// Recognized upload methods.
const (
	MethodBulkHTTP Method = iota
	MethodStaged
)

// Worker runs one upload method's pool. Exactly one Worker is active per
// run: BulkHTTP pools are clamped to a single goroutine since the bulk
// client is not safe for concurrent use, per settings.EffectiveUploadThreads.
type Worker struct {
	method   Method
	client   *archiveclient.Client
	xfer     transfer.FileTransfer
	bus      *events.Bus
	pool     *workerpool.Pool
	progress time.Duration

	dirsMu sync.Mutex
	dirs   map[string]bool // REMOTE_DIRS_CREATED, keyed by host:remotePath
}

// New constructs a Worker for the given method. xfer is nil and unused
// when method is MethodBulkHTTP.
func New(method Method, client *archiveclient.Client, xfer transfer.FileTransfer, bus *events.Bus, s settings.Settings) *Worker {
	n := s.EffectiveUploadThreads(method == MethodBulkHTTP)

	w := &Worker{
		method:   method,
		client:   client,
		xfer:     xfer,
		bus:      bus,
		progress: s.ProgressPollInterval,
		dirs:     map[string]bool{},
	}
	w.pool = workerpool.New(n, n*4)

	return w
}

// Submit enqueues one file for upload.
func (w *Worker) Submit(ctx context.Context, folder *model.Folder, file model.DatasetFile, fp model.FileFingerprint, bytesUploadedPreviously int64, onDone func(*model.UploadRecord)) {
	w.pool.Submit(func() {
		rec := model.NewUploadRecord(folder, file, fp, bytesUploadedPreviously)
		rec.Start(time.Now())

		w.bus.Post(events.Event{Kind: events.KindUploadStarted, Folder: folder, Upload: rec})

		var err error

		switch w.method {
		case MethodBulkHTTP:
			err = w.uploadBulk(ctx, folder, file, fp, rec)
		default:
			err = w.uploadStaged(ctx, folder, file, fp, rec)
		}

		if err != nil {
			var cancelled *archiveerrors.Cancelled
			if errors.As(err, &cancelled) || isCancellationArtifact(err) {
				rec.Finish(model.UploadCanceled, "cancelled", time.Now())
				w.bus.Post(events.Event{Kind: events.KindUploadCanceled, Folder: folder, Upload: rec})
			} else {
				rec.Finish(model.UploadFailed, err.Error(), time.Now())
				w.bus.Post(events.Event{Kind: events.KindUploadFailed, Folder: folder, Upload: rec})
			}
		} else {
			rec.Finish(model.UploadCompleted, "", time.Now())
			w.bus.Post(events.Event{Kind: events.KindUploadCompleted, Folder: folder, Upload: rec})
		}

		onDone(rec)
	})
}

// isCancellationArtifact recognizes the "use of closed network
// connection"/"file already closed" errors a cancelled os/exec or HTTP
// transfer surfaces, which must be reported as Canceled rather than
// Failed per SPEC_FULL.md §5.
func isCancellationArtifact(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "closed") || strings.Contains(msg, "context canceled")
}

func (w *Worker) uploadBulk(ctx context.Context, folder *model.Folder, file model.DatasetFile, fp model.FileFingerprint, rec *model.UploadRecord) error {
	fullPath := filepath.Join(folder.LocalPath, file.RelativePath)

	f, err := os.Open(fullPath) //nolint:gosec
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if err := w.client.CreateDatafileBulk(ctx, fp, f, info.Size()); err != nil {
		return err
	}

	rec.Progress(info.Size(), time.Now())

	return nil
}

func (w *Worker) uploadStaged(ctx context.Context, folder *model.Folder, file model.DatasetFile, fp model.FileFingerprint, rec *model.UploadRecord) error {
	target, err := w.client.CreateDatafileStaged(ctx, fp)
	if err != nil {
		return err
	}

	dirKey := target.Host + ":" + filepath.Dir(target.RemotePath)

	w.dirsMu.Lock()
	needsMkdir := !w.dirs[dirKey]
	w.dirsMu.Unlock()

	if needsMkdir {
		if err := w.xfer.EnsureRemoteDir(ctx, target.Host, filepath.Dir(target.RemotePath)); err != nil {
			return err
		}

		w.dirsMu.Lock()
		w.dirs[dirKey] = true
		w.dirsMu.Unlock()
	}

	fullPath := filepath.Join(folder.LocalPath, file.RelativePath)

	done := make(chan struct{})
	defer close(done)

	if w.progress > 0 {
		go w.pollProgress(done, rec)
	}

	_, err = w.xfer.Copy(ctx, target.Host, fullPath, target.RemotePath, rec.SetSubprocess, func(bytesSoFar int64) {
		rec.Progress(bytesSoFar, time.Now())
		w.bus.Post(events.Event{Kind: events.KindUploadProgress, Folder: folder, Upload: rec})
	})

	return err
}

func (w *Worker) pollProgress(done <-chan struct{}, rec *model.UploadRecord) {
	ticker := time.NewTicker(w.progress)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			log.Debugf("upload in progress: %s", rec.File.RelativePath)
		}
	}
}

// Close stops accepting new upload tasks and waits for in-flight ones to
// finish.
func (w *Worker) Close() {
	w.pool.Close()
	w.pool.Wait()
}

// SelectMethod decides BulkHTTP vs Staged from the archive's staging
// access answer, per SPEC_FULL.md §4.3: approved staging access always
// wins, since it tolerates larger files and resumption; everything else
// falls back to BulkHTTP.
func SelectMethod(access model.StagingAccess) Method {
	if access.State == model.StagingAccessApproved {
		return MethodStaged
	}

	return MethodBulkHTTP
}
