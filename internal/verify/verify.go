// Package verify implements the verification worker pool: for each file
// in a scanned Folder, compute its digest, consult the on-disk verified
// cache, and fall back to the archive's fingerprint lookup, landing the
// record in one of the terminal states from model.VerificationState.
package verify

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/manishkumr/mydata/internal/archiveclient"
	"github.com/manishkumr/mydata/internal/events"
	"github.com/manishkumr/mydata/internal/logging"
	"github.com/manishkumr/mydata/internal/model"
	"github.com/manishkumr/mydata/internal/verifiedcache"
	"github.com/manishkumr/mydata/internal/workerpool"
)

var log = logging.Module("verify")

// Worker verifies one file at a time against the cache, then the archive,
// per SPEC_FULL.md §4.2.
type Worker struct {
	client *archiveclient.Client
	cache  *verifiedcache.Cache
	bus    *events.Bus
	pool   *workerpool.Pool
}

// New constructs a Worker. n is the configured MaxVerificationThreads.
func New(client *archiveclient.Client, cache *verifiedcache.Cache, bus *events.Bus, n int) *Worker {
	w := &Worker{client: client, cache: cache, bus: bus}
	w.pool = workerpool.New(n, n*4)

	return w
}

// Submit enqueues one file of folder for verification. datasetID is the
// archive-assigned dataset this file belongs to, resolved by the
// pipeline controller before any file of the folder can be verified.
func (w *Worker) Submit(ctx context.Context, folder *model.Folder, file model.DatasetFile, datasetID string, onDone func(*model.VerificationRecord)) {
	w.pool.Submit(func() {
		rec := w.verify(ctx, folder, file, datasetID)
		onDone(rec)
	})
}

// Close stops accepting new verification tasks and waits for in-flight
// ones to finish.
func (w *Worker) Close() {
	w.pool.Close()
	w.pool.Wait()
}

func (w *Worker) verify(ctx context.Context, folder *model.Folder, file model.DatasetFile, datasetID string) *model.VerificationRecord {
	fullPath := filepath.Join(folder.LocalPath, file.RelativePath)

	rec := model.NewVerificationRecord(folder, file, model.FileFingerprint{DatasetID: datasetID, FileName: file.RelativePath})
	rec.Start()

	w.bus.Post(events.Event{Kind: events.KindVerificationProgress, Folder: folder, Verification: rec})

	f, err := os.Open(fullPath) //nolint:gosec
	if err != nil {
		rec.Finish(model.VerificationFailed, err.Error(), 0)
		return rec
	}
	defer f.Close() //nolint:errcheck

	digest, size, err := model.DigestReader(f)
	if err != nil {
		rec.Finish(model.VerificationFailed, err.Error(), 0)
		return rec
	}

	rec.Fp = model.FileFingerprint{DatasetID: datasetID, FileName: file.RelativePath, Size: size, Digest: digest}

	if verifiedAt, ok := w.cache.Lookup(rec.Fp); ok {
		log.Debugf("cache hit for %s (verified at %s)", file.RelativePath, verifiedAt)
		rec.Finish(model.VerificationFoundVerified, "cache", 0)

		return rec
	}

	result, err := w.client.LookupDatafileByFingerprint(ctx, rec.Fp)
	if err != nil {
		rec.Finish(model.VerificationFailed, err.Error(), 0)
		return rec
	}

	switch {
	case !result.Found:
		rec.Finish(model.VerificationNotFoundOnServer, "no matching datafile", 0)

	case result.Verified:
		if err := w.cache.Insert(rec.Fp, time.Now()); err != nil {
			log.Warnf("unable to persist verified cache entry for %s: %v", file.RelativePath, err)
		}

		rec.Finish(model.VerificationFoundVerified, "server", 0)

	case result.StagedObjectPresent && result.StagedObjectPartial:
		rec.Finish(model.VerificationFoundUnverifiedPartial, "partial staged object", result.BytesUploaded)

	case result.StagedObjectPresent:
		rec.Finish(model.VerificationFoundUnverifiedFullSize, "full size staged object awaiting verification", result.BytesUploaded)

	default:
		// Datafile record exists but no staged object has landed yet;
		// folded into the same terminal state as the partial-staged
		// case per SPEC_FULL.md §4.2 — it only needs re-upload.
		rec.Finish(model.VerificationFoundUnverifiedPartial, "datafile record exists, no staged object", 0)
	}

	return rec
}
