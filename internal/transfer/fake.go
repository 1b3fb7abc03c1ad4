package transfer

import (
	"context"
	"io"
	"os"
	"sync"
)

// FakeTransfer is a FileTransfer double used by tests: it records remote
// directories in memory, copies bytes on the local filesystem instead of
// shelling out, and lets tests inject failures or cancellation.
type FakeTransfer struct {
	mu        sync.Mutex
	Dirs      map[string]bool
	FailCopy  error
	Cancelled bool
}

// NewFakeTransfer constructs an empty FakeTransfer.
func NewFakeTransfer() *FakeTransfer {
	return &FakeTransfer{Dirs: map[string]bool{}}
}

// EnsureRemoteDir records that remotePath has been created.
func (f *FakeTransfer) EnsureRemoteDir(_ context.Context, host, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Dirs[host+":"+remotePath] = true

	return nil
}

// Copy copies localPath to a path under remotePath on the local
// filesystem, simulating a remote transfer for test purposes.
func (f *FakeTransfer) Copy(ctx context.Context, _, localPath, remotePath string, setPID func(int), progress ProgressFunc) (int64, error) {
	if f.FailCopy != nil {
		return 0, f.FailCopy
	}

	setPID(os.Getpid())

	src, err := os.Open(localPath) //nolint:gosec
	if err != nil {
		return 0, err
	}
	defer src.Close() //nolint:errcheck

	dst, err := os.Create(remotePath) //nolint:gosec
	if err != nil {
		return 0, err
	}
	defer dst.Close() //nolint:errcheck

	n, err := io.Copy(dst, src)
	if err != nil {
		return 0, err
	}

	if ctx.Err() != nil {
		return n, ctx.Err()
	}

	progress(n)

	return n, nil
}
