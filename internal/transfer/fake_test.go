package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeTransfer_copiesFileContents(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))

	f := NewFakeTransfer()

	var pid int

	var progressed int64

	n, err := f.Copy(context.Background(), "stage-host", src, dst, func(p int) { pid = p }, func(b int64) { progressed = b })
	require.NoError(t, err)
	require.EqualValues(t, 7, n)
	require.EqualValues(t, 7, progressed)
	require.NotZero(t, pid)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestFakeTransfer_ensureRemoteDirIsIdempotent(t *testing.T) {
	f := NewFakeTransfer()

	require.NoError(t, f.EnsureRemoteDir(context.Background(), "host", "/remote/path"))
	require.NoError(t, f.EnsureRemoteDir(context.Background(), "host", "/remote/path"))
	require.True(t, f.Dirs["host:/remote/path"])
}

func TestFakeTransfer_injectedFailure(t *testing.T) {
	f := NewFakeTransfer()
	f.FailCopy = errors.New("simulated transfer failure")

	_, err := f.Copy(context.Background(), "host", "src", "dst", func(int) {}, func(int64) {})
	require.ErrorIs(t, err, f.FailCopy)
}
