package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerificationRecord_terminalIsImmutable(t *testing.T) {
	rec := NewVerificationRecord(&Folder{}, DatasetFile{RelativePath: "a.txt"}, FileFingerprint{})

	require.Equal(t, VerificationNotStarted, rec.CurrentState())

	rec.Start()
	require.Equal(t, VerificationInProgress, rec.CurrentState())

	rec.Finish(VerificationFoundVerified, "server", 0)
	require.Equal(t, VerificationFoundVerified, rec.CurrentState())
	require.True(t, rec.CurrentState().IsTerminal())

	// A second Finish call must not overwrite the terminal state.
	rec.Finish(VerificationFailed, "late", 0)
	require.Equal(t, VerificationFoundVerified, rec.CurrentState())
}

func TestUploadRecord_terminalIsImmutable(t *testing.T) {
	rec := NewUploadRecord(&Folder{}, DatasetFile{RelativePath: "a.txt"}, FileFingerprint{}, 0)

	rec.Start(time.Now())
	require.Equal(t, UploadInProgress, rec.CurrentState())

	rec.SetSubprocess(1234)
	require.Equal(t, 1234, rec.Subprocess())

	rec.Finish(UploadCompleted, "", time.Now())
	require.True(t, rec.CurrentState().IsTerminal())

	rec.Finish(UploadFailed, "too late", time.Now())
	require.Equal(t, UploadCompleted, rec.CurrentState())
}

// TestCountConservation exercises the invariant from SPEC_FULL.md §8: every
// enqueued verification eventually lands in exactly one terminal bucket, so
// completed+failed always equals the total enqueued.
func TestCountConservation(t *testing.T) {
	states := []VerificationState{
		VerificationFoundVerified,
		VerificationFoundUnverifiedFullSize,
		VerificationFoundUnverifiedPartial,
		VerificationNotFoundOnServer,
		VerificationFailed,
	}

	var completed, failed int

	for _, s := range states {
		rec := NewVerificationRecord(&Folder{}, DatasetFile{}, FileFingerprint{})
		rec.Start()
		rec.Finish(s, "", 0)

		if rec.CurrentState() == VerificationFailed {
			failed++
		} else {
			completed++
		}
	}

	require.Equal(t, len(states), completed+failed)
}

func TestFolder_fileCount(t *testing.T) {
	f := &Folder{Files: []DatasetFile{{RelativePath: "a"}, {RelativePath: "b"}}}
	require.Equal(t, 2, f.FileCount())
}
