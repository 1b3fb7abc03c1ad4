package model

import (
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
)

// FileFingerprint is the tuple used to decide server-side equivalence: the
// owning dataset, the file's name, its declared size, and a content
// digest computed locally on demand.
type FileFingerprint struct {
	DatasetID string
	FileName  string
	Size      int64
	Digest    string // hex-encoded
}

// NewDigester returns a streaming hash.Hash for computing a file's content
// digest. Callers stream the file body through it via io.Copy and never
// buffer the whole file in memory, mirroring the teacher's streaming hash
// use in its object-writer path.
func NewDigester() hash.Hash {
	return sha512.New512_256()
}

// DigestReader streams r through a fresh digester and returns the
// hex-encoded digest alongside the number of bytes read.
func DigestReader(r io.Reader) (digest string, size int64, err error) {
	h := NewDigester()

	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}
