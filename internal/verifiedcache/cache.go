// Package verifiedcache implements the on-disk (datasetId, fileName,
// size, digest) -> verifiedAt mapping used to skip files already
// confirmed verified in prior runs. It is grounded in the teacher's own
// committed-index cache (block/leveldb_committed_block_index.go): an
// embedded goleveldb database as the backing store. Each stored value is
// wrapped with an HMAC so a torn write from a crash is detected and
// dropped rather than trusted, the same role the teacher's
// internal/cache.ChecksumProtection plays for its content cache.
package verifiedcache

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/manishkumr/mydata/internal/logging"
	"github.com/manishkumr/mydata/internal/model"
)

var log = logging.Module("verifiedcache")

// hmacKeySize is arbitrary; the secret only needs to be stable across the
// lifetime of one on-disk cache, not cryptographically secret, since its
// job is corruption detection rather than authentication against an
// adversary.
const hmacKeySize = 32

// Cache is a persistent, process-shared fingerprint -> verifiedAt store.
// Reads are lock-free (goleveldb itself is safe for concurrent readers);
// writes are serialized by mu, matching the contract in SPEC_FULL.md §4.5.
type Cache struct {
	mu     sync.Mutex
	db     *leveldb.DB
	secret []byte
}

// Open opens (creating if absent) the cache database rooted at dir. A
// process crash between writes never corrupts previously-committed
// entries: goleveldb's write-ahead log guarantees that, and entries whose
// HMAC fails to verify on read are dropped silently rather than treated
// as fatal.
func Open(dir string) (*Cache, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open verified-files cache")
	}

	secret, err := loadOrCreateSecret(db)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}

	return &Cache{db: db, secret: secret}, nil
}

const secretKey = "__hmac_secret__"

func loadOrCreateSecret(db *leveldb.DB) ([]byte, error) {
	v, err := db.Get([]byte(secretKey), nil)
	if err == nil {
		return v, nil
	}

	if !errors.Is(err, leveldb.ErrNotFound) {
		return nil, errors.Wrap(err, "unable to read cache secret")
	}

	secret := make([]byte, hmacKeySize)
	if _, err := rand.Read(secret); err != nil {
		return nil, errors.Wrap(err, "unable to generate cache secret")
	}

	if err := db.Put([]byte(secretKey), secret, nil); err != nil {
		return nil, errors.Wrap(err, "unable to persist cache secret")
	}

	return secret, nil
}

type entry struct {
	VerifiedAt int64 `json:"verifiedAt"` // unix nanos
}

func cacheKey(fp model.FileFingerprint) []byte {
	return []byte(fp.DatasetID + "\x00" + fp.FileName + "\x00" + itoa(fp.Size) + "\x00" + fp.Digest)
}

func (c *Cache) protect(payload []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload) //nolint:errcheck

	sum := mac.Sum(nil)
	out := make([]byte, 0, len(sum)+len(payload))
	out = append(out, sum...)
	out = append(out, payload...)

	return out
}

func (c *Cache) verify(protected []byte) ([]byte, bool) {
	if len(protected) < sha256.Size {
		return nil, false
	}

	sum, payload := protected[:sha256.Size], protected[sha256.Size:]

	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload) //nolint:errcheck

	return payload, hmac.Equal(sum, mac.Sum(nil))
}

// Lookup reports whether fp was recorded as verified in a previous run. A
// checksum mismatch or malformed entry is treated as a cache miss, never
// an error: per SPEC_FULL.md §4.5, corruption must never surface as a
// fatal condition.
func (c *Cache) Lookup(fp model.FileFingerprint) (verifiedAt time.Time, ok bool) {
	raw, err := c.db.Get(cacheKey(fp), nil)
	if err != nil {
		return time.Time{}, false
	}

	payload, valid := c.verify(raw)
	if !valid {
		log.Warnf("dropping corrupt cache entry for %s/%s", fp.DatasetID, fp.FileName)
		return time.Time{}, false
	}

	var e entry
	if err := json.Unmarshal(payload, &e); err != nil {
		log.Warnf("dropping malformed cache entry for %s/%s: %v", fp.DatasetID, fp.FileName, err)
		return time.Time{}, false
	}

	return time.Unix(0, e.VerifiedAt), true
}

// Insert records fp as verified at the given time. All insertions through
// one Cache are serialized by mu; the secret bootstrap in Open runs
// before the Cache exists and is not guarded by it.
func (c *Cache) Insert(fp model.FileFingerprint, verifiedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(entry{VerifiedAt: verifiedAt.UnixNano()})
	if err != nil {
		return errors.Wrap(err, "unable to marshal cache entry")
	}

	if err := c.db.Put(cacheKey(fp), c.protect(payload), nil); err != nil {
		return errors.Wrap(err, "unable to write cache entry")
	}

	return nil
}

// Close closes the underlying database. Safe to call once at controller
// shutdown.
func (c *Cache) Close() error {
	return c.db.Close()
}

func itoa(n int64) string {
	var buf [20]byte
	return string(binary.AppendVarint(buf[:0], n))
}
