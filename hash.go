package cdo

import (
	"fmt"
	"hash"
	"io"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// Fingerprint is the digest of a source file's bytes.
type Fingerprint uint64

// String returns the text form stored in fingerprint records.
func (f Fingerprint) String() string {
	return strconv.FormatUint(uint64(f), 10)
}

// parseFingerprint parses the text form of a fingerprint record.
func parseFingerprint(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Fingerprint(v), nil
}

// HashFunc defines a function that creates a new 64-bit hash instance.
type HashFunc func() hash.Hash64

// Default size for the buffer used when hashing files
const defaultBufferSize = 32 * 1024 // 32KB

// bufferPool is a pool of byte slices used for file I/O during hashing
var bufferPool = sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, defaultBufferSize)
		return &buffer
	},
}

// hashFile hashes the content from a reader using the provided hash function.
func hashFile(content io.Reader, h hash.Hash) error {
	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	_, err := io.CopyBuffer(h, content, buffer)
	if err != nil {
		return fmt.Errorf("failed to copy content: %w", err)
	}
	return nil
}

// HashBytes returns the default fingerprint of data.
func HashBytes(data []byte) Fingerprint {
	return Fingerprint(xxhash.Sum64(data))
}

// defaultHashFunc returns the default hash function (xxHash64).
func defaultHashFunc() hash.Hash64 {
	return xxhash.New()
}

// Hasher computes fingerprints of files read through an afero filesystem.
type Hasher struct {
	fs       afero.Fs
	hashFunc HashFunc
}

// NewHasher returns a Hasher reading from fs. A nil hashFunc selects xxHash64.
func NewHasher(fs afero.Fs, hashFunc HashFunc) *Hasher {
	if hashFunc == nil {
		hashFunc = defaultHashFunc
	}
	return &Hasher{fs: fs, hashFunc: hashFunc}
}

// Sum returns the fingerprint of the file at path.
func (h *Hasher) Sum(path string) (Fingerprint, error) {
	f, err := h.fs.Open(path)
	if err != nil {
		return 0, ioError("hash", path, err)
	}
	defer f.Close()

	digest := h.hashFunc()
	if err := hashFile(f, digest); err != nil {
		return 0, ioError("hash", path, err)
	}
	return Fingerprint(digest.Sum64()), nil
}
