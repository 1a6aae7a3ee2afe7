// Package hasher computes the content digest that identifies a model artifact.
//
// The digest is SHA-256 over the raw byte stream, hex encoded. Chunking only
// bounds memory use and never changes the result.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
)

// DefaultChunkSize matches the 10 MiB slices the browser client reads
const DefaultChunkSize = 10 << 20

var (
	ErrRead             = errors.New("failed to read artifact")
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
)

// Sum hashes r in DefaultChunkSize chunks
func Sum(r io.Reader) (string, error) {
	return SumChunked(r, DefaultChunkSize)
}

// SumChunked hashes r reading at most chunkSize bytes at a time
func SumChunked(r io.Reader, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		return "", ErrInvalidChunkSize
	}

	h := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRead, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumFile streams the file at path through Sum
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRead, err)
	}
	defer f.Close()

	return Sum(f)
}

// Digest is an io.Writer computing the same digest as Sum.
// It buffers nothing, so callers that already stream bytes elsewhere can
// tee them through it.
type Digest struct {
	h hash.Hash
	n int64
}

// NewDigest creates an empty digest
func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

// Write implements io.Writer and never fails
func (d *Digest) Write(p []byte) (int, error) {
	d.n += int64(len(p))
	return d.h.Write(p)
}

// Size is the number of bytes written so far
func (d *Digest) Size() int64 {
	return d.n
}

// Hex returns the hex encoded digest of everything written so far
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
