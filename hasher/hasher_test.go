package hasher

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumChunked_SameDigestForAnyChunkSize(t *testing.T) {
	data := make([]byte, 3*1024+17)
	_, err := rand.Read(data)
	require.NoError(t, err)

	want, err := SumChunked(bytes.NewReader(data), len(data)+1)
	require.NoError(t, err)
	assert.Len(t, want, 64)

	for _, size := range []int{1, 7, 512, 1024, 4096, DefaultChunkSize} {
		got, err := SumChunked(bytes.NewReader(data), size)
		require.NoError(t, err)
		assert.Equal(t, want, got, "chunk size %d", size)
	}

	// Short reads from the source must not change the digest either.
	got, err := SumChunked(iotest.OneByteReader(bytes.NewReader(data)), 64)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSum_KnownDigest(t *testing.T) {
	got, err := Sum(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got)

	got, err = Sum(bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
}

func TestSumChunked_ReadError(t *testing.T) {
	boom := errors.New("disk gone")
	r := io.MultiReader(bytes.NewReader([]byte("partial")), iotest.ErrReader(boom))

	got, err := SumChunked(r, 4)
	assert.ErrorIs(t, err, ErrRead)
	assert.Empty(t, got)
}

func TestSumChunked_InvalidChunkSize(t *testing.T) {
	_, err := SumChunked(bytes.NewReader([]byte("x")), 0)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)
}

func TestSumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	got, err := SumFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)

	_, err = SumFile(filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorIs(t, err, ErrRead)
}

func TestDigest_MatchesSum(t *testing.T) {
	data := make([]byte, 64*1024+3)
	_, err := rand.Read(data)
	require.NoError(t, err)

	want, err := Sum(bytes.NewReader(data))
	require.NoError(t, err)

	d := NewDigest()
	_, err = io.CopyBuffer(d, bytes.NewReader(data), make([]byte, 1000))
	require.NoError(t, err)

	assert.Equal(t, want, d.Hex())
	assert.Equal(t, int64(len(data)), d.Size())
}

func TestDigest_Empty(t *testing.T) {
	d := NewDigest()
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", d.Hex())
	assert.Zero(t, d.Size())
}
