// Package hash implements two content-identity hashes: the Stump hash
// (content-sampled, independent of the file's path) and the KOReader
// hash (bit-exact digest of sampled 1 KiB chunks, for e-reader
// progress-sync interop).
package hash

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// SampleSize is the number of bytes read from the start of a file for
// the Stump hash — sampling instead of hashing the whole file keeps
// large archives cheap to re-verify on every scan.
const SampleSize = 64 * 1024

// Stump computes the deterministic, collision-tolerant content hash used
// to recognize a file across moves/renames.
// It folds in the total size, the mtime truncated to the second, and the
// first SampleSize bytes, rather than hashing the full file, so detecting
// a moved-but-unchanged file doesn't require re-reading gigabytes of
// comic archive. Truncating mtime to the second matches what most
// filesystems actually preserve across a copy/move.
func Stump(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()

	h := xxhash.New()
	writeInt64(h, size)
	writeInt64(h, info.ModTime().Unix())

	head := make([]byte, SampleSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	h.Write(head[:n])

	sum := h.Sum64()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (8 * (7 - i)))
	}
	return hex.EncodeToString(buf[:]), nil
}

func writeInt64(h *xxhash.Digest, v int64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
	h.Write(buf[:])
}
