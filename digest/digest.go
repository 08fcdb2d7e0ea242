// Package digest implements §3's content-addressed verification: named
// digest algorithms, a multi-algorithm hashing writer that can sit inline
// in a pump without buffering, and hex-encoded digest sets used to compare
// receipts for equality. Generalizes the teacher's single-algorithm
// weed/storage/needle/crc.go CRCwriter (which tees every Write into a
// running CRC32) to the set of algorithms §3/§6 require, with SHA-512 as
// the one every peer must support.
package digest

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Algo identifies a digest algorithm by its short lowercase wire tag (§6).
type Algo string

const (
	SHA512 Algo = "sha512"
)

func newHash(algo Algo) (hash.Hash, error) {
	switch algo {
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("digest: unsupported algorithm %q", algo)
	}
}

// Set maps an algorithm to its computed digest bytes, mirroring
// BlobReference.tokenDigests (§3).
type Set map[Algo][]byte

// Hex returns the digest for algo as lowercase hex, the wire representation
// receipts use (§6 "echoed in receipts as lowercase hex").
func (s Set) Hex(algo Algo) string {
	return hex.EncodeToString(s[algo])
}

// Equal reports whether two digest sets agree on every algorithm present in
// both — used by the planner's integrity gate (§4.4 step 7) to compare
// receipts across targets.
func (s Set) Equal(other Set) bool {
	for algo, want := range s {
		got, ok := other[algo]
		if !ok {
			continue
		}
		if len(want) != len(got) {
			return false
		}
		for i := range want {
			if want[i] != got[i] {
				return false
			}
		}
	}
	return true
}

// FromHex decodes a wire {algo: hex} map into a Set, as received in a
// createWriteStream receipt body (§4.1).
func FromHex(hexDigests map[string]string) (Set, error) {
	set := make(Set, len(hexDigests))
	for algo, h := range hexDigests {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("digest: decode %s: %w", algo, err)
		}
		set[Algo(algo)] = raw
	}
	return set, nil
}

// Writer computes one or more digests over everything written through it
// without buffering, the same "tee every Write into a running hash" shape
// as the teacher's CRCwriter, generalized to a set of hash.Hash instances.
type Writer struct {
	w      io.Writer
	hashes map[Algo]hash.Hash
}

// NewWriter wraps w so every Write is simultaneously forwarded to w and fed
// into one running hash per requested algorithm.
func NewWriter(w io.Writer, algos ...Algo) (*Writer, error) {
	hashes := make(map[Algo]hash.Hash, len(algos))
	for _, algo := range algos {
		h, err := newHash(algo)
		if err != nil {
			return nil, err
		}
		hashes[algo] = h
	}
	return &Writer{w: w, hashes: hashes}, nil
}

func (dw *Writer) Write(p []byte) (int, error) {
	n, err := dw.w.Write(p)
	if n > 0 {
		for _, h := range dw.hashes {
			h.Write(p[:n])
		}
	}
	return n, err
}

// Sum returns the digests accumulated so far as a Set.
func (dw *Writer) Sum() Set {
	set := make(Set, len(dw.hashes))
	for algo, h := range dw.hashes {
		set[algo] = h.Sum(nil)
	}
	return set
}
