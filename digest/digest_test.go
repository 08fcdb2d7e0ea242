package digest

import (
	"bytes"
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterComputesMatchingSHA512(t *testing.T) {
	var dst bytes.Buffer
	w, err := NewWriter(&dst, SHA512)
	require.NoError(t, err)

	payload := []byte("rebalance payload")
	n, err := w.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, dst.Bytes())

	want := sha512.Sum512(payload)
	assert.Equal(t, want[:], w.Sum()[SHA512])
}

func TestNewWriterRejectsUnknownAlgorithm(t *testing.T) {
	var dst bytes.Buffer
	_, err := NewWriter(&dst, Algo("md5"))
	assert.Error(t, err)
}

func TestSetHexRoundTripsThroughFromHex(t *testing.T) {
	sum := sha512.Sum512([]byte("x"))
	set := Set{SHA512: sum[:]}
	hexDigests := map[string]string{string(SHA512): set.Hex(SHA512)}

	decoded, err := FromHex(hexDigests)
	require.NoError(t, err)
	assert.True(t, set.Equal(decoded))
}

func TestSetEqualOnlyComparesSharedAlgorithms(t *testing.T) {
	a := Set{SHA512: []byte{1, 2, 3}}
	b := Set{SHA512: []byte{1, 2, 3}, Algo("other"): []byte{9}}
	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
}

func TestSetEqualDetectsMismatch(t *testing.T) {
	a := Set{SHA512: []byte{1, 2, 3}}
	b := Set{SHA512: []byte{1, 2, 4}}
	assert.False(t, a.Equal(b))
}

func TestFromHexRejectsInvalidHex(t *testing.T) {
	_, err := FromHex(map[string]string{"sha512": "not-hex!"})
	assert.Error(t, err)
}
