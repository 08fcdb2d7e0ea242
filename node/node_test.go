package node

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siepkes/sfs/blob"
	"github.com/siepkes/sfs/digest"
)

type fakeStore struct {
	data map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{data: map[string][]byte{}} }

func (f *fakeStore) key(volumeID string, position int64) string {
	return volumeID
}

func (f *fakeStore) Checksum(ctx context.Context, volumeID string, position int64, offset, length *int64, algos []digest.Algo) (*blob.DigestBlob, error) {
	data, ok := f.data[f.key(volumeID, position)]
	if !ok {
		return nil, nil
	}
	sum := sha512.Sum512(data)
	return &blob.DigestBlob{VolumeID: volumeID, Digests: map[string]string{"sha512": hex.EncodeToString(sum[:])}}, nil
}

func (f *fakeStore) Delete(ctx context.Context, volumeID string, position int64) (bool, error) {
	key := f.key(volumeID, position)
	if _, ok := f.data[key]; !ok {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *fakeStore) Acknowledge(ctx context.Context, volumeID string, position int64) (bool, error) {
	_, ok := f.data[f.key(volumeID, position)]
	return ok, nil
}

func (f *fakeStore) CanPut(ctx context.Context, volumeID string) (bool, error) {
	return true, nil
}

func (f *fakeStore) ReadStream(ctx context.Context, volumeID string, position int64, offset, length *int64) (int64, io.ReadCloser, bool, error) {
	data, ok := f.data[f.key(volumeID, position)]
	if !ok {
		return 0, nil, false, nil
	}
	return int64(len(data)), io.NopCloser(bytes.NewReader(data)), true, nil
}

func (f *fakeStore) WriteStream(ctx context.Context, volumeID string, length int64, algos []digest.Algo) (blob.WriteStream, error) {
	return &fakeWriteStream{store: f, volumeID: volumeID}, nil
}

type fakeWriteStream struct {
	store    *fakeStore
	volumeID string
}

func (w *fakeWriteStream) Drive(ctx context.Context, source io.Reader) (blob.DigestBlob, error) {
	data, err := io.ReadAll(source)
	if err != nil {
		return blob.DigestBlob{}, err
	}
	w.store.data[w.store.key(w.volumeID, 0)] = data
	sum := sha512.Sum512(data)
	return blob.DigestBlob{
		VolumeID: w.volumeID,
		Primary:  true,
		Length:   int64(len(data)),
		Digests:  map[string]string{"sha512": hex.EncodeToString(sum[:])},
	}, nil
}

func TestLocalNodeRoundTrip(t *testing.T) {
	store := newFakeStore()
	n := NewLocalNode("local-1", "127.0.0.1:0", store)

	require.True(t, n.IsLocal())
	assert.Equal(t, "local-1", n.NodeID())

	ws, err := n.CreateWriteStream(context.Background(), "v1", 5, []digest.Algo{digest.SHA512})
	require.NoError(t, err)

	receipt, err := ws.Drive(context.Background(), bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "v1", receipt.VolumeID)

	rs, err := n.CreateReadStream(context.Background(), "v1", 0, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, rs)
	got, _ := io.ReadAll(rs.Body)
	assert.Equal(t, "hello", string(got))

	h, err := n.Delete(context.Background(), "v1", 0)
	require.NoError(t, err)
	assert.NotNil(t, h)

	h2, err := n.Delete(context.Background(), "v1", 0)
	require.NoError(t, err)
	assert.Nil(t, h2)
}
