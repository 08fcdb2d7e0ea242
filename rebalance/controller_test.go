package rebalance

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siepkes/sfs/blob"
	"github.com/siepkes/sfs/cluster"
	"github.com/siepkes/sfs/digest"
	"github.com/siepkes/sfs/node"
	"github.com/siepkes/sfs/segment"
)

// fakeXNode is an in-memory node.XNode used across scenarios; it never
// hits the network, mirroring the teacher's *_test.go pattern of faking
// the remote-facing interface rather than spinning up a server per test.
type fakeXNode struct {
	id             string
	mu             sync.Mutex
	blobs          map[int64][]byte
	nextPos        int64
	deny           bool
	digestOverride string
	readErrAt      int64 // if > 0, fail the read stream after this many bytes
}

func newFakeXNode(id string) *fakeXNode {
	return &fakeXNode{id: id, blobs: map[int64][]byte{}}
}

func (f *fakeXNode) NodeID() string      { return f.id }
func (f *fakeXNode) HostAndPort() string { return f.id + ":8080" }
func (f *fakeXNode) IsLocal() bool       { return false }

func (f *fakeXNode) Checksum(ctx context.Context, volumeID string, position int64, offset, length *int64, algos []digest.Algo) (*blob.DigestBlob, error) {
	return nil, nil
}

func (f *fakeXNode) Delete(ctx context.Context, volumeID string, position int64) (*blob.HeaderBlob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[position]; !ok {
		return nil, nil
	}
	delete(f.blobs, position)
	return &blob.HeaderBlob{}, nil
}

func (f *fakeXNode) Acknowledge(ctx context.Context, volumeID string, position int64) (*blob.HeaderBlob, error) {
	return &blob.HeaderBlob{}, nil
}

func (f *fakeXNode) CanPut(ctx context.Context, volumeID string) (bool, error) {
	if f.deny {
		return false, nil
	}
	return true, nil
}

func (f *fakeXNode) CreateReadStream(ctx context.Context, volumeID string, position int64, offset, length *int64) (*blob.ReadStreamBlob, error) {
	f.mu.Lock()
	data, ok := f.blobs[position]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var r io.Reader = bytes.NewReader(data)
	if f.readErrAt > 0 {
		r = &failingReader{data: data, failAt: f.readErrAt}
	}
	return &blob.ReadStreamBlob{Length: int64(len(data)), Body: io.NopCloser(r)}, nil
}

func (f *fakeXNode) CreateWriteStream(ctx context.Context, volumeID string, length int64, algos []digest.Algo) (blob.WriteStream, error) {
	return &fakeWriteStream{node: f}, nil
}

type fakeWriteStream struct {
	node *fakeXNode
}

func (w *fakeWriteStream) Drive(ctx context.Context, source io.Reader) (blob.DigestBlob, error) {
	data, err := io.ReadAll(source)
	if err != nil {
		return blob.DigestBlob{}, err
	}
	w.node.mu.Lock()
	pos := w.node.nextPos
	w.node.nextPos++
	w.node.blobs[pos] = data
	w.node.mu.Unlock()

	sum := sha512.Sum512(data)
	hexDigest := hex.EncodeToString(sum[:])
	if w.node.digestOverride != "" {
		hexDigest = w.node.digestOverride
	}
	return blob.DigestBlob{VolumeID: w.node.id + "-v1", Primary: true, Position: pos, Length: int64(len(data)), Digests: map[string]string{"sha512": hexDigest}}, nil
}

type failingReader struct {
	data   []byte
	failAt int64
	read   int64
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.read >= r.failAt {
		return 0, fmt.Errorf("simulated source read failure at byte %d", r.read)
	}
	remaining := r.failAt - r.read
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	if int64(len(p)) > int64(len(r.data))-r.read {
		p = p[:int64(len(r.data))-r.read]
	}
	if len(p) == 0 {
		return 0, fmt.Errorf("simulated source read failure at byte %d", r.read)
	}
	n := copy(p, r.data[r.read:])
	r.read += int64(n)
	return n, nil
}

type fakeDirectory struct {
	nodes map[string]*fakeXNode
}

func (d *fakeDirectory) Lookup(nodeID string) (node.XNode, error) {
	n, ok := d.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("no such node %s", nodeID)
	}
	return n, nil
}

type fakeNodes struct {
	primaries     int
	replicas      int
	allowSameNode bool
}

func (f *fakeNodes) GetNumberOfPrimaries() int { return f.primaries }
func (f *fakeNodes) GetNumberOfReplicas() int  { return f.replicas }
func (f *fakeNodes) IsAllowSameNode() bool     { return f.allowSameNode }
func (f *fakeNodes) IsMaster() bool            { return true }

type fakeIndex struct {
	roster       []cluster.PersistentServiceDef
	deletedCalls int
	mu           sync.Mutex
}

func (f *fakeIndex) ListDataNodes() ([]cluster.PersistentServiceDef, error) {
	return f.roster, nil
}

func (f *fakeIndex) DeleteBlobReference(ctx context.Context, nodeID, volumeID string, position int64) (bool, error) {
	f.mu.Lock()
	f.deletedCalls++
	f.mu.Unlock()
	return true, nil
}

func rosterFrom(nodes ...*fakeXNode) ([]cluster.PersistentServiceDef, *fakeDirectory) {
	defs := make([]cluster.PersistentServiceDef, len(nodes))
	dir := &fakeDirectory{nodes: map[string]*fakeXNode{}}
	for i, n := range nodes {
		defs[i] = cluster.PersistentServiceDef{
			NodeID:      n.id,
			HostAndPort: n.HostAndPort(),
			Volumes:     []cluster.Volume{{VolumeID: n.id + "-v1", Health: cluster.VolumeUsable}},
		}
		dir.nodes[n.id] = n
	}
	return defs, dir
}

func TestRebalanceBalanceUpFromOneToThreePrimaries(t *testing.T) {
	a, b, c, d := newFakeXNode("a"), newFakeXNode("b"), newFakeXNode("c"), newFakeXNode("d")
	roster, dir := rosterFrom(a, b, c, d)
	index := &fakeIndex{roster: roster}
	nodes := &fakeNodes{primaries: 3, replicas: 0}
	ctrl := NewController(nodes, dir, index)

	payload := []byte("segment payload bytes")
	sum := sha512.Sum512(payload)
	a.blobs[0] = payload
	a.nextPos = 1

	seg := &segment.Segment{
		ID: "seg-1",
		PrimaryBlobs: []segment.BlobReference{
			{NodeID: "a", VolumeID: "a-v1", Position: 0, Length: int64(len(payload)), Acked: true, TokenDigests: digest.Set{digest.SHA512: sum[:]}},
		},
	}

	changed := ctrl.Rebalance(context.Background(), seg)
	assert.True(t, changed)
	assert.Len(t, seg.PrimaryBlobs, 3)

	want := hex.EncodeToString(sum[:])
	for _, ref := range seg.PrimaryBlobs[1:] {
		assert.Equal(t, want, ref.TokenDigests.Hex(digest.SHA512))
		assert.False(t, ref.Acked)
	}
}

func TestRebalanceBalanceDownFiveToTwo(t *testing.T) {
	roster, dir := rosterFrom()
	index := &fakeIndex{roster: roster}
	nodes := &fakeNodes{primaries: 2, replicas: 0}
	ctrl := NewController(nodes, dir, index)

	seg := &segment.Segment{ID: "seg-2"}
	for i := 0; i < 5; i++ {
		seg.PrimaryBlobs = append(seg.PrimaryBlobs, segment.BlobReference{
			NodeID: fmt.Sprintf("n%d", i), VolumeID: fmt.Sprintf("v%d", i), Position: int64(i), Acked: true,
		})
	}

	changed := ctrl.Rebalance(context.Background(), seg)
	assert.True(t, changed)
	assert.Equal(t, 3, index.deletedCalls)

	deletedCount := 0
	for _, r := range seg.PrimaryBlobs {
		if r.Deleted {
			deletedCount++
		}
	}
	assert.Equal(t, 3, deletedCount)
	assert.True(t, seg.PrimaryBlobs[0].Deleted)
	assert.True(t, seg.PrimaryBlobs[1].Deleted)
	assert.True(t, seg.PrimaryBlobs[2].Deleted)
	assert.False(t, seg.PrimaryBlobs[3].Deleted)
	assert.False(t, seg.PrimaryBlobs[4].Deleted)
}

func TestRebalanceInsufficientCapacityAppendsNothing(t *testing.T) {
	a, b := newFakeXNode("a"), newFakeXNode("b")
	roster, dir := rosterFrom(a, b)
	index := &fakeIndex{roster: roster}
	nodes := &fakeNodes{primaries: 4, replicas: 0}
	ctrl := NewController(nodes, dir, index)

	payload := []byte("data")
	a.blobs[0] = payload
	a.nextPos = 1

	seg := &segment.Segment{
		ID: "seg-3",
		PrimaryBlobs: []segment.BlobReference{
			{NodeID: "a", VolumeID: "a-v1", Position: 0, Length: int64(len(payload)), Acked: true},
		},
	}

	changed := ctrl.Rebalance(context.Background(), seg)
	assert.False(t, changed)
	assert.Len(t, seg.PrimaryBlobs, 1)
}

func TestRebalanceDigestMismatchAppendsNothing(t *testing.T) {
	a, b := newFakeXNode("a"), newFakeXNode("b")
	b.digestOverride = "deadbeef"
	roster, dir := rosterFrom(a, b)
	index := &fakeIndex{roster: roster}
	nodes := &fakeNodes{primaries: 2, replicas: 0}
	ctrl := NewController(nodes, dir, index)

	payload := []byte("data")
	a.blobs[0] = payload
	a.nextPos = 1

	seg := &segment.Segment{
		ID: "seg-4",
		PrimaryBlobs: []segment.BlobReference{
			{NodeID: "a", VolumeID: "a-v1", Position: 0, Length: int64(len(payload)), Acked: true},
		},
	}

	changed := ctrl.Rebalance(context.Background(), seg)
	assert.False(t, changed)
	assert.Len(t, seg.PrimaryBlobs, 1)
}

func TestRebalanceSourceReadFailsMidStream(t *testing.T) {
	a, b := newFakeXNode("a"), newFakeXNode("b")
	a.readErrAt = 2
	roster, dir := rosterFrom(a, b)
	index := &fakeIndex{roster: roster}
	nodes := &fakeNodes{primaries: 2, replicas: 0}
	ctrl := NewController(nodes, dir, index)

	payload := []byte("data")
	a.blobs[0] = payload
	a.nextPos = 1

	seg := &segment.Segment{
		ID: "seg-5",
		PrimaryBlobs: []segment.BlobReference{
			{NodeID: "a", VolumeID: "a-v1", Position: 0, Length: int64(len(payload)), Acked: true},
		},
	}

	changed := ctrl.Rebalance(context.Background(), seg)
	assert.False(t, changed)
	assert.Len(t, seg.PrimaryBlobs, 1)
}

func TestRebalanceTinyDataIsImmediatelyStable(t *testing.T) {
	ctrl := NewController(&fakeNodes{primaries: 1}, &fakeDirectory{}, &fakeIndex{})
	seg := &segment.Segment{ID: "seg-6", TinyData: true}
	changed := ctrl.Rebalance(context.Background(), seg)
	require.True(t, changed)
	assert.Empty(t, seg.PrimaryBlobs)
	assert.Empty(t, seg.ReplicaBlobs)
}
