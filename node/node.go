// Package node implements §4.3's C3: a uniform capability surface over a
// local or remote peer, so the rebalance core never branches on variant.
// Grounded on the teacher's own NodeImpl/DataNode split in
// weed/topology/node.go and data_node.go (an identity+capability object
// the topology layer treats polymorphically) and on
// weed/replication/sink.ReplicationSink's narrow interface-over-backend
// shape.
package node

import (
	"context"
	"io"
	"time"

	"github.com/siepkes/sfs/blob"
	"github.com/siepkes/sfs/digest"
)

// XNode exposes every §4.1 operation plus identity (§4.3). LocalNode and
// RemoteNode both satisfy it; the core is written entirely against this
// interface.
type XNode interface {
	NodeID() string
	HostAndPort() string
	IsLocal() bool

	Checksum(ctx context.Context, volumeID string, position int64, offset, length *int64, algos []digest.Algo) (*blob.DigestBlob, error)
	Delete(ctx context.Context, volumeID string, position int64) (*blob.HeaderBlob, error)
	Acknowledge(ctx context.Context, volumeID string, position int64) (*blob.HeaderBlob, error)
	CanPut(ctx context.Context, volumeID string) (bool, error)
	CreateReadStream(ctx context.Context, volumeID string, position int64, offset, length *int64) (*blob.ReadStreamBlob, error)
	CreateWriteStream(ctx context.Context, volumeID string, length int64, algos []digest.Algo) (blob.WriteStream, error)
}

// RemoteNode is a thin wrapper binding a peer's identity to a C1 client
// instance (§4.3).
type RemoteNode struct {
	nodeID      string
	hostAndPort string
	client      *blob.Client
}

// NewRemoteNode builds a RemoteNode bound to a fresh blob.Client for the
// given peer.
func NewRemoteNode(nodeID, hostAndPort string, secret []byte, responseTimeout time.Duration) *RemoteNode {
	return &RemoteNode{
		nodeID:      nodeID,
		hostAndPort: hostAndPort,
		client:      blob.NewClient(hostAndPort, secret, responseTimeout),
	}
}

func (r *RemoteNode) NodeID() string      { return r.nodeID }
func (r *RemoteNode) HostAndPort() string { return r.hostAndPort }
func (r *RemoteNode) IsLocal() bool       { return false }

func (r *RemoteNode) Checksum(ctx context.Context, volumeID string, position int64, offset, length *int64, algos []digest.Algo) (*blob.DigestBlob, error) {
	return r.client.Checksum(ctx, volumeID, position, offset, length, algos)
}

func (r *RemoteNode) Delete(ctx context.Context, volumeID string, position int64) (*blob.HeaderBlob, error) {
	return r.client.Delete(ctx, volumeID, position)
}

func (r *RemoteNode) Acknowledge(ctx context.Context, volumeID string, position int64) (*blob.HeaderBlob, error) {
	return r.client.Acknowledge(ctx, volumeID, position)
}

func (r *RemoteNode) CanPut(ctx context.Context, volumeID string) (bool, error) {
	return r.client.CanPut(ctx, volumeID)
}

func (r *RemoteNode) CreateReadStream(ctx context.Context, volumeID string, position int64, offset, length *int64) (*blob.ReadStreamBlob, error) {
	return r.client.CreateReadStream(ctx, volumeID, position, offset, length)
}

func (r *RemoteNode) CreateWriteStream(ctx context.Context, volumeID string, length int64, algos []digest.Algo) (blob.WriteStream, error) {
	return r.client.CreateWriteStream(ctx, volumeID, length, algos)
}

// LocalVolumeStore is the direct-I/O backend a LocalNode delegates to when
// the target node is the current process (§4.3). Deliberately narrow and
// defined here rather than importing cluster's Volume/Node types, so node
// has no dependency on cluster and cluster can safely depend on node.
type LocalVolumeStore interface {
	Checksum(ctx context.Context, volumeID string, position int64, offset, length *int64, algos []digest.Algo) (*blob.DigestBlob, error)
	Delete(ctx context.Context, volumeID string, position int64) (deleted bool, err error)
	Acknowledge(ctx context.Context, volumeID string, position int64) (acked bool, err error)
	CanPut(ctx context.Context, volumeID string) (bool, error)
	ReadStream(ctx context.Context, volumeID string, position int64, offset, length *int64) (length_ int64, r io.ReadCloser, found bool, err error)
	WriteStream(ctx context.Context, volumeID string, length int64, algos []digest.Algo) (blob.WriteStream, error)
}

// LocalNode services the six operations by direct volume I/O, used when
// the target node is the current process (§4.3).
type LocalNode struct {
	nodeID      string
	hostAndPort string
	store       LocalVolumeStore
}

// NewLocalNode builds a LocalNode delegating to store.
func NewLocalNode(nodeID, hostAndPort string, store LocalVolumeStore) *LocalNode {
	return &LocalNode{nodeID: nodeID, hostAndPort: hostAndPort, store: store}
}

func (l *LocalNode) NodeID() string      { return l.nodeID }
func (l *LocalNode) HostAndPort() string { return l.hostAndPort }
func (l *LocalNode) IsLocal() bool       { return true }

func (l *LocalNode) Checksum(ctx context.Context, volumeID string, position int64, offset, length *int64, algos []digest.Algo) (*blob.DigestBlob, error) {
	return l.store.Checksum(ctx, volumeID, position, offset, length, algos)
}

func (l *LocalNode) Delete(ctx context.Context, volumeID string, position int64) (*blob.HeaderBlob, error) {
	deleted, err := l.store.Delete(ctx, volumeID, position)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, nil
	}
	return &blob.HeaderBlob{}, nil
}

func (l *LocalNode) Acknowledge(ctx context.Context, volumeID string, position int64) (*blob.HeaderBlob, error) {
	acked, err := l.store.Acknowledge(ctx, volumeID, position)
	if err != nil {
		return nil, err
	}
	if !acked {
		return nil, nil
	}
	return &blob.HeaderBlob{}, nil
}

func (l *LocalNode) CanPut(ctx context.Context, volumeID string) (bool, error) {
	return l.store.CanPut(ctx, volumeID)
}

func (l *LocalNode) CreateReadStream(ctx context.Context, volumeID string, position int64, offset, length *int64) (*blob.ReadStreamBlob, error) {
	length_, r, found, err := l.store.ReadStream(ctx, volumeID, position, offset, length)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &blob.ReadStreamBlob{Length: length_, Body: r}, nil
}

func (l *LocalNode) CreateWriteStream(ctx context.Context, volumeID string, length int64, algos []digest.Algo) (blob.WriteStream, error) {
	return l.store.WriteStream(ctx, volumeID, length, algos)
}
