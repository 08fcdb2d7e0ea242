// Package cluster holds §3's Node/Volume data model and §6's collaborator
// interfaces (Nodes, NodeDirectory, Index) that the rebalance core consumes
// but never implements itself — the roster, the index, and node lookup are
// all external collaborators handed in as a snapshot, mirroring the
// teacher's own split between weed/topology (membership) and
// weed/storage (volume data) kept behind narrow interfaces rather than
// concrete structs reaching across package boundaries.
package cluster

import (
	"context"

	"github.com/siepkes/sfs/node"
)

// VolumeHealth is a Volume's health state (§3).
type VolumeHealth int

const (
	VolumeUsable VolumeHealth = iota
	VolumeFull
	VolumeFailed
)

// Volume is one volume on a Node (§3). Identity is VolumeID, unique
// cluster-wide.
type Volume struct {
	VolumeID string
	Capacity int64
	Health   VolumeHealth
}

// Usable reports whether the volume can accept a new write target.
func (v Volume) Usable() bool { return v.Health == VolumeUsable }

// Node is one member of the data-node roster (§3). Nodes are discovered
// externally and handed to the core as an immutable snapshot; the core
// never mutates cluster membership.
type Node struct {
	NodeID      string
	HostAndPort string
	DataNode    bool
	Master      bool
	Volumes     []Volume
}

// WithoutVolumeIDs returns a copy of n with any volume whose id is in used
// removed, the candidate-narrowing step balanceUp performs before calling
// the planner (§4.5 step b).
func (n Node) WithoutVolumeIDs(used map[string]bool) Node {
	filtered := make([]Volume, 0, len(n.Volumes))
	for _, v := range n.Volumes {
		if !used[v.VolumeID] {
			filtered = append(filtered, v)
		}
	}
	n.Volumes = filtered
	return n
}

// Nodes exposes the cluster-wide configuration the core is threaded
// through (§6, §9's "cluster-shared state... model as a context handle").
type Nodes interface {
	GetNumberOfPrimaries() int
	GetNumberOfReplicas() int
	IsAllowSameNode() bool
	IsMaster() bool
}

// NodeDirectory resolves a node id to its XNode, choosing Local vs Remote
// once at lookup time so the core never branches on variant (§4.3, §6).
type NodeDirectory interface {
	Lookup(nodeID string) (node.XNode, error)
}

// PersistentServiceDef is a snapshot record of one data node as returned by
// Index.ListDataNodes — the external roster source (§6), grounded on
// original_source's GetServiceDefs.java/ListSfsStorageIndexes.java which
// confirm this is a point-in-time query against a document-store index
// with no live consistency guarantee.
type PersistentServiceDef struct {
	NodeID      string
	HostAndPort string
	Volumes     []Volume
}

// Index is the object-metadata index collaborator (§1, §6) — explicitly an
// external system; the core only ever calls through this interface.
type Index interface {
	// ListDataNodes returns a snapshot of candidate nodes at call time. It
	// must be treated as frozen by the caller: never mutated, never cached
	// across sweeps.
	ListDataNodes() ([]PersistentServiceDef, error)

	// DeleteBlobReference issues the physical delete on the owning node and
	// acknowledges the deletion at the index layer. Returns false (not an
	// error) when the delete was a no-op because the blob was already
	// absent or not modifiable (§4.1 delete's 304 case).
	DeleteBlobReference(ctx context.Context, nodeID, volumeID string, position int64) (bool, error)
}
