// Package segment implements §3's Segment/BlobReference data model and
// §4.6's C6 segment reader. Grounded on the teacher's
// weed/storage/needle/needle.go for the field-naming conventions of a
// content-addressed stored unit (id/size/position-style fields) and on
// original_source's RebalanceSegment.java for the exact eligibility
// predicate and role-partitioning behaviour it confirms.
package segment

import (
	"context"
	"sync"

	"github.com/siepkes/sfs/blob"
	"github.com/siepkes/sfs/digest"
)

// Role tags a BlobReference as a primary or replica copy (GLOSSARY).
type Role int

const (
	Primary Role = iota
	Replica
)

// BlobReference is one copy of a segment's payload on one (node, volume,
// position) triple (§3).
type BlobReference struct {
	NodeID          string
	VolumeID        string
	Position        int64
	Length          int64
	TokenDigests    digest.Set
	Role            Role
	VerifyFailCount int
	Acked           bool
	Deleted         bool
}

// Eligible reports whether the reference counts toward a segment's
// satisfied replication (§3): acked, no verification failures, and not
// marked deleted. A
// present-but-zero VerifyFailCount and the Go zero value are
// indistinguishable and therefore treated identically to "absent",
// confirmed by original_source's RebalanceSegment.java
// (`!verifyFailCount.isPresent() || verifyFailCount.get() <= 0`).
func (b BlobReference) Eligible() bool {
	return b.Acked && b.VerifyFailCount <= 0 && !b.Deleted
}

// Segment is a logical chunk of an object's content with its own replica
// set (§3, GLOSSARY). §5 mandates that the three rebalance sub-operations'
// effects on a segment's reference list be "serialised by the single-
// threaded loop — no locking needed"; this Go port runs them as real
// goroutines (rebalance.Controller.rebalance), so mu stands in for that
// loop and guards every read and write of PrimaryBlobs/ReplicaBlobs below.
type Segment struct {
	ID              string
	PrimaryBlobs    []BlobReference
	ReplicaBlobs    []BlobReference
	TinyData        bool
	ReplicaOverride *int // container-level Rexp override, nil if unset (§3)

	mu sync.RWMutex
}

// EligiblePrimaries returns the subset of PrimaryBlobs that are eligible.
func (s *Segment) EligiblePrimaries() []BlobReference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterEligible(s.PrimaryBlobs)
}

// EligibleReplicas returns the subset of ReplicaBlobs that are eligible.
func (s *Segment) EligibleReplicas() []BlobReference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterEligible(s.ReplicaBlobs)
}

func filterEligible(refs []BlobReference) []BlobReference {
	out := make([]BlobReference, 0, len(refs))
	for _, r := range refs {
		if r.Eligible() {
			out = append(out, r)
		}
	}
	return out
}

// UsedVolumeIDs returns the union of volume ids across primaries and
// replicas, eligible or not (§4.5 step 4's usedVolumeIds).
func (s *Segment) UsedVolumeIDs() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	used := make(map[string]bool, len(s.PrimaryBlobs)+len(s.ReplicaBlobs))
	for _, r := range s.PrimaryBlobs {
		used[r.VolumeID] = true
	}
	for _, r := range s.ReplicaBlobs {
		used[r.VolumeID] = true
	}
	return used
}

// AppendBlobReference records a fresh, un-acked copy created by balance-up
// (§4.5 step d). role is derived positionally by the caller from the
// receipt's place in the planner's ordered result (§4.4: "roles implied by
// position" — first Np are primary), not from any flag on the receipt
// itself.
func (s *Segment) AppendBlobReference(role Role, ref BlobReference) {
	ref.Role = role
	ref.Acked = false
	ref.Deleted = false
	ref.VerifyFailCount = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	switch role {
	case Primary:
		s.PrimaryBlobs = append(s.PrimaryBlobs, ref)
	case Replica:
		s.ReplicaBlobs = append(s.ReplicaBlobs, ref)
	}
}

// MarkDeleted marks the blob reference matching target's (nodeId, volumeId,
// position) as deleted, returning true iff a match was found. Used by
// balance-down instead of mutating PrimaryBlobs/ReplicaBlobs directly, so
// the concurrent balance-up sub-operation's reads (via EligiblePrimaries/
// EligibleReplicas) never race on the same backing array (§5).
func (s *Segment) MarkDeleted(role Role, target BlobReference) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.PrimaryBlobs
	if role == Replica {
		list = s.ReplicaBlobs
	}
	for i := range list {
		if list[i].NodeID == target.NodeID && list[i].VolumeID == target.VolumeID && list[i].Position == target.Position {
			list[i].Deleted = true
			return true
		}
	}
	return false
}

// Resolver resolves a node id to its XNode, narrowed to just what the
// reader needs so this package doesn't have to import cluster.
type Resolver interface {
	Lookup(nodeID string) (XNode, error)
}

// XNode is the subset of node.XNode the reader needs, kept local to avoid
// segment depending on the node package for a single method.
type XNode interface {
	CreateReadStream(ctx context.Context, volumeID string, position int64, offset, length *int64) (*blob.ReadStreamBlob, error)
}

// OpenReadStream implements C6: given a segment, return an open
// ReadStreamBlob from any eligible blob reference, trying eligible
// primaries before eligible replicas (§4.6). Returns nil, nil if every
// candidate is absent or failing.
func OpenReadStream(ctx context.Context, resolver Resolver, s *Segment) (*blob.ReadStreamBlob, error) {
	candidates := append(append([]BlobReference{}, s.EligiblePrimaries()...), s.EligibleReplicas()...)
	for _, ref := range candidates {
		xnode, err := resolver.Lookup(ref.NodeID)
		if err != nil {
			continue
		}
		rs, err := xnode.CreateReadStream(ctx, ref.VolumeID, ref.Position, nil, nil)
		if err != nil {
			continue
		}
		if rs != nil {
			return rs, nil
		}
	}
	return nil, nil
}
