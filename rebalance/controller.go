// Package rebalance implements §4.5's C5: per-segment reconciliation
// between a segment's actual eligible copy counts and its expected
// (Pexp, Rexp), orchestrating balance-up and balance-down. Grounded on
// the teacher's weed/topology/store_replicate.go distributedOperation
// (fan a write out to N targets over goroutines+channels, collect into a
// result map, never abort the whole op on one target's failure) —
// generalized from "replicate one write" to "run three independent
// sub-operations concurrently and downgrade each one's failure
// independently" per §7's propagation policy.
package rebalance

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/siepkes/sfs/cluster"
	"github.com/siepkes/sfs/digest"
	"github.com/siepkes/sfs/glog"
	"github.com/siepkes/sfs/metrics"
	"github.com/siepkes/sfs/replica"
	"github.com/siepkes/sfs/segment"
	"github.com/siepkes/sfs/sfserr"
)

// Controller drives one segment's reconciliation against a cluster
// snapshot (§4.5, §9's "cluster-shared state... model as a context
// handle"). Rebalance should only be invoked on a node that currently
// holds master (Nodes.IsMaster), per original_source's
// ValidateNodeIsMasterNode.java — that validation is the HTTP front-end's
// concern (out of scope, §1) and is therefore only a documented
// precondition here, not enforced in code.
type Controller struct {
	nodes     cluster.Nodes
	directory cluster.NodeDirectory
	index     cluster.Index
}

// NewController builds a Controller bound to one cluster snapshot.
func NewController(nodes cluster.Nodes, directory cluster.NodeDirectory, index cluster.Index) *Controller {
	return &Controller{nodes: nodes, directory: directory, index: index}
}

type resolverAdapter struct {
	directory cluster.NodeDirectory
}

func (a resolverAdapter) Lookup(nodeID string) (segment.XNode, error) {
	return a.directory.Lookup(nodeID)
}

// Rebalance implements the C5 entry point (§4.5). Short-circuits tiny-data
// segments per §3/§4.5/P4.
func (c *Controller) Rebalance(ctx context.Context, seg *segment.Segment) bool {
	if seg.TinyData {
		return true
	}

	start := time.Now()
	changed := c.rebalance(ctx, seg)
	metrics.RebalanceDuration.WithLabelValues(fmt.Sprintf("%t", changed)).Observe(time.Since(start).Seconds())
	return changed
}

func (c *Controller) rebalance(ctx context.Context, seg *segment.Segment) bool {
	eligiblePrimaries := seg.EligiblePrimaries()
	eligibleReplicas := seg.EligibleReplicas()

	pexp := c.nodes.GetNumberOfPrimaries()
	rexp := c.nodes.GetNumberOfReplicas()
	if seg.ReplicaOverride != nil {
		rexp = *seg.ReplicaOverride
	}
	if pexp+rexp < 1 {
		panic(&sfserr.Invariant{Message: fmt.Sprintf("segment %s: Pexp+Rexp must be >= 1, got Pexp=%d Rexp=%d", seg.ID, pexp, rexp)})
	}

	deltaP := pexp - len(eligiblePrimaries)
	deltaR := rexp - len(eligibleReplicas)

	type outcome struct {
		name    string
		changed bool
	}
	results := make(chan outcome, 3)
	pending := 0

	if deltaP < 0 {
		pending++
		go func() {
			results <- outcome{"balance-down-primaries", c.guardedBalanceDown(ctx, seg, segment.Primary, eligiblePrimaries, -deltaP)}
		}()
	}
	if deltaR < 0 {
		pending++
		go func() {
			results <- outcome{"balance-down-replicas", c.guardedBalanceDown(ctx, seg, segment.Replica, eligibleReplicas, -deltaR)}
		}()
	}
	if deltaP > 0 || deltaR > 0 {
		pending++
		np, nr := maxInt(deltaP, 0), maxInt(deltaR, 0)
		go func() {
			results <- outcome{"balance-up", c.guardedBalanceUp(ctx, seg, np, nr)}
		}()
	}

	changed := false
	for i := 0; i < pending; i++ {
		o := <-results
		changed = changed || o.changed
	}
	return changed
}

// guardedBalanceDown runs balanceDown and downgrades any error to
// "unchanged for this sub-op", logging at error level with the segment id
// (§7's downgrade propagation policy, §4.5 step 5).
func (c *Controller) guardedBalanceDown(ctx context.Context, seg *segment.Segment, role segment.Role, refs []segment.BlobReference, k int) bool {
	changed, err := c.balanceDown(ctx, seg, role, refs, k)
	roleLabel := "primary"
	if role == segment.Replica {
		roleLabel = "replica"
	}
	if err != nil {
		glog.ErrorfCtx(ctx, "segment %s: balance-down(%s) failed: %v", seg.ID, roleLabel, err)
		metrics.BalanceDownAttempts.WithLabelValues(roleLabel, "error").Inc()
		return false
	}
	metrics.BalanceDownAttempts.WithLabelValues(roleLabel, "ok").Inc()
	return changed
}

// balanceDown deletes refs until k successful deletions accumulate,
// marking each one Deleted on success (§4.5 balanceDown). The source's
// stop condition checks `counter < delta` after processing an element,
// which can over-delete by one under slow orderings (§9's noted bug);
// this implementation stops strictly once k deletions have succeeded, the
// recommended corrected behaviour.
func (c *Controller) balanceDown(ctx context.Context, seg *segment.Segment, role segment.Role, refs []segment.BlobReference, k int) (bool, error) {
	if k <= 0 {
		panic(&sfserr.Invariant{Message: "balanceDown requires k > 0"})
	}
	if len(refs) < k {
		panic(&sfserr.Invariant{Message: fmt.Sprintf("balanceDown requires len(refs) >= k, got %d < %d", len(refs), k)})
	}

	deleted := 0
	for _, ref := range refs {
		if deleted == k {
			break
		}
		ok, err := c.index.DeleteBlobReference(ctx, ref.NodeID, ref.VolumeID, ref.Position)
		if err != nil {
			glog.V(1).Infof("segment %s: delete %s/%s@%d failed: %v", seg.ID, ref.NodeID, ref.VolumeID, ref.Position, err)
			continue
		}
		if !ok {
			continue
		}
		seg.MarkDeleted(role, ref)
		deleted++
	}
	return deleted > 0, nil
}

// guardedBalanceUp runs balanceUp and downgrades any error to "unchanged",
// logging at error level (§7, §4.5 step 5).
func (c *Controller) guardedBalanceUp(ctx context.Context, seg *segment.Segment, np, nr int) bool {
	changed, err := c.balanceUp(ctx, seg, np, nr)
	if err != nil {
		glog.ErrorfCtx(ctx, "segment %s: balance-up failed: %v", seg.ID, err)
		metrics.BalanceUpAttempts.WithLabelValues("error").Inc()
		return false
	}
	metrics.BalanceUpAttempts.WithLabelValues("ok").Inc()
	return changed
}

// balanceUp implements §4.5's balanceUp(segment, used, np, nr).
func (c *Controller) balanceUp(ctx context.Context, seg *segment.Segment, np, nr int) (bool, error) {
	rs, err := segment.OpenReadStream(ctx, resolverAdapter{c.directory}, seg)
	if err != nil {
		return false, err
	}
	if rs == nil {
		glog.V(1).Infof("segment %s: no readable copy found, deferring to next sweep", seg.ID)
		return false, nil
	}
	defer rs.Close()

	used := seg.UsedVolumeIDs()
	roster, err := c.index.ListDataNodes()
	if err != nil {
		return false, err
	}

	candidates := make([]replica.Candidate, 0, len(roster))
	for _, def := range roster {
		n := cluster.Node{NodeID: def.NodeID, HostAndPort: def.HostAndPort, DataNode: true, Volumes: def.Volumes}.WithoutVolumeIDs(used)
		if len(n.Volumes) == 0 {
			continue
		}
		volumes := make([]replica.Volume, 0, len(n.Volumes))
		for _, v := range n.Volumes {
			volumes = append(volumes, replica.Volume{VolumeID: v.VolumeID, Usable: v.Usable()})
		}
		xnode, err := c.directory.Lookup(n.NodeID)
		if err != nil {
			continue
		}
		candidates = append(candidates, replica.Candidate{NodeID: n.NodeID, XNode: xnode, Volumes: volumes})
	}

	glog.V(2).Infof("segment %s: balance-up np=%d nr=%d length=%s candidates=%d", seg.ID, np, nr, humanize.Bytes(uint64(maxInt64(rs.Length, 0))), len(candidates))

	receipts, err := replica.Plan(ctx, candidates, np, nr, c.nodes.IsAllowSameNode(), rs.Length, rs.Body)
	if err != nil {
		return false, err
	}

	for i, r := range receipts {
		role := segment.Primary
		if i >= np {
			role = segment.Replica
		}
		digests, err := digest.FromHex(r.Digest.Digests)
		if err != nil {
			return false, err
		}
		seg.AppendBlobReference(role, segment.BlobReference{
			NodeID:       r.Target.NodeID,
			VolumeID:     r.Target.VolumeID,
			Position:     r.Digest.Position,
			Length:       r.Digest.Length,
			TokenDigests: digests,
		})
	}
	return true, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
