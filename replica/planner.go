// Package replica implements §4.4's C4: walk a candidate node list,
// probe each with canPut, assign primary/replica targets, open write
// streams, tee the source across them, and gate on digest equality.
// Grounded on the teacher's weed/topology/volume_growth.go
// findEmptySlotsForOneVolume (walk candidates, probe, collect until the
// required count is reached, fail with a count mismatch otherwise) and
// weed/topology/store_replicate.go's distributedOperation (fan out a
// write across targets and fan back in the results), generalized from
// fixed replica-placement topology rules to a flat candidate walk with
// canPut probing and an explicit digest-equality gate.
package replica

import (
	"context"
	"io"

	"github.com/siepkes/sfs/blob"
	"github.com/siepkes/sfs/digest"
	"github.com/siepkes/sfs/metrics"
	"github.com/siepkes/sfs/pump"
	"github.com/siepkes/sfs/sfserr"
)

// Volume is the minimal per-volume shape the planner needs from a
// candidate, kept local so this package doesn't depend on cluster.
type Volume struct {
	VolumeID string
	Usable   bool
}

// Candidate is one node offering volumes to place a target on. XNode is
// the node.XNode the planner will call CanPut/CreateWriteStream against;
// kept as an interface parameter here to avoid a dependency on package
// node.
type Candidate struct {
	NodeID  string
	XNode   XNode
	Volumes []Volume
}

// XNode is the subset of node.XNode the planner needs.
type XNode interface {
	CanPut(ctx context.Context, volumeID string) (bool, error)
	CreateWriteStream(ctx context.Context, volumeID string, length int64, algos []digest.Algo) (blob.WriteStream, error)
}

// Target is one assigned write destination, role implied by its position
// in Plan's result (first Np are primaries) (§4.4 step 2, output shape).
type Target struct {
	NodeID   string
	VolumeID string
	XNode    XNode
}

// Receipt pairs an assigned Target with the digest receipt its write
// stream produced.
type Receipt struct {
	Target Target
	Digest blob.DigestBlob
}

// Plan runs C4's algorithm: walk candidates probing canPut, assign the
// first np as primary and the next nr as replica, open write streams,
// tee source across them, and gate on SHA-512 equality (§4.4).
func Plan(ctx context.Context, candidates []Candidate, np, nr int, allowSameNode bool, length int64, source io.Reader) ([]Receipt, error) {
	needed := np + nr
	targets := make([]Target, 0, needed)

	for _, c := range candidates {
		if len(targets) >= needed {
			break
		}
		if !allowSameNode && nodeAlreadyUsed(targets, c.NodeID) {
			continue
		}
		for _, v := range c.Volumes {
			if !v.Usable {
				continue
			}
			ok, err := c.XNode.CanPut(ctx, v.VolumeID)
			if err != nil || !ok {
				continue
			}
			targets = append(targets, Target{NodeID: c.NodeID, VolumeID: v.VolumeID, XNode: c.XNode})
			break
		}
	}

	if len(targets) < needed {
		metrics.InsufficientCapacityEvents.WithLabelValues().Inc()
		return nil, &sfserr.InsufficientCapacity{Requested: needed, Obtained: len(targets)}
	}

	streams := make([]blob.WriteStream, len(targets))
	for i, t := range targets {
		ws, err := t.XNode.CreateWriteStream(ctx, t.VolumeID, length, []digest.Algo{digest.SHA512})
		if err != nil {
			return nil, err
		}
		streams[i] = ws
	}

	// sourceDigest hashes the bytes actually read off source as they pass
	// through the tee, giving an end-to-end check independent of what any
	// single peer reports (§2's "verifies digests end-to-end"): every
	// receipt must agree not just with each other but with what this node
	// itself fed into the tee.
	sourceDigest, err := digest.NewWriter(io.Discard, digest.SHA512)
	if err != nil {
		return nil, err
	}

	receipts, err := driveAll(ctx, streams, io.TeeReader(source, sourceDigest))
	if err != nil {
		return nil, err
	}

	if !digestsAgree(sourceDigest.Sum(), receipts) {
		metrics.DigestMismatches.WithLabelValues().Inc()
		return nil, digestMismatchError(targets, receipts)
	}

	out := make([]Receipt, len(targets))
	for i, t := range targets {
		out[i] = Receipt{Target: t, Digest: receipts[i]}
	}
	return out, nil
}

func nodeAlreadyUsed(targets []Target, nodeID string) bool {
	for _, t := range targets {
		if t.NodeID == nodeID {
			return true
		}
	}
	return false
}

// driveAll tees source across every write stream concurrently and
// collects each one's receipt in target order (§4.4 step 5-6, §5's "tee
// guarantees each destination receives bytes in source order; receipts
// may arrive in any order and are reordered by target index").
func driveAll(ctx context.Context, streams []blob.WriteStream, source io.Reader) ([]blob.DigestBlob, error) {
	sinks := make([]io.Writer, len(streams))
	pipeReaders := make([]*io.PipeReader, len(streams))
	singles := make([]*pump.Single[blob.DigestBlob], len(streams))

	for i, ws := range streams {
		pr, pw := io.Pipe()
		pipeReaders[i] = pr
		sinks[i] = pw
		single := pump.NewSingle[blob.DigestBlob]()
		singles[i] = single
		go func(ws blob.WriteStream, pr *io.PipeReader, single *pump.Single[blob.DigestBlob]) {
			d, err := ws.Drive(ctx, pr)
			single.Resolve(d, err)
		}(ws, pr, single)
	}

	teeErr := pump.Tee(ctx, source, sinks)

	receipts := make([]blob.DigestBlob, len(streams))
	var firstErr error
	for i, single := range singles {
		d, err := single.Wait(ctx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		receipts[i] = d
	}
	if teeErr != nil && firstErr == nil {
		firstErr = teeErr
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return receipts, nil
}

// digestsAgree gates on every receipt's digest set matching the digest
// locally computed over the tee'd source (§4.4 step 7's integrity gate,
// §2's end-to-end verification), using digest.Set.Equal rather than
// comparing raw hex strings so the gate generalizes to any algorithm set
// the receipts carry, not just sha512. A receipt that carries no sha512
// digest fails the gate.
func digestsAgree(local digest.Set, receipts []blob.DigestBlob) bool {
	for _, r := range receipts {
		got, err := digest.FromHex(r.Digests)
		if err != nil {
			return false
		}
		if _, ok := got[digest.SHA512]; !ok {
			return false
		}
		if !local.Equal(got) {
			return false
		}
	}
	return true
}

func digestMismatchError(targets []Target, receipts []blob.DigestBlob) error {
	digests := make(map[string]string, len(targets))
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.NodeID + "/" + t.VolumeID
		digests[names[i]] = receipts[i].Digests["sha512"]
	}
	return &sfserr.DigestMismatch{Targets: names, Digests: digests}
}
