package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/siepkes/sfs/node"
)

// StaticRoster is a file-backed Index + NodeDirectory for the demo CLI
// (cmd/sfs-rebalance): the real object-metadata index and node discovery
// are external collaborators (§1, §6); this is a minimal stand-in that
// reads a snapshot once and resolves every node to a RemoteNode, grounded
// on original_source's GetServiceDefs.java/ListSfsStorageIndexes.java
// confirming the roster is treated as a frozen, point-in-time snapshot.
type StaticRoster struct {
	secret          []byte
	responseTimeout time.Duration

	mu      sync.Mutex
	defs    []PersistentServiceDef
	clients map[string]node.XNode
}

type rosterFile struct {
	Nodes []struct {
		NodeID      string `json:"node_id"`
		HostAndPort string `json:"host_and_port"`
		Volumes     []struct {
			VolumeID string `json:"volume_id"`
			Capacity int64  `json:"capacity"`
			Health   string `json:"health"`
		} `json:"volumes"`
	} `json:"nodes"`
}

// LoadStaticRoster reads a JSON roster file of the shape
// {"nodes":[{"node_id":..., "host_and_port":..., "volumes":[...]}]}.
func LoadStaticRoster(path string, secret []byte, responseTimeout time.Duration) (*StaticRoster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster file %s: %w", path, err)
	}
	var rf rosterFile
	if err := json.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parsing roster file %s: %w", path, err)
	}

	defs := make([]PersistentServiceDef, 0, len(rf.Nodes))
	for _, n := range rf.Nodes {
		volumes := make([]Volume, 0, len(n.Volumes))
		for _, v := range n.Volumes {
			health := VolumeUsable
			switch v.Health {
			case "full":
				health = VolumeFull
			case "failed":
				health = VolumeFailed
			}
			volumes = append(volumes, Volume{VolumeID: v.VolumeID, Capacity: v.Capacity, Health: health})
		}
		defs = append(defs, PersistentServiceDef{NodeID: n.NodeID, HostAndPort: n.HostAndPort, Volumes: volumes})
	}

	return &StaticRoster{
		secret:          secret,
		responseTimeout: responseTimeout,
		defs:            defs,
		clients:         make(map[string]node.XNode, len(defs)),
	}, nil
}

// ListDataNodes implements Index.
func (r *StaticRoster) ListDataNodes() ([]PersistentServiceDef, error) {
	return r.defs, nil
}

// Lookup implements NodeDirectory, memoizing one RemoteNode per node id.
func (r *StaticRoster) Lookup(nodeID string) (node.XNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n, ok := r.clients[nodeID]; ok {
		return n, nil
	}
	for _, def := range r.defs {
		if def.NodeID == nodeID {
			n := node.NewRemoteNode(def.NodeID, def.HostAndPort, r.secret, r.responseTimeout)
			r.clients[nodeID] = n
			return n, nil
		}
	}
	return nil, fmt.Errorf("no such node %q in roster", nodeID)
}

// DeleteBlobReference implements Index by issuing the C1 delete against
// the owning node and treating any "already absent" response (nil, nil)
// as success=false rather than an error (§4.1's 304 case).
func (r *StaticRoster) DeleteBlobReference(ctx context.Context, nodeID, volumeID string, position int64) (bool, error) {
	xnode, err := r.Lookup(nodeID)
	if err != nil {
		return false, err
	}
	h, err := xnode.Delete(ctx, volumeID, position)
	if err != nil {
		return false, err
	}
	return h != nil, nil
}
