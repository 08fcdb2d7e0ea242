// Command sfs-rebalance runs one rebalance sweep over a roster + segment
// snapshot loaded from disk, and exits. It stands in for the production
// entry point that would instead receive its roster and segment list from
// the real object-metadata index (§1, §6). Grounded on the teacher's
// weed/worker/main.go CLI shape: flag-parsed config, glog for startup
// logging, signal-based graceful shutdown.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siepkes/sfs/cluster"
	"github.com/siepkes/sfs/clusterconfig"
	"github.com/siepkes/sfs/glog"
	"github.com/siepkes/sfs/metrics"
	"github.com/siepkes/sfs/rebalance"
	"github.com/siepkes/sfs/segment"
)

var (
	rosterPath   = flag.String("roster", "", "Path to a JSON roster file (required)")
	segmentsPath = flag.String("segments", "", "Path to a JSON segment snapshot file (required)")
)

func main() {
	flag.Parse()

	if *rosterPath == "" || *segmentsPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -roster and -segments are required")
		flag.Usage()
		os.Exit(1)
	}

	cfg := clusterconfig.Load()
	if !cfg.IsMaster() {
		glog.Warningf("node.is_master is false; rebalancing is normally only run from the current master (original_source's ValidateNodeIsMasterNode precondition)")
	}

	roster, err := cluster.LoadStaticRoster(*rosterPath, cfg.Secret, cfg.ResponseTimeout)
	if err != nil {
		glog.Fatalf("loading roster: %v", err)
	}

	segments, err := loadSegments(*segmentsPath)
	if err != nil {
		glog.Fatalf("loading segments: %v", err)
	}

	serveMetrics(cfg.MetricsBindAddress)

	ctrl := rebalance.NewController(cfg, roster, roster)

	ctx, cancel := context.WithCancel(context.Background())
	go waitForShutdown(cancel)

	for _, seg := range segments {
		changed := ctrl.Rebalance(ctx, seg)
		glog.Infof("segment %s: rebalance complete, changed=%t primaries=%d replicas=%d", seg.ID, changed, len(seg.PrimaryBlobs), len(seg.ReplicaBlobs))
	}

	glog.Infof("sweep complete over %d segments", len(segments))
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			glog.Warningf("metrics server on %s stopped: %v", addr, err)
		}
	}()
	glog.Infof("metrics listening on %s", addr)
}

func waitForShutdown(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	glog.Infof("shutdown signal received, cancelling in-flight sweep")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

type segmentFile struct {
	Segments []struct {
		ID              string        `json:"id"`
		TinyData        bool          `json:"tiny_data"`
		ReplicaOverride *int          `json:"replica_override,omitempty"`
		PrimaryBlobs    []blobRefJSON `json:"primary_blobs"`
		ReplicaBlobs    []blobRefJSON `json:"replica_blobs"`
	} `json:"segments"`
}

type blobRefJSON struct {
	NodeID          string `json:"node_id"`
	VolumeID        string `json:"volume_id"`
	Position        int64  `json:"position"`
	Length          int64  `json:"length"`
	VerifyFailCount int    `json:"verify_fail_count"`
	Acked           bool   `json:"acked"`
	Deleted         bool   `json:"deleted"`
}

func loadSegments(path string) ([]*segment.Segment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf segmentFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return nil, err
	}

	out := make([]*segment.Segment, 0, len(sf.Segments))
	for _, s := range sf.Segments {
		seg := &segment.Segment{ID: s.ID, TinyData: s.TinyData, ReplicaOverride: s.ReplicaOverride}
		for _, b := range s.PrimaryBlobs {
			seg.PrimaryBlobs = append(seg.PrimaryBlobs, toBlobReference(b))
		}
		for _, b := range s.ReplicaBlobs {
			seg.ReplicaBlobs = append(seg.ReplicaBlobs, toBlobReference(b))
		}
		out = append(out, seg)
	}
	return out, nil
}

func toBlobReference(b blobRefJSON) segment.BlobReference {
	return segment.BlobReference{
		NodeID:          b.NodeID,
		VolumeID:        b.VolumeID,
		Position:        b.Position,
		Length:          b.Length,
		VerifyFailCount: b.VerifyFailCount,
		Acked:           b.Acked,
		Deleted:         b.Deleted,
	}
}
