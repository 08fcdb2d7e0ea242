// Package clusterconfig loads the process-wide cluster configuration the
// rebalance core is threaded through: the shared remote-node secret, the
// default primary/replica counts, allowSameNode, and the per-request
// timeout. Modeled as a context handle per DESIGN NOTES' "cluster-shared
// state", not globals, and loaded with viper the way the teacher loads its
// own *.toml configuration files (weed/util/config.go).
package clusterconfig

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/siepkes/sfs/glog"
)

// Config is the cluster-wide configuration the core consumes. It implements
// cluster.Nodes (see package cluster) directly so a loaded Config can be
// passed straight into rebalance.Controller.
type Config struct {
	// Secret is the raw (un-encoded) cluster shared secret. RemoteNode
	// base64-encodes it once per node lookup into the
	// X-SFS-Remote-Node-Token header.
	Secret []byte

	NumberOfPrimaries int
	NumberOfReplicas  int
	AllowSameNode     bool
	IsMasterNode      bool

	// ResponseTimeout bounds every C1 request; the keep-alive timeout
	// advertised to the peer is ResponseTimeout/2 per §4.1/§5.
	ResponseTimeout time.Duration

	// MetricsBindAddress is where cmd/sfs-rebalance exposes Prometheus
	// metrics.
	MetricsBindAddress string
}

func (c *Config) GetNumberOfPrimaries() int { return c.NumberOfPrimaries }
func (c *Config) GetNumberOfReplicas() int  { return c.NumberOfReplicas }
func (c *Config) IsAllowSameNode() bool     { return c.AllowSameNode }
func (c *Config) IsMaster() bool            { return c.IsMasterNode }

// Load reads sfs-rebalance.toml from the usual search path (current
// directory, $HOME/.sfs, /etc/sfs/) plus SFS_-prefixed environment
// variables, the way the teacher's util.LoadConfiguration does for its own
// *.toml files, and returns the resolved Config.
func Load() *Config {
	v := viper.New()
	v.SetConfigName("sfs-rebalance")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.sfs")
	v.AddConfigPath("/etc/sfs/")
	v.AutomaticEnv()
	v.SetEnvPrefix("sfs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("replication.primaries", 1)
	v.SetDefault("replication.replicas", 2)
	v.SetDefault("replication.allow_same_node", false)
	v.SetDefault("node.is_master", false)
	v.SetDefault("remote.response_timeout_seconds", 30)
	v.SetDefault("metrics.bind_address", ":9102")

	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			glog.V(1).Infof("no sfs-rebalance.toml found, using defaults and environment")
		} else {
			glog.Warningf("reading sfs-rebalance.toml: %v", err)
		}
	}

	return &Config{
		Secret:             []byte(v.GetString("remote.secret")),
		NumberOfPrimaries:  v.GetInt("replication.primaries"),
		NumberOfReplicas:   v.GetInt("replication.replicas"),
		AllowSameNode:      v.GetBool("replication.allow_same_node"),
		IsMasterNode:       v.GetBool("node.is_master"),
		ResponseTimeout:    time.Duration(v.GetInt("remote.response_timeout_seconds")) * time.Second,
		MetricsBindAddress: v.GetString("metrics.bind_address"),
	}
}
