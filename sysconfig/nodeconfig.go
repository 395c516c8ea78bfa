// Package sysconfig holds the two kinds of configuration a sheep node
// needs: the per-node TOML file an operator hand-writes (paths, timeouts),
// and the durable cluster-wide config record (spec.md §3's "Sheepdog config
// record") that's replicated by convention across every node and mutated
// only under journal protection.
package sysconfig

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/naoina/toml"
)

// NodeConfig is the operator-facing, per-node settings file.
type NodeConfig struct {
	ObjRoot     string `toml:"obj_root"`
	EpochPath   string `toml:"epoch_path"`
	JournalPath string `toml:"journal_path"`
	ConfigPath  string `toml:"config_path"`
	StoreDriver string `toml:"store_driver"` // "simple", ...

	ListenAddr string `toml:"listen_addr"`
	ListenPort int    `toml:"listen_port"`
	NodeIdx    int    `toml:"node_idx"`
	Zone       uint32 `toml:"zone"`

	SocketTimeoutMS   int `toml:"socket_timeout_ms"`
	CplaneIntervalMS  int `toml:"cplane_interval_ms"`
	RecoveryRetrySecs int `toml:"recovery_retry_secs"`

	// DataObjSize overrides SDDataObjSize for test/tool use only (e.g.
	// "4MiB", "512KiB"); the hot path always uses cmn.SDDataObjSize.
	DataObjSize string `toml:"data_obj_size"`
}

// Default returns a NodeConfig with sane defaults for a single-node dev
// setup.
func Default() *NodeConfig {
	return &NodeConfig{
		ObjRoot:           "/var/lib/sheep/obj",
		EpochPath:         "/var/lib/sheep/epoch",
		JournalPath:       "/var/lib/sheep/journal",
		ConfigPath:        "/var/lib/sheep/config",
		StoreDriver:       "simple",
		ListenAddr:        "0.0.0.0",
		ListenPort:        7000,
		SocketTimeoutMS:   3000,
		CplaneIntervalMS:  1000,
		RecoveryRetrySecs: 1,
		DataObjSize:       "4MiB",
	}
}

// Load reads and parses a NodeConfig from a TOML file at path, filling in
// defaults for any field the file omits.
func Load(path string) (*NodeConfig, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening node config %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing node config %s: %w", path, err)
	}
	return cfg, nil
}

// DataObjSizeBytes parses DataObjSize ("4MiB", "512KiB", ...) into bytes.
func (c *NodeConfig) DataObjSizeBytes() (int64, error) {
	if c.DataObjSize == "" {
		return 0, nil
	}
	return units.RAMInBytes(c.DataObjSize)
}
