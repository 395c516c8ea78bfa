package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/epochlog"
	"github.com/ovisfs/sheep/gateway"
	"github.com/ovisfs/sheep/metrics"
	"github.com/ovisfs/sheep/objcache"
	"github.com/ovisfs/sheep/peer"
	"github.com/ovisfs/sheep/recovery"
	"github.com/ovisfs/sheep/ring"
	"github.com/ovisfs/sheep/store"
	"github.com/ovisfs/sheep/sysconfig"
	"github.com/ovisfs/sheep/wqueue"
	"github.com/ovisfs/sheep/xjournal"
	"github.com/ovisfs/sheep/xlog"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sheep",
	Short:   "sheep - a replicated object store node",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sheep version %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().String("config", "", "path to node TOML config (defaults baked in if omitted)")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(formatCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "start a sheep node",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().Int("worker-pool-size", 64, "bounded worker pool size for recovery object fetches")
	startCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address for the /metrics endpoint")
}

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "format local storage, discarding every epoch up to and including the given one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		var upto uint64
		if _, err := fmt.Sscanf(args[0], "%d", &upto); err != nil {
			return fmt.Errorf("invalid epoch %q: %w", args[0], err)
		}
		driver := store.NewSimple(cfg.ObjRoot)
		if err := driver.Init(cfg.ObjRoot); err != nil {
			return fmt.Errorf("initializing store: %w", err)
		}
		if err := driver.Format(cmn.Epoch(upto)); err != nil {
			return fmt.Errorf("formatting store: %w", err)
		}

		cfgStore, err := sysconfig.Open(cfg.ConfigPath, cfg.JournalPath, sysconfig.Record{
			Ctime:     uint64(time.Now().Unix()),
			Copies:    3,
			StoreName: cfg.StoreDriver,
		})
		if err != nil {
			return fmt.Errorf("opening config record: %w", err)
		}
		if err := cfgStore.SetStoreName(cfg.StoreDriver); err != nil {
			return fmt.Errorf("re-recording store-driver name: %w", err)
		}

		fmt.Printf("formatted epochs <= %d under %s\n", upto, cfg.ObjRoot)
		return nil
	},
}

func loadConfig(cmd *cobra.Command) (*sysconfig.NodeConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return sysconfig.Default(), nil
	}
	return sysconfig.Load(path)
}

func runStart(cmd *cobra.Command, args []string) error {
	defer xlog.Flush()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Replay any journal records left behind by a crash before anything
	// else touches the store or config record (spec.md §4.2).
	n, err := xjournal.Recover(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("replaying journal: %w", err)
	}
	if n > 0 {
		xlog.Infof("sheep: replayed %d journal record(s) from %s", n, cfg.JournalPath)
	}

	driver := store.NewSimple(cfg.ObjRoot)
	if err := driver.Init(cfg.ObjRoot); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	cfgStore, err := sysconfig.Open(cfg.ConfigPath, cfg.JournalPath, sysconfig.Record{
		Ctime:     uint64(time.Now().Unix()),
		Copies:    3,
		StoreName: cfg.StoreDriver,
	})
	if err != nil {
		return fmt.Errorf("opening config record: %w", err)
	}
	record := cfgStore.Get()

	elog := epochlog.New(cfg.EpochPath)
	epoch := elog.Latest()

	self := cmn.Node{Addr: cfg.ListenAddr, Port: cfg.ListenPort, NodeIdx: cfg.NodeIdx, Zone: cfg.Zone}

	var curNodes []cmn.Node
	if epoch > 0 {
		buf, err := elog.Read(epoch)
		if err != nil {
			return fmt.Errorf("reading epoch %d: %w", epoch, err)
		}
		curNodes, _, err = epochlog.DecodeEpoch(buf)
		if err != nil {
			return fmt.Errorf("decoding epoch %d: %w", epoch, err)
		}
	} else {
		curNodes = []cmn.Node{self}
		epoch = 1
		if err := elog.Update(epoch, curNodes, time.Now().Unix()); err != nil {
			return fmt.Errorf("writing bootstrap epoch: %w", err)
		}
	}
	placement := ring.New(curNodes)

	cache, err := objcache.Open("") // in-process cache, warmed from disk below
	if err != nil {
		return fmt.Errorf("opening object-list cache: %w", err)
	}
	existing, err := driver.GetObjList(epoch, true)
	if err != nil {
		return fmt.Errorf("listing local objects at epoch %d: %w", epoch, err)
	}
	if err := cache.WarmUp(existing); err != nil {
		return fmt.Errorf("warming object-list cache: %w", err)
	}
	xlog.Infof("sheep: warmed object-list cache with %d object(s) at epoch %d", cache.Len(), epoch)

	socketTimeout := time.Duration(cfg.SocketTimeoutMS) * time.Millisecond
	peers := peer.NewPool(socketTimeout)

	// get_vnodes_from_epoch's peer fallback: ask every other known node for
	// its copy of an epoch this node doesn't have recorded locally, via a
	// GET_EPOCH round-trip through the same connection pool ForwardRead/
	// ForwardWrite use.
	elog.SetRemoteFetcher(func(ep cmn.Epoch) ([]byte, bool) {
		for _, n := range curNodes {
			if n.Equal(self) {
				continue
			}
			req := cmn.RequestHeader{Opcode: cmn.OpGetEpoch, TgtEpoch: ep}
			resp, body, err := peers.Exec(n, ep, req, nil)
			if err != nil || resp.Result != cmn.ResSuccess {
				continue
			}
			return body, true
		}
		return nil, false
	})

	reg := prometheus.NewRegistry()
	mtr := metrics.New(reg)

	local := newLocalExecutor(driver, cache)
	gw := gateway.New(self, local, peers)
	gw.Timeout = socketTimeout
	gw.Metrics = mtr
	// Wired after gw exists since gateway.New takes local as its own
	// LocalExecutor; local only needs gw back for the COW parent-object
	// fetch (read_copy_from_cluster). GET_EPOCH reads from elog.
	local.Cluster = gw
	local.Placement = placement
	local.Epoch = elog

	poolSize, _ := cmd.Flags().GetInt("worker-pool-size")
	queue, err := wqueue.NewAntsQueue(poolSize)
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer queue.Release()

	ledger, err := recovery.OpenLedger(cfg.ObjRoot)
	if err != nil {
		return fmt.Errorf("opening lost-object ledger: %w", err)
	}

	storeAdapter := recovery.NewStoreAdapter(driver, cache)
	peerAdapter := recovery.NewPeerAdapter(peers)
	epochSource := recovery.NewEpochSource(elog)

	mgr := recovery.NewManager(self, record.Copies, peerAdapter, epochSource, storeAdapter, peerAdapter, queue, ledger)

	xlog.Infof("sheep: ring has %d vnode(s) across %d node(s)", len(placement.Vnodes()), len(curNodes))

	// Whenever the latest recorded epoch is past the first, kick off
	// recovery against the previous epoch's membership, mirroring
	// start_recovery on join. Local data is not checked first.
	if epoch > 1 {
		if oldBuf, err := elog.Read(epoch - 1); err == nil {
			if oldNodes, _, err := epochlog.DecodeEpoch(oldBuf); err == nil {
				mgr.Start(epoch, oldNodes, curNodes)
			}
		}
	}

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			xlog.Errorf("sheep: metrics server error: %v", err)
		}
	}()
	xlog.Infof("sheep: metrics endpoint at http://%s/metrics", metricsAddr)

	xlog.Infof("sheep: node %s started at epoch %d with %d copies", self, epoch, record.Copies)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	xlog.Infof("sheep: shutting down")
	return nil
}
