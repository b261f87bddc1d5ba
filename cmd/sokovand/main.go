package main

import (
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/sokovan/pkg/client"
	"github.com/cuemby/sokovan/pkg/log"
	"github.com/cuemby/sokovan/pkg/manager"
	"github.com/cuemby/sokovan/pkg/metrics"
	"github.com/cuemby/sokovan/pkg/queue"
	"github.com/cuemby/sokovan/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sokovand",
	Short: "sokovan - the scheduling and session lifecycle core",
	Long: `sokovand runs the scheduling and session lifecycle core: a
Raft-clustered manager that admits sessions, places their kernels on
agents, tracks their lifecycle, and aggregates fair-share usage.

It never touches a container runtime or a network directly; it
delegates kernel creation and teardown to an external agent over RPC.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sokovand version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: true, Output: os.Stderr})
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(applyCmd)

	clusterCmd.AddCommand(clusterJoinTokenCmd)
	clusterCmd.AddCommand(clusterJoinCmd)
	clusterCmd.AddCommand(clusterInfoCmd)

	sessionCmd.AddCommand(sessionSubmitCmd)
	sessionCmd.AddCommand(sessionTerminateCmd)
	sessionCmd.AddCommand(sessionListCmd)

	agentCmd.AddCommand(agentListCmd)
}

// --- serve: run a manager node ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a manager node",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("node-id", "", "unique node identifier (required)")
	serveCmd.Flags().String("bind-addr", "127.0.0.1:7000", "Raft transport bind address")
	serveCmd.Flags().String("rpc-addr", "127.0.0.1:7001", "cluster/agent RPC bind address")
	serveCmd.Flags().String("enroll-addr", "127.0.0.1:7002", "certificate enrollment bind address")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Prometheus metrics/health bind address")
	serveCmd.Flags().String("data-dir", "./data", "data directory")
	serveCmd.Flags().String("join-leader", "", "existing cluster leader RPC address (joins instead of bootstrapping)")
	serveCmd.Flags().String("join-token", "", "join token, required with --join-leader")
	serveCmd.Flags().Duration("tick-interval", 2*time.Second, "scheduling/lifecycle tick interval")
	_ = serveCmd.MarkFlagRequired("node-id")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	nodeID, _ := cmd.Flags().GetString("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	rpcAddr, _ := cmd.Flags().GetString("rpc-addr")
	enrollAddr, _ := cmd.Flags().GetString("enroll-addr")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	joinLeader, _ := cmd.Flags().GetString("join-leader")
	joinToken, _ := cmd.Flags().GetString("join-token")
	tickInterval, _ := cmd.Flags().GetDuration("tick-interval")

	cfg, err := loadSchedulingConfig(dataDir)
	if err != nil {
		return fmt.Errorf("load scaling group config: %w", err)
	}
	cfg.NodeID = nodeID
	cfg.BindAddr = bindAddr
	cfg.DataDir = dataDir
	cfg.TickInterval = tickInterval

	mgr, err := manager.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	if joinLeader != "" {
		log.Info(fmt.Sprintf("joining cluster via %s", joinLeader))
		if err := mgr.Join(joinLeader, joinToken); err != nil {
			return fmt.Errorf("join cluster: %w", err)
		}
	} else {
		log.Info("bootstrapping new cluster")
		if err := mgr.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
	}

	mgr.StartScheduling()
	log.Info("scheduling core started")

	rpcServer := manager.NewServer(mgr)
	rpcLis, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", rpcAddr, err)
	}
	enrollLis, err := net.Listen("tcp", enrollAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", enrollAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := rpcServer.Serve(rpcLis); err != nil {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()
	go func() {
		if err := rpcServer.ServeEnrollment(enrollLis); err != nil {
			errCh <- fmt.Errorf("enrollment server: %w", err)
		}
	}()
	log.Info(fmt.Sprintf("rpc listening on %s (enrollment on %s)", rpcAddr, enrollAddr))

	metrics.SetVersion(Version)
	metrics.RegisterComponent("raft", true, "bootstrapped")
	metrics.RegisterComponent("rpc", true, "ready")
	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	log.Info(fmt.Sprintf("metrics listening on %s", metricsAddr))

	collector := manager.NewMetricsCollector(mgr)
	collector.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-errCh:
		log.Error(fmt.Sprintf("fatal: %v", err))
	}

	collector.Stop()
	rpcServer.Stop()
	return mgr.Shutdown()
}

// schedulingConfigFile is the on-disk shape for a manager's scaling
// group / keypair limit configuration, loaded once at startup.
type schedulingConfigFile struct {
	ScalingGroups []types.ScalingGroupOpts            `yaml:"scalingGroups"`
	KeypairLimits map[types.AccessKey]queue.KeypairLimits `yaml:"keypairLimits"`
}

func loadSchedulingConfig(dataDir string) (*manager.Config, error) {
	path := dataDir + "/scheduling.yaml"
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &manager.Config{
			ScalingGroups: []types.ScalingGroupOpts{{Name: types.ScalingGroupName("default")}},
			KeypairLimits: map[types.AccessKey]queue.KeypairLimits{},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	var f schedulingConfigFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &manager.Config{ScalingGroups: f.ScalingGroups, KeypairLimits: f.KeypairLimits}, nil
}

// --- cluster: join-token / join / info ---

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage the manager cluster",
}

var clusterJoinTokenCmd = &cobra.Command{
	Use:   "join-token [manager|agent]",
	Short: "Generate a join token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role := args[0]
		if role != "manager" && role != "agent" {
			return fmt.Errorf("role must be 'manager' or 'agent'")
		}
		addr, _ := cmd.Flags().GetString("manager")
		c, err := client.NewClient(addr)
		if err != nil {
			return err
		}
		defer c.Close()

		token, err := c.GenerateJoinToken(role)
		if err != nil {
			return err
		}
		fmt.Printf("join token for %s (valid 24h):\n\n    %s\n\n", role, token)
		return nil
	},
}

var clusterJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join this manager to an existing cluster (use 'serve --join-leader' to actually join and run)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("run 'sokovand serve --join-leader <addr> --join-token <token>' on the new node instead")
	},
}

var clusterInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cluster membership and leader",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("manager")
		c, err := client.NewClient(addr)
		if err != nil {
			return err
		}
		defer c.Close()

		info, err := c.GetClusterInfo()
		if err != nil {
			return err
		}
		fmt.Printf("node:     %s\n", info.NodeID)
		fmt.Printf("leader:   %s\n", info.Leader)
		fmt.Printf("is leader: %v\n", info.IsLeader)
		fmt.Printf("servers:  %v\n", info.Followers)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{clusterJoinTokenCmd, clusterInfoCmd} {
		cmd.Flags().String("manager", "127.0.0.1:7001", "manager RPC address")
	}
}

// --- session: submit / terminate / list (in-process, against the local store) ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage sessions (reads the local manager's data directory)",
}

var sessionSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new session into the pending queue of a manager's store",
	Long: `submit opens a manager's data directory and appends a PENDING session
directly, for local testing without a full RPC round trip. The store file
is locked while its manager runs, so the manager that owns the directory
must not be running. Production submission goes through whatever inbound
API fronts this core; that layer is out of scope here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		name, _ := cmd.Flags().GetString("name")
		accessKey, _ := cmd.Flags().GetString("access-key")
		scalingGroup, _ := cmd.Flags().GetString("scaling-group")
		imageRef, _ := cmd.Flags().GetString("image")

		return submitSession(dataDir, name, accessKey, scalingGroup, imageRef)
	},
}

var sessionTerminateCmd = &cobra.Command{
	Use:   "terminate [session-id]",
	Short: "Request termination of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		return terminateSession(dataDir, args[0])
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		status, _ := cmd.Flags().GetString("status")
		return listSessions(dataDir, status)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{sessionSubmitCmd, sessionTerminateCmd, sessionListCmd} {
		cmd.Flags().String("data-dir", "./data", "manager data directory")
	}
	sessionSubmitCmd.Flags().String("name", "", "session name")
	sessionSubmitCmd.Flags().String("access-key", "", "access key (required)")
	sessionSubmitCmd.Flags().String("scaling-group", "default", "scaling group")
	sessionSubmitCmd.Flags().String("image", "", "main kernel image reference (required)")
	_ = sessionSubmitCmd.MarkFlagRequired("access-key")
	_ = sessionSubmitCmd.MarkFlagRequired("image")
	sessionListCmd.Flags().String("status", "PENDING", "session status to filter by")
}

// --- agent: list ---

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect registered agents",
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		return listAgents(dataDir)
	},
}

func init() {
	agentListCmd.Flags().String("data-dir", "./data", "manager data directory")
}
