package manager

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/sokovan/pkg/agentrpc"
	"github.com/cuemby/sokovan/pkg/client"
	"github.com/cuemby/sokovan/pkg/events"
	"github.com/cuemby/sokovan/pkg/health"
	"github.com/cuemby/sokovan/pkg/hooks"
	"github.com/cuemby/sokovan/pkg/ledger"
	"github.com/cuemby/sokovan/pkg/lifecycle"
	"github.com/cuemby/sokovan/pkg/log"
	"github.com/cuemby/sokovan/pkg/metrics"
	"github.com/cuemby/sokovan/pkg/queue"
	"github.com/cuemby/sokovan/pkg/security"
	"github.com/cuemby/sokovan/pkg/selector"
	"github.com/cuemby/sokovan/pkg/storage"
	"github.com/cuemby/sokovan/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Manager is one node of the scheduling-core cluster: it owns the Raft
// FSM and the per-scaling-group tick loops that implement the ledger, selector, scheduler, lifecycle, fair-share, and hook components, and
// exposes the read/write surface the RPC server and CLI drive.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft           *raft.Raft
	fsm            *FSM
	store          storage.Store
	tokenManager   *TokenManager
	secretsManager *security.SecretsManager
	ca             *security.CertAuthority
	eventBroker    *events.Broker
	emitter        *events.Emitter

	ledger        ledger.Ledger
	selectorState *selector.BoltStateStore
	agentPool     *agentrpc.Pool
	agentMonitor  *health.AgentMonitor

	scalingGroups map[types.ScalingGroupName]types.ScalingGroupOpts
	keypairLimits map[types.AccessKey]queue.KeypairLimits

	repo          *storeRepository
	lifecycleRepo *lifecycleRepository
	runningHook   *hooks.RunningTransitionHook
	hookDispatch  *hookDispatcher
	lifecycleTick *lifecycle.Tick
	terminator    *lifecycle.Terminator
	fairShare     *fairShareAdapter
	eventHandler  *kernelEventHandler

	tickInterval time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// Config holds configuration for creating a Manager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// ScalingGroups lists every resource group this manager schedules
	// over, with its own selector strategy, scheduler policy, and
	// dwell/timeout settings.
	ScalingGroups []types.ScalingGroupOpts
	// KeypairLimits caps concurrency per access key. A
	// key absent from this map is unlimited.
	KeypairLimits map[types.AccessKey]queue.KeypairLimits
	// TickInterval is how often each scaling group's loop runs. Defaults
	// to 2 seconds if zero.
	TickInterval time.Duration
}

// NewManager creates a new Manager instance.
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	fsm := NewFSM(store)
	tokenManager := NewTokenManager()

	clusterKey := security.DeriveKeyFromClusterID(cfg.NodeID)
	secretsManager, err := security.NewSecretsManager(clusterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager: %w", err)
	}
	if err := security.SetClusterEncryptionKey(clusterKey); err != nil {
		return nil, fmt.Errorf("failed to set cluster encryption key: %w", err)
	}

	ca := security.NewCertAuthority(store)

	eventBroker := events.NewBroker()
	eventBroker.Start()
	emitter := &events.Emitter{Broker: eventBroker}

	boltLedger, err := ledger.NewBoltLedger(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	selectorState, err := selector.NewBoltStateStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create selector state store: %w", err)
	}

	scalingGroups := make(map[types.ScalingGroupName]types.ScalingGroupOpts, len(cfg.ScalingGroups))
	for _, sg := range cfg.ScalingGroups {
		opts, err := types.NewScalingGroupOpts(sg)
		if err != nil {
			return nil, fmt.Errorf("scaling group %s: %w", sg.Name, err)
		}
		scalingGroups[opts.Name] = opts
	}

	repo := newStoreRepository(store, boltLedger)
	lifecycleRepo := newLifecycleRepository(store, emitter, secretsManager)
	agentMonitor := health.NewAgentMonitor(health.Config{
		Interval:    5 * time.Second,
		Timeout:     2 * time.Second,
		Retries:     3,
		StartPeriod: 10 * time.Second,
	})

	runningHook := &hooks.RunningTransitionHook{
		Sessions: &sessionRunningUpdater{store: store},
		// Batch is filled in once the agent pool's TLS config exists (see
		// wireAgentRPC), since BatchTrigger needs it.
	}
	terminatedHook := &hooks.TerminatedTransitionHook{
		Endpoints: &endpointRouteUpdater{store: store},
		Events:    emitter,
	}
	runningHook.Endpoints = &endpointRouteUpdater{store: store}
	runningHook.Events = emitter
	hookRegistry := hooks.NewRegistry(runningHook, terminatedHook)
	hookDispatch := &hookDispatcher{registry: hookRegistry}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = 2 * time.Second
	}

	m := &Manager{
		nodeID:         cfg.NodeID,
		bindAddr:       cfg.BindAddr,
		dataDir:        cfg.DataDir,
		fsm:            fsm,
		store:          store,
		secretsManager: secretsManager,
		ca:             ca,
		tokenManager:   tokenManager,
		eventBroker:    eventBroker,
		emitter:        emitter,
		ledger:         boltLedger,
		selectorState:  selectorState,
		agentMonitor:   agentMonitor,
		scalingGroups:  scalingGroups,
		keypairLimits:  cfg.KeypairLimits,
		repo:           repo,
		lifecycleRepo:  lifecycleRepo,
		runningHook:    runningHook,
		hookDispatch:   hookDispatch,
		tickInterval:   tickInterval,
		stopCh:         make(chan struct{}),
	}

	m.lifecycleTick = &lifecycle.Tick{Clients: nil, Marker: lifecycleRepo}
	m.terminator = lifecycle.NewTerminator(nil, lifecycle.DefaultTerminatorConcurrency)
	m.fairShare = newFairShareAdapter(store)
	m.eventHandler = newKernelEventHandler(store, emitter, hookDispatch)

	return m, nil
}

// selectorFor builds the AgentSelector for one scaling group's
// configured strategy.
func (m *Manager) selectorFor(opts types.ScalingGroupOpts) selector.AgentSelector {
	switch opts.AgentSelectionStrategy {
	case types.StrategyRoundRobin:
		return &selector.RoundRobinSelector{State: m.selectorState}
	case types.StrategyDispersed:
		return &selector.DispersedSelector{ResourcePriority: opts.ResourcePriority}
	case types.StrategyLegacy:
		return &selector.LegacySelector{}
	default:
		return &selector.ConcentratedSelector{
			ResourcePriority:                opts.ResourcePriority,
			EnforceSpreadingEndpointReplica: opts.EnforceSpreadingEndpointReplica,
			Replicas:                        m.store,
		}
	}
}

// schedulerFor builds the queue.Scheduler for one scaling group's
// configured policy.
func (m *Manager) schedulerFor(opts types.ScalingGroupOpts) queue.Scheduler {
	switch opts.SchedulerPolicy {
	case types.SchedulerLIFO:
		return queue.LIFOScheduler{}
	case types.SchedulerDRF:
		return queue.DRFScheduler{Shares: newStoreDominantShares(m.store, opts.Name)}
	default:
		return queue.FIFOScheduler{}
	}
}

// queueTickFor builds the scheduling tick for one scaling group.
func (m *Manager) queueTickFor(opts types.ScalingGroupOpts) *queue.Tick {
	return &queue.Tick{
		Repo:           m.repo,
		Scheduler:      m.schedulerFor(opts),
		AgentSelector:  m.selectorFor(opts),
		Ledger:         m.ledger,
		Limits:         m.keypairLimits,
		PendingTimeout: opts.PendingTimeout,
	}
}

// clientTLSConfig builds a mTLS client config for this manager to dial
// agents with, issuing itself a short-lived client certificate off the
// cluster CA.
func (m *Manager) clientTLSConfig() (*tls.Config, error) {
	if !m.ca.IsInitialized() {
		return nil, fmt.Errorf("CA not initialized")
	}
	cert, err := m.ca.IssueClientCertificate(m.nodeID)
	if err != nil {
		return nil, fmt.Errorf("issue manager client certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(pemBlock("CERTIFICATE", m.ca.GetRootCACert()))
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// wireAgentRPC finishes constructing everything that needs a dialed
// connection to agents: the agent pool, the lifecycle tick/terminator's
// Clients, and the RUNNING hook's BatchTrigger. Called once the CA is
// initialized (after Bootstrap or Join).
func (m *Manager) wireAgentRPC() error {
	tlsConfig, err := m.clientTLSConfig()
	if err != nil {
		return err
	}
	m.agentPool = agentrpc.NewPool(tlsConfig)
	m.lifecycleTick.Clients = m.agentPool
	m.terminator.Clients = m.agentPool

	m.runningHook.Batch = &agentrpc.BatchTrigger{Pool: m.agentPool, Resolver: m.repo}
	return nil
}

// Store returns the underlying storage.Store, for the RPC server and CLI
// read paths that do not go through Raft.
func (m *Manager) Store() storage.Store {
	return m.store
}

// Bootstrap initializes a new single-node Raft cluster.
func (m *Manager) Bootstrap() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)

	// Tuned for edge/LAN deployments targeting <10s failover; Raft's
	// WAN-oriented defaults (HeartbeatTimeout=1s, ElectionTimeout=1s,
	// LeaderLeaseTimeout=500ms) are conservative for this case.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStorePath := filepath.Join(m.dataDir, "raft-log.db")
	logStore, err := raftboltdb.NewBoltStore(logStorePath)
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}
	stableStorePath := filepath.Join(m.dataDir, "raft-stable.db")
	stableStore, err := raftboltdb.NewBoltStore(stableStorePath)
	if err != nil {
		return fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: config.LocalID, Address: transport.LocalAddr()},
		},
	}
	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}

	if err := m.initializeCA(); err != nil {
		return fmt.Errorf("failed to initialize CA: %w", err)
	}
	if err := m.wireAgentRPC(); err != nil {
		return fmt.Errorf("failed to wire agent RPC: %w", err)
	}

	return nil
}

// Join adds this manager to an existing cluster.
func (m *Manager) Join(leaderAddr string, token string) error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}
	logStorePath := filepath.Join(m.dataDir, "raft-log.db")
	logStore, err := raftboltdb.NewBoltStore(logStorePath)
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}
	stableStorePath := filepath.Join(m.dataDir, "raft-stable.db")
	stableStore, err := raftboltdb.NewBoltStore(stableStorePath)
	if err != nil {
		return fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r

	log.Info(fmt.Sprintf("contacting leader at %s to join cluster", leaderAddr))

	c, err := client.NewClient(leaderAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to leader: %w", err)
	}
	defer c.Close()

	if err := c.JoinCluster(m.nodeID, m.bindAddr, token); err != nil {
		return fmt.Errorf("failed to join cluster via RPC: %w", err)
	}
	log.Info("successfully joined cluster")

	if err := m.ca.LoadFromStore(); err != nil {
		return fmt.Errorf("failed to load CA: %w", err)
	}
	log.Info("loaded certificate authority from cluster")

	if err := m.wireAgentRPC(); err != nil {
		return fmt.Errorf("failed to wire agent RPC: %w", err)
	}

	return nil
}

// AddVoter adds a new manager node to the Raft cluster.
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}
	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %w", err)
	}
	return nil
}

// RemoveServer removes a server from the Raft cluster.
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}
	future := m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to remove server: %w", err)
	}
	return nil
}

// GetClusterServers returns information about all servers in the Raft cluster.
func (m *Manager) GetClusterServers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}
	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader returns true if this manager is the Raft leader.
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// GetRaftStats returns Raft statistics.
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}
	stats := make(map[string]interface{})
	stats["state"] = m.raft.State().String()
	stats["last_log_index"] = m.raft.LastIndex()
	stats["applied_index"] = m.raft.AppliedIndex()
	stats["leader"] = string(m.raft.Leader())

	configFuture := m.raft.GetConfiguration()
	if err := configFuture.Error(); err == nil {
		stats["peers"] = uint64(len(configFuture.Configuration().Servers))
	} else {
		stats["peers"] = uint64(0)
	}
	return stats
}

// GetEventBroker returns the event broker.
func (m *Manager) GetEventBroker() *events.Broker {
	return m.eventBroker
}

// KernelEventHandler returns the agentrpc.EventHandler this manager uses
// to fold agent-pushed kernel status into session state, for the RPC
// server to wire into its inbound event stream.
func (m *Manager) KernelEventHandler() agentrpc.EventHandler {
	return m.eventHandler
}

// Apply submits a command to the Raft cluster.
func (m *Manager) Apply(cmd Command) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftCommitDuration)

	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply command: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

func applyEntity(m *Manager, op string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: op, Data: data})
}

// CreateAgent registers a new agent via Raft.
func (m *Manager) CreateAgent(agent *types.Agent) error { return applyEntity(m, "create_agent", agent) }

// UpdateAgent updates an agent via Raft.
func (m *Manager) UpdateAgent(agent *types.Agent) error { return applyEntity(m, "update_agent", agent) }

// DeleteAgent removes an agent via Raft.
func (m *Manager) DeleteAgent(id types.AgentID) error { return applyEntity(m, "delete_agent", id) }

// CreateSession admits a new session into the pending queue via Raft.
func (m *Manager) CreateSession(session *types.Session) error {
	return applyEntity(m, "create_session", session)
}

// UpdateSession updates a session via Raft.
func (m *Manager) UpdateSession(session *types.Session) error {
	return applyEntity(m, "update_session", session)
}

// DeleteSession removes a session via Raft.
func (m *Manager) DeleteSession(id types.SessionID) error {
	return applyEntity(m, "delete_session", id)
}

// CreateKernel registers a new kernel via Raft.
func (m *Manager) CreateKernel(kernel *types.Kernel) error {
	return applyEntity(m, "create_kernel", kernel)
}

// UpdateKernel updates a kernel via Raft.
func (m *Manager) UpdateKernel(kernel *types.Kernel) error {
	return applyEntity(m, "update_kernel", kernel)
}

// DeleteKernel removes a kernel via Raft.
func (m *Manager) DeleteKernel(id types.KernelID) error {
	return applyEntity(m, "delete_kernel", id)
}

// GetAgent retrieves an agent by ID (read from local store).
func (m *Manager) GetAgent(id types.AgentID) (*types.Agent, error) { return m.store.GetAgent(id) }

// ListAgents returns all agents (read from local store).
func (m *Manager) ListAgents() ([]*types.Agent, error) { return m.store.ListAgents() }

// GetSession retrieves a session by ID (read from local store).
func (m *Manager) GetSession(id types.SessionID) (*types.Session, error) { return m.store.GetSession(id) }

// GetKernel retrieves a kernel by ID (read from local store).
func (m *Manager) GetKernel(id types.KernelID) (*types.Kernel, error) { return m.store.GetKernel(id) }

// ListKernelsBySession returns all kernels for a session (read from local store).
func (m *Manager) ListKernelsBySession(sessionID types.SessionID) ([]*types.Kernel, error) {
	return m.store.ListKernelsBySession(sessionID)
}

// RegisterAgentForHealthCheck starts tracking addr for agentID's TCP
// reachability, called once an agent finishes joining.
func (m *Manager) RegisterAgentForHealthCheck(agentID types.AgentID, addr string) {
	m.agentMonitor.Register(agentID, addr)
}

// StartScheduling launches the leader-gated per-scaling-group tick loops
// for scheduling, lifecycle (termination and the LOST-agent sweep), and
// fair-share slice emission. Safe to call once per manager lifetime;
// Shutdown stops every loop.
func (m *Manager) StartScheduling() {
	for _, opts := range m.scalingGroups {
		sg := opts.Name
		queueTick := m.queueTickFor(opts)
		sweeper := lifecycle.NewSweeper(m.lifecycleRepo, opts.LostAgentDwell)

		m.wg.Add(1)
		go m.runScalingGroupLoop(sg, queueTick, sweeper)
	}
}

func (m *Manager) runScalingGroupLoop(sg types.ScalingGroupName, queueTick *queue.Tick, sweeper *lifecycle.Sweeper) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			if !m.IsLeader() {
				continue
			}
			m.runTickOnce(sg, queueTick, sweeper, now)
		}
	}
}

func (m *Manager) runTickOnce(sg types.ScalingGroupName, queueTick *queue.Tick, sweeper *lifecycle.Sweeper, now time.Time) {
	ctx := context.Background()

	schedTimer := metrics.NewTimer()
	if err := queueTick.Run(ctx, sg, now); err != nil {
		log.Error(fmt.Sprintf("scheduling tick for %s: %v", sg, err))
	}
	schedTimer.ObserveDuration(metrics.SchedulingTickDuration)

	lifecycleTimer := metrics.NewTimer()
	m.runLifecycleTick(ctx, sg)
	m.runTerminator(ctx, sg)
	lifecycleTimer.ObserveDuration(metrics.LifecycleTickDuration)

	m.agentMonitor.Poll(ctx)
	m.runSweep(ctx, sg, sweeper, now)

	if err := m.fairShare.Run(sg, now); err != nil {
		log.Error(fmt.Sprintf("fair-share aggregation for %s: %v", sg, err))
	}
}

func (m *Manager) runLifecycleTick(ctx context.Context, sg types.ScalingGroupName) {
	sessions, err := m.lifecycleRepo.ScheduledSessions(sg)
	if err != nil {
		log.Error(fmt.Sprintf("load scheduled sessions for %s: %v", sg, err))
		return
	}
	if len(sessions) == 0 {
		return
	}
	for sessionID, err := range m.lifecycleTick.Run(ctx, sessions) {
		log.Error(fmt.Sprintf("create_kernels for session %s: %v", sessionID, err))
	}
}

func (m *Manager) runTerminator(ctx context.Context, sg types.ScalingGroupName) {
	sessions, err := m.lifecycleRepo.TerminatingSessions(sg)
	if err != nil {
		log.Error(fmt.Sprintf("load terminating sessions for %s: %v", sg, err))
		return
	}
	if len(sessions) == 0 {
		return
	}
	result := m.terminator.TerminateSessions(ctx, sessions)
	for sessionID, succeeded := range result.Succeeded {
		if !succeeded {
			continue
		}
		if err := m.lifecycleRepo.ApplyTerminationResult(ctx, sessionID, m.hookDispatch); err != nil {
			log.Error(fmt.Sprintf("apply termination result for %s: %v", sessionID, err))
			continue
		}
		metrics.SessionsTerminatedTotal.Inc()
	}
}

func (m *Manager) runSweep(ctx context.Context, sg types.ScalingGroupName, sweeper *lifecycle.Sweeper, now time.Time) {
	lost := m.agentMonitor.LostAgents()
	if len(lost) == 0 {
		return
	}
	agents := make([]lifecycle.LostAgent, 0, len(lost))
	for agentID, lostAt := range lost {
		agent, err := m.store.GetAgent(agentID)
		if err != nil || agent.ScalingGroup != sg {
			continue
		}
		kernels, err := m.store.ListKernelsByAgent(agentID)
		if err != nil {
			continue
		}
		seen := make(map[types.SessionID]bool)
		var sessionIDs []types.SessionID
		for _, k := range kernels {
			if !seen[k.SessionID] {
				seen[k.SessionID] = true
				sessionIDs = append(sessionIDs, k.SessionID)
			}
		}
		agents = append(agents, lifecycle.LostAgent{AgentID: agentID, LostAt: lostAt, Sessions: sessionIDs})
	}
	if len(agents) == 0 {
		return
	}
	evicted, err := sweeper.Sweep(ctx, now, agents)
	if err != nil {
		log.Error(fmt.Sprintf("sweep lost agents for %s: %v", sg, err))
		return
	}
	for _, agentID := range evicted {
		if kernels, err := m.store.ListKernelsByAgent(agentID); err == nil {
			for _, k := range kernels {
				if err := m.ledger.FreeResources(ctx, k.ID, agentID); err != nil {
					log.Error(fmt.Sprintf("free ledger rows of kernel %s on evicted agent %s: %v", k.ID, agentID, err))
				}
			}
		}
		m.agentMonitor.Unregister(agentID)
		metrics.AgentsEvictedTotal.Inc()
	}
}

// GenerateJoinToken generates a new join token for adding nodes.
func (m *Manager) GenerateJoinToken(role string) (*JoinToken, error) {
	if !m.IsLeader() {
		return nil, fmt.Errorf("not the leader, tokens can only be generated by the leader")
	}
	return m.tokenManager.GenerateToken(role, 24*time.Hour)
}

// ValidateJoinToken validates a join token.
func (m *Manager) ValidateJoinToken(token string) (string, error) {
	return m.tokenManager.ValidateToken(token)
}

// Shutdown gracefully shuts down the manager.
func (m *Manager) Shutdown() error {
	close(m.stopCh)
	m.wg.Wait()

	if m.eventBroker != nil {
		m.eventBroker.Stop()
	}
	if m.agentPool != nil {
		if err := m.agentPool.CloseAll(); err != nil {
			log.Error(fmt.Sprintf("closing agent pool: %v", err))
		}
	}
	if m.raft != nil {
		future := m.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}
	return nil
}

// initializeCA initializes the Certificate Authority for a new cluster.
func (m *Manager) initializeCA() error {
	if m.ca.IsInitialized() {
		log.Info("certificate authority already initialized")
		return nil
	}

	if err := m.ca.LoadFromStore(); err == nil {
		log.Info("loaded existing certificate authority")
		return nil
	}

	log.Info("initializing new certificate authority")
	if err := m.ca.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize CA: %w", err)
	}
	if err := m.ca.SaveToStore(); err != nil {
		return fmt.Errorf("failed to save CA: %w", err)
	}
	log.Info("certificate authority initialized and saved")

	certDir, err := security.GetCertDir("manager", m.nodeID)
	if err != nil {
		return fmt.Errorf("failed to get cert directory: %w", err)
	}

	if security.CertExists(certDir) {
		log.Info(fmt.Sprintf("certificate already exists at %s", certDir))
		return nil
	}

	host, _, err := net.SplitHostPort(m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to parse bind address: %w", err)
	}
	var ipAddresses []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ipAddresses = []net.IP{ip}
	}
	dnsNames := []string{fmt.Sprintf("manager-%s", m.nodeID), "localhost"}

	cert, err := m.ca.IssueNodeCertificate(m.nodeID, "manager", dnsNames, ipAddresses)
	if err != nil {
		return fmt.Errorf("failed to issue node certificate: %w", err)
	}
	if err := security.SaveCertToFile(cert, certDir); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}
	if err := security.SaveCACertToFile(m.ca.GetRootCACert(), certDir); err != nil {
		return fmt.Errorf("failed to save CA certificate: %w", err)
	}
	log.Info(fmt.Sprintf("certificate issued and saved to %s", certDir))
	return nil
}

// IssueCertificate issues a certificate for a node.
func (m *Manager) IssueCertificate(nodeID, role string) (*tls.Certificate, error) {
	if !m.ca.IsInitialized() {
		return nil, fmt.Errorf("CA not initialized")
	}
	return m.ca.IssueNodeCertificate(nodeID, role, nil, nil)
}

// CertToPEM converts a TLS certificate to PEM format.
func (m *Manager) CertToPEM(cert *tls.Certificate) (certPEM, keyPEM []byte, err error) {
	if cert == nil {
		return nil, nil, fmt.Errorf("certificate is nil")
	}
	certPEM = pemBlock("CERTIFICATE", cert.Certificate[0])

	privateKey, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("private key is not RSA")
	}
	keyPEM = pemBlock("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(privateKey))
	return certPEM, keyPEM, nil
}

// GetCACertPEM returns the CA certificate in PEM format.
func (m *Manager) GetCACertPEM() []byte {
	if !m.ca.IsInitialized() {
		return nil
	}
	return pemBlock("CERTIFICATE", m.ca.GetRootCACert())
}

// ValidateToken validates a join token and returns the role.
func (m *Manager) ValidateToken(token string) (string, error) {
	return m.tokenManager.ValidateToken(token)
}

// NodeID returns the manager's node ID.
func (m *Manager) NodeID() string {
	return m.nodeID
}
