package types

import "time"

// AgentID, SessionID, KernelID and AccessKey are opaque string identifiers.
// They are distinct types so a misplaced argument is a compile error rather
// than a silent bug.
type (
	AgentID    string
	SessionID  string
	KernelID   string
	AccessKey  string
	ScalingGroupName string
	EndpointID string
)

// AgentStatus is the lifecycle state of an Agent as seen by the core.
type AgentStatus string

const (
	AgentAlive      AgentStatus = "ALIVE"
	AgentLost       AgentStatus = "LOST"
	AgentTerminated AgentStatus = "TERMINATED"
)

// Agent is a schedulable node driven by RPC. Invariant: for every slot s
// present in OccupiedSlots, 0 <= OccupiedSlots[s] <= AvailableSlots[s].
type Agent struct {
	ID              AgentID
	ScalingGroup    ScalingGroupName
	Addr            string
	Architecture    string
	Status          AgentStatus
	Schedulable     bool
	AvailableSlots  ResourceSlot
	OccupiedSlots   ResourceSlot
	LastHeartbeatAt time.Time
}

// Free returns the agent's remaining capacity, slot-by-slot.
func (a Agent) Free() ResourceSlot {
	return a.AvailableSlots.Sub(a.OccupiedSlots)
}

// Fits reports whether requested fits within the agent's remaining capacity.
func (a Agent) Fits(requested ResourceSlot) bool {
	return Fits(a.AvailableSlots, a.OccupiedSlots, requested)
}

// ClusterRole distinguishes a session's single coordinating kernel from
// its peers.
type ClusterRole string

const (
	ClusterRoleMain ClusterRole = "main"
	ClusterRoleSub  ClusterRole = "sub"
)

// KernelStatus is a kernel's position in its lifecycle. The zero value is
// not a valid status; always set explicitly at construction.
type KernelStatus string

const (
	KernelPending     KernelStatus = "PENDING"
	KernelScheduled   KernelStatus = "SCHEDULED"
	KernelPreparing   KernelStatus = "PREPARING"
	KernelPulling     KernelStatus = "PULLING"
	KernelPrepared    KernelStatus = "PREPARED"
	KernelCreating    KernelStatus = "CREATING"
	KernelRunning     KernelStatus = "RUNNING"
	KernelTerminating KernelStatus = "TERMINATING"
	KernelTerminated  KernelStatus = "TERMINATED"
	KernelError       KernelStatus = "ERROR"
	KernelCancelled   KernelStatus = "CANCELLED"
)

// kernelStatusRank orders the forward-progress lattice used to derive a
// session's aggregate status (the PENDING < SCHEDULED < ... < RUNNING
// minimum, and the TERMINATING > TERMINATED > RUNNING maximum for
// shutdown). ERROR and CANCELLED are sinks excluded from the ranked
// lattice; callers special-case them.
var kernelStatusRank = map[KernelStatus]int{
	KernelPending:     0,
	KernelScheduled:   1,
	KernelPreparing:   2,
	KernelPulling:     3,
	KernelPrepared:    4,
	KernelCreating:    5,
	KernelRunning:     6,
	KernelTerminating: 7,
	KernelTerminated:  8,
}

// kernelLegalTransitions enumerates the forward edges a kernel may take.
// ERROR is reachable from any non-terminal status; TERMINATING/TERMINATED
// are reachable from ERROR as the fatal-then-cleanup path.
var kernelLegalTransitions = map[KernelStatus][]KernelStatus{
	KernelPending:     {KernelScheduled, KernelCancelled, KernelError},
	KernelScheduled:   {KernelPreparing, KernelError, KernelTerminating},
	KernelPreparing:   {KernelPulling, KernelPrepared, KernelError, KernelTerminating},
	KernelPulling:     {KernelPrepared, KernelError, KernelTerminating},
	KernelPrepared:    {KernelCreating, KernelError, KernelTerminating},
	KernelCreating:    {KernelRunning, KernelError, KernelTerminating},
	KernelRunning:     {KernelTerminating, KernelError},
	KernelTerminating: {KernelTerminated, KernelError},
	KernelError:       {KernelTerminating, KernelTerminated},
	KernelTerminated:  {},
	KernelCancelled:   {},
}

// CanTransition reports whether the kernel status machine permits moving
// from 'from' to 'to'.
func CanTransition(from, to KernelStatus) bool {
	for _, next := range kernelLegalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Kernel is the atomic unit of compute, always owned by exactly one Session.
type Kernel struct {
	ID             KernelID
	SessionID      SessionID
	ClusterRole    ClusterRole
	ClusterIdx     int
	ImageRef       string
	Architecture   string
	RequestedSlots ResourceSlot
	OccupiedSlots  ResourceSlot
	AgentID        *AgentID
	AgentAddr      *string
	Status         KernelStatus
	StatusChanged  time.Time
	StartupCommand string
	BootstrapScript string
	Environ        map[string]string
	BatchTimeout   *time.Duration
	StartsAt       *time.Time
	LastObservedAt *time.Time
	TerminatedAt   *time.Time
}

// SessionType selects which transition hook behaviour applies once the session
// reaches RUNNING or TERMINATED.
type SessionType string

const (
	SessionInteractive SessionType = "INTERACTIVE"
	SessionBatch       SessionType = "BATCH"
	SessionInference   SessionType = "INFERENCE"
	SessionSystem      SessionType = "SYSTEM"
	SessionSFTP        SessionType = "SFTP"
)

// ClusterMode selects whether the agent selector is called once for the
// whole session or once per kernel.
type ClusterMode string

const (
	ClusterModeSingleNode ClusterMode = "SINGLE_NODE"
	ClusterModeMultiNode  ClusterMode = "MULTI_NODE"
)

// SessionStatus mirrors the kernel lattice at the session level, plus
// PENDING/CANCELLED which have no kernel-level counterpart prior to
// scheduling.
type SessionStatus string

const (
	SessionPending     SessionStatus = "PENDING"
	SessionScheduled   SessionStatus = "SCHEDULED"
	SessionPreparing   SessionStatus = "PREPARING"
	SessionPulling     SessionStatus = "PULLING"
	SessionPrepared    SessionStatus = "PREPARED"
	SessionCreating    SessionStatus = "CREATING"
	SessionRunning     SessionStatus = "RUNNING"
	SessionTerminating SessionStatus = "TERMINATING"
	SessionTerminated  SessionStatus = "TERMINATED"
	SessionError       SessionStatus = "ERROR"
	SessionCancelled   SessionStatus = "CANCELLED"
)

// AllSessionStatuses enumerates every SessionStatus, for callers that must
// walk a status-keyed store (e.g. a full-state Raft snapshot) one bucket at
// a time.
func AllSessionStatuses() []SessionStatus {
	return []SessionStatus{
		SessionPending,
		SessionScheduled,
		SessionPreparing,
		SessionPulling,
		SessionPrepared,
		SessionCreating,
		SessionRunning,
		SessionTerminating,
		SessionTerminated,
		SessionError,
		SessionCancelled,
	}
}

// TerminationResult records why a session reached TERMINATED, consumed by
// dependency resolution (SUCCESS unblocks dependents, FAILURE cancels them).
type TerminationResult string

const (
	TerminationSuccess TerminationResult = "SUCCESS"
	TerminationFailure TerminationResult = "FAILURE"
)

// Session is a collection of 1..N kernels presented to the user as one job.
type Session struct {
	ID             SessionID
	AccessKey      AccessKey
	Name           string
	Priority       int
	SessionType    SessionType
	ClusterMode    ClusterMode
	ClusterSize    int
	ScalingGroup   ScalingGroupName
	RequestedSlots ResourceSlot
	OccupyingSlots ResourceSlot
	Status         SessionStatus
	StatusInfo     string
	CreatedAt      time.Time
	TerminatedAt   *time.Time
	TerminationResult TerminationResult
	MainKernelID   KernelID
	DependsOn      []SessionID
	EndpointID     *EndpointID
	PendingTimeout time.Duration
}

// SessionStatusFromKernels derives a session's aggregate status from its
// kernels' statuses using the forward-progress lattice: the minimum rank
// during startup, the maximum during shutdown, with the main kernel canonical
// when no minority holds a lesser state. ERROR wins outright (any kernel
// in ERROR puts the session in ERROR); any kernel TERMINATING/TERMINATED
// with none in ERROR drives the shutdown-side maximum.
func SessionStatusFromKernels(mainStatus KernelStatus, all []KernelStatus) SessionStatus {
	for _, s := range all {
		if s == KernelError {
			return SessionError
		}
	}
	shuttingDown := false
	for _, s := range all {
		if s == KernelTerminating || s == KernelTerminated {
			shuttingDown = true
			break
		}
	}
	if shuttingDown {
		maxRank := -1
		var maxStatus KernelStatus
		for _, s := range all {
			if r, ok := kernelStatusRank[s]; ok && r > maxRank {
				maxRank, maxStatus = r, s
			}
		}
		return kernelToSessionStatus(maxStatus)
	}
	minRank := kernelStatusRank[mainStatus]
	minStatus := mainStatus
	for _, s := range all {
		if r, ok := kernelStatusRank[s]; ok && r < minRank {
			minRank, minStatus = r, s
		}
	}
	return kernelToSessionStatus(minStatus)
}

func kernelToSessionStatus(k KernelStatus) SessionStatus {
	switch k {
	case KernelPending:
		return SessionPending
	case KernelScheduled:
		return SessionScheduled
	case KernelPreparing:
		return SessionPreparing
	case KernelPulling:
		return SessionPulling
	case KernelPrepared:
		return SessionPrepared
	case KernelCreating:
		return SessionCreating
	case KernelRunning:
		return SessionRunning
	case KernelTerminating:
		return SessionTerminating
	case KernelTerminated:
		return SessionTerminated
	default:
		return SessionError
	}
}

// AgentResource is a ledger row: how much of one slot an agent has, and
// how much is currently used. Owned by package ledger, not by Agent.
type AgentResource struct {
	AgentID  AgentID
	Slot     SlotName
	Capacity Decimal
	Used     Decimal
}

// ResourceAllocation is a ledger row tracking one kernel's claim on one
// slot, from request through to free. Never deleted; Free sets FreeAt
// rather than removing the row, preserving the audit trail.
type ResourceAllocation struct {
	KernelID  KernelID
	AgentID   AgentID
	Slot      SlotName
	Requested Decimal
	Used      *Decimal
	UsedAt    *time.Time
	FreeAt    *time.Time
}

// FairShareSlice is an immutable accounting record of a kernel's occupancy
// over one wall-clock-aligned window (except possibly the first and last
// slice of a kernel's lifetime).
type FairShareSlice struct {
	KernelID      KernelID
	ScalingGroup  ScalingGroupName
	PeriodStart   time.Time
	PeriodEnd     time.Time
	ResourceUsage ResourceSlot
	Domain        string
	Project       string
	User          string
}

// AgentSelectionStrategy names one of the four pluggable agent-selector strategies.
type AgentSelectionStrategy string

const (
	StrategyConcentrated AgentSelectionStrategy = "CONCENTRATED"
	StrategyRoundRobin   AgentSelectionStrategy = "ROUNDROBIN"
	StrategyDispersed    AgentSelectionStrategy = "DISPERSED"
	StrategyLegacy       AgentSelectionStrategy = "LEGACY"
)

// SchedulerPolicy names one of the three pluggable pending-queue orderings.
type SchedulerPolicy string

const (
	SchedulerFIFO SchedulerPolicy = "FIFO"
	SchedulerLIFO SchedulerPolicy = "LIFO"
	SchedulerDRF  SchedulerPolicy = "DRF"
)

// DefaultResourcePriority is the slot-comparison order used by CONCENTRATED
// and DISPERSED when ranking agents by free capacity.
var DefaultResourcePriority = []string{"cuda", "rocm", "tpu", "cpu", "mem"}

// ScalingGroupOpts is the per-resource-group scheduler/selector
// configuration. Constructed via NewScalingGroupOpts, which enforces the
// spreading/strategy conflict described below.
type ScalingGroupOpts struct {
	Name                            ScalingGroupName
	AgentSelectionStrategy          AgentSelectionStrategy
	SchedulerPolicy                 SchedulerPolicy
	EnforceSpreadingEndpointReplica bool
	ResourcePriority                []string
	PendingTimeout                  time.Duration
	LostAgentDwell                  time.Duration
	MaxConcurrentSessions           int
	MaxConcurrentSFTPSessions       int
	MaxPendingSessionCount          int
}

// DefaultLostAgentDwell is the default grace period an agent may spend
// LOST before its kernels are force-marked TERMINATED by the sweep.
const DefaultLostAgentDwell = 5 * time.Minute

// NewScalingGroupOpts validates and fills in defaults for a
// ScalingGroupOpts. It returns ErrSpreadingConfigConflict when
// EnforceSpreadingEndpointReplica is requested with any strategy other
// than CONCENTRATED: rejected at configuration time rather than silently
// ignored.
func NewScalingGroupOpts(o ScalingGroupOpts) (ScalingGroupOpts, error) {
	if o.EnforceSpreadingEndpointReplica && o.AgentSelectionStrategy != StrategyConcentrated {
		return ScalingGroupOpts{}, ErrSpreadingConfigConflict
	}
	if o.AgentSelectionStrategy == "" {
		o.AgentSelectionStrategy = StrategyConcentrated
	}
	if o.SchedulerPolicy == "" {
		o.SchedulerPolicy = SchedulerFIFO
	}
	if len(o.ResourcePriority) == 0 {
		o.ResourcePriority = append([]string(nil), DefaultResourcePriority...)
	}
	if o.LostAgentDwell == 0 {
		o.LostAgentDwell = DefaultLostAgentDwell
	}
	return o, nil
}
