package storage

import (
	"context"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
)

// Store is the durable-state interface for everything the scheduling core
// needs that is not a ledger row (pkg/ledger owns those): agents, kernels,
// sessions, and fair-share accounting. Implemented by BoltStore.
type Store interface {
	// Agents
	CreateAgent(agent *types.Agent) error
	GetAgent(id types.AgentID) (*types.Agent, error)
	ListAgents() ([]*types.Agent, error)
	ListAgentsByScalingGroup(sg types.ScalingGroupName) ([]*types.Agent, error)
	UpdateAgent(agent *types.Agent) error
	DeleteAgent(id types.AgentID) error

	// Kernels
	CreateKernel(kernel *types.Kernel) error
	GetKernel(id types.KernelID) (*types.Kernel, error)
	ListKernelsBySession(sessionID types.SessionID) ([]*types.Kernel, error)
	ListKernelsByAgent(agentID types.AgentID) ([]*types.Kernel, error)
	ListKernelsByStatus(status types.KernelStatus) ([]*types.Kernel, error)
	UpdateKernel(kernel *types.Kernel) error
	DeleteKernel(id types.KernelID) error

	// Sessions
	CreateSession(session *types.Session) error
	GetSession(id types.SessionID) (*types.Session, error)
	ListSessionsByStatus(status types.SessionStatus) ([]*types.Session, error)
	ListSessionsByScalingGroupAndStatus(sg types.ScalingGroupName, status types.SessionStatus) ([]*types.Session, error)
	UpdateSession(session *types.Session) error
	DeleteSession(id types.SessionID) error

	// Fair-share accounting (fair-share aggregator output)
	CreateFairShareSlice(slice *types.FairShareSlice) error
	ListFairShareSlicesSince(sg types.ScalingGroupName, since time.Time) ([]*types.FairShareSlice, error)

	// Certificate authority material for agent mTLS (pkg/security).
	SaveCA(data []byte) error
	GetCA() ([]byte, error)

	// EndpointReplicaCounts implements selector.EndpointReplicaLookup: for
	// an inference endpoint, how many RUNNING main kernels currently sit
	// on each candidate agent.
	EndpointReplicaCounts(ctx context.Context, endpointID types.EndpointID, candidates []types.Agent) (map[types.AgentID]int, error)

	Close() error
}
