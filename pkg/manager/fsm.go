package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/sokovan/pkg/storage"
	"github.com/cuemby/sokovan/pkg/types"
	"github.com/hashicorp/raft"
)

// FSM implements the Raft finite state machine for the scheduling core's
// cluster state: agents, kernels, sessions, and fair-share usage slices.
// Commands submitted through Manager.Apply reach every replica's store
// through this FSM; the tick loop's adapters write the local store directly
// and do not pass through it. Reads go straight to the local store.
type FSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewFSM creates a new FSM instance
func NewFSM(store storage.Store) *FSM {
	return &FSM{
		store: store,
	}
}

// Command represents a state change operation in the Raft log
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Apply applies a Raft log entry to the FSM
// This is called by Raft when a log entry is committed
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case "create_agent":
		var agent types.Agent
		if err := json.Unmarshal(cmd.Data, &agent); err != nil {
			return err
		}
		return f.store.CreateAgent(&agent)

	case "update_agent":
		var agent types.Agent
		if err := json.Unmarshal(cmd.Data, &agent); err != nil {
			return err
		}
		return f.store.UpdateAgent(&agent)

	case "delete_agent":
		var agentID types.AgentID
		if err := json.Unmarshal(cmd.Data, &agentID); err != nil {
			return err
		}
		return f.store.DeleteAgent(agentID)

	case "create_kernel":
		var kernel types.Kernel
		if err := json.Unmarshal(cmd.Data, &kernel); err != nil {
			return err
		}
		return f.store.CreateKernel(&kernel)

	case "update_kernel":
		var kernel types.Kernel
		if err := json.Unmarshal(cmd.Data, &kernel); err != nil {
			return err
		}
		return f.store.UpdateKernel(&kernel)

	case "delete_kernel":
		var kernelID types.KernelID
		if err := json.Unmarshal(cmd.Data, &kernelID); err != nil {
			return err
		}
		return f.store.DeleteKernel(kernelID)

	case "create_session":
		var session types.Session
		if err := json.Unmarshal(cmd.Data, &session); err != nil {
			return err
		}
		return f.store.CreateSession(&session)

	case "update_session":
		var session types.Session
		if err := json.Unmarshal(cmd.Data, &session); err != nil {
			return err
		}
		return f.store.UpdateSession(&session)

	case "delete_session":
		var sessionID types.SessionID
		if err := json.Unmarshal(cmd.Data, &sessionID); err != nil {
			return err
		}
		return f.store.DeleteSession(sessionID)

	case "create_fairshare_slice":
		var slice types.FairShareSlice
		if err := json.Unmarshal(cmd.Data, &slice); err != nil {
			return err
		}
		return f.store.CreateFairShareSlice(&slice)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot creates a point-in-time snapshot of the FSM
// This is called periodically by Raft to compact the log
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	agents, err := f.store.ListAgents()
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	sessions, err := f.listAllSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	kernels, err := f.listAllKernels(sessions)
	if err != nil {
		return nil, fmt.Errorf("list kernels: %w", err)
	}

	return &Snapshot{
		Agents:   agents,
		Sessions: sessions,
		Kernels:  kernels,
	}, nil
}

// listAllSessions walks every status bucket; storage.Store has no
// list-everything call because callers normally want one status at a time.
func (f *FSM) listAllSessions() ([]*types.Session, error) {
	var out []*types.Session
	for _, status := range types.AllSessionStatuses() {
		sessions, err := f.store.ListSessionsByStatus(status)
		if err != nil {
			return nil, err
		}
		out = append(out, sessions...)
	}
	return out, nil
}

func (f *FSM) listAllKernels(sessions []*types.Session) ([]*types.Kernel, error) {
	var out []*types.Kernel
	for _, session := range sessions {
		kernels, err := f.store.ListKernelsBySession(session.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, kernels...)
	}
	return out, nil
}

// Restore restores the FSM from a snapshot
// This is called when a node restarts or joins the cluster
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot Snapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, agent := range snapshot.Agents {
		if err := f.store.CreateAgent(agent); err != nil {
			return fmt.Errorf("restore agent: %w", err)
		}
	}
	for _, session := range snapshot.Sessions {
		if err := f.store.CreateSession(session); err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
	}
	for _, kernel := range snapshot.Kernels {
		if err := f.store.CreateKernel(kernel); err != nil {
			return fmt.Errorf("restore kernel: %w", err)
		}
	}

	return nil
}

// Snapshot represents a point-in-time snapshot of cluster state
type Snapshot struct {
	Agents   []*types.Agent
	Sessions []*types.Session
	Kernels  []*types.Kernel
}

// Persist writes the snapshot to the given SnapshotSink
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

// Release releases the snapshot resources
func (s *Snapshot) Release() {}
