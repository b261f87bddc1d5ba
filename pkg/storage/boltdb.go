package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketAgents         = []byte("agents")
	bucketKernels        = []byte("kernels")
	bucketSessions       = []byte("sessions")
	bucketFairShare      = []byte("fair_share_slices")
	bucketCA             = []byte("ca")
)

// BoltStore implements Store on a single bbolt.DB, one bucket per entity,
// with JSON-marshalled rows keyed by ID.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the core's state database under
// dataDir. Ledger and selector-cursor state live in their own bbolt files
// (pkg/ledger, pkg/selector) to keep their write paths independent of this
// one's.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "sokovan.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketAgents, bucketKernels, bucketSessions, bucketFairShare, bucketCA}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Agent operations

func (s *BoltStore) CreateAgent(agent *types.Agent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAgents)
		data, err := json.Marshal(agent)
		if err != nil {
			return err
		}
		return b.Put([]byte(agent.ID), data)
	})
}

func (s *BoltStore) GetAgent(id types.AgentID) (*types.Agent, error) {
	var agent types.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAgents)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("agent not found: %s", id)
		}
		return json.Unmarshal(data, &agent)
	})
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (s *BoltStore) ListAgents() ([]*types.Agent, error) {
	var agents []*types.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAgents)
		return b.ForEach(func(k, v []byte) error {
			var agent types.Agent
			if err := json.Unmarshal(v, &agent); err != nil {
				return err
			}
			agents = append(agents, &agent)
			return nil
		})
	})
	return agents, err
}

func (s *BoltStore) ListAgentsByScalingGroup(sg types.ScalingGroupName) ([]*types.Agent, error) {
	all, err := s.ListAgents()
	if err != nil {
		return nil, err
	}
	var out []*types.Agent
	for _, a := range all {
		if a.ScalingGroup == sg {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *BoltStore) UpdateAgent(agent *types.Agent) error {
	return s.CreateAgent(agent)
}

func (s *BoltStore) DeleteAgent(id types.AgentID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAgents).Delete([]byte(id))
	})
}

// Kernel operations

func (s *BoltStore) CreateKernel(kernel *types.Kernel) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKernels)
		data, err := json.Marshal(kernel)
		if err != nil {
			return err
		}
		return b.Put([]byte(kernel.ID), data)
	})
}

func (s *BoltStore) GetKernel(id types.KernelID) (*types.Kernel, error) {
	var kernel types.Kernel
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKernels)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("kernel not found: %s", id)
		}
		return json.Unmarshal(data, &kernel)
	})
	if err != nil {
		return nil, err
	}
	return &kernel, nil
}

func (s *BoltStore) listAllKernels() ([]*types.Kernel, error) {
	var kernels []*types.Kernel
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKernels)
		return b.ForEach(func(k, v []byte) error {
			var kernel types.Kernel
			if err := json.Unmarshal(v, &kernel); err != nil {
				return err
			}
			kernels = append(kernels, &kernel)
			return nil
		})
	})
	return kernels, err
}

func (s *BoltStore) ListKernelsBySession(sessionID types.SessionID) ([]*types.Kernel, error) {
	all, err := s.listAllKernels()
	if err != nil {
		return nil, err
	}
	var out []*types.Kernel
	for _, k := range all {
		if k.SessionID == sessionID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *BoltStore) ListKernelsByAgent(agentID types.AgentID) ([]*types.Kernel, error) {
	all, err := s.listAllKernels()
	if err != nil {
		return nil, err
	}
	var out []*types.Kernel
	for _, k := range all {
		if k.AgentID != nil && *k.AgentID == agentID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *BoltStore) ListKernelsByStatus(status types.KernelStatus) ([]*types.Kernel, error) {
	all, err := s.listAllKernels()
	if err != nil {
		return nil, err
	}
	var out []*types.Kernel
	for _, k := range all {
		if k.Status == status {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *BoltStore) UpdateKernel(kernel *types.Kernel) error {
	return s.CreateKernel(kernel)
}

func (s *BoltStore) DeleteKernel(id types.KernelID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKernels).Delete([]byte(id))
	})
}

// Session operations

func (s *BoltStore) CreateSession(session *types.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data, err := json.Marshal(session)
		if err != nil {
			return err
		}
		return b.Put([]byte(session.ID), data)
	})
}

func (s *BoltStore) GetSession(id types.SessionID) (*types.Session, error) {
	var session types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("session not found: %s", id)
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *BoltStore) listAllSessions() ([]*types.Session, error) {
	var sessions []*types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.ForEach(func(k, v []byte) error {
			var session types.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return err
			}
			sessions = append(sessions, &session)
			return nil
		})
	})
	return sessions, err
}

func (s *BoltStore) ListSessionsByStatus(status types.SessionStatus) ([]*types.Session, error) {
	all, err := s.listAllSessions()
	if err != nil {
		return nil, err
	}
	var out []*types.Session
	for _, sess := range all {
		if sess.Status == status {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *BoltStore) ListSessionsByScalingGroupAndStatus(sg types.ScalingGroupName, status types.SessionStatus) ([]*types.Session, error) {
	all, err := s.listAllSessions()
	if err != nil {
		return nil, err
	}
	var out []*types.Session
	for _, sess := range all {
		if sess.ScalingGroup == sg && sess.Status == status {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *BoltStore) UpdateSession(session *types.Session) error {
	return s.CreateSession(session)
}

func (s *BoltStore) DeleteSession(id types.SessionID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(id))
	})
}

// Fair-share slices

func fairShareKey(slice *types.FairShareSlice) []byte {
	return []byte(fmt.Sprintf("%s\x00%s", slice.KernelID, slice.PeriodStart.UTC().Format(time.RFC3339Nano)))
}

func (s *BoltStore) CreateFairShareSlice(slice *types.FairShareSlice) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFairShare)
		data, err := json.Marshal(slice)
		if err != nil {
			return err
		}
		return b.Put(fairShareKey(slice), data)
	})
}

func (s *BoltStore) ListFairShareSlicesSince(sg types.ScalingGroupName, since time.Time) ([]*types.FairShareSlice, error) {
	var out []*types.FairShareSlice
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFairShare)
		return b.ForEach(func(k, v []byte) error {
			var slice types.FairShareSlice
			if err := json.Unmarshal(v, &slice); err != nil {
				return err
			}
			if slice.ScalingGroup == sg && !slice.PeriodStart.Before(since) {
				out = append(out, &slice)
			}
			return nil
		})
	})
	return out, err
}

// Certificate authority

func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put([]byte("ca"), data)
	})
}

func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCA).Get([]byte("ca"))
		if v == nil {
			return fmt.Errorf("CA not found")
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// EndpointReplicaCounts implements selector.EndpointReplicaLookup: for an
// inference endpoint, how many RUNNING main kernels sit on each candidate
// agent right now. Used by the CONCENTRATED selector's spread-replicas
// rule.
func (s *BoltStore) EndpointReplicaCounts(ctx context.Context, endpointID types.EndpointID, candidates []types.Agent) (map[types.AgentID]int, error) {
	sessions, err := s.listAllSessions()
	if err != nil {
		return nil, err
	}
	routed := make(map[types.SessionID]bool)
	for _, sess := range sessions {
		if sess.EndpointID != nil && *sess.EndpointID == endpointID {
			routed[sess.ID] = true
		}
	}

	kernels, err := s.listAllKernels()
	if err != nil {
		return nil, err
	}
	counts := make(map[types.AgentID]int, len(candidates))
	for _, c := range candidates {
		counts[c.ID] = 0
	}
	for _, k := range kernels {
		if k.ClusterRole != types.ClusterRoleMain || k.Status != types.KernelRunning || k.AgentID == nil {
			continue
		}
		if !routed[k.SessionID] {
			continue
		}
		if _, tracked := counts[*k.AgentID]; tracked {
			counts[*k.AgentID]++
		}
	}
	return counts, nil
}
