package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/sokovan/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketAgentResources = []byte("agent_resources")
	bucketAllocations    = []byte("resource_allocations")
	bucketSlotTypes      = []byte("resource_slot_types")
)

// BoltLedger implements Ledger on a dedicated bbolt.DB, matching the
// single-bbolt.DB-with-buckets idiom used throughout this codebase's
// storage layer.
type BoltLedger struct {
	db    *bolt.DB
	locks *agentLocks
}

// NewBoltLedger opens (creating if absent) a ledger database under dataDir.
func NewBoltLedger(dataDir string) (*BoltLedger, error) {
	dbPath := filepath.Join(dataDir, "ledger.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketAgentResources, bucketAllocations, bucketSlotTypes} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltLedger{db: db, locks: newAgentLocks()}, nil
}

// Close closes the underlying database.
func (l *BoltLedger) Close() error { return l.db.Close() }

func agentResourceKey(agentID types.AgentID, slot types.SlotName) []byte {
	return []byte(string(agentID) + "\x00" + slot.String())
}

func allocationKey(kernelID types.KernelID, slot types.SlotName) []byte {
	return []byte(string(kernelID) + "\x00" + slot.String())
}

type agentResourceRow struct {
	AgentID  types.AgentID  `json:"agent_id"`
	Slot     string         `json:"slot"`
	Capacity types.Decimal  `json:"capacity"`
	Used     types.Decimal  `json:"used"`
}

type allocationRow struct {
	KernelID  types.KernelID `json:"kernel_id"`
	AgentID   types.AgentID  `json:"agent_id"`
	Slot      string         `json:"slot"`
	Requested types.Decimal  `json:"requested"`
	Used      *types.Decimal `json:"used"`
	UsedAt    *string        `json:"used_at"`
	FreeAt    *string        `json:"free_at"`
}

// RequestResources inserts one allocation row per slot with requested=q,
// used=NULL, free_at=NULL. Fails with ErrDuplicateAllocation if any
// (kernel_id, slot) row already exists.
func (l *BoltLedger) RequestResources(ctx context.Context, kernelID types.KernelID, slots types.ResourceSlot) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAllocations)
		for slot, qty := range slots {
			key := allocationKey(kernelID, slot)
			if b.Get(key) != nil {
				return fmt.Errorf("kernel %s slot %s: %w", kernelID, slot, ErrDuplicateAllocation)
			}
			row := allocationRow{
				KernelID:  kernelID,
				Slot:      slot.String(),
				Requested: qty,
			}
			data, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllocateResources sets allocation.used/used_at for the matching rows and
// increments agent_resources.used, all in one transaction guarded by
// used+q <= capacity. Any guard failure rolls back the entire call — no
// partial allocation survives.
func (l *BoltLedger) AllocateResources(ctx context.Context, kernelID types.KernelID, agentID types.AgentID, slots types.ResourceSlot) error {
	lock := l.locks.forAgent(agentID)
	lock.Lock()
	defer lock.Unlock()

	now := nowFunc().UTC().Format(timeLayout)
	return l.db.Update(func(tx *bolt.Tx) error {
		allocB := tx.Bucket(bucketAllocations)
		resB := tx.Bucket(bucketAgentResources)

		// Validate every slot fits before mutating anything.
		updated := make(map[string]agentResourceRow, len(slots))
		for slot, qty := range slots {
			resKey := agentResourceKey(agentID, slot)
			resData := resB.Get(resKey)
			if resData == nil {
				return fmt.Errorf("agent %s slot %s: %w", agentID, slot, types.ErrSlotTypeNotFound)
			}
			var res agentResourceRow
			if err := json.Unmarshal(resData, &res); err != nil {
				return err
			}
			newUsed := res.Used.Add(qty)
			if newUsed.GreaterThan(res.Capacity) {
				return fmt.Errorf("agent %s slot %s: %w", agentID, slot, types.ErrCapacityExceeded)
			}
			res.Used = newUsed
			updated[string(resKey)] = res
		}

		allocUpdates := make(map[string]allocationRow, len(slots))
		for slot, qty := range slots {
			allocKey := allocationKey(kernelID, slot)
			allocData := allocB.Get(allocKey)
			if allocData == nil {
				return fmt.Errorf("no allocation row for kernel %s slot %s (call RequestResources first)", kernelID, slot)
			}
			var row allocationRow
			if err := json.Unmarshal(allocData, &row); err != nil {
				return err
			}
			usedCopy := qty
			row.AgentID = agentID
			row.Used = &usedCopy
			nowCopy := now
			row.UsedAt = &nowCopy
			allocUpdates[string(allocKey)] = row
		}

		for k, row := range allocUpdates {
			data, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := allocB.Put([]byte(k), data); err != nil {
				return err
			}
		}
		for k, res := range updated {
			data, err := json.Marshal(res)
			if err != nil {
				return err
			}
			if err := resB.Put([]byte(k), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// FreeResources sets free_at on every allocation row with used != NULL and
// free_at == NULL for this kernel on this agent, decrementing
// agent_resources.used by the freed amount. Idempotent: a row already
// freed is skipped, so a repeat call changes nothing.
func (l *BoltLedger) FreeResources(ctx context.Context, kernelID types.KernelID, agentID types.AgentID) error {
	lock := l.locks.forAgent(agentID)
	lock.Lock()
	defer lock.Unlock()

	now := nowFunc().UTC().Format(timeLayout)
	return l.db.Update(func(tx *bolt.Tx) error {
		allocB := tx.Bucket(bucketAllocations)
		resB := tx.Bucket(bucketAgentResources)

		prefix := []byte(string(kernelID) + "\x00")
		c := allocB.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var row allocationRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if row.Used == nil || row.FreeAt != nil {
				continue
			}
			if row.AgentID != agentID {
				continue
			}
			freed := *row.Used
			nowCopy := now
			row.FreeAt = &nowCopy
			data, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := allocB.Put(k, data); err != nil {
				return err
			}

			resKey := agentResourceKey(agentID, types.MustSlotName(row.Slot))
			resData := resB.Get(resKey)
			if resData == nil {
				continue
			}
			var res agentResourceRow
			if err := json.Unmarshal(resData, &res); err != nil {
				return err
			}
			res.Used = res.Used.Sub(freed)
			data, err = json.Marshal(res)
			if err != nil {
				return err
			}
			if err := resB.Put(resKey, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// UpsertAgentCapacity bulk-upserts an agent's capacity for one slot. Used
// defaults to 0 on first insert and is never touched on update.
func (l *BoltLedger) UpsertAgentCapacity(ctx context.Context, agentID types.AgentID, slot types.SlotName, capacity types.Decimal) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAgentResources)
		key := agentResourceKey(agentID, slot)
		row := agentResourceRow{AgentID: agentID, Slot: slot.String(), Capacity: capacity}
		if existing := b.Get(key); existing != nil {
			if err := json.Unmarshal(existing, &row); err != nil {
				return err
			}
			row.Capacity = capacity
		}
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// GetAgentOccupancy returns, per agent, a ResourceSlot of currently-used
// capacity across all its slots.
func (l *BoltLedger) GetAgentOccupancy(ctx context.Context, agentIDs []types.AgentID) (map[types.AgentID]types.ResourceSlot, error) {
	want := make(map[types.AgentID]bool, len(agentIDs))
	for _, id := range agentIDs {
		want[id] = true
	}
	out := make(map[types.AgentID]types.ResourceSlot, len(agentIDs))
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAgentResources)
		return b.ForEach(func(k, v []byte) error {
			var res agentResourceRow
			if err := json.Unmarshal(v, &res); err != nil {
				return err
			}
			if !want[res.AgentID] {
				return nil
			}
			slot, err := types.ParseSlotName(res.Slot)
			if err != nil {
				return err
			}
			if out[res.AgentID] == nil {
				out[res.AgentID] = make(types.ResourceSlot)
			}
			out[res.AgentID][slot] = res.Used
			return nil
		})
	})
	return out, err
}

// RegisterSlotType adds or replaces a catalog entry.
func (l *BoltLedger) RegisterSlotType(ctx context.Context, st types.SlotType) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlotTypes)
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return b.Put([]byte(st.Name.String()), data)
	})
}

// AllSlotTypes returns the authoritative list of known slot names and kinds.
func (l *BoltLedger) AllSlotTypes(ctx context.Context) ([]types.SlotType, error) {
	var out []types.SlotType
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlotTypes)
		return b.ForEach(func(k, v []byte) error {
			var st types.SlotType
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			out = append(out, st)
			return nil
		})
	})
	return out, err
}

// GetSlotType returns the catalog entry for name, or
// types.ErrSlotTypeNotFound if unknown.
func (l *BoltLedger) GetSlotType(ctx context.Context, name types.SlotName) (types.SlotType, error) {
	var st types.SlotType
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlotTypes)
		data := b.Get([]byte(name.String()))
		if data == nil {
			return fmt.Errorf("%s: %w", name, types.ErrSlotTypeNotFound)
		}
		return json.Unmarshal(data, &st)
	})
	return st, err
}

const timeLayout = "2006-01-02T15:04:05.000000000Z"
