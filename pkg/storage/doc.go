/*
Package storage provides BoltDB-backed state persistence for the
scheduling core's agents, sessions, kernels, and fair-share usage
history.

The package implements the Store interface using BoltDB as the
underlying database, providing ACID transactions over a single file.
All entities are serialized as JSON and stored in separate buckets.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/sokovan.db                │          │
	│  │  - Format: B+tree with MVCC                 │          │
	│  │  - Transactions: ACID with fsync             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  ┌────────────────────────────┐             │          │
	│  │  │ agents            (Agent ID)│            │          │
	│  │  │ sessions          (Sess ID) │            │          │
	│  │  │ kernels           (Kernel ID)│           │          │
	│  │  │ fair_share_slices (slice key)│           │          │
	│  │  │ ca                (fixed key)│           │          │
	│  │  └────────────────────────────┘             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Transaction Management                │          │
	│  │  - Read: db.View() - concurrent reads       │          │
	│  │  - Write: db.Update() - serialized writes   │          │
	│  │  - Rollback: automatic on error             │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

BoltStore:
  - Implements the Store interface using go.etcd.io/bbolt
  - Single database file per manager node
  - Buckets created on first open
  - Thread-safe via BoltDB's transaction model

Buckets:
  - agents: registered agent nodes and their capacity/status
  - sessions: session records and their current status
  - kernels: kernel records, keyed by kernel ID, indexed by session and
    agent at read time via cursor scans
  - fair_share_slices: per-kernel usage slices written by fair-share
    aggregation, listed per scaling group since a given time; the DRF
    scheduler does not read them (it works from session rows)
  - ca: certificate authority material (single fixed-key entry)

# Usage

	store, err := storage.NewBoltStore("/var/lib/sokovan/manager-1")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	agent := &types.Agent{ID: "agent-1", ScalingGroup: "default", Addr: "10.0.0.5:6001"}
	err = store.CreateAgent(agent)

	session := &types.Session{ID: sessionID, AccessKey: accessKey, ScalingGroup: "default"}
	err = store.CreateSession(session)

	pending, err := store.ListSessionsByScalingGroupAndStatus("default", types.SessionPending)

	slices, err := store.ListFairShareSlicesSince("default", time.Now().Add(-time.Hour))

# Integration Points

This package integrates with:

  - pkg/manager: the Raft FSM applies committed commands through this
    Store, and read-side queries (ListAgents, GetSession, ...) serve
    Manager's direct accessor methods
  - pkg/queue, pkg/lifecycle: read pending/scheduled/terminating
    sessions and agent capacity through the narrow repository
    interfaces pkg/manager adapts this Store to
  - pkg/selector: EndpointReplicaCounts satisfies
    selector.EndpointReplicaLookup directly
  - pkg/security: stores CA material via SaveCA/GetCA
  - pkg/types: all entity definitions

# Design Patterns

Upsert-free CRUD:
  - Create and Update are distinct methods even though both are a bolt
    Put; Create exists to keep call sites explicit about intent

Idempotent Deletes:
  - Delete returns no error if the key doesn't exist

Cursor Iteration:
  - List* methods scan a bucket and filter/deserialize in memory;
    acceptable at a single scaling group's session/kernel/agent count,
    revisit with secondary indexes if that changes

# Data Integrity

Transaction Guarantees:
  - Atomicity: all-or-nothing commits
  - Isolation: snapshot reads, serialized writes
  - Durability: fsync on commit

Backup and Restore:
  - Single file; copy while closed or backup via db.View()
  - Raft snapshots (pkg/manager/fsm.go) are the primary recovery path
    across a cluster; a raw file copy is a single-node fallback

# Security

File Permissions:
  - Database file and directory should be restricted to the user
    running sokovand; the package does not set permissions itself
  - Secrets are not stored here; CA private key material handling is
    pkg/security's responsibility

# See Also

  - pkg/manager for Raft FSM integration
  - pkg/types for entity definitions
  - BoltDB documentation: https://github.com/etcd-io/bbolt
*/
package storage
