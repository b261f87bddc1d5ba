/*
Package manager implements the Sokovan scheduling core's manager node.

A manager runs a Raft node whose FSM applies agent/session/kernel and
fair-share slice commands to its store, and drives the per-scaling-group
scheduling and lifecycle tick loop from whichever node is currently
Raft leader. The tick loop's adapters, the agent kernel-event handler and
the CLI write agent/session/kernel/fair-share state straight to the local
store, not through Raft commands, so that state is not replicated to the
other managers.

# Architecture

	┌─────────────────────── MANAGER NODE ───────────────────────┐
	│                                                              │
	│  ┌──────────────────────────────────────────────┐          │
	│  │        RPC Server (cluster admin, enrollment,│          │
	│  │        agent kernel-event pushes)            │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                        │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │              Manager                          │          │
	│  │  - Leader-gated per-scaling-group tick loop   │          │
	│  │  - Builds the ledger, selector, scheduler, lifecycle, fair-share, and hook components components per scaling group  │          │
	│  │  - Proposes Raft commands                     │          │
	│  │  - Issues mTLS certs via pkg/security          │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                        │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │          Raft Consensus Layer                 │          │
	│  │  - Leader election, log replication           │          │
	│  │  - FSM applies committed commands             │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                        │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │              BoltDB Store                      │          │
	│  │  - Agents, Sessions, Kernels                  │          │
	│  │  - Fair-share usage slices                    │          │
	│  │  (Raft log/stable store: raft-log.db and      │          │
	│  │   raft-stable.db; snapshots: file store)      │          │
	│  └────────────────────────────────────────────────┘         │
	└──────────────────────────────────────────────────────────┘

# Core Components

Manager:
  - Main wiring point: owns the Raft instance, the store, and one
    adapter per narrow interface pkg/queue, pkg/lifecycle, pkg/selector
    and pkg/hooks expect
  - Builds a selector/scheduler/queue.Tick per scaling group
  - Drives StartScheduling, the leader-gated tick loop

FSM:
  - Raft finite state machine; applies committed agent/session/kernel
    mutations and fair-share slice writes to the BoltDB store
  - Implements snapshot/restore for fast recovery

TokenManager:
  - Generates and validates join tokens for manager/agent enrollment,
    separate by role; a token stays valid until it expires (24h)

Command:
  - Encapsulates a single state change (create/update/delete an agent,
    session, or kernel; create a fair-share slice)
  - Serialized as JSON in the Raft log

# Raft Consensus

Cluster Sizes:
  - 1 manager: development only (no HA)
  - 3 managers: tolerates 1 failure
  - 5 managers: tolerates 2 failures

Quorum Requirements:
  - Write operations (Apply) require majority quorum
  - Read operations are served from the local store

# Usage

Creating and bootstrapping a manager:

	cfg := &manager.Config{
		NodeID:       "manager-1",
		BindAddr:     "192.168.1.10:7000",
		DataDir:      "/var/lib/sokovan/manager-1",
		ScalingGroups: []types.ScalingGroupOpts{{Name: "default"}},
	}

	mgr, err := manager.NewManager(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := mgr.Bootstrap(); err != nil {
		log.Fatal(err)
	}
	mgr.StartScheduling()

Joining an existing cluster instead of bootstrapping:

	err := mgr.Join("192.168.1.10:7000", joinToken)

Generating join tokens (leader only):

	token, err := mgr.GenerateJoinToken("manager")

# Leadership

Only the Raft leader runs the per-scaling-group tick loop
(StartScheduling's goroutines check IsLeader() on every tick and skip
when not leader). Apply does not forward: on a follower hashicorp/raft
returns raft.ErrNotLeader for the caller to retry against the leader.

When leader fails, a new leader is elected and its tick-loop goroutines
begin running against its own local store. Session and kernel state that
the old leader's tick loop wrote directly to its store was not replicated
and is not present on the new leader.

# Integration Points

This package wires together:

  - pkg/storage: persists agent/session/kernel/fair-share state
  - pkg/queue, pkg/selector: agent selection and pending-queue scheduling
  - pkg/lifecycle: SCHEDULED fan-out, termination, lost-agent sweeping
  - pkg/hooks: status-transition side effects
  - pkg/fairshare, pkg/ledger: usage aggregation and resource-slot
    accounting
  - pkg/agentrpc: the manager's outbound RPC client pool toward agents
  - pkg/security: CA and mTLS certificate issuance
  - pkg/events: publishes session status and agent-eviction events
  - pkg/metrics: Raft, scheduling, and lifecycle instrumentation

# See Also

  - pkg/manager/rpcserver.go for the manager's inbound RPC surface
  - pkg/storage for state persistence
  - pkg/queue and pkg/lifecycle for the scheduling/lifecycle algorithms
    this package orchestrates
*/
package manager
