/*
Package types defines the core data structures of the scheduling and
session lifecycle core: resource slots, agents, kernels, sessions and the
fair-share accounting record.

# Resource slots

A SlotName identifies one dimension of capacity ("cpu", "mem",
"cuda.shares", "cuda.device:mig-10g", ...). ResourceSlot maps SlotName to
Decimal, a Decimal being an exact-precision quantity that may also be
+Inf/-Inf when used as a policy limit (never as a concrete allocation).
Missing keys in a ResourceSlot compare and arithmetic as zero.

# Agents, kernels, sessions

Agent is a schedulable node. Kernel is the smallest schedulable unit,
always owned by exactly one Session. A Session owns 1..N kernels and has
exactly one kernel with ClusterRoleMain. Session.Status is derived from
its kernels' statuses using a lattice (see SessionStatusFromKernels).

# Ledger rows

AgentResource and ResourceAllocation are the rows the resource-slot
ledger (package ledger) reads and writes; they are defined here because
several packages need to reason about their shape without importing the
ledger implementation.
*/
package types
