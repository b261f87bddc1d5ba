package types

import "errors"

// Sentinel errors returned by the scheduling and session lifecycle core.
// Callers match on these with errors.Is; wrapped context is added with
// fmt.Errorf("...: %w", ...) at each call site.
var (
	// ErrCapacityExceeded is returned when an AllocateResources call would
	// push an agent's occupied_slots past its available_slots for some
	// slot name.
	ErrCapacityExceeded = errors.New("requested resources exceed agent capacity")

	// ErrSlotTypeNotFound is returned when a ResourceSlot references a slot
	// name absent from the scaling group's slot-type catalog.
	ErrSlotTypeNotFound = errors.New("slot type not found")

	// ErrNoSuitableAgent is returned by an AgentSelector when no agent in
	// the candidate set can host the requested resource slot.
	ErrNoSuitableAgent = errors.New("no suitable agent for requested resources")

	// ErrDependencyNotMet is returned when a session's dependencies have
	// not all reached a terminal success status.
	ErrDependencyNotMet = errors.New("session dependency not yet satisfied")

	// ErrDependencyFailed is returned when a session's dependency reached
	// a terminal failure status, permanently blocking the dependent.
	ErrDependencyFailed = errors.New("session dependency failed")

	// ErrPendingTimeout is returned when a session exceeded its configured
	// queue timeout while still PENDING.
	ErrPendingTimeout = errors.New("session exceeded pending queue timeout")

	// ErrSpreadingConfigConflict is returned at ScalingGroupOpts
	// construction when enforce_spreading_endpoint_replica is set together
	// with an agent_selection_strategy other than CONCENTRATED.
	ErrSpreadingConfigConflict = errors.New("enforce_spreading_endpoint_replica requires the CONCENTRATED strategy")
)
