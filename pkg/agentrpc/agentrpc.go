// Package agentrpc is the core's outbound RPC client to the external
// agent: create_kernels, destroy_kernel, trigger_batch_execution, plus
// the kernel lifecycle events an agent pushes back.
package agentrpc

import (
	"context"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
)

// KernelSpec is one kernel's creation parameters, as sent to
// create_kernels.
type KernelSpec struct {
	KernelID        types.KernelID
	ClusterRole     types.ClusterRole
	ClusterIdx      int
	ImageRef        string
	Architecture    string
	RequestedSlots  types.ResourceSlot
	BootstrapScript []byte // encrypted at rest via pkg/security.SecretsManager before transport
	Environ         []byte // encrypted at rest via pkg/security.SecretsManager before transport
}

// Client is the Agent RPC surface the core depends on. Implementations:
// GRPCClient talks to a real agent over mTLS; FakeClient is an in-memory
// double for tests.
type Client interface {
	CreateKernels(ctx context.Context, sessionID types.SessionID, kernels []KernelSpec) error
	DestroyKernel(ctx context.Context, kernelID types.KernelID, sessionID types.SessionID, reason string, suppressEvents bool) error
	TriggerBatchExecution(ctx context.Context, sessionID types.SessionID, kernelID types.KernelID, startupCommand string, batchTimeout *time.Duration) error
}

// KernelEvent is a status push from an agent: kernel_started,
// kernel_terminated, kernel_preparing, kernel_pulling.
type KernelEvent struct {
	KernelID types.KernelID
	Status   types.KernelStatus
	Reason   string
	ExitCode *int
}

// EventHandler consumes kernel events pushed by agents.
type EventHandler interface {
	HandleKernelEvent(ctx context.Context, ev KernelEvent) error
}
