package agentrpc

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
)

// FakeClient is an in-memory Client double for tests: it records calls
// and lets tests script failures per kernel.
type FakeClient struct {
	mu sync.Mutex

	CreateKernelsCalls  []types.SessionID
	DestroyedKernels    []types.KernelID
	BatchTriggeredOn    []types.KernelID
	DestroyErr          map[types.KernelID]error
	CreateKernelsErr    error
}

// NewFakeClient returns an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{DestroyErr: make(map[types.KernelID]error)}
}

func (f *FakeClient) CreateKernels(ctx context.Context, sessionID types.SessionID, kernels []KernelSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateKernelsCalls = append(f.CreateKernelsCalls, sessionID)
	return f.CreateKernelsErr
}

func (f *FakeClient) DestroyKernel(ctx context.Context, kernelID types.KernelID, sessionID types.SessionID, reason string, suppressEvents bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DestroyedKernels = append(f.DestroyedKernels, kernelID)
	return f.DestroyErr[kernelID]
}

func (f *FakeClient) TriggerBatchExecution(ctx context.Context, sessionID types.SessionID, kernelID types.KernelID, startupCommand string, batchTimeout *time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BatchTriggeredOn = append(f.BatchTriggeredOn, kernelID)
	return nil
}
