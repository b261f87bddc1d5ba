// Package lifecycle implements the session lifecycle tick and
// terminator: the code that drives SCHEDULED -> PREPARING -> RUNNING by
// RPC, and fans out destroy_kernel calls for TERMINATING sessions with
// per-kernel isolation.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/sokovan/pkg/agentrpc"
	"github.com/cuemby/sokovan/pkg/types"
)

// TerminatingKernel is one kernel awaiting a destroy RPC.
type TerminatingKernel struct {
	KernelID types.KernelID
	AgentID  types.AgentID
	AgentAddr string
}

// TerminatingSession is one session in TERMINATING, loaded fresh each tick.
type TerminatingSession struct {
	SessionID types.SessionID
	Reason    string
	Kernels   []TerminatingKernel
}

// AgentClients resolves a Client for a specific agent connection. Satisfied
// by *agentrpc.Pool.
type AgentClients interface {
	Acquire(ctx context.Context, agentID types.AgentID, addr string) (agentrpc.Client, error)
}

// DefaultTerminatorConcurrency is the bounded fan-out width for destroy
// RPCs: bounded concurrency per manager, default 16.
const DefaultTerminatorConcurrency = 16

// Terminator batch-terminates TERMINATING sessions. Status writes
// (kernel -> TERMINATED) are not performed here; they are driven by
// agent-emitted events or the sweep.
type Terminator struct {
	Clients     AgentClients
	Concurrency int
}

// NewTerminator builds a Terminator with the default concurrency if
// concurrency is <= 0.
func NewTerminator(clients AgentClients, concurrency int) *Terminator {
	if concurrency <= 0 {
		concurrency = DefaultTerminatorConcurrency
	}
	return &Terminator{Clients: clients, Concurrency: concurrency}
}

// Result reports, per session, whether every kernel's destroy RPC
// succeeded. A session absent from Succeeded must remain TERMINATING and
// is retried on the next tick.
type Result struct {
	Succeeded map[types.SessionID]bool
	KernelErr map[types.KernelID]error
}

// TerminateSessions fans out destroy_kernel calls for every kernel across
// every session, bounded by Concurrency kernels in flight at once. A
// failing kernel never cancels its siblings — it only keeps its own
// session out of the succeeded set.
func (t *Terminator) TerminateSessions(ctx context.Context, sessions []TerminatingSession) Result {
	result := Result{
		Succeeded: make(map[types.SessionID]bool, len(sessions)),
		KernelErr: make(map[types.KernelID]error),
	}
	if len(sessions) == 0 {
		return result
	}

	type job struct {
		sessionID types.SessionID
		kernel    TerminatingKernel
		reason    string
	}

	var jobs []job
	sessionKernelCount := make(map[types.SessionID]int, len(sessions))
	for _, s := range sessions {
		sessionKernelCount[s.SessionID] = len(s.Kernels)
		if len(s.Kernels) == 0 {
			result.Succeeded[s.SessionID] = true
			continue
		}
		for _, k := range s.Kernels {
			jobs = append(jobs, job{sessionID: s.SessionID, kernel: k, reason: s.Reason})
		}
	}

	var (
		mu          sync.Mutex
		failedKernel = make(map[types.SessionID]bool)
		succeededCount = make(map[types.SessionID]int)
		wg          sync.WaitGroup
		sem         = make(chan struct{}, t.Concurrency)
	)

	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := t.destroyOne(ctx, j.sessionID, j.kernel, j.reason)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.KernelErr[j.kernel.KernelID] = err
				failedKernel[j.sessionID] = true
			} else {
				succeededCount[j.sessionID]++
			}
		}(j)
	}
	wg.Wait()

	for sid, total := range sessionKernelCount {
		if total == 0 {
			continue
		}
		if !failedKernel[sid] && succeededCount[sid] == total {
			result.Succeeded[sid] = true
		}
	}
	return result
}

func (t *Terminator) destroyOne(ctx context.Context, sessionID types.SessionID, k TerminatingKernel, reason string) error {
	client, err := t.Clients.Acquire(ctx, k.AgentID, k.AgentAddr)
	if err != nil {
		return fmt.Errorf("acquire client for agent %s: %w", k.AgentID, err)
	}
	if err := client.DestroyKernel(ctx, k.KernelID, sessionID, reason, false); err != nil {
		return fmt.Errorf("destroy kernel %s on agent %s: %w", k.KernelID, k.AgentID, err)
	}
	return nil
}
