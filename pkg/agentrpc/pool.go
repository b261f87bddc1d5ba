package agentrpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
)

// Pool caches one Client per agent id, dialing lazily and reusing
// connections across calls. Safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	clients   map[types.AgentID]Client
	tlsConfig *tls.Config
	dialer    func(DialOptions) (*GRPCClient, error)
}

// NewPool builds a Pool that dials agents with tlsConfig. Tests can swap
// in a fake by populating the returned Pool's clients via Put, so no dial
// happens for those agents.
func NewPool(tlsConfig *tls.Config) *Pool {
	return &Pool{
		clients:   make(map[types.AgentID]Client),
		tlsConfig: tlsConfig,
		dialer:    Dial,
	}
}

// Put registers an explicit Client for an agent id, bypassing dialing.
// Used by tests to inject FakeClient instances.
func (p *Pool) Put(agentID types.AgentID, c Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[agentID] = c
}

// Acquire returns the cached client for agentID, dialing addr if absent.
func (p *Pool) Acquire(ctx context.Context, agentID types.AgentID, addr string) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[agentID]; ok {
		return c, nil
	}
	c, err := p.dialer(DialOptions{Addr: addr, TLSConfig: p.tlsConfig, Timeout: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	p.clients[agentID] = c
	return c, nil
}

// CloseAll closes every pooled connection capable of being closed.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for id, c := range p.clients {
		if closer, ok := c.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close agent %s: %w", id, err)
			}
		}
	}
	return firstErr
}

// AgentAddressResolver maps an agent id to its RPC address, needed
// because Pool.Acquire requires both.
type AgentAddressResolver interface {
	AgentAddr(ctx context.Context, agentID types.AgentID) (string, error)
}

// BatchTrigger adapts a Pool (plus an address resolver) to
// pkg/hooks.BatchTrigger.
type BatchTrigger struct {
	Pool     *Pool
	Resolver AgentAddressResolver
}

func (b *BatchTrigger) TriggerBatchExecution(ctx context.Context, agentID types.AgentID, sessionID types.SessionID, kernelID types.KernelID, startupCommand string, batchTimeout *float64) error {
	addr, err := b.Resolver.AgentAddr(ctx, agentID)
	if err != nil {
		return err
	}
	client, err := b.Pool.Acquire(ctx, agentID, addr)
	if err != nil {
		return err
	}
	var dur *time.Duration
	if batchTimeout != nil {
		d := time.Duration(*batchTimeout * float64(time.Second))
		dur = &d
	}
	return client.TriggerBatchExecution(ctx, sessionID, kernelID, startupCommand, dur)
}
