package agentrpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// GRPCClient is the production Client implementation: a single agent
// connection carrying JSON-encoded requests over an mTLS channel.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialOptions configures a GRPCClient connection to one agent.
type DialOptions struct {
	Addr      string
	TLSConfig *tls.Config
	Timeout   time.Duration
}

// Dial opens an mTLS connection to an agent's RPC endpoint.
func Dial(opts DialOptions) (*GRPCClient, error) {
	if opts.TLSConfig == nil {
		return nil, fmt.Errorf("agentrpc: TLS config is required to dial %s", opts.Addr)
	}
	creds := credentials.NewTLS(opts.TLSConfig)
	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	conn, err := grpc.DialContext(ctx, opts.Addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial agent %s: %w", opts.Addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *GRPCClient) Close() error { return c.conn.Close() }

type createKernelsRequest struct {
	SessionID types.SessionID `json:"session_id"`
	Kernels   []KernelSpec    `json:"kernels"`
}

type emptyReply struct{}

// CreateKernels asks the agent to create every kernel in kernels for one
// session. The caller rolls back SCHEDULED state on a fatal error.
func (c *GRPCClient) CreateKernels(ctx context.Context, sessionID types.SessionID, kernels []KernelSpec) error {
	var reply emptyReply
	req := createKernelsRequest{SessionID: sessionID, Kernels: kernels}
	return c.conn.Invoke(ctx, "/sokovan.Agent/CreateKernels", &req, &reply)
}

type destroyKernelRequest struct {
	KernelID       types.KernelID  `json:"kernel_id"`
	SessionID      types.SessionID `json:"session_id"`
	Reason         string          `json:"reason"`
	SuppressEvents bool            `json:"suppress_events"`
}

// DestroyKernel asks the agent to tear down one kernel. Idempotent on the
// agent side: destroying an already-gone kernel is a no-op.
func (c *GRPCClient) DestroyKernel(ctx context.Context, kernelID types.KernelID, sessionID types.SessionID, reason string, suppressEvents bool) error {
	var reply emptyReply
	req := destroyKernelRequest{KernelID: kernelID, SessionID: sessionID, Reason: reason, SuppressEvents: suppressEvents}
	return c.conn.Invoke(ctx, "/sokovan.Agent/DestroyKernel", &req, &reply)
}

type triggerBatchExecutionRequest struct {
	SessionID      types.SessionID `json:"session_id"`
	KernelID       types.KernelID  `json:"kernel_id"`
	StartupCommand string          `json:"startup_command"`
	BatchTimeout   *float64        `json:"batch_timeout,omitempty"`
}

// TriggerBatchExecution starts a BATCH session's startup command on the
// kernel's agent. Used by the transition hook registry's RUNNING hook.
func (c *GRPCClient) TriggerBatchExecution(ctx context.Context, sessionID types.SessionID, kernelID types.KernelID, startupCommand string, batchTimeout *time.Duration) error {
	var reply emptyReply
	req := triggerBatchExecutionRequest{SessionID: sessionID, KernelID: kernelID, StartupCommand: startupCommand}
	if batchTimeout != nil {
		seconds := batchTimeout.Seconds()
		req.BatchTimeout = &seconds
	}
	return c.conn.Invoke(ctx, "/sokovan.Agent/TriggerBatchExecution", &req, &reply)
}
