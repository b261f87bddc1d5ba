// Package client is the CLI's RPC client to a manager node: cluster
// administration (join token, join, info) and certificate enrollment.
// The CLI's session/agent commands open the manager's data directory
// through pkg/storage directly; this client exists for the
// cross-process cluster-admin commands (sokovand cluster join, etc).
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/sokovan/pkg/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps a gRPC connection to a manager's cluster RPC surface.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to addr using an existing CLI certificate.
func NewClient(addr string) (*Client, error) {
	certDir, err := security.GetCertDir("cli", "")
	if err != nil {
		return nil, fmt.Errorf("failed to get cert directory: %w", err)
	}
	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("CLI certificate not found at %s; obtain a join token from a running manager and connect once with a token first", certDir)
	}
	conn, err := connectWithMTLS(addr, certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to connect with mTLS: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClientWithToken requests a CLI certificate using a join token if one
// is not already present, then connects with mTLS.
func NewClientWithToken(addr, token string) (*Client, error) {
	certDir, err := security.GetCertDir("cli", "")
	if err != nil {
		return nil, fmt.Errorf("failed to get cert directory: %w", err)
	}
	if !security.CertExists(certDir) {
		fmt.Println("CLI certificate not found, requesting from manager...")
		if err := requestCertificate(addr, token, certDir); err != nil {
			return nil, fmt.Errorf("failed to request certificate: %w", err)
		}
		fmt.Printf("certificate obtained and saved to %s\n", certDir)
	}
	conn, err := connectWithMTLS(addr, certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to manager: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method string, req, reply interface{}) error {
	return c.conn.Invoke(ctx, method, req, reply, grpc.CallContentSubtype("json"))
}

type joinClusterRequest struct {
	NodeID   string `json:"node_id"`
	BindAddr string `json:"bind_addr"`
	Token    string `json:"token"`
}

type generateJoinTokenRequest struct {
	Role string `json:"role"`
}

type generateJoinTokenReply struct {
	Token string `json:"token"`
}

// ClusterInfo describes the cluster as seen by one manager node.
type ClusterInfo struct {
	Leader    string   `json:"leader"`
	IsLeader  bool     `json:"is_leader"`
	NodeID    string   `json:"node_id"`
	Followers []string `json:"followers"`
}

type emptyMessage struct{}

// GenerateJoinToken requests a join token, valid for 24 hours, for role
// ("manager" or "agent").
func (c *Client) GenerateJoinToken(role string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reply generateJoinTokenReply
	err := c.invoke(ctx, "/sokovan.Cluster/GenerateJoinToken", &generateJoinTokenRequest{Role: role}, &reply)
	if err != nil {
		return "", err
	}
	return reply.Token, nil
}

// GetClusterInfo returns information about the cluster as seen by the
// manager this client is connected to.
func (c *Client) GetClusterInfo() (*ClusterInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reply ClusterInfo
	if err := c.invoke(ctx, "/sokovan.Cluster/GetClusterInfo", &emptyMessage{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// JoinCluster asks the manager this client is connected to (expected to
// be the Raft leader) to add nodeID/bindAddr as a voter.
func (c *Client) JoinCluster(nodeID, bindAddr, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var reply emptyMessage
	return c.invoke(ctx, "/sokovan.Cluster/JoinCluster", &joinClusterRequest{
		NodeID:   nodeID,
		BindAddr: bindAddr,
		Token:    token,
	}, &reply)
}

type requestCertificateRequest struct {
	NodeID string `json:"node_id"`
	Token  string `json:"token"`
}

type requestCertificateReply struct {
	Certificate []byte `json:"certificate"`
	PrivateKey  []byte `json:"private_key"`
	CACert      []byte `json:"ca_cert"`
}

// requestCertificate enrolls nodeID "cli" using a join token over an
// unauthenticated channel (the token itself is the credential), then
// saves the issued certificate to certDir.
func requestCertificate(addr, token, certDir string) error {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to manager: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reply requestCertificateReply
	req := requestCertificateRequest{NodeID: "cli", Token: token}
	if err := conn.Invoke(ctx, "/sokovan.Enrollment/RequestCertificate", &req, &reply, grpc.CallContentSubtype("json")); err != nil {
		return fmt.Errorf("failed to request certificate: %w", err)
	}

	if err := os.MkdirAll(certDir, 0700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}
	if err := os.WriteFile(certDir+"/node.crt", reply.Certificate, 0600); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(certDir+"/node.key", reply.PrivateKey, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(certDir+"/ca.crt", reply.CACert, 0644); err != nil {
		return fmt.Errorf("failed to write CA certificate: %w", err)
	}
	return nil
}

// connectWithMTLS establishes a gRPC connection with mTLS using a
// certificate already saved under certDir.
func connectWithMTLS(addr, certDir string) (*grpc.ClientConn, error) {
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load CLI certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      certPool,
		MinVersion:   tls.VersionTLS13,
	}
	creds := credentials.NewTLS(tlsConfig)
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(creds), grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")))
	if err != nil {
		return nil, fmt.Errorf("failed to dial manager: %w", err)
	}
	return conn, nil
}
