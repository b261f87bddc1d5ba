package manager

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/cuemby/sokovan/pkg/agentrpc"
	"github.com/cuemby/sokovan/pkg/log"
	"github.com/cuemby/sokovan/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Server is the manager's inbound gRPC surface: cluster administration
// (join/token/info), certificate enrollment, and the kernel event stream
// agents push status changes over. It reuses the JSON wire codec
// pkg/agentrpc registers, so no generated proto client/server pair is
// needed on either side of the cluster.
type Server struct {
	mgr *Manager

	secure   *grpc.Server
	insecure *grpc.Server
}

// NewServer builds the manager's RPC server. A separate insecure listener
// carries only RequestCertificate, the one call a brand-new node must be
// able to make before it has a certificate to present.
func NewServer(mgr *Manager) *Server {
	s := &Server{mgr: mgr}

	tlsConfig := mgr.serverTLSConfig()
	s.secure = grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsConfig)))
	s.secure.RegisterService(&clusterServiceDesc, s)
	s.secure.RegisterService(&agentEventServiceDesc, s)

	s.insecure = grpc.NewServer(grpc.Creds(insecure.NewCredentials()))
	s.insecure.RegisterService(&enrollmentServiceDesc, s)

	return s
}

// Serve blocks serving the secure listener. Call ServeEnrollment in its
// own goroutine first.
func (s *Server) Serve(lis net.Listener) error {
	return s.secure.Serve(lis)
}

// ServeEnrollment blocks serving the insecure certificate-enrollment
// listener; callers typically run this in a goroutine alongside Serve.
func (s *Server) ServeEnrollment(lis net.Listener) error {
	return s.insecure.Serve(lis)
}

// Stop gracefully stops both listeners.
func (s *Server) Stop() {
	s.secure.GracefulStop()
	s.insecure.GracefulStop()
}

func (m *Manager) serverTLSConfig() *tls.Config {
	cert, err := m.ca.IssueNodeCertificate(m.nodeID, "manager", []string{fmt.Sprintf("manager-%s", m.nodeID)}, nil)
	if err != nil {
		log.Error(fmt.Sprintf("issue manager server certificate: %v", err))
		return &tls.Config{MinVersion: tls.VersionTLS13}
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(pemBlock("CERTIFICATE", m.ca.GetRootCACert()))
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}
}

// --- Cluster service: join / token / info ---

type joinClusterRequest struct {
	NodeID   types.AgentID `json:"node_id"`
	BindAddr string        `json:"bind_addr"`
	Token    string        `json:"token"`
}

type generateJoinTokenRequest struct {
	Role string `json:"role"`
}

type generateJoinTokenReply struct {
	Token string `json:"token"`
}

type clusterInfoReply struct {
	Leader    string   `json:"leader"`
	IsLeader  bool     `json:"is_leader"`
	NodeID    string   `json:"node_id"`
	Followers []string `json:"followers"`
}

func (s *Server) joinCluster(ctx context.Context, req *joinClusterRequest) (*emptyReply, error) {
	if _, err := s.mgr.ValidateJoinToken(req.Token); err != nil {
		return nil, fmt.Errorf("invalid join token: %w", err)
	}
	if err := s.mgr.AddVoter(string(req.NodeID), req.BindAddr); err != nil {
		return nil, err
	}
	return &emptyReply{}, nil
}

func (s *Server) generateJoinToken(ctx context.Context, req *generateJoinTokenRequest) (*generateJoinTokenReply, error) {
	jt, err := s.mgr.GenerateJoinToken(req.Role)
	if err != nil {
		return nil, err
	}
	return &generateJoinTokenReply{Token: jt.Token}, nil
}

func (s *Server) getClusterInfo(ctx context.Context, req *emptyReply) (*clusterInfoReply, error) {
	servers, err := s.mgr.GetClusterServers()
	if err != nil {
		return nil, err
	}
	reply := &clusterInfoReply{
		Leader:   s.mgr.LeaderAddr(),
		IsLeader: s.mgr.IsLeader(),
		NodeID:   s.mgr.NodeID(),
	}
	for _, srv := range servers {
		reply.Followers = append(reply.Followers, string(srv.ID))
	}
	return reply, nil
}

// --- Enrollment service: certificate issuance over an insecure channel
// authenticated by a join token (valid until it expires) ---

type requestCertificateRequest struct {
	NodeID string `json:"node_id"`
	Token  string `json:"token"`
}

type requestCertificateReply struct {
	Certificate []byte `json:"certificate"`
	PrivateKey  []byte `json:"private_key"`
	CACert      []byte `json:"ca_cert"`
}

func (s *Server) requestCertificate(ctx context.Context, req *requestCertificateRequest) (*requestCertificateReply, error) {
	role, err := s.mgr.ValidateJoinToken(req.Token)
	if err != nil {
		return nil, fmt.Errorf("invalid join token: %w", err)
	}
	cert, err := s.mgr.ca.IssueNodeCertificate(req.NodeID, role, nil, nil)
	if err != nil {
		return nil, err
	}
	certPEM, keyPEM, err := s.mgr.CertToPEM(cert)
	if err != nil {
		return nil, err
	}
	return &requestCertificateReply{
		Certificate: certPEM,
		PrivateKey:  keyPEM,
		CACert:      s.mgr.GetCACertPEM(),
	}, nil
}

// --- Agent event service: kernel status pushes ---

type reportKernelEventRequest struct {
	KernelID types.KernelID     `json:"kernel_id"`
	Status   types.KernelStatus `json:"status"`
	Reason   string             `json:"reason"`
	ExitCode *int               `json:"exit_code,omitempty"`
}

func (s *Server) reportKernelEvent(ctx context.Context, req *reportKernelEventRequest) (*emptyReply, error) {
	err := s.mgr.KernelEventHandler().HandleKernelEvent(ctx, agentrpc.KernelEvent{
		KernelID: req.KernelID,
		Status:   req.Status,
		Reason:   req.Reason,
		ExitCode: req.ExitCode,
	})
	if err != nil {
		return nil, err
	}
	return &emptyReply{}, nil
}
