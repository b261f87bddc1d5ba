/*
Package client provides a Go client library for a sokovan manager's
cluster RPC surface.

The client wraps the manager's hand-rolled JSON-over-gRPC API (see
pkg/agentrpc for the same wire pattern used toward agents) with a small,
idiomatic Go interface for cluster administration: requesting join
tokens, joining a node to the Raft cluster, querying cluster membership,
and enrolling a brand-new node's certificate.

It intentionally does not expose session or agent CRUD: those are owned
by pkg/manager directly for in-process callers (the CLI's session/agent
subcommands open the manager's data directory rather than going through
this client — see cmd/sokovand).

# Architecture

	┌───────────────── CLIENT ARCHITECTURE ─────────────────┐
	│                                                          │
	│  Application Code                                       │
	│       │                                                  │
	│       ▼                                                  │
	│  client.Client                                           │
	│       │                                                  │
	│       ├── GenerateJoinToken(role)                        │
	│       ├── GetClusterInfo()                                │
	│       ├── JoinCluster(nodeID, bindAddr, token)             │
	│       │                                                  │
	│       ▼                                                  │
	│  grpc.ClientConn (mTLS, JSON content-subtype)             │
	│       │                                                  │
	│       ▼                                                  │
	│  Manager RPC Server (pkg/manager/rpcserver.go)             │
	└──────────────────────────────────────────────────────────┘

# Certificate Enrollment

A node with no certificate yet cannot dial the manager's mTLS listener.
NewClientWithToken handles this automatically: if no certificate is
found at the CLI's cert directory, it first calls RequestCertificate
over an unauthenticated connection, presenting a join token as
its credential, then reconnects with mTLS using the issued certificate.

	client, err := client.NewClientWithToken("manager1:7001", joinToken)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

Once a certificate has been issued and saved, subsequent connections can
use NewClient directly:

	client, err := client.NewClient("manager1:7001")

Certificates are stored under the directory security.GetCertDir("cli", "")
resolves to (~/.sokovan/certs/cli-), as node.crt, node.key, and
ca.crt.

# Usage

Requesting a join token for a new manager or agent node:

	token, err := client.GenerateJoinToken("manager")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("join token:", token)

Querying cluster membership:

	info, err := client.GetClusterInfo()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("leader=%s is_leader=%v node=%s servers=%v\n",
		info.Leader, info.IsLeader, info.NodeID, info.Followers)

Joining this client's target node to the cluster as a voter (called by
the leader on behalf of a node that already dialed in; the CLI itself
invokes this indirectly through "sokovand serve --join-leader", which
performs the equivalent call internally):

	err := client.JoinCluster(nodeID, bindAddr, joinToken)

# Error Handling

RPC errors are returned as-is from grpc's Invoke; wrap them with
fmt.Errorf("%w", ...) context at call sites as needed. A missing local
certificate when calling NewClient returns a descriptive error directing
the caller to obtain a join token and connect with NewClientWithToken
first.

# See Also

  - pkg/manager/rpcserver.go for the server side of this RPC surface
  - pkg/agentrpc for the equivalent JSON-codec pattern used toward agents
  - cmd/sokovand for CLI usage examples
*/
package client
