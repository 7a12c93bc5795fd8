package lighthouse

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"replicaft/internal/api"
)

// Client wraps the Lighthouse gRPC client.
type Client struct {
	conn *grpc.ClientConn
	lc   api.LighthouseClient
}

// Dial connects to a lighthouse server.
func Dial(addr string, connectTimeout time.Duration) (*Client, error) {
	conn, err := api.Dial(addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dial lighthouse %s: %w", addr, err)
	}
	return &Client{conn: conn, lc: api.NewLighthouseClient(conn)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Quorum joins quorum formation as member and blocks until a quorum is
// cut or the timeout expires.
func (c *Client) Quorum(ctx context.Context, member api.QuorumMember, timeout time.Duration) (api.Quorum, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.lc.Quorum(ctx, &api.LighthouseQuorumRequest{Requester: member})
	if err != nil {
		return api.Quorum{}, err
	}
	return resp.Quorum, nil
}

// Heartbeat reports this replica as alive.
func (c *Client) Heartbeat(ctx context.Context, replicaID string) error {
	_, err := c.lc.Heartbeat(ctx, &api.HeartbeatRequest{ReplicaID: replicaID})
	return err
}

// SubscribeFailures opens the failure notification stream. Cancel ctx
// to tear the stream down.
func (c *Client) SubscribeFailures(ctx context.Context) (grpc.ServerStreamingClient[api.FailureNotification], error) {
	return c.lc.SubscribeFailures(ctx, &api.SubscribeFailuresRequest{})
}
