package store

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"replicaft/internal/api"
)

// Client is a thin wrapper over the Store gRPC client.
type Client struct {
	conn *grpc.ClientConn
	sc   api.StoreClient
}

// Dial connects to a store server.
func Dial(addr string, connectTimeout time.Duration) (*Client, error) {
	conn, err := api.Dial(addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dial store %s: %w", addr, err)
	}
	return &Client{conn: conn, sc: api.NewStoreClient(conn)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Set stores value under key.
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	_, err := c.sc.Set(ctx, &api.StoreSetRequest{Key: key, Value: value})
	return err
}

// Get returns the value for key, if present.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := c.sc.Get(ctx, &api.StoreGetRequest{Key: key})
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Found, nil
}

// Wait blocks until key exists or timeout expires.
func (c *Client) Wait(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	resp, err := c.sc.Wait(ctx, &api.StoreWaitRequest{
		Key:       key,
		TimeoutMs: timeout.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}
