package ipc

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"time"
)

// DefaultDialTimeout applies when Dial is given no timeout.
const DefaultDialTimeout = 2 * time.Second

// Client provides RPC access to a daemon.
type Client struct {
	address string
	conn    net.Conn
	client  *rpc.Client
}

// Dial connects to the daemon at address.
func Dial(ctx context.Context, address string, timeout time.Duration) (*Client, error) {
	network, target, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, network, target)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{address: address, conn: conn, client: rpcClient}, nil
}

// Address returns the dialled address.
func (c *Client) Address() string {
	return c.address
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Acquire asks the daemon to serve this client exclusively.
func (c *Client) Acquire(ctx context.Context) (*AcquireResponse, error) {
	var resp AcquireResponse
	if err := c.call(ctx, "Acquire", AcquireRequest{ClientPID: os.Getpid()}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Release returns the daemon to the idle pool.
func (c *Client) Release(ctx context.Context) (*ReleaseResponse, error) {
	var resp ReleaseResponse
	if err := c.call(ctx, "Release", ReleaseRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, "Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	var resp PingResponse
	if err := c.call(ctx, "Ping", PingRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests daemon shutdown.
func (c *Client) Stop(ctx context.Context) (*StopResponse, error) {
	var resp StopResponse
	if err := c.call(ctx, "Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	call := c.client.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s.%s: %w", ServiceName, method, ctx.Err())
	case done := <-call.Done:
		if done.Error != nil {
			return fmt.Errorf("%s.%s: %w", ServiceName, method, done.Error)
		}
		return nil
	}
}
