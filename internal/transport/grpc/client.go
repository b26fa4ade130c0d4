package grpc

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls an AppCallback service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to target without transport security. Calls propagate
// trace context. opts are applied after the defaults.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial app callback grpc: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Invoke sends payload to method and returns the response payload.
func (c *Client) Invoke(ctx context.Context, method string, payload []byte) ([]byte, error) {
	req, err := structpb.NewStruct(map[string]any{
		fieldMethod: method,
		fieldData:   string(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+methodOnInvoke, req, resp); err != nil {
		return nil, err
	}
	return []byte(resp.GetFields()[fieldData].GetStringValue()), nil
}

// ListInputBindings returns the raw listing.
func (c *Client) ListInputBindings(ctx context.Context) (*structpb.Struct, error) {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+methodListInputBindings, &emptypb.Empty{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListTopicSubscriptions returns the raw listing.
func (c *Client) ListTopicSubscriptions(ctx context.Context) (*structpb.Struct, error) {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+methodListTopicSubscriptions, &emptypb.Empty{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
