package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Requester sends a request and waits for its reply. *nats.Conn satisfies it.
type Requester interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

// RemoteError is a failure reported by the responder.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s error: %s", e.Kind, e.Message)
}

// Client invokes methods over NATS.
type Client struct {
	conn   Requester
	prefix string
}

// NewClient creates a Client for subjects under prefix.
func NewClient(conn Requester, prefix string) *Client {
	return &Client{conn: conn, prefix: prefix}
}

// Invoke sends payload to method and returns the response payload.
func (c *Client) Invoke(ctx context.Context, method string, payload []byte) ([]byte, error) {
	resp, err := c.conn.RequestMsgWithContext(ctx, &nats.Msg{Subject: c.prefix + "." + method, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("nats request %s: %w", method, err)
	}
	if msg := resp.Header.Get(ErrorHeader); msg != "" {
		return nil, &RemoteError{Kind: resp.Header.Get(ErrorKindHeader), Message: msg}
	}
	return resp.Data, nil
}

// Config configures a NATS connection.
type Config struct {
	URL           string
	Name          string
	ConnTimeout   time.Duration
	MaxReconnects int
}

// Connect opens a NATS connection.
func Connect(cfg Config) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url required")
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}
	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}
