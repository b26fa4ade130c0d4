package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/notifier/internal/config"
	grpctransport "github.com/shaharia-lab/notifier/internal/transport/grpc"
	natstransport "github.com/shaharia-lab/notifier/internal/transport/nats"
)

type invoker interface {
	Invoke(ctx context.Context, method string, payload []byte) ([]byte, error)
}

// NewInvokeCmd returns the "invoke" subcommand, a client for a running server.
func NewInvokeCmd(cfg *config.AppConfig) *cobra.Command {
	var (
		addr    string
		useNATS bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "invoke <method> [json]",
		Short: "Invoke a method on a running notifier",
		Long: `Send one request to a running notifier and print the response.

Examples:
  notifier invoke Subscribe '{"address":"a@x.com","displayName":"Ann"}'
  notifier invoke Notify '{"payload":{"subject":"Hi","body":"Hello"}}'
  notifier invoke --nats Unsubscribe '{"address":"a@x.com"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]
			payload := []byte("{}")
			if len(args) == 2 {
				payload = []byte(args[1])
			}
			if !json.Valid(payload) {
				return fmt.Errorf("request for %s is not valid JSON", method)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, closeFn, err := newInvoker(cfg, addr, useNATS)
			if err != nil {
				return err
			}
			defer closeFn()

			out, err := client.Invoke(ctx, method, payload)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", fmt.Sprintf("localhost:%d", cfg.GRPCPort), "gRPC server address")
	cmd.Flags().BoolVar(&useNATS, "nats", false, "send the request over NATS (uses NATS_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	return cmd
}

func newInvoker(cfg *config.AppConfig, addr string, useNATS bool) (invoker, func(), error) {
	if !useNATS {
		c, err := grpctransport.NewClient(addr)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	}

	nc, err := natstransport.Connect(natstransport.Config{
		URL:         cfg.NATSURL,
		Name:        "notifier-cli",
		ConnTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	return natstransport.NewClient(nc, cfg.NATSSubjectPrefix), nc.Close, nil
}

func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}
	_, err := fmt.Fprintln(w, buf.String())
	return err
}
