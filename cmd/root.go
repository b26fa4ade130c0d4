package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/notifier/internal/config"
)

// NewRootCmd builds the command tree.
func NewRootCmd(cfg *config.AppConfig) *cobra.Command {
	root := &cobra.Command{
		Use:   "notifier",
		Short: "Subscription registry and notification fan-out service",
		Long: `notifier keeps a registry of subscribers and sends one message to each of
them on request. Calls arrive over gRPC, HTTP or NATS and are routed by
method name: Subscribe, Unsubscribe and Notify.`,
		SilenceUsage: true,
	}

	root.AddCommand(NewServeCmd(cfg))
	root.AddCommand(NewInvokeCmd(cfg))
	root.AddCommand(NewVersionCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := NewRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
