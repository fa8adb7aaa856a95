package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	servicehub "github.com/saiset-co/servicehub-client"
)

var configPath string

var cmds = []*cobra.Command{
	loginCmd,
	logoutCmd,
	ticketsCmd,
	employeesCmd,
	dashboardCmd,
	scheduleCmd,
	statusCmd,
	watchCmd,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "hubctl:", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context) error {
	command := &cobra.Command{
		Use:           "hubctl",
		Short:         "Field service hub client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}

	command.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the client configuration")

	for _, c := range cmds {
		command.AddCommand(c)
	}

	return command.ExecuteContext(ctx)
}

// withHub starts a hub for the duration of fn.
func withHub(cmd *cobra.Command, fn func(ctx context.Context, hub *servicehub.Hub) error, opts ...servicehub.Option) error {
	ctx := cmd.Context()

	hub, err := servicehub.New(ctx, configPath, opts...)
	if err != nil {
		return err
	}

	if err := hub.Start(); err != nil {
		return err
	}
	defer func() {
		_ = hub.Stop()
	}()

	return fn(ctx, hub)
}
