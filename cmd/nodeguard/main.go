package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	serveFlags := &ServeFlags{}
	statusFlags := &StatusFlags{}
	startFlags := &StartFlags{}
	stopFlags := &StopFlags{}

	root := &cobra.Command{
		Use:           "nodeguard",
		Short:         "Supervisor agent for cluster node roles",
		Long:          "nodeguard keeps configured node-role commands running: spawn, signal relay, restart with backoff, HTTP status API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent with the programs from the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serveFlags)
		},
	}
	serve.Flags().StringVarP(&serveFlags.ConfigPath, "config", "c", "/etc/nodeguard/nodeguard.toml", "path to TOML config")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show program status from a running agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(statusFlags)
		},
	}
	addClientFlags(status, &statusFlags.ClientFlags)
	status.Flags().StringVarP(&statusFlags.Name, "name", "n", "", "program name (empty for all)")

	start := &cobra.Command{
		Use:   "start",
		Short: "Start a stopped program on a running agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(startFlags)
		},
	}
	addClientFlags(start, &startFlags.ClientFlags)
	start.Flags().StringVarP(&startFlags.Name, "name", "n", "", "program name")
	_ = start.MarkFlagRequired("name")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Gracefully stop a program on a running agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(stopFlags)
		},
	}
	addClientFlags(stop, &stopFlags.ClientFlags)
	stop.Flags().StringVarP(&stopFlags.Name, "name", "n", "", "program name")
	_ = stop.MarkFlagRequired("name")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the nodeguard version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("nodeguard", version)
		},
	}

	root.AddCommand(serve, status, start, stop, versionCmd)
	return root
}
