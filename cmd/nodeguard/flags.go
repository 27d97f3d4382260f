package main

import (
	"time"

	"github.com/spf13/cobra"
)

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
}

// ClientFlags holds connection flags shared by the API-backed commands.
type ClientFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	ClientFlags
	Name string
}

// StartFlags holds flags for the start command.
type StartFlags struct {
	ClientFlags
	Name string
}

// StopFlags holds flags for the stop command.
type StopFlags struct {
	ClientFlags
	Name string
}

func addClientFlags(cmd *cobra.Command, f *ClientFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "agent API base URL (default http://127.0.0.1:8617/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 5*time.Second, "API request timeout")
}
