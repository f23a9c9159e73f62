// Package main is the entry point for the loghist CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := rootCmd().ExecuteContext(signalContext()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "loghist",
		Short:        "loghist: search the history of your game logs",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "path to loghist.toml (default: search up from the working directory)")

	root.AddCommand(
		initCmd(),
		scanCmd(),
		indexCmd(),
		filesCmd(),
		watchCmd(),
	)

	return root
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()
	return ctx
}
