package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/cacheaside/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	rootCmd := &cobra.Command{
		Use:           "cacheaside",
		Short:         "Cache-aside operations against Redis",
		Long:          "Warm, read, invalidate and lock cache entries backed by a SQL table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Env files to load before reading the environment")

	load := func() (*config.Config, error) { return config.Load(envFiles...) }
	rootCmd.AddCommand(
		warmCmd(load),
		getCmd(load),
		invalidateCmd(load),
		lockCmd(load),
	)
	return rootCmd
}

type loadFunc func() (*config.Config, error)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
