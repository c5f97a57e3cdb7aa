package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rongwang/library-rental/internal/app"
	"github.com/rongwang/library-rental/internal/config"
	"github.com/rongwang/library-rental/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "libraryctl",
		Short:         "Run and administer the library rental service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newCategoryCmd(),
		newBookCmd(),
		newUserCmd(),
		newAccountCmd(),
	)

	return root
}

// withApp builds the application from the environment, runs fn and releases it
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.LoadConfig()
	logger := utils.NewLogger(cfg.Log.Level, cfg.Log.JSON)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	runErr := fn(cmd.Context(), a)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil && runErr == nil {
		return err
	}

	return runErr
}
