package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kinfolk-ai/kinfolk/internal/app"
	"github.com/kinfolk-ai/kinfolk/internal/config"
	"github.com/kinfolk-ai/kinfolk/internal/util"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/logger/console"

	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	configFile string
	outFormat  string
	verbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := newRootCmd()
	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kinfolk",
		Short:         "kinfolk reconciles and merges people extracted from genealogy documents",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.LoadEnv()

			var err error
			cfg, err = config.Load(configFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug:  cfg.Debug || verbose,
				JSON:   cfg.LogJSON,
				Output: cmd.ErrOrStderr(),
			}))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to kinfolk.yaml")
	rootCmd.PersistentFlags().StringVarP(&outFormat, "output", "o", formatTable, "output format: table, json or yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		migrateCmd(),
		documentsCmd(),
		ingestCmd(),
		peopleCmd(),
		personCmd(),
		familiesCmd(),
		treeCmd(),
		duplicatesCmd(),
		mergeCmd(),
		mergesCmd(),
		reconcileCmd(),
		exportCmd(),
		statsCmd(),
	)
	return rootCmd
}

// openApp opens the configured store. Callers close it.
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return a, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", a.Runner.Dialect())
			return nil
		},
	}
}
