package main

import (
	"fmt"
	"os"

	"sheets/api/internal/config"

	"github.com/spf13/cobra"
)

type cliApp struct {
	configPath string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	app := &cliApp{}
	cmd := &cobra.Command{
		Use:           "sheets",
		Short:         "Source sheets server and admin tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(app.configPath)
			if err != nil {
				return err
			}
			app.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&app.configPath, "config", os.Getenv("SHEETS_CONFIG"), "Path to a YAML config file (environment variables still override it)")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newMigrateCmd(app))
	cmd.AddCommand(newReindexCmd(app))
	cmd.AddCommand(newUserCmd(app))
	cmd.AddCommand(newGroupCmd(app))
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
