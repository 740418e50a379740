package main

import (
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/diva/internal/config"
)

type rootFlags struct {
	projectPath  string
	settingsPath string
	envFile      string
	verbose      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "diva",
		Short:         "diva runs document image processing pipelines over project pages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.projectPath, "project", "p", config.ProjectFileName, "Path to the project file")
	cmd.PersistentFlags().StringVar(&flags.settingsPath, "settings", "", "Path to a settings file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Path to a .env file (default .env when present)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newProcessCmd(flags))
	cmd.AddCommand(newResetCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))
	cmd.AddCommand(newPlanCmd(flags))
	cmd.AddCommand(newPreviewCmd(flags))
	cmd.AddCommand(newVerifyCmd(flags))
	cmd.AddCommand(newPagesCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
