package main

import (
	"github.com/spf13/cobra"

	"github.com/ryubing/robocop-go/internal/config"
	"github.com/ryubing/robocop-go/internal/logging"
	"github.com/ryubing/robocop-go/pkg/logger"
)

// rootFlags are the persistent flags shared by every subcommand. They take
// priority over the environment and .env.
type rootFlags struct {
	guildConfig string
	stateDir    string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "robocop",
		Short:         "Ryujinx support bot",
		Long:          "robocop analyses Ryujinx log files posted to Discord support channels\nand replies with a summary of the user's setup and any known problems.",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.guildConfig, "guild-config", "", "Path to guild.yaml (reaction roles)")
	pf.StringVar(&flags.stateDir, "state-dir", "", "Directory holding data/ (denylist, role menu state)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(flags),
		newAnalyzeCmd(flags),
		newDenylistCmd(flags),
		newHistoryCmd(flags),
	)
	return root
}

func (f *rootFlags) loadConfig() (*config.Config, error) {
	return config.LoadWithCLI(&config.CLIOptions{
		GuildConfig: f.guildConfig,
		StateDir:    f.stateDir,
		LogLevel:    f.logLevel,
	})
}

// quietLogger is used by the one-shot commands, whose output is the result itself.
func quietLogger() *logging.SecureLogger {
	return logging.NewSecure(logger.Nop())
}
