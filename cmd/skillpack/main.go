package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jingkaihe/skillpack/pkg/config"
	"github.com/jingkaihe/skillpack/pkg/logger"
	"github.com/jingkaihe/skillpack/pkg/presenter"
	"github.com/jingkaihe/skillpack/pkg/telemetry"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// cfg is loaded once per invocation before any subcommand runs.
	cfg             *config.Config
	shutdownTracing telemetry.ShutdownFunc
)

var rootCmd = &cobra.Command{
	Use:   "skillpack",
	Short: "Package SKILL.md skills as Skill.md directories and zip archives",
	Long: `skillpack converts a tree of SKILL.md skills into the packaged Skill.md
layout and then packs each converted skill into its own zip archive.

Frontmatter is reduced to an allow-list of keys, missing names and
descriptions are synthesized from the document body, and a resources/
directory next to SKILL.md is copied with the skill.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default is skillpack.yaml in $HOME/.skillpack or the working directory)")
	flags.String("source-dir", config.DefaultSourceDir, "Directory searched for SKILL.md files")
	flags.String("output-dir", config.DefaultOutputDir, "Directory receiving converted skills (recreated on every run)")
	flags.String("archive-dir", config.DefaultArchiveDir, "Directory receiving zip archives")
	flags.String("profile", "", "Named profile from the config file to apply")
	flags.String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	flags.String("log-format", "fmt", "Log format (fmt, text, json)")
	flags.BoolP("quiet", "q", false, "Only print failures")
	flags.Bool("fail-on-error", false, "Exit with status 1 when any skill fails")

	viper.BindPFlag("source_dir", flags.Lookup("source-dir"))
	viper.BindPFlag("output_dir", flags.Lookup("output-dir"))
	viper.BindPFlag("archive_dir", flags.Lookup("archive-dir"))
	viper.BindPFlag("profile", flags.Lookup("profile"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("quiet", flags.Lookup("quiet"))
	viper.BindPFlag("fail_on_error", flags.Lookup("fail-on-error"))

	rootCmd.AddCommand(withTracing(buildCmd))
	rootCmd.AddCommand(withTracing(convertCmd))
	rootCmd.AddCommand(withTracing(archiveCmd))
	rootCmd.AddCommand(withTracing(listCmd))
	rootCmd.AddCommand(withTracing(watchCmd))
	rootCmd.AddCommand(versionCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	if err := config.Setup(viper.GetViper(), configFile); err != nil {
		return err
	}

	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	if err := logger.Configure(loaded.LogLevel, loaded.LogFormat); err != nil {
		return errors.Wrapf(err, "invalid log level %q", loaded.LogLevel)
	}
	presenter.SetQuiet(viper.GetBool("quiet"))

	shutdown, err := initTracing(cmd.Context(), loaded)
	if err != nil {
		return err
	}

	cfg = loaded
	shutdownTracing = shutdown
	logger.G(cmd.Context()).WithField("config_file", viper.ConfigFileUsed()).Debug("configuration loaded")
	return nil
}

// execute runs the command tree and flushes tracing, also when the command
// failed.
func execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)

	if shutdownTracing != nil {
		if shutdownErr := shutdownTracing(context.WithoutCancel(ctx)); shutdownErr != nil {
			logger.G(ctx).WithError(shutdownErr).Warn("failed to flush traces")
		}
		shutdownTracing = nil
	}
	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := execute(ctx)
	cancel()

	if err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}
