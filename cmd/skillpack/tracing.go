package main

import (
	"context"

	"github.com/jingkaihe/skillpack/pkg/config"
	"github.com/jingkaihe/skillpack/pkg/telemetry"
	"github.com/jingkaihe/skillpack/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
)

func initTracing(ctx context.Context, c *config.Config) (telemetry.ShutdownFunc, error) {
	return telemetry.InitTracer(ctx, telemetry.Config{
		Enabled:        c.Tracing.Enabled,
		ServiceName:    telemetry.DefaultServiceName,
		ServiceVersion: version.Get().Version,
		SamplerType:    c.Tracing.Sampler,
		SamplerRatio:   c.Tracing.Ratio,
	})
}

// withTracing wraps a command so that each invocation runs inside a
// "cli.command" span carrying the command path and the flags that were set.
func withTracing(cmd *cobra.Command) *cobra.Command {
	run := cmd.RunE

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		attrs := []attribute.KeyValue{
			attribute.String("command.name", cmd.Name()),
			attribute.String("command.path", cmd.CommandPath()),
			attribute.Int("args.count", len(args)),
		}
		cmd.Flags().Visit(func(flag *pflag.Flag) {
			attrs = append(attrs, attribute.String("flag."+flag.Name, flag.Value.String()))
		})

		return telemetry.WithSpan(cmd.Context(), "cli.command", func(ctx context.Context) error {
			cmd.SetContext(ctx)
			return run(cmd, args)
		}, attrs...)
	}

	return cmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Bool("tracing-enabled", false, "Enable OpenTelemetry tracing")
	flags.String("tracing-sampler", "ratio", "Tracing sampler type (always, never, ratio)")
	flags.Float64("tracing-ratio", 1, "Sampling ratio when using ratio sampler")

	viper.BindPFlag("tracing.enabled", flags.Lookup("tracing-enabled"))
	viper.BindPFlag("tracing.sampler", flags.Lookup("tracing-sampler"))
	viper.BindPFlag("tracing.ratio", flags.Lookup("tracing-ratio"))
}
