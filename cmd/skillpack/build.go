package main

import (
	"context"
	"fmt"

	"github.com/jingkaihe/skillpack/pkg/archive"
	"github.com/jingkaihe/skillpack/pkg/batch"
	"github.com/jingkaihe/skillpack/pkg/config"
	"github.com/jingkaihe/skillpack/pkg/convert"
	"github.com/jingkaihe/skillpack/pkg/presenter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Convert every skill and pack the results into zip archives",
	Long: `Convert every SKILL.md below the source directory into <output>/<name>/Skill.md,
then pack each converted skill into <archive>/<name>.zip.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		reports, err := runBuild(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return exitStatus(reports...)
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert skills into the packaged Skill.md layout",
	Long: `Convert every SKILL.md below the source directory into <output>/<name>/Skill.md.

With --dry-run nothing is written; the planned output of each skill is listed
and, with --diff, shown as a unified diff against its source.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		showDiff, _ := cmd.Flags().GetBool("diff")

		var (
			report *batch.Report
			err    error
		)
		if showDiff && !dryRun {
			presenter.Warning("--diff implies --dry-run, nothing will be written")
		}
		if dryRun || showDiff {
			report, err = runDryRun(cmd.Context(), cfg, cmd.OutOrStdout(), showDiff)
		} else {
			report, err = runConvert(cmd.Context(), cfg)
		}
		if err != nil {
			return err
		}
		return exitStatus(report)
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Pack converted skills into zip archives",
	Long:  `Pack every directory below the output directory into <archive>/<name>.zip.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := runArchive(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return exitStatus(report)
	},
}

func init() {
	convertCmd.Flags().Bool("dry-run", false, "Show what would be written without touching the output directory")
	convertCmd.Flags().Bool("diff", false, "Print a unified diff between each source and its converted output (implies --dry-run)")
}

func runBuild(ctx context.Context, c *config.Config) ([]*batch.Report, error) {
	converted, err := runConvert(ctx, c)
	if err != nil {
		return nil, err
	}

	archived, err := runArchive(ctx, c)
	if err != nil {
		return []*batch.Report{converted}, err
	}

	return []*batch.Report{converted, archived}, nil
}

func runConvert(ctx context.Context, c *config.Config) (*batch.Report, error) {
	converter, err := convert.New(c)
	if err != nil {
		return nil, err
	}

	report, err := converter.Run(ctx)
	if err != nil {
		return report, errors.Wrap(err, "conversion failed")
	}

	if report.Total() == 0 {
		presenter.Warning(fmt.Sprintf("No skills found in %s", c.SourceDir))
	}
	present(report, "Converted", c.OutputDir)
	return report, nil
}

func runArchive(ctx context.Context, c *config.Config) (*batch.Report, error) {
	report, err := archive.New().PackAll(ctx, c.OutputDir, c.ArchiveDir)
	if err != nil {
		return report, errors.Wrap(err, "archiving failed")
	}

	present(report, "Created", c.ArchiveDir)
	return report, nil
}
