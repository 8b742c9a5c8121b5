package main

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"
	"github.com/jingkaihe/skillpack/pkg/batch"
	"github.com/jingkaihe/skillpack/pkg/config"
	"github.com/jingkaihe/skillpack/pkg/convert"
	"github.com/jingkaihe/skillpack/pkg/presenter"
	"github.com/jingkaihe/skillpack/pkg/skills"
)

// runDryRun lists what a conversion would write. Diffs go to out so they can
// be piped; everything else goes through the presenter.
func runDryRun(ctx context.Context, c *config.Config, out io.Writer, showDiff bool) (*batch.Report, error) {
	converter, err := convert.New(c)
	if err != nil {
		return nil, err
	}

	planned, report, err := converter.Plan(ctx)
	if err != nil {
		return report, err
	}

	presenter.Section("Dry run, nothing is written")
	for i, r := range planned {
		if showDiff && i > 0 {
			presenter.Separator()
		}
		target := filepath.Join(c.OutputDir, r.OutputName, skills.OutputFileName)
		presenter.Info(fmt.Sprintf("%s -> %s", r.Unit.SourcePath, target))

		if showDiff {
			fmt.Fprint(out, udiff.Unified(
				r.Unit.SourcePath,
				path.Join(r.OutputName, skills.OutputFileName),
				r.Original,
				r.Output,
			))
		}
	}
	for _, f := range report.Failures {
		presenter.Failure(f.Subject, f.Err)
	}

	presenter.Summary(report, "")
	return report, nil
}
