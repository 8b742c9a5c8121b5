package main

import (
	"fmt"

	"github.com/jingkaihe/skillpack/pkg/batch"
	"github.com/jingkaihe/skillpack/pkg/presenter"
	"github.com/spf13/viper"
)

// present prints one line per item followed by the stage summary.
func present(report *batch.Report, verb, location string) {
	for _, name := range report.Succeeded {
		presenter.Success(fmt.Sprintf("%s: %s", verb, name))
	}
	for _, f := range report.Failures {
		presenter.Failure(f.Subject, f.Err)
	}
	presenter.Summary(report, location)
}

// exitStatus turns item failures into a command error when --fail-on-error
// is set. Without it a run that reached the summary always succeeds.
func exitStatus(reports ...*batch.Report) error {
	if !viper.GetBool("fail_on_error") {
		return nil
	}
	return batch.Merge(reports...)
}
