// Package batch records the outcome of a run over many independent items.
// A failed item never stops the run; it is recorded and the run moves on.
package batch

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Failure is one item that could not be processed.
type Failure struct {
	Subject string `json:"subject"`
	Err     error  `json:"-"`
}

// Message returns the failure's error text.
func (f Failure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// Report collects successes and failures for one stage of a run.
type Report struct {
	Stage     string
	Succeeded []string
	Failures  []Failure
}

// NewReport creates an empty report for the named stage.
func NewReport(stage string) *Report {
	return &Report{Stage: stage}
}

// Succeed records a processed item.
func (r *Report) Succeed(subject string) {
	r.Succeeded = append(r.Succeeded, subject)
}

// Fail records an item that could not be processed.
func (r *Report) Fail(subject string, err error) {
	r.Failures = append(r.Failures, Failure{Subject: subject, Err: err})
}

// Total returns the number of items seen.
func (r *Report) Total() int {
	return len(r.Succeeded) + len(r.Failures)
}

// Failed reports whether any item failed.
func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

// Err aggregates every failure into one error, or returns nil.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, f := range r.Failures {
		result = multierror.Append(result, errors.Wrap(f.Err, f.Subject))
	}
	return result.ErrorOrNil()
}

// Merge combines reports from several stages into a single error, or nil.
func Merge(reports ...*Report) error {
	var result *multierror.Error
	for _, r := range reports {
		if r == nil {
			continue
		}
		if err := r.Err(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, r.Stage))
		}
	}
	return result.ErrorOrNil()
}
