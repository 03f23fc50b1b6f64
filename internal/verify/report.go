package verify

import (
	"fmt"
	"io"
	"time"

	"github.com/uzulab/drydock/internal/model"
)

// Check is the result of one verification probe.
type Check struct {
	// Name identifies the probe, e.g. "image-user" or "tcp-ready".
	Name string `json:"name"`

	// OK reports whether the probe passed.
	OK bool `json:"ok"`

	// Detail explains a failure. Empty on success.
	Detail string `json:"detail,omitempty"`
}

// Report collects the checks of one variant's verification.
type Report struct {
	Variant  string  `json:"variant"`
	ImageTag string  `json:"imageTag"`
	RunID    string  `json:"runId,omitempty"`
	Checks   []Check `json:"checks"`

	// Status is VerifyRunning while the gates execute and settles to
	// VerifyPassed or VerifyFailed when the report is final.
	Status model.VerifyStatus `json:"status"`

	// Duration is the wall time of the verification. JSON consumers
	// receive nanoseconds, the stdlib encoding of time.Duration.
	Duration time.Duration `json:"duration"`
}

// Passed reports whether every check in the report succeeded.
func (r Report) Passed() bool {
	for _, check := range r.Checks {
		if !check.OK {
			return false
		}
	}
	return true
}

// FailedChecks returns the checks that did not pass.
func (r Report) FailedChecks() []Check {
	var failed []Check
	for _, check := range r.Checks {
		if !check.OK {
			failed = append(failed, check)
		}
	}
	return failed
}

// Summary aggregates the reports of one verify invocation.
type Summary struct {
	App     string   `json:"app"`
	Reports []Report `json:"reports"`
	Passed  bool     `json:"passed"`
}

// NewSummary builds a Summary over the given reports. Passed is true
// only when every report passed; an empty report list passes.
func NewSummary(app string, reports []Report) Summary {
	summary := Summary{App: app, Reports: reports, Passed: true}
	for _, report := range reports {
		if !report.Passed() {
			summary.Passed = false
			break
		}
	}
	return summary
}

// WriteText renders the summary for terminal output: one block per
// variant with a status line per check, then a pass count.
func (s Summary) WriteText(w io.Writer) {
	for _, report := range s.Reports {
		fmt.Fprintf(w, "%s (%s)\n", report.Variant, report.ImageTag)

		for _, check := range report.Checks {
			status := "ok"
			if !check.OK {
				status = "FAIL"
			}
			line := fmt.Sprintf("  %-4s  %s", status, check.Name)
			if check.Detail != "" {
				line = fmt.Sprintf("%s: %s", line, check.Detail)
			}
			fmt.Fprintln(w, line)
		}

		result := "passed"
		if !report.Passed() {
			result = "FAILED"
		}
		fmt.Fprintf(w, "  %s in %s\n\n", result, report.Duration.Round(time.Millisecond))
	}

	passed := 0
	for _, report := range s.Reports {
		if report.Passed() {
			passed++
		}
	}
	fmt.Fprintf(w, "%d of %d variant(s) passed\n", passed, len(s.Reports))
}
