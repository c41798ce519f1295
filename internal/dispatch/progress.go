package dispatch

import (
	"fmt"
	"io"
)

// Percent returns ceil(100 * complete / total).
func Percent(complete, total int) int {
	if total <= 0 {
		return 100
	}
	if complete <= 0 {
		return 0
	}
	return (100*complete + total - 1) / total
}

// FormatProgress renders one progress line, e.g. "complete 34% (1 of 3)".
func FormatProgress(complete, total int) string {
	return fmt.Sprintf("complete %d%% (%d of %d)", Percent(complete, total), complete, total)
}

// ProgressReporter prints one line per report.
type ProgressReporter struct {
	w io.Writer
}

func NewProgressReporter(w io.Writer) *ProgressReporter {
	return &ProgressReporter{w: w}
}

func (p *ProgressReporter) Report(complete, total int) {
	if p == nil || p.w == nil {
		return
	}
	_, _ = fmt.Fprintln(p.w, FormatProgress(complete, total))
}
