// Package diag carries non-fatal diagnostics out of batch operations. Skipped
// rows and missing data points are recorded here and surfaced to the caller
// instead of being printed or silently dropped.
package diag

import "fmt"

type Level string

const (
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

type Note struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Report accumulates ordered notes for one operation. The zero value is ready
// to use and reports success.
type Report struct {
	notes []Note
}

func (r *Report) Warnf(format string, args ...any) {
	r.notes = append(r.notes, Note{Level: LevelWarn, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) Errorf(format string, args ...any) {
	r.notes = append(r.notes, Note{Level: LevelError, Message: fmt.Sprintf(format, args...)})
}

// Merge appends another report's notes, keeping their order.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.notes = append(r.notes, other.notes...)
}

// Notes returns the collected notes in the order they were recorded.
func (r *Report) Notes() []Note {
	return r.notes
}

// Success is false once any error-level note has been recorded. Warnings do
// not fail an operation.
func (r *Report) Success() bool {
	for _, n := range r.notes {
		if n.Level == LevelError {
			return false
		}
	}
	return true
}
