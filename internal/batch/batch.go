// Package batch holds the outcome counters shared by every batch operation.
package batch

import "fmt"

// MaxErrors bounds the number of error messages kept in a Result.
const MaxErrors = 50

// Result counts what a batch operation did. Per-item failures never abort
// the batch; they are counted as skipped and described in Errors.
type Result struct {
	Created         int      `json:"created"`
	Updated         int      `json:"updated"`
	Skipped         int      `json:"skipped"`
	Errors          []string `json:"errors,omitempty"`
	ErrorsTruncated int      `json:"errors_truncated,omitempty"`
}

// Fail records a failed item.
func (r *Result) Fail(item any, err error) {
	r.Skipped++
	r.addError(fmt.Sprintf("%v: %v", item, err))
}

func (r *Result) addError(msg string) {
	if len(r.Errors) >= MaxErrors {
		r.ErrorsTruncated++
		return
	}

	r.Errors = append(r.Errors, msg)
}
