package app

import "time"

// Operation tracks one CLI command for the log. Its ID tags every log line
// the command writes.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Status     string // "success" or "error"
	Started    time.Time
}

// NewOperation creates an operation that started at now.
func NewOperation(name, parameters string, now time.Time) *Operation {
	return &Operation{
		ID:         now.UTC().Format("20060102T150405Z"),
		Name:       name,
		Parameters: parameters,
		Status:     "success",
		Started:    now,
	}
}

// Fail marks the operation as failed when err is non-nil.
func (op *Operation) Fail(err error) {
	if err != nil {
		op.Status = "error"
	}
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed(now time.Time) time.Duration {
	return now.Sub(op.Started)
}
