package app

import (
	"strings"
	"time"
)

// Operation identifies the CLI command being run. Its ID tags every log
// line and its Reason is recorded with the snapshots the command causes.
type Operation struct {
	ID         string // UTC start time, e.g. 20240115T103000Z
	Name       string
	Parameters string
}

// NewOperation creates an Operation started at now.
func NewOperation(name, parameters string, now time.Time) *Operation {
	return &Operation{
		ID:         now.UTC().Format("20060102T150405Z"),
		Name:       name,
		Parameters: parameters,
	}
}

// Reason returns the backup reason for the operation, "Name parameters".
func (op *Operation) Reason() string {
	return strings.TrimSpace(op.Name + " " + op.Parameters)
}
