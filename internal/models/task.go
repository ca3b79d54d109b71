// Package models defines data structures for the docforge client.
package models

import (
	"encoding/json"
	"fmt"
)

// TaskStatus is the lifecycle state of a conversion task as reported by the
// server. It is a closed enumeration: decoding any other string fails rather
// than silently mapping to a default.
type TaskStatus int

const (
	StatusPending TaskStatus = iota
	StatusInProgress
	StatusSuccess
	StatusFailed
)

// statusNames maps each status to its wire representation.
var statusNames = map[TaskStatus]string{
	StatusPending:    "pending",
	StatusInProgress: "in_progress",
	StatusSuccess:    "success",
	StatusFailed:     "failed",
}

// ParseTaskStatus converts a wire string into a TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	return StatusPending, fmt.Errorf("unknown task status %q", s)
}

func (s TaskStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TaskStatus(%d)", int(s))
}

// IsTerminal reports whether no further transitions can occur.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// rank orders statuses along the allowed transition path
// pending -> in_progress -> {success|failed}.
func (s TaskStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	default:
		return 2
	}
}

// CanTransitionTo reports whether moving from s to next is legal.
// Terminal states absorb: nothing leaves success or failed. A direct
// pending -> failed (or pending -> success) jump is allowed; the
// in_progress step may simply never be observed between polls.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// MarshalJSON implements json.Marshaler.
func (s TaskStatus) MarshalJSON() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("cannot marshal task status %d", int(s))
	}
	return json.Marshal(name)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("task status must be a string: %w", err)
	}
	parsed, err := ParseTaskStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TaskResult carries the structured payload attached to a task once the
// server has something to report. All fields are optional on the wire.
type TaskResult struct {
	OutputFileURL  string   `json:"output_file_url,omitempty"`
	Message        string   `json:"message,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	SourceFilename string   `json:"source_filename,omitempty"`
}

// Task is one server-tracked conversion request. The ID is assigned by the
// server on upload and is immutable; Status and Result are advanced only by
// poll merges into the registry.
type Task struct {
	ID     string      `json:"id"`
	Status TaskStatus  `json:"status"`
	Result *TaskResult `json:"result,omitempty"`
}

// TaskCreated is the server response to a successful upload submission.
// The original service replies 202 with {id, message}; only the id is
// load-bearing for the client.
type TaskCreated struct {
	ID      string `json:"id"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}
