// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package rpc defines the wire contract between the unprivileged caller and
// the privileged helper: messages, codec, service descriptor and the request
// signing scheme.
package rpc

// StartRequest asks the helper to run one program
type StartRequest struct {
	Signature []byte   `json:"signature"`
	Counter   uint64   `json:"counter"`
	Program   string   `json:"program"`
	Args      []string `json:"args"`
	Input     []byte   `json:"input,omitempty"`
	Mode      uint8    `json:"mode"`
}

// CopyBlocksRequest asks the helper to copy a byte range between devices
type CopyBlocksRequest struct {
	Signature    []byte `json:"signature"`
	Counter      uint64 `json:"counter"`
	SourcePath   string `json:"source_path"`
	SourceOffset int64  `json:"source_offset"`
	Length       int64  `json:"length"`
	TargetPath   string `json:"target_path"`
	TargetOffset int64  `json:"target_offset"`
	ChunkSize    int64  `json:"chunk_size"`
}

// ExitRequest asks the helper to shut down
type ExitRequest struct {
	Signature []byte `json:"signature"`
	Counter   uint64 `json:"counter"`
}

type ExitReply struct {
	Stopping bool `json:"stopping"`
}

// EventKind tags the payload of an Event
type EventKind string

const (
	EventReportLine EventKind = "report_line"
	EventProgress   EventKind = "progress"
	EventCompleted  EventKind = "completed"
)

// Event is one message on a Start or CopyBlocks stream. A stream carries
// any number of report lines and progress events and ends with exactly one
// completed event.
type Event struct {
	Kind    EventKind `json:"kind"`
	Line    string    `json:"line,omitempty"`
	Percent int       `json:"percent,omitempty"`
	Result  *Result   `json:"result,omitempty"`
}

// Result is the payload of a completed event
type Result struct {
	Output   []byte `json:"output,omitempty"`
	ExitCode int    `json:"exit_code"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

func ReportLine(line string) *Event {
	return &Event{Kind: EventReportLine, Line: line}
}

func Progress(percent int) *Event {
	return &Event{Kind: EventProgress, Percent: percent}
}

func Completed(res *Result) *Event {
	return &Event{Kind: EventCompleted, Result: res}
}
