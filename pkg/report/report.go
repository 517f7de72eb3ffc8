// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package report provides the hierarchical, append-only audit log that
// operations, jobs and privileged commands write into.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Report is one node of the report tree. Lines and children are only ever
// appended; there is no API to remove or reorder them.
type Report struct {
	mu       sync.Mutex
	parent   *Report
	title    string
	command  string
	status   string
	lines    []string
	children []*Report
	created  time.Time

	// partial holds an unterminated line written through Write
	partial []byte
}

// Node is a detached, read-only copy of a report subtree
type Node struct {
	Title    string    `json:"title,omitempty" yaml:"title,omitempty"`
	Command  string    `json:"command,omitempty" yaml:"command,omitempty"`
	Status   string    `json:"status,omitempty" yaml:"status,omitempty"`
	Lines    []string  `json:"lines,omitempty" yaml:"lines,omitempty"`
	Children []Node    `json:"children,omitempty" yaml:"children,omitempty"`
	Created  time.Time `json:"created" yaml:"created"`
}

// New creates a root report. The caller owns it.
func New(title string) *Report {
	return &Report{title: title, created: time.Now()}
}

// NewChild creates and appends a child node owned by r
func (r *Report) NewChild(title string) *Report {
	child := &Report{parent: r, title: title, created: time.Now()}

	r.mu.Lock()
	r.children = append(r.children, child)
	r.mu.Unlock()

	return child
}

// Line appends one formatted line. Embedded newlines produce several lines.
func (r *Report) Line(format string, args ...interface{}) {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, strings.Split(strings.TrimRight(text, "\n"), "\n")...)
}

// Write implements io.Writer for streaming command output into the report.
// Complete lines are appended immediately; a trailing partial line is held
// until the next newline or Flush.
func (r *Report) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.partial = append(r.partial, p...)
	for {
		idx := bytes.IndexByte(r.partial, '\n')
		if idx < 0 {
			break
		}
		r.lines = append(r.lines, strings.TrimRight(string(r.partial[:idx]), "\r"))
		r.partial = r.partial[idx+1:]
	}
	return len(p), nil
}

// Flush appends any pending partial line written through Write
func (r *Report) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.partial) > 0 {
		r.lines = append(r.lines, string(r.partial))
		r.partial = nil
	}
}

// SetCommand records the command line this node reports on
func (r *Report) SetCommand(cmd string) {
	r.mu.Lock()
	r.command = cmd
	r.mu.Unlock()
}

// SetStatus records the final status of the step this node reports on
func (r *Report) SetStatus(status string) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
}

func (r *Report) Title() string {
	return r.title
}

func (r *Report) Parent() *Report {
	return r.parent
}

func (r *Report) Command() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.command
}

func (r *Report) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Lines returns a copy of the lines of this node
func (r *Report) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Children returns a copy of the child list of this node
func (r *Report) Children() []*Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Report, len(r.children))
	copy(out, r.children)
	return out
}

// Snapshot returns a detached copy of the subtree rooted at r
func (r *Report) Snapshot() Node {
	r.mu.Lock()
	node := Node{
		Title:   r.title,
		Command: r.command,
		Status:  r.status,
		Lines:   append([]string(nil), r.lines...),
		Created: r.created,
	}
	children := append([]*Report(nil), r.children...)
	r.mu.Unlock()

	for _, c := range children {
		node.Children = append(node.Children, c.Snapshot())
	}
	return node
}

// Contains reports whether any line in the subtree contains substr
func (r *Report) Contains(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	for _, c := range r.Children() {
		if c.Contains(substr) {
			return true
		}
	}
	return false
}

// String renders the subtree as indented plain text
func (r *Report) String() string {
	var b strings.Builder
	r.Snapshot().render(&b, 0)
	return b.String()
}

func (n Node) render(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	if n.Title != "" {
		b.WriteString(indent + n.Title + "\n")
	}
	if n.Command != "" {
		b.WriteString(indent + "  $ " + n.Command + "\n")
	}
	for _, l := range n.Lines {
		b.WriteString(indent + "  " + l + "\n")
	}
	for _, c := range n.Children {
		c.render(b, depth+1)
	}
	if n.Status != "" {
		b.WriteString(indent + "  => " + n.Status + "\n")
	}
}
