// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"context"
	"fmt"

	"github.com/stratastor/logger"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/report"
)

// Stack is the ordered list of operations of a session. It is not safe for
// concurrent use; operations on the same devices are applied one at a time.
type Stack struct {
	logger logger.Logger
	ops    []Operation
}

func NewStack(l logger.Logger) *Stack {
	return &Stack{logger: l}
}

// conflict returns the queued operation whose targets overlap op's
func (s *Stack) conflict(op Operation) Operation {
	for _, queued := range s.ops {
		if queued.State() != StatePreviewed {
			continue
		}
		for _, a := range queued.Targets() {
			for _, b := range op.Targets() {
				if a.Overlaps(b) {
					return queued
				}
			}
		}
	}
	return nil
}

// Push previews op and queues it. It fails if op touches a region that an
// operation still waiting for execution also touches.
func (s *Stack) Push(op Operation) error {
	if s.Find(op.ID()) != nil {
		return errors.New(errors.OperationInvalidInput, "operation already queued").
			WithMetadata("operation", op.Description())
	}
	if other := s.conflict(op); other != nil {
		s.logger.Warn("Rejected conflicting operation",
			"operation", op.Description(),
			"conflicts_with", other.Description())
		return errors.New(errors.ConflictingTargets,
			fmt.Sprintf("%q overlaps queued %q", op.Description(), other.Description())).
			WithMetadata("operation", op.Description()).
			WithMetadata("conflicts_with", other.Description())
	}
	if err := op.Preview(); err != nil {
		return err
	}
	s.ops = append(s.ops, op)
	s.logger.Debug("Queued operation", "operation", op.Description(), "id", op.ID())
	return nil
}

// ExecuteAll executes the pending operations in queue order and stops at
// the first failure. Later operations stay queued.
func (s *Stack) ExecuteAll(ctx context.Context, parent *report.Report) error {
	pending := s.Pending()
	for i, op := range pending {
		if err := op.Execute(ctx, parent); err != nil {
			if parent != nil {
				for _, rest := range pending[i+1:] {
					parent.Line("Not executed: %s", rest.Description())
				}
			}
			return err
		}
	}
	return nil
}

// Remove drops op from the stack. A previewed operation has its preview
// reverted; an executed one must be undone first.
func (s *Stack) Remove(op Operation) error {
	idx := s.index(op.ID())
	if idx < 0 {
		return errors.New(errors.NotFoundError, "operation not queued").
			WithMetadata("operation", op.Description())
	}
	switch op.State() {
	case StateExecuted:
		return errors.New(errors.OperationInvalidState, "undo an executed operation before removing it").
			WithMetadata("operation", op.Description())
	case StatePreviewed:
		if err := op.Undo(context.Background(), nil); err != nil {
			return err
		}
	}
	s.ops = append(s.ops[:idx], s.ops[idx+1:]...)
	return nil
}

// Clear reverts every pending preview, newest first, and empties the stack.
// Executed operations are left as they are on disk.
func (s *Stack) Clear() {
	for i := len(s.ops) - 1; i >= 0; i-- {
		if s.ops[i].State() == StatePreviewed {
			s.ops[i].Undo(context.Background(), nil)
		}
	}
	s.ops = nil
}

func (s *Stack) index(id string) int {
	for i, op := range s.ops {
		if op.ID() == id {
			return i
		}
	}
	return -1
}

func (s *Stack) Find(id string) Operation {
	if i := s.index(id); i >= 0 {
		return s.ops[i]
	}
	return nil
}

// Operations returns all operations in queue order
func (s *Stack) Operations() []Operation {
	return append([]Operation(nil), s.ops...)
}

// Pending returns the operations still waiting for execution
func (s *Stack) Pending() []Operation {
	var out []Operation
	for _, op := range s.ops {
		if op.State() == StatePreviewed {
			out = append(out, op)
		}
	}
	return out
}

func (s *Stack) Len() int {
	return len(s.ops)
}
