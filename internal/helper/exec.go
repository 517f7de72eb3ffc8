// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/stratastor/partd/internal/command"
	"github.com/stratastor/partd/internal/rpc"
	"github.com/stratastor/partd/pkg/errors"
)

const (
	tooMuchOutput = "(Command is printing too much output)"

	readChunkBytes = 32 * 1024
	// Longest report line sent in one event; longer lines are split
	maxLineBytes = 64 * 1024
)

// outputSink accumulates raw program output and streams it to the caller
// as report lines. Every byte read from either pipe counts against limit;
// only captured pipes land in buf.
type outputSink struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int
	seen     int
	overflow bool
	send     func(*rpc.Event) error
	sendErr  error
}

// write takes one chunk from a pipe. pending holds that pipe's unterminated
// line between calls.
func (o *outputSink) write(p []byte, capture bool, pending *[]byte) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.overflow {
		return
	}
	if room := o.limit - o.seen; len(p) > room {
		p = p[:room]
		o.overflow = true
	}
	o.seen += len(p)
	if capture {
		o.buf.Write(p)
	}

	rest := append(*pending, p...)
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		o.emit(rest[:i])
		rest = rest[i+1:]
	}
	for len(rest) >= maxLineBytes {
		o.emit(rest[:maxLineBytes])
		rest = rest[maxLineBytes:]
	}

	if o.overflow {
		if len(rest) > 0 {
			o.emit(rest)
		}
		o.emitText(tooMuchOutput)
		rest = nil
	}
	*pending = append((*pending)[:0], rest...)
}

// flush reports the last unterminated line of a pipe
func (o *outputSink) flush(pending []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.overflow || len(pending) == 0 {
		return
	}
	o.emit(pending)
}

// emit sends one line without its terminator. Callers must hold o.mu.
func (o *outputSink) emit(line []byte) {
	o.emitText(string(bytes.TrimSuffix(line, []byte{'\r'})))
}

func (o *outputSink) emitText(text string) {
	if o.sendErr != nil {
		return
	}
	o.sendErr = o.send(rpc.ReportLine(text))
}

func (o *outputSink) drain(r io.Reader, capture bool, wg *sync.WaitGroup) {
	defer wg.Done()
	var pending []byte
	chunk := make([]byte, readChunkBytes)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			o.write(chunk[:n], capture, &pending)
		}
		if err != nil {
			o.flush(pending)
			return
		}
	}
}

// runProgram executes req and streams its output through send. A non-nil
// error means the program could not be started at all.
func runProgram(
	ctx context.Context,
	req command.Request,
	limit int,
	send func(*rpc.Event) error,
) (*rpc.Result, error) {
	cmd := exec.CommandContext(ctx, req.Program(), req.Args()...)
	cmd.Stdin = bytes.NewReader(req.Input())
	cmd.Env = append(os.Environ(), "LC_ALL=C")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.ProcessFailure)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.ProcessFailure)
	}

	if err := cmd.Start(); err != nil {
		if stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(err, errors.ExecutableNotFound).
				WithMetadata("program", req.Program())
		}
		return nil, errors.Wrap(err, errors.ProcessFailure).
			WithMetadata("program", req.Program())
	}

	sink := &outputSink{limit: limit, send: send}
	var wg sync.WaitGroup
	wg.Add(2)
	go sink.drain(stdout, true, &wg)
	go sink.drain(stderr, req.Mode() == command.MergedChannels, &wg)
	// Pipes must be drained before Wait closes them
	wg.Wait()

	res := &rpc.Result{ExitCode: 0, Success: true}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(err, &exitErr) {
			return nil, errors.Wrap(err, errors.ProcessFailure)
		}
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			// Killed by a signal
			res.Success = false
			res.Error = exitErr.Error()
		}
	}

	sink.mu.Lock()
	res.Output = sink.buf.Bytes()
	sink.mu.Unlock()
	return res, nil
}
