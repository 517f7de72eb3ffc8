// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package privilege implements the caller side of the privileged command
// bridge. It owns the signing session, starts the helper on demand and
// turns helper event streams into report lines, progress and results.
package privilege

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/stratastor/logger"
	"github.com/stratastor/partd/internal/command"
	"github.com/stratastor/partd/internal/rpc"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/report"
)

const (
	// DefaultCallTimeout effectively disables timeouts on privileged calls;
	// storage operations can legitimately run for days.
	DefaultCallTimeout = 10 * 24 * time.Hour
	DefaultChunkSize   = 10 * 1024 * 1024
)

type Config struct {
	CallTimeout time.Duration
	ChunkSize   int64
}

// Bridge issues signed requests to the privileged helper. It implements
// command.Issuer. Calls are serialized: one privileged request at a time.
type Bridge struct {
	logger   logger.Logger
	session  *Session
	launcher Launcher
	cfg      Config

	mu     sync.Mutex
	handle Handle
	client *rpc.HelperClient
}

var _ command.Issuer = (*Bridge)(nil)

func NewBridge(l logger.Logger, session *Session, launcher Launcher, cfg Config) *Bridge {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Bridge{
		logger:   l,
		session:  session,
		launcher: launcher,
		cfg:      cfg,
	}
}

// Running reports whether a helper is currently connected
func (b *Bridge) Running() bool {
	return b.session.Running()
}

// ensureHelper starts the helper if needed. Callers must hold b.mu.
func (b *Bridge) ensureHelper(ctx context.Context) error {
	if b.session.Running() && b.client != nil {
		return nil
	}

	key, err := b.session.Key()
	if err != nil {
		return err
	}

	handle, err := b.launcher.Launch(ctx, &key.PublicKey)
	if err != nil {
		b.logger.Error("Failed to start privileged helper", "err", err)
		return err
	}

	b.handle = handle
	b.client = rpc.NewHelperClient(handle.Conn())
	b.session.setRunning(true)
	b.logger.Debug("Privileged helper connected")
	return nil
}

// dropHelper forgets a helper whose transport failed. Callers must hold b.mu.
func (b *Bridge) dropHelper() {
	if b.handle != nil {
		b.handle.Close()
	}
	b.handle = nil
	b.client = nil
	b.session.setRunning(false)
}

// callContext detaches ctx from cancellation and bounds it by the call
// timeout. An in-flight privileged operation is never abandoned halfway.
func (b *Bridge) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), b.cfg.CallTimeout)
}

func (b *Bridge) sign(digest []byte) ([]byte, error) {
	key, err := b.session.Key()
	if err != nil {
		return nil, err
	}
	return rpc.Sign(key, digest)
}

type delivery struct {
	event *rpc.Event
	err   error
}

// events turns a helper stream into a channel that is closed after the
// stream ends
func events(stream rpc.EventStream) <-chan delivery {
	ch := make(chan delivery)
	go func() {
		defer close(ch)
		for {
			ev, err := stream.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				ch <- delivery{err: err}
				return
			}
			ch <- delivery{event: ev}
		}
	}()
	return ch
}

// consume delivers report lines and progress until the stream ends and
// returns the completion payload
func (b *Bridge) consume(stream rpc.EventStream, rep *report.Report, progress command.ProgressFunc) (*rpc.Result, error) {
	var (
		result *rpc.Result
		err    error
	)
	for d := range events(stream) {
		if d.err != nil {
			err = d.err
			continue
		}
		switch d.event.Kind {
		case rpc.EventReportLine:
			if rep != nil {
				rep.Line("%s", d.event.Line)
			}
		case rpc.EventProgress:
			if progress != nil {
				progress(d.event.Percent)
			}
		case rpc.EventCompleted:
			result = d.event.Result
		}
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New(errors.TransportUnavailable, "helper stream ended without completion")
	}
	return result, nil
}

// translate maps a transport error and drops the helper when it is gone
func (b *Bridge) translate(err error) error {
	perr := errors.FromGRPC(err)
	if errors.IsCode(perr, errors.TransportUnavailable) {
		b.logger.Warn("Privileged helper unreachable", "err", err)
		b.dropHelper()
	}
	return perr
}

func (b *Bridge) Issue(ctx context.Context, req command.Request, rep *report.Report) (command.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureHelper(ctx); err != nil {
		return command.Result{}, err
	}

	msg := &rpc.StartRequest{
		Counter: b.session.Next(),
		Program: req.Program(),
		Args:    req.Args(),
		Input:   req.Input(),
		Mode:    uint8(req.Mode()),
	}
	sig, err := b.sign(rpc.StartDigest(msg))
	if err != nil {
		return command.Result{}, err
	}
	msg.Signature = sig

	cctx, cancel := b.callContext(ctx)
	defer cancel()

	b.logger.Debug("Issuing privileged command", "cmd", req.CommandLine(), "counter", msg.Counter)
	stream, err := b.client.Start(cctx, msg)
	if err != nil {
		return command.Result{}, b.translate(err)
	}
	res, err := b.consume(stream, rep, nil)
	if err != nil {
		return command.Result{}, b.translate(err)
	}
	if !res.Success && res.Error != "" && rep != nil {
		rep.Line("%s", res.Error)
	}

	return command.Result{
		Output:   res.Output,
		ExitCode: res.ExitCode,
		Success:  res.Success,
	}, nil
}

func (b *Bridge) CopyBlocks(
	ctx context.Context,
	src, dst command.BlockRange,
	rep *report.Report,
	progress command.ProgressFunc,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureHelper(ctx); err != nil {
		return err
	}

	msg := &rpc.CopyBlocksRequest{
		Counter:      b.session.Next(),
		SourcePath:   src.Path,
		SourceOffset: src.Offset,
		Length:       src.Length,
		TargetPath:   dst.Path,
		TargetOffset: dst.Offset,
		ChunkSize:    b.cfg.ChunkSize,
	}
	sig, err := b.sign(rpc.CopyBlocksDigest(msg))
	if err != nil {
		return err
	}
	msg.Signature = sig

	cctx, cancel := b.callContext(ctx)
	defer cancel()

	stream, err := b.client.CopyBlocks(cctx, msg)
	if err != nil {
		return b.translate(err)
	}
	res, err := b.consume(stream, rep, progress)
	if err != nil {
		err = b.translate(err)
		if errors.IsCode(err, errors.ProcessFailure) {
			return errors.Wrap(err, errors.CopyFailed)
		}
		return err
	}
	if !res.Success {
		return errors.New(errors.CopyFailed, res.Error)
	}
	return nil
}

// StopHelper asks the helper to exit and releases the session key. It is a
// no-op when no helper is running.
func (b *Bridge) StopHelper(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		b.session.Close()
		return nil
	}

	msg := &rpc.ExitRequest{Counter: b.session.Next()}
	sig, err := b.sign(rpc.ExitDigest(msg))
	if err != nil {
		return err
	}
	msg.Signature = sig

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	_, err = b.client.Exit(cctx, msg)
	if err != nil {
		err = errors.FromGRPC(err)
		b.logger.Warn("Privileged helper did not acknowledge exit", "err", err)
	}

	b.dropHelper()
	b.session.Close()
	return err
}
