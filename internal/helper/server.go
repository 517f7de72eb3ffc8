// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package helper implements the privileged side of the command bridge. It
// runs as a separate, elevated process, verifies every request against the
// caller's public key and executes programs and block copies on its behalf.
package helper

import (
	"context"
	"crypto/rsa"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stratastor/logger"
	"github.com/stratastor/partd/internal/command"
	"github.com/stratastor/partd/internal/rpc"
	"github.com/stratastor/partd/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

const (
	DefaultMaxOutputBytes = 10 * 1024 * 1024
	DefaultChunkSize      = 10 * 1024 * 1024

	// Largest output cap whose base64 form still fits the caller's
	// receive limit
	MaxOutputBytesLimit = 16 * 1024 * 1024
)

// State of the helper's serving loop
type State int32

const (
	StateNotRunning State = iota
	StateStarting
	StateReady
	StateExecuting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotRunning:
		return "not-running"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Config struct {
	MaxOutputBytes int
	ChunkSize      int64
}

// Server is the privileged helper
type Server struct {
	logger logger.Logger
	pub    *rsa.PublicKey
	cfg    Config

	// mu serializes requests and guards lastCounter
	mu          sync.Mutex
	lastCounter uint64

	state     atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once
	stopOnce  sync.Once
	grpc      *grpc.Server
}

// NewServer creates a helper that trusts requests signed for pub
func NewServer(l logger.Logger, pub *rsa.PublicKey, cfg Config) *Server {
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.MaxOutputBytes > MaxOutputBytesLimit {
		cfg.MaxOutputBytes = MaxOutputBytesLimit
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	gs := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	return &Server{
		logger: l,
		pub:    pub,
		cfg:    cfg,
		ready:  make(chan struct{}),
		grpc:   gs,
	}
}

// Ready is closed once the helper is registered and accepting requests
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func (s *Server) State() State {
	return State(s.state.Load())
}

// Serve registers the service on lis and blocks until the helper stops
func (s *Server) Serve(lis net.Listener) error {
	if !s.state.CompareAndSwap(int32(StateNotRunning), int32(StateStarting)) {
		return errors.New(errors.HelperStartFailed, "helper already started")
	}

	rpc.RegisterHelperServer(s.grpc, s)
	s.state.Store(int32(StateReady))
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("Privileged helper ready", "addr", lis.Addr().String())

	err := s.grpc.Serve(lis)
	s.state.Store(int32(StateStopped))
	if err != nil && err != grpc.ErrServerStopped {
		return errors.Wrap(err, errors.TransportUnavailable)
	}
	return nil
}

// Stop unregisters the service and waits for in-flight requests
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Privileged helper stopping")
		s.grpc.GracefulStop()
		s.state.Store(int32(StateStopped))
	})
}

// accept verifies a request. Callers must hold s.mu.
func (s *Server) accept(method string, counter uint64, digest, sig []byte) error {
	if counter <= s.lastCounter {
		s.logger.Warn("Rejected replayed request",
			"method", method,
			"counter", counter,
			"last", s.lastCounter)
		return errors.New(errors.AuthenticationFailure, "replayed request counter").
			WithMetadata("method", method)
	}
	if err := rpc.Verify(s.pub, digest, sig); err != nil {
		s.logger.Warn("Rejected request with bad signature",
			"method", method,
			"counter", counter)
		return err
	}
	s.lastCounter = counter
	return nil
}

func (s *Server) executing() func() {
	s.state.Store(int32(StateExecuting))
	return func() {
		s.state.CompareAndSwap(int32(StateExecuting), int32(StateReady))
	}
}

func (s *Server) Start(req *rpc.StartRequest, stream rpc.EventSender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.accept("Start", req.Counter, rpc.StartDigest(req), req.Signature); err != nil {
		return err
	}

	creq, err := command.NewRequest(req.Program, req.Args, req.Input, command.Mode(req.Mode))
	if err != nil {
		return err
	}

	defer s.executing()()
	s.logger.Debug("Executing privileged command", "cmd", creq.CommandLine(), "mode", creq.Mode().String())

	res, err := runProgram(stream.Context(), creq, s.cfg.MaxOutputBytes, stream.Send)
	if err != nil {
		s.logger.Error("Privileged command failed to start", "cmd", creq.CommandLine(), "err", err)
		return err
	}
	return stream.Send(rpc.Completed(res))
}

func (s *Server) CopyBlocks(req *rpc.CopyBlocksRequest, stream rpc.EventSender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.accept("CopyBlocks", req.Counter, rpc.CopyBlocksDigest(req), req.Signature); err != nil {
		return err
	}

	defer s.executing()()
	chunk := req.ChunkSize
	if chunk <= 0 {
		chunk = s.cfg.ChunkSize
	}

	err := copyBlocks(stream.Context(), blockCopy{
		sourcePath:   req.SourcePath,
		sourceOffset: req.SourceOffset,
		length:       req.Length,
		targetPath:   req.TargetPath,
		targetOffset: req.TargetOffset,
		chunkSize:    chunk,
	}, stream.Send)
	if err != nil {
		s.logger.Error("Block copy failed",
			"source", req.SourcePath,
			"target", req.TargetPath,
			"err", err)
		return err
	}
	return stream.Send(rpc.Completed(&rpc.Result{Success: true}))
}

func (s *Server) Exit(ctx context.Context, req *rpc.ExitRequest) (*rpc.ExitReply, error) {
	s.mu.Lock()
	err := s.accept("Exit", req.Counter, rpc.ExitDigest(req), req.Signature)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// GracefulStop waits for this handler, so it cannot run inline
	go s.Stop()
	return &rpc.ExitReply{Stopping: true}, nil
}
