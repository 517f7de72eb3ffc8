// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package privilege

import (
	"bufio"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/stratastor/logger"
	"github.com/stratastor/partd/internal/rpc"
	"github.com/stratastor/partd/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// ReadyLine is printed by the helper on stdout once it accepts requests
const ReadyLine = "READY"

// Command output is base64 inside JSON, so replies can be larger than the
// helper's output cap
const maxRecvMsgSize = 32 * 1024 * 1024

// Handle is a connection to a running helper
type Handle interface {
	Conn() grpc.ClientConnInterface
	// Close drops the connection and releases the helper process
	Close() error
}

// Launcher starts a helper that trusts pub
type Launcher interface {
	Launch(ctx context.Context, pub *rsa.PublicKey) (Handle, error)
}

// ProcessLauncher runs the helper as an elevated child process and talks
// to it over a unix socket
type ProcessLauncher struct {
	Logger logger.Logger
	// Elevate is the elevation command line, e.g. "pkexec" or "sudo -n"
	Elevate string
	// Binary is the partd executable; empty means the running one
	Binary       string
	Socket       string
	StartTimeout time.Duration
	// MaxOutputBytes is passed to the helper when set
	MaxOutputBytes int
}

type processHandle struct {
	logger logger.Logger
	conn   *grpc.ClientConn
	cmd    *exec.Cmd
	exited chan error
}

func (h *processHandle) Conn() grpc.ClientConnInterface {
	return h.conn
}

func (h *processHandle) Close() error {
	err := h.conn.Close()
	select {
	case werr := <-h.exited:
		if werr != nil {
			h.logger.Warn("Helper exited with error", "err", werr)
		}
	case <-time.After(5 * time.Second):
		h.logger.Warn("Helper did not exit after disconnect", "pid", h.cmd.Process.Pid)
	}
	return err
}

// helperArgs builds the full command line for the elevated helper
func (l *ProcessLauncher) helperArgs() ([]string, error) {
	elevate, err := shellquote.Split(l.Elevate)
	if err != nil {
		return nil, errors.Wrap(err, errors.ConfigInvalid).
			WithMetadata("elevate", l.Elevate)
	}

	binary := l.Binary
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return nil, errors.Wrap(err, errors.HelperStartFailed)
		}
	}

	args := append(elevate, binary, "helper",
		"--socket", l.Socket,
		"--owner-uid", strconv.Itoa(os.Getuid()))
	if l.MaxOutputBytes > 0 {
		args = append(args, "--max-output-bytes", strconv.Itoa(l.MaxOutputBytes))
	}
	return args, nil
}

func (l *ProcessLauncher) Launch(ctx context.Context, pub *rsa.PublicKey) (Handle, error) {
	args, err := l.helperArgs()
	if err != nil {
		return nil, err
	}
	encoded, err := rpc.EncodePublicKey(pub)
	if err != nil {
		return nil, err
	}

	l.Logger.Info("Starting privileged helper", "cmd", shellquote.Join(args...))

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = strings.NewReader(encoded + "\n")
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.HelperStartFailed)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, errors.HelperStartFailed).
			WithMetadata("cmd", args[0])
	}

	exited := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		sc := bufio.NewScanner(stdout)
		signalled := false
		for sc.Scan() {
			if !signalled && strings.TrimSpace(sc.Text()) == ReadyLine {
				signalled = true
				close(ready)
			}
		}
		io.Copy(io.Discard, stdout)
		exited <- cmd.Wait()
	}()

	timeout := l.StartTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	select {
	case <-ready:
	case werr := <-exited:
		// Usually a dismissed or failed authentication prompt
		return nil, errors.New(errors.HelperStartFailed, fmt.Sprintf("helper exited before ready: %v", werr))
	case <-time.After(timeout):
		cmd.Process.Kill()
		return nil, errors.New(errors.HelperStartFailed, "timed out waiting for helper")
	case <-ctx.Done():
		cmd.Process.Kill()
		return nil, errors.Wrap(ctx.Err(), errors.HelperStartFailed)
	}

	conn, err := Dial("unix://" + l.Socket)
	if err != nil {
		return nil, err
	}
	return &processHandle{logger: l.Logger, conn: conn, cmd: cmd, exited: exited}, nil
}

// Dial opens a client connection to a helper at target with the options
// the bridge expects. Extra options are appended.
func Dial(target string, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)),
	}
	conn, err := grpc.NewClient(target, append(opts, extra...)...)
	if err != nil {
		return nil, errors.Wrap(err, errors.TransportUnavailable).
			WithMetadata("target", target)
	}
	return conn, nil
}
