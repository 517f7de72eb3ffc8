// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stratastor/logger"
	"github.com/stratastor/partd/internal/rpc"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type harness struct {
	t       *testing.T
	key     *rsa.PrivateKey
	server  *Server
	client  *rpc.HelperClient
	counter uint64
	served  chan error
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	l, err := logger.New(logger.Config{LogLevel: "debug"})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(l, &key.PublicKey, cfg)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(lis) }()

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("helper did not become ready")
	}

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})

	return &harness{
		t:      t,
		key:    key,
		server: srv,
		client: rpc.NewHelperClient(conn),
		served: served,
	}
}

func (h *harness) signStart(key *rsa.PrivateKey, req *rpc.StartRequest) {
	h.counter++
	req.Counter = h.counter
	sig, err := rpc.Sign(key, rpc.StartDigest(req))
	require.NoError(h.t, err)
	req.Signature = sig
}

// collect drains a stream into its report lines, progress values and result
func collect(stream rpc.EventStream) (lines []string, progress []int, res *rpc.Result, err error) {
	for {
		ev, rerr := stream.Recv()
		if rerr == io.EOF {
			return
		}
		if rerr != nil {
			err = rerr
			return
		}
		switch ev.Kind {
		case rpc.EventReportLine:
			lines = append(lines, ev.Line)
		case rpc.EventProgress:
			progress = append(progress, ev.Percent)
		case rpc.EventCompleted:
			res = ev.Result
		}
	}
}

func (h *harness) start(req *rpc.StartRequest) ([]string, *rpc.Result, error) {
	stream, err := h.client.Start(context.Background(), req)
	require.NoError(h.t, err)
	lines, _, res, err := collect(stream)
	return lines, res, err
}

func TestStartReturnsRealExitCode(t *testing.T) {
	h := newHarness(t, Config{})

	tests := []struct {
		name     string
		script   string
		mode     uint8
		wantCode int
		wantOut  string
		wantLine string
	}{
		{name: "success", script: "echo hello", wantOut: "hello\n", wantLine: "hello"},
		{name: "exit_code", script: "exit 3", wantCode: 3},
		{name: "separate_stderr", script: "echo out; echo err >&2", wantOut: "out\n", wantLine: "err"},
		{name: "merged_stderr", script: "echo err >&2", mode: 1, wantOut: "err\n", wantLine: "err"},
		{name: "raw_crlf", script: `printf 'a\r\nb'`, wantOut: "a\r\nb", wantLine: "b"},
		{name: "blank_lines", script: `printf 'x\n\n\n'`, wantOut: "x\n\n\n", wantLine: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &rpc.StartRequest{Program: "/bin/sh", Args: []string{"-c", tt.script}, Mode: tt.mode}
			h.signStart(h.key, req)

			lines, res, err := h.start(req)
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.True(t, res.Success)
			assert.Equal(t, tt.wantCode, res.ExitCode)
			assert.Equal(t, tt.wantOut, string(res.Output))
			if tt.wantLine != "" {
				assert.Contains(t, lines, tt.wantLine)
			}
		})
	}
}

func TestStartFeedsInput(t *testing.T) {
	h := newHarness(t, Config{})

	req := &rpc.StartRequest{Program: "/bin/cat", Input: []byte("line one\nline two\n")}
	h.signStart(h.key, req)

	lines, res, err := h.start(req)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(res.Output))
	assert.Equal(t, []string{"line one", "line two"}, lines)
}

func TestStartRejectsForeignKey(t *testing.T) {
	h := newHarness(t, Config{})
	marker := filepath.Join(t.TempDir(), "ran")

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	req := &rpc.StartRequest{Program: "/bin/sh", Args: []string{"-c", "touch " + marker}}
	h.signStart(other, req)

	_, res, err := h.start(req)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.True(t, errors.IsCode(errors.FromGRPC(err), errors.AuthenticationFailure))

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "rejected request must not execute")
}

func TestStartRejectsTamperedRequest(t *testing.T) {
	h := newHarness(t, Config{})

	req := &rpc.StartRequest{Program: "/bin/echo", Args: []string{"safe"}}
	h.signStart(h.key, req)
	req.Args = []string{"changed"}

	_, _, err := h.start(req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestStartRejectsReplay(t *testing.T) {
	h := newHarness(t, Config{})

	req := &rpc.StartRequest{Program: "/bin/true"}
	h.signStart(h.key, req)

	_, res, err := h.start(req)
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Same counter, same valid signature
	_, _, err = h.start(req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	// A rejected request does not advance the accepted counter
	bad := &rpc.StartRequest{Program: "/bin/true", Counter: 99, Signature: []byte("junk")}
	_, _, err = h.start(bad)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	next := &rpc.StartRequest{Program: "/bin/true"}
	h.signStart(h.key, next)
	_, res, err = h.start(next)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestStartMissingProgram(t *testing.T) {
	h := newHarness(t, Config{})

	req := &rpc.StartRequest{Program: "/nonexistent/partd-test-program"}
	h.signStart(h.key, req)

	_, _, err := h.start(req)
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, StateReady, h.server.State())
}

func TestStartBoundsOutput(t *testing.T) {
	h := newHarness(t, Config{MaxOutputBytes: 64})

	req := &rpc.StartRequest{Program: "/bin/sh", Args: []string{"-c", "i=0; while [ $i -lt 100 ]; do echo line$i; i=$((i+1)); done"}}
	h.signStart(h.key, req)

	lines, res, err := h.start(req)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Output), 64)
	assert.True(t, strings.HasPrefix(string(res.Output), "line0\n"))

	count := 0
	for _, l := range lines {
		if l == tooMuchOutput {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, tooMuchOutput, lines[len(lines)-1])
}

func TestStartBoundsStderr(t *testing.T) {
	h := newHarness(t, Config{MaxOutputBytes: 64})

	req := &rpc.StartRequest{Program: "/bin/sh", Args: []string{"-c", "i=0; while [ $i -lt 5000 ]; do echo err$i >&2; i=$((i+1)); done"}}
	h.signStart(h.key, req)

	lines, res, err := h.start(req)
	require.NoError(t, err)
	assert.Empty(t, res.Output)
	assert.Less(t, len(lines), 20)
	assert.Equal(t, tooMuchOutput, lines[len(lines)-1])
}

func TestCopyBlocksProgress(t *testing.T) {
	h := newHarness(t, Config{})
	dir := t.TempDir()

	const size = 100 << 20
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(src, nil, 0644))
	require.NoError(t, os.Truncate(src, size))
	require.NoError(t, os.WriteFile(dst, nil, 0644))
	require.NoError(t, os.Truncate(dst, size))

	f, err := os.OpenFile(src, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("head"), 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("tail"), size-4)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	h.counter++
	req := &rpc.CopyBlocksRequest{
		Counter:    h.counter,
		SourcePath: src,
		Length:     size,
		TargetPath: dst,
		ChunkSize:  10 << 20,
	}
	req.Signature, err = rpc.Sign(h.key, rpc.CopyBlocksDigest(req))
	require.NoError(t, err)

	stream, err := h.client.CopyBlocks(context.Background(), req)
	require.NoError(t, err)
	_, progress, res, err := collect(stream)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, progress)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("head"), got[:4])
	assert.Equal(t, []byte("tail"), got[size-4:])
}

func TestCopyBlocksOverlapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk")
	data := []byte("0123456789abcdef")
	require.NoError(t, os.WriteFile(path, data, 0644))

	var progress []int
	send := func(ev *rpc.Event) error {
		if ev.Kind == rpc.EventProgress {
			progress = append(progress, ev.Percent)
		}
		return nil
	}

	c := blockCopy{sourcePath: path, length: 10, targetPath: path, targetOffset: 4, chunkSize: 3}
	assert.True(t, c.backwards())
	require.NoError(t, copyBlocks(context.Background(), c, send))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("01230123456789ef"), got)
	assert.Equal(t, 100, progress[len(progress)-1])
	assert.Len(t, progress, 4)
}

func TestCopyBlocksValidation(t *testing.T) {
	send := func(*rpc.Event) error { return nil }
	tests := []blockCopy{
		{targetPath: "/dev/null", length: 1, chunkSize: 1},
		{sourcePath: "/dev/zero", targetPath: "/dev/null", length: -1, chunkSize: 1},
		{sourcePath: "/dev/zero", targetPath: "/dev/null", sourceOffset: -5, length: 1, chunkSize: 1},
		{sourcePath: "/dev/zero", targetPath: "/dev/null", length: 1},
	}
	for _, c := range tests {
		err := copyBlocks(context.Background(), c, send)
		assert.True(t, errors.IsCode(err, errors.CommandInvalidInput), "%+v", c)
	}

	err := copyBlocks(context.Background(), blockCopy{
		sourcePath: "/nonexistent/src", targetPath: "/dev/null", length: 1, chunkSize: 1,
	}, send)
	assert.True(t, errors.IsCode(err, errors.CopyFailed))
}

func TestExitStopsHelper(t *testing.T) {
	h := newHarness(t, Config{})

	// Unsigned exit is ignored
	_, err := h.client.Exit(context.Background(), &rpc.ExitRequest{Counter: 1})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.NotEqual(t, StateStopped, h.server.State())

	h.counter++
	req := &rpc.ExitRequest{Counter: h.counter}
	req.Signature, err = rpc.Sign(h.key, rpc.ExitDigest(req))
	require.NoError(t, err)

	reply, err := h.client.Exit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, reply.Stopping)

	select {
	case err := <-h.served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("helper did not stop")
	}
	assert.Equal(t, StateStopped, h.server.State())
}

func TestServeTwice(t *testing.T) {
	h := newHarness(t, Config{})
	err := h.server.Serve(bufconn.Listen(1024))
	assert.True(t, errors.IsCode(err, errors.HelperStartFailed))
}

func newSink(limit int, lines *[]string) *outputSink {
	return &outputSink{limit: limit, send: func(ev *rpc.Event) error {
		*lines = append(*lines, ev.Line)
		return nil
	}}
}

func TestOutputSinkKeepsOrder(t *testing.T) {
	var lines []string
	sink := newSink(1024, &lines)

	var out, errOut []byte
	sink.write([]byte("a\r\npart"), true, &out)
	sink.write([]byte("b\n"), false, &errOut)
	sink.write([]byte("ial\n"), true, &out)
	sink.write([]byte("tail"), true, &out)
	sink.flush(out)

	assert.Equal(t, []string{"a", "b", "partial", "tail"}, lines)
	assert.Equal(t, "a\r\npartial\ntail", sink.buf.String())
}

func TestOutputSinkCountsUncapturedBytes(t *testing.T) {
	var lines []string
	sink := newSink(8, &lines)

	var pending []byte
	sink.write([]byte("err1\nerr2\nerr3\n"), false, &pending)
	sink.write([]byte("more\n"), false, &pending)

	assert.Equal(t, []string{"err1", "err", tooMuchOutput}, lines)
	assert.Zero(t, sink.buf.Len())
}

func TestOutputSinkSplitsLongLines(t *testing.T) {
	var lines []string
	sink := newSink(1<<20, &lines)

	var pending []byte
	sink.write(bytes.Repeat([]byte("x"), 2*maxLineBytes+10), true, &pending)
	sink.flush(pending)

	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), maxLineBytes)
	}
	assert.Len(t, lines[2], 10)
	assert.Equal(t, 2*maxLineBytes+10, sink.buf.Len())
}
