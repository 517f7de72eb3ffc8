// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stratastor/logger"
	"github.com/stratastor/partd/internal/privilege"
	"github.com/stratastor/partd/internal/rpc"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	encoded, err := rpc.EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)

	pub, err := readPublicKey(strings.NewReader(encoded + "\n"))
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	// no trailing newline
	pub, err = readPublicKey(strings.NewReader(encoded))
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	_, err = readPublicKey(strings.NewReader(""))
	assert.True(t, errors.IsCode(err, errors.HelperStartFailed))

	_, err = readPublicKey(strings.NewReader("!!!\n"))
	assert.True(t, errors.IsCode(err, errors.AuthenticationFailure))
}

func TestListenReplacesStaleSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "run", "helper.sock")
	require.NoError(t, os.MkdirAll(filepath.Dir(socket), 0700))
	require.NoError(t, os.WriteFile(socket, nil, 0644))

	lis, err := listen(socket, -1)
	require.NoError(t, err)
	defer lis.Close()

	info, err := os.Stat(socket)
	require.NoError(t, err)
	assert.Equal(t, os.ModeSocket, info.Mode()&os.ModeSocket)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestListenRefusesSharedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shared")
	require.NoError(t, os.Mkdir(dir, 0700))
	require.NoError(t, os.Chmod(dir, 0777))
	socket := filepath.Join(dir, "helper.sock")

	_, err := listen(socket, -1)
	assert.True(t, errors.IsCode(err, errors.ConfigUnsafeDir), "got %v", err)
	_, err = os.Lstat(socket)
	assert.True(t, os.IsNotExist(err))

	// a symlinked directory is refused even when its target is private
	private := filepath.Join(t.TempDir(), "private")
	require.NoError(t, os.Mkdir(private, 0700))
	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(private, link))

	_, err = listen(filepath.Join(link, "helper.sock"), -1)
	assert.True(t, errors.IsCode(err, errors.ConfigUnsafeDir), "got %v", err)
}

// TestRunServesUntilExit drives the helper the way ProcessLauncher does:
// key on stdin, READY on stdout, requests on the unix socket.
func TestRunServesUntilExit(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	encoded, err := rpc.EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)
	l, err := logger.New(logger.Config{LogLevel: "debug"})
	require.NoError(t, err)

	dir := t.TempDir()
	opts := options{
		socket:   filepath.Join(dir, "helper.sock"),
		ownerUID: -1,
		pidFile:  filepath.Join(dir, "helper.pid"),
	}

	stdoutR, stdoutW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), l, opts, strings.NewReader(encoded+"\n"), stdoutW)
		stdoutW.Close()
	}()

	line, err := bufio.NewReader(stdoutR).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, privilege.ReadyLine, strings.TrimSpace(line))
	go io.Copy(io.Discard, stdoutR)

	_, err = os.Stat(opts.pidFile)
	require.NoError(t, err)

	conn, err := privilege.Dial("unix://" + opts.socket)
	require.NoError(t, err)
	defer conn.Close()
	client := rpc.NewHelperClient(conn)

	start := &rpc.StartRequest{Counter: 1, Program: "/bin/sh", Args: []string{"-c", "echo hello"}}
	start.Signature, err = rpc.Sign(key, rpc.StartDigest(start))
	require.NoError(t, err)

	stream, err := client.Start(context.Background(), start)
	require.NoError(t, err)
	var res *rpc.Result
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if ev.Kind == rpc.EventCompleted {
			res = ev.Result
		}
	}
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, "hello\n", string(res.Output))

	exit := &rpc.ExitRequest{Counter: 2}
	exit.Signature, err = rpc.Sign(key, rpc.ExitDigest(exit))
	require.NoError(t, err)
	reply, err := client.Exit(context.Background(), exit)
	require.NoError(t, err)
	assert.True(t, reply.Stopping)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("helper did not stop")
	}

	for _, path := range []string{opts.socket, opts.pidFile} {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "%s should be removed", path)
	}
}
