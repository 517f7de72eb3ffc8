// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"bufio"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/stratastor/logger"
	"github.com/stratastor/partd/config"
	helpersrv "github.com/stratastor/partd/internal/helper"
	"github.com/stratastor/partd/internal/privilege"
	"github.com/stratastor/partd/internal/rpc"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/lifecycle"
)

type options struct {
	socket         string
	ownerUID       int
	pidFile        string
	maxOutputBytes int
}

func NewHelperCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "helper",
		Short: "Run the privileged helper",
		Long: `Run the privileged side of the command bridge. partd starts this
through the configured elevation command; the caller's public key is read
from the first line of stdin and READY is printed once requests are served.`,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig()
			if opts.socket == "" {
				opts.socket = cfg.Helper.SocketPath
			}
			if opts.maxOutputBytes <= 0 {
				opts.maxOutputBytes = cfg.Helper.MaxOutputBytes
			}

			log, err := logger.NewTag(config.NewLoggerConfig(cfg), "helper")
			if err != nil {
				return err
			}
			return run(cmd.Context(), log, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.socket, "socket", "", "Unix socket to serve on")
	cmd.Flags().IntVar(&opts.ownerUID, "owner-uid", -1, "Hand the socket to this user")
	cmd.Flags().StringVar(&opts.pidFile, "pid-file", "", "Refuse to start if this PID file names a live helper")
	cmd.Flags().IntVar(&opts.maxOutputBytes, "max-output-bytes", 0, "Output kept per command")
	return cmd
}

func readPublicKey(r io.Reader) (*rsa.PublicKey, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return nil, errors.Wrap(err, errors.HelperStartFailed).
			WithMetadata("stage", "read public key")
	}
	return rpc.DecodePublicKey(line)
}

// listen binds the socket, replacing a stale one, and restricts it to the
// owner. The socket directory must be private to root or the owner.
func listen(socket string, ownerUID int) (net.Listener, error) {
	owner := ownerUID
	if owner < 0 {
		owner = os.Geteuid()
	}
	if err := config.EnsureRuntimeDir(filepath.Dir(socket), owner); err != nil {
		return nil, err
	}
	if err := os.Remove(socket); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, errors.HelperStartFailed).WithMetadata("socket", socket)
	}

	lis, err := net.Listen("unix", socket)
	if err != nil {
		return nil, errors.Wrap(err, errors.HelperStartFailed).WithMetadata("socket", socket)
	}
	if err := os.Chmod(socket, 0600); err != nil {
		lis.Close()
		return nil, errors.Wrap(err, errors.HelperStartFailed).WithMetadata("socket", socket)
	}
	if ownerUID >= 0 {
		if err := os.Lchown(socket, ownerUID, -1); err != nil {
			lis.Close()
			return nil, errors.Wrap(err, errors.HelperStartFailed).WithMetadata("socket", socket)
		}
	}
	return lis, nil
}

func run(ctx context.Context, log logger.Logger, opts options, stdin io.Reader, stdout io.Writer) error {
	pub, err := readPublicKey(stdin)
	if err != nil {
		return err
	}

	if opts.pidFile != "" {
		if err := lifecycle.EnsureSingleInstance(opts.pidFile); err != nil {
			return err
		}
	}

	lis, err := listen(opts.socket, opts.ownerUID)
	if err != nil {
		lifecycle.Shutdown()
		return err
	}

	srv := helpersrv.NewServer(log, pub, helpersrv.Config{MaxOutputBytes: opts.maxOutputBytes})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lifecycle.RegisterContextCanceller(cancel)
	lifecycle.RegisterShutdownHook(func() { os.Remove(opts.socket) })
	// Hooks run newest first: stop serving before the socket goes away
	lifecycle.RegisterShutdownHook(srv.Stop)
	go lifecycle.HandleSignals(ctx)

	go func() {
		select {
		case <-srv.Ready():
			fmt.Fprintln(stdout, privilege.ReadyLine)
		case <-ctx.Done():
		}
	}()

	log.Info("Helper listening", "socket", opts.socket, "owner_uid", opts.ownerUID)
	err = srv.Serve(lis)
	lifecycle.Shutdown()
	log.Info("Helper stopped")
	return err
}
