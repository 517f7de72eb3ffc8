// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/stratastor/partd/pkg/errors"
)

var (
	mu            sync.Mutex
	shutdownHooks []func()
	cancel        context.CancelFunc
	shutdownOnce  sync.Once
)

func RegisterShutdownHook(hook func()) {
	mu.Lock()
	defer mu.Unlock()
	shutdownHooks = append(shutdownHooks, hook)
}

func RegisterContextCanceller(c context.CancelFunc) {
	mu.Lock()
	defer mu.Unlock()
	cancel = c
}

// HandleSignals runs Shutdown on SIGTERM or SIGINT and returns. SIGHUP is
// ignored: nothing in the helper can be reloaded while it serves.
func HandleSignals(ctx context.Context) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(stop)

	for {
		select {
		case sig := <-stop:
			if sig == syscall.SIGHUP {
				continue
			}
			Shutdown()
			return
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown cancels the registered context and runs the hooks newest first.
// Only the first call has an effect.
func Shutdown() {
	shutdownOnce.Do(func() {
		mu.Lock()
		c := cancel
		hooks := append([]func(){}, shutdownHooks...)
		mu.Unlock()

		if c != nil {
			c()
		}
		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i]()
		}
	})
}

// EnsureSingleInstance writes the current PID to pidPath, failing if the
// file names a live process. Stale files are replaced. The file is removed
// on Shutdown.
func EnsureSingleInstance(pidPath string) error {
	if pidPath == "" {
		return errors.New(errors.LifecyclePID, "invalid PID file path")
	}

	if pidBytes, err := os.ReadFile(pidPath); err == nil {
		content := strings.TrimSpace(string(pidBytes))
		if content != "" {
			pid, err := strconv.Atoi(content)
			if err != nil {
				return errors.Wrap(err, errors.LifecyclePID).WithMetadata("path", pidPath)
			}
			if running(pid) {
				return errors.New(errors.LifecyclePID, "another instance is already running").
					WithMetadata("pid", content)
			}
		}
		os.Remove(pidPath)
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, errors.LifecyclePID).WithMetadata("path", pidPath)
	}

	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return errors.Wrap(err, errors.LifecyclePID).WithMetadata("path", pidPath)
	}

	RegisterShutdownHook(func() {
		os.Remove(pidPath)
	})
	return nil
}

func running(pid int) bool {
	if pid <= 0 || pid == os.Getpid() {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// reset clears registered state; used by tests
func reset() {
	mu.Lock()
	defer mu.Unlock()
	shutdownHooks = nil
	cancel = nil
	shutdownOnce = sync.Once{}
}
