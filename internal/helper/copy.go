// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/stratastor/partd/internal/rpc"
	"github.com/stratastor/partd/pkg/errors"
)

type blockCopy struct {
	sourcePath   string
	sourceOffset int64
	length       int64
	targetPath   string
	targetOffset int64
	chunkSize    int64
}

// backwards reports whether a forward copy would overwrite source bytes
// before they are read
func (c blockCopy) backwards() bool {
	return c.sourcePath == c.targetPath &&
		c.targetOffset > c.sourceOffset &&
		c.targetOffset < c.sourceOffset+c.length
}

func (c blockCopy) validate() error {
	switch {
	case c.sourcePath == "" || c.targetPath == "":
		return errors.New(errors.CommandInvalidInput, "source and target paths are required")
	case c.sourceOffset < 0 || c.targetOffset < 0:
		return errors.New(errors.CommandInvalidInput, "offsets must not be negative")
	case c.length < 0:
		return errors.New(errors.CommandInvalidInput, "length must not be negative")
	case c.chunkSize <= 0:
		return errors.New(errors.CommandInvalidInput, "chunk size must be positive")
	}
	return nil
}

// copyBlocks copies c.length bytes chunk by chunk, sending one progress
// event per chunk. The target is synced before returning.
func copyBlocks(ctx context.Context, c blockCopy, send func(*rpc.Event) error) error {
	if err := c.validate(); err != nil {
		return err
	}

	src, err := os.Open(c.sourcePath)
	if err != nil {
		return errors.Wrap(err, errors.CopyFailed).WithMetadata("path", c.sourcePath)
	}
	defer src.Close()

	dst, err := os.OpenFile(c.targetPath, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrap(err, errors.CopyFailed).WithMetadata("path", c.targetPath)
	}
	defer dst.Close()

	chunks := (c.length + c.chunkSize - 1) / c.chunkSize
	direction := "forwards"
	if c.backwards() {
		direction = "backwards"
	}
	if err := send(rpc.ReportLine(fmt.Sprintf("Copying %d chunks (%s) %s",
		chunks, humanize.IBytes(uint64(c.length)), direction))); err != nil {
		return errors.Wrap(err, errors.TransportUnavailable)
	}

	started := time.Now()
	buf := make([]byte, c.chunkSize)
	var done int64
	for i := int64(0); i < chunks; i++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.CopyFailed)
		}

		size := c.chunkSize
		if rest := c.length - done; rest < size {
			size = rest
		}
		rel := done
		if c.backwards() {
			rel = c.length - done - size
		}

		if err := copyChunk(src, dst, c.sourceOffset+rel, c.targetOffset+rel, buf[:size]); err != nil {
			return err
		}
		done += size

		if err := send(rpc.Progress(int(done * 100 / c.length))); err != nil {
			return errors.Wrap(err, errors.TransportUnavailable)
		}
	}

	if err := dst.Sync(); err != nil {
		return errors.Wrap(err, errors.CopyFailed).WithMetadata("path", c.targetPath)
	}

	elapsed := time.Since(started)
	line := fmt.Sprintf("Copied %s in %s", humanize.IBytes(uint64(done)), elapsed.Round(time.Millisecond))
	if secs := elapsed.Seconds(); secs > 0 {
		line += fmt.Sprintf(" (%s/s)", humanize.IBytes(uint64(float64(done)/secs)))
	}
	if err := send(rpc.ReportLine(line)); err != nil {
		return errors.Wrap(err, errors.TransportUnavailable)
	}
	return nil
}

func copyChunk(src io.ReaderAt, dst io.WriterAt, from, to int64, buf []byte) error {
	n, err := src.ReadAt(buf, from)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return errors.Wrap(err, errors.CopyFailed).
			WithMetadata("offset", fmt.Sprintf("%d", from))
	}
	if _, err := dst.WriteAt(buf, to); err != nil {
		return errors.Wrap(err, errors.CopyFailed).
			WithMetadata("offset", fmt.Sprintf("%d", to))
	}
	return nil
}
