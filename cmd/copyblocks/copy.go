// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package copyblocks

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/stratastor/logger"
	"github.com/stratastor/partd/config"
	"github.com/stratastor/partd/internal/command"
	"github.com/stratastor/partd/internal/privilege"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/report"
)

type flags struct {
	source       string
	sourceOffset string
	length       string
	target       string
	targetOffset string
}

// ranges parses the size flags. Sizes accept humanize notation such as
// "512", "1MiB" or "4 GB".
func (f flags) ranges() (command.BlockRange, command.BlockRange, error) {
	parse := func(name, value string) (int64, error) {
		n, err := humanize.ParseBytes(value)
		if err != nil {
			return 0, errors.Wrap(err, errors.CommandInvalidInput).WithMetadata("flag", name)
		}
		return int64(n), nil
	}

	srcOff, err := parse("source-offset", f.sourceOffset)
	if err != nil {
		return command.BlockRange{}, command.BlockRange{}, err
	}
	dstOff, err := parse("target-offset", f.targetOffset)
	if err != nil {
		return command.BlockRange{}, command.BlockRange{}, err
	}
	length, err := parse("length", f.length)
	if err != nil {
		return command.BlockRange{}, command.BlockRange{}, err
	}
	if f.source == "" || f.target == "" {
		return command.BlockRange{}, command.BlockRange{},
			errors.New(errors.CommandInvalidInput, "--source and --target are required")
	}
	if length <= 0 {
		return command.BlockRange{}, command.BlockRange{},
			errors.New(errors.CommandInvalidInput, "--length must be positive")
	}

	src := command.BlockRange{Path: f.source, Offset: srcOff, Length: length}
	dst := command.BlockRange{Path: f.target, Offset: dstOff, Length: length}
	return src, dst, nil
}

func NewCopyCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy a byte range between block devices through the privileged helper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst, err := f.ranges()
			if err != nil {
				return err
			}

			cfg := config.GetConfig()
			log, err := logger.NewTag(config.NewLoggerConfig(cfg), "copy")
			if err != nil {
				return err
			}
			bridge, err := privilege.NewBridgeFromConfig(log, cfg)
			if err != nil {
				return err
			}
			executor := command.NewExecutor(log, bridge, nil)

			err = copyBlocks(cmd.Context(), executor, src, dst, cmd.ErrOrStderr())
			if serr := bridge.StopHelper(context.Background()); serr != nil {
				log.Warn("Failed to stop helper", "err", serr)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&f.source, "source", "", "Source device or file")
	cmd.Flags().StringVar(&f.sourceOffset, "source-offset", "0", "Byte offset into the source")
	cmd.Flags().StringVar(&f.length, "length", "", "Bytes to copy")
	cmd.Flags().StringVar(&f.target, "target", "", "Target device or file")
	cmd.Flags().StringVar(&f.targetOffset, "target-offset", "0", "Byte offset into the target")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("length")
	return cmd
}

func copyBlocks(ctx context.Context, executor *command.Executor, src, dst command.BlockRange, out io.Writer) error {
	rep := report.New("partd copy")
	last := -1
	err := executor.CopyBlocks(ctx, rep, src, dst, func(percent int) {
		if percent != last {
			last = percent
			fmt.Fprintf(out, "%3d%%\n", percent)
		}
	})
	fmt.Fprint(out, rep.String())
	return err
}
