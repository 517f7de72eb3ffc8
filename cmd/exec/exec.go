// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package exec

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/stratastor/logger"
	"github.com/stratastor/partd/config"
	"github.com/stratastor/partd/internal/command"
	"github.com/stratastor/partd/internal/privilege"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/report"
)

func NewExecCmd() *cobra.Command {
	var (
		merged bool
		stdin  bool
	)

	cmd := &cobra.Command{
		Use:   "exec [flags] -- <program> [args...]",
		Short: "Run one program through the privileged helper",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig()
			log, err := logger.NewTag(config.NewLoggerConfig(cfg), "exec")
			if err != nil {
				return err
			}

			var input []byte
			if stdin {
				if input, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return errors.Wrap(err, errors.CommandInvalidInput)
				}
			}
			mode := command.SeparateChannels
			if merged {
				mode = command.MergedChannels
			}

			bridge, err := privilege.NewBridgeFromConfig(log, cfg)
			if err != nil {
				return err
			}
			executor := command.NewExecutor(log, bridge, nil)

			code, err := execute(cmd.Context(), executor, args, mode, input,
				cmd.OutOrStdout(), cmd.ErrOrStderr())
			if serr := bridge.StopHelper(context.Background()); serr != nil {
				log.Warn("Failed to stop helper", "err", serr)
			}
			if err != nil {
				return err
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&merged, "merged", false, "Capture stderr together with stdout")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "Feed this command's stdin to the program")
	return cmd
}

// execute runs args through executor, writes the program output to out and
// the report tree to errOut. It returns the exit code to leave with; an
// error means the program never produced one.
func execute(
	ctx context.Context,
	executor *command.Executor,
	args []string,
	mode command.Mode,
	input []byte,
	out, errOut io.Writer,
) (int, error) {
	rep := report.New("partd exec")
	c := executor.Command(rep, args[0], args[1:]...).SetMode(mode).SetInput(input)

	err := c.Run(ctx)
	out.Write(c.RawOutput())
	fmt.Fprint(errOut, rep.String())

	if err != nil {
		if errors.IsCode(err, errors.ProcessFailure) && c.ExitCode() > 0 {
			return c.ExitCode(), nil
		}
		return 1, err
	}
	return 0, nil
}
