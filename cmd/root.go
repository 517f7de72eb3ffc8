// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/stratastor/partd/cmd/config"
	"github.com/stratastor/partd/cmd/copyblocks"
	"github.com/stratastor/partd/cmd/exec"
	"github.com/stratastor/partd/cmd/helper"
	"github.com/stratastor/partd/cmd/version"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "partd",
		Short:         "partd: privileged command bridge for partition editing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(helper.NewHelperCmd())
	rootCmd.AddCommand(exec.NewExecCmd())
	rootCmd.AddCommand(copyblocks.NewCopyCmd())
	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(config.NewConfigCmd())

	return rootCmd
}
