// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"path/filepath"

	"github.com/ManuGH/reelforge/internal/probe"
	"github.com/spf13/cobra"
)

func newDurationCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "duration <file>",
		Short: "Print the probed duration of a media file in seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			sec, err := probe.Duration(cmd.Context(), a.prober(), path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", sec)
			return nil
		},
	}
}
