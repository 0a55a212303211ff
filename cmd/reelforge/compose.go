// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ManuGH/reelforge/internal/events"
	"github.com/ManuGH/reelforge/internal/session"
	"github.com/spf13/cobra"
)

func newComposeCmd(a *app) *cobra.Command {
	var manifestPath, output string
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Run one export from a segment manifest",
		Long: "Probe, plan and render the segments listed in a YAML manifest into a single file.\n" +
			"Interrupting the command cancels the export and exits with status 130.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := loadManifest(manifestPath)
			if err != nil {
				return err
			}
			if output != "" {
				if m.Output, err = filepath.Abs(output); err != nil {
					return err
				}
			}
			if m.Output == "" {
				return errors.New("no output location: pass -o or set output in the manifest")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return compose(ctx, a.controller(nil, nil), session.Request{Segments: m.Segments, OutputLocation: m.Output}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "segment manifest (YAML)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, overrides the manifest")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

// compose runs req to completion, printing progress to w. Cancelling ctx
// cancels the export.
func compose(ctx context.Context, ctrl *session.Controller, req session.Request, w io.Writer) error {
	sess, err := ctrl.Start(ctx, req)
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			sess.Cancel()
		case <-sess.Done():
		}
	}()

	p := progressPrinter{w: w, segments: len(req.Segments), lastPct: -1}
	for ev := range sess.Events() {
		p.print(ev)
	}

	outcome, err := sess.Wait(context.Background())
	if err != nil {
		return err
	}
	switch outcome.State {
	case session.StateCompleted:
		fmt.Fprintf(w, "wrote %s (%.3fs)\n", outcome.OutputLocation, outcome.Duration.Seconds())
		return nil
	case session.StateCancelled:
		fmt.Fprintln(w, "export cancelled")
		return &exitError{code: exitCancelled}
	default:
		return &exitError{code: exitFailure, err: fmt.Errorf("export failed (%s): %w", outcome.Reason, outcome.Err)}
	}
}

// progressPrinter writes one line per phase and per whole percent.
type progressPrinter struct {
	w        io.Writer
	segments int
	phase    events.Phase
	lastPct  int
}

func (p *progressPrinter) print(ev events.Event) {
	switch ev.Kind {
	case events.KindPhase:
		p.phase, p.lastPct = ev.Phase, -1
		fmt.Fprintf(p.w, "%s\n", ev.Phase)
	case events.KindProgress:
		pct := int(math.Floor(ev.Progress * 100))
		if pct == p.lastPct {
			return
		}
		p.lastPct = pct
		if ev.Phase == events.PhaseRendering && p.segments > 0 {
			fmt.Fprintf(p.w, "  %-10s %3d%%  segment %d/%d\n", ev.Phase, pct, ev.SegmentIndex+1, p.segments)
			return
		}
		fmt.Fprintf(p.w, "  %-10s %3d%%\n", ev.Phase, pct)
	}
}
