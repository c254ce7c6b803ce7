package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/promecieus/internal/controller"
	"github.com/danmuck/promecieus/internal/protocol/wire"
	"github.com/danmuck/promecieus/internal/render"
	"github.com/spf13/cobra"
)

var (
	errJobFailed     = errors.New("feedctl: job failed")
	errSessionEnded  = errors.New("feedctl: session ended before the job finished")
	errIntentDropped = errors.New("feedctl: submit was not accepted")
)

func newSubmitCmd(opts *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "submit <prow-url>",
		Short: "Submit one Prow URL and follow it until done or failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c, wait, err := startSession(ctx, cfg)
			if err != nil {
				return err
			}
			snaps, unsubscribe := c.Subscribe()
			result := followJob(ctx, c, snaps, args[0], render.NewView(), cmd.OutOrStdout())
			unsubscribe()
			cancel()
			if err := wait(); err != nil && result == nil {
				return err
			}
			return result
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")
	return cmd
}

// followJob submits source once the session is connected and prints log
// entries as they arrive. It returns nil on done and errJobFailed on
// failure.
func followJob(
	ctx context.Context,
	c *controller.Controller,
	snaps <-chan controller.Snapshot,
	source string,
	view *render.View,
	out io.Writer,
) error {
	submitted := false
	accepted := false
	printed := 0
	lastProgress := ""

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for job: %w", ctx.Err())
		case snap, ok := <-snaps:
			if !ok {
				return errSessionEnded
			}
			if !submitted {
				if !snap.Connected {
					continue
				}
				if err := c.Submit(source); err != nil {
					return fmt.Errorf("%w: %v", errIntentDropped, err)
				}
				submitted = true
				continue
			}
			if !accepted {
				if snap.State.PendingInput != source {
					continue
				}
				accepted = true
			}

			// progress entries are pruned on done; everything else only grows
			stable := make([]wire.Frame, 0, len(snap.State.Log))
			var progress *wire.Frame
			for i, entry := range snap.State.Log {
				if entry.Action == wire.ActionProgress {
					progress = &snap.State.Log[i]
					continue
				}
				stable = append(stable, entry)
			}
			for _, entry := range stable[min(printed, len(stable)):] {
				if line := view.Message(entry); line != "" {
					fmt.Fprintln(out, line)
				}
			}
			printed = len(stable)
			if progress != nil && progress.Message != lastProgress {
				lastProgress = progress.Message
				fmt.Fprintln(out, view.Message(*progress))
			}

			for _, entry := range stable {
				switch entry.Action {
				case wire.ActionDone:
					if snap.State.HasActiveJob() {
						fmt.Fprintln(out, view.Quota(snap.State.Quota))
					}
					return nil
				case wire.ActionFailure:
					return fmt.Errorf("%w: %s", errJobFailed, entry.Message)
				}
			}
		}
	}
}
