package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/promecieus/internal/controller"
	"github.com/danmuck/promecieus/internal/logging"
	"github.com/danmuck/promecieus/internal/render"
	"github.com/spf13/cobra"
)

const clearScreen = "\033[H\033[2J"

type inputKind int

const (
	inputNone inputKind = iota
	inputSubmit
	inputDelete
	inputQuit
)

func parseInput(line string) (inputKind, string) {
	text := strings.TrimSpace(line)
	switch strings.ToLower(text) {
	case "":
		return inputNone, ""
	case "delete", "d":
		return inputDelete, ""
	case "quit", "exit", "q":
		return inputQuit, ""
	default:
		return inputSubmit, text
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [prow-url]",
		Short: "Follow the live feed interactively",
		Long: "Opens the status feed and redraws on every change. Type a Prow URL to submit it, " +
			"'delete' to remove the active app and 'quit' to leave.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			c, wait, err := startSession(ctx, cfg)
			if err != nil {
				return err
			}
			snaps, unsubscribe := c.Subscribe()
			defer unsubscribe()

			initial := ""
			if len(args) == 1 {
				initial = args[0]
			}
			w := &watcher{
				ctrl:    c,
				view:    render.NewView(),
				out:     cmd.OutOrStdout(),
				initial: initial,
			}
			w.loop(snaps, readLines(cmd.InOrStdin()), cancel)
			return wait()
		},
	}
}

type watcher struct {
	ctrl    *controller.Controller
	view    *render.View
	out     io.Writer
	initial string
}

// loop redraws on each snapshot and forwards typed intents until the
// subscription closes.
func (w *watcher) loop(snaps <-chan controller.Snapshot, lines <-chan string, cancel context.CancelFunc) {
	log := logging.Component("feedctl")
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if w.initial != "" && snap.Connected {
				if err := w.ctrl.Submit(w.initial); err != nil {
					log.Warn().Err(err).Msg("feedctl watch submit failed")
				}
				w.initial = ""
			}
			fmt.Fprint(w.out, clearScreen+w.view.Render(snap))
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			var err error
			switch kind, text := parseInput(line); kind {
			case inputQuit:
				cancel()
			case inputDelete:
				err = w.ctrl.DeleteActive()
			case inputSubmit:
				err = w.ctrl.Submit(text)
			}
			if err != nil {
				log.Warn().Err(err).Msg("feedctl watch intent dropped")
			}
		}
	}
}

func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}
