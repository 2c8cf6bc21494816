package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/erazemk/stockscan/internal/model"
	"github.com/erazemk/stockscan/internal/terminal"
)

func newScanCommand(root *rootOptions) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a terminal scanning station",
		Long: `Run a scanning station on this terminal. A hardware scanner in keyboard
mode types each barcode followed by Enter, so every input line is a scan.
Lines starting with ':' are commands; type :help for the list.

An interrupted session with queued lines is resumed instead of starting
a new one.

Example:
  stockscan scan --mode in
  stockscan scan --mode transfer --db /srv/stock.sqlite3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !model.ValidMode(mode) {
				return fmt.Errorf("invalid mode %q: must be one of in, out, transfer, count", mode)
			}
			return runStation(root, mode)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", model.ModeIn, "session mode (in|out|transfer|count)")
	return cmd
}

func runStation(root *rootOptions, mode string) error {
	cfg := root.cfg

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	console := terminal.NewConsole(os.Stdout, cfg.Scan.Bell)
	eng, err := newEngine(ctx, cfg, database, console)
	if err != nil {
		return err
	}
	defer eng.Close()

	if s := eng.ctl.Session(); s != nil {
		console.Infof("resumed %s session with %d lines", s.Mode, len(s.Queue))
	} else {
		if _, err := eng.ctl.Start(ctx, mode, nil); err != nil {
			return err
		}
		// Wedge scanners type into the terminal.
		if _, err := eng.ctl.SetInputMethod(ctx, model.InputHardware); err != nil {
			return err
		}
	}
	console.PrintSession(eng.ctl.Session())

	return terminal.NewStation(eng.ctl, console).Run(ctx, os.Stdin)
}
