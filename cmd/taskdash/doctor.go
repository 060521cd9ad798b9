package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"taskdash/internal/backend"
)

func newDoctorCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the backend, time tracking and key bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.load()
			if err != nil {
				return err
			}
			defer s.Close()
			doctor(cmd.Context(), cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func doctor(ctx context.Context, w io.Writer, s *session) {
	cfg := s.cfg
	fmt.Fprintf(w, "     config %s\n", s.configPath)

	be, _, err := s.openBackend()
	if err != nil {
		fmt.Fprintf(w, "FAIL backend %s: %v\n", cfg.Backend.Kind, err)
	} else {
		if cli, ok := be.(*backend.CLI); ok {
			if v, err := cli.Version(ctx); err != nil {
				fmt.Fprintf(w, "FAIL %v\n", err)
			} else {
				fmt.Fprintf(w, "ok   taskwarrior %s\n", v)
			}
		}
		qctx, cancel := context.WithTimeout(ctx, cfg.CommandTimeout())
		tasks, err := be.Export(qctx, cfg.DefaultFilter)
		cancel()
		if err != nil {
			fmt.Fprintf(w, "FAIL backend %s: %v\n", cfg.Backend.Kind, err)
		} else {
			fmt.Fprintf(w, "ok   backend %s reachable, %d tasks match the default filter\n", cfg.Backend.Kind, len(tasks))
		}
	}

	for _, line := range s.timew().Status(ctx, cfg.Tracking.Enabled).Instructions() {
		fmt.Fprintln(w, line)
	}

	conflicts := cfg.Keys.Conflicts()
	if len(conflicts) == 0 {
		fmt.Fprintln(w, "ok   no key binding conflicts")
	}
	for _, c := range conflicts {
		fmt.Fprintf(w, "FAIL %v\n", c)
	}
	for _, name := range cfg.Keys.Unknown() {
		fmt.Fprintf(w, "warn [keys] %s is not an action\n", name)
	}
}
