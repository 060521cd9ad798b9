package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"taskdash/internal/config"
)

func newKeysCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the resolved key bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.load()
			if err != nil {
				return err
			}
			defer s.Close()
			printKeys(cmd.OutOrStdout(), s.cfg.Keys)
			return nil
		},
	}
}

func printKeys(w io.Writer, km config.Keymap) {
	resolved := km.Resolved()
	section := func(title string, actions []string) {
		fmt.Fprintln(w, title)
		for _, action := range actions {
			keys := resolved[action]
			if len(keys) == 0 {
				fmt.Fprintf(w, "  %-16s (unbound)\n", action)
				continue
			}
			names := make([]string, len(keys))
			for i, k := range keys {
				names[i] = keyName(k)
			}
			fmt.Fprintf(w, "  %-16s %s\n", action, strings.Join(names, ", "))
		}
	}
	section("normal:", config.NormalActions)
	section("prompts and views:", config.ModalActions)
	for _, c := range km.Conflicts() {
		fmt.Fprintf(w, "conflict: %v\n", c)
	}
}

func keyName(k string) string {
	if k == " " {
		return "space"
	}
	return k
}
