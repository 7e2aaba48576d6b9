package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/gpxity/gpxity/internal/backend"
	"github.com/gpxity/gpxity/internal/ui"
)

func newTimeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "time BACKEND",
		GroupID: "advanced",
		Short:   "Print the current time of a backend",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.open(args[0])
			if err != nil {
				return err
			}
			t, err := b.GetTime()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, t.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func newBackendsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "backends",
		GroupID: "advanced",
		Short:   "List store kinds and configured backends",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.stdout, ui.Title("Kinds:"))
			for _, kind := range backend.RegisteredKinds() {
				fmt.Fprintln(a.stdout, "  "+kind)
			}

			names := make([]string, 0, len(a.cfg.Backends))
			for name := range a.cfg.Backends {
				names = append(names, name)
			}
			if len(names) == 0 {
				return nil
			}
			sort.Strings(names)
			fmt.Fprintln(a.stdout, ui.Title("Configured:"))
			for _, name := range names {
				bc := a.cfg.Backends[name]
				fmt.Fprintf(a.stdout, "  %-12s %s:%s\n", name, bc.Kind, bc.Path)
			}
			return nil
		},
	}
}
