package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gpxity/gpxity/internal/backend"
	"github.com/gpxity/gpxity/internal/ui"
)

func newSyncCmd(a *app) *cobra.Command {
	var remove, remoteIdent bool
	cmd := &cobra.Command{
		Use:     "sync SOURCE SINK",
		GroupID: "sync",
		Short:   "Copy missing activities from SOURCE to SINK",
		Long: `Copy every activity of SOURCE that SINK does not hold yet.

Activities are compared by content. With --remove, activities of SINK that
are not in SOURCE are deleted, making SINK a mirror. With --remote-ident the
SOURCE ids are kept where SINK allows it, and changed activities replace
their older version.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := a.open(args[0])
			if err != nil {
				return err
			}
			sink, err := a.open(args[1])
			if err != nil {
				return err
			}

			var opts []backend.SyncOption
			if remove {
				opts = append(opts, backend.WithRemove())
			}
			if remoteIdent {
				opts = append(opts, backend.WithRemoteIdent())
			}

			report, err := sink.SyncFrom(source, opts...)
			fmt.Fprintln(a.stdout, ui.Success(fmt.Sprintf("%s -> %s: %s", source, sink, report)))
			return err
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "Delete activities of SINK missing in SOURCE")
	cmd.Flags().BoolVar(&remoteIdent, "remote-ident", false, "Reuse SOURCE ids in SINK")
	return cmd
}

func newDiffCmd(a *app) *cobra.Command {
	var byContent bool
	cmd := &cobra.Command{
		Use:     "diff LEFT RIGHT",
		GroupID: "sync",
		Short:   "Compare the activities of two backends",
		Long: `Compare two backends by activity start time, or by full content
with --content. Exits with an error when they differ.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			left, err := a.open(args[0])
			if err != nil {
				return err
			}
			right, err := a.open(args[1])
			if err != nil {
				return err
			}

			key := backend.StartTimeKey
			if byContent {
				key = backend.FingerprintKey
			}
			d := backend.Diff(left, right, key)

			for _, side := range []*backend.DiffSide{d.Left, d.Right} {
				for _, act := range side.ExclusiveActivities() {
					fmt.Fprintf(a.stdout, "only in %s: %s %s\n", side.Backend, ui.Accent(act.ID()), act.Title())
				}
			}
			fmt.Fprintf(a.stdout, "in both: %d\n", len(d.KeysInBoth()))
			if !d.Equal() {
				return fmt.Errorf("%s and %s differ", left, right)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&byContent, "content", false, "Compare full content instead of start times")
	return cmd
}
