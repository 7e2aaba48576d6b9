package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/gpxity/gpxity/internal/activity"
	"github.com/gpxity/gpxity/internal/ui"
)

func newEditCmd(a *app) *cobra.Command {
	var (
		title       string
		description string
		what        string
		public      bool
		private     bool
		interactive bool
	)
	cmd := &cobra.Command{
		Use:     "edit BACKEND ID",
		GroupID: "basics",
		Short:   "Change title, description, type or visibility of an activity",
		Long: `Change attributes of an activity. All changes are written in one go.

With --interactive a form is shown, prefilled with the current values.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if public && private {
				return errors.New("--public and --private exclude each other")
			}
			b, err := a.find(args[0], args[1])
			if err != nil {
				return err
			}
			act := b.Get(args[1])
			if err := act.Load(); err != nil {
				return err
			}

			flags := cmd.Flags()
			changeTitle := flags.Changed("title")
			changeDescription := flags.Changed("description")
			changeWhat := flags.Changed("what")
			changePublic := public || private
			wantPublic := public

			if interactive {
				if !ui.IsTerminal(os.Stdin) {
					return errors.New("--interactive needs a terminal")
				}
				title, description, what, wantPublic = act.Title(), act.Description(), act.What(), act.Public()
				if err := editForm(&title, &description, &what, &wantPublic).Run(); err != nil {
					return fmt.Errorf("edit aborted: %w", err)
				}
				changeTitle, changeDescription, changeWhat, changePublic = true, true, true, true
			}

			err = act.Batch(func() error {
				if changeTitle {
					if err := act.SetTitle(title); err != nil {
						return err
					}
				}
				if changeDescription {
					if err := act.SetDescription(description); err != nil {
						return err
					}
				}
				if changeWhat {
					if err := act.SetWhat(what); err != nil {
						return err
					}
				}
				if changePublic {
					return act.SetPublic(wantPublic)
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, ui.Success("updated "+act.ID()))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&what, "what", "", "New activity type")
	cmd.Flags().BoolVar(&public, "public", false, "Make the activity public")
	cmd.Flags().BoolVar(&private, "private", false, "Make the activity private")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Edit in a form")
	return cmd
}

func editForm(title, description, what *string, public *bool) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(title),
			huh.NewText().Title("Description").Value(description),
			huh.NewSelect[string]().
				Title("Activity type").
				Options(huh.NewOptions(activity.LegalWhat...)...).
				Value(what),
			huh.NewConfirm().Title("Public?").Value(public),
		),
	)
}

func newKeywordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keyword",
		GroupID: "basics",
		Short:   "Add or remove keywords",
	}
	change := func(add bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			b, err := a.find(args[0], args[1])
			if err != nil {
				return err
			}
			act := b.Get(args[1])
			return act.Batch(func() error {
				for _, kw := range args[2:] {
					var err error
					if add {
						err = act.AddKeyword(kw)
					} else {
						err = act.RemoveKeyword(kw)
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add BACKEND ID KEYWORD...",
			Short: "Add keywords",
			Args:  cobra.MinimumNArgs(3),
			RunE:  change(true),
		},
		&cobra.Command{
			Use:   "remove BACKEND ID KEYWORD...",
			Short: "Remove keywords",
			Args:  cobra.MinimumNArgs(3),
			RunE:  change(false),
		},
	)
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm BACKEND ID...",
		GroupID: "basics",
		Short:   "Remove activities",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.open(args[0])
			if err != nil {
				return err
			}
			var errs []error
			for _, id := range args[1:] {
				if err := b.RemoveID(id); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintln(a.stdout, ui.Success("removed "+id))
			}
			return errors.Join(errs...)
		},
	}
}
