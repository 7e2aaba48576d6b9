package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gpxity/gpxity/internal/activity"
	"github.com/gpxity/gpxity/internal/track"
	"github.com/gpxity/gpxity/internal/ui"
)

const timeLayout = "2006-01-02 15:04"

func newLsCmd(a *app) *cobra.Command {
	var (
		since string
		long  bool
	)
	cmd := &cobra.Command{
		Use:     "ls BACKEND...",
		GroupID: "basics",
		Short:   "List activities",
		Long: `List the activities of one or more backends, oldest first.

--since accepts dates (2017-03-04) and phrases like "last week" or
"3 days ago".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cutoff time.Time
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				cutoff = t
			}

			width := 0
			if f, ok := a.stdout.(*os.File); ok && ui.IsTerminal(f) {
				width = ui.Width(f)
			}

			for _, name := range args {
				b, err := a.open(name)
				if err != nil {
					return err
				}
				if len(args) > 1 {
					fmt.Fprintln(a.stdout, ui.Title(b.String()))
				}
				list := b.Activities()
				sortByTime(list)
				for _, act := range list {
					if !cutoff.IsZero() && act.Time().Before(cutoff) {
						continue
					}
					line := formatLine(act, long)
					if width > 0 {
						line = ui.Truncate(line, width)
					}
					fmt.Fprintln(a.stdout, line)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only list activities starting at or after this time")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Also show point counts and keywords")
	return cmd
}

func sortByTime(list []*activity.Activity) {
	sort.SliceStable(list, func(i, j int) bool {
		ti, tj := list[i].Time(), list[j].Time()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return list[i].ID() < list[j].ID()
	})
}

func formatLine(act *activity.Activity, long bool) string {
	start := "-"
	if t := act.Time(); !t.IsZero() {
		start = t.UTC().Format(timeLayout)
	}
	line := fmt.Sprintf("%-24s %-16s %-14s %s", act.ID(), start, act.What(), act.Title())
	if long {
		line += fmt.Sprintf("  [%d points] %s", act.PointCount(), strings.Join(act.Keywords(), ", "))
	}
	return strings.TrimRight(line, " ")
}

// parseSince understands dates and natural language phrases relative to now.
func parseSince(text string, now time.Time) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, timeLayout, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: not a time", text)
	}
	return r.Time, nil
}

// activityView is the yaml form of an activity.
type activityView struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description,omitempty"`
	What        string    `yaml:"what"`
	Public      bool      `yaml:"public"`
	Keywords    []string  `yaml:"keywords,omitempty"`
	Start       time.Time `yaml:"start,omitempty"`
	End         time.Time `yaml:"end,omitempty"`
	Points      int       `yaml:"points"`
	Angle       float64   `yaml:"angle"`
}

func viewOf(act *activity.Activity) activityView {
	return activityView{
		ID:          act.ID(),
		Title:       act.Title(),
		Description: act.Description(),
		What:        act.What(),
		Public:      act.Public(),
		Keywords:    act.Keywords(),
		Start:       act.Time().UTC(),
		End:         act.LastTime().UTC(),
		Points:      act.PointCount(),
		Angle:       act.Angle(),
	}
}

func newShowCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "show BACKEND ID",
		GroupID: "basics",
		Short:   "Show one activity",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.find(args[0], args[1])
			if err != nil {
				return err
			}
			act := b.Get(args[1])
			if err := act.Load(); err != nil {
				return err
			}

			switch format {
			case "text":
				v := viewOf(act)
				lines := []string{
					ui.Title(v.Title),
					ui.Accent(v.ID) + " " + ui.Muted(b.String()),
					fmt.Sprintf("%s, %d points, angle %.0f°", v.What, v.Points, v.Angle),
				}
				if !v.Start.IsZero() {
					lines = append(lines, v.Start.Format(timeLayout)+" - "+v.End.Format(timeLayout))
				}
				if v.Description != "" {
					lines = append(lines, v.Description)
				}
				if len(v.Keywords) > 0 {
					lines = append(lines, "Keywords: "+strings.Join(v.Keywords, ", "))
				}
				if v.Public {
					lines = append(lines, "public")
				}
				fmt.Fprintln(a.stdout, ui.Panel(lines))
			case "yaml":
				out, err := yaml.Marshal(viewOf(act))
				if err != nil {
					return fmt.Errorf("failed to encode yaml: %w", err)
				}
				fmt.Fprint(a.stdout, string(out))
			case "gpx":
				xml, err := act.ToXML()
				if err != nil {
					return err
				}
				fmt.Fprint(a.stdout, xml)
			default:
				return fmt.Errorf("unknown format %q (want text, yaml or gpx)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, yaml or gpx")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "import BACKEND FILE...",
		GroupID: "basics",
		Short:   "Store GPX files in a backend",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.open(args[0])
			if err != nil {
				return err
			}
			for _, path := range args[1:] {
				doc, err := track.ReadFile(path)
				if err != nil {
					return err
				}
				act, err := activity.New(activity.WithDocument(doc))
				if err != nil {
					return fmt.Errorf("failed to import %s: %w", path, err)
				}
				hint := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				saved, err := b.SaveAs(act, hint)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, ui.Success(fmt.Sprintf("imported %s as %s", path, saved.ID())))
			}
			return nil
		},
	}
}
