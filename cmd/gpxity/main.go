// Command gpxity manages GPX activities across backends: local directories,
// sqlite files and postgres databases.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gpxity/gpxity/internal/backend"
	"github.com/gpxity/gpxity/internal/config"
	"github.com/gpxity/gpxity/internal/ui"

	_ "github.com/gpxity/gpxity/internal/store/directory"
	_ "github.com/gpxity/gpxity/internal/store/postgres"
	_ "github.com/gpxity/gpxity/internal/store/sqlite"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app carries the state shared by all commands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	chdir      string
	logFile    string
	plain      bool

	cfg     *config.Config
	logger  *log.Logger
	closers []io.Closer
}

// run executes one command line and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "gpxity",
		Short: "Manage GPX activities across backends",
		Long: `gpxity lists, edits and synchronizes GPX activities.

Backends are addressed by a name from the config file or as kind:location:
  directory:~/gpx          one .gpx file per activity
  serverdirectory:/srv/gpx directory with numeric ids
  sqlite:tracks.db         sqlite database
  postgres:postgres://host/db

Configuration is read from ~/.config/gpxity/config.yaml and ./gpxity.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.AddGroup(
		&cobra.Group{ID: "basics", Title: "Working with activities:"},
		&cobra.Group{ID: "sync", Title: "Synchronization:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Read only this config file")
	flags.StringVarP(&a.chdir, "chdir", "C", "", "Change to directory before doing anything")
	flags.StringVar(&a.logFile, "log-file", "", "Write logs to a rotating file instead of stderr")
	flags.BoolVar(&a.plain, "plain", false, "Disable colors")

	root.AddCommand(
		newLsCmd(a),
		newShowCmd(a),
		newImportCmd(a),
		newEditCmd(a),
		newKeywordCmd(a),
		newRmCmd(a),
		newSyncCmd(a),
		newDiffCmd(a),
		newWatchCmd(a),
		newTimeCmd(a),
		newBackendsCmd(a),
	)
	return root
}

func (a *app) setup() error {
	if a.chdir != "" {
		if err := os.Chdir(a.chdir); err != nil {
			return fmt.Errorf("failed to change directory: %w", err)
		}
	}

	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFiles(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logFile := a.logFile
	if logFile == "" {
		logFile = a.cfg.LogFile
	}
	var out io.Writer = a.stderr
	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		a.closers = append(a.closers, rotating)
		out = rotating
	}
	a.logger = log.New(out, "[gpxity] ", log.LstdFlags)

	if f, ok := a.stdout.(*os.File); ok {
		ui.Setup(f, a.plain)
	} else {
		ui.Setup(nil, true)
	}
	return nil
}

// prefixed returns a logger writing where the app logs.
func (a *app) prefixed(prefix string) *log.Logger {
	return log.New(a.logger.Writer(), prefix, log.LstdFlags)
}

// open opens a backend argument. It is closed when the command ends.
func (a *app) open(name string) (*backend.Backend, error) {
	b, err := a.cfg.Open(name, backend.WithLogger(a.prefixed("[backend] ")))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, b)
	return b, nil
}

// find opens name and checks that it holds id.
func (a *app) find(name, id string) (*backend.Backend, error) {
	b, err := a.open(name)
	if err != nil {
		return nil, err
	}
	if b.Get(id) == nil {
		return nil, fmt.Errorf("%w: %s in %s", backend.ErrNotFound, id, b)
	}
	return b, nil
}

func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(a.stderr, "WARNING: %v\n", err)
	}
}
