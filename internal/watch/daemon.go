package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gpxity/gpxity/internal/backend"
	"github.com/gpxity/gpxity/internal/observability"
	"github.com/gpxity/gpxity/internal/store/directory"
)

// Notifier is told about changes the daemon processes. The dashboard
// implements it.
type Notifier interface {
	ActivityChanged(ev FileEvent)
	SyncCompleted(report backend.SyncReport, err error)
}

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a file must stay quiet before it is
	// mirrored. Rapid updates are batched into one sync.
	DebounceInterval time.Duration

	// SyncOptions are passed to every SyncFrom. The default mirrors
	// deletions too.
	SyncOptions []backend.SyncOption

	// Notifier receives events and sync reports. It may be nil.
	Notifier Notifier

	Logger *log.Logger
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		SyncOptions:      []backend.SyncOption{backend.WithRemove()},
		Logger:           log.New(os.Stderr, "[watch] ", log.LstdFlags),
	}
}

// Daemon keeps sink a mirror of the GPX files in a directory. After an
// initial full sync it syncs again whenever files in the directory settle.
// The sink is only touched from the daemon's own goroutine.
type Daemon struct {
	dir    string
	source *directory.Store
	sink   *backend.Backend
	config *Config

	watcher       *FileWatcher
	changeQueue   map[string]queued
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type queued struct {
	event FileEvent
	at    time.Time
}

// New creates a daemon mirroring dir into sink with the default config.
func New(dir string, sink *backend.Backend) (*Daemon, error) {
	return NewWithConfig(dir, sink, DefaultConfig())
}

// NewWithConfig creates a daemon with a custom configuration.
func NewWithConfig(dir string, sink *backend.Backend, config *Config) (*Daemon, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir cannot be empty")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	source, err := directory.New(dir, directory.WithReadOnly())
	if err != nil {
		return nil, err
	}
	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		dir:         source.Location(),
		source:      source,
		sink:        sink,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]queued),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start performs a full sync and then mirrors changes until ctx is
// cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting daemon for %s -> %s", d.dir, d.sink)

	if err := d.PerformFullSync(); err != nil {
		d.watcher.Stop()
		return fmt.Errorf("initial sync failed: %w", err)
	}

	if err := d.watcher.Start(d.dir); err != nil {
		d.watcher.Stop()
		return err
	}
	d.config.Logger.Printf("Watching: %s", d.dir)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for its goroutines.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")
	d.cancel()

	if err := d.watcher.Stop(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// PerformFullSync rescans the directory and syncs it into the sink. Only
// failures to read the directory or the sink are returned; failures of
// single activities are logged.
func (d *Daemon) PerformFullSync() error {
	source, err := backend.Open(d.source, backend.WithLogger(d.config.Logger))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", d.dir, err)
	}
	if err := d.sink.Scan(); err != nil {
		return err
	}

	report, err := d.sink.SyncFrom(source, d.config.SyncOptions...)
	if err != nil {
		d.config.Logger.Printf("WARNING: sync finished with errors: %v", err)
	}
	if d.config.Notifier != nil {
		d.config.Notifier.SyncCompleted(report, err)
	}
	return nil
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	events := d.watcher.Events()
	errs := d.watcher.Errors()
	for {
		select {
		case <-d.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			observability.RecordWatchEvent(ev.Op.String())
			d.config.Logger.Printf("File event: %s %s", ev.Op, ev.Path)
			d.queueChange(ev)

		case err, ok := <-errs:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) queueChange(ev FileEvent) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[ev.Path] = queued{event: ev, at: time.Now()}
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges syncs once if any queued file has been quiet for the
// debounce interval. Files still changing stay queued.
func (d *Daemon) processPendingChanges() {
	now := time.Now()

	d.changeQueueMu.Lock()
	var ready []FileEvent
	for path, q := range d.changeQueue {
		if now.Sub(q.at) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, q.event)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	if len(ready) == 0 {
		return
	}
	for _, ev := range ready {
		d.config.Logger.Printf("Processing change: %s %s", ev.Op, ev.ID)
		if d.config.Notifier != nil {
			d.config.Notifier.ActivityChanged(ev)
		}
	}
	if err := d.PerformFullSync(); err != nil {
		d.config.Logger.Printf("Error syncing %s: %v", d.dir, err)
	}
}
