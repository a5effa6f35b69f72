// Package inbox imports project export files dropped into a directory.
//
// The inbox:
//  1. Imports files already present when it starts
//  2. Watches the directory for new or rewritten *.json, *.yaml and *.yml files
//  3. Waits until a file has been quiet for the debounce interval, then imports it
//  4. Renames the file to <name>.imported, or <name>.failed when it could not be read
package inbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/manager"
	"github.com/sitebook/sitebook/internal/notify"
	"github.com/sitebook/sitebook/internal/schema"
)

const (
	ImportedSuffix = ".imported"
	FailedSuffix   = ".failed"
)

// Importer creates projects from an export file.
type Importer interface {
	Import(r io.Reader, format schema.Format) (manager.ImportResult, error)
}

// Notifier shows the outcome of each import.
type Notifier interface {
	Success(text string, opts ...notify.Option) (notify.Notification, bool)
	Error(text string, opts ...notify.Option) (notify.Notification, bool)
}

// Config holds configuration for the inbox.
type Config struct {
	// Debounce is how long a file must go without events before it is
	// imported. Editors and copies write in several steps.
	Debounce time.Duration

	// Logger for inbox activity
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce: 500 * time.Millisecond,
		Logger:   zap.NewNop(),
	}
}

// Inbox watches a directory and imports what lands in it.
type Inbox struct {
	dir      string
	importer Importer
	notifier Notifier
	config   *Config
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	queue   map[string]time.Time // path -> last event
	queueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an inbox over dir, creating the directory if needed. Use Start
// to begin watching.
func New(dir string, importer Importer, notifier Notifier, config *Config) (*Inbox, error) {
	if dir == "" {
		return nil, fmt.Errorf("inbox directory cannot be empty")
	}
	if importer == nil {
		return nil, fmt.Errorf("importer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Inbox{
		dir:      dir,
		importer: importer,
		notifier: notifier,
		config:   config,
		logger:   logger.With(zap.String("component", "inbox")),
		watcher:  watcher,
		queue:    make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start imports files already in the directory, then watches it. It blocks
// until ctx is cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.logger.Info("Starting inbox", zap.String("dir", in.dir))

	if err := in.watcher.Add(in.dir); err != nil {
		return fmt.Errorf("failed to watch inbox directory: %w", err)
	}

	if err := in.ScanExisting(); err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}

	in.wg.Add(2)
	go in.watchFileEvents()
	go in.processQueue()

	select {
	case <-ctx.Done():
		in.logger.Info("Shutdown signal received")
		return in.Stop()
	case <-in.ctx.Done():
		return nil
	}
}

// Stop shuts the inbox down and waits for its goroutines.
func (in *Inbox) Stop() error {
	in.cancel()

	if err := in.watcher.Close(); err != nil {
		in.logger.Warn("Error closing watcher", zap.Error(err))
	}

	in.wg.Wait()

	in.logger.Info("Inbox stopped")
	return nil
}

// ScanExisting imports every candidate file currently in the directory, in
// name order.
func (in *Inbox) ScanExisting() error {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isCandidate(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(in.dir, e.Name()))
	}
	sort.Strings(paths)
	for _, p := range paths {
		_ = in.ProcessFile(p)
	}
	return nil
}

func isCandidate(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// watchFileEvents monitors filesystem events and queues changes.
func (in *Inbox) watchFileEvents() {
	defer in.wg.Done()

	for {
		select {
		case <-in.ctx.Done():
			return

		case event, ok := <-in.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isCandidate(filepath.Base(event.Name)) {
				continue
			}
			in.logger.Debug("File event", zap.String("op", event.Op.String()), zap.String("path", event.Name))
			in.queueChange(event.Name)

		case err, ok := <-in.watcher.Errors:
			if !ok {
				return
			}
			in.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

// queueChange records the latest event time for path.
func (in *Inbox) queueChange(path string) {
	in.queueMu.Lock()
	defer in.queueMu.Unlock()

	in.queue[path] = time.Now()
}

// processQueue imports queued files once they have settled.
func (in *Inbox) processQueue() {
	defer in.wg.Done()

	ticker := time.NewTicker(in.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-in.ctx.Done():
			return
		case <-ticker.C:
			for _, path := range in.settled(time.Now()) {
				_ = in.ProcessFile(path)
			}
		}
	}
}

// settled removes and returns the queued paths that have been quiet for the
// debounce interval.
func (in *Inbox) settled(now time.Time) []string {
	in.queueMu.Lock()
	defer in.queueMu.Unlock()

	var ready []string
	for path, at := range in.queue {
		if now.Sub(at) < in.config.Debounce {
			continue
		}
		ready = append(ready, path)
		delete(in.queue, path)
	}
	sort.Strings(ready)
	return ready
}

// ProcessFile imports one file and renames it so it is not imported again.
func (in *Inbox) ProcessFile(path string) error {
	name := filepath.Base(path)

	err := in.importFile(path)
	suffix := ImportedSuffix
	if err != nil {
		suffix = FailedSuffix
		in.logger.Error("Import failed", zap.String("file", name), zap.Error(err))
		if in.notifier != nil {
			in.notifier.Error(fmt.Sprintf("Import of %s failed: %v", name, err))
		}
	}

	if _, statErr := os.Stat(path); statErr == nil {
		if renameErr := os.Rename(path, path+suffix); renameErr != nil {
			in.logger.Warn("Failed to rename processed file", zap.String("file", name), zap.Error(renameErr))
		}
	}
	return err
}

func (in *Inbox) importFile(path string) error {
	format, err := schema.ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	res, err := in.importer.Import(f, format)
	if err != nil {
		return err
	}

	in.logger.Info("Imported file",
		zap.String("file", filepath.Base(path)),
		zap.Int("created", res.Created),
		zap.Int("todos", res.Todos),
		zap.Int("skipped", len(res.Skipped)),
	)
	if in.notifier != nil {
		in.notifier.Success(fmt.Sprintf("%s: %s", filepath.Base(path), res.Message()))
	}
	return nil
}
