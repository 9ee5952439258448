// Package watcher reports changes to template files with debouncing, so an
// editor saving a page several times in a row triggers a single rescan.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/tagfill/internal/logging"
	"github.com/conneroisu/tagfill/internal/scanner"
	"github.com/conneroisu/tagfill/internal/validation"
)

// Kind is what happened to a file.
type Kind int

const (
	// Written covers creation and modification; the file should be scanned.
	Written Kind = iota
	// Removed covers deletion and the old name of a rename.
	Removed
)

func (k Kind) String() string {
	switch k {
	case Written:
		return "written"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is a coalesced change to one file.
type Change struct {
	Kind Kind
	Path string
}

// Filter reports whether changes to path are of interest.
type Filter func(path string) bool

// Handler receives each batch of changes, sorted by path.
type Handler func(ctx context.Context, changes []Change) error

// FileWatcher watches directory trees and delivers batches of changes once
// the file system has been quiet for the debounce delay.
type FileWatcher struct {
	fs     *fsnotify.Watcher
	delay  time.Duration
	queue  chan Change
	logger logging.Logger

	mu       sync.RWMutex
	filters  []Filter
	handlers []Handler

	done     chan struct{}
	stopOnce sync.Once
}

// NewFileWatcher creates a watcher that batches changes arriving within
// delay of each other.
func NewFileWatcher(delay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &FileWatcher{
		fs:     w,
		delay:  delay,
		queue:  make(chan Change, 128),
		logger: logger.WithComponent("watcher"),
		done:   make(chan struct{}),
	}, nil
}

// AddFilter adds a filter. A change is delivered only if every filter
// accepts its path.
func (fw *FileWatcher) AddFilter(filter Filter) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a handler for change batches.
func (fw *FileWatcher) AddHandler(handler Handler) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddRecursive watches root and every directory below it, skipping .git.
func (fw *FileWatcher) AddRecursive(root string) error {
	if err := validation.ValidatePath(root); err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}
	return filepath.WalkDir(filepath.Clean(root), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return fw.fs.Add(path)
	})
}

// WatchedPaths returns the watched directories, sorted.
func (fw *FileWatcher) WatchedPaths() []string {
	paths := fw.fs.WatchList()
	sort.Strings(paths)
	return paths
}

// Start delivers changes in the background until ctx is done or Stop is
// called.
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.batch(ctx)
	go fw.watch(ctx)
	return nil
}

// Stop releases the underlying watcher. Pending changes are discarded.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.done)
		err = fw.fs.Close()
	})
	return err
}

func (fw *FileWatcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.fs.Events:
			if !ok {
				return
			}
			fw.translate(ctx, event)
		case err, ok := <-fw.fs.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

// translate turns one fsnotify event into queued changes. A new directory
// is watched and the files already inside it are queued, since they may
// have been written before the watch was in place.
func (fw *FileWatcher) translate(ctx context.Context, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		fw.enqueue(ctx, Change{Kind: Removed, Path: event.Name})
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
			}
			fw.enqueueTree(ctx, event.Name)
			return
		}
		fw.enqueue(ctx, Change{Kind: Written, Path: event.Name})
	case event.Has(fsnotify.Write):
		fw.enqueue(ctx, Change{Kind: Written, Path: event.Name})
	}
}

func (fw *FileWatcher) enqueueTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		fw.enqueue(ctx, Change{Kind: Written, Path: path})
		return nil
	})
}

func (fw *FileWatcher) enqueue(ctx context.Context, change Change) {
	fw.mu.RLock()
	filters := fw.filters
	fw.mu.RUnlock()
	for _, accept := range filters {
		if !accept(change.Path) {
			return
		}
	}

	select {
	case fw.queue <- change:
	case <-ctx.Done():
	case <-fw.done:
	}
}

// batch coalesces queued changes per path, the latest kind winning, and
// hands them to the handlers once no change has arrived for the delay.
func (fw *FileWatcher) batch(ctx context.Context) {
	pending := make(map[string]Kind)
	timer := time.NewTimer(fw.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case change := <-fw.queue:
			pending[change.Path] = change.Kind
			timer.Reset(fw.delay)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			fw.dispatch(ctx, drain(pending))
		}
	}
}

func drain(pending map[string]Kind) []Change {
	changes := make([]Change, 0, len(pending))
	for path, kind := range pending {
		changes = append(changes, Change{Kind: kind, Path: path})
		delete(pending, path)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

func (fw *FileWatcher) dispatch(ctx context.Context, changes []Change) {
	fw.mu.RLock()
	handlers := fw.handlers
	fw.mu.RUnlock()

	for _, handle := range handlers {
		if err := handle(ctx, changes); err != nil {
			fw.logger.Error(ctx, err, "Change handler failed", "changes", len(changes))
		}
	}
}

// NoGitFilter rejects paths inside a .git directory.
func NoGitFilter(path string) bool {
	path = filepath.ToSlash(path)
	return !strings.HasPrefix(path, ".git/") && !strings.Contains(path, "/.git/")
}

// ScannerFilter accepts the files s would scan.
func ScannerFilter(s *scanner.TemplateScanner) Filter {
	return s.Matches
}

// RescanHandler keeps the registry in sync with the files on disk: written
// files are rescanned and removed ones are unregistered. A file that fails
// to scan keeps its previous templates and the first failure is returned
// after the rest of the batch is handled.
func RescanHandler(s *scanner.TemplateScanner, logger logging.Logger) Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return func(ctx context.Context, changes []Change) error {
		var firstErr error
		for _, change := range changes {
			if change.Kind == Removed {
				removed := s.RemoveFile(change.Path)
				logger.Info(ctx, "Templates removed", "file", change.Path, "templates", removed)
				continue
			}
			if err := s.ScanFile(change.Path); err != nil {
				logging.LogFillError(ctx, logger, err, "Rescan failed")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			logger.Debug(ctx, "File rescanned", "file", change.Path)
		}
		return firstErr
	}
}
