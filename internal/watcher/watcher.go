// Package watcher keeps a published index in step with the working
// tree: fsnotify events are filtered against ignore rules, coalesced
// in a debounce window and applied through the incremental index
// coordinator.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codeqa/codeqa/internal/gitignore"
)

// Operation classifies a file system change.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one debounced change to a root-relative path.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long to coalesce bursts of events for the
	// same path before emitting them.
	DebounceWindow time.Duration

	// EventBufferSize is the output channel capacity.
	EventBufferSize int

	// IgnorePatterns are extra gitignore-syntax patterns on top of the
	// root .gitignore.
	IgnorePatterns []string
}

func (o Options) withDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 200 * time.Millisecond
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = 1000
	}
	return o
}

// Watcher watches a directory tree with fsnotify and emits debounced
// event batches.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	ignore    *gitignore.Matcher
	events    chan []FileEvent
	errors    chan error
	root      string
	opts      Options

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// New creates a watcher for the given root directory. The index data
// directory and .git are always ignored.
func New(root string, opts Options) (*Watcher, error) {
	opts = opts.withDefaults()
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	ignore := gitignore.New()
	ignore.AddPattern(".git/")
	ignore.AddPattern(".codeqa/")
	for _, p := range opts.IgnorePatterns {
		ignore.AddPattern(p)
	}
	if gi := filepath.Join(absRoot, ".gitignore"); fileExists(gi) {
		_ = ignore.AddFromFile(gi, "")
	}

	return &Watcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		ignore:    ignore,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		root:      absRoot,
		opts:      opts,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start watches the tree until the context is cancelled or Stop is
// called. It blocks; run it in a goroutine and consume Events.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("watch directories: %w", err)
	}
	go w.forward(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// Events returns debounced event batches. The channel is closed when
// the watcher stops.
func (w *Watcher) Events() <-chan []FileEvent { return w.events }

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Stop shuts the watcher down. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	err := w.fsw.Close()
	close(w.events)
	close(w.errors)
	return err
}

// handle converts, filters and debounces one fsnotify event.
func (w *Watcher) handle(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}
	if w.ignore.Match(relPath, isDir) || strings.HasPrefix(relPath, "..") {
		return
	}

	// Reload ignore rules when the root .gitignore changes; already
	// indexed but newly ignored files stay until the next full build.
	if relPath == ".gitignore" {
		fresh := gitignore.New()
		fresh.AddPattern(".git/")
		fresh.AddPattern(".codeqa/")
		for _, p := range w.opts.IgnorePatterns {
			fresh.AddPattern(p)
		}
		_ = fresh.AddFromFile(event.Name, "")
		w.mu.Lock()
		w.ignore = fresh
		w.mu.Unlock()
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		// New directories must be watched; fsnotify is not recursive.
		if isDir {
			_ = w.addRecursive(event.Name)
			return
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		// The old name is gone; the new name arrives as its own
		// create event.
		op = OpDelete
	default:
		return
	}
	if isDir {
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      relPath,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// forward moves debounced batches to the output channel.
func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) == 0 {
				continue
			}
			select {
			case w.events <- batch:
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// addRecursive registers root and every non-ignored directory under it.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		relPath, rerr := filepath.Rel(w.root, path)
		if rerr != nil {
			return nil
		}
		if relPath == "." {
			return w.fsw.Add(path)
		}
		if w.ignore.Match(relPath, true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
