// Package watch feeds new videos dropped into a directory to a handler.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultExtensions are the video containers picked up by default.
var DefaultExtensions = []string{".mp4", ".mkv", ".mov", ".flv", ".ts", ".webm"}

// DefaultSettle is how long a file must go unmodified before it is handled.
const DefaultSettle = 5 * time.Second

// Options control which files are handled and when.
type Options struct {
	Extensions []string
	Settle     time.Duration
	// Existing also handles matching files already present at startup.
	Existing bool
}

// Handler processes one settled file. Calls are sequential.
type Handler func(ctx context.Context, path string)

// Watcher debounces filesystem events per file and hands each settled file to
// the handler once.
type Watcher struct {
	logger  zerolog.Logger
	opts    Options
	handler Handler
}

// New creates a Watcher. Empty options take the defaults.
func New(logger zerolog.Logger, opts Options, handler Handler) *Watcher {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	exts := make([]string, 0, len(opts.Extensions))
	for _, e := range opts.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	opts.Extensions = exts
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	return &Watcher{
		logger:  logger.With().Str("component", "watch").Logger(),
		opts:    opts,
		handler: handler,
	}
}

// Matches reports whether path has a watched extension. Partial outputs are
// never matched.
func (w *Watcher) Matches(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasPrefix(base, ".") || strings.Contains(base, ".part.") {
		return false
	}
	return slices.Contains(w.opts.Extensions, filepath.Ext(base))
}

// Run watches dir until ctx is done. The handler in progress, if any, is
// waited for before Run returns.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	done := make(chan struct{})
	fired := make(chan string)
	ready := make(chan string)
	handled := make(chan struct{})

	go func() {
		defer close(handled)
		for path := range ready {
			w.logger.Info().Str("file", path).Msg("processing")
			w.handler(ctx, path)
		}
	}()

	timers := make(map[string]*time.Timer)
	seen := make(map[string]bool)
	var queue []string

	defer func() {
		for _, t := range timers {
			t.Stop()
		}
		close(done)
		close(ready)
		<-handled
	}()

	schedule := func(path string) {
		if seen[path] {
			return
		}
		if t, ok := timers[path]; ok {
			t.Reset(w.opts.Settle)
			return
		}
		timers[path] = time.AfterFunc(w.opts.Settle, func() {
			select {
			case fired <- path:
			case <-done:
			}
		})
	}

	if w.opts.Existing {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("list %s: %w", dir, err)
		}
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if !e.IsDir() && w.Matches(path) {
				schedule(path)
			}
		}
	}

	w.logger.Info().
		Str("dir", dir).
		Strs("extensions", w.opts.Extensions).
		Dur("settle", w.opts.Settle).
		Msg("watching for new videos")

	for {
		// Only offer the queue head when there is one.
		var out chan string
		var next string
		if len(queue) > 0 {
			out, next = ready, queue[0]
		}

		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if w.Matches(ev.Name) {
				w.logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("file event")
				schedule(ev.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")

		case path := <-fired:
			delete(timers, path)
			if seen[path] {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			seen[path] = true
			queue = append(queue, path)

		case out <- next:
			queue = queue[1:]
		}
	}
}
