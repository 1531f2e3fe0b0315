// Package watch ingests files dropped into an inbox directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bull/docsearch/internal/ingest"
	"github.com/bull/docsearch/internal/storage"
)

// DefaultSettle is how long a file must go without writes before it is ingested.
const DefaultSettle = 500 * time.Millisecond

// Documents stores and processes inbox files.
type Documents interface {
	Upload(ctx context.Context, req ingest.UploadRequest) (*storage.Document, error)
	Process(ctx context.Context, id int64) (int, error)
	Allowed(name string) bool
}

// Queue schedules background processing.
type Queue interface {
	Enqueue(id int64) error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		w.settle = d
	}
}

// WithOwner sets the owner recorded on ingested documents.
func WithOwner(owner string) Option {
	return func(w *Watcher) {
		w.owner = owner
	}
}

// Watcher uploads every accepted file that appears in dir and removes it from dir afterwards.
// Files that fail to upload stay where they are.
type Watcher struct {
	dir    string
	docs   Documents
	queue  Queue
	owner  string
	settle time.Duration
	logger *slog.Logger
}

// New creates a watcher. With a nil queue files are processed synchronously.
func New(dir string, docs Documents, queue Queue, logger *slog.Logger, opts ...Option) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		dir:    dir,
		docs:   docs,
		queue:  queue,
		settle: DefaultSettle,
		logger: logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run ingests the files already in the inbox, then watches it until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("Watching inbox", "dir", w.dir)

	if err := w.scan(ctx); err != nil {
		return err
	}

	ready := make(chan string)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			path, accepted := w.accept(ev)
			if !accepted {
				continue
			}
			// Each write restarts the settle timer.
			if t, pending := timers[path]; pending {
				t.Reset(w.settle)
				continue
			}
			timers[path] = time.AfterFunc(w.settle, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(timers, path)
			w.ingest(ctx, path)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Inbox watcher error", "error", err)
		}
	}
}

// accept reports whether ev announces content for a regular, visible, allowed file.
func (w *Watcher) accept(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	if !w.eligible(ev.Name) {
		return "", false
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return ev.Name, true
}

func (w *Watcher) eligible(path string) bool {
	name := filepath.Base(path)
	return !strings.HasPrefix(name, ".") && w.docs.Allowed(name)
}

// scan ingests files that were in the inbox before watching started.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil
		}
		if !e.Type().IsRegular() || !w.eligible(e.Name()) {
			continue
		}
		w.ingest(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// ingest uploads path, schedules processing and removes it from the inbox.
func (w *Watcher) ingest(ctx context.Context, path string) {
	logger := w.logger.With("path", path)

	doc, err := w.upload(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("Inbox file vanished before ingestion")
			return
		}
		logger.Warn("Failed to ingest inbox file", "error", err)
		return
	}
	if err := os.Remove(path); err != nil {
		logger.Warn("Failed to remove ingested inbox file", "error", err)
	}

	if w.queue != nil {
		if err := w.queue.Enqueue(doc.ID); err != nil {
			logger.Error("Failed to queue document", "document_id", doc.ID, "error", err)
		}
		return
	}
	if _, err := w.docs.Process(ctx, doc.ID); err != nil {
		logger.Warn("Processing inbox document failed", "document_id", doc.ID, "error", err)
	}
}

func (w *Watcher) upload(ctx context.Context, path string) (*storage.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	doc, err := w.docs.Upload(ctx, ingest.UploadRequest{
		Filename: filepath.Base(path),
		Reader:   f,
		Size:     info.Size(),
		Owner:    w.owner,
	})
	if err != nil {
		return nil, err
	}
	w.logger.Info("Ingested inbox file", "path", path, "document_id", doc.ID)
	return doc, nil
}
