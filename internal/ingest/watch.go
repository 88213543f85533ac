package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dealbrain/dealbrain/internal/log"
)

// debounceWindow coalesces rapid write events for the same file, which
// editors tend to emit in bursts.
const debounceWindow = 500 * time.Millisecond

// Watcher re-ingests markdown files as they change on disk.
type Watcher struct {
	pipeline *Pipeline
	basePath string
	logger   log.Logger
}

// NewWatcher creates a watcher over the knowledge base at basePath.
func NewWatcher(pipeline *Pipeline, basePath string, logger log.Logger) *Watcher {
	return &Watcher{pipeline: pipeline, basePath: basePath, logger: logger}
}

// Watch blocks until ctx is done, re-ingesting each markdown file when it
// is created or written. New subdirectories are added to the watch set as
// they appear.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	err = filepath.WalkDir(w.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.logger.Info("watching knowledge base", "path", w.basePath)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounceWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) && isDir(event.Name) {
				if addErr := fw.Add(event.Name); addErr != nil {
					w.logger.Warn("failed to watch new directory", "path", event.Name, "error", addErr)
				}
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)

		case <-ticker.C:
			now := time.Now()
			for path, seen := range pending {
				if now.Sub(seen) < debounceWindow {
					continue
				}
				delete(pending, path)

				n, ingestErr := w.pipeline.IngestFile(ctx, path)
				if ingestErr != nil {
					w.logger.Error("failed to re-ingest file", "path", path, "error", ingestErr)
					continue
				}
				w.logger.Info("file re-ingested", "path", path, "chunks", n)
			}
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
