package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"roboharbor/pkg/logging"
)

const fileSubsystem = "CatalogFile"

// fileDocument is the on-disk layout of an image catalog file.
type fileDocument struct {
	Images []Image `yaml:"images"`
}

// File is a catalog loaded from a YAML file. Watch keeps it in sync with the
// file on disk.
type File struct {
	*Memory

	path             string
	debounceInterval time.Duration
}

// LoadFile reads path and returns a catalog over its images.
func LoadFile(path string) (*File, error) {
	f := &File{
		Memory:           NewMemory(),
		path:             path,
		debounceInterval: 200 * time.Millisecond,
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload re-reads the catalog file. On error the previous images are kept.
func (f *File) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read image catalog %s: %w", f.path, err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse image catalog %s: %w", f.path, err)
	}
	if err := validateImages(doc.Images); err != nil {
		return fmt.Errorf("invalid image catalog %s: %w", f.path, err)
	}
	f.Replace(doc.Images)
	logging.Debug(fileSubsystem, "Loaded %d images from %s", len(doc.Images), f.path)
	return nil
}

// Watch reloads the catalog whenever the file changes, until ctx is done.
// The parent directory is watched so that editors replacing the file
// atomically are handled.
func (f *File) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(f.path), err)
	}

	go f.processEvents(ctx, watcher)
	logging.Info(fileSubsystem, "Watching %s for image catalog changes", f.path)
	return nil
}

func (f *File) processEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(f.debounceInterval, func() {
				if err := f.Reload(); err != nil {
					logging.Error(fileSubsystem, err, "Keeping previous image catalog")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error(fileSubsystem, err, "Catalog watcher error")
		}
	}
}
