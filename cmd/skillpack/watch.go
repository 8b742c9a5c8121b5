package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jingkaihe/skillpack/pkg/config"
	"github.com/jingkaihe/skillpack/pkg/logger"
	"github.com/jingkaihe/skillpack/pkg/presenter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// WatchConfig holds configuration for the watch command
type WatchConfig struct {
	DebounceTime int
	IgnoreDirs   []string
}

// NewWatchConfig creates a new WatchConfig with default values
func NewWatchConfig() *WatchConfig {
	return &WatchConfig{
		DebounceTime: 500,
		IgnoreDirs:   []string{".git", "node_modules"},
	}
}

// Validate validates the WatchConfig and returns an error if invalid
func (c *WatchConfig) Validate() error {
	if c.DebounceTime < 0 {
		return errors.Errorf("debounce time cannot be negative: %d", c.DebounceTime)
	}
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild whenever the source directory changes",
	Long: `Run a build, then watch the source directory and run the build again
once changes have settled for the debounce period. Builds never overlap.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		wc := getWatchConfigFromFlags(cmd)
		if err := wc.Validate(); err != nil {
			return err
		}
		return runWatchMode(cmd.Context(), cfg, wc)
	},
}

func init() {
	defaults := NewWatchConfig()
	watchCmd.Flags().IntP("debounce", "d", defaults.DebounceTime, "Debounce time in milliseconds for file change events")
	watchCmd.Flags().StringSliceP("ignore", "i", defaults.IgnoreDirs, "Directory names to ignore")
}

func getWatchConfigFromFlags(cmd *cobra.Command) *WatchConfig {
	wc := NewWatchConfig()
	if debounceTime, err := cmd.Flags().GetInt("debounce"); err == nil {
		wc.DebounceTime = debounceTime
	}
	if ignoreDirs, err := cmd.Flags().GetStringSlice("ignore"); err == nil {
		wc.IgnoreDirs = ignoreDirs
	}
	return wc
}

func runWatchMode(ctx context.Context, c *config.Config, wc *WatchConfig) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	rw := &rebuildWatcher{
		delay:      time.Duration(wc.DebounceTime) * time.Millisecond,
		ignoreDirs: wc.IgnoreDirs,
		skipRoots:  absPaths(c.OutputDir, c.ArchiveDir),
		add:        watcher.Add,
		rebuild: func(ctx context.Context, changed []string) {
			presenter.Info(fmt.Sprintf("Change detected in %d path(s), rebuilding", len(changed)))
			if _, err := runBuild(ctx, c); err != nil {
				presenter.Error(err, "Build failed")
			}
		},
	}

	if _, err := runBuild(ctx, c); err != nil {
		presenter.Error(err, "Build failed")
	}

	if err := rw.addTree(ctx, c.SourceDir); err != nil {
		return errors.Wrap(err, "failed to watch source directory")
	}

	presenter.Info(fmt.Sprintf("Watching %s for changes... Press Ctrl+C to stop", c.SourceDir))
	rw.loop(ctx, watcher.Events, watcher.Errors)
	return nil
}

// rebuildWatcher coalesces filesystem events and triggers one rebuild per
// quiet period. Rebuilds run on the loop goroutine so they never overlap.
type rebuildWatcher struct {
	delay      time.Duration
	ignoreDirs []string
	skipRoots  []string
	add        func(string) error
	rebuild    func(context.Context, []string)
}

func (w *rebuildWatcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]struct{})

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(ctx, event.Name); err != nil {
						logger.G(ctx).WithError(err).WithField("path", event.Name).Warn("failed to watch new directory")
					}
				}
			}

			logger.G(ctx).WithFields(logrus.Fields{
				"path":      event.Name,
				"operation": event.Op.String(),
			}).Debug("file change detected")

			pending[event.Name] = struct{}{}
			timer.Reset(w.delay)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}
			sort.Strings(changed)
			clear(pending)

			w.rebuild(ctx, changed)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.G(ctx).WithError(err).Error("error watching files")
		case <-ctx.Done():
			return
		}
	}
}

func (w *rebuildWatcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !w.ignored(event.Name)
}

// ignored reports whether path lies in an ignored directory or inside the
// build's own output, which would otherwise retrigger every build.
func (w *rebuildWatcher) ignored(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		for _, dir := range w.ignoreDirs {
			if part == dir {
				return true
			}
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range w.skipRoots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *rebuildWatcher) addTree(ctx context.Context, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		logger.G(ctx).WithField("directory", path).Debug("adding directory to watcher")
		return w.add(path)
	})
}

func absPaths(paths ...string) []string {
	result := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			result = append(result, abs)
		}
	}
	return result
}
