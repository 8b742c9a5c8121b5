package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jingkaihe/skillpack/pkg/utils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	builds  [][]string
	watched []string
}

func (r *recorder) rebuild(_ context.Context, changed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds = append(r.builds, changed)
}

func (r *recorder) add(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watched = append(r.watched, path)
	return nil
}

func (r *recorder) buildCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.builds)
}

func TestWatchConfigValidate(t *testing.T) {
	wc := NewWatchConfig()
	assert.NoError(t, wc.Validate())

	wc.DebounceTime = -1
	assert.ErrorContains(t, wc.Validate(), "debounce time cannot be negative")
}

func TestRebuildWatcherLoop(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}

	w := &rebuildWatcher{
		delay:      50 * time.Millisecond,
		ignoreDirs: []string{".git", "node_modules"},
		skipRoots:  absPaths(filepath.Join(root, "out")),
		add:        rec.add,
		rebuild:    rec.rebuild,
	}

	events := make(chan fsnotify.Event)
	errs := make(chan error)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.loop(ctx, events, errs)
		close(done)
	}()

	a := filepath.Join(root, "a", "SKILL.md")
	b := filepath.Join(root, "b", "SKILL.md")
	c := filepath.Join(root, "c", "SKILL.md")

	events <- fsnotify.Event{Name: a, Op: fsnotify.Write}
	events <- fsnotify.Event{Name: a, Op: fsnotify.Write}
	events <- fsnotify.Event{Name: b, Op: fsnotify.Create}
	events <- fsnotify.Event{Name: filepath.Join(root, ".git", "index"), Op: fsnotify.Write}
	events <- fsnotify.Event{Name: filepath.Join(root, "out", "a", "Skill.md"), Op: fsnotify.Write}
	events <- fsnotify.Event{Name: c, Op: fsnotify.Chmod}
	errs <- errors.New("watch error")

	require.True(t, utils.WaitForCondition(2*time.Second, 10*time.Millisecond, func() bool {
		return rec.buildCount() == 1
	}))

	events <- fsnotify.Event{Name: c, Op: fsnotify.Remove}
	require.True(t, utils.WaitForCondition(2*time.Second, 10*time.Millisecond, func() bool {
		return rec.buildCount() == 2
	}))

	cancel()
	<-done

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{a, b}, rec.builds[0], "events within the debounce window become one build")
	assert.Equal(t, []string{c}, rec.builds[1])
}

func TestRebuildWatcherWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}

	w := &rebuildWatcher{
		delay:      time.Hour,
		ignoreDirs: []string{".git"},
		add:        rec.add,
		rebuild:    rec.rebuild,
	}

	newDir := filepath.Join(root, "new-skill")
	require.NoError(t, os.MkdirAll(filepath.Join(newDir, "resources"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(newDir, ".git"), 0o755))

	events := make(chan fsnotify.Event)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.loop(ctx, events, nil)
		close(done)
	}()

	events <- fsnotify.Event{Name: newDir, Op: fsnotify.Create}
	// the loop has handled the first event once it accepts the second
	events <- fsnotify.Event{Name: filepath.Join(newDir, "SKILL.md"), Op: fsnotify.Create}
	close(events)
	<-done
	cancel()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{newDir, filepath.Join(newDir, "resources")}, rec.watched)
	assert.Empty(t, rec.builds)
}

func TestRebuildWatcherIgnored(t *testing.T) {
	root := t.TempDir()
	w := &rebuildWatcher{
		ignoreDirs: []string{".git", "node_modules"},
		skipRoots:  absPaths(filepath.Join(root, "desktop-skills")),
	}

	assert.True(t, w.ignored(filepath.Join(root, "x", ".git", "HEAD")))
	assert.True(t, w.ignored(filepath.Join(root, "node_modules", "pkg")))
	assert.True(t, w.ignored(filepath.Join(root, "desktop-skills")))
	assert.True(t, w.ignored(filepath.Join(root, "desktop-skills", "pdf", "Skill.md")))
	assert.False(t, w.ignored(filepath.Join(root, "desktop-skills-src", "SKILL.md")))
	assert.False(t, w.ignored(filepath.Join(root, "pdf", "SKILL.md")))
}

func TestAddTreeSkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pdf", "resources"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "dep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pdf", "SKILL.md"), []byte("# PDF\n"), 0o644))

	rec := &recorder{}
	w := &rebuildWatcher{ignoreDirs: []string{"node_modules"}, add: rec.add}

	require.NoError(t, w.addTree(context.Background(), root))
	assert.Equal(t, []string{root, filepath.Join(root, "pdf"), filepath.Join(root, "pdf", "resources")}, rec.watched)
}

func TestRunWatchMode(t *testing.T) {
	quiet(t)
	c := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runWatchMode(ctx, c, &WatchConfig{DebounceTime: 20, IgnoreDirs: []string{".git"}})
	}()
	t.Cleanup(cancel)

	require.True(t, utils.WaitForFiles(5*time.Second, 20*time.Millisecond,
		filepath.Join(c.ArchiveDir, "pdf.zip"),
		filepath.Join(c.ArchiveDir, "git-helper.zip"),
	), "initial build")

	// keep touching the source until the watcher is live and has rebuilt
	source := filepath.Join(c.SourceDir, "pdf", "SKILL.md")
	target := filepath.Join(c.OutputDir, "pdf", "Skill.md")
	rebuilt := utils.WaitForCondition(5*time.Second, 200*time.Millisecond, func() bool {
		data, err := os.ReadFile(target)
		if err == nil && strings.Contains(string(data), "Updated description") {
			return true
		}
		os.WriteFile(source, []byte("# PDF\n\nUpdated description for the PDF skill.\n"), 0o644)
		return false
	})
	require.True(t, rebuilt, "rebuild after a change")

	newSkill := filepath.Join(c.SourceDir, "docx", "SKILL.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(newSkill), 0o755))
	require.NoError(t, os.WriteFile(newSkill, []byte("# Docx\n\nHandles Word documents in the docx format.\n"), 0o644))

	assert.True(t, utils.WaitForFileContent(5*time.Second, 20*time.Millisecond,
		filepath.Join(c.OutputDir, "docx", "Skill.md"), []string{`name: "Docx"`}), "new skill picked up")
	assert.True(t, utils.WaitForFiles(5*time.Second, 20*time.Millisecond, filepath.Join(c.ArchiveDir, "docx.zip")))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch mode did not stop after cancellation")
	}
}
