package skills

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/jingkaihe/skillpack/pkg/logger"
	"github.com/pkg/errors"
)

// skippedDirs are never descended into while looking for skills.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Discovery finds skill units below a source root
type Discovery struct {
	root   string
	filter *Filter
}

// Option is a function that configures a Discovery
type Option func(*Discovery) error

// WithRoot sets the directory searched for SKILL.md files
func WithRoot(dir string) Option {
	return func(d *Discovery) error {
		d.root = dir
		return nil
	}
}

// WithExcludes skips source paths matching any of the given patterns.
// Patterns are slash separated, relative to the root and may use "**".
func WithExcludes(patterns ...string) Option {
	return func(d *Discovery) error {
		return d.filter.addExcludes(patterns...)
	}
}

// WithIncludes keeps only skills whose name matches one of the given globs.
func WithIncludes(globs ...string) Option {
	return func(d *Discovery) error {
		return d.filter.addIncludes(globs...)
	}
}

// NewDiscovery creates a new skill discovery instance
func NewDiscovery(opts ...Option) (*Discovery, error) {
	d := &Discovery{filter: NewFilter()}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	if d.root == "" {
		return nil, errors.New("skill discovery requires a root directory")
	}

	return d, nil
}

// Root returns the directory searched by the discovery.
func (d *Discovery) Root() string {
	return d.root
}

// Discover walks the root and returns every skill unit in source path order.
func (d *Discovery) Discover(ctx context.Context) ([]*Unit, error) {
	info, err := os.Stat(d.root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat source directory %s", d.root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("source %s is not a directory", d.root)
	}

	var units []*Unit
	err = filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			logger.G(ctx).WithError(err).WithField("path", path).Warn("skipping unreadable path")
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}

		if entry.IsDir() {
			if path != d.root && (skippedDirs[entry.Name()] || d.filter.Excluded(rel)) {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.Name() != SourceFileName || d.filter.Excluded(rel) {
			return nil
		}

		unit := newUnit(path)
		if !d.filter.Included(unit.Name) {
			logger.G(ctx).WithField("skill", unit.Name).Debug("skill not matched by include patterns")
			return nil
		}

		units = append(units, unit)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to walk source directory")
	}

	sort.Slice(units, func(i, j int) bool {
		return units[i].SourcePath < units[j].SourcePath
	})

	return units, nil
}

func newUnit(sourcePath string) *Unit {
	dir := filepath.Dir(sourcePath)
	unit := &Unit{
		Name:       filepath.Base(dir),
		SourcePath: sourcePath,
		Dir:        dir,
	}

	resources := filepath.Join(dir, ResourcesDirName)
	if info, err := os.Stat(resources); err == nil && info.IsDir() {
		unit.ResourcesDir = resources
	}

	return unit
}
