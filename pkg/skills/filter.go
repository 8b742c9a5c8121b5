package skills

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// Filter decides which source paths and skill names take part in a run.
type Filter struct {
	includes []glob.Glob // compiled name globs
	excludes []string    // doublestar path patterns
}

// NewFilter creates a filter that accepts everything.
func NewFilter() *Filter {
	return &Filter{
		includes: make([]glob.Glob, 0),
		excludes: make([]string, 0),
	}
}

// CompileFilter builds a filter from include name globs and exclude path
// patterns, failing on the first pattern that does not compile.
func CompileFilter(includes, excludes []string) (*Filter, error) {
	f := NewFilter()
	if err := f.addIncludes(includes...); err != nil {
		return nil, err
	}
	if err := f.addExcludes(excludes...); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Filter) addIncludes(patterns ...string) error {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return errors.Wrapf(err, "invalid include pattern %q", pattern)
		}
		f.includes = append(f.includes, g)
	}
	return nil
}

func (f *Filter) addExcludes(patterns ...string) error {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("invalid exclude pattern %q", pattern)
		}
		f.excludes = append(f.excludes, pattern)
	}
	return nil
}

// Included reports whether a skill name passes the include globs.
// An empty include list accepts every name.
func (f *Filter) Included(name string) bool {
	if len(f.includes) == 0 {
		return true
	}
	for _, g := range f.includes {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Excluded reports whether a root-relative path matches an exclude pattern.
func (f *Filter) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range f.excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
