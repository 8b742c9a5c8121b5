// Package skills turns skill definitions (a SKILL.md file with optional YAML
// frontmatter and an optional resources/ folder) into the packaged Skill.md
// layout. It discovers skill units on disk, extracts and filters frontmatter,
// synthesizes a title and description when they are missing, and rebuilds a
// canonical frontmatter block.
package skills

const (
	// SourceFileName is the file that marks a directory as a skill.
	SourceFileName = "SKILL.md"
	// OutputFileName is the normalized file written for every skill.
	OutputFileName = "Skill.md"
	// ResourcesDirName is the optional sibling directory copied with a skill.
	ResourcesDirName = "resources"

	// MaxNameLength is the maximum length of the emitted name, in runes.
	MaxNameLength = 64
	// MaxDescriptionLength is the maximum length of the emitted description, in runes.
	MaxDescriptionLength = 200

	// DefaultTitle is used when a document has no level-1 heading.
	DefaultTitle = "Untitled Skill"
)

// AllowedKeys lists the frontmatter keys kept in the packaged format, in the
// order they are emitted.
var AllowedKeys = []string{"name", "description", "license", "allowed-tools", "metadata"}

// passthroughKeys are allow-listed keys copied verbatim after name and description.
var passthroughKeys = []string{"license", "allowed-tools", "metadata"}

// Unit is one discovered skill: a source document plus an optional resource tree.
type Unit struct {
	Name         string // Parent directory name of SKILL.md
	SourcePath   string // Full path to SKILL.md
	Dir          string // Directory containing SKILL.md
	ResourcesDir string // Full path to resources/, empty when absent
}

// HasResources reports whether the unit ships a resources/ directory.
func (u *Unit) HasResources() bool {
	return u.ResourcesDir != ""
}

// Metadata is the resolved frontmatter of a packaged skill.
type Metadata struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Extra       []Field `json:"extra,omitempty" yaml:"extra,omitempty"`
}

func isAllowedKey(key string) bool {
	for _, k := range AllowedKeys {
		if k == key {
			return true
		}
	}
	return false
}
