package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jingkaihe/skillpack/pkg/config"
	"github.com/jingkaihe/skillpack/pkg/skills"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.SourceDir = filepath.Join(root, "src")
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.ArchiveDir = filepath.Join(root, "zips")
	require.NoError(t, os.MkdirAll(cfg.SourceDir, 0o755))
	return cfg
}

func TestRun(t *testing.T) {
	cfg := newConfig(t)

	writeFile(t, filepath.Join(cfg.SourceDir, "git-helper", "SKILL.md"),
		"# Git Helper\n\nThis skill helps you write commit messages.\n")
	writeFile(t, filepath.Join(cfg.SourceDir, "team", "pdf", "SKILL.md"),
		"---\r\nname: pdf\r\ndescription: Work with PDF files\r\nversion: 2\r\n---\r\n\r\n# PDF\r\n")
	writeFile(t, filepath.Join(cfg.SourceDir, "team", "pdf", "resources", "forms", "a.txt"), "form")

	// stale output from an earlier run
	writeFile(t, filepath.Join(cfg.OutputDir, "stale", "Skill.md"), "old")

	c, err := New(cfg)
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"git-helper", "pdf"}, report.Succeeded)
	assert.Empty(t, report.Failures)
	assert.NoError(t, report.Err())

	assert.Equal(t,
		"---\nname: \"Git Helper\"\ndescription: \"This skill helps you write commit messages.\"\n---\n\n# Git Helper\n\nThis skill helps you write commit messages.\n",
		readFile(t, filepath.Join(cfg.OutputDir, "git-helper", "Skill.md")))

	assert.Equal(t,
		"---\nname: \"pdf\"\ndescription: \"Work with PDF files\"\n---\n\n# PDF\n",
		readFile(t, filepath.Join(cfg.OutputDir, "pdf", "Skill.md")))
	assert.Equal(t, "form", readFile(t, filepath.Join(cfg.OutputDir, "pdf", "resources", "forms", "a.txt")))

	_, err = os.Stat(filepath.Join(cfg.OutputDir, "stale"))
	assert.True(t, os.IsNotExist(err), "output directory is recreated on every run")
}

func TestRunDuplicateNames(t *testing.T) {
	cfg := newConfig(t)

	writeFile(t, filepath.Join(cfg.SourceDir, "a", "pdf", "SKILL.md"), "# First\n\nThe first skill to claim this name.\n")
	writeFile(t, filepath.Join(cfg.SourceDir, "b", "pdf", "SKILL.md"), "# Second\n\nThe second skill with the same name.\n")

	c, err := New(cfg)
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"pdf"}, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, filepath.Join(cfg.SourceDir, "b", "pdf", "SKILL.md"), report.Failures[0].Subject)
	assert.Contains(t, report.Failures[0].Message(), "duplicate skill")
	assert.Error(t, report.Err())

	assert.Contains(t, readFile(t, filepath.Join(cfg.OutputDir, "pdf", "Skill.md")), `name: "First"`)
}

func TestRunNameFromFrontmatter(t *testing.T) {
	cfg := newConfig(t)
	cfg.NameFromFrontmatter = true

	writeFile(t, filepath.Join(cfg.SourceDir, "dir-one", "SKILL.md"), "---\nname: My PDF Tools\n---\n# Tools\n")
	writeFile(t, filepath.Join(cfg.SourceDir, "dir-two", "SKILL.md"), "# No Frontmatter\n")
	writeFile(t, filepath.Join(cfg.SourceDir, "dir-three", "SKILL.md"), "---\nname: \"!!!\"\n---\n# Symbols\n")

	c, err := New(cfg)
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"my-pdf-tools", "dir-two", "dir-three"}, report.Succeeded)

	assert.FileExists(t, filepath.Join(cfg.OutputDir, "my-pdf-tools", "Skill.md"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "dir-two", "Skill.md"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "dir-three", "Skill.md"))
}

func TestRunFilters(t *testing.T) {
	cfg := newConfig(t)
	cfg.Include = []string{"pdf*"}
	cfg.Exclude = []string{"drafts/**"}

	writeFile(t, filepath.Join(cfg.SourceDir, "pdf", "SKILL.md"), "# PDF\n")
	writeFile(t, filepath.Join(cfg.SourceDir, "pdf-forms", "SKILL.md"), "# Forms\n")
	writeFile(t, filepath.Join(cfg.SourceDir, "docx", "SKILL.md"), "# Docx\n")
	writeFile(t, filepath.Join(cfg.SourceDir, "drafts", "pdf-next", "SKILL.md"), "# Next\n")

	c, err := New(cfg)
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pdf", "pdf-forms"}, report.Succeeded)
}

func TestRunMissingSource(t *testing.T) {
	cfg := newConfig(t)
	cfg.SourceDir = filepath.Join(cfg.SourceDir, "missing")
	writeFile(t, filepath.Join(cfg.OutputDir, "keep", "Skill.md"), "previous")

	c, err := New(cfg)
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	assert.Error(t, err)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "keep", "Skill.md"), "a failed discovery leaves the output alone")
}

func TestRunEmptySource(t *testing.T) {
	cfg := newConfig(t)

	c, err := New(cfg)
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total())
	assert.DirExists(t, cfg.OutputDir)
}

func TestRunCancelled(t *testing.T) {
	cfg := newConfig(t)
	writeFile(t, filepath.Join(cfg.SourceDir, "pdf", "SKILL.md"), "# PDF\n")

	c, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Succeeded)
}

func TestPlan(t *testing.T) {
	cfg := newConfig(t)

	writeFile(t, filepath.Join(cfg.SourceDir, "a", "pdf", "SKILL.md"), "# PDF\n\nReads and writes PDF documents.\n")
	writeFile(t, filepath.Join(cfg.SourceDir, "b", "pdf", "SKILL.md"), "# PDF again\n")
	writeFile(t, filepath.Join(cfg.SourceDir, "notes", "SKILL.md"), "---\nname: notes\ndescription: Take notes\n---\nBody\n")

	c, err := New(cfg)
	require.NoError(t, err)

	planned, report, err := c.Plan(context.Background())
	require.NoError(t, err)

	require.Len(t, planned, 2)
	assert.Equal(t, "pdf", planned[0].OutputName)
	assert.Equal(t, "PDF", planned[0].Metadata.Name)
	assert.Equal(t, "Reads and writes PDF documents.", planned[0].Metadata.Description)
	assert.Equal(t, "# PDF\n\nReads and writes PDF documents.\n", planned[0].Original)
	assert.Equal(t, "notes", planned[1].OutputName)
	assert.Equal(t, "---\nname: \"notes\"\ndescription: \"Take notes\"\n---\n\nBody\n", planned[1].Output)

	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Message(), "duplicate skill")

	_, err = os.Stat(cfg.OutputDir)
	assert.True(t, os.IsNotExist(err), "a dry run writes nothing")
}

func TestWithDiscovery(t *testing.T) {
	cfg := newConfig(t)
	other := t.TempDir()
	writeFile(t, filepath.Join(other, "x", "SKILL.md"), "# X\n")

	d, err := skills.NewDiscovery(skills.WithRoot(other))
	require.NoError(t, err)

	c, err := New(cfg, WithDiscovery(d))
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, report.Succeeded)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"My PDF Tools", "my-pdf-tools"},
		{"  leading and trailing  ", "leading-and-trailing"},
		{"already-slugged", "already-slugged"},
		{"Ünïcode Näme", "ünïcode-näme"},
		{"v2.0 -- release", "v2-0-release"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.in))
		})
	}
}

func TestRunUnitReadFailure(t *testing.T) {
	cfg := newConfig(t)

	writeFile(t, filepath.Join(cfg.SourceDir, "good", "SKILL.md"), "# Good\n\nThis skill still converts after a failure.\n")
	broken := filepath.Join(cfg.SourceDir, "broken", "SKILL.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(broken), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(cfg.SourceDir, "missing.md"), broken))

	c, err := New(cfg)
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, broken, report.Failures[0].Subject)
	assert.ErrorContains(t, report.Failures[0].Err, "failed to read")

	assert.FileExists(t, filepath.Join(cfg.OutputDir, "good", "Skill.md"))
	assert.NoDirExists(t, filepath.Join(cfg.OutputDir, "broken"))
}

func TestRunRemovesIncompleteOutput(t *testing.T) {
	t.Run("resources copy fails", func(t *testing.T) {
		cfg := newConfig(t)

		writeFile(t, filepath.Join(cfg.SourceDir, "good", "SKILL.md"), "# Good\n\nThis skill has nothing wrong with it.\n")
		writeFile(t, filepath.Join(cfg.SourceDir, "odd", "SKILL.md"), "# Odd\n\nThis skill ships a broken resource link.\n")
		writeFile(t, filepath.Join(cfg.SourceDir, "odd", "resources", "a.txt"), "a")
		require.NoError(t, os.Symlink(
			filepath.Join(cfg.SourceDir, "nowhere.txt"),
			filepath.Join(cfg.SourceDir, "odd", "resources", "b.txt"),
		))

		c, err := New(cfg)
		require.NoError(t, err)

		report, err := c.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"good"}, report.Succeeded)
		require.Len(t, report.Failures, 1)
		assert.ErrorContains(t, report.Failures[0].Err, "failed to copy resources")

		assert.NoDirExists(t, filepath.Join(cfg.OutputDir, "odd"))
		assert.DirExists(t, filepath.Join(cfg.OutputDir, "good"))
	})

	t.Run("verification fails", func(t *testing.T) {
		cfg := newConfig(t)

		writeFile(t, filepath.Join(cfg.SourceDir, "good", "SKILL.md"), "# Good\n\nThis skill verifies without trouble.\n")
		writeFile(t, filepath.Join(cfg.SourceDir, "odd", "SKILL.md"), "# Odd\n\nThis skill fails verification here.\n")

		c, err := New(cfg)
		require.NoError(t, err)
		c.verify = func(content []byte, meta skills.Metadata) error {
			if meta.Name == "Odd" {
				return errors.New("decoded value differs")
			}
			return skills.Verify(content, meta)
		}

		report, err := c.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"good"}, report.Succeeded)
		require.Len(t, report.Failures, 1)
		assert.ErrorContains(t, report.Failures[0].Err, "verification of")

		assert.NoDirExists(t, filepath.Join(cfg.OutputDir, "odd"))
		assert.FileExists(t, filepath.Join(cfg.OutputDir, "good", "Skill.md"))
	})

	t.Run("verification disabled", func(t *testing.T) {
		cfg := newConfig(t)
		cfg.Verify = false

		writeFile(t, filepath.Join(cfg.SourceDir, "odd", "SKILL.md"), "# Odd\n\nThis skill is never verified at all.\n")

		c, err := New(cfg)
		require.NoError(t, err)
		c.verify = func([]byte, skills.Metadata) error {
			return errors.New("must not be called")
		}

		report, err := c.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"odd"}, report.Succeeded)
	})
}

func TestRunConvertsUnprintableCharacters(t *testing.T) {
	cfg := newConfig(t)
	writeFile(t, filepath.Join(cfg.SourceDir, "odd", "SKILL.md"),
		"# Odd\n\nLine with a line separator \u2028 and a bell \a inside it\n")

	c, err := New(cfg)
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"odd"}, report.Succeeded)
	assert.Empty(t, report.Failures)
	assert.Contains(t,
		readFile(t, filepath.Join(cfg.OutputDir, "odd", "Skill.md")),
		`description: "Line with a line separator \L and a bell \a inside it"`)
}
