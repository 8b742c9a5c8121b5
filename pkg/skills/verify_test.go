package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadata(t *testing.T) {
	t.Run("valid frontmatter", func(t *testing.T) {
		data, err := ParseMetadata([]byte("---\nname: \"test\"\ndescription: \"A test skill\"\n---\n\n# Test\n"))
		require.NoError(t, err)
		assert.Equal(t, "test", data["name"])
		assert.Equal(t, "A test skill", data["description"])
	})

	t.Run("missing frontmatter", func(t *testing.T) {
		_, err := ParseMetadata([]byte("# Just content\n"))
		assert.ErrorContains(t, err, "missing frontmatter")
	})
}

func TestVerify(t *testing.T) {
	t.Run("rebuilt documents verify", func(t *testing.T) {
		docs := []string{
			"# My Skill\n\nThis skill helps you write tests.\n",
			"---\nname: quoted\ndescription: He said \"hi\" at C:\\temp\nlicense: MIT\n---\nBody\n",
			"# Colons: everywhere\n\nA description: with a colon # and a hash.\n",
			"# T\n\nLine with a line separator \u2028 inside it ok\n",
			"# T\n\nA bell \a rings in the middle of this line\n",
			"# T\n\nNext \u0085 line and \u2029 paragraph\n",
			"# Tab\tTitle\n\nEscape \x1b and delete \x7f and c1 \u0090 and bom \ufeff\n",
			"---\nname: \"esc\"\ndescription: \"Carries \\L and \\x07 escapes\"\n---\nBody\n",
		}

		for _, doc := range docs {
			out, meta, _ := Normalize(doc)
			assert.NoError(t, Verify([]byte(out), meta), "document %q", doc)
		}
	})

	t.Run("mismatched value", func(t *testing.T) {
		out, meta, _ := Normalize("# Real\n\nThis is the real description line.\n")
		meta.Name = "Other"

		err := Verify([]byte(out), meta)
		assert.ErrorContains(t, err, `"name"`)
	})

	t.Run("unlisted key", func(t *testing.T) {
		content := []byte("---\nname: \"a\"\ndescription: \"b\"\nversion: \"1.0.0\"\n---\n\nBody\n")

		err := Verify(content, Metadata{Name: "a", Description: "b"})
		assert.ErrorContains(t, err, "not allowed")
	})

	t.Run("missing key", func(t *testing.T) {
		content := []byte("---\nname: \"a\"\n---\n\nBody\n")

		err := Verify(content, Metadata{Name: "a", Description: "b"})
		assert.ErrorContains(t, err, "missing")
	})
}
