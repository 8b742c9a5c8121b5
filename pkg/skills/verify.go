package skills

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// ParseMetadata parses the YAML frontmatter of a packaged document.
// Unlike ExtractFrontmatter this is a full YAML decode, so it catches
// values the packaged format cannot carry.
func ParseMetadata(content []byte) (map[string]any, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	data, err := meta.TryGet(pctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode frontmatter")
	}
	if data == nil {
		return nil, errors.New("missing frontmatter")
	}

	return data, nil
}

// Verify checks that a packaged document decodes back to want.
func Verify(content []byte, want Metadata) error {
	data, err := ParseMetadata(content)
	if err != nil {
		return err
	}

	if err := expectField(data, "name", want.Name); err != nil {
		return err
	}
	if err := expectField(data, "description", want.Description); err != nil {
		return err
	}
	for _, field := range want.Extra {
		if err := expectField(data, field.Key, field.Value); err != nil {
			return err
		}
	}

	for key := range data {
		if !isAllowedKey(key) {
			return errors.Errorf("frontmatter key %q is not allowed", key)
		}
	}

	return nil
}

func expectField(data map[string]any, key, want string) error {
	raw, ok := data[key]
	if !ok {
		return errors.Errorf("frontmatter is missing %q", key)
	}
	got := fmt.Sprint(raw)
	if got != want {
		return errors.Errorf("frontmatter %q decodes to %q, want %q", key, got, want)
	}
	return nil
}
