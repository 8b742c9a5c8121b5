package skills

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// TruncateWithEllipsis cuts s to limit runes, replacing the tail with "..."
// when it has to cut.
func TruncateWithEllipsis(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return Truncate(s, limit)
	}
	return string([]rune(s)[:limit-3]) + "..."
}

// yamlEscapes maps runes with a short double-quoted YAML escape.
var yamlEscapes = map[rune]string{
	'\\':     `\\`,
	'"':      `\"`,
	0x00:     `\0`,
	'\a':     `\a`,
	'\b':     `\b`,
	'\t':     `\t`,
	'\n':     `\n`,
	'\v':     `\v`,
	'\f':     `\f`,
	'\r':     `\r`,
	0x1b:     `\e`,
	'\u0085': `\N`,
	'\u2028': `\L`,
	'\u2029': `\P`,
}

// Escape makes value safe to embed inside a double-quoted YAML scalar.
// Characters YAML rejects or folds in that position are written as escape
// sequences so a YAML parser decodes the exact value back.
func Escape(value string) string {
	if !strings.ContainsFunc(value, needsEscape) {
		return value
	}

	var b strings.Builder
	for _, r := range value {
		if esc, ok := yamlEscapes[r]; ok {
			b.WriteString(esc)
			continue
		}
		if !needsEscape(r) {
			b.WriteRune(r)
			continue
		}
		if r <= 0xff {
			fmt.Fprintf(&b, `\x%02X`, r)
		} else {
			fmt.Fprintf(&b, `\u%04X`, r)
		}
	}
	return b.String()
}

func needsEscape(r rune) bool {
	if _, ok := yamlEscapes[r]; ok {
		return true
	}
	switch {
	case r < 0x20, r == 0x7f:
		return true
	case r >= 0x80 && r <= 0x9f:
		return true
	case r == 0xfeff, r == 0xfffe, r == 0xffff:
		return true
	}
	return false
}

// Resolve merges recognized fields with synthesized values. Recognized
// values win; the result is truncated to the packaged format's limits.
func Resolve(fields Frontmatter, title, description string) Metadata {
	if name, ok := fields.Get("name"); ok && name != "" {
		title = name
	}
	if desc, ok := fields.Get("description"); ok && desc != "" {
		description = desc
	}

	meta := Metadata{
		Name:        Truncate(strings.ToValidUTF8(title, "\uFFFD"), MaxNameLength),
		Description: Truncate(strings.ToValidUTF8(description, "\uFFFD"), MaxDescriptionLength),
	}
	for _, key := range passthroughKeys {
		if value, ok := fields.Get(key); ok && value != "" {
			meta.Extra = append(meta.Extra, Field{Key: key, Value: strings.ToValidUTF8(value, "\uFFFD")})
		}
	}
	return meta
}

// Render writes the frontmatter block for meta followed by body.
func Render(meta Metadata, body string) string {
	var b strings.Builder

	b.WriteString(frontmatterDelimiter + "\n")
	writeField(&b, "name", meta.Name)
	writeField(&b, "description", meta.Description)
	for _, field := range meta.Extra {
		writeField(&b, field.Key, field.Value)
	}
	b.WriteString(frontmatterDelimiter + "\n\n")
	b.WriteString(strings.TrimLeftFunc(body, unicode.IsSpace))

	return b.String()
}

func writeField(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(`: "`)
	b.WriteString(Escape(value))
	b.WriteString("\"\n")
}

// Rebuild produces the packaged document from extracted fields, synthesized
// values and the body.
func Rebuild(fields Frontmatter, title, description, body string) string {
	return Render(Resolve(fields, title, description), body)
}

// Normalize runs extraction, synthesis and rebuilding over a raw document.
func Normalize(document string) (string, Metadata, Frontmatter) {
	body, fields := ExtractFrontmatter(document)
	title, description := Synthesize(body)
	meta := Resolve(fields, title, description)
	return Render(meta, body), meta, fields
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
