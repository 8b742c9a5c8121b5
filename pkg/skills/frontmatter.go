package skills

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const frontmatterDelimiter = "---"

// Field is a single key/value pair from a frontmatter block.
type Field struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Frontmatter is an ordered set of recognized frontmatter fields.
type Frontmatter struct {
	fields []Field
}

// Get returns the value for key and whether it was present.
func (f Frontmatter) Get(key string) (string, bool) {
	for _, field := range f.fields {
		if field.Key == key {
			return field.Value, true
		}
	}
	return "", false
}

// Set stores value under key. An existing key keeps its position.
func (f *Frontmatter) Set(key, value string) {
	for i := range f.fields {
		if f.fields[i].Key == key {
			f.fields[i].Value = value
			return
		}
	}
	f.fields = append(f.fields, Field{Key: key, Value: value})
}

// Len returns the number of fields.
func (f Frontmatter) Len() int {
	return len(f.fields)
}

// Fields returns a copy of the fields in the order they were first seen.
func (f Frontmatter) Fields() []Field {
	out := make([]Field, len(f.fields))
	copy(out, f.fields)
	return out
}

// ExtractFrontmatter separates a leading "---" block from the document body.
//
// Documents that do not start with the delimiter, or whose block is never
// closed, are returned unchanged with an empty field set. Only allow-listed
// keys are kept.
func ExtractFrontmatter(document string) (string, Frontmatter) {
	var fields Frontmatter

	if !strings.HasPrefix(strings.TrimLeftFunc(document, unicode.IsSpace), frontmatterDelimiter) {
		return document, fields
	}

	parts := strings.SplitN(document, frontmatterDelimiter, 3)
	if len(parts) < 3 {
		return document, fields
	}

	for _, line := range strings.Split(strings.TrimSpace(parts[1]), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if !isAllowedKey(key) {
			continue
		}
		fields.Set(key, unquote(strings.TrimSpace(value)))
	}

	return parts[2], fields
}

// unquote strips surrounding quotes from a scalar. A balanced double-quoted
// value also has its YAML escape sequences decoded.
func unquote(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return unescape(value[1 : len(value)-1])
	}
	if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
		return value[1 : len(value)-1]
	}
	return strings.Trim(value, `"'`)
}

// yamlUnescapes maps single-character YAML escapes to the rune they stand for.
var yamlUnescapes = map[byte]rune{
	'0':  0x00,
	'a':  '\a',
	'b':  '\b',
	't':  '\t',
	'n':  '\n',
	'v':  '\v',
	'f':  '\f',
	'r':  '\r',
	'e':  0x1b,
	' ':  ' ',
	'"':  '"',
	'/':  '/',
	'\\': '\\',
	'N':  '\u0085',
	'_':  '\u00a0',
	'L':  '\u2028',
	'P':  '\u2029',
}

// hexEscapeWidth is the digit count of the \x, \u and \U escapes.
var hexEscapeWidth = map[byte]int{'x': 2, 'u': 4, 'U': 8}

// unescape decodes the escapes of a double-quoted YAML scalar. Malformed
// sequences are kept as written.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}

		c := s[i+1]
		if r, ok := yamlUnescapes[c]; ok {
			b.WriteRune(r)
			i++
			continue
		}
		if width, ok := hexEscapeWidth[c]; ok && i+2+width <= len(s) {
			if code, err := strconv.ParseUint(s[i+2:i+2+width], 16, 32); err == nil && utf8.ValidRune(rune(code)) {
				b.WriteRune(rune(code))
				i += 1 + width
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
