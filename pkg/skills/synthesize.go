package skills

import (
	"strings"
)

const (
	// descriptionWindow is how many lines after the title are searched.
	descriptionWindow = 9
	// minDescriptionLength is the length a plain line must exceed to be used.
	minDescriptionLength = 20

	personaPrefix    = "You are"
	activationPhrase = "This skill activates when"
	codeFence        = "```"
)

// Synthesize derives a title and description from a document body.
// It never fails: missing values fall back to placeholders.
func Synthesize(body string) (string, string) {
	lines := splitLines(strings.TrimSpace(body))

	title := ""
	description := ""

	for i, line := range lines {
		text, ok := headingText(line)
		if !ok {
			continue
		}
		title = text
		description = descriptionAfter(lines[i+1:])
		break
	}

	if title == "" {
		title = DefaultTitle
	}
	if description == "" {
		description = activationSummary(body)
	}
	if description == "" {
		description = "A skill for " + strings.ToLower(title) + " tasks and workflows."
	}

	return title, description
}

// headingText returns the text of a level-1 heading line.
func headingText(line string) (string, bool) {
	if !strings.HasPrefix(line, "# ") {
		return "", false
	}
	text := strings.TrimSpace(line[2:])
	return text, text != ""
}

// descriptionAfter picks the first usable line from the lines following a title.
func descriptionAfter(lines []string) string {
	if len(lines) > descriptionWindow {
		lines = lines[:descriptionWindow]
	}

	for _, line := range lines {
		candidate := strings.TrimSpace(line)
		if candidate == "" || strings.HasPrefix(candidate, "#") || strings.HasPrefix(candidate, codeFence) {
			continue
		}
		if strings.HasPrefix(candidate, personaPrefix) || runeLen(candidate) > minDescriptionLength {
			return TruncateWithEllipsis(candidate, MaxDescriptionLength)
		}
	}

	return ""
}

// activationSummary builds a description from the bullets that follow the
// "This skill activates when ...:" phrase, up to the next "##" marker.
func activationSummary(body string) string {
	idx := strings.Index(body, activationPhrase)
	if idx < 0 {
		return ""
	}
	rest := body[idx+len(activationPhrase):]

	colon := strings.Index(rest, ":")
	if colon < 0 {
		return ""
	}
	span := rest[colon+1:]
	if end := strings.Index(span, "##"); end >= 0 {
		span = span[:end]
	}

	var bullets []string
	for _, line := range splitLines(strings.TrimSpace(span)) {
		if item, ok := bulletText(line); ok {
			bullets = append(bullets, item)
			if len(bullets) == 3 {
				break
			}
		}
	}
	if len(bullets) == 0 {
		return ""
	}

	return Truncate("Helps with: "+strings.Join(bullets, ", "), MaxDescriptionLength)
}

// bulletText returns the item text of a "-" or "*" bullet line.
func bulletText(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" || (trimmed[0] != '-' && trimmed[0] != '*') {
		return "", false
	}
	rest := trimmed[1:]
	if rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}
	item := strings.TrimSpace(rest)
	return item, item != ""
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
