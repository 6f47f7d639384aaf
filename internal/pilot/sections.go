package pilot

import (
	"regexp"
	"strconv"
	"strings"
)

// Helpers for pulling structured fields out of model responses. The prompts
// ask for "## Heading" markdown sections; models mostly comply, so parsing
// is line-based and forgiving about whitespace and casing.

const defaultConfidence = 70

var confidencePattern = regexp.MustCompile(`(\d+)\s*%`)

// extractSection returns the body of the first "## <heading>" section,
// up to the next "##" line or the end of the text. The heading match is
// case-insensitive and ignores trailing decoration such as
// "(ranked by likelihood)". Returns "" when the section is absent.
func extractSection(content, heading string) string {
	lines := strings.Split(content, "\n")
	want := strings.ToLower(heading)

	start := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "##") {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(strings.TrimLeft(trimmed, "#")))
		if strings.HasPrefix(title, want) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "##") {
			end = i
			break
		}
	}

	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

// extractBullets returns up to max bullet items from a section body.
// Dashed, starred, and numbered list markers are recognized.
func extractBullets(section string, max int) []string {
	if max <= 0 {
		max = 10
	}

	var items []string
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		item := ""
		switch {
		case strings.HasPrefix(trimmed, "- "):
			item = strings.TrimSpace(trimmed[2:])
		case strings.HasPrefix(trimmed, "* "):
			item = strings.TrimSpace(trimmed[2:])
		default:
			if m := numberedItem.FindStringSubmatch(trimmed); m != nil {
				item = strings.TrimSpace(m[1])
			}
		}
		if item == "" {
			continue
		}
		items = append(items, item)
		if len(items) >= max {
			break
		}
	}
	return items
}

var numberedItem = regexp.MustCompile(`^\d+[.)]\s+(.*)`)

// parseConfidence reads the percentage out of the "## Confidence" section.
// Missing, malformed, or out-of-range values fall back to the default.
func parseConfidence(content string) int {
	section := extractSection(content, "Confidence")
	if section == "" {
		return defaultConfidence
	}

	m := confidencePattern.FindStringSubmatch(section)
	if m == nil {
		return defaultConfidence
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 || n > 100 {
		return defaultConfidence
	}
	return n
}
