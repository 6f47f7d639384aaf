package pilot

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Maximum allowed length for any single input field, to bound token spend.
const maxInputLength = 10000

// suspiciousPatterns match known prompt-injection idioms. Matches are
// logged and sanitized, not blocked.
var suspiciousPatterns = []*regexp.Regexp{
	// Instruction override attempts
	regexp.MustCompile(`(?i)\bignore\s+(all\s+|the\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)\b`),
	regexp.MustCompile(`(?i)\bdisregard\s+(all\s+|the\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)\b`),
	regexp.MustCompile(`(?i)\bforget\s+(everything|all)\s+(above|before|previously)\b`),

	// Role/persona hijacking
	regexp.MustCompile(`(?i)\byou\s+are\s+(now|actually|really)\s+a?\b`),
	regexp.MustCompile(`(?i)\bact\s+(as|like)\s+(if\s+you\s+were|a|an)\b`),
	regexp.MustCompile(`(?i)\bpretend\s+(to\s+be|you\s+are)\b`),
	regexp.MustCompile(`(?i)\byour\s+new\s+(role|persona|identity)\b`),

	// System prompt extraction attempts
	regexp.MustCompile(`(?i)\brepeat\s+(your|the)\s+(system\s+)?(prompt|instructions?)\b`),
	regexp.MustCompile(`(?i)\bshow\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions?)\b`),
	regexp.MustCompile(`(?i)\bwhat\s+(are|were)\s+your\s+(original\s+)?(instructions?|prompt)\b`),
	regexp.MustCompile(`(?i)\bprint\s+(your|the)\s+(system\s+)?(prompt|instructions?)\b`),

	// Jailbreak keywords
	regexp.MustCompile(`(?i)\b(DAN|do\s+anything\s+now)\b`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)\bdeveloper\s+mode\b`),
	regexp.MustCompile(`(?i)\badmin\s+mode\b`),

	// Delimiter spoofing
	regexp.MustCompile(`\[\[\[`),
	regexp.MustCompile(`\]\]\]`),
	regexp.MustCompile(`<<<`),
	regexp.MustCompile(`>>>`),
	regexp.MustCompile(`\{\{\{`),
	regexp.MustCompile(`\}\}\}`),
}

// escapeSequences break up runs that could forge section boundaries
// inside the assembled prompt.
var escapeSequences = [][2]string{
	{"```", "` ` `"},
	{"###", "# # #"},
	{"---", "- - -"},
	{"***", "* * *"},
	{"===", "= = ="},
}

var (
	controlChars  = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")
	spaceRuns     = regexp.MustCompile(`[ \t]+`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// Sanitizer cleans and risk-screens free-text fields before they reach
// any provider. Detection results are surfaced via the event bus and
// logs only; sanitize-and-continue is the policy for all fields except
// user-supplied custom prompts.
type Sanitizer struct {
	logger *zap.Logger
	onFlag func(field string) // optional hook, invoked once per flagged input
}

// NewSanitizer creates a Sanitizer. onFlag may be nil.
func NewSanitizer(logger *zap.Logger, onFlag func(field string)) *Sanitizer {
	return &Sanitizer{logger: logger, onFlag: onFlag}
}

// Sanitize cleans raw user input for inclusion in a prompt: detects
// injection idioms, truncates oversized fields, escapes delimiter runs,
// strips control characters, and normalizes whitespace.
func (s *Sanitizer) Sanitize(input, fieldName string) string {
	cleaned := strings.TrimSpace(input)
	if cleaned == "" {
		return cleaned
	}

	if s.Detect(cleaned, fieldName) {
		s.logger.Warn("suspicious input detected, sanitizing",
			zap.String("field", fieldName),
		)
		if s.onFlag != nil {
			s.onFlag(fieldName)
		}
	}

	if n := utf8.RuneCountInString(cleaned); n > maxInputLength {
		s.logger.Warn("input truncated",
			zap.String("field", fieldName),
			zap.Int("original_length", n),
			zap.Int("max_length", maxInputLength),
		)
		cleaned = truncateRunes(cleaned, maxInputLength) + "..."
	}

	for _, esc := range escapeSequences {
		cleaned = strings.ReplaceAll(cleaned, esc[0], esc[1])
	}

	cleaned = controlChars.ReplaceAllString(cleaned, "")
	cleaned = spaceRuns.ReplaceAllString(cleaned, " ")
	cleaned = blankLineRuns.ReplaceAllString(cleaned, "\n\n")

	return cleaned
}

// SanitizeQuery cleans a free-text natural-language question.
func (s *Sanitizer) SanitizeQuery(query string) string {
	return s.Sanitize(query, "query")
}

// SanitizeCustomPrompt cleans a user-supplied custom prompt. This field
// is the most likely to attempt a system-behavior override, so matched
// injection spans are additionally redacted.
func (s *Sanitizer) SanitizeCustomPrompt(customPrompt string) string {
	cleaned := s.Sanitize(customPrompt, "custom_prompt")
	for _, pattern := range suspiciousPatterns {
		cleaned = pattern.ReplaceAllString(cleaned, "[redacted]")
	}
	return cleaned
}

// Detect reports whether input contains a known injection idiom.
// Used for monitoring; never blocks on its own.
func (s *Sanitizer) Detect(input, fieldName string) bool {
	if input == "" {
		return false
	}
	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(input) {
			s.logger.Warn("suspicious pattern matched",
				zap.String("field", fieldName),
				zap.String("pattern", pattern.String()),
			)
			return true
		}
	}
	return false
}

// Validate hard-rejects structurally invalid input: over the caller's
// length ceiling, or containing binary bytes. This is the only
// sanitizer path allowed to reject outright.
func (s *Sanitizer) Validate(input, fieldName string, maxLength int) error {
	if input == "" {
		return nil
	}

	if utf8.RuneCountInString(input) > maxLength {
		return newValidationError(fmt.Sprintf("%s exceeds maximum length of %d characters", fieldName, maxLength))
	}

	for _, r := range input {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return newValidationError(fieldName + " contains invalid characters")
		}
	}
	return nil
}

// truncateRunes cuts s after at most n runes, never splitting a
// multi-byte character.
func truncateRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
