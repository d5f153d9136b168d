// Package textprep normalizes transcript and enhanced text before it is sent to
// the enhancement service or committed as synthesis input.
package textprep

import (
	"regexp"
	"strings"
)

// Regex patterns for text normalization.
const (
	horizontalSpacePattern = `[ \t\f\v\x{00A0}]+`
	blankLinesPattern      = `\n{3,}`
	repeatedMarksPattern   = `([!?])[!?]+`
)

// Punctuation and formatting constants.
const (
	emDash         = "—"
	enDash         = "–"
	figureDash     = "‒"
	ellipsis       = "..."
	ellipsisChar   = "…"
	carriageReturn = "\r\n"
	bareReturn     = "\r"
	lineFeed       = "\n"
	paragraphBreak = "\n\n"
)

// Normalizer cleans free-form text while keeping paragraph structure.
type Normalizer struct {
	horizontalSpace *regexp.Regexp
	blankLines      *regexp.Regexp
	repeatedMarks   *regexp.Regexp
	punctuation     *strings.Replacer
	lineEndings     *strings.Replacer
}

// NewNormalizer creates a normalizer with compiled patterns and replacers.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		horizontalSpace: regexp.MustCompile(horizontalSpacePattern),
		blankLines:      regexp.MustCompile(blankLinesPattern),
		repeatedMarks:   regexp.MustCompile(repeatedMarksPattern),
		punctuation: strings.NewReplacer(
			emDash, " - ",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
		lineEndings: strings.NewReplacer(carriageReturn, lineFeed, bareReturn, lineFeed),
	}
}

// Clean returns text with unified line endings, plain quotes and dashes,
// single spaces inside lines, at most one blank line between paragraphs and no
// leading or trailing whitespace. Empty or whitespace-only input yields "".
func (n *Normalizer) Clean(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	text = n.lineEndings.Replace(text)
	text = n.punctuation.Replace(text)
	text = n.repeatedMarks.ReplaceAllString(text, "$1")
	text = n.normalizeLines(text)
	text = n.blankLines.ReplaceAllString(text, paragraphBreak)

	return strings.TrimSpace(text)
}

// normalizeLines collapses horizontal whitespace and trims every line.
func (n *Normalizer) normalizeLines(text string) string {
	lines := strings.Split(text, lineFeed)
	for i, line := range lines {
		lines[i] = strings.TrimSpace(n.horizontalSpace.ReplaceAllString(line, " "))
	}

	return strings.Join(lines, lineFeed)
}
