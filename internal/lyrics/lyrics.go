// Package lyrics turns raw lyrics text into addressable lines and cleans provider output.
package lyrics

import (
	"regexp"
	"strings"

	"github.com/desertthunder/lyrix/internal/models"
)

// lyrics.ovh prefixes some results with a French title banner followed by a blank line.
var providerBanner = regexp.MustCompile(`(?s)^Paroles de la chanson.*?\n\n`)

// Split breaks raw into lines on "\n" only.
//
// Nothing is trimmed, collapsed or dropped: blank lines mark stanza breaks and "" yields a single empty line.
// A trailing "\r" from CRLF input stays part of its line.
func Split(raw string) []string {
	return strings.Split(raw, "\n")
}

// Numbered returns the lines of raw with 1-based line numbers.
func Numbered(raw string) []models.LyricsLine {
	parts := Split(raw)
	lines := make([]models.LyricsLine, len(parts))
	for i, text := range parts {
		lines[i] = models.LyricsLine{LineNumber: i + 1, Text: text}
	}
	return lines
}

// Join is the inverse of [Split].
func Join(lines []models.LyricsLine) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}

// Clean strips the provider banner and surrounding whitespace. An empty result means no usable lyrics.
func Clean(text string) string {
	return strings.TrimSpace(providerBanner.ReplaceAllString(text, ""))
}
