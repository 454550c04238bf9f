// package formatter provides functions to export lyrics documents to various formats (CSV, Markdown, LRC, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
)

// Format names an export format.
type Format string

const (
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatCSV      Format = "csv"
	FormatLRC      Format = "lrc"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or common alias (text, markdown).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "txt", "text", "":
		return FormatText, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "lrc":
		return FormatLRC, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, s)
	}
}

// LyricsExport is a song with its current lyrics and, optionally, the reader's annotations.
type LyricsExport struct {
	Song        *models.SavedSong       `json:"song"`
	Document    *models.LyricsDocument  `json:"document"`
	Annotations []models.LineAnnotation `json:"annotations,omitempty"`
}

func (e *LyricsExport) title() string {
	if e.Song.Artist == "" {
		return e.Song.Track
	}
	return fmt.Sprintf("%s - %s", e.Song.Artist, e.Song.Track)
}

func (e *LyricsExport) annotationsByLine() map[string][]models.LineAnnotation {
	byLine := make(map[string][]models.LineAnnotation)
	for _, a := range e.Annotations {
		byLine[a.LineID] = append(byLine[a.LineID], a)
	}
	return byLine
}

// ExportToCSV converts a LyricsExport to CSV format with columns: line_number, text, timestamp_ms
func ExportToCSV(export *LyricsExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"line_number", "text", "timestamp_ms"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, line := range export.Document.Lines {
		ts := ""
		if line.TimestampMS != nil {
			ts = strconv.FormatInt(*line.TimestampMS, 10)
		}
		if err := writer.Write([]string{strconv.Itoa(line.LineNumber), line.Text, ts}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a LyricsExport to Markdown: a heading, the version, then the lines with
// blank lines kept as stanza breaks and annotations quoted under the line they belong to.
func ExportToMarkdown(export *LyricsExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Song.Track)
	if export.Song.Artist != "" {
		fmt.Fprintf(&buf, "**Artist**: %s\n", export.Song.Artist)
	}
	if export.Song.Album != "" {
		fmt.Fprintf(&buf, "**Album**: %s\n", export.Song.Album)
	}
	fmt.Fprintf(&buf, "**Version**: %d\n\n", export.Document.Version)

	if export.Song.Note != nil {
		fmt.Fprintf(&buf, "_%s_\n\n", *export.Song.Note)
	}

	byLine := export.annotationsByLine()
	for _, line := range export.Document.Lines {
		if line.Text == "" {
			buf.WriteString("\n")
			continue
		}
		fmt.Fprintf(&buf, "%s  \n", line.Text)
		for _, a := range byLine[line.ID] {
			if a.Emoji != nil {
				fmt.Fprintf(&buf, "> %s %s\n", *a.Emoji, a.Text)
			} else {
				fmt.Fprintf(&buf, "> %s\n", a.Text)
			}
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts a LyricsExport to plain text format
func ExportToText(export *LyricsExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", export.title())
	if export.Song.Album != "" {
		fmt.Fprintf(&buf, "Album: %s\n", export.Song.Album)
	}
	fmt.Fprintf(&buf, "Version: %d\n\n", export.Document.Version)
	buf.WriteString(export.Document.RawText)
	buf.WriteString("\n")

	return buf.Bytes(), nil
}

// ExportToLRC converts the timestamped lines of a LyricsExport to LRC. Lines without a timestamp are skipped.
func ExportToLRC(export *LyricsExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[ti:%s]\n", export.Song.Track)
	if export.Song.Artist != "" {
		fmt.Fprintf(&buf, "[ar:%s]\n", export.Song.Artist)
	}
	if export.Song.Album != "" {
		fmt.Fprintf(&buf, "[al:%s]\n", export.Song.Album)
	}

	for _, line := range export.Document.Lines {
		if line.TimestampMS == nil {
			continue
		}
		fmt.Fprintf(&buf, "[%s]%s\n", FormatTimestamp(*line.TimestampMS), line.Text)
	}

	return buf.Bytes(), nil
}

// FormatTimestamp renders milliseconds as mm:ss.xx.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	hundredths := (ms % 1000) / 10
	return fmt.Sprintf("%02d:%02d.%02d", minutes, seconds, hundredths)
}

// ParseTimestamp reads a playback offset given as plain milliseconds or as mm:ss.xx.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}

	mm, rest, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%w: timestamp %q", shared.ErrInvalidArgument, s)
	}
	minutes, err := strconv.ParseInt(mm, 10, 64)
	if err != nil || minutes < 0 {
		return 0, fmt.Errorf("%w: timestamp %q", shared.ErrInvalidArgument, s)
	}
	seconds, err := strconv.ParseFloat(rest, 64)
	if err != nil || seconds < 0 || seconds >= 60 {
		return 0, fmt.Errorf("%w: timestamp %q", shared.ErrInvalidArgument, s)
	}
	return minutes*60000 + int64(seconds*1000+0.5), nil
}

// ToJSON generates an indented JSON representation of the export
func ToJSON(export *LyricsExport) ([]byte, error) {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

// Export renders export in the given format.
func Export(export *LyricsExport, format Format) ([]byte, error) {
	if export == nil || export.Song == nil || export.Document == nil {
		return nil, fmt.Errorf("%w: nothing to export", shared.ErrInvalidInput)
	}

	switch format {
	case FormatText:
		return ExportToText(export)
	case FormatMarkdown:
		return ExportToMarkdown(export)
	case FormatCSV:
		return ExportToCSV(export)
	case FormatLRC:
		return ExportToLRC(export)
	case FormatJSON:
		return ToJSON(export)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteExport writes export to a file in the given format.
//
// Defaults to {song.ID}.{format} as the filename.
func WriteExport(export *LyricsExport, format Format, path string) (string, error) {
	data, err := Export(export, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = fmt.Sprintf("%s.%s", export.Song.ID, format)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}

	return path, nil
}
