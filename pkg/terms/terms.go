// Package terms finds the term under the cursor in an autocompleted field
// and writes accepted suggestions back into it.
//
// All offsets are byte offsets into the field value.
package terms

import (
	"fmt"
	"strings"
	"unicode"
)

// Mode selects how a field value is split into terms.
type Mode string

const (
	// MultiTags fields hold comma separated terms, one query per line.
	MultiTags Mode = "multi-tags"
	// SingleTag fields hold exactly one tag. A leading "-" marks removal.
	SingleTag Mode = "single-tag"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case MultiTags, SingleTag:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid autocomplete mode %q", s)
	}
}

// Span is the term the cursor is on.
type Span struct {
	// Text is the lowercased term used for matching. Leading whitespace
	// and the removal prefix are stripped, trailing whitespace is kept.
	Text string
	// Prefix is "-" for a removal in SingleTag mode, otherwise empty.
	Prefix string
	// Start and End delimit the replaced region, prefix included.
	Start, End int
}

// Empty reports whether there is nothing typed for the term yet.
func (s Span) Empty() bool {
	return s.Text == ""
}

// CurrentTerm resolves the term containing cursor. The cursor is clamped
// to the value.
func CurrentTerm(mode Mode, value string, cursor int) Span {
	cursor = max(0, min(cursor, len(value)))

	if mode == SingleTag {
		return span(mode, value, 0, len(value))
	}

	lineStart := strings.LastIndexByte(value[:cursor], '\n') + 1
	lineEnd := len(value)
	if i := strings.IndexByte(value[cursor:], '\n'); i >= 0 {
		lineEnd = cursor + i
	}

	segStart := lineStart
	for segStart <= lineEnd {
		segEnd := lineEnd
		if i := strings.IndexByte(value[segStart:lineEnd], ','); i >= 0 {
			segEnd = segStart + i
		}
		if cursor >= segStart && cursor <= segEnd {
			return span(mode, value, segStart, segEnd)
		}
		segStart = segEnd + 1
	}
	return Span{Start: cursor, End: cursor}
}

func span(mode Mode, value string, start, end int) Span {
	seg := value[start:end]
	trimmed := strings.TrimLeftFunc(seg, unicode.IsSpace)
	start += len(seg) - len(trimmed)

	s := Span{Text: strings.ToLower(trimmed), Start: start, End: end}
	if mode == SingleTag && strings.HasPrefix(s.Text, "-") {
		s.Text = s.Text[1:]
		s.Prefix = "-"
	}
	return s
}

// Replace writes newValue over span and returns the new field value and
// cursor, placed right after the inserted term. In MultiTags mode the
// separator to a following term is normalized to a single ", ".
func Replace(mode Mode, value string, s Span, newValue string) (string, int) {
	start := max(0, min(s.Start, len(value)))
	end := max(start, min(s.End, len(value)))

	before := value[:start] + s.Prefix + newValue
	after := value[end:]

	if mode == MultiTags {
		rest := strings.TrimLeft(after, " \t")
		if strings.HasPrefix(rest, ",") {
			after = ", " + strings.TrimLeft(rest[1:], " \t")
		}
	}
	return before + after, len(before)
}
