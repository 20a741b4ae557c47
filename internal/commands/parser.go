package commands

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// quoteCutset is stripped from both ends of a line after whitespace trimming.
const quoteCutset = "'\"` \t"

// isSpace reports whitespace the way keypad firmware separates fields: the
// Unicode spaces plus the ASCII separators U+001C through U+001F.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

func nonPrintable(r rune) bool {
	return !unicode.IsPrint(r) && !isSpace(r)
}

var controlFilter = runes.Remove(runes.Predicate(nonPrintable))

// Sanitize removes non-printable characters and strips surrounding
// whitespace and quote characters.
func Sanitize(line string) string {
	cleaned, _, _ := transform.String(controlFilter, line)
	return strings.Trim(strings.TrimFunc(cleaned, isSpace), quoteCutset)
}

// Parse turns one input line into a Command. ok is false when nothing is left
// after sanitizing. The whole line is upper-cased before splitting, matching
// the keypad protocol; entity normalization lower-cases ids again.
func Parse(line string) (cmd Command, ok bool) {
	parts := strings.FieldsFunc(strings.ToUpper(Sanitize(line)), isSpace)
	if len(parts) == 0 {
		return Command{}, false
	}
	return Command{
		Action:  LookupAction(parts[0]),
		Keyword: parts[0],
		Args:    parts[1:],
	}, true
}
