package archive

import (
	"path"
	"strings"
)

// MaxTitleLength bounds the length of a sanitized topic directory name
const MaxTitleLength = 50

const untitled = "untitled"

// SanitizeTitle turns a topic title into a safe directory name.
// Anything outside [A-Za-z0-9] becomes an underscore, runs of underscores
// collapse to one, and leading or trailing underscores are dropped.
// The result is at most MaxTitleLength characters; an empty result is "untitled".
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	pendingUnderscore := false
	for _, r := range title {
		if isAlphanumeric(r) {
			if pendingUnderscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingUnderscore = false
			b.WriteRune(r)
			continue
		}
		pendingUnderscore = true
	}

	s := b.String()
	if len(s) > MaxTitleLength {
		s = strings.TrimRight(s[:MaxTitleLength], "_")
	}
	if s == "" {
		return untitled
	}
	return s
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// EntryName reduces fileName to its last path element. Names that carry no
// usable base name fall back to fallback.
func EntryName(fileName, fallback string) string {
	name := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	switch name {
	case "", ".", "..", "/":
		if fallback == "" {
			return "file"
		}
		return fallback
	}
	return name
}

// EntryPath is the location of an attachment inside the archive
func EntryPath(topicTitle, fileName, attachmentID string) string {
	return SanitizeTitle(topicTitle) + "/" + EntryName(fileName, attachmentID)
}
