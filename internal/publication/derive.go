package publication

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/folio/folio-backend/internal/db/entities"
)

const wordsPerMinute = 200

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// Derive recomputes the fields that follow from the body.
func Derive(p *entities.Post) {
	p.WordCount = WordCount(p.ContentOrEmpty())
	p.ReadingTime = ReadingTime(p.WordCount)
}

// WordCount counts whitespace-separated words with markup removed.
func WordCount(content string) int {
	return len(strings.Fields(htmlTag.ReplaceAllString(content, " ")))
}

// ReadingTime is whole minutes, rounded up.
func ReadingTime(words int) int {
	return (words + wordsPerMinute - 1) / wordsPerMinute
}

// Slugify lower-cases title and collapses every run of characters that are
// not letters or digits into a single '-'.
func Slugify(title string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
