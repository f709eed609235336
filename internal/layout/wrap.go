package layout

import (
	"strings"
	"unicode/utf8"
)

// Wrap breaks text into lines of at most width runes. Words are never split: a word
// longer than width occupies a line of its own. Runs of whitespace collapse to one space.
func Wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if width < 1 {
		width = 1
	}

	var lines []string
	current := words[0]
	currentLen := utf8.RuneCountInString(current)
	for _, word := range words[1:] {
		wordLen := utf8.RuneCountInString(word)
		if currentLen+1+wordLen > width {
			lines = append(lines, current)
			current, currentLen = word, wordLen
			continue
		}
		current += " " + word
		currentLen += 1 + wordLen
	}
	return append(lines, current)
}
