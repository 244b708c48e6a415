package telegram

import (
	"strings"
	"unicode/utf8"
)

// splitText breaks text into chunks of at most maxLen bytes, preferring
// line boundaries. Telegram rejects oversize messages outright, so a line
// longer than maxLen is cut.
func splitText(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	for _, line := range strings.Split(text, "\n") {
		lineWithNewline := line + "\n"

		if current.Len()+len(lineWithNewline) > maxLen {
			if current.Len() > 0 {
				chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
				current.Reset()
			}

			if len(lineWithNewline) > maxLen {
				chunks = append(chunks, forceSplit(line, maxLen)...)
				continue
			}
		}

		current.WriteString(lineWithNewline)
	}

	if s := strings.TrimRight(current.String(), "\n"); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// forceSplit breaks a single long line into chunks of at most maxLen bytes
// without cutting a UTF-8 sequence.
func forceSplit(line string, maxLen int) []string {
	var parts []string
	for len(line) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		parts = append(parts, line[:cut])
		line = line[cut:]
	}
	if len(line) > 0 {
		parts = append(parts, line)
	}
	return parts
}
