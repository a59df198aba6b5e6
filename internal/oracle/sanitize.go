package oracle

import (
	"strings"
)

const fence = "```"

// emptyObject is what an absent or blank response sanitizes to.
const emptyObject = "{}"

// Sanitize strips code-fence markers (and a language tag directly after an
// opening fence) and surrounding whitespace from raw model output. Blank
// input yields "{}". Sanitize is idempotent. It does not validate the result.
func Sanitize(raw string) string {
	text := strings.TrimSpace(raw)
	for {
		before := text
		if strings.HasPrefix(text, fence) {
			text = stripLanguageTag(text[len(fence):])
		}
		if strings.HasSuffix(text, fence) {
			text = text[:len(text)-len(fence)]
		}
		text = strings.TrimSpace(text)
		if text == before {
			break
		}
	}
	if text == "" {
		return emptyObject
	}
	return text
}

// stripLanguageTag drops an identifier such as "json" or "sql" when it
// occupies the rest of the fence line.
func stripLanguageTag(s string) string {
	end := strings.IndexByte(s, '\n')
	line := s
	if end >= 0 {
		line = s[:end]
	}
	tag := strings.TrimRight(line, " \t\r")
	if tag == "" || !isLanguageTag(tag) {
		return s
	}
	if end < 0 {
		return ""
	}
	return s[end+1:]
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '+', r == '.':
		default:
			return false
		}
	}
	return true
}
