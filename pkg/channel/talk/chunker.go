package talk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxMessageLength is the Talk server's limit on one chat message.
const maxMessageLength = 32000

// splitMessage splits content into chunks of at most maxLen bytes, preferring
// to break at the last newline in the window, then at the last space, and
// cutting hard only when neither exists. Leading whitespace is trimmed off
// each remainder so chunks never start mid-separator. Empty content yields no
// chunks.
func splitMessage(content string, maxLen int) []string {
	if content == "" {
		return nil
	}
	if len(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	rest := content
	for rest != "" {
		if len(rest) <= maxLen {
			chunks = append(chunks, rest)
			break
		}

		window := rest[:maxLen]
		cut := strings.LastIndexByte(window, '\n')
		if cut <= 0 {
			cut = strings.LastIndexByte(window, ' ')
		}
		if cut <= 0 {
			cut = maxLen
			// Hard cut: back up so multi-byte runes stay intact.
			for cut > 0 && !utf8.RuneStart(rest[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
		}

		chunks = append(chunks, rest[:cut])
		rest = strings.TrimLeftFunc(rest[cut:], unicode.IsSpace)
	}

	return chunks
}
