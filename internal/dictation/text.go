package dictation

import "strings"

// terminators mark the end of a punctuated sentence. Everything up to and
// including the last one in a document is settled.
const terminators = ".?"

// SettleIndex returns the position just after the last sentence terminator
// in text, or 0 when there is none.
func SettleIndex(text string) int {
	return strings.LastIndexAny(text, terminators) + 1
}

// NormalizePending folds the pending suffix into the single line the
// punctuation service expects.
func NormalizePending(pending string) string {
	return strings.TrimSpace(strings.ReplaceAll(pending, "\n", " "))
}

// Compose builds the replacement text for a document: the settled prefix,
// a line break, the new paragraph body and the paragraph separator.
func Compose(settled, body string) string {
	var b strings.Builder
	b.Grow(len(settled) + len(body) + 3)
	if settled != "" {
		b.WriteString(settled)
		if body != "" {
			b.WriteByte('\n')
		}
	}
	b.WriteString(body)
	b.WriteString("\n\n")
	return b.String()
}

// split divides document text at its settle index.
func split(text string) (settled, pending string) {
	idx := SettleIndex(text)
	return text[:idx], text[idx:]
}
