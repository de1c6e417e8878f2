package dialog

import "strings"

// fillerWords are standalone tokens stripped from voice-originated text.
var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "uhm": {}, "erm": {}, "hmm": {}, "mhm": {},
}

// CleanTranscript normalizes raw recognized text for storage: symbols that do
// not belong in spoken answers are dropped, standalone fillers are removed and
// whitespace is collapsed. Cleaning already-clean text is a no-op.
func CleanTranscript(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch r {
		case '*', '/', '#', '_', '`', '~', '\\', '|':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	fields := strings.Fields(b.String())
	kept := fields[:0]
	for _, w := range fields {
		if _, ok := fillerWords[strings.ToLower(strings.Trim(w, ".,!?;:"))]; ok {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
