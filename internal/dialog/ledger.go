package dialog

import "sync"

// Ledger is the append-only, ordered record of resolved turns. It exposes no
// mutation beyond Append; the i-th entry corresponds to the i-th question.
type Ledger struct {
	mu   sync.Mutex
	recs []AnswerRecord
}

func NewLedger() *Ledger { return &Ledger{} }

// Append adds the outcome of the next turn.
func (l *Ledger) Append(rec AnswerRecord) {
	l.mu.Lock()
	l.recs = append(l.recs, rec)
	l.mu.Unlock()
}

// Len reports how many turns have resolved so far.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recs)
}

// Snapshot returns a copy of the ordered records so far. Callers may retain it
// freely; later appends do not show through.
func (l *Ledger) Snapshot() []AnswerRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AnswerRecord, len(l.recs))
	copy(out, l.recs)
	return out
}
