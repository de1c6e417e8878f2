package dialog

import (
	"strings"
	"sync"
	"time"
)

// utteranceFlush carries a completed utterance together with the turn token it
// belongs to, so a delivery from a superseded turn can be recognized and dropped.
type utteranceFlush struct {
	token uint64
	text  string
}

// accumulator merges finalized transcript segments into a running buffer and
// decides end of utterance via a silence debounce: every final segment
// restarts the timer, and the buffer is flushed only after a quiet period.
// One accumulator serves exactly one turn; the buffer is cleared exactly once,
// either at flush or at discard.
type accumulator struct {
	debounce time.Duration
	token    uint64
	out      chan<- utteranceFlush

	mu    sync.Mutex
	buf   strings.Builder
	timer *time.Timer
	done  bool
}

func newAccumulator(token uint64, debounce time.Duration, out chan<- utteranceFlush) *accumulator {
	return &accumulator{debounce: debounce, token: token, out: out}
}

// observe feeds one segment. Finals are appended with a separating space and
// restart the debounce; partials are ignored here (they exist for live
// captions, not for endpointing).
func (a *accumulator) observe(seg Segment) {
	if !seg.Final {
		return
	}
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return
	}
	if a.buf.Len() > 0 {
		a.buf.WriteByte(' ')
	}
	a.buf.WriteString(text)
	if a.timer == nil {
		a.timer = time.AfterFunc(a.debounce, a.fire)
	} else {
		a.timer.Stop()
		a.timer.Reset(a.debounce)
	}
}

// fire runs on the timer goroutine after the quiet period. The done flag is
// checked-and-set under the lock so a racing discard wins cleanly.
func (a *accumulator) fire() {
	a.mu.Lock()
	if a.done {
		a.mu.Unlock()
		return
	}
	text := strings.TrimSpace(a.buf.String())
	if text == "" {
		a.mu.Unlock()
		return
	}
	a.done = true
	a.buf.Reset()
	a.mu.Unlock()
	select {
	case a.out <- utteranceFlush{token: a.token, text: text}:
	default:
	}
}

// discard cancels the debounce and drops the buffer without flushing. Used when
// the hard timeout or a cancellation takes precedence over a pending utterance.
func (a *accumulator) discard() {
	a.mu.Lock()
	a.done = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.buf.Reset()
	a.mu.Unlock()
}

// pending returns the buffered-but-unflushed text, for configurations where the
// timeout commits partial answers instead of dropping them.
func (a *accumulator) pending() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return ""
	}
	return strings.TrimSpace(a.buf.String())
}
