package dialog

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Defaults match the reference client behavior: a short simulated connection
// delay, a 10s no-answer fallback and a 1.5s silence debounce.
const (
	DefaultConnectDelay    = 500 * time.Millisecond
	DefaultNoAnswerTimeout = 10 * time.Second
	DefaultSilenceDebounce = 1500 * time.Millisecond
)

// Options tune session timing and the timeout precedence rule.
type Options struct {
	ConnectDelay    time.Duration
	NoAnswerTimeout time.Duration
	SilenceDebounce time.Duration
	// FlushPartialOnTimeout commits buffered final segments as an answered turn
	// when the no-answer timeout fires. The default keeps the timeout-wins
	// rule: buffered text is dropped and the turn records not_answered.
	FlushPartialOnTimeout bool
}

func (o Options) withDefaults() Options {
	if o.ConnectDelay <= 0 {
		o.ConnectDelay = DefaultConnectDelay
	}
	if o.NoAnswerTimeout <= 0 {
		o.NoAnswerTimeout = DefaultNoAnswerTimeout
	}
	if o.SilenceDebounce <= 0 {
		o.SilenceDebounce = DefaultSilenceDebounce
	}
	return o
}

// Orchestrator runs one spoken Q/A session at a time: it speaks each question,
// opens a listening window, resolves the answer via silence debounce or the
// no-answer timeout, appends to the ledger and advances. All session state is
// mutated from a single goroutine; asynchronous deliveries carry a turn token
// that is compared before acting, so events from a superseded turn are inert.
type Orchestrator struct {
	speaker  Speaker
	capturer Capturer
	opts     Options

	mu        sync.Mutex
	state     SessionState
	token     uint64
	questions []Question
	ledger    *Ledger
	onEvent   func(Event)
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(speaker Speaker, capturer Capturer, opts Options) *Orchestrator {
	done := make(chan struct{})
	close(done)
	return &Orchestrator{
		speaker:  speaker,
		capturer: capturer,
		opts:     opts.withDefaults(),
		state:    StateInactive,
		ledger:   NewLedger(),
		done:     done,
	}
}

// Start begins a session over the given questions. Valid only from INACTIVE or
// FINISHED; an empty list is rejected with an immediate FINISHED. Events are
// delivered synchronously from the session goroutine, so callbacks must be
// quick and must not call End.
func (o *Orchestrator) Start(questions []Question, onEvent func(Event)) error {
	o.mu.Lock()
	if o.state == StateConnecting || o.state == StateActive {
		o.mu.Unlock()
		return ErrSessionActive
	}
	o.ledger = NewLedger()
	o.onEvent = onEvent
	if len(questions) == 0 {
		o.state = StateFinished
		o.mu.Unlock()
		o.emit(Event{Type: EventSessionFinished, Ledger: []AnswerRecord{}})
		return ErrNoQuestions
	}
	o.questions = append([]Question(nil), questions...)
	o.token++
	o.state = StateConnecting
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	o.mu.Unlock()
	go o.run(ctx)
	return nil
}

// End aborts the session from any state. It returns only once playback is
// silent, capture is stopped, all timers are disarmed and no further event can
// mutate the ledger. Calling it twice is a no-op the second time.
func (o *Orchestrator) End() {
	o.mu.Lock()
	if o.state == StateInactive {
		o.state = StateFinished
		o.mu.Unlock()
		return
	}
	o.token++ // invalidate any in-flight turn delivery
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()
	o.speaker.Cancel()
	if cancel != nil {
		cancel()
	}
	<-done
}

// State reports the current session state.
func (o *Orchestrator) State() SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Ledger returns a snapshot of the answers resolved so far.
func (o *Orchestrator) Ledger() []AnswerRecord {
	o.mu.Lock()
	l := o.ledger
	o.mu.Unlock()
	return l.Snapshot()
}

func (o *Orchestrator) setState(s SessionState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) nextToken() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.token++
	return o.token
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	fn := o.onEvent
	o.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// run is the single execution context for the session: every ledger append and
// state transition for this session happens here.
func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)

	// simulated connection setup, as the reference client does before ACTIVE
	select {
	case <-time.After(o.opts.ConnectDelay):
	case <-ctx.Done():
		o.finish(nil)
		return
	}
	o.setState(StateActive)

	var fatal error
	for i := range o.questions {
		rec, err := o.runTurn(ctx, i)
		if ctx.Err() != nil {
			break
		}
		o.ledger.Append(rec)
		o.emit(Event{Type: EventTurnResolved, Index: i, Question: o.questions[i].Text, Record: &rec})
		if err != nil {
			fatal = err
			break
		}
	}
	o.finish(fatal)
}

func (o *Orchestrator) finish(fatal error) {
	// snapshot and callback are captured under the same lock as the FINISHED
	// transition: a Start racing in right after the flip replaces the ledger
	// and callback, and must not bleed into this session's final event
	o.mu.Lock()
	o.state = StateFinished
	snapshot := o.ledger.Snapshot()
	fn := o.onEvent
	o.mu.Unlock()

	ev := Event{Type: EventSessionFinished, Ledger: snapshot}
	if fatal != nil {
		ev.Err = fatal.Error()
	}
	if fn != nil {
		fn(ev)
	}
}

// runTurn delivers question i and resolves its answer. A non-nil error marks a
// non-recoverable capture failure; the returned record is valid either way.
// An aborted turn (session ended mid-flight) returns with ctx.Err set and must
// not be appended.
func (o *Orchestrator) runTurn(ctx context.Context, i int) (AnswerRecord, error) {
	q := o.questions[i]
	token := o.nextToken()

	o.emit(Event{Type: EventSpeakingStarted, Index: i, Question: q.Text})
	if err := o.speaker.Speak(ctx, q.Text); err != nil {
		if ctx.Err() != nil {
			return AnswerRecord{}, nil
		}
		log.Printf("dialog: speak failed: %v", err)
		if errors.Is(err, ErrCapabilityUnavailable) {
			return notAnswered(q), err
		}
		// output hiccup: the respondent never heard the question
		return notAnswered(q), nil
	}
	o.emit(Event{Type: EventSpeakingEnded, Index: i, Question: q.Text})
	if ctx.Err() != nil {
		return AnswerRecord{}, nil
	}

	if err := o.capturer.Start(); err != nil {
		log.Printf("dialog: capture start failed: %v", err)
		if errors.Is(err, ErrCapabilityUnavailable) {
			return notAnswered(q), err
		}
		return notAnswered(q), nil
	}
	// the segment channel outlives turns; anything buffered around a previous
	// turn's resolution belongs to that turn and must not become this answer
	drainSegments(o.capturer.Segments())
	o.emit(Event{Type: EventListeningStarted, Index: i, Question: q.Text})

	flushCh := make(chan utteranceFlush, 1)
	acc := newAccumulator(token, o.opts.SilenceDebounce, flushCh)
	timeout := time.NewTimer(o.opts.NoAnswerTimeout)
	defer timeout.Stop()

	var (
		rec   AnswerRecord
		fatal error
	)
resolve:
	for {
		select {
		case <-ctx.Done():
			acc.discard()
			_ = o.capturer.Stop()
			return AnswerRecord{}, nil

		case seg, ok := <-o.capturer.Segments():
			if !ok {
				// capture stream closed under us; resolve like a transient failure
				acc.discard()
				_ = o.capturer.Stop()
				rec = notAnswered(q)
				break resolve
			}
			acc.observe(seg)

		case err := <-o.capturer.Errors():
			acc.discard()
			_ = o.capturer.Stop()
			rec = notAnswered(q)
			if errors.Is(err, ErrCapabilityUnavailable) {
				fatal = err
			} else {
				log.Printf("dialog: transient capture error: %v", err)
			}
			break resolve

		case f := <-flushCh:
			if f.token != token {
				continue // stale flush from a superseded turn
			}
			timeout.Stop()
			_ = o.capturer.Stop()
			rec = answered(q, CleanTranscript(f.text))
			break resolve

		case <-timeout.C:
			if text := acc.pending(); o.opts.FlushPartialOnTimeout && text != "" {
				acc.discard()
				_ = o.capturer.Stop()
				rec = answered(q, CleanTranscript(text))
				break resolve
			}
			acc.discard()
			_ = o.capturer.Stop()
			rec = notAnswered(q)
			break resolve
		}
	}
	o.emit(Event{Type: EventListeningEnded, Index: i, Question: q.Text})
	return rec, fatal
}

// drainSegments discards every segment already queued on the capture stream.
func drainSegments(ch <-chan Segment) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// answered builds an answered record; an answer that cleans down to nothing
// counts as not answered.
func answered(q Question, text string) AnswerRecord {
	if text == "" {
		return notAnswered(q)
	}
	return AnswerRecord{Question: q.Text, Answer: &text, Status: StatusAnswered}
}

func notAnswered(q Question) AnswerRecord {
	return AnswerRecord{Question: q.Text, Answer: nil, Status: StatusNotAnswered}
}
