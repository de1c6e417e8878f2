package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeSpeaker struct {
	delay time.Duration
	err   error

	mu        sync.Mutex
	spoken    []string
	cancelled int
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeSpeaker) Cancel() {
	f.mu.Lock()
	f.cancelled++
	f.mu.Unlock()
}

func (f *fakeSpeaker) spokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spoken)
}

type fakeCapturer struct {
	segments chan Segment
	errs     chan error
	startErr error

	mu      sync.Mutex
	started int
	stopped int
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{segments: make(chan Segment, 16), errs: make(chan error, 4)}
}

func (f *fakeCapturer) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
	return nil
}

func (f *fakeCapturer) Stop() error {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
	return nil
}

func (f *fakeCapturer) Segments() <-chan Segment { return f.segments }
func (f *fakeCapturer) Errors() <-chan error     { return f.errs }

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(typ EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) listeningStarted(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Type == EventListeningStarted && ev.Index == index {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fastOptions() Options {
	return Options{
		ConnectDelay:    5 * time.Millisecond,
		NoAnswerTimeout: 150 * time.Millisecond,
		SilenceDebounce: 40 * time.Millisecond,
	}
}

func TestOrchestrator_AnsweredThenTimedOut(t *testing.T) {
	spk := &fakeSpeaker{}
	cap := newFakeCapturer()
	evs := &eventLog{}
	o := New(spk, cap, fastOptions())

	qs := []Question{{Text: "A?"}, {Text: "B?"}}
	if err := o.Start(qs, evs.record); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, time.Second, "listening on question 0", func() bool { return evs.listeningStarted(0) })
	cap.segments <- Segment{Text: "yes", Final: true}

	// question 1 gets no input and must time out
	waitFor(t, 2*time.Second, "session finish", func() bool { return o.State() == StateFinished })

	ledger := o.Ledger()
	if len(ledger) != 2 {
		t.Fatalf("expected ledger length 2, got %d", len(ledger))
	}
	if ledger[0].Status != StatusAnswered || ledger[0].Answer == nil || *ledger[0].Answer != "yes" {
		t.Fatalf("unexpected first record: %+v", ledger[0])
	}
	if ledger[1].Status != StatusNotAnswered || ledger[1].Answer != nil {
		t.Fatalf("unexpected second record: %+v", ledger[1])
	}
	if ledger[0].Question != "A?" || ledger[1].Question != "B?" {
		t.Fatalf("ledger order mismatch: %+v", ledger)
	}
	if got := evs.count(EventTurnResolved); got != 2 {
		t.Fatalf("expected 2 TURN_RESOLVED events, got %d", got)
	}
	if got := evs.count(EventSessionFinished); got != 1 {
		t.Fatalf("expected 1 SESSION_FINISHED event, got %d", got)
	}
	if spk.spokenCount() != 2 {
		t.Fatalf("expected both questions spoken, got %d", spk.spokenCount())
	}
}

func TestOrchestrator_EmptyQuestionListRejected(t *testing.T) {
	spk := &fakeSpeaker{}
	cap := newFakeCapturer()
	evs := &eventLog{}
	o := New(spk, cap, fastOptions())

	err := o.Start(nil, evs.record)
	if !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
	if o.State() != StateFinished {
		t.Fatalf("expected FINISHED, got %s", o.State())
	}
	if got := evs.count(EventSessionFinished); got != 1 {
		t.Fatalf("expected immediate SESSION_FINISHED, got %d", got)
	}
	if spk.spokenCount() != 0 {
		t.Fatalf("nothing should have been spoken")
	}
}

func TestOrchestrator_StartWhileActiveRejected(t *testing.T) {
	spk := &fakeSpeaker{delay: 50 * time.Millisecond}
	cap := newFakeCapturer()
	o := New(spk, cap, fastOptions())

	if err := o.Start([]Question{{Text: "A?"}}, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer o.End()
	if err := o.Start([]Question{{Text: "B?"}}, nil); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
}

func TestOrchestrator_TimeoutWinsOverPendingDebounce(t *testing.T) {
	spk := &fakeSpeaker{}
	cap := newFakeCapturer()
	evs := &eventLog{}
	opts := fastOptions()
	opts.NoAnswerTimeout = 60 * time.Millisecond
	opts.SilenceDebounce = 500 * time.Millisecond // debounce would fire long after the timeout
	o := New(spk, cap, opts)

	if err := o.Start([]Question{{Text: "A?"}}, evs.record); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, "listening", func() bool { return evs.listeningStarted(0) })
	cap.segments <- Segment{Text: "half an", Final: true}

	waitFor(t, 2*time.Second, "finish", func() bool { return o.State() == StateFinished })
	ledger := o.Ledger()
	if len(ledger) != 1 || ledger[0].Status != StatusNotAnswered {
		t.Fatalf("expected timeout to win with not_answered, got %+v", ledger)
	}
	// the debounce timer must stay inert after the timeout resolved the turn
	time.Sleep(600 * time.Millisecond)
	if got := len(o.Ledger()); got != 1 {
		t.Fatalf("late debounce mutated the ledger: %d records", got)
	}
}

func TestOrchestrator_FlushPartialOnTimeoutOption(t *testing.T) {
	spk := &fakeSpeaker{}
	cap := newFakeCapturer()
	evs := &eventLog{}
	opts := fastOptions()
	opts.NoAnswerTimeout = 60 * time.Millisecond
	opts.SilenceDebounce = 500 * time.Millisecond
	opts.FlushPartialOnTimeout = true
	o := New(spk, cap, opts)

	if err := o.Start([]Question{{Text: "A?"}}, evs.record); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, "listening", func() bool { return evs.listeningStarted(0) })
	cap.segments <- Segment{Text: "half an answer", Final: true}

	waitFor(t, 2*time.Second, "finish", func() bool { return o.State() == StateFinished })
	ledger := o.Ledger()
	if len(ledger) != 1 || ledger[0].Status != StatusAnswered {
		t.Fatalf("expected partial committed on timeout, got %+v", ledger)
	}
	if *ledger[0].Answer != "half an answer" {
		t.Fatalf("unexpected partial answer: %q", *ledger[0].Answer)
	}
}

func TestOrchestrator_EndMidListenDropsLateSegment(t *testing.T) {
	spk := &fakeSpeaker{}
	cap := newFakeCapturer()
	evs := &eventLog{}
	o := New(spk, cap, fastOptions())

	if err := o.Start([]Question{{Text: "A?"}}, evs.record); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, "listening", func() bool { return evs.listeningStarted(0) })

	o.End()
	if o.State() != StateFinished {
		t.Fatalf("expected FINISHED after End, got %s", o.State())
	}
	// synthetic late delivery from the capture device
	cap.segments <- Segment{Text: "too late", Final: true}
	time.Sleep(100 * time.Millisecond)
	if got := len(o.Ledger()); got != 0 {
		t.Fatalf("ledger mutated after End: %d records", got)
	}

	// End is idempotent
	o.End()
	if got := evs.count(EventSessionFinished); got != 1 {
		t.Fatalf("expected a single SESSION_FINISHED, got %d", got)
	}
}

func TestOrchestrator_EndMidSpeechCancelsOutput(t *testing.T) {
	spk := &fakeSpeaker{delay: 300 * time.Millisecond}
	cap := newFakeCapturer()
	evs := &eventLog{}
	o := New(spk, cap, fastOptions())

	if err := o.Start([]Question{{Text: "A?"}}, evs.record); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, "speaking", func() bool { return spk.spokenCount() == 1 })
	o.End()

	if got := len(o.Ledger()); got != 0 {
		t.Fatalf("aborted turn must not be recorded, got %d records", got)
	}
	spk.mu.Lock()
	cancelled := spk.cancelled
	spk.mu.Unlock()
	if cancelled == 0 {
		t.Fatalf("expected speaker cancellation on End")
	}
}

func TestOrchestrator_FatalCaptureErrorAbortsSession(t *testing.T) {
	spk := &fakeSpeaker{}
	cap := newFakeCapturer()
	evs := &eventLog{}
	o := New(spk, cap, fastOptions())

	qs := []Question{{Text: "A?"}, {Text: "B?"}}
	if err := o.Start(qs, evs.record); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, "listening", func() bool { return evs.listeningStarted(0) })
	cap.errs <- fmt.Errorf("recognizer refused: %w", ErrCapabilityUnavailable)

	waitFor(t, 2*time.Second, "finish", func() bool { return o.State() == StateFinished })
	ledger := o.Ledger()
	if len(ledger) != 1 || ledger[0].Status != StatusNotAnswered {
		t.Fatalf("expected one not_answered record, got %+v", ledger)
	}
	if spk.spokenCount() != 1 {
		t.Fatalf("second question must not be spoken after fatal error")
	}
}

func TestOrchestrator_TransientCaptureErrorContinues(t *testing.T) {
	spk := &fakeSpeaker{}
	cap := newFakeCapturer()
	evs := &eventLog{}
	o := New(spk, cap, fastOptions())

	qs := []Question{{Text: "A?"}, {Text: "B?"}}
	if err := o.Start(qs, evs.record); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, "listening on question 0", func() bool { return evs.listeningStarted(0) })
	cap.errs <- errors.New("device busy")

	waitFor(t, time.Second, "listening on question 1", func() bool { return evs.listeningStarted(1) })
	cap.segments <- Segment{Text: "recovered", Final: true}

	waitFor(t, 2*time.Second, "finish", func() bool { return o.State() == StateFinished })
	ledger := o.Ledger()
	if len(ledger) != 2 {
		t.Fatalf("expected 2 records, got %d", len(ledger))
	}
	if ledger[0].Status != StatusNotAnswered || ledger[1].Status != StatusAnswered {
		t.Fatalf("unexpected statuses: %+v", ledger)
	}
}

func TestOrchestrator_SegmentFromResolvedTurnNotAttributedToNext(t *testing.T) {
	spk := &fakeSpeaker{delay: 80 * time.Millisecond}
	cap := newFakeCapturer()
	evs := &eventLog{}
	opts := fastOptions()
	opts.NoAnswerTimeout = 60 * time.Millisecond
	o := New(spk, cap, opts)

	qs := []Question{{Text: "A?"}, {Text: "B?"}}
	if err := o.Start(qs, evs.record); err != nil {
		t.Fatalf("start: %v", err)
	}

	// let question 0 resolve via timeout, then slip a late final onto the
	// shared channel while question 1 is still being spoken
	waitFor(t, 2*time.Second, "turn 0 resolved", func() bool { return evs.count(EventTurnResolved) == 1 })
	cap.segments <- Segment{Text: "late answer meant for question A", Final: true}

	waitFor(t, 2*time.Second, "finish", func() bool { return o.State() == StateFinished })
	ledger := o.Ledger()
	if len(ledger) != 2 {
		t.Fatalf("expected 2 records, got %d", len(ledger))
	}
	if ledger[1].Status != StatusNotAnswered || ledger[1].Answer != nil {
		t.Fatalf("late speech from turn 0 was attributed to turn 1: %+v", ledger[1])
	}
}

func TestOrchestrator_FinishSnapshotSurvivesImmediateRestart(t *testing.T) {
	spk := &fakeSpeaker{}
	cap := newFakeCapturer()
	opts := fastOptions()
	opts.NoAnswerTimeout = 30 * time.Millisecond

	var mu sync.Mutex
	var finished [][]AnswerRecord
	record := func(ev Event) {
		if ev.Type == EventSessionFinished {
			mu.Lock()
			finished = append(finished, ev.Ledger)
			mu.Unlock()
		}
	}

	o := New(spk, cap, opts)
	if err := o.Start([]Question{{Text: "A?"}}, record); err != nil {
		t.Fatalf("first start: %v", err)
	}
	// restart the instant the state reads FINISHED
	waitFor(t, 2*time.Second, "first finish", func() bool { return o.State() == StateFinished })
	if err := o.Start([]Question{{Text: "B?"}}, record); err != nil {
		t.Fatalf("second start: %v", err)
	}
	waitFor(t, 2*time.Second, "both finish events", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(finished) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if len(finished[0]) != 1 || finished[0][0].Question != "A?" {
		t.Fatalf("first session's final event lost its own ledger: %+v", finished[0])
	}
	if len(finished[1]) != 1 || finished[1][0].Question != "B?" {
		t.Fatalf("second session's final event carries the wrong ledger: %+v", finished[1])
	}
}

func TestOrchestrator_RestartAfterFinishedResetsLedger(t *testing.T) {
	spk := &fakeSpeaker{}
	cap := newFakeCapturer()
	evs := &eventLog{}
	opts := fastOptions()
	opts.NoAnswerTimeout = 40 * time.Millisecond
	o := New(spk, cap, opts)

	if err := o.Start([]Question{{Text: "A?"}}, evs.record); err != nil {
		t.Fatalf("first start: %v", err)
	}
	waitFor(t, 2*time.Second, "first finish", func() bool { return o.State() == StateFinished })

	if err := o.Start([]Question{{Text: "B?"}}, evs.record); err != nil {
		t.Fatalf("second start: %v", err)
	}
	waitFor(t, 2*time.Second, "second finish", func() bool { return o.State() == StateFinished })

	ledger := o.Ledger()
	if len(ledger) != 1 || ledger[0].Question != "B?" {
		t.Fatalf("expected fresh ledger for second session, got %+v", ledger)
	}
}
