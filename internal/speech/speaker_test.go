package speech

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTTS struct {
	frames int32
	count  int
	pace   time.Duration
}

func (f *fakeTTS) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcm := make(chan []byte, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(pcm)
		defer close(errc)
		n := f.count
		if n == 0 {
			n = 3
		}
		for i := 0; i < n; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			pcm <- []byte{1, 0, 2, 0}
			atomic.AddInt32(&f.frames, 1)
			if f.pace > 0 {
				time.Sleep(f.pace)
			}
		}
	}()
	return pcm, errc
}

type failingTTS struct{ err error }

func (f failingTTS) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcm := make(chan []byte)
	errc := make(chan error, 1)
	errc <- f.err
	close(pcm)
	close(errc)
	return pcm, errc
}

type countingSink struct {
	wrote   int32
	flushed int32
	resets  int32
}

func (s *countingSink) WritePCM(p []byte) { atomic.AddInt32(&s.wrote, 1) }
func (s *countingSink) FlushTail()        { atomic.AddInt32(&s.flushed, 1) }
func (s *countingSink) Reset()            { atomic.AddInt32(&s.resets, 1) }

func TestUtterer_SpeakDrainsAndFlushes(t *testing.T) {
	sink := &countingSink{}
	u := NewUtterer(&fakeTTS{}, sink)

	if err := u.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if atomic.LoadInt32(&sink.wrote) != 3 {
		t.Fatalf("expected 3 writes, got %d", sink.wrote)
	}
	if atomic.LoadInt32(&sink.flushed) != 1 {
		t.Fatalf("expected tail flush after clean completion")
	}
	if u.Speaking() {
		t.Fatalf("expected idle after Speak returns")
	}
}

func TestUtterer_RejectsOverlappingSpeak(t *testing.T) {
	sink := &countingSink{}
	u := NewUtterer(&fakeTTS{count: 50, pace: 5 * time.Millisecond}, sink)

	done := make(chan error, 1)
	go func() { done <- u.Speak(context.Background(), "long utterance") }()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && !u.Speaking() {
		time.Sleep(time.Millisecond)
	}
	if err := u.Speak(context.Background(), "second"); !errors.Is(err, ErrAlreadySpeaking) {
		t.Fatalf("expected ErrAlreadySpeaking, got %v", err)
	}
	u.Cancel()
	<-done
}

func TestUtterer_CancelStopsStreamAndResetsSink(t *testing.T) {
	sink := &countingSink{}
	tts := &fakeTTS{count: 100, pace: 5 * time.Millisecond}
	u := NewUtterer(tts, sink)

	done := make(chan error, 1)
	go func() { done <- u.Speak(context.Background(), "will be cancelled") }()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && atomic.LoadInt32(&sink.wrote) == 0 {
		time.Sleep(time.Millisecond)
	}
	u.Cancel()

	err := <-done
	if err == nil {
		t.Fatalf("expected a cancellation error from Speak")
	}
	if atomic.LoadInt32(&sink.resets) == 0 {
		t.Fatalf("expected sink reset on cancel")
	}
	if atomic.LoadInt32(&sink.flushed) != 0 {
		t.Fatalf("cancelled utterance must not flush its tail")
	}
	// Speak has returned; nothing may touch the sink afterwards
	written := atomic.LoadInt32(&sink.wrote)
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&sink.wrote) != written {
		t.Fatalf("audio written after cancelled Speak returned")
	}
}

func TestUtterer_PropagatesStreamError(t *testing.T) {
	wantErr := errors.New("synth unavailable")
	u := NewUtterer(failingTTS{err: wantErr}, nil)
	if err := u.Speak(context.Background(), "hi"); !errors.Is(err, wantErr) {
		t.Fatalf("expected stream error, got %v", err)
	}
}
