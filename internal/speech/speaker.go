package speech

import (
	"context"
	"errors"
	"sync"

	"github.com/JanhaviSolankiNZ/ai-interview-platform/internal/tts"
)

// PCMSink consumes 48kHz PCM16LE mono bytes and performs delivery (e.g. binary
// WebSocket frames to the client). Implementations buffer internally and pace
// delivery; Reset drops queued audio immediately.
type PCMSink interface {
	WritePCM(pcm []byte)
	FlushTail()
	Reset()
}

// NopSink discards audio. Used headless and in tests.
type NopSink struct{}

func (NopSink) WritePCM([]byte) {}
func (NopSink) FlushTail()      {}
func (NopSink) Reset()          {}

// ErrAlreadySpeaking is returned when Speak is called while an utterance is in
// progress. The orchestrator never overlaps calls; this is a defensive guard.
var ErrAlreadySpeaking = errors.New("speech: utterance already in progress")

// Utterer adapts a streaming TTS client to the dialog Speaker contract: one
// utterance at a time, cancellable mid-stream, no late completion after Cancel.
type Utterer struct {
	tts  tts.TTS
	sink PCMSink

	mu       sync.Mutex
	speaking bool
	cancel   context.CancelFunc
}

func NewUtterer(t tts.TTS, sink PCMSink) *Utterer {
	if sink == nil {
		sink = NopSink{}
	}
	return &Utterer{tts: t, sink: sink}
}

// Speak streams the utterance into the sink and returns once the audio stream
// has fully drained, or with the context error when cancelled.
func (u *Utterer) Speak(ctx context.Context, text string) error {
	u.mu.Lock()
	if u.speaking {
		u.mu.Unlock()
		return ErrAlreadySpeaking
	}
	ctxTTS, cancel := context.WithCancel(ctx)
	u.speaking = true
	u.cancel = cancel
	u.mu.Unlock()

	defer func() {
		cancel()
		u.mu.Lock()
		u.speaking = false
		u.cancel = nil
		u.mu.Unlock()
	}()

	pcmCh, errCh := u.tts.StreamPCM48k(ctxTTS, text)
	var streamErr error
	openPCM, openErr := true, true
	for openPCM || openErr {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				openPCM = false
				continue
			}
			if len(b) > 0 && ctxTTS.Err() == nil {
				u.sink.WritePCM(b)
			}
		case e, ok := <-errCh:
			if !ok {
				openErr = false
				continue
			}
			if e != nil && streamErr == nil {
				streamErr = e
			}
		case <-ctxTTS.Done():
			u.sink.Reset()
			return ctxTTS.Err()
		}
	}
	if ctxTTS.Err() != nil {
		u.sink.Reset()
		return ctxTTS.Err()
	}
	if streamErr != nil {
		return streamErr
	}
	u.sink.FlushTail()
	return nil
}

// Cancel aborts any in-progress utterance. Queued audio is dropped so the stop
// is audible immediately. Calling it while idle is a no-op.
func (u *Utterer) Cancel() {
	u.mu.Lock()
	cancel := u.cancel
	u.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	u.sink.Reset()
}

// Speaking reports whether an utterance is currently streaming.
func (u *Utterer) Speaking() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.speaking
}
