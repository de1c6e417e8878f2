package tts

import "context"

// TTS streams 48kHz PCM16LE mono audio for the given text. Both channels are
// closed when the stream ends; cancelling ctx aborts synthesis.
type TTS interface {
	StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}
