package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// NotAnswered is returned when whisper produced no usable text from the clip.
const NotAnswered = "not_answered"

// Whisper transcribes uploaded WAV clips by shelling out to the whisper CLI.
// This is the batch path for recorded answers; live capture goes through the
// AssemblyAI stream instead.
type Whisper struct {
	Bin      string
	Model    string
	Language string
	TempDir  string
}

func NewWhisper() *Whisper {
	return &Whisper{Bin: "whisper", Model: "small", Language: "en"}
}

// TranscribeWAV writes the clip to a temp file, runs whisper on it, and
// returns the transcript text. An empty transcript maps to NotAnswered.
func (w *Whisper) TranscribeWAV(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 {
		return "", fmt.Errorf("transcribe: empty audio payload")
	}

	dir := w.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "answer-*.wav")
	if err != nil {
		return "", fmt.Errorf("transcribe: temp file: %w", err)
	}
	tempPath := f.Name()
	defer os.Remove(tempPath)
	if _, err := f.Write(wav); err != nil {
		f.Close()
		return "", fmt.Errorf("transcribe: write clip: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close clip: %w", err)
	}

	args := []string{
		tempPath,
		"--model", w.Model,
		"--language", w.Language,
		"--output_format", "txt",
		"--output_dir", filepath.Dir(tempPath),
	}
	cmd := exec.CommandContext(ctx, w.Bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("transcribe: whisper run: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	// whisper also drops a .txt next to the input; clean it up
	os.Remove(strings.TrimSuffix(tempPath, ".wav") + ".txt")

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		log.Printf("whisper produced no text for %s", filepath.Base(tempPath))
		return NotAnswered, nil
	}
	return text, nil
}
