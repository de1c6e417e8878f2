package dialog

import (
	"context"
	"errors"
)

// SessionState is the lifecycle of one spoken Q/A session.
type SessionState string

const (
	StateInactive   SessionState = "INACTIVE"
	StateConnecting SessionState = "CONNECTING"
	StateActive     SessionState = "ACTIVE"
	StateFinished   SessionState = "FINISHED"
)

// Question is one item of the fixed, ordered question list. Key is an optional
// grouping tag (e.g. "techstack") and is not spoken.
type Question struct {
	Key  string `json:"key,omitempty"`
	Text string `json:"text"`
}

// AnswerStatus marks how a turn resolved.
type AnswerStatus string

const (
	StatusAnswered    AnswerStatus = "answered"
	StatusNotAnswered AnswerStatus = "not_answered"
)

// AnswerRecord is the immutable outcome of one turn. Answer is nil when the
// respondent did not answer before the timeout.
type AnswerRecord struct {
	Question string       `json:"question"`
	Answer   *string      `json:"answer"`
	Status   AnswerStatus `json:"status"`
}

// Segment is one transcript increment from the capture stream, in arrival
// order. Partial segments exist for live captions only; the accumulator
// buffers finals exclusively.
type Segment struct {
	Text  string
	Final bool
}

// Speaker plays a single utterance to completion. Speak blocks until audio is
// fully delivered or ctx is cancelled; Cancel aborts mid-utterance and
// guarantees no late completion afterwards. Implementations reject a second
// concurrent Speak.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Cancel()
}

// Capturer is the minimal interface for a streaming recognizer. Start opens a
// listening window and Stop closes it; after Stop no further segment may be
// delivered for that window even if the provider produces one late. Failures
// surface on Errors, wrapped in ErrCapabilityUnavailable when non-recoverable.
type Capturer interface {
	Start() error
	Stop() error
	Segments() <-chan Segment
	Errors() <-chan error
}

// EventType identifies a session lifecycle event delivered to the embedding
// layer (UI indicators, transports).
type EventType string

const (
	EventSpeakingStarted  EventType = "SPEAKING_STARTED"
	EventSpeakingEnded    EventType = "SPEAKING_ENDED"
	EventListeningStarted EventType = "LISTENING_STARTED"
	EventListeningEnded   EventType = "LISTENING_ENDED"
	EventTurnResolved     EventType = "TURN_RESOLVED"
	EventSessionFinished  EventType = "SESSION_FINISHED"
)

// Event is one session lifecycle notification. Ledger is populated only on
// SESSION_FINISHED and carries the full snapshot for the persistence layer.
type Event struct {
	Type     EventType      `json:"type"`
	Index    int            `json:"index"`
	Question string         `json:"question,omitempty"`
	Record   *AnswerRecord  `json:"record,omitempty"`
	Ledger   []AnswerRecord `json:"ledger,omitempty"`
	Err      string         `json:"error,omitempty"`
}

var (
	// ErrSessionActive is returned by Start while a session is connecting or running.
	ErrSessionActive = errors.New("dialog: session already active")
	// ErrNoQuestions is returned by Start for an empty question list.
	ErrNoQuestions = errors.New("dialog: empty question list")
	// ErrCapabilityUnavailable wraps speech output/capture failures that cannot
	// recover within the session (unsupported capability, refused connection).
	ErrCapabilityUnavailable = errors.New("speech capability unavailable")
)
