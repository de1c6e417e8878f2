package transcript

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JanhaviSolankiNZ/ai-interview-platform/internal/dialog"
)

// AssemblyAI streaming transcription service. One WebSocket session is shared
// across the whole dialog; Start/Stop open and close the listening window so
// segments captured outside a turn never reach the orchestrator.
type AssemblyAIService struct {
	apiKey   string
	segments chan dialog.Segment
	errs     chan error
	audio    chan []byte
	stopCh   chan struct{}

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	listening bool
}

// AssemblyAI message types
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type          string `json:"type"`
	Transcript    string `json:"transcript"`
	EndOfTurn     bool   `json:"end_of_turn"`
	TurnFormatted bool   `json:"turn_is_formatted"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewAssemblyAIService creates a new transcription service. The connection is
// established lazily on the first Start.
func NewAssemblyAIService(apiKey string) *AssemblyAIService {
	return &AssemblyAIService{
		apiKey:   apiKey,
		segments: make(chan dialog.Segment, 100),
		errs:     make(chan error, 10),
		audio:    make(chan []byte, 1000),
		stopCh:   make(chan struct{}),
	}
}

// Segments returns the stream of transcript hypotheses. Only segments observed
// while the listening window is open are delivered.
func (s *AssemblyAIService) Segments() <-chan dialog.Segment { return s.segments }

// Errors returns the capture error stream. Errors wrapping
// dialog.ErrCapabilityUnavailable mean the service cannot transcribe at all.
func (s *AssemblyAIService) Errors() <-chan error { return s.errs }

// Start opens the listening window, connecting to AssemblyAI if needed.
func (s *AssemblyAIService) Start() error {
	if err := s.connect(); err != nil {
		return err
	}
	s.mu.Lock()
	s.listening = true
	s.mu.Unlock()
	return nil
}

// Stop closes the listening window. The WebSocket session stays up so the next
// turn starts without a reconnect; late segments from the server are dropped
// here rather than leaking into the next turn.
func (s *AssemblyAIService) Stop() error {
	s.mu.Lock()
	s.listening = false
	s.mu.Unlock()
	return nil
}

// connect establishes the WebSocket session to AssemblyAI.
func (s *AssemblyAIService) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("%w: AssemblyAI API key is empty", dialog.ErrCapabilityUnavailable)
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")

	wsURL := fmt.Sprintf("wss://streaming.assemblyai.com/v3/ws?%s", params.Encode())

	headers := map[string][]string{
		"Authorization": {s.apiKey},
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	log.Printf("connecting to AssemblyAI at: %s", wsURL)
	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("AssemblyAI connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("%w: connect to AssemblyAI: %v", dialog.ErrCapabilityUnavailable, err)
	}

	s.conn = conn
	s.connected = true

	go s.handleMessages()
	go s.sendAudioData()

	log.Println("connected to AssemblyAI streaming service")
	return nil
}

// SendPCM16KLE queues 16kHz PCM16LE mono audio for transcription.
func (s *AssemblyAIService) SendPCM16KLE(pcm []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to AssemblyAI")
	}
	select {
	case s.audio <- pcm:
		return nil
	default:
		log.Println("audio buffer full, dropping packet")
		return nil
	}
}

// Close terminates the session and cleans up resources.
func (s *AssemblyAIService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	close(s.stopCh)
	if s.conn != nil {
		terminateMsg := map[string]string{"type": "Terminate"}
		_ = s.conn.WriteJSON(terminateMsg)
		_ = s.conn.Close()
	}
	s.connected = false
	s.listening = false
	s.conn = nil
	close(s.audio)
	close(s.segments)
	close(s.errs)
	log.Println("AssemblyAI connection closed")
	return nil
}

// handleMessages processes incoming WebSocket messages.
func (s *AssemblyAIService) handleMessages() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("recovered from panic in handleMessages: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-s.stopCh:
				default:
					log.Printf("error reading message: %v", err)
					s.pushErr(fmt.Errorf("assemblyai read: %w", err))
				}
				return
			}
			s.processMessage(message)
		}
	}
}

// processMessage handles different message types from AssemblyAI.
func (s *AssemblyAIService) processMessage(message []byte) {
	var baseMsg map[string]interface{}
	if err := json.Unmarshal(message, &baseMsg); err != nil {
		log.Printf("error unmarshaling message: %v", err)
		return
	}
	msgType, ok := baseMsg["type"].(string)
	if !ok {
		log.Printf("message missing type field")
		return
	}
	switch msgType {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("error unmarshaling Begin message: %v", err)
			return
		}
		expires := time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339)
		log.Printf("AssemblyAI session began: ID=%s, ExpiresAt=%s", msg.ID, expires)
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("error unmarshaling Turn message: %v", err)
			return
		}
		if msg.Transcript == "" {
			return
		}
		s.pushSegment(dialog.Segment{Text: msg.Transcript, Final: msg.EndOfTurn})
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("error unmarshaling Termination message: %v", err)
			return
		}
		log.Printf("AssemblyAI session terminated: AudioDuration=%.2fs, SessionDuration=%.2fs", msg.AudioDurationSeconds, msg.SessionDurationSeconds)
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("error unmarshaling Error message: %v", err)
			return
		}
		log.Printf("AssemblyAI error: %s", msg.Error)
		s.pushErr(fmt.Errorf("assemblyai: %s", msg.Error))
	default:
		log.Printf("unknown message type: %s", msgType)
	}
}

// pushSegment delivers a hypothesis while the listening window is open. The
// lock is held across the enqueue so a Stop cannot slip between the check and
// the send; the send itself never blocks.
func (s *AssemblyAIService) pushSegment(seg dialog.Segment) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.listening {
		return
	}
	select {
	case s.segments <- seg:
	default:
		log.Println("segment buffer full, dropping hypothesis")
	}
}

func (s *AssemblyAIService) pushErr(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// sendAudioData sends queued audio data to AssemblyAI.
func (s *AssemblyAIService) sendAudioData() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("recovered from panic in sendAudioData: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case audioData, ok := <-s.audio:
			if !ok {
				return
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.BinaryMessage, audioData); err != nil {
					log.Printf("error sending audio data: %v", err)
					return
				}
			}
		}
	}
}
