package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/JanhaviSolankiNZ/ai-interview-platform/internal/dialog"
	"github.com/JanhaviSolankiNZ/ai-interview-platform/internal/speech"
	"github.com/JanhaviSolankiNZ/ai-interview-platform/internal/transcript"
	"github.com/JanhaviSolankiNZ/ai-interview-platform/internal/tts"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production
		return true
	},
}

// wsClientMessage is a control frame from the client. Binary frames carry
// 16kHz PCM16LE mic audio and never reach this decoder.
type wsClientMessage struct {
	Type        string   `json:"type"` // "start", "end"
	InterviewID string   `json:"interviewId,omitempty"`
	Questions   []string `json:"questions,omitempty"`
}

type wsErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// interview upgrades to WebSocket and runs one spoken session over it: JSON
// control frames up, mic PCM up, session events + question audio down.
func (s *Server) interview(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return nil
	}

	sess := newWSSession(s, conn)
	defer sess.close()
	sess.readLoop()
	return nil
}

type wsSession struct {
	srv     *Server
	conn    *websocket.Conn
	writeMu sync.Mutex

	capturer *transcript.AssemblyAIService
	sink     *wsSink
	orch     *dialog.Orchestrator

	mu          sync.Mutex
	interviewID string
	endOnce     sync.Once
	closed      bool
}

func newWSSession(srv *Server, conn *websocket.Conn) *wsSession {
	sess := &wsSession{srv: srv, conn: conn}
	sess.capturer = transcript.NewAssemblyAIService(srv.cfg.AssemblyAIKey)
	sess.sink = newWSSink(conn, &sess.writeMu)

	var synth tts.TTS
	switch {
	case srv.cfg.DeepgramKey != "":
		synth = tts.NewDeepgramSynth(srv.cfg.DeepgramKey, srv.cfg.DeepgramVoice)
	case srv.cfg.ElevenLabsKey != "":
		synth = tts.NewElevenLabsSynth(srv.cfg.ElevenLabsKey, srv.cfg.ElevenLabsVoiceID)
	default:
		synth = unavailableTTS{}
	}
	speaker := speech.NewUtterer(synth, sess.sink)

	sess.orch = dialog.New(speaker, sess.capturer, dialog.Options{
		ConnectDelay:    srv.cfg.ConnectDelay,
		NoAnswerTimeout: srv.cfg.NoAnswerTimeout,
		SilenceDebounce: srv.cfg.SilenceDebounce,
	})
	return sess
}

func (w *wsSession) readLoop() {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			if err := w.capturer.SendPCM16KLE(data); err != nil {
				// mic audio before the session starts is expected noise
				continue
			}
		case websocket.TextMessage:
			w.handleControl(data)
		}
	}
}

func (w *wsSession) handleControl(data []byte) {
	var msg wsClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		w.writeError(fmt.Errorf("invalid control frame: %w", err))
		return
	}
	switch msg.Type {
	case "start":
		if len(msg.Questions) == 0 {
			w.writeError(fmt.Errorf("start requires a question list"))
			return
		}
		w.mu.Lock()
		w.interviewID = msg.InterviewID
		w.mu.Unlock()
		qs := make([]dialog.Question, 0, len(msg.Questions))
		for _, q := range msg.Questions {
			qs = append(qs, dialog.Question{Text: q})
		}
		if err := w.orch.Start(qs, w.onEvent); err != nil {
			w.writeError(err)
		}
	case "end":
		// End blocks until the session is fully quiesced; keep the read loop
		// responsive meanwhile
		go w.orch.End()
	default:
		w.writeError(fmt.Errorf("unknown control type %q", msg.Type))
	}
}

// onEvent runs on the session goroutine; it must stay quick and must not call
// End.
func (w *wsSession) onEvent(ev dialog.Event) {
	w.writeJSON(ev)
	if ev.Type != dialog.EventSessionFinished {
		return
	}
	w.mu.Lock()
	id := w.interviewID
	w.mu.Unlock()
	if w.srv.store == nil || id == "" || len(ev.Ledger) == 0 {
		return
	}
	ledger := ev.Ledger
	go func() {
		if err := w.srv.store.SaveResults(id, ledger); err != nil {
			log.Printf("ws: persist results failed: %v", err)
		}
	}()
}

func (w *wsSession) writeJSON(v interface{}) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteJSON(v); err != nil {
		log.Printf("ws write error: %v", err)
	}
}

func (w *wsSession) writeError(err error) {
	w.writeJSON(wsErrorMessage{Type: "error", Error: err.Error()})
}

func (w *wsSession) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.endOnce.Do(func() { w.orch.End() })
	w.sink.Close()
	_ = w.capturer.Close()
	_ = w.conn.Close()
}

// unavailableTTS stands in when no synthesis key is configured, so a started
// session fails fast with a capability error instead of hanging.
type unavailableTTS struct{}

func (unavailableTTS) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcm := make(chan []byte)
	errc := make(chan error, 1)
	errc <- fmt.Errorf("%w: no TTS provider configured", dialog.ErrCapabilityUnavailable)
	close(pcm)
	close(errc)
	return pcm, errc
}

// wsSinkFrameBytes is 20ms of 48kHz PCM16 mono.
const wsSinkFrameBytes = 960 * 2

// wsSink delivers question audio to the client as paced 20ms binary frames, so
// cancellation (Reset) can drop queued audio before it is heard.
type wsSink struct {
	conn    *websocket.Conn
	writeMu *sync.Mutex

	mu      sync.Mutex
	buf     []byte
	frames  chan []byte
	stopCh  chan struct{}
	stopped bool
}

func newWSSink(conn *websocket.Conn, writeMu *sync.Mutex) *wsSink {
	w := &wsSink{
		conn:    conn,
		writeMu: writeMu,
		frames:  make(chan []byte, 512),
		stopCh:  make(chan struct{}),
	}
	go w.pacer()
	return w
}

// WritePCM buffers PCM and emits full 20ms frames to the pacer.
func (w *wsSink) WritePCM(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	w.mu.Lock()
	w.buf = append(w.buf, pcm...)
	var ready [][]byte
	for len(w.buf) >= wsSinkFrameBytes {
		frame := make([]byte, wsSinkFrameBytes)
		copy(frame, w.buf[:wsSinkFrameBytes])
		w.buf = w.buf[wsSinkFrameBytes:]
		ready = append(ready, frame)
	}
	w.mu.Unlock()
	for _, frame := range ready {
		w.pushFrame(frame)
	}
}

// FlushTail pads the remainder to a full frame and appends a short silence
// tail to avoid clipping the last word.
func (w *wsSink) FlushTail() {
	w.mu.Lock()
	var tail []byte
	if len(w.buf) > 0 {
		tail = make([]byte, wsSinkFrameBytes)
		copy(tail, w.buf)
		w.buf = w.buf[:0]
	}
	w.mu.Unlock()
	if tail != nil {
		w.pushFrame(tail)
	}
	silence := make([]byte, wsSinkFrameBytes)
	for i := 0; i < 5; i++ {
		w.pushFrame(silence)
	}
}

// Reset clears queued frames and buffered PCM so a cancel is audible
// immediately.
func (w *wsSink) Reset() {
	w.mu.Lock()
	w.buf = w.buf[:0]
	w.mu.Unlock()
	for {
		select {
		case <-w.frames:
		default:
			return
		}
	}
}

// Close stops the pacer.
func (w *wsSink) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
}

func (w *wsSink) pacer() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				w.writeMu.Lock()
				err := w.conn.WriteMessage(websocket.BinaryMessage, frame)
				w.writeMu.Unlock()
				if err != nil {
					return
				}
			default:
			}
		}
	}
}

// pushFrame enqueues a frame, blocking until space is available or stopped.
func (w *wsSink) pushFrame(frame []byte) {
	select {
	case <-w.stopCh:
	case w.frames <- frame:
	}
}
