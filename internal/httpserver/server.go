package httpserver

import (
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/JanhaviSolankiNZ/ai-interview-platform/internal/config"
	"github.com/JanhaviSolankiNZ/ai-interview-platform/internal/questions"
	"github.com/JanhaviSolankiNZ/ai-interview-platform/internal/store"
	"github.com/JanhaviSolankiNZ/ai-interview-platform/internal/transcribe"
)

// maxClipBytes bounds uploaded answer clips (2 minutes of 16kHz PCM WAV fits
// comfortably).
const maxClipBytes = 16 << 20

// Server bundles the echo router and its dependencies.
type Server struct {
	cfg     config.Config
	echo    *echo.Echo
	gen     questions.Generator
	whisper *transcribe.Whisper
	store   *store.Store
}

// New constructs the HTTP server with routes. Providers are selected from the
// configured keys; missing ones degrade to warnings, matching startup logging
// elsewhere.
func New(cfg config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{cfg: cfg, echo: e}

	switch {
	case cfg.CerebrasKey != "":
		s.gen = questions.NewCerebrasGenerator(cfg.CerebrasKey, cfg.CerebrasModelID)
	case cfg.GeminiKey != "":
		s.gen = questions.NewGeminiGenerator(cfg.GeminiKey, cfg.GeminiModelID)
	}

	w := transcribe.NewWhisper()
	w.Bin = cfg.WhisperBin
	w.Model = cfg.WhisperModel
	s.whisper = w

	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		st, err := store.New(store.Config{URL: cfg.SupabaseURL, ServiceRoleKey: cfg.SupabaseKey})
		if err != nil {
			log.Printf("httpserver: supabase disabled: %v", err)
		} else {
			s.store = st
		}
	}

	s.routes()
	return s
}

// WithGenerator overrides the question generator. Used by tests and for
// provider experiments.
func (s *Server) WithGenerator(g questions.Generator) *Server {
	s.gen = g
	return s
}

// Handler exposes the router for http.Server.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) routes() {
	s.echo.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	s.echo.POST("/api/generate", s.generate)
	s.echo.POST("/api/transcribe", s.transcribe)
	s.echo.GET("/api/interview", s.interview)
}

type generateRequest struct {
	Type      string `json:"type"`
	Role      string `json:"role"`
	Level     string `json:"level"`
	TechStack string `json:"techstack"`
	Amount    int    `json:"amount"`
	UserID    string `json:"userid"`
}

type generateResponse struct {
	Success     bool     `json:"success"`
	InterviewID string   `json:"interviewId,omitempty"`
	Questions   []string `json:"questions,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func (s *Server) generate(c echo.Context) error {
	if s.gen == nil {
		return c.JSON(http.StatusServiceUnavailable, generateResponse{Error: "no question generator configured"})
	}
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, generateResponse{Error: "invalid request body"})
	}
	if req.Role == "" {
		return c.JSON(http.StatusBadRequest, generateResponse{Error: "role is required"})
	}

	qs, err := s.gen.GenerateQuestions(c.Request().Context(), questions.Spec{
		Role:      req.Role,
		Level:     req.Level,
		Type:      req.Type,
		TechStack: req.TechStack,
		Amount:    req.Amount,
	})
	if err != nil {
		log.Printf("httpserver: generate failed: %v", err)
		return c.JSON(http.StatusInternalServerError, generateResponse{Error: "failed to generate interview"})
	}

	resp := generateResponse{Success: true, Questions: qs}
	if s.store != nil && req.UserID != "" {
		iv, err := s.store.SaveInterview(store.Interview{
			UserID:    req.UserID,
			Role:      req.Role,
			Level:     req.Level,
			Type:      req.Type,
			TechStack: splitTechStack(req.TechStack),
			Questions: qs,
			Finalized: true,
		})
		if err != nil {
			log.Printf("httpserver: save interview failed: %v", err)
		} else {
			resp.InterviewID = iv.ID
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func splitTechStack(raw string) []string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type transcribeResponse struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) transcribe(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, transcribeResponse{Error: "no file sent"})
	}
	if fh.Size > maxClipBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, transcribeResponse{Error: "clip too large"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, transcribeResponse{Error: "unreadable file"})
	}
	defer f.Close()
	wav, err := io.ReadAll(io.LimitReader(f, maxClipBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, transcribeResponse{Error: "unreadable file"})
	}

	text, err := s.whisper.TranscribeWAV(c.Request().Context(), wav)
	if err != nil {
		log.Printf("httpserver: transcribe failed: %v", err)
		return c.JSON(http.StatusInternalServerError, transcribeResponse{Error: "server error"})
	}
	return c.JSON(http.StatusOK, transcribeResponse{Text: text})
}
