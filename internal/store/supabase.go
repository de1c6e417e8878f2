package store

import (
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/JanhaviSolankiNZ/ai-interview-platform/internal/dialog"
)

type Config struct {
	URL            string
	ServiceRoleKey string
}

// Interview is the persisted definition of a generated interview.
type Interview struct {
	ID        string   `json:"id,omitempty"`
	UserID    string   `json:"user_id"`
	Role      string   `json:"role"`
	Level     string   `json:"level"`
	Type      string   `json:"type"`
	TechStack []string `json:"techstack"`
	Questions []string `json:"questions"`
	Finalized bool     `json:"finalized"`
	CreatedAt string   `json:"created_at"`
}

// Result is one ledger row persisted after a session finishes.
type Result struct {
	InterviewID string  `json:"interview_id"`
	Position    int     `json:"position"`
	Question    string  `json:"question"`
	Answer      *string `json:"answer"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
}

// Store persists interviews and session results in Supabase.
type Store struct {
	client *supabase.Client
}

func New(config Config) (*Store, error) {
	client, err := supabase.NewClient(config.URL, config.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Store{client: client}, nil
}

// SaveInterview inserts the interview and returns it with the generated ID.
func (s *Store) SaveInterview(iv Interview) (Interview, error) {
	if iv.CreatedAt == "" {
		iv.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	var rows []Interview
	_, err := s.client.From("interviews").
		Insert(iv, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return Interview{}, fmt.Errorf("insert interview: %w", err)
	}
	if len(rows) > 0 {
		return rows[0], nil
	}
	return iv, nil
}

// SaveResults writes the full answer ledger of a finished session.
func (s *Store) SaveResults(interviewID string, records []dialog.AnswerRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	rows := make([]Result, 0, len(records))
	for i, rec := range records {
		rows = append(rows, Result{
			InterviewID: interviewID,
			Position:    i,
			Question:    rec.Question,
			Answer:      rec.Answer,
			Status:      string(rec.Status),
			CreatedAt:   now,
		})
	}
	_, _, err := s.client.From("interview_results").
		Insert(rows, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("insert interview results: %w", err)
	}
	return nil
}
