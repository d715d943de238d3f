// Package knowledge accumulates past question/answer interactions for
// prompt few-shot learning and memoizes generated answers.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragstack/ragserve/pkg/domain"
)

const (
	recordInteraction = "interaction"
	recordFeedback    = "feedback"
)

// storeRecord is one JSONL line. Interaction lines carry the full record;
// feedback lines patch an earlier interaction and are replayed on load.
type storeRecord struct {
	Type        string               `json:"type"`
	Interaction *domain.QAInteraction `json:"interaction,omitempty"`
	ID          string               `json:"id,omitempty"`
	Feedback    int                  `json:"feedback,omitempty"`
}

// Store is the append-only interaction log. All reads are served from
// memory; the file exists to survive restarts.
type Store struct {
	mu   sync.RWMutex
	path string
	file *os.File

	interactions map[string]*domain.QAInteraction
	order        []string // insertion order, oldest first
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: knowledge store path not configured", domain.ErrConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create knowledge dir: %v", domain.ErrIO, err)
	}

	s := &Store{
		path:         path,
		interactions: make(map[string]*domain.QAInteraction),
	}
	if err := s.replay(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open knowledge store: %v", domain.ErrIO, err)
	}
	s.file = file
	return s, nil
}

// replay loads the log, applying feedback lines over their interactions.
// Unparseable lines are skipped rather than failing startup.
func (s *Store) replay() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read knowledge store: %v", domain.ErrIO, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec storeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		switch rec.Type {
		case recordInteraction:
			if rec.Interaction == nil || rec.Interaction.ID == "" {
				continue
			}
			in := *rec.Interaction
			if _, seen := s.interactions[in.ID]; !seen {
				s.order = append(s.order, in.ID)
			}
			s.interactions[in.ID] = &in
		case recordFeedback:
			if in, ok := s.interactions[rec.ID]; ok {
				feedback := rec.Feedback
				in.Feedback = &feedback
			}
		}
	}
	return nil
}

func (s *Store) appendRecord(rec storeRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal knowledge record: %v", domain.ErrJSON, err)
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: append knowledge record: %v", domain.ErrIO, err)
	}
	return nil
}

// Add records an interaction and returns its ID.
func (s *Store) Add(interaction domain.QAInteraction) (string, error) {
	if interaction.ID == "" {
		interaction.ID = uuid.New().String()
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendRecord(storeRecord{Type: recordInteraction, Interaction: &interaction}); err != nil {
		return "", err
	}
	if _, seen := s.interactions[interaction.ID]; !seen {
		s.order = append(s.order, interaction.ID)
	}
	s.interactions[interaction.ID] = &interaction
	return interaction.ID, nil
}

// Feedback attaches a rating (+1 or -1) to an interaction.
func (s *Store) Feedback(id string, value int) error {
	if value != 1 && value != -1 {
		return fmt.Errorf("%w: feedback must be 1 or -1, got %d", domain.ErrInvalidInput, value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.interactions[id]
	if !ok {
		return fmt.Errorf("%w: interaction %s", domain.ErrDocumentNotFound, id)
	}
	if err := s.appendRecord(storeRecord{Type: recordFeedback, ID: id, Feedback: value}); err != nil {
		return err
	}
	in.Feedback = &value
	return nil
}

func (s *Store) Get(id string) (domain.QAInteraction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.interactions[id]
	if !ok {
		return domain.QAInteraction{}, false
	}
	return *in, true
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.interactions)
}

// FindSimilar returns up to n past interactions whose questions share
// tokens with the query, ranked by Jaccard similarity with recency as the
// tie-break. Negatively rated interactions are never returned.
func (s *Store) FindSimilar(question string, n int) []domain.QAInteraction {
	if n <= 0 {
		return nil
	}
	queryTokens := tokenSet(question)
	if len(queryTokens) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		interaction domain.QAInteraction
		score       float64
	}
	var candidates []scored
	for _, id := range s.order {
		in := s.interactions[id]
		if in.Feedback != nil && *in.Feedback < 0 {
			continue
		}
		score := jaccard(queryTokens, tokenSet(in.Question))
		if score > 0 {
			candidates = append(candidates, scored{interaction: *in, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].interaction.CreatedAt.After(candidates[j].interaction.CreatedAt)
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	results := make([]domain.QAInteraction, len(candidates))
	for i, c := range candidates {
		results[i] = c.interaction
	}
	return results
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]")
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
