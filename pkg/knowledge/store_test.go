package knowledge

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstack/ragserve/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "knowledge.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreAddAndGet(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Add(domain.QAInteraction{
		Question: "What is the chunk overlap?",
		Answer:   "200 characters by default.",
		TopScore: 0.91,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	in, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "What is the chunk overlap?", in.Question)
	assert.False(t, in.CreatedAt.IsZero())
	assert.Equal(t, 1, s.Count())
}

func TestStoreFeedback(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Add(domain.QAInteraction{Question: "q", Answer: "a"})
	require.NoError(t, err)

	require.NoError(t, s.Feedback(id, 1))
	in, _ := s.Get(id)
	require.NotNil(t, in.Feedback)
	assert.Equal(t, 1, *in.Feedback)

	err = s.Feedback(id, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = s.Feedback("missing", 1)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestStoreReplayAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.jsonl")

	s, err := NewStore(path)
	require.NoError(t, err)
	id, err := s.Add(domain.QAInteraction{Question: "how do chunks overlap", Answer: "by 200 chars"})
	require.NoError(t, err)
	require.NoError(t, s.Feedback(id, -1))
	require.NoError(t, s.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	in, ok := reopened.Get(id)
	require.True(t, ok)
	require.NotNil(t, in.Feedback)
	assert.Equal(t, -1, *in.Feedback)
}

func TestFindSimilarRanksByOverlap(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Add(domain.QAInteraction{Question: "how does vector search work", Answer: "a1"})
	require.NoError(t, err)
	_, err = s.Add(domain.QAInteraction{Question: "how does chunking work", Answer: "a2"})
	require.NoError(t, err)
	_, err = s.Add(domain.QAInteraction{Question: "what color is the sky", Answer: "a3"})
	require.NoError(t, err)

	results := s.FindSimilar("how does vector search rank results", 2)
	require.NotEmpty(t, results)
	assert.Equal(t, "how does vector search work", results[0].Question)
	assert.LessOrEqual(t, len(results), 2)
}

func TestFindSimilarSkipsNegativeFeedback(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Add(domain.QAInteraction{Question: "how does vector search work", Answer: "bad answer"})
	require.NoError(t, err)
	require.NoError(t, s.Feedback(id, -1))

	results := s.FindSimilar("how does vector search work", 3)
	assert.Empty(t, results)
}

func TestFindSimilarRecencyTieBreak(t *testing.T) {
	s := newTestStore(t)

	older := domain.QAInteraction{
		Question:  "identical question",
		Answer:    "old",
		CreatedAt: time.Now().Add(-time.Hour),
	}
	newer := domain.QAInteraction{
		Question:  "identical question",
		Answer:    "new",
		CreatedAt: time.Now(),
	}
	_, err := s.Add(older)
	require.NoError(t, err)
	_, err = s.Add(newer)
	require.NoError(t, err)

	results := s.FindSimilar("identical question", 1)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Answer)
}
