package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutor-agent/backend/internal/storage/models"
)

func testClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.InitSchema())
	return c
}

func insertTopic(t *testing.T, c *Client, id, sessionID, title, keywordsJSON string, active int) {
	t.Helper()
	_, err := c.db.Exec(
		`INSERT INTO topics (id, session_id, title, description, keywords, difficulty, active, created_at, updated_at)
		 VALUES (?, ?, ?, '', ?, 'intro', ?, 0, 0)`,
		id, sessionID, title, keywordsJSON, active)
	require.NoError(t, err)
}

func insertQAPair(t *testing.T, c *Client, id, topicID, question, embeddingJSON, model string, timesAsked int, rating float64) {
	t.Helper()
	_, err := c.db.Exec(
		`INSERT INTO qa_pairs (id, topic_id, question, answer, embedding, embedding_model, times_asked, rating, active, created_at)
		 VALUES (?, ?, ?, 'answer', ?, ?, ?, ?, 1, 0)`,
		id, topicID, question, embeddingJSON, model, timesAsked, rating)
	require.NoError(t, err)
}

func TestSessionTopics(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTopic(t, c, "t1", "sess-1", "Sorting", `["quicksort","mergesort"]`, 1)
	insertTopic(t, c, "t2", "sess-1", "Inactive", `[]`, 0)
	insertTopic(t, c, "t3", "sess-2", "Other Session", `[]`, 1)

	topics, err := c.SessionTopics(ctx, "sess-1")
	require.NoError(t, err)

	require.Len(t, topics, 1)
	assert.Equal(t, "t1", topics[0].ID)
	assert.Equal(t, []string{"quicksort", "mergesort"}, topics[0].Keywords)
	assert.True(t, topics[0].Active)
}

func TestActiveQAPairsOrderingAndLimit(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTopic(t, c, "t1", "sess-1", "Sorting", `[]`, 1)
	insertQAPair(t, c, "popular", "t1", "q1", "", "other-model", 100, 5)
	insertQAPair(t, c, "matching-model", "t1", "q2", `[0.1,0.2]`, "m1", 1, 1)
	insertQAPair(t, c, "quiet", "t1", "q3", "", "other-model", 2, 2)

	pairs, err := c.ActiveQAPairs(ctx, []string{"t1"}, "m1", 10)
	require.NoError(t, err)

	require.Len(t, pairs, 3)
	// Matching embedding model sorts ahead of higher popularity.
	assert.Equal(t, "matching-model", pairs[0].ID)
	assert.Equal(t, []float32{0.1, 0.2}, pairs[0].Embedding)
	assert.Equal(t, "popular", pairs[1].ID)

	limited, err := c.ActiveQAPairs(ctx, []string{"t1"}, "m1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestActiveQAPairsCorruptEmbedding(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTopic(t, c, "t1", "sess-1", "Sorting", `[]`, 1)
	insertQAPair(t, c, "qa1", "t1", "q1", "{broken", "m1", 0, 0)

	pairs, err := c.ActiveQAPairs(ctx, []string{"t1"}, "m1", 10)
	require.NoError(t, err)

	require.Len(t, pairs, 1)
	assert.Nil(t, pairs[0].Embedding, "unparseable embedding is discarded, not fatal")
}

func TestActiveQAPairsEmptyTopics(t *testing.T) {
	c := testClient(t)

	pairs, err := c.ActiveQAPairs(context.Background(), nil, "m1", 10)
	require.NoError(t, err)
	assert.Nil(t, pairs)
}

func TestKnowledgeBaseEntry(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTopic(t, c, "t1", "sess-1", "Sorting", `[]`, 1)
	_, err := c.db.Exec(
		`INSERT INTO kb_entries (topic_id, summary, key_concepts, quality_score, updated_at)
		 VALUES ('t1', 'sorting overview', '["partitioning","recursion"]', 0.9, 0)`)
	require.NoError(t, err)

	entry, err := c.KnowledgeBaseEntry(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "sorting overview", entry.Summary)
	assert.Equal(t, []string{"partitioning", "recursion"}, entry.KeyConcepts)

	missing, err := c.KnowledgeBaseEntry(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing, "missing entry is not an error")
}

func TestIncrementQAMatchedAndUsage(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	insertTopic(t, c, "t1", "sess-1", "Sorting", `[]`, 1)
	insertQAPair(t, c, "qa1", "t1", "q1", "", "m1", 0, 0)

	require.NoError(t, c.IncrementQAMatched(ctx, "qa1"))
	require.NoError(t, c.IncrementQAMatched(ctx, "qa1"))

	pairs, err := c.ActiveQAPairs(ctx, []string{"t1"}, "m1", 10)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, 2, pairs[0].TimesMatched)

	require.NoError(t, c.InsertQAUsage(ctx, &models.QAUsageRecord{
		QAID:       "qa1",
		SessionID:  "sess-1",
		Query:      "how does sorting work",
		Similarity: 0.92,
		Direct:     true,
	}))

	var count int
	require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM qa_usage WHERE qa_id = 'qa1'`).Scan(&count))
	assert.Equal(t, 1, count)
}
