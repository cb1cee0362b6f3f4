package retrieval

import (
	"github.com/tutor-agent/backend/internal/storage/models"
)

// Query is one student question plus the per-request retrieval knobs.
type Query struct {
	Text             string
	SessionID        string
	TopK             int
	UseKnowledgeBase bool
	UseQAPairs       bool
	EmbeddingModel   string
}

// Chunk is a vector-searched text slice after keyword re-scoring. The boost
// and penalty terms are kept separate for inspection; FinalScore is always
// clamped to [0, 1].
type Chunk struct {
	ChunkID         string            `json:"chunk_id"`
	Content         string            `json:"content"`
	Title           string            `json:"title"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	BaseScore       float64           `json:"base_score"`
	TitleBoost      float64           `json:"title_boost"`
	ContentBoost    float64           `json:"content_boost"`
	NegativePenalty float64           `json:"negative_penalty"`
	FinalScore      float64           `json:"final_score"`
}

// QAMatch pairs a prior QA record with its similarity to the current query.
// Matchers only emit similarities above the configured floor.
type QAMatch struct {
	Pair       models.QAPair `json:"-"`
	QAID       string        `json:"qa_id"`
	TopicID    string        `json:"topic_id"`
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	Similarity float64       `json:"similarity_score"`
}

// KBResult carries a curated topic summary; RelevanceScore is the propagated
// topic-classification confidence, never recomputed.
type KBResult struct {
	Entry          models.KnowledgeBaseEntry `json:"entry"`
	RelevanceScore float64                   `json:"relevance_score"`
}

const (
	SourceChunk = "chunk"
	SourceKB    = "kb"
	SourceQA    = "qa"
)

// MergedResult is one fused candidate. EvaluatorScore is set only after the
// quality gate has scored the candidate.
type MergedResult struct {
	Content        string            `json:"content"`
	Source         string            `json:"source"`
	OriginalScore  float64           `json:"original_score"`
	FinalScore     float64           `json:"final_score"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	EvaluatorScore *float64          `json:"evaluator_score,omitempty"`
}

// Classification is the cached unit of topic-classification work.
type Classification struct {
	MatchedTopics []models.TopicMatch `json:"matched_topics"`
	Confidence    float64             `json:"confidence"`
	Method        string              `json:"method"`
}

// Result is the full answer of RetrieveForQuery.
type Result struct {
	MatchedTopics            []models.TopicMatch    `json:"matched_topics"`
	ClassificationConfidence float64                `json:"classification_confidence"`
	Chunks                   []Chunk                `json:"chunks"`
	KnowledgeBase            []KBResult             `json:"knowledge_base"`
	QAPairs                  []QAMatch              `json:"qa_pairs"`
	Merged                   []MergedResult         `json:"merged"`
	Metadata                 map[string]interface{} `json:"metadata"`
}
