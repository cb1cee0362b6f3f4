package models

import "time"

type Topic struct {
	ID          string
	SessionID   string
	Title       string
	Description string
	Keywords    []string
	Difficulty  string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TopicMatch struct {
	TopicID    string  `json:"topic_id"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
}

type QAPair struct {
	ID             string
	TopicID        string
	Question       string
	Answer         string
	Explanation    string
	Embedding      []float32
	EmbeddingModel string
	TimesAsked     int
	TimesMatched   int
	Rating         float64
	Active         bool
	CreatedAt      time.Time
}

type KnowledgeBaseEntry struct {
	TopicID            string
	Summary            string
	KeyConcepts        []string
	LearningObjectives []string
	Examples           []string
	QualityScore       float64
	UpdatedAt          time.Time
}

type CacheEntry struct {
	Key            string
	Value          []byte
	EmbeddingModel string
	ExpiresAt      time.Time
	HitCount       int
	CreatedAt      time.Time
}

type QAUsageRecord struct {
	ID        int
	QAID      string
	SessionID string
	Query     string
	Similarity float64
	Direct    bool
	CreatedAt time.Time
}
