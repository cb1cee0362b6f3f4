package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/storage/models"
	"github.com/tutor-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		keywords TEXT,
		difficulty TEXT,
		active INTEGER DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_topics_session ON topics(session_id);
	CREATE INDEX IF NOT EXISTS idx_topics_active ON topics(active);

	CREATE TABLE IF NOT EXISTS qa_pairs (
		id TEXT PRIMARY KEY,
		topic_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		explanation TEXT,
		embedding TEXT,
		embedding_model TEXT,
		times_asked INTEGER DEFAULT 0,
		times_matched INTEGER DEFAULT 0,
		rating REAL DEFAULT 0,
		active INTEGER DEFAULT 1,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (topic_id) REFERENCES topics(id)
	);
	CREATE INDEX IF NOT EXISTS idx_qa_topic ON qa_pairs(topic_id);
	CREATE INDEX IF NOT EXISTS idx_qa_popularity ON qa_pairs(times_asked, rating);

	CREATE TABLE IF NOT EXISTS kb_entries (
		topic_id TEXT PRIMARY KEY,
		summary TEXT NOT NULL,
		key_concepts TEXT,
		learning_objectives TEXT,
		examples TEXT,
		quality_score REAL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (topic_id) REFERENCES topics(id)
	);

	CREATE TABLE IF NOT EXISTS qa_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		qa_id TEXT NOT NULL,
		session_id TEXT,
		query TEXT,
		similarity REAL,
		direct INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_qa ON qa_usage(qa_id);
	CREATE INDEX IF NOT EXISTS idx_usage_created ON qa_usage(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) SessionTopics(ctx context.Context, sessionID string) ([]models.Topic, error) {
	query := `
		SELECT id, session_id, title, description, keywords, difficulty
		FROM topics
		WHERE session_id = ? AND active = 1
	`

	rows, err := c.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session topics: %w", err)
	}
	defer rows.Close()

	var topics []models.Topic
	for rows.Next() {
		var t models.Topic
		var keywordsJSON sql.NullString
		var description, difficulty sql.NullString

		err := rows.Scan(&t.ID, &t.SessionID, &t.Title, &description, &keywordsJSON, &difficulty)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		t.Description = description.String
		t.Difficulty = difficulty.String
		if keywordsJSON.Valid {
			json.Unmarshal([]byte(keywordsJSON.String), &t.Keywords)
		}
		t.Active = true
		topics = append(topics, t)
	}

	return topics, rows.Err()
}

// ActiveQAPairs returns up to limit active QA pairs for the given topics,
// most-asked and best-rated first. Pairs whose stored embedding matches the
// requested model sort ahead of the rest so the stored-embedding similarity
// tier sees them first.
func (c *Client) ActiveQAPairs(ctx context.Context, topicIDs []string, embeddingModel string, limit int) ([]models.QAPair, error) {
	if len(topicIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(topicIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		SELECT id, topic_id, question, answer, explanation, embedding, embedding_model,
			times_asked, times_matched, rating
		FROM qa_pairs
		WHERE topic_id IN (%s) AND active = 1
		ORDER BY (embedding_model = ?) DESC, times_asked DESC, rating DESC
		LIMIT ?
	`, placeholders)

	args := make([]interface{}, 0, len(topicIDs)+2)
	for _, id := range topicIDs {
		args = append(args, id)
	}
	args = append(args, embeddingModel, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get qa pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.QAPair
	for rows.Next() {
		var p models.QAPair
		var explanation, embeddingJSON, model sql.NullString

		err := rows.Scan(&p.ID, &p.TopicID, &p.Question, &p.Answer, &explanation,
			&embeddingJSON, &model, &p.TimesAsked, &p.TimesMatched, &p.Rating)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		p.Explanation = explanation.String
		p.EmbeddingModel = model.String
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &p.Embedding); err != nil {
				// Corrupt stored embedding: drop it and let the matcher
				// fall back to a later similarity tier.
				logger.Warn("Discarding unparseable stored embedding",
					zap.String("qa_id", p.ID), zap.Error(err))
				p.Embedding = nil
			}
		}
		p.Active = true
		pairs = append(pairs, p)
	}

	return pairs, rows.Err()
}

// KnowledgeBaseEntry returns the curated entry for a topic, or (nil, nil)
// when the topic has no entry.
func (c *Client) KnowledgeBaseEntry(ctx context.Context, topicID string) (*models.KnowledgeBaseEntry, error) {
	query := `
		SELECT topic_id, summary, key_concepts, learning_objectives, examples, quality_score
		FROM kb_entries WHERE topic_id = ?
	`

	var e models.KnowledgeBaseEntry
	var concepts, objectives, examples sql.NullString

	err := c.db.QueryRowContext(ctx, query, topicID).Scan(
		&e.TopicID, &e.Summary, &concepts, &objectives, &examples, &e.QualityScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kb entry: %w", err)
	}

	if concepts.Valid {
		json.Unmarshal([]byte(concepts.String), &e.KeyConcepts)
	}
	if objectives.Valid {
		json.Unmarshal([]byte(objectives.String), &e.LearningObjectives)
	}
	if examples.Valid {
		json.Unmarshal([]byte(examples.String), &e.Examples)
	}

	return &e, nil
}

func (c *Client) IncrementQAMatched(ctx context.Context, qaID string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE qa_pairs SET times_matched = times_matched + 1 WHERE id = ?`, qaID)
	if err != nil {
		return fmt.Errorf("failed to increment times_matched: %w", err)
	}
	return nil
}

func (c *Client) InsertQAUsage(ctx context.Context, rec *models.QAUsageRecord) error {
	direct := 0
	if rec.Direct {
		direct = 1
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO qa_usage (qa_id, session_id, query, similarity, direct, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.QAID, rec.SessionID, rec.Query, rec.Similarity, direct, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert qa usage: %w", err)
	}
	return nil
}
