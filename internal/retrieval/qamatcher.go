package retrieval

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/cache"
	"github.com/tutor-agent/backend/internal/storage/models"
	"github.com/tutor-agent/backend/pkg/config"
	"github.com/tutor-agent/backend/pkg/logger"
	"github.com/tutor-agent/backend/pkg/utils"
)

type QAStore interface {
	ActiveQAPairs(ctx context.Context, topicIDs []string, embeddingModel string, limit int) ([]models.QAPair, error)
	IncrementQAMatched(ctx context.Context, qaID string) error
	InsertQAUsage(ctx context.Context, rec *models.QAUsageRecord) error
}

type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash, model string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash, model string, embedding []float32, ttl time.Duration) error
}

// QAMatcher finds near-duplicate prior questions. Similarity is computed
// through ordered fallback tiers: stored embeddings, one batch embedding
// call, per-pair embedding, and finally lexical overlap. Each tier runs only
// when the previous one is inapplicable or fails, so an embedding outage
// degrades matching instead of aborting it.
type QAMatcher struct {
	store        QAStore
	embedder     Embedder
	embedCache   EmbeddingCache
	embedTTL     time.Duration
	cache        *cache.TypedCache[[]QAMatch]
	defaultModel string
	cfg          config.RetrievalConfig
}

func NewQAMatcher(store QAStore, embedder Embedder, embedCache EmbeddingCache, embedTTL time.Duration,
	c *cache.TypedCache[[]QAMatch], defaultModel string, cfg config.RetrievalConfig) *QAMatcher {
	return &QAMatcher{
		store:        store,
		embedder:     embedder,
		embedCache:   embedCache,
		embedTTL:     embedTTL,
		cache:        c,
		defaultModel: defaultModel,
		cfg:          cfg,
	}
}

func (m *QAMatcher) resolveModel(model string) string {
	if model == "" {
		return m.defaultModel
	}
	return model
}

// Match returns prior QA pairs above the similarity floor, best first.
// Results are capped at the configured return size; a larger slice is kept
// in the model-tagged similarity cache.
func (m *QAMatcher) Match(ctx context.Context, q Query, topicIDs []string) []QAMatch {
	model := m.resolveModel(q.EmbeddingModel)
	queryHash := utils.QueryHash(q.Text)

	if m.cache != nil {
		if cached, _, ok, err := m.cache.Get(ctx, queryHash, model); err == nil && ok {
			logger.Debug("QA similarity cache hit", zap.String("query_hash", queryHash))
			return capMatches(cached, m.cfg.QAReturnTopN)
		}
	}

	pairs, err := m.store.ActiveQAPairs(ctx, topicIDs, model, m.cfg.QACandidateLimit)
	if err != nil {
		logger.Warn("Failed to load QA candidates", zap.Error(err))
		return nil
	}
	if len(pairs) == 0 {
		return nil
	}

	sims := m.similarities(ctx, q.Text, pairs, model)

	var matches []QAMatch
	for i, pair := range pairs {
		if sims[i] <= m.cfg.QASimilarityFloor {
			continue
		}
		matches = append(matches, QAMatch{
			Pair:       pair,
			QAID:       pair.ID,
			TopicID:    pair.TopicID,
			Question:   pair.Question,
			Answer:     pair.Answer,
			Similarity: sims[i],
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if m.cache != nil {
		toCache := capMatches(matches, m.cfg.QACacheTopN)
		if err := m.cache.Put(ctx, queryHash, model, toCache); err != nil {
			logger.Warn("Failed to cache QA similarities", zap.Error(err))
		}
	}

	return capMatches(matches, m.cfg.QAReturnTopN)
}

// GetDirectAnswer returns the best QA match only when it is close enough to
// answer the query outright.
func (m *QAMatcher) GetDirectAnswer(ctx context.Context, q Query, topicIDs []string) *QAMatch {
	matches := m.Match(ctx, q, topicIDs)
	if len(matches) == 0 {
		return nil
	}
	if matches[0].Similarity > m.cfg.DirectAnswerThreshold {
		top := matches[0]
		return &top
	}
	return nil
}

// TrackUsage records that a QA pair served a query and bumps its
// times_matched counter. Best-effort and non-blocking: the caller's request
// never waits on or fails from usage bookkeeping.
func (m *QAMatcher) TrackUsage(qaID, sessionID, queryText string, similarity float64, direct bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := m.store.IncrementQAMatched(ctx, qaID); err != nil {
			logger.Warn("Failed to increment times_matched", zap.String("qa_id", qaID), zap.Error(err))
		}

		rec := &models.QAUsageRecord{
			QAID:       qaID,
			SessionID:  sessionID,
			Query:      queryText,
			Similarity: similarity,
			Direct:     direct,
		}
		if err := m.store.InsertQAUsage(ctx, rec); err != nil {
			logger.Warn("Failed to record QA usage", zap.String("qa_id", qaID), zap.Error(err))
		}
	}()
}

type similarityTier func(ctx context.Context, query string, pairs []models.QAPair, model string) ([]float64, bool)

func (m *QAMatcher) similarities(ctx context.Context, query string, pairs []models.QAPair, model string) []float64 {
	tiers := []struct {
		name string
		fn   similarityTier
	}{
		{"stored", m.storedEmbeddingTier},
		{"batch", m.batchTier},
		{"per-pair", m.perPairTier},
	}

	for _, tier := range tiers {
		if sims, ok := tier.fn(ctx, query, pairs, model); ok {
			logger.Debug("QA similarity tier used", zap.String("tier", tier.name))
			return sims
		}
	}

	// All embedding tiers exhausted: lexical overlap only.
	sims := make([]float64, len(pairs))
	for i, pair := range pairs {
		sims[i] = jaccardSimilarity(query, pair.Question)
	}
	return sims
}

// storedEmbeddingTier applies when every candidate carries an embedding for
// the requested model; it costs exactly one embedding call for the query.
func (m *QAMatcher) storedEmbeddingTier(ctx context.Context, query string, pairs []models.QAPair, model string) ([]float64, bool) {
	for _, pair := range pairs {
		if len(pair.Embedding) == 0 || pair.EmbeddingModel != model {
			return nil, false
		}
	}

	queryEmbedding, err := m.queryEmbedding(ctx, query, model)
	if err != nil {
		logger.Warn("Stored-embedding tier: query embedding failed", zap.Error(err))
		return nil, false
	}

	sims := make([]float64, len(pairs))
	for i, pair := range pairs {
		sims[i] = cosineSimilarity(queryEmbedding, pair.Embedding)
	}
	return sims, true
}

// batchTier embeds the query and all candidate questions in one call,
// relying on index alignment between inputs and returned vectors.
func (m *QAMatcher) batchTier(ctx context.Context, query string, pairs []models.QAPair, model string) ([]float64, bool) {
	texts := make([]string, 0, len(pairs)+1)
	texts = append(texts, query)
	for _, pair := range pairs {
		texts = append(texts, pair.Question)
	}

	embeddings, err := m.embedder.EmbedBatch(ctx, texts, model)
	if err != nil {
		logger.Warn("Batch tier: embedding call failed", zap.Error(err))
		return nil, false
	}
	if len(embeddings) != len(texts) {
		logger.Warn("Batch tier: embedding count mismatch",
			zap.Int("want", len(texts)), zap.Int("got", len(embeddings)))
		return nil, false
	}

	queryEmbedding := embeddings[0]
	sims := make([]float64, len(pairs))
	for i := range pairs {
		sims[i] = cosineSimilarity(queryEmbedding, embeddings[i+1])
	}
	return sims, true
}

// perPairTier embeds each (query, question) pair individually; a pair whose
// embedding call fails falls back to lexical overlap for that pair alone.
func (m *QAMatcher) perPairTier(ctx context.Context, query string, pairs []models.QAPair, model string) ([]float64, bool) {
	sims := make([]float64, len(pairs))
	for i, pair := range pairs {
		embeddings, err := m.embedder.EmbedBatch(ctx, []string{query, pair.Question}, model)
		if err != nil || len(embeddings) != 2 {
			sims[i] = jaccardSimilarity(query, pair.Question)
			continue
		}
		sims[i] = cosineSimilarity(embeddings[0], embeddings[1])
	}
	return sims, true
}

func (m *QAMatcher) queryEmbedding(ctx context.Context, query, model string) ([]float32, error) {
	textHash := utils.QueryHash(query)

	if m.embedCache != nil {
		if embedding, ok, err := m.embedCache.GetEmbedding(ctx, textHash, model); err == nil && ok {
			return embedding, nil
		}
	}

	embedding, err := m.embedder.Embed(ctx, query, model)
	if err != nil {
		return nil, err
	}

	if m.embedCache != nil {
		if err := m.embedCache.SetEmbedding(ctx, textHash, model, embedding, m.embedTTL); err != nil {
			logger.Warn("Failed to cache query embedding", zap.Error(err))
		}
	}

	return embedding, nil
}

func capMatches(matches []QAMatch, n int) []QAMatch {
	if n > 0 && len(matches) > n {
		return matches[:n]
	}
	return matches
}
