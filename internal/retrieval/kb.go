package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/kg/neo4j"
	"github.com/tutor-agent/backend/internal/storage/models"
	"github.com/tutor-agent/backend/pkg/config"
	"github.com/tutor-agent/backend/pkg/logger"
)

type KBStore interface {
	KnowledgeBaseEntry(ctx context.Context, topicID string) (*models.KnowledgeBaseEntry, error)
}

type GraphExpander interface {
	RelatedTopics(ctx context.Context, topicIDs []string, limit int) ([]neo4j.RelatedTopic, error)
}

// KnowledgeBaseRetriever fetches the curated summary for each classified
// topic. Relevance is the propagated classification confidence; it is never
// recomputed here. Topics without an entry are skipped silently.
type KnowledgeBaseRetriever struct {
	store KBStore
	graph GraphExpander
	cfg   config.RetrievalConfig
}

func NewKnowledgeBaseRetriever(store KBStore, graph GraphExpander, cfg config.RetrievalConfig) *KnowledgeBaseRetriever {
	return &KnowledgeBaseRetriever{
		store: store,
		graph: graph,
		cfg:   cfg,
	}
}

func (r *KnowledgeBaseRetriever) Retrieve(ctx context.Context, matches []models.TopicMatch, expand bool) []KBResult {
	var results []KBResult
	seen := make(map[string]bool, len(matches))

	for _, match := range matches {
		seen[match.TopicID] = true

		entry, err := r.store.KnowledgeBaseEntry(ctx, match.TopicID)
		if err != nil {
			logger.Warn("Failed to load KB entry",
				zap.String("topic_id", match.TopicID), zap.Error(err))
			continue
		}
		if entry == nil {
			continue
		}

		results = append(results, KBResult{
			Entry:          *entry,
			RelevanceScore: match.Confidence,
		})
	}

	if expand && r.graph != nil && len(matches) > 0 {
		results = append(results, r.expandRelated(ctx, matches, seen)...)
	}

	return results
}

// expandRelated pulls entries for curriculum-graph neighbors of the matched
// topics at a discounted relevance. Graph failures cost nothing but the
// expansion.
func (r *KnowledgeBaseRetriever) expandRelated(ctx context.Context, matches []models.TopicMatch, seen map[string]bool) []KBResult {
	topicIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		topicIDs = append(topicIDs, m.TopicID)
	}

	related, err := r.graph.RelatedTopics(ctx, topicIDs, r.cfg.GraphExpansionLimit)
	if err != nil {
		logger.Warn("Curriculum graph expansion failed", zap.Error(err))
		return nil
	}

	seedConfidence := matches[0].Confidence

	var results []KBResult
	for _, rt := range related {
		if seen[rt.TopicID] {
			continue
		}
		seen[rt.TopicID] = true

		entry, err := r.store.KnowledgeBaseEntry(ctx, rt.TopicID)
		if err != nil || entry == nil {
			continue
		}

		results = append(results, KBResult{
			Entry:          *entry,
			RelevanceScore: clamp01(seedConfidence * r.cfg.GraphRelevanceFactor * rt.Weight),
		})
	}

	if len(results) > 0 {
		logger.Debug("KB expanded via curriculum graph", zap.Int("added", len(results)))
	}

	return results
}
