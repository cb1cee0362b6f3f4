package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/cache"
	"github.com/tutor-agent/backend/internal/llm"
	"github.com/tutor-agent/backend/internal/storage/models"
	"github.com/tutor-agent/backend/pkg/config"
	"github.com/tutor-agent/backend/pkg/logger"
	"github.com/tutor-agent/backend/pkg/utils"
)

type TopicStore interface {
	SessionTopics(ctx context.Context, sessionID string) ([]models.Topic, error)
}

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// TopicClassifier maps a query onto at most three of the session's topics.
// The keyword scorer is the fast path; the LLM is consulted only when the
// keyword confidence is not decisive. Classify never fails: any dependency
// error degrades to the best result available.
type TopicClassifier struct {
	store TopicStore
	llm   Completer
	cache *cache.TypedCache[Classification]
	cfg   config.RetrievalConfig
}

func NewTopicClassifier(store TopicStore, completer Completer, c *cache.TypedCache[Classification], cfg config.RetrievalConfig) *TopicClassifier {
	return &TopicClassifier{
		store: store,
		llm:   completer,
		cache: c,
		cfg:   cfg,
	}
}

const maxTopicMatches = 3

// Classify returns the matched topics for a query, most confident first.
// The second return value is the cache hit count when the result was served
// from cache, 0 otherwise.
func (tc *TopicClassifier) Classify(ctx context.Context, queryText, sessionID string) (Classification, int) {
	cacheKey := cache.ClassificationKey(sessionID, utils.QueryHash(queryText))

	if tc.cache != nil {
		if cached, hits, ok, err := tc.cache.Get(ctx, cacheKey, ""); err == nil && ok {
			logger.Debug("Classification cache hit",
				zap.String("session_id", sessionID),
				zap.Int("hit_count", hits),
			)
			return cached, hits
		}
	}

	topics, err := tc.store.SessionTopics(ctx, sessionID)
	if err != nil {
		logger.Warn("Failed to load session topics", zap.Error(err))
		topics = nil
	}

	// No configured topics: empty result, and deliberately no LLM call.
	if len(topics) == 0 {
		result := Classification{MatchedTopics: []models.TopicMatch{}, Confidence: 0.0, Method: "none"}
		tc.cacheResult(ctx, cacheKey, result)
		return result, 0
	}

	result := tc.keywordClassify(queryText, topics)

	if result.Confidence <= tc.cfg.LLMFallbackThreshold && tc.llm != nil {
		if llmResult, ok := tc.llmClassify(ctx, queryText, topics); ok {
			result = llmResult
		}
	}

	tc.cacheResult(ctx, cacheKey, result)
	return result, 0
}

func (tc *TopicClassifier) cacheResult(ctx context.Context, key string, result Classification) {
	if tc.cache == nil {
		return
	}
	if err := tc.cache.Put(ctx, key, "", result); err != nil {
		logger.Warn("Failed to cache classification", zap.Error(err))
	}
}

func (tc *TopicClassifier) keywordClassify(queryText string, topics []models.Topic) Classification {
	words := queryWords(queryText)
	wordSet := map[string]bool{}
	for _, w := range words {
		wordSet[w] = true
	}

	var matches []models.TopicMatch
	for _, topic := range topics {
		score, titleMatched := scoreTopic(topic, words, wordSet)
		if score <= 0 {
			continue
		}

		norm := float64(len(topic.Keywords))
		if float64(len(words)) > norm {
			norm = float64(len(words))
		}
		if norm < 1 {
			norm = 1
		}
		confidence := score / norm
		if titleMatched {
			confidence *= 1.2
		}

		matches = append(matches, models.TopicMatch{
			TopicID:    topic.ID,
			Title:      topic.Title,
			Confidence: clamp01(confidence),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	if len(matches) > maxTopicMatches {
		matches = matches[:maxTopicMatches]
	}

	confidence := 0.0
	if len(matches) > 0 {
		confidence = matches[0].Confidence
	}
	if matches == nil {
		matches = []models.TopicMatch{}
	}

	return Classification{MatchedTopics: matches, Confidence: confidence, Method: "keyword"}
}

// scoreTopic implements the keyword scoring formula: exact keyword hits
// count 1, partial keyword hits 0.5, title-word hits 1.5, and
// description-word hits 0.3.
func scoreTopic(topic models.Topic, words []string, wordSet map[string]bool) (float64, bool) {
	score := 0.0

	for _, keyword := range topic.Keywords {
		kw := strings.ToLower(keyword)
		if wordSet[kw] {
			score += 1.0
			continue
		}
		for _, w := range words {
			if strings.Contains(w, kw) || strings.Contains(kw, w) {
				score += 0.5
				break
			}
		}
	}

	titleMatched := false
	for _, tw := range queryWords(topic.Title) {
		if wordSet[tw] {
			score += 1.5
			titleMatched = true
		}
	}

	for _, dw := range queryWords(topic.Description) {
		if wordSet[dw] {
			score += 0.3
		}
	}

	return score, titleMatched
}

type llmClassification struct {
	Topics []struct {
		TopicID    string  `json:"topic_id"`
		Confidence float64 `json:"confidence"`
	} `json:"topics"`
}

func (tc *TopicClassifier) llmClassify(ctx context.Context, queryText string, topics []models.Topic) (Classification, bool) {
	var listing strings.Builder
	titles := make(map[string]string, len(topics))
	for _, t := range topics {
		titles[t.ID] = t.Title
		fmt.Fprintf(&listing, "- %s: %s (keywords: %s)\n", t.ID, t.Title, strings.Join(t.Keywords, ", "))
	}

	systemPrompt := `You are a topic classifier for a tutoring system. Match the student question to the listed topics.

Return JSON only:
{"topics": [{"topic_id": "id", "confidence": 0.9}]}

Include at most 3 topics, confidence in [0,1]. Return {"topics": []} if nothing matches.`

	userPrompt := fmt.Sprintf("Topics:\n%s\nQuestion: %s", listing.String(), queryText)

	resp, err := tc.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.1,
		MaxTokens:    300,
		Timeout:      tc.cfg.ClassifyTimeout(),
	})
	if err != nil {
		logger.Warn("LLM classification failed, keeping keyword result", zap.Error(err))
		return Classification{}, false
	}

	raw := extractJSONObject(resp.Content)
	if raw == "" {
		logger.Warn("LLM classification response contained no JSON object")
		return Classification{}, false
	}

	var parsed llmClassification
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.Warn("Failed to parse LLM classification", zap.Error(err))
		return Classification{}, false
	}
	if len(parsed.Topics) == 0 {
		return Classification{}, false
	}

	var matches []models.TopicMatch
	for _, t := range parsed.Topics {
		title, known := titles[t.TopicID]
		if !known {
			continue
		}
		matches = append(matches, models.TopicMatch{
			TopicID:    t.TopicID,
			Title:      title,
			Confidence: clamp01(t.Confidence),
		})
	}
	if len(matches) == 0 {
		return Classification{}, false
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	if len(matches) > maxTopicMatches {
		matches = matches[:maxTopicMatches]
	}

	return Classification{
		MatchedTopics: matches,
		Confidence:    matches[0].Confidence,
		Method:        "llm",
	}, true
}

// extractJSONObject returns the substring from the first '{' to the last
// '}', the shape classification responses arrive in.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
