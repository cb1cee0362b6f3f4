package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/metrics"
	"github.com/tutor-agent/backend/internal/retrieval"
	"github.com/tutor-agent/backend/pkg/logger"
)

type RetrieveHandler struct {
	pipeline *retrieval.Pipeline
}

func NewRetrieveHandler(pipeline *retrieval.Pipeline) *RetrieveHandler {
	return &RetrieveHandler{
		pipeline: pipeline,
	}
}

type retrieveRequest struct {
	Query            string `json:"query"`
	SessionID        string `json:"session_id"`
	TopK             int    `json:"top_k"`
	UseKnowledgeBase *bool  `json:"use_knowledge_base"`
	UseQAPairs       *bool  `json:"use_qa_pairs"`
	EmbeddingModel   string `json:"embedding_model"`
}

func (r retrieveRequest) toQuery() retrieval.Query {
	q := retrieval.Query{
		Text:             r.Query,
		SessionID:        r.SessionID,
		TopK:             r.TopK,
		UseKnowledgeBase: true,
		UseQAPairs:       true,
		EmbeddingModel:   r.EmbeddingModel,
	}
	if r.UseKnowledgeBase != nil {
		q.UseKnowledgeBase = *r.UseKnowledgeBase
	}
	if r.UseQAPairs != nil {
		q.UseQAPairs = *r.UseQAPairs
	}
	return q
}

func (h *RetrieveHandler) HandleRetrieve(c *fiber.Ctx) error {
	var req retrieveRequest

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	result := h.pipeline.RetrieveForQuery(c.Context(), req.toQuery())
	metrics.QueryTotal.WithLabelValues("ok").Inc()

	return c.JSON(result)
}

// HandleDirectAnswer returns a stored answer when a prior question matches
// the query closely enough to skip generation entirely.
func (h *RetrieveHandler) HandleDirectAnswer(c *fiber.Ctx) error {
	var req retrieveRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" || req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query and session_id are required",
		})
	}

	q := req.toQuery()
	classification, _ := h.pipeline.Classifier().Classify(c.Context(), q.Text, q.SessionID)

	topicIDs := make([]string, 0, len(classification.MatchedTopics))
	for _, m := range classification.MatchedTopics {
		topicIDs = append(topicIDs, m.TopicID)
	}

	match := h.pipeline.QAMatcher().GetDirectAnswer(c.Context(), q, topicIDs)
	if match == nil {
		return c.JSON(fiber.Map{
			"found": false,
		})
	}

	metrics.DirectAnswers.Inc()
	h.pipeline.QAMatcher().TrackUsage(match.QAID, q.SessionID, q.Text, match.Similarity, true)

	return c.JSON(fiber.Map{
		"found":            true,
		"qa_id":            match.QAID,
		"answer":           match.Answer,
		"question":         match.Question,
		"similarity_score": match.Similarity,
	})
}
