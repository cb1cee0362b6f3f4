package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/retrieval"
	"github.com/tutor-agent/backend/pkg/logger"
)

const wsRetrieveTimeout = 90 * time.Second

type WebSocketHandler struct {
	pipeline *retrieval.Pipeline
}

func NewWebSocketHandler(pipeline *retrieval.Pipeline) *WebSocketHandler {
	return &WebSocketHandler{
		pipeline: pipeline,
	}
}

// HandleConnection serves one websocket client. Each "retrieve" message runs
// the pipeline and streams per-stage progress events before the final result.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type             string `json:"type"`
			Query            string `json:"query"`
			SessionID        string `json:"session_id"`
			TopK             int    `json:"top_k"`
			UseKnowledgeBase *bool  `json:"use_knowledge_base"`
			UseQAPairs       *bool  `json:"use_qa_pairs"`
			EmbeddingModel   string `json:"embedding_model"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "retrieve" {
			continue
		}

		if msg.Query == "" || msg.SessionID == "" {
			h.sendError(c, "query and session_id are required")
			continue
		}

		q := retrieval.Query{
			Text:             msg.Query,
			SessionID:        msg.SessionID,
			TopK:             msg.TopK,
			UseKnowledgeBase: true,
			UseQAPairs:       true,
			EmbeddingModel:   msg.EmbeddingModel,
		}
		if msg.UseKnowledgeBase != nil {
			q.UseKnowledgeBase = *msg.UseKnowledgeBase
		}
		if msg.UseQAPairs != nil {
			q.UseQAPairs = *msg.UseQAPairs
		}

		if err := h.streamRetrieval(c, q); err != nil {
			logger.Error("Failed to stream retrieval", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamRetrieval(c *websocket.Conn, q retrieval.Query) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsRetrieveTimeout)
	defer cancel()

	// Stage callbacks run on pipeline goroutine; websocket writes must stay
	// serialized, so events are drained on this goroutine.
	events := make(chan map[string]interface{}, 8)
	done := make(chan *retrieval.Result, 1)

	go func() {
		result := h.pipeline.RetrieveForQueryStreaming(ctx, q, func(stage string, payload interface{}) {
			events <- map[string]interface{}{
				"type":    "stage",
				"stage":   stage,
				"payload": payload,
			}
		})
		close(events)
		done <- result
	}()

	for event := range events {
		if err := c.WriteJSON(event); err != nil {
			cancel()
			<-done
			return err
		}
	}

	result := <-done

	return c.WriteJSON(map[string]interface{}{
		"type":   "complete",
		"result": result,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
