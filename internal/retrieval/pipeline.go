package retrieval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/metrics"
	"github.com/tutor-agent/backend/pkg/config"
	"github.com/tutor-agent/backend/pkg/features"
	"github.com/tutor-agent/backend/pkg/logger"
)

// Pipeline wires classification, the three retrieval branches, and fusion.
// Branches run concurrently and synchronize only at the fusion step; each
// branch degrades to an empty list on failure, so a query always produces a
// (possibly empty) ranked result.
type Pipeline struct {
	classifier *TopicClassifier
	chunks     *ChunkRetriever
	qa         *QAMatcher
	kb         *KnowledgeBaseRetriever
	fusion     *Fusion
	flags      *features.Resolver
	cfg        config.RetrievalConfig
}

func NewPipeline(classifier *TopicClassifier, chunks *ChunkRetriever, qa *QAMatcher,
	kb *KnowledgeBaseRetriever, fusion *Fusion, flags *features.Resolver, cfg config.RetrievalConfig) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		chunks:     chunks,
		qa:         qa,
		kb:         kb,
		fusion:     fusion,
		flags:      flags,
		cfg:        cfg,
	}
}

// StageListener observes pipeline progress; payload types depend on stage.
type StageListener func(stage string, payload interface{})

func (p *Pipeline) QAMatcher() *QAMatcher {
	return p.qa
}

func (p *Pipeline) Classifier() *TopicClassifier {
	return p.classifier
}

// RetrieveForQuery runs the full hybrid retrieval for one query.
func (p *Pipeline) RetrieveForQuery(ctx context.Context, q Query) *Result {
	return p.retrieve(ctx, q, nil)
}

// RetrieveForQueryStreaming is RetrieveForQuery with per-stage callbacks,
// used by the websocket handler.
func (p *Pipeline) RetrieveForQueryStreaming(ctx context.Context, q Query, listener StageListener) *Result {
	return p.retrieve(ctx, q, listener)
}

func (p *Pipeline) retrieve(ctx context.Context, q Query, listener StageListener) *Result {
	start := time.Now()
	notify := func(stage string, payload interface{}) {
		if listener != nil {
			listener(stage, payload)
		}
	}

	snapshot := p.flags.Snapshot(nil)

	classification, cacheHits := p.classifier.Classify(ctx, q.Text, q.SessionID)
	metrics.ClassificationConfidence.Observe(classification.Confidence)
	notify("classified", classification)

	topicIDs := make([]string, 0, len(classification.MatchedTopics))
	for _, m := range classification.MatchedTopics {
		topicIDs = append(topicIDs, m.TopicID)
	}

	var (
		wg        sync.WaitGroup
		chunks    []Chunk
		kbResults []KBResult
		qaMatches []QAMatch
	)

	// The three branches are independent; cancellation of ctx propagates
	// into each branch's sub-calls.
	wg.Add(1)
	go func() {
		defer wg.Done()
		chunks = p.chunks.Retrieve(ctx, q)
		metrics.RetrievalResults.WithLabelValues("chunk").Observe(float64(len(chunks)))
	}()

	useKB := q.UseKnowledgeBase && snapshot.Enabled("retrieval.knowledge_base")
	if useKB && len(classification.MatchedTopics) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			expand := snapshot.Enabled("retrieval.graph_expansion")
			kbResults = p.kb.Retrieve(ctx, classification.MatchedTopics, expand)
			metrics.RetrievalResults.WithLabelValues("kb").Observe(float64(len(kbResults)))
		}()
	}

	useQA := q.UseQAPairs && snapshot.Enabled("retrieval.qa_pairs")
	if useQA && len(topicIDs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			qaMatches = p.qa.Match(ctx, q, topicIDs)
			metrics.RetrievalResults.WithLabelValues("qa").Observe(float64(len(qaMatches)))
		}()
	}

	wg.Wait()
	notify("retrieved", map[string]int{
		"chunks": len(chunks),
		"kb":     len(kbResults),
		"qa":     len(qaMatches),
	})

	merged := p.fusion.Merge(chunks, kbResults, qaMatches)
	notify("fused", len(merged))

	elapsed := time.Since(start)
	metrics.RetrievalDuration.Observe(elapsed.Seconds())

	logger.Info("Retrieval completed",
		zap.String("session_id", q.SessionID),
		zap.Int("topics", len(classification.MatchedTopics)),
		zap.Int("chunks", len(chunks)),
		zap.Int("kb", len(kbResults)),
		zap.Int("qa", len(qaMatches)),
		zap.Int("merged", len(merged)),
		zap.Duration("elapsed", elapsed),
	)

	return &Result{
		MatchedTopics:            classification.MatchedTopics,
		ClassificationConfidence: classification.Confidence,
		Chunks:                   chunks,
		KnowledgeBase:            kbResults,
		QAPairs:                  qaMatches,
		Merged:                   merged,
		Metadata: map[string]interface{}{
			"retrieval_id":              uuid.NewString(),
			"classification_method":     classification.Method,
			"classification_cache_hits": cacheHits,
			"use_knowledge_base":        useKB,
			"use_qa_pairs":              useQA,
			"embedding_model":           q.EmbeddingModel,
			"latency_ms":                elapsed.Milliseconds(),
		},
	}
}
