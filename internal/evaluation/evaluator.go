// Package evaluation gates fused retrieval results through a corrective-RAG
// quality check before they reach the generator.
package evaluation

import (
	"context"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/metrics"
	"github.com/tutor-agent/backend/internal/retrieval"
	"github.com/tutor-agent/backend/pkg/config"
	"github.com/tutor-agent/backend/pkg/logger"
)

type Confidence string

const (
	ConfidenceCorrect   Confidence = "correct"
	ConfidenceIncorrect Confidence = "incorrect"
	ConfidenceAmbiguous Confidence = "ambiguous"
)

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionRefine Action = "refine"
)

type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
	Available() bool
}

type Verdict struct {
	Confidence Confidence `json:"confidence"`
	Action     Action     `json:"action"`
	Scores     []float64  `json:"scores"`
	AvgScore   float64    `json:"avg_score"`
	MaxScore   float64    `json:"max_score"`
	MinScore   float64    `json:"min_score"`
	Reason     string     `json:"reason"`
	Bypassed   bool       `json:"bypassed"`
}

// Evaluator scores every (query, candidate) pair with the cross-encoder and
// maps the aggregate onto accept/reject/refine. When the scorer is
// unavailable or a scoring call fails, the evaluator runs in bypass mode and
// accepts: retrieval quality gating fails open, never closed.
type Evaluator struct {
	scorer Scorer
	cfg    config.EvaluatorConfig
}

func NewEvaluator(scorer Scorer, cfg config.EvaluatorConfig) *Evaluator {
	return &Evaluator{scorer: scorer, cfg: cfg}
}

func (e *Evaluator) Evaluate(ctx context.Context, query string, results []retrieval.MergedResult) *Verdict {
	if len(results) == 0 {
		return &Verdict{
			Confidence: ConfidenceIncorrect,
			Action:     ActionReject,
			Scores:     []float64{},
			Reason:     "no candidates to evaluate",
		}
	}

	scores, ok := e.score(ctx, query, results)
	if !ok {
		metrics.EvaluatorBypass.Inc()
		return &Verdict{
			Confidence: ConfidenceCorrect,
			Action:     ActionAccept,
			Scores:     []float64{},
			Reason:     "evaluator unavailable, bypassing quality gate",
			Bypassed:   true,
		}
	}

	verdict := e.decide(scores)
	metrics.EvaluatorVerdicts.WithLabelValues(string(verdict.Action)).Inc()

	logger.Debug("Retrieval evaluated",
		zap.String("action", string(verdict.Action)),
		zap.Float64("avg_score", verdict.AvgScore),
		zap.Float64("max_score", verdict.MaxScore),
	)

	return verdict
}

// decide applies the decision order: a hopeless maximum rejects before the
// average is consulted; a strong average accepts; everything else refines.
func (e *Evaluator) decide(scores []float64) *Verdict {
	avg, max, min := aggregate(scores)

	verdict := &Verdict{
		Scores:   scores,
		AvgScore: avg,
		MaxScore: max,
		MinScore: min,
	}

	switch {
	case max < e.cfg.IncorrectThreshold:
		verdict.Confidence = ConfidenceIncorrect
		verdict.Action = ActionReject
		verdict.Reason = "no candidate is relevant enough"
	case avg >= e.cfg.CorrectThreshold:
		verdict.Confidence = ConfidenceCorrect
		verdict.Action = ActionAccept
		verdict.Reason = "candidates are relevant on average"
	default:
		verdict.Confidence = ConfidenceAmbiguous
		verdict.Action = ActionRefine
		verdict.Reason = "mixed relevance, filter before generation"
	}

	return verdict
}

// FilterByThreshold re-scores candidates and keeps those at or above
// threshold, annotated with their evaluator score. Input order is preserved.
// If scoring fails, all candidates pass unchanged (bypass).
func (e *Evaluator) FilterByThreshold(ctx context.Context, query string, results []retrieval.MergedResult, threshold float64) []retrieval.MergedResult {
	if threshold <= 0 {
		threshold = e.cfg.FilterThreshold
	}
	if len(results) == 0 {
		return results
	}

	scores, ok := e.score(ctx, query, results)
	if !ok {
		metrics.EvaluatorBypass.Inc()
		return results
	}

	kept := make([]retrieval.MergedResult, 0, len(results))
	for i, result := range results {
		if scores[i] < threshold {
			continue
		}
		score := scores[i]
		result.EvaluatorScore = &score
		kept = append(kept, result)
	}

	logger.Debug("Results filtered by evaluator threshold",
		zap.Float64("threshold", threshold),
		zap.Int("in", len(results)),
		zap.Int("kept", len(kept)),
	)

	return kept
}

func (e *Evaluator) score(ctx context.Context, query string, results []retrieval.MergedResult) ([]float64, bool) {
	if e.scorer == nil || !e.scorer.Available() {
		return nil, false
	}

	texts := make([]string, len(results))
	for i, result := range results {
		texts[i] = result.Content
	}

	scores, err := e.scorer.Score(ctx, query, texts)
	if err != nil {
		logger.Warn("Cross-encoder scoring failed, bypassing", zap.Error(err))
		return nil, false
	}
	if len(scores) != len(results) {
		logger.Warn("Cross-encoder score count mismatch, bypassing",
			zap.Int("want", len(results)), zap.Int("got", len(scores)))
		return nil, false
	}

	return scores, true
}

func aggregate(scores []float64) (avg, max, min float64) {
	if len(scores) == 0 {
		return 0, 0, 0
	}

	max = scores[0]
	min = scores[0]
	sum := 0.0
	for _, s := range scores {
		sum += s
		if s > max {
			max = s
		}
		if s < min {
			min = s
		}
	}
	return sum / float64(len(scores)), max, min
}
