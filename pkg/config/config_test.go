package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)

	assert.InDelta(t, 0.4, cfg.Fusion.ChunkWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Fusion.KBWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Fusion.QAWeight, 1e-9)
	assert.Equal(t, 8, cfg.Fusion.ChunkLimit)
	assert.Equal(t, 3, cfg.Fusion.QALimit)
	assert.InDelta(t, 0.85, cfg.Fusion.QAFloor, 1e-9)
	assert.Equal(t, 60, cfg.Fusion.RRFConstant)

	assert.InDelta(t, 0.3, cfg.Retrieval.MinScore, 1e-9)
	assert.InDelta(t, 0.75, cfg.Retrieval.QASimilarityFloor, 1e-9)
	assert.InDelta(t, 0.90, cfg.Retrieval.DirectAnswerThreshold, 1e-9)
	assert.InDelta(t, 0.7, cfg.Retrieval.LLMFallbackThreshold, 1e-9)

	assert.InDelta(t, 0.3, cfg.Evaluator.IncorrectThreshold, 1e-9)
	assert.InDelta(t, 0.7, cfg.Evaluator.CorrectThreshold, 1e-9)
	assert.InDelta(t, 0.5, cfg.Evaluator.FilterThreshold, 1e-9)

	assert.Equal(t, 10*time.Second, cfg.Retrieval.ClassifyTimeout())
	assert.Equal(t, 60*time.Second, cfg.Retrieval.ChunkTimeout())
	assert.Equal(t, 30*time.Second, cfg.Retrieval.EmbedTimeout())

	assert.Equal(t, 7*24*time.Hour, cfg.Cache.ClassificationTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.Cache.QASimilarityTTL())

	assert.True(t, cfg.Features.Defaults["retrieval.qa_pairs"])
	assert.False(t, cfg.Features.Defaults["retrieval.graph_expansion"])
}
