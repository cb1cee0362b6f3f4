package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutor-agent/backend/internal/kg/neo4j"
	"github.com/tutor-agent/backend/internal/storage/models"
	"github.com/tutor-agent/backend/pkg/config"
)

type fakeKBStore struct {
	entries map[string]*models.KnowledgeBaseEntry
	errs    map[string]error
}

func (f *fakeKBStore) KnowledgeBaseEntry(ctx context.Context, topicID string) (*models.KnowledgeBaseEntry, error) {
	if err, ok := f.errs[topicID]; ok {
		return nil, err
	}
	return f.entries[topicID], nil
}

type fakeGraph struct {
	related []neo4j.RelatedTopic
	err     error
	calls   int
}

func (f *fakeGraph) RelatedTopics(ctx context.Context, topicIDs []string, limit int) ([]neo4j.RelatedTopic, error) {
	f.calls++
	return f.related, f.err
}

func kbConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		GraphExpansionLimit:  3,
		GraphRelevanceFactor: 0.6,
	}
}

func TestKBRetrievePropagatesConfidence(t *testing.T) {
	store := &fakeKBStore{entries: map[string]*models.KnowledgeBaseEntry{
		"t1": {TopicID: "t1", Summary: "summary one"},
		"t2": {TopicID: "t2", Summary: "summary two"},
	}}

	r := NewKnowledgeBaseRetriever(store, nil, kbConfig())
	results := r.Retrieve(context.Background(), []models.TopicMatch{
		{TopicID: "t1", Confidence: 0.9},
		{TopicID: "t2", Confidence: 0.4},
	}, false)

	require.Len(t, results, 2)
	assert.InDelta(t, 0.9, results[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.4, results[1].RelevanceScore, 1e-9)
}

func TestKBRetrieveSkipsMissingAndFailed(t *testing.T) {
	store := &fakeKBStore{
		entries: map[string]*models.KnowledgeBaseEntry{
			"ok": {TopicID: "ok", Summary: "s"},
		},
		errs: map[string]error{
			"broken": errors.New("db error"),
		},
	}

	r := NewKnowledgeBaseRetriever(store, nil, kbConfig())
	results := r.Retrieve(context.Background(), []models.TopicMatch{
		{TopicID: "ok", Confidence: 0.8},
		{TopicID: "missing", Confidence: 0.7},
		{TopicID: "broken", Confidence: 0.6},
	}, false)

	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Entry.TopicID)
}

func TestKBRetrieveGraphExpansion(t *testing.T) {
	store := &fakeKBStore{entries: map[string]*models.KnowledgeBaseEntry{
		"t1":      {TopicID: "t1", Summary: "seed"},
		"related": {TopicID: "related", Summary: "neighbor"},
	}}
	graph := &fakeGraph{related: []neo4j.RelatedTopic{
		{TopicID: "related", Relation: "PREREQUISITE_OF", Weight: 0.5},
		{TopicID: "t1", Relation: "RELATED_TO", Weight: 1.0}, // already matched, skipped
	}}

	r := NewKnowledgeBaseRetriever(store, graph, kbConfig())
	results := r.Retrieve(context.Background(), []models.TopicMatch{
		{TopicID: "t1", Confidence: 0.8},
	}, true)

	require.Len(t, results, 2)
	assert.Equal(t, "related", results[1].Entry.TopicID)
	// Discounted relevance: seed confidence x factor x edge weight.
	assert.InDelta(t, 0.8*0.6*0.5, results[1].RelevanceScore, 1e-9)
}

func TestKBRetrieveExpansionDisabled(t *testing.T) {
	store := &fakeKBStore{entries: map[string]*models.KnowledgeBaseEntry{
		"t1": {TopicID: "t1", Summary: "seed"},
	}}
	graph := &fakeGraph{related: []neo4j.RelatedTopic{
		{TopicID: "other", Weight: 0.5},
	}}

	r := NewKnowledgeBaseRetriever(store, graph, kbConfig())
	results := r.Retrieve(context.Background(), []models.TopicMatch{
		{TopicID: "t1", Confidence: 0.8},
	}, false)

	assert.Len(t, results, 1)
	assert.Zero(t, graph.calls)
}

func TestKBRetrieveGraphFailureKeepsSeeds(t *testing.T) {
	store := &fakeKBStore{entries: map[string]*models.KnowledgeBaseEntry{
		"t1": {TopicID: "t1", Summary: "seed"},
	}}
	graph := &fakeGraph{err: errors.New("neo4j down")}

	r := NewKnowledgeBaseRetriever(store, graph, kbConfig())
	results := r.Retrieve(context.Background(), []models.TopicMatch{
		{TopicID: "t1", Confidence: 0.8},
	}, true)

	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].Entry.TopicID)
}
