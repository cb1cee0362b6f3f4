package retrieval

import (
	"fmt"
	"sort"

	"github.com/tutor-agent/backend/pkg/config"
)

// Fusion merges the three retrieval branches into one ranked list. Both
// strategies are deterministic: identical inputs produce identical output
// order.
type Fusion struct {
	cfg config.FusionConfig
}

func NewFusion(cfg config.FusionConfig) *Fusion {
	return &Fusion{cfg: cfg}
}

// Merge dispatches on the configured default style.
func (f *Fusion) Merge(chunks []Chunk, kb []KBResult, qa []QAMatch) []MergedResult {
	if f.cfg.DefaultStyle == "rrf" {
		return f.ReciprocalRank(chunks, kb, qa)
	}
	return f.Weighted(chunks, kb, qa)
}

// Weighted applies the source weights: the top chunks at chunk weight, every
// KB entry at kb weight times its relevance, and the top QA matches above
// the QA floor at qa weight times similarity.
func (f *Fusion) Weighted(chunks []Chunk, kb []KBResult, qa []QAMatch) []MergedResult {
	var merged []MergedResult

	for i, chunk := range chunks {
		if i >= f.cfg.ChunkLimit {
			break
		}
		merged = append(merged, MergedResult{
			Content:       chunk.Content,
			Source:        SourceChunk,
			OriginalScore: chunk.FinalScore,
			FinalScore:    chunk.FinalScore * f.cfg.ChunkWeight,
			Metadata:      chunkMetadata(chunk),
		})
	}

	for _, entry := range kb {
		merged = append(merged, MergedResult{
			Content:       entry.Entry.Summary,
			Source:        SourceKB,
			OriginalScore: entry.RelevanceScore,
			FinalScore:    entry.RelevanceScore * f.cfg.KBWeight,
			Metadata:      map[string]string{"topic_id": entry.Entry.TopicID},
		})
	}

	qaCount := 0
	for _, match := range qa {
		if qaCount >= f.cfg.QALimit {
			break
		}
		if match.Similarity <= f.cfg.QAFloor {
			continue
		}
		qaCount++
		merged = append(merged, MergedResult{
			Content:       match.Answer,
			Source:        SourceQA,
			OriginalScore: match.Similarity,
			FinalScore:    match.Similarity * f.cfg.QAWeight,
			Metadata: map[string]string{
				"qa_id":    match.QAID,
				"question": match.Question,
			},
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].FinalScore > merged[j].FinalScore
	})

	return merged
}

// ReciprocalRank scores each item 1/(k+rank+1) within its source list and
// merges across lists.
func (f *Fusion) ReciprocalRank(chunks []Chunk, kb []KBResult, qa []QAMatch) []MergedResult {
	k := float64(f.cfg.RRFConstant)
	var merged []MergedResult

	for rank, chunk := range chunks {
		merged = append(merged, MergedResult{
			Content:       chunk.Content,
			Source:        SourceChunk,
			OriginalScore: chunk.FinalScore,
			FinalScore:    1.0 / (k + float64(rank) + 1),
			Metadata:      chunkMetadata(chunk),
		})
	}

	for rank, entry := range kb {
		merged = append(merged, MergedResult{
			Content:       entry.Entry.Summary,
			Source:        SourceKB,
			OriginalScore: entry.RelevanceScore,
			FinalScore:    1.0 / (k + float64(rank) + 1),
			Metadata:      map[string]string{"topic_id": entry.Entry.TopicID},
		})
	}

	for rank, match := range qa {
		merged = append(merged, MergedResult{
			Content:       match.Answer,
			Source:        SourceQA,
			OriginalScore: match.Similarity,
			FinalScore:    1.0 / (k + float64(rank) + 1),
			Metadata: map[string]string{
				"qa_id":    match.QAID,
				"question": match.Question,
			},
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].FinalScore > merged[j].FinalScore
	})

	return merged
}

func chunkMetadata(chunk Chunk) map[string]string {
	meta := map[string]string{
		"chunk_id": chunk.ChunkID,
	}
	if chunk.Title != "" {
		meta["title"] = chunk.Title
	}
	for k, v := range chunk.Metadata {
		if _, exists := meta[k]; !exists {
			meta[k] = v
		}
	}
	meta["base_score"] = fmt.Sprintf("%.4f", chunk.BaseScore)
	return meta
}
