package retrieval

import (
	"fmt"
	"strings"
)

var sourceLabels = map[string]string{
	SourceChunk: "Course Material",
	SourceKB:    "Knowledge Base",
	SourceQA:    "Previous Q&A",
}

// BuiltContext is the generation-ready text assembled from ranked results.
type BuiltContext struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
	Chars   int      `json:"chars"`
}

// BuildContext concatenates ranked results into one labeled text blob capped
// at maxChars. Assembly stops before the first block that would overflow the
// budget; blocks are never truncated mid-way.
func BuildContext(results []MergedResult, maxChars int) BuiltContext {
	if maxChars <= 0 {
		maxChars = 8000
	}

	var builder strings.Builder
	var sources []string

	for _, result := range results {
		block := formatBlock(result)
		if builder.Len()+len(block) > maxChars {
			break
		}
		builder.WriteString(block)
		sources = append(sources, sourceRef(result))
	}

	return BuiltContext{
		Text:    builder.String(),
		Sources: sources,
		Chars:   builder.Len(),
	}
}

func formatBlock(result MergedResult) string {
	label := sourceLabels[result.Source]
	if label == "" {
		label = result.Source
	}

	if result.Source == SourceQA {
		if question, ok := result.Metadata["question"]; ok && question != "" {
			return fmt.Sprintf("[%s]\nQ: %s\nA: %s\n\n", label, question, result.Content)
		}
	}

	return fmt.Sprintf("[%s]\n%s\n\n", label, result.Content)
}

func sourceRef(result MergedResult) string {
	for _, key := range []string{"chunk_id", "topic_id", "qa_id"} {
		if id, ok := result.Metadata[key]; ok && id != "" {
			return fmt.Sprintf("%s:%s", result.Source, id)
		}
	}
	return result.Source
}
