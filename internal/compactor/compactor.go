// Package compactor trims conversation history before it is handed to the
// reply backend: near-duplicate lines are dropped and the window is capped at
// the most recent entries.
package compactor

import (
	"log/slog"
	"math"
	"strings"
)

const (
	// DefaultSimilarityThreshold is the cosine similarity above which two
	// history lines count as duplicates.
	DefaultSimilarityThreshold = 0.85
	// DefaultMaxLines caps the compacted window.
	DefaultMaxLines = 10
)

type Compactor struct {
	threshold float64
	maxLines  int
	logger    *slog.Logger
}

func New(logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		threshold: DefaultSimilarityThreshold,
		maxLines:  DefaultMaxLines,
		logger:    logger.With("component", "compactor"),
	}
}

// Compact returns the history window with near-duplicates removed and the
// result capped at the most recent maxLines entries. Order is preserved and
// the earliest of a duplicate pair survives. Windows of one line or fewer
// pass through untouched.
func (c *Compactor) Compact(lines []string) []string {
	if len(lines) <= 1 {
		return lines
	}

	kept := make([]string, 0, len(lines))
	vectors := make([]map[string]float64, 0, len(lines))
	dropped := 0
	for _, line := range lines {
		vector := termVector(line)
		duplicate := false
		for _, seen := range vectors {
			if cosine(vector, seen) > c.threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			dropped++
			continue
		}
		kept = append(kept, line)
		vectors = append(vectors, vector)
	}

	if len(kept) > c.maxLines {
		kept = kept[len(kept)-c.maxLines:]
	}
	if dropped > 0 {
		c.logger.Debug("history compacted", "in", len(lines), "out", len(kept), "dropped", dropped)
	}
	return kept
}

// termVector builds a term-frequency bag from whitespace tokens plus the rune
// bigrams of each token, so undelimited Japanese text still overlaps.
func termVector(text string) map[string]float64 {
	vector := map[string]float64{}
	for _, token := range strings.Fields(strings.ToLower(text)) {
		vector[token]++
		runes := []rune(token)
		for i := 0; i+1 < len(runes); i++ {
			vector[string(runes[i:i+2])]++
		}
	}
	return vector
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dot := 0.0
	for term, weight := range a {
		dot += weight * b[term]
	}
	if dot == 0 {
		return 0
	}
	return dot / (norm(a) * norm(b))
}

func norm(vector map[string]float64) float64 {
	sum := 0.0
	for _, weight := range vector {
		sum += weight * weight
	}
	return math.Sqrt(sum)
}
