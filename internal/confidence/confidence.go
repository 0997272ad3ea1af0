// Package confidence scores generated answers with a fixed heuristic.
//
// The score is not a calibrated probability. It starts at a base value and
// adds or subtracts fixed amounts for answer length, the number of supporting
// chunks and the presence of hedging phrases, then clamps to [0, 1]. It is
// cheap and every adjustment can be explained to a user.
package confidence

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// DefaultUncertaintyMarkers are matched case-insensitively as substrings
var DefaultUncertaintyMarkers = []string{
	"i don't know",
	"i couldn't find",
	"not enough information",
	"unclear",
	"uncertain",
}

// Config holds the heuristic's thresholds and adjustments
type Config struct {
	Base float64 `yaml:"base"`

	// Answers longer than LongAnswerChars earn LongAnswerBonus, answers
	// shorter than ShortAnswerChars cost ShortAnswerPenalty
	LongAnswerChars    int     `yaml:"long_answer_chars"`
	ShortAnswerChars   int     `yaml:"short_answer_chars"`
	LongAnswerBonus    float64 `yaml:"long_answer_bonus"`
	ShortAnswerPenalty float64 `yaml:"short_answer_penalty"`

	// At least ManyChunks chunks earn ManyChunksBonus, exactly one costs
	// SingleChunkPenalty
	ManyChunks         int     `yaml:"many_chunks"`
	ManyChunksBonus    float64 `yaml:"many_chunks_bonus"`
	SingleChunkPenalty float64 `yaml:"single_chunk_penalty"`

	UncertaintyPenalty float64  `yaml:"uncertainty_penalty"`
	UncertaintyMarkers []string `yaml:"uncertainty_markers"`
}

// DefaultConfig returns the standard heuristic
func DefaultConfig() Config {
	return Config{
		Base:               0.5,
		LongAnswerChars:    100,
		ShortAnswerChars:   30,
		LongAnswerBonus:    0.2,
		ShortAnswerPenalty: 0.2,
		ManyChunks:         3,
		ManyChunksBonus:    0.2,
		SingleChunkPenalty: 0.1,
		UncertaintyPenalty: 0.3,
		UncertaintyMarkers: DefaultUncertaintyMarkers,
	}
}

// Validate checks the thresholds
func (c Config) Validate() error {
	switch {
	case c.Base < 0 || c.Base > 1:
		return types.NewError(types.ErrConfiguration, "confidence.config", "base must be within [0, 1]")
	case c.ShortAnswerChars < 0 || c.LongAnswerChars < c.ShortAnswerChars:
		return types.NewError(types.ErrConfiguration, "confidence.config", "answer length thresholds are inverted")
	case c.ManyChunks < 2:
		return types.NewError(types.ErrConfiguration, "confidence.config", "many_chunks must be at least 2")
	case c.LongAnswerBonus < 0 || c.ShortAnswerPenalty < 0 || c.ManyChunksBonus < 0 ||
		c.SingleChunkPenalty < 0 || c.UncertaintyPenalty < 0:
		return types.NewError(types.ErrConfiguration, "confidence.config", "adjustments must be non-negative")
	}
	return nil
}

// Scorer applies the heuristic
type Scorer struct {
	config  Config
	markers []string
}

// NewScorer creates a scorer. Markers are lowercased once here.
func NewScorer(config Config) *Scorer {
	markers := make([]string, 0, len(config.UncertaintyMarkers))
	for _, m := range config.UncertaintyMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	return &Scorer{config: config, markers: markers}
}

// Score rates answer given the number of chunks it was generated from.
// Length is counted in runes.
func (s *Scorer) Score(answer string, chunkCount int) float64 {
	score := s.config.Base

	switch n := utf8.RuneCountInString(answer); {
	case n > s.config.LongAnswerChars:
		score += s.config.LongAnswerBonus
	case n < s.config.ShortAnswerChars:
		score -= s.config.ShortAnswerPenalty
	}

	switch {
	case chunkCount >= s.config.ManyChunks:
		score += s.config.ManyChunksBonus
	case chunkCount == 1:
		score -= s.config.SingleChunkPenalty
	}

	lower := strings.ToLower(answer)
	for _, marker := range s.markers {
		if strings.Contains(lower, marker) {
			score -= s.config.UncertaintyPenalty
			break
		}
	}

	return clamp(score)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
