package types

import (
	"context"
	"strings"

	"github.com/samber/lo"
)

// TranscriptSegment is one timestamped unit of speech. Times are chunk
// relative when produced by a backend and asset relative once assembled.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (s TranscriptSegment) Valid() bool {
	return s.Start >= 0 && s.Start < s.End && strings.TrimSpace(s.Text) != ""
}

func (s TranscriptSegment) Duration() float64 {
	return s.End - s.Start
}

// GlobalTranscript is built once per run and never mutated afterwards.
type GlobalTranscript struct {
	Segments      []TranscriptSegment `json:"segments"`
	TotalDuration float64             `json:"total_duration"`
}

// TextBetween joins the text of every segment overlapping [start, end).
func (g *GlobalTranscript) TextBetween(start, end float64) string {
	var parts []string
	for _, seg := range g.Segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		parts = append(parts, strings.TrimSpace(seg.Text))
	}
	return strings.Join(parts, " ")
}

func (g *GlobalTranscript) Text() string {
	return g.TextBetween(0, g.TotalDuration+1)
}

// TranscriptionBackend turns one local audio file into segments.
type TranscriptionBackend interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string) ([]TranscriptSegment, error)
}

// WhisperModels lists the local model tiers from fastest to most accurate.
var WhisperModels = []string{"tiny", "base", "small", "medium", "large"}

func IsWhisperModel(name string) bool {
	return lo.Contains(WhisperModels, name)
}
