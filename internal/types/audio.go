package types

import (
	"context"
	"fmt"
	"math"
)

// AudioAsset is a decoded audio resource owned by the acquisition layer.
type AudioAsset struct {
	SourceRef  string  `json:"source_ref"`
	Path       string  `json:"path"`
	Duration   float64 `json:"duration"`
	Title      string  `json:"title"`
	Channel    string  `json:"channel"`
	WebpageURL string  `json:"webpage_url"`
}

type AudioChunk struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (c AudioChunk) Duration() float64 {
	return c.End - c.Start
}

// AudioChunkPlan covers [0, TotalDuration) with contiguous chunks.
type AudioChunkPlan struct {
	Chunks        []AudioChunk `json:"chunks"`
	TotalDuration float64      `json:"total_duration"`
}

// chunkEpsilon absorbs float noise from repeated additions.
const chunkEpsilon = 1e-6

// Validate checks contiguity and exact coverage.
func (p AudioChunkPlan) Validate() error {
	if len(p.Chunks) == 0 {
		return fmt.Errorf("empty chunk plan")
	}
	if p.Chunks[0].Start != 0 {
		return fmt.Errorf("first chunk starts at %.3f, want 0", p.Chunks[0].Start)
	}
	for i, c := range p.Chunks {
		if c.Index != i {
			return fmt.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.End <= c.Start {
			return fmt.Errorf("chunk %d is empty: [%.3f, %.3f)", i, c.Start, c.End)
		}
		if i > 0 && p.Chunks[i-1].End != c.Start {
			return fmt.Errorf("gap between chunk %d and %d: %.3f != %.3f", i-1, i, p.Chunks[i-1].End, c.Start)
		}
	}
	last := p.Chunks[len(p.Chunks)-1]
	if math.Abs(last.End-p.TotalDuration) > chunkEpsilon {
		return fmt.Errorf("last chunk ends at %.3f, want %.3f", last.End, p.TotalDuration)
	}
	return nil
}

// Acquirer fetches source audio and cuts chunk files out of it.
type Acquirer interface {
	Fetch(ctx context.Context, sourceRef string, workDir string) (*AudioAsset, error)
	ExtractChunk(ctx context.Context, asset *AudioAsset, start, end float64, workDir string) (string, error)
}
