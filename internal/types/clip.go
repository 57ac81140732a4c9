package types

import "context"

// CandidateMoment is an unvalidated oracle proposal.
type CandidateMoment struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Hook      string  `json:"hook"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

type ValidatedClip struct {
	CandidateMoment
	Duration float64 `json:"duration"`
}

type RankedClip struct {
	ValidatedClip
	Rank int `json:"rank"`
}

// SourceMeta describes the analysed source for the result envelope.
type SourceMeta struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Channel   string  `json:"channel"`
	Duration  float64 `json:"duration"`
	SourceRef string  `json:"source_ref"`
}

// RankedResult is the terminal artifact of one analysis run.
type RankedResult struct {
	Source     SourceMeta        `json:"source"`
	Clips      []RankedClip      `json:"clips"`
	Transcript *GlobalTranscript `json:"transcript,omitempty"`
}

// ChatCompleter is the judgment oracle transport.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
