// Package extractor asks the judgment oracle for candidate moments and turns
// its untrusted reply into either a candidate list or a malformed verdict.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"viral-clipper/internal/types"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
	"viral-clipper/pkg/util"
)

// Result is either Ok or Malformed.
type Result interface {
	isResult()
}

type Ok struct {
	Candidates []types.CandidateMoment
}

// Malformed carries the raw reply so callers can log or retry.
type Malformed struct {
	Raw    string
	Reason string
}

func (Ok) isResult()        {}
func (Malformed) isResult() {}

type Request struct {
	Meta        types.SourceMeta
	Count       int
	MinDuration float64
	MaxDuration float64
	Strict      bool
}

type Extractor struct {
	oracle types.ChatCompleter
}

func New(oracle types.ChatCompleter) *Extractor {
	return &Extractor{oracle: oracle}
}

// Extract performs exactly one oracle call. The returned error is only set
// when the call itself failed; an unusable reply is reported as Malformed.
func (e *Extractor) Extract(ctx context.Context, transcript *types.GlobalTranscript, req Request) (Result, error) {
	prompt := BuildPrompt(transcript, req)
	log.GetLogger().Debug("requesting candidates",
		zap.Int("count", req.Count),
		zap.Bool("strict", req.Strict),
		zap.Int("prompt_chars", len(prompt)))

	raw, err := e.oracle.ChatCompletion(ctx, types.OracleSystemPrompt, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.CodeCanceled, "oracle call canceled", ctx.Err())
		}
		if apperrors.GetCode(err) == apperrors.CodeUnknown {
			return nil, apperrors.Wrap(apperrors.CodeOracle, "oracle call failed", err)
		}
		return nil, err
	}
	return Parse(raw), nil
}

func BuildPrompt(transcript *types.GlobalTranscript, req Request) string {
	prompt := fmt.Sprintf(types.CandidatePromptTemplate,
		req.Meta.Title, req.Meta.Channel, req.Meta.Duration,
		req.Count,
		req.MinDuration, req.MaxDuration,
		req.MinDuration, req.MaxDuration,
		FormatTranscript(transcript))
	if req.Strict {
		prompt += types.StrictRetrySuffix
	}
	return prompt
}

// FormatTranscript renders one "[HH:MM:SS - HH:MM:SS] text" line per segment.
func FormatTranscript(transcript *types.GlobalTranscript) string {
	if transcript == nil {
		return ""
	}
	var b strings.Builder
	for i, seg := range transcript.Segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s - %s] %s",
			util.FormatTimecode(seg.Start), util.FormatTimecode(seg.End), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

type envelope struct {
	Candidates   []map[string]json.RawMessage `json:"candidates"`
	ViralMoments []map[string]json.RawMessage `json:"viral_moments"`
}

// field aliases accepted from the oracle, canonical name first.
var (
	startKeys     = []string{"start", "start_time", "start_seconds"}
	endKeys       = []string{"end", "end_time", "end_seconds"}
	hookKeys      = []string{"hook", "title"}
	scoreKeys     = []string{"score", "virality_score"}
	rationaleKeys = []string{"rationale", "reasoning", "why_viral"}
)

// Parse locates the JSON object in raw and checks every candidate field.
func Parse(raw string) Result {
	obj, ok := util.ExtractJsonObject(raw)
	if !ok {
		return Malformed{Raw: raw, Reason: "no JSON object in reply"}
	}

	var env envelope
	if err := json.Unmarshal([]byte(obj), &env); err != nil {
		return Malformed{Raw: raw, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	items := env.Candidates
	if items == nil {
		items = env.ViralMoments
	}
	if items == nil {
		return Malformed{Raw: raw, Reason: `missing "candidates" array`}
	}

	candidates := make([]types.CandidateMoment, 0, len(items))
	for i, item := range items {
		c, err := parseCandidate(item)
		if err != nil {
			return Malformed{Raw: raw, Reason: fmt.Sprintf("candidate %d: %v", i, err)}
		}
		candidates = append(candidates, c)
	}
	return Ok{Candidates: candidates}
}

func parseCandidate(item map[string]json.RawMessage) (types.CandidateMoment, error) {
	var c types.CandidateMoment
	var err error

	if c.Start, err = timeField(item, startKeys); err != nil {
		return c, err
	}
	if c.End, err = timeField(item, endKeys); err != nil {
		return c, err
	}
	if c.Hook, err = stringField(item, hookKeys); err != nil {
		return c, err
	}
	if c.Rationale, err = stringField(item, rationaleKeys); err != nil {
		return c, err
	}

	raw, name, ok := lookup(item, scoreKeys)
	if !ok {
		return c, fmt.Errorf("missing %q", scoreKeys[0])
	}
	if err = json.Unmarshal(raw, &c.Score); err != nil {
		return c, fmt.Errorf("%q must be a number", name)
	}
	if c.Score < 0 || c.Score > 1 {
		return c, fmt.Errorf("%q %.3f outside [0, 1]", name, c.Score)
	}
	return c, nil
}

func lookup(item map[string]json.RawMessage, keys []string) (json.RawMessage, string, bool) {
	for _, k := range keys {
		if v, ok := item[k]; ok && string(v) != "null" {
			return v, k, true
		}
	}
	return nil, "", false
}

// timeField accepts seconds as a number or a timecode string.
func timeField(item map[string]json.RawMessage, keys []string) (float64, error) {
	raw, name, ok := lookup(item, keys)
	if !ok {
		return 0, fmt.Errorf("missing %q", keys[0])
	}
	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err == nil {
		return seconds, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, fmt.Errorf("%q must be seconds or a timecode", name)
	}
	seconds, err := util.ParseTimecode(text)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", name, err)
	}
	return seconds, nil
}

func stringField(item map[string]json.RawMessage, keys []string) (string, error) {
	raw, name, ok := lookup(item, keys)
	if !ok {
		return "", fmt.Errorf("missing %q", keys[0])
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%q must be a string", name)
	}
	return strings.TrimSpace(s), nil
}
