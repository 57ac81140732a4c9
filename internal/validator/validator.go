package validator

import (
	"fmt"
	"math"
	"unicode/utf8"

	"viral-clipper/internal/types"
	"viral-clipper/pkg/util"
)

type Options struct {
	MinDuration   float64
	MaxDuration   float64
	MinScore      float64
	SnapTolerance float64
}

func DefaultOptions() Options {
	return Options{
		MinDuration:   25,
		MaxDuration:   65,
		MinScore:      0.5,
		SnapTolerance: 3,
	}
}

// Rejection records why a candidate was dropped.
type Rejection struct {
	Candidate types.CandidateMoment
	Reason    string
}

// Validate turns raw candidates into clips whose boundaries sit on segment
// boundaries and whose duration lies in [MinDuration, MaxDuration]. Input is
// not modified.
func Validate(cands []types.CandidateMoment, transcript *types.GlobalTranscript, opts Options) ([]types.ValidatedClip, []Rejection) {
	var (
		clips    []types.ValidatedClip
		rejected []Rejection
	)
	for _, c := range cands {
		clip, reason := validateOne(c, transcript, opts)
		if reason != "" {
			rejected = append(rejected, Rejection{Candidate: c, Reason: reason})
			continue
		}
		clips = append(clips, clip)
	}
	return clips, rejected
}

func validateOne(c types.CandidateMoment, transcript *types.GlobalTranscript, opts Options) (types.ValidatedClip, string) {
	total := transcript.TotalDuration
	segs := transcript.Segments

	if math.IsNaN(c.Start) || math.IsNaN(c.End) || c.Start >= c.End {
		return types.ValidatedClip{}, "start is not before end"
	}
	if c.Start < 0 || c.Start >= total || c.End > total+opts.SnapTolerance {
		return types.ValidatedClip{}, fmt.Sprintf("range [%.1f, %.1f) outside [0, %.1f)", c.Start, c.End, total)
	}
	if len(segs) == 0 {
		return types.ValidatedClip{}, "transcript has no segments"
	}

	start, end := c.Start, math.Min(c.End, total)
	ok := true
	switch d := end - start; {
	case d < opts.MinDuration:
		if start, end, ok = extend(segs, start, end, total, opts); !ok {
			return types.ValidatedClip{}, fmt.Sprintf("%.1fs is too short and cannot be extended", d)
		}
	case d > opts.MaxDuration:
		if start, end, ok = trim(segs, start, end, opts); !ok {
			return types.ValidatedClip{}, fmt.Sprintf("%.1fs is too long and has no window at segment boundaries", d)
		}
	}

	if start, end, ok = snap(segs, start, end, opts); !ok {
		return types.ValidatedClip{}, fmt.Sprintf("no segment boundaries within %.1fs of [%.1f, %.1f)", opts.SnapTolerance, start, end)
	}

	if c.Score < opts.MinScore {
		return types.ValidatedClip{}, fmt.Sprintf("score %.2f below %.2f", c.Score, opts.MinScore)
	}

	clip := types.ValidatedClip{CandidateMoment: c, Duration: end - start}
	clip.Start, clip.End = start, end
	return clip, ""
}

// extend pushes end to the first sentence end past the minimum. When the
// video ends first, start is pulled back to a sentence start instead.
func extend(segs []types.TranscriptSegment, start, end, total float64, opts Options) (float64, float64, bool) {
	target := start + opts.MinDuration
	sentenceEnd, anyEnd := math.Inf(1), math.Inf(1)
	for _, seg := range segs {
		if seg.End < target || seg.End > total || seg.End-start > opts.MaxDuration {
			continue
		}
		anyEnd = math.Min(anyEnd, seg.End)
		if util.EndsSentence(seg.Text) {
			sentenceEnd = math.Min(sentenceEnd, seg.End)
		}
	}
	if !math.IsInf(sentenceEnd, 1) {
		return start, sentenceEnd, true
	}
	if !math.IsInf(anyEnd, 1) {
		return start, anyEnd, true
	}

	floor := end - opts.MinDuration
	sentenceStart, anyStart := math.Inf(-1), math.Inf(-1)
	for i, seg := range segs {
		if seg.Start > floor || end-seg.Start > opts.MaxDuration {
			continue
		}
		anyStart = math.Max(anyStart, seg.Start)
		if i == 0 || util.EndsSentence(segs[i-1].Text) {
			sentenceStart = math.Max(sentenceStart, seg.Start)
		}
	}
	if !math.IsInf(sentenceStart, -1) {
		return sentenceStart, end, true
	}
	if !math.IsInf(anyStart, -1) {
		return anyStart, end, true
	}
	return start, end, false
}

// trim picks the window of whole segments inside the range carrying the most
// text, preferring the one centered closest to the original range.
func trim(segs []types.TranscriptSegment, start, end float64, opts Options) (float64, float64, bool) {
	lo, hi := start-opts.SnapTolerance, end+opts.SnapTolerance
	center := (start + end) / 2

	found := false
	var bestStart, bestEnd, bestOffset float64
	bestText := -1
	for i, first := range segs {
		if first.Start < lo || first.Start > end {
			continue
		}
		text := 0
		for _, last := range segs[i:] {
			if last.End > hi || last.End-first.Start > opts.MaxDuration {
				break
			}
			text += utf8.RuneCountInString(last.Text)
			if last.End-first.Start < opts.MinDuration {
				continue
			}
			offset := math.Abs((first.Start+last.End)/2 - center)
			if text > bestText || (text == bestText && offset < bestOffset) {
				found = true
				bestStart, bestEnd, bestText, bestOffset = first.Start, last.End, text, offset
			}
		}
	}
	return bestStart, bestEnd, found
}

// snap moves start onto a segment start and end onto a segment end, each
// within tolerance, choosing the closest pair that keeps the duration legal.
func snap(segs []types.TranscriptSegment, start, end float64, opts Options) (float64, float64, bool) {
	var starts, ends []float64
	for _, seg := range segs {
		if math.Abs(seg.Start-start) <= opts.SnapTolerance {
			starts = append(starts, seg.Start)
		}
		if math.Abs(seg.End-end) <= opts.SnapTolerance {
			ends = append(ends, seg.End)
		}
	}

	found := false
	bestCost := math.Inf(1)
	var bestStart, bestEnd float64
	for _, s := range starts {
		for _, e := range ends {
			d := e - s
			if d < opts.MinDuration || d > opts.MaxDuration {
				continue
			}
			if cost := math.Abs(s-start) + math.Abs(e-end); cost < bestCost {
				found = true
				bestCost, bestStart, bestEnd = cost, s, e
			}
		}
	}
	if !found {
		return start, end, false
	}
	return bestStart, bestEnd, true
}
