// Package assembler offsets per-chunk transcripts into one asset-relative
// transcript and reconciles utterances split across chunk boundaries.
package assembler

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"viral-clipper/internal/types"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
	"viral-clipper/pkg/util"
)

type Options struct {
	// MergeSimilarity is the minimum similarity ratio between the tail of one
	// chunk and the head of the next for them to be treated as the same words.
	MergeSimilarity float64
	// WindowWords caps how many words are compared at a boundary.
	WindowWords int
	// MaxBoundaryGap is the largest silence between the two boundary segments
	// that still allows a merge.
	MaxBoundaryGap float64
	// Tolerance is how far a segment may overrun its chunk before the chunk
	// output is rejected.
	Tolerance float64
}

func DefaultOptions() Options {
	return Options{MergeSimilarity: 0.9, WindowWords: 30, MaxBoundaryGap: 2, Tolerance: 1}
}

// minOverlapRunes keeps single short words ("so", "yeah") from being taken
// as a restated utterance.
const minOverlapRunes = 8

// Assemble builds the global transcript. perChunk must be in plan order.
func Assemble(plan types.AudioChunkPlan, perChunk [][]types.TranscriptSegment, opts Options) (*types.GlobalTranscript, error) {
	if len(perChunk) != len(plan.Chunks) {
		return nil, apperrors.New(apperrors.CodeAssembly,
			fmt.Sprintf("got transcripts for %d chunks, plan has %d", len(perChunk), len(plan.Chunks)))
	}

	global := make([]types.TranscriptSegment, 0, totalLen(perChunk))
	merges := 0
	for i, chunk := range plan.Chunks {
		shifted, err := offsetChunk(chunk, perChunk[i], opts.Tolerance)
		if err != nil {
			return nil, err
		}
		if len(shifted) == 0 {
			continue
		}
		if i > 0 && len(global) > 0 {
			last := global[len(global)-1]
			if merged, ok := mergeBoundary(last, shifted[0], opts); ok {
				global[len(global)-1] = merged
				shifted = shifted[1:]
				merges++
			}
		}
		global = append(global, shifted...)
	}

	global = foldContained(global, opts)
	if err := checkOrdered(global); err != nil {
		return nil, err
	}

	log.GetLogger().Debug("transcript assembled",
		zap.Int("chunks", len(plan.Chunks)),
		zap.Int("segments", len(global)),
		zap.Int("boundary_merges", merges))

	return &types.GlobalTranscript{Segments: global, TotalDuration: plan.TotalDuration}, nil
}

// offsetChunk moves chunk-relative segments to asset time. Segments that
// leave the chunk by more than tolerance violate the backend contract.
func offsetChunk(chunk types.AudioChunk, segments []types.TranscriptSegment, tolerance float64) ([]types.TranscriptSegment, error) {
	length := chunk.Duration()
	out := make([]types.TranscriptSegment, 0, len(segments))
	var edge []types.TranscriptSegment
	for _, s := range segments {
		if s.Start < -tolerance || s.End > length+tolerance || s.End <= s.Start || math.IsNaN(s.Start) || math.IsNaN(s.End) {
			return nil, apperrors.WrapWithDetail(apperrors.CodeAssembly, "segment outside chunk range",
				fmt.Sprintf("chunk %d length %.3fs", chunk.Index, length),
				fmt.Errorf("segment [%.3f, %.3f) %q", s.Start, s.End, s.Text))
		}
		s.Start = clamp(s.Start, length) + chunk.Start
		s.End = clamp(s.End, length) + chunk.Start
		if s.End <= s.Start {
			edge = append(edge, s)
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	// segments squeezed to nothing at a chunk edge keep their words in the
	// neighbouring segment
	for _, s := range edge {
		if len(out) == 0 {
			return nil, apperrors.WrapWithDetail(apperrors.CodeAssembly, "segment collapses at chunk edge",
				fmt.Sprintf("chunk %d length %.3fs", chunk.Index, length),
				fmt.Errorf("segment at %.3f %q", s.Start, s.Text))
		}
		if s.Start <= out[0].Start {
			out[0].Text = joinText(s.Text, out[0].Text)
		} else {
			last := len(out) - 1
			out[last].Text = joinText(out[last].Text, s.Text)
		}
	}
	return out, nil
}

func clamp(v, length float64) float64 {
	return math.Min(math.Max(v, 0), length)
}

func joinText(a, b string) string {
	return strings.TrimSpace(strings.TrimSpace(a) + " " + strings.TrimSpace(b))
}

type word struct {
	raw  string
	norm string
}

func splitWords(text string) []word {
	var words []word
	for _, w := range strings.Fields(text) {
		if n := util.NormalizeText(w); n != "" {
			words = append(words, word{raw: w, norm: n})
		}
	}
	return words
}

func joinNorm(words []word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.norm
	}
	return strings.Join(parts, " ")
}

// boundaryOverlap finds the longest run of words ending prev that restates
// the words starting next. Word counts may differ by one on each side
// ("that's" against "that is"). It returns the word counts used on each side,
// or zeros when nothing matches.
func boundaryOverlap(prev, next []word, opts Options) (int, int) {
	limit := len(prev)
	if opts.WindowWords > 0 {
		limit = min(limit, opts.WindowWords)
	}
	for k := limit; k > 0; k-- {
		tail := joinNorm(prev[len(prev)-k:])
		if len([]rune(tail)) < minOverlapRunes {
			return 0, 0
		}
		for _, j := range []int{k, k - 1, k + 1} {
			if j < 1 || j > len(next) {
				continue
			}
			head := joinNorm(next[:j])
			if len([]rune(head)) < minOverlapRunes {
				continue
			}
			if util.SimilarityRatio(tail, head) >= opts.MergeSimilarity {
				return k, j
			}
		}
	}
	return 0, 0
}

// mergeBoundary joins the last segment of one chunk with the first of the
// next when they restate the same words. When one side is restated entirely
// the longer text is kept; otherwise the unrepeated remainder of next is
// appended so no words are lost.
func mergeBoundary(prev, next types.TranscriptSegment, opts Options) (types.TranscriptSegment, bool) {
	if next.Start-prev.End > opts.MaxBoundaryGap {
		return types.TranscriptSegment{}, false
	}
	pw, nw := splitWords(prev.Text), splitWords(next.Text)
	k, j := boundaryOverlap(pw, nw, opts)
	if k == 0 {
		return types.TranscriptSegment{}, false
	}

	merged := types.TranscriptSegment{
		Start: math.Min(prev.Start, next.Start),
		End:   math.Max(prev.End, next.End),
	}
	switch {
	case k == len(pw) || j == len(nw):
		merged.Text = longer(prev.Text, next.Text)
	default:
		rest := make([]string, 0, len(nw)-j)
		for _, w := range nw[j:] {
			rest = append(rest, w.raw)
		}
		merged.Text = strings.TrimSpace(prev.Text) + " " + strings.Join(rest, " ")
	}
	return merged, true
}

// foldContained collapses pairs where one range contains the other, keeping
// the words of both unless one only repeats the other.
func foldContained(segments []types.TranscriptSegment, opts Options) []types.TranscriptSegment {
	out := make([]types.TranscriptSegment, 0, len(segments))
	for _, s := range segments {
		if n := len(out); n > 0 {
			prev := &out[n-1]
			inside := s.Start >= prev.Start && s.End <= prev.End
			covers := s.Start == prev.Start && s.End > prev.End
			if inside || covers {
				if !restates(prev.Text, s.Text, opts) {
					prev.Text = strings.TrimSpace(prev.Text) + " " + strings.TrimSpace(s.Text)
				} else {
					prev.Text = longer(prev.Text, s.Text)
				}
				prev.End = math.Max(prev.End, s.End)
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func restates(a, b string, opts Options) bool {
	na, nb := util.NormalizeText(a), util.NormalizeText(b)
	return util.SimilarityRatio(na, nb) >= opts.MergeSimilarity || strings.Contains(na, nb) || strings.Contains(nb, na)
}

func checkOrdered(segments []types.TranscriptSegment) error {
	for i := 1; i < len(segments); i++ {
		if segments[i].Start < segments[i-1].Start {
			return apperrors.New(apperrors.CodeAssembly,
				fmt.Sprintf("segment %d starts at %.3f before previous start %.3f", i, segments[i].Start, segments[i-1].Start))
		}
	}
	return nil
}

func longer(a, b string) string {
	if len([]rune(strings.TrimSpace(b))) > len([]rune(strings.TrimSpace(a))) {
		return strings.TrimSpace(b)
	}
	return strings.TrimSpace(a)
}

func totalLen(perChunk [][]types.TranscriptSegment) int {
	n := 0
	for _, c := range perChunk {
		n += len(c)
	}
	return n
}
