package ranker

import (
	"cmp"
	"math"
	"slices"

	"github.com/samber/lo"

	"viral-clipper/internal/types"
)

type Options struct {
	// OverlapFraction of the shorter clip above which two clips are duplicates.
	OverlapFraction float64
}

func DefaultOptions() Options {
	return Options{OverlapFraction: 0.5}
}

// Rank drops temporal duplicates, orders by score then start, numbers the
// survivors from 1 and keeps at most maxClips of them (all when maxClips <= 0).
func Rank(clips []types.ValidatedClip, opts Options, maxClips int) []types.RankedClip {
	ordered := slices.Clone(clips)
	slices.SortStableFunc(ordered, compare)

	kept := make([]types.ValidatedClip, 0, len(ordered))
	for _, c := range ordered {
		if lo.SomeBy(kept, func(k types.ValidatedClip) bool { return Duplicate(k, c, opts.OverlapFraction) }) {
			continue
		}
		kept = append(kept, c)
	}

	if maxClips > 0 && len(kept) > maxClips {
		kept = kept[:maxClips]
	}
	return lo.Map(kept, func(c types.ValidatedClip, i int) types.RankedClip {
		return types.RankedClip{ValidatedClip: c, Rank: i + 1}
	})
}

func compare(a, b types.ValidatedClip) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	return cmp.Compare(a.End, b.End)
}

// Duplicate reports whether a and b overlap by more than fraction of the
// shorter one.
func Duplicate(a, b types.ValidatedClip, fraction float64) bool {
	overlap := math.Min(a.End, b.End) - math.Max(a.Start, b.Start)
	if overlap <= 0 {
		return false
	}
	shorter := math.Min(a.End-a.Start, b.End-b.Start)
	return overlap > fraction*shorter
}
