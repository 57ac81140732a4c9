// Package chunker splits long audio into transcription sized pieces and
// materializes them one at a time.
package chunker

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"go.uber.org/zap"

	"viral-clipper/internal/types"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

type Options struct {
	// Threshold is the longest asset transcribed as one chunk.
	Threshold float64
	// ChunkSize is the target length of each chunk when splitting.
	ChunkSize float64
	// MinChunk is the shortest trailing chunk; shorter remainders are merged
	// into the previous chunk.
	MinChunk float64
}

func DefaultOptions() Options {
	return Options{Threshold: 600, ChunkSize: 600, MinChunk: 30}
}

// Plan computes the chunk layout for an asset of the given duration.
func Plan(total float64, opts Options) (types.AudioChunkPlan, error) {
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return types.AudioChunkPlan{}, apperrors.New(apperrors.CodeChunkPlan, fmt.Sprintf("invalid asset duration %v", total))
	}
	if opts.ChunkSize <= 0 || opts.Threshold <= 0 {
		return types.AudioChunkPlan{}, apperrors.New(apperrors.CodeChunkPlan, "chunk sizes must be positive")
	}
	if opts.ChunkSize > opts.Threshold {
		opts.ChunkSize = opts.Threshold
	}

	plan := types.AudioChunkPlan{TotalDuration: total}
	if total <= opts.Threshold {
		plan.Chunks = []types.AudioChunk{{Index: 0, Start: 0, End: total}}
		return plan, nil
	}

	count := int(math.Ceil(total / opts.ChunkSize))
	for i := 0; i < count; i++ {
		start := float64(i) * opts.ChunkSize
		end := math.Min(float64(i+1)*opts.ChunkSize, total)
		plan.Chunks = append(plan.Chunks, types.AudioChunk{Index: i, Start: start, End: end})
	}

	// The last chunk always ends exactly at total; a degenerate tail is folded
	// into its predecessor.
	if n := len(plan.Chunks); n > 1 && plan.Chunks[n-1].Duration() < opts.MinChunk {
		plan.Chunks[n-2].End = total
		plan.Chunks = plan.Chunks[:n-1]
	}
	plan.Chunks[len(plan.Chunks)-1].End = total

	if err := plan.Validate(); err != nil {
		return types.AudioChunkPlan{}, apperrors.Wrap(apperrors.CodeChunkPlan, "inconsistent chunk plan", err)
	}
	return plan, nil
}

// ChunkFile is a materialized chunk. Release removes the backing file; it is
// safe to call more than once.
type ChunkFile struct {
	Chunk types.AudioChunk
	Path  string
	Size  int64

	owned   bool
	release sync.Once
}

func (f *ChunkFile) Release() {
	if f == nil || !f.owned {
		return
	}
	f.release.Do(func() {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			log.GetLogger().Warn("failed to remove chunk file", zap.String("path", f.Path), zap.Error(err))
		}
	})
}

// Materializer produces chunk files through the acquisition layer.
type Materializer struct {
	Acquirer types.Acquirer
	WorkDir  string
}

// Open materializes one chunk. A chunk spanning the whole asset reuses the
// asset file and is never deleted on release.
func (m *Materializer) Open(ctx context.Context, asset *types.AudioAsset, chunk types.AudioChunk, whole bool) (*ChunkFile, error) {
	if whole {
		return &ChunkFile{Chunk: chunk, Path: asset.Path, Size: fileSize(asset.Path)}, nil
	}
	path, err := m.Acquirer.ExtractChunk(ctx, asset, chunk.Start, chunk.End, m.WorkDir)
	if err != nil {
		return nil, err
	}
	return &ChunkFile{Chunk: chunk, Path: path, Size: fileSize(path), owned: true}, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
