package transcriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"viral-clipper/internal/chunker"
	"viral-clipper/internal/types"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

// ChunkOpener materializes one planned chunk as a local file.
type ChunkOpener interface {
	Open(ctx context.Context, asset *types.AudioAsset, chunk types.AudioChunk, whole bool) (*chunker.ChunkFile, error)
}

// TranscribeChunks transcribes every chunk of plan with at most concurrency
// chunks in flight. Results are indexed by chunk, so completion order never
// affects the output. Each chunk file is released as soon as its own
// transcription ends. The first failure cancels the remaining work.
func (t *Transcriber) TranscribeChunks(ctx context.Context, asset *types.AudioAsset, plan types.AudioChunkPlan, opener ChunkOpener, concurrency int) ([][]types.TranscriptSegment, error) {
	results := make([][]types.TranscriptSegment, len(plan.Chunks))
	whole := len(plan.Chunks) == 1

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i, chunk := range plan.Chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()

			file, err := opener.Open(gctx, asset, chunk, whole)
			if err != nil {
				return err
			}
			defer file.Release()

			segments, err := t.Transcribe(gctx, file.Path, file.Size)
			if err != nil {
				var appErr *apperrors.AppError
				if errors.As(err, &appErr) && appErr.Detail == "" {
					annotated := *appErr
					annotated.Detail = fmt.Sprintf("chunk %d [%.1fs, %.1fs)", chunk.Index, chunk.Start, chunk.End)
					return &annotated
				}
				return err
			}
			results[i] = segments

			log.GetLogger().Info("chunk transcribed",
				zap.Int("chunk", chunk.Index),
				zap.Int("segments", len(segments)),
				zap.Duration("took", time.Since(start)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.CodeCanceled, "transcription canceled", ctx.Err())
		}
		return nil, err
	}
	return results, nil
}
