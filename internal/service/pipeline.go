package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"viral-clipper/internal/appcore"
	"viral-clipper/internal/assembler"
	"viral-clipper/internal/chunker"
	"viral-clipper/internal/dto"
	"viral-clipper/internal/extractor"
	"viral-clipper/internal/ranker"
	"viral-clipper/internal/transcriber"
	"viral-clipper/internal/types"
	"viral-clipper/internal/validator"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
	"viral-clipper/pkg/util"
)

// Stage names attached to errors leaving the pipeline.
const (
	StageAcquire    = "acquire"
	StageChunk      = "chunk"
	StageTranscribe = "transcribe"
	StageAssemble   = "assemble"
	StageExtract    = "extract"
	StageValidate   = "validate"
	StageRank       = "rank"
)

// ProgressFunc receives coarse progress updates. It must not block.
type ProgressFunc func(stage appcore.JobStage, message string)

// Analyzer is the single operation exposed to the CLI, HTTP and queue layers.
type Analyzer interface {
	Analyze(ctx context.Context, sourceRef string, cfg dto.AnalyzeConfig, progress ProgressFunc) (*types.RankedResult, error)
}

type Options struct {
	Chunk    chunker.Options
	Assemble assembler.Options
	Validate validator.Options
	Rank     ranker.Options
	// CandidateCount is how many moments the oracle is asked for; never
	// fewer than the requested clip count.
	CandidateCount int
	Concurrency    int
	RunTimeout     time.Duration
	WorkRoot       string
}

func DefaultOptions() Options {
	return Options{
		Chunk:          chunker.DefaultOptions(),
		Assemble:       assembler.DefaultOptions(),
		Validate:       validator.DefaultOptions(),
		Rank:           ranker.DefaultOptions(),
		CandidateCount: 8,
		Concurrency:    2,
		WorkRoot:       os.TempDir(),
	}
}

// Service runs the clip pipeline. All collaborators are injected; nothing is
// shared between runs except the transcriber's rate limits.
type Service struct {
	Acquirer    types.Acquirer
	Transcriber *transcriber.Transcriber
	// LocalBackend builds the fallback backend for a whisper model tier.
	LocalBackend func(model string) types.TranscriptionBackend
	Extractor    *extractor.Extractor
	Opts         Options
}

var _ Analyzer = (*Service)(nil)

func (s *Service) Analyze(ctx context.Context, sourceRef string, cfg dto.AnalyzeConfig, progress ProgressFunc) (*types.RankedResult, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParams, "source url is required")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(appcore.JobStage, string) {}
	}
	if s.Opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Opts.RunTimeout)
		defer cancel()
	}

	runID := uuid.New().String()
	logger := log.GetLogger().With(zap.String("run_id", runID), zap.String("source", sourceRef))

	workDir := filepath.Join(s.Opts.WorkRoot, runID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeFileWriteError, "create run directory", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to remove run directory", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	started := time.Now()
	result, err := s.run(ctx, sourceRef, cfg, workDir, progress, logger)
	if err != nil {
		logger.Error("analysis failed",
			zap.String("kind", apperrors.Kind(err)),
			zap.String("stage", apperrors.GetStage(err)),
			zap.Error(err))
		return nil, err
	}
	logger.Info("analysis finished",
		zap.Int("clips", len(result.Clips)),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (s *Service) run(ctx context.Context, sourceRef string, cfg dto.AnalyzeConfig, workDir string, progress ProgressFunc, logger *zap.Logger) (*types.RankedResult, error) {
	progress(appcore.JobStageAcquiring, "fetching audio")
	asset, err := s.Acquirer.Fetch(ctx, sourceRef, workDir)
	if err != nil {
		return nil, stageError(ctx, err, StageAcquire)
	}
	logger.Info("audio acquired", zap.String("title", asset.Title), zap.Float64("duration", asset.Duration))

	plan, err := chunker.Plan(asset.Duration, s.Opts.Chunk)
	if err != nil {
		return nil, stageError(ctx, err, StageChunk)
	}

	progress(appcore.JobStageTranscribing, fmt.Sprintf("transcribing %d chunk(s)", len(plan.Chunks)))
	tr := s.Transcriber
	if s.LocalBackend != nil {
		tr = tr.WithFallback(s.LocalBackend(cfg.WhisperModel))
	}
	opener := &chunker.Materializer{Acquirer: s.Acquirer, WorkDir: workDir}
	perChunk, err := tr.TranscribeChunks(ctx, asset, plan, opener, s.Opts.Concurrency)
	if err != nil {
		return nil, stageError(ctx, err, StageTranscribe)
	}

	transcript, err := assembler.Assemble(plan, perChunk, s.Opts.Assemble)
	if err != nil {
		return nil, stageError(ctx, err, StageAssemble)
	}
	logger.Info("transcript assembled", zap.Int("segments", len(transcript.Segments)))

	progress(appcore.JobStageAnalyzing, "finding viral moments")
	meta := sourceMeta(asset, sourceRef)
	candidates, err := s.proposeCandidates(ctx, transcript, meta, cfg, logger)
	if err != nil {
		return nil, stageError(ctx, err, StageExtract)
	}

	vopts := s.Opts.Validate
	vopts.MinDuration, vopts.MaxDuration = cfg.MinDuration, cfg.MaxDuration
	clips, rejected := validator.Validate(candidates, transcript, vopts)
	for _, r := range rejected {
		logger.Info("candidate rejected",
			zap.Float64("start", r.Candidate.Start),
			zap.Float64("end", r.Candidate.End),
			zap.String("reason", r.Reason))
	}
	if len(candidates) > 0 && len(clips) == 0 {
		noClips := *apperrors.ErrNoValidClips
		noClips.Detail = fmt.Sprintf("%d candidate(s) proposed, none valid", len(candidates))
		return nil, stageError(ctx, &noClips, StageValidate)
	}

	ranked := ranker.Rank(clips, s.Opts.Rank, cfg.MaxClips)

	// a run canceled after the last stage still returns nothing
	if ctx.Err() != nil {
		return nil, stageError(ctx, ctx.Err(), StageRank)
	}
	return &types.RankedResult{Source: meta, Clips: ranked, Transcript: transcript}, nil
}

// proposeCandidates asks the oracle once and, on a malformed reply, once more
// with the strict prompt.
func (s *Service) proposeCandidates(ctx context.Context, transcript *types.GlobalTranscript, meta types.SourceMeta, cfg dto.AnalyzeConfig, logger *zap.Logger) ([]types.CandidateMoment, error) {
	req := extractor.Request{
		Meta:        meta,
		Count:       max(s.Opts.CandidateCount, cfg.MaxClips),
		MinDuration: cfg.MinDuration,
		MaxDuration: cfg.MaxDuration,
	}

	res, err := s.Extractor.Extract(ctx, transcript, req)
	if err != nil {
		return nil, err
	}
	if bad, ok := res.(extractor.Malformed); ok {
		logger.Warn("malformed oracle reply, retrying with strict prompt", zap.String("reason", bad.Reason))
		req.Strict = true
		if res, err = s.Extractor.Extract(ctx, transcript, req); err != nil {
			return nil, err
		}
	}

	switch r := res.(type) {
	case extractor.Ok:
		logger.Info("oracle proposed candidates", zap.Int("count", len(r.Candidates)))
		return r.Candidates, nil
	case extractor.Malformed:
		detail := r.Reason + "; reply: " + util.TruncateRunes(r.Raw, 300, "...")
		return nil, apperrors.WrapWithDetail(apperrors.CodeMalformedOracleResponse, "oracle reply unusable after strict retry", detail, nil)
	default:
		return nil, apperrors.New(apperrors.CodeUnknown, fmt.Sprintf("unexpected extractor result %T", res))
	}
}

func sourceMeta(asset *types.AudioAsset, sourceRef string) types.SourceMeta {
	url := asset.WebpageURL
	if url == "" {
		url = sourceRef
	}
	return types.SourceMeta{
		Title:     asset.Title,
		URL:       url,
		Channel:   asset.Channel,
		Duration:  asset.Duration,
		SourceRef: sourceRef,
	}
}

// stageError maps a failure seen after cancellation to CodeCanceled and
// annotates it with stage.
func stageError(ctx context.Context, err error, stage string) error {
	if ctx.Err() != nil && !apperrors.Is(err, apperrors.CodeCanceled) {
		err = apperrors.Wrap(apperrors.CodeCanceled, "run canceled", ctx.Err())
	}
	return apperrors.WithStage(err, stage)
}
