// Package transcriber turns chunk audio into chunk-relative segments using a
// remote primary backend with a local fallback.
package transcriber

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"viral-clipper/internal/types"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

type Options struct {
	// MaxPrimaryBytes is the primary backend's upload limit; 0 disables the check.
	MaxPrimaryBytes int64
	MaxRetries      int
	InitialBackoff  time.Duration
	// RequestsPerMinute throttles primary calls; 0 disables throttling.
	RequestsPerMinute int
	// FallbackConcurrency bounds simultaneous local model runs.
	FallbackConcurrency int
}

func DefaultOptions() Options {
	return Options{
		MaxPrimaryBytes:     25 << 20,
		MaxRetries:          3,
		InitialBackoff:      time.Second,
		RequestsPerMinute:   50,
		FallbackConcurrency: 1,
	}
}

type Transcriber struct {
	Primary  types.TranscriptionBackend
	Fallback types.TranscriptionBackend

	opts        Options
	limiter     *rate.Limiter
	fallbackSem chan struct{}
}

// New builds a transcriber. Either backend may be nil but not both.
func New(primary, fallback types.TranscriptionBackend, opts Options) *Transcriber {
	t := &Transcriber{Primary: primary, Fallback: fallback, opts: opts}
	if opts.RequestsPerMinute > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60), 1)
	}
	if opts.FallbackConcurrency <= 0 {
		opts.FallbackConcurrency = 1
	}
	t.fallbackSem = make(chan struct{}, opts.FallbackConcurrency)
	return t
}

// WithFallback returns a copy of t using fallback as its local backend. The
// copy shares t's rate limiter and fallback slots.
func (t *Transcriber) WithFallback(fallback types.TranscriptionBackend) *Transcriber {
	c := *t
	c.Fallback = fallback
	return &c
}

type route int

const (
	routePrimary route = iota
	routeFallback
)

// selectBackend decides where a chunk of the given size goes first.
func (t *Transcriber) selectBackend(size int64) (route, string) {
	switch {
	case t.Primary == nil:
		return routeFallback, "no primary backend"
	case t.opts.MaxPrimaryBytes > 0 && size >= t.opts.MaxPrimaryBytes:
		return routeFallback, "chunk exceeds primary size limit"
	default:
		return routePrimary, ""
	}
}

// Transcribe returns sorted, chunk-relative segments for one audio file.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string, size int64) ([]types.TranscriptSegment, error) {
	r, reason := t.selectBackend(size)
	var primaryErr error
	if r == routePrimary {
		segments, err := t.transcribePrimary(ctx, audioPath)
		if err == nil {
			return normalize(segments), nil
		}
		if ctx.Err() != nil || apperrors.Is(err, apperrors.CodeCanceled) {
			return nil, canceled(ctx, err)
		}
		primaryErr = err
		log.GetLogger().Warn("primary transcription failed, falling back",
			zap.String("audio", audioPath),
			zap.String("backend", t.Primary.Name()),
			zap.String("kind", apperrors.Kind(err)),
			zap.Error(err))
	} else {
		log.GetLogger().Info("skipping primary transcription", zap.String("audio", audioPath), zap.String("reason", reason), zap.Int64("size", size))
	}

	if t.Fallback == nil {
		if primaryErr == nil {
			primaryErr = apperrors.New(apperrors.CodeTranscribeFatal, reason)
		}
		return nil, apperrors.Wrap(apperrors.CodeTranscribeFatal, "transcription failed and no fallback is configured", primaryErr)
	}

	segments, err := t.transcribeFallback(ctx, audioPath)
	if err != nil {
		if ctx.Err() != nil || apperrors.Is(err, apperrors.CodeCanceled) {
			return nil, canceled(ctx, err)
		}
		return nil, apperrors.Wrap(apperrors.CodeTranscribeFatal, "primary and fallback transcription failed", err)
	}
	return normalize(segments), nil
}

// transcribePrimary retries transient failures with exponential backoff.
// Anything else is returned on the first attempt.
func (t *Transcriber) transcribePrimary(ctx context.Context, audioPath string) ([]types.TranscriptSegment, error) {
	b := backoff.NewExponentialBackOff()
	if t.opts.InitialBackoff > 0 {
		b.InitialInterval = t.opts.InitialBackoff
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(t.opts.MaxRetries, 0))), ctx)

	var segments []types.TranscriptSegment
	operation := func() error {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(apperrors.Wrap(apperrors.CodeCanceled, "rate limiter wait aborted", err))
			}
		}
		var err error
		segments, err = t.Primary.Transcribe(ctx, audioPath)
		if err == nil {
			return nil
		}
		if apperrors.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		log.GetLogger().Warn("transient transcription error, retrying",
			zap.String("audio", audioPath),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return segments, nil
}

func (t *Transcriber) transcribeFallback(ctx context.Context, audioPath string) ([]types.TranscriptSegment, error) {
	select {
	case t.fallbackSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-t.fallbackSem }()

	return t.Fallback.Transcribe(ctx, audioPath)
}

// normalize drops empty or inverted segments and orders by start.
func normalize(segments []types.TranscriptSegment) []types.TranscriptSegment {
	out := make([]types.TranscriptSegment, 0, len(segments))
	for _, s := range segments {
		s.Text = strings.TrimSpace(s.Text)
		if !s.Valid() {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func canceled(ctx context.Context, err error) error {
	if apperrors.Is(err, apperrors.CodeCanceled) {
		return err
	}
	cause := ctx.Err()
	if cause == nil {
		cause = err
	}
	return apperrors.Wrap(apperrors.CodeCanceled, "transcription canceled", cause)
}
