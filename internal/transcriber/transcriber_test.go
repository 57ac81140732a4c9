package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"viral-clipper/internal/chunker"
	"viral-clipper/internal/mocks"
	"viral-clipper/internal/types"
	apperrors "viral-clipper/pkg/errors"
)

func testOptions() Options {
	return Options{
		MaxPrimaryBytes:     1000,
		MaxRetries:          2,
		InitialBackoff:      time.Millisecond,
		FallbackConcurrency: 2,
	}
}

func segs(texts ...string) []types.TranscriptSegment {
	out := make([]types.TranscriptSegment, 0, len(texts))
	for i, text := range texts {
		out = append(out, types.TranscriptSegment{Start: float64(i * 5), End: float64(i*5 + 5), Text: text})
	}
	return out
}

var (
	errTransient = apperrors.New(apperrors.CodeTranscribeTransient, "429")
	errFatal     = apperrors.New(apperrors.CodeTranscribeFatal, "401")
)

func TestSelectBackend(t *testing.T) {
	primary := &mocks.MockBackend{}
	tr := New(primary, &mocks.MockBackend{}, testOptions())

	r, _ := tr.selectBackend(999)
	assert.Equal(t, routePrimary, r)

	r, reason := tr.selectBackend(1000)
	assert.Equal(t, routeFallback, r)
	assert.Contains(t, reason, "size")

	noPrimary := New(nil, &mocks.MockBackend{}, testOptions())
	r, _ = noPrimary.selectBackend(1)
	assert.Equal(t, routeFallback, r)

	unlimited := New(primary, nil, Options{})
	r, _ = unlimited.selectBackend(1 << 40)
	assert.Equal(t, routePrimary, r)
}

func TestTranscribeRetriesTransientErrors(t *testing.T) {
	primary := &mocks.MockBackend{}
	fallback := &mocks.MockBackend{}
	primary.On("Transcribe", mock.Anything, "a.mp3").Return(nil, errTransient).Twice()
	primary.On("Transcribe", mock.Anything, "a.mp3").Return(segs("hello"), nil).Once()

	got, err := New(primary, fallback, testOptions()).Transcribe(context.Background(), "a.mp3", 10)
	require.NoError(t, err)
	assert.Equal(t, segs("hello"), got)
	primary.AssertNumberOfCalls(t, "Transcribe", 3)
	fallback.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestTranscribeFallsBackAfterRetriesExhausted(t *testing.T) {
	primary := &mocks.MockBackend{}
	fallback := &mocks.MockBackend{}
	primary.On("Transcribe", mock.Anything, "a.mp3").Return(nil, errTransient)
	fallback.On("Transcribe", mock.Anything, "a.mp3").Return(segs("local"), nil)

	got, err := New(primary, fallback, testOptions()).Transcribe(context.Background(), "a.mp3", 10)
	require.NoError(t, err)
	assert.Equal(t, "local", got[0].Text)
	primary.AssertNumberOfCalls(t, "Transcribe", 3)
}

func TestTranscribeFatalErrorSkipsRetry(t *testing.T) {
	primary := &mocks.MockBackend{}
	fallback := &mocks.MockBackend{}
	primary.On("Transcribe", mock.Anything, "a.mp3").Return(nil, errFatal)
	fallback.On("Transcribe", mock.Anything, "a.mp3").Return(segs("local"), nil)

	_, err := New(primary, fallback, testOptions()).Transcribe(context.Background(), "a.mp3", 10)
	require.NoError(t, err)
	primary.AssertNumberOfCalls(t, "Transcribe", 1)
	fallback.AssertNumberOfCalls(t, "Transcribe", 1)
}

func TestTranscribeOversizedChunkGoesStraightToFallback(t *testing.T) {
	primary := &mocks.MockBackend{}
	fallback := &mocks.MockBackend{}
	fallback.On("Transcribe", mock.Anything, "big.mp3").Return(segs("local"), nil)

	_, err := New(primary, fallback, testOptions()).Transcribe(context.Background(), "big.mp3", 5000)
	require.NoError(t, err)
	primary.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestTranscribeBothBackendsFail(t *testing.T) {
	primary := &mocks.MockBackend{}
	fallback := &mocks.MockBackend{}
	primary.On("Transcribe", mock.Anything, "a.mp3").Return(nil, errFatal)
	fallback.On("Transcribe", mock.Anything, "a.mp3").Return(nil, apperrors.New(apperrors.CodeTranscribeFatal, "model crashed"))

	_, err := New(primary, fallback, testOptions()).Transcribe(context.Background(), "a.mp3", 10)
	require.Error(t, err)
	assert.Equal(t, "TranscriptionError.fatal", apperrors.Kind(err))
}

func TestTranscribeNoFallbackConfigured(t *testing.T) {
	primary := &mocks.MockBackend{}
	primary.On("Transcribe", mock.Anything, "a.mp3").Return(nil, errFatal)

	_, err := New(primary, nil, testOptions()).Transcribe(context.Background(), "a.mp3", 10)
	assert.Equal(t, apperrors.CodeTranscribeFatal, apperrors.GetCode(err))
}

func TestTranscribeCanceledDoesNotFallBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &mocks.MockBackend{}
	fallback := &mocks.MockBackend{}
	primary.On("Transcribe", mock.Anything, "a.mp3").Run(func(mock.Arguments) { cancel() }).Return(nil, errTransient)

	_, err := New(primary, fallback, testOptions()).Transcribe(ctx, "a.mp3", 10)
	assert.Equal(t, apperrors.CodeCanceled, apperrors.GetCode(err))
	fallback.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestWithFallbackSharesLimits(t *testing.T) {
	primary := &mocks.MockBackend{}
	opts := testOptions()
	opts.RequestsPerMinute = 60
	base := New(primary, nil, opts)

	local := &mocks.MockBackend{BackendName: "small"}
	local.On("Transcribe", mock.Anything, "big.mp3").Return(segs("local"), nil)
	tr := base.WithFallback(local)

	assert.Nil(t, base.Fallback)
	assert.Same(t, base.limiter, tr.limiter)
	assert.Equal(t, cap(base.fallbackSem), cap(tr.fallbackSem))

	got, err := tr.Transcribe(context.Background(), "big.mp3", 5000)
	require.NoError(t, err)
	assert.Equal(t, "local", got[0].Text)
}

func TestNormalizeSortsAndFilters(t *testing.T) {
	in := []types.TranscriptSegment{
		{Start: 10, End: 12, Text: " third "},
		{Start: 3, End: 3, Text: "zero length"},
		{Start: 0, End: 4, Text: "first"},
		{Start: 5, End: 7, Text: "   "},
		{Start: 4, End: 9, Text: "second"},
	}
	got := normalize(in)
	assert.Equal(t, []types.TranscriptSegment{
		{Start: 0, End: 4, Text: "first"},
		{Start: 4, End: 9, Text: "second"},
		{Start: 10, End: 12, Text: "third"},
	}, got)
}

type chunkFixture struct {
	asset *types.AudioAsset
	plan  types.AudioChunkPlan
	dir   string
	paths []string
	acq   *mocks.MockAcquirer
}

func newChunkFixture(t *testing.T, bounds ...float64) *chunkFixture {
	t.Helper()
	f := &chunkFixture{
		asset: &types.AudioAsset{Path: "source.mp3", Duration: bounds[len(bounds)-1]},
		dir:   t.TempDir(),
		acq:   &mocks.MockAcquirer{},
	}
	f.plan.TotalDuration = f.asset.Duration
	for i := 0; i+1 < len(bounds); i++ {
		c := types.AudioChunk{Index: i, Start: bounds[i], End: bounds[i+1]}
		f.plan.Chunks = append(f.plan.Chunks, c)
		p := filepath.Join(f.dir, fmt.Sprintf("chunk_%d.mp3", i))
		require.NoError(t, os.WriteFile(p, []byte("abc"), 0o644))
		f.paths = append(f.paths, p)
		f.acq.On("ExtractChunk", mock.Anything, f.asset, c.Start, c.End, f.dir).Return(p, nil)
	}
	return f
}

func (f *chunkFixture) opener() *chunker.Materializer {
	return &chunker.Materializer{Acquirer: f.acq, WorkDir: f.dir}
}

func TestTranscribeChunksKeepsChunkOrder(t *testing.T) {
	f := newChunkFixture(t, 0, 300, 600, 720)
	primary := &mocks.MockBackend{}
	primary.On("Transcribe", mock.Anything, f.paths[0]).After(60*time.Millisecond).Return(segs("zero"), nil)
	primary.On("Transcribe", mock.Anything, f.paths[1]).After(20*time.Millisecond).Return(segs("one"), nil)
	primary.On("Transcribe", mock.Anything, f.paths[2]).Return(segs("two"), nil)

	tr := New(primary, nil, testOptions())
	got, err := tr.TranscribeChunks(context.Background(), f.asset, f.plan, f.opener(), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "zero", got[0][0].Text)
	assert.Equal(t, "one", got[1][0].Text)
	assert.Equal(t, "two", got[2][0].Text)

	for _, p := range f.paths {
		assert.NoFileExists(t, p)
	}
}

func TestTranscribeChunksFailureCleansUpAndReportsChunk(t *testing.T) {
	f := newChunkFixture(t, 0, 300, 600)
	primary := &mocks.MockBackend{}
	fallback := &mocks.MockBackend{}
	primary.On("Transcribe", mock.Anything, f.paths[0]).Return(segs("zero"), nil)
	primary.On("Transcribe", mock.Anything, f.paths[1]).Return(nil, errFatal)
	fallback.On("Transcribe", mock.Anything, f.paths[1]).Return(nil, apperrors.New(apperrors.CodeTranscribeFatal, "corrupt audio"))

	tr := New(primary, fallback, testOptions())
	got, err := tr.TranscribeChunks(context.Background(), f.asset, f.plan, f.opener(), 1)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, "TranscriptionError.fatal", apperrors.Kind(err))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Detail, "chunk 1")

	for _, p := range f.paths {
		assert.NoFileExists(t, p)
	}
}

func TestTranscribeChunksAcquisitionFailure(t *testing.T) {
	asset := &types.AudioAsset{Path: "source.mp3", Duration: 1200}
	plan := types.AudioChunkPlan{TotalDuration: 1200, Chunks: []types.AudioChunk{{Index: 0, End: 600}, {Index: 1, Start: 600, End: 1200}}}
	acq := &mocks.MockAcquirer{}
	acq.On("ExtractChunk", mock.Anything, asset, mock.Anything, mock.Anything, mock.Anything).
		Return("", apperrors.New(apperrors.CodeAudioExtract, "ffmpeg failed"))

	tr := New(&mocks.MockBackend{}, nil, testOptions())
	_, err := tr.TranscribeChunks(context.Background(), asset, plan, &chunker.Materializer{Acquirer: acq, WorkDir: t.TempDir()}, 2)
	assert.Equal(t, "AcquisitionError", apperrors.Kind(err))
}

func TestTranscribeChunksCanceled(t *testing.T) {
	f := newChunkFixture(t, 0, 300, 600)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := New(&mocks.MockBackend{}, nil, testOptions())
	_, err := tr.TranscribeChunks(ctx, f.asset, f.plan, f.opener(), 2)
	assert.Equal(t, apperrors.CodeCanceled, apperrors.GetCode(err))
}

func TestTranscribeChunksSingleChunkUsesAssetFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.mp3")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0o644))
	asset := &types.AudioAsset{Path: src, Duration: 120}
	plan := types.AudioChunkPlan{TotalDuration: 120, Chunks: []types.AudioChunk{{Index: 0, End: 120}}}

	primary := &mocks.MockBackend{}
	primary.On("Transcribe", mock.Anything, src).Return(segs("only"), nil)
	acq := &mocks.MockAcquirer{}

	got, err := New(primary, nil, testOptions()).TranscribeChunks(context.Background(), asset, plan, &chunker.Materializer{Acquirer: acq, WorkDir: dir}, 2)
	require.NoError(t, err)
	assert.Equal(t, "only", got[0][0].Text)
	assert.FileExists(t, src)
	acq.AssertNotCalled(t, "ExtractChunk", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
