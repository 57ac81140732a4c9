package openai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sort"

	"github.com/sashabaranov/go-openai"

	"viral-clipper/internal/types"
	apperrors "viral-clipper/pkg/errors"
)

// RemoteBackend transcribes through the hosted Whisper API.
type RemoteBackend struct {
	client *Client
	model  string
}

func NewRemoteBackend(client *Client, model string) *RemoteBackend {
	if model == "" {
		model = openai.Whisper1
	}
	return &RemoteBackend{client: client, model: model}
}

func (b *RemoteBackend) Name() string {
	return "openai:" + b.model
}

func (b *RemoteBackend) Transcribe(ctx context.Context, audioPath string) ([]types.TranscriptSegment, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTranscribeFatal, "audio chunk unreadable", err)
	}

	resp, err := b.client.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    b.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, classifyTranscriptionError(ctx, err)
	}

	segments := make([]types.TranscriptSegment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, types.TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text})
	}
	if len(segments) == 0 && resp.Text != "" && resp.Duration > 0 {
		segments = append(segments, types.TranscriptSegment{Start: 0, End: resp.Duration, Text: resp.Text})
	}
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	return segments, nil
}

// classifyTranscriptionError splits failures into retryable (rate limits,
// timeouts, server errors, network) and fatal (auth, bad request, bad audio).
func classifyTranscriptionError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperrors.Wrap(apperrors.CodeCanceled, "transcription canceled", ctx.Err())
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status == 0 {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return apperrors.Wrap(apperrors.CodeTranscribeTransient, "transcription network error", err)
		}
		return apperrors.Wrap(apperrors.CodeTranscribeFatal, "transcription failed", err)
	}
	if IsTransientStatus(status) {
		return apperrors.Wrap(apperrors.CodeTranscribeTransient, "transcription temporarily unavailable", err)
	}
	return apperrors.Wrap(apperrors.CodeTranscribeFatal, "transcription rejected", err)
}

func IsTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError
}
