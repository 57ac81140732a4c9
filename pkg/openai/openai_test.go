package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "viral-clipper/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/v1", "sk-test", "", WithModel("gpt-test"), WithJSONMode(true))
}

func writeAudio(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "chunk.mp3")
	require.NoError(t, os.WriteFile(p, []byte("ID3fake"), 0o644))
	return p
}

func TestChatCompletion(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"candidates\":[]}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	})

	reply, err := client.ChatCompletion(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, `{"candidates":[]}`, reply)
	assert.Equal(t, "gpt-test", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
}

func TestChatCompletionAuthFailureIsOracleError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := client.ChatCompletion(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeOracle))
}

func TestRemoteBackendTranscribeSortsSegments(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task":"transcribe","language":"en","duration":12.0,"text":"b a","segments":[{"id":1,"start":6.0,"end":12.0,"text":" second"},{"id":0,"start":0.0,"end":6.0,"text":" first"}]}`))
	})

	segs, err := NewRemoteBackend(client, "").Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.Equal(t, " first", segs[0].Text)
	assert.Equal(t, 6.0, segs[1].Start)
}

func TestRemoteBackendClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   int
	}{
		{name: "rate limit is transient", status: http.StatusTooManyRequests, code: apperrors.CodeTranscribeTransient},
		{name: "server error is transient", status: http.StatusBadGateway, code: apperrors.CodeTranscribeTransient},
		{name: "auth is fatal", status: http.StatusUnauthorized, code: apperrors.CodeTranscribeFatal},
		{name: "bad audio is fatal", status: http.StatusBadRequest, code: apperrors.CodeTranscribeFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
			})
			_, err := NewRemoteBackend(client, "whisper-1").Transcribe(context.Background(), writeAudio(t))
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
		})
	}
}

func TestRemoteBackendMissingFileIsFatal(t *testing.T) {
	client := NewClient("http://127.0.0.1:1/v1", "sk", "")
	_, err := NewRemoteBackend(client, "").Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Equal(t, apperrors.CodeTranscribeFatal, apperrors.GetCode(err))
}

func TestIsTransientStatus(t *testing.T) {
	assert.True(t, IsTransientStatus(http.StatusTooManyRequests))
	assert.True(t, IsTransientStatus(http.StatusServiceUnavailable))
	assert.False(t, IsTransientStatus(http.StatusForbidden))
}
