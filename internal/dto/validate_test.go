package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "viral-clipper/pkg/errors"
)

func TestAnalyzeConfigDefaults(t *testing.T) {
	cfg := AnalyzeConfig{MaxClips: 6}.WithDefaults()
	assert.Equal(t, 6, cfg.MaxClips)
	assert.Equal(t, "base", cfg.WhisperModel)
	assert.Equal(t, 25.0, cfg.MinDuration)
	assert.Equal(t, 65.0, cfg.MaxDuration)
	assert.NoError(t, cfg.Validate())
}

func TestAnalyzeConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AnalyzeConfig)
		detail string
	}{
		{"too many clips", func(c *AnalyzeConfig) { c.MaxClips = 21 }, "max_clips must be at most 20"},
		{"negative clips", func(c *AnalyzeConfig) { c.MaxClips = -1 }, "max_clips must be at least 1"},
		{"unknown model", func(c *AnalyzeConfig) { c.WhisperModel = "huge" }, "whisper_model must be one of"},
		{"min above max", func(c *AnalyzeConfig) { c.MinDuration = 70 }, "max_duration_s must not be less than"},
		{"negative min", func(c *AnalyzeConfig) { c.MinDuration = -3 }, "min_duration_s must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAnalyzeConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.CodeInvalidParams))

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Contains(t, appErr.Detail, tt.detail)
		})
	}
}

func TestAnalyzeReqValidate(t *testing.T) {
	var req AnalyzeReq
	require.NoError(t, json.Unmarshal([]byte(`{"url":"","max_clips":3}`), &req))
	req.AnalyzeConfig = req.AnalyzeConfig.WithDefaults()

	err := Validate(req)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "url is required", appErr.Detail)
	assert.Equal(t, 3, req.MaxClips)
}

func TestSubmitJobReqCallbackUrl(t *testing.T) {
	req := SubmitJobReq{Url: "https://youtu.be/x", CallbackUrl: "not a url", AnalyzeConfig: DefaultAnalyzeConfig()}
	assert.Error(t, Validate(req))

	req.CallbackUrl = ""
	assert.NoError(t, Validate(req))

	req.CallbackUrl = "https://hooks.example.com/done"
	assert.NoError(t, Validate(req))
}

func TestRequestsRejectLocalSources(t *testing.T) {
	for _, ref := range []string{"/etc/hostname", "local:/root/.ssh/id_rsa", "file:///etc/passwd", "ftp://host/video.mp4"} {
		err := Validate(AnalyzeReq{Url: ref, AnalyzeConfig: DefaultAnalyzeConfig()})
		require.Error(t, err, ref)
		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "url must be an http or https URL", appErr.Detail, ref)

		assert.Error(t, Validate(SubmitJobReq{Url: ref, AnalyzeConfig: DefaultAnalyzeConfig()}), ref)
	}

	assert.NoError(t, Validate(AnalyzeReq{Url: "https://www.youtube.com/watch?v=abc", AnalyzeConfig: DefaultAnalyzeConfig()}))
	assert.NoError(t, Validate(AnalyzeReq{Url: "http://youtu.be/abc", AnalyzeConfig: DefaultAnalyzeConfig()}))
}
