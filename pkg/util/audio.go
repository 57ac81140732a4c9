package util

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"viral-clipper/log"
)

var execCommand = exec.CommandContext

// ExtractAudioSegment cuts [start, start+duration) out of src as mono 16 kHz
// mp3, the format both transcription backends accept and the smallest that
// keeps ten minutes well below remote upload limits.
func ExtractAudioSegment(ctx context.Context, ffmpegPath, src, dest string, start, duration float64) error {
	cmdArgs := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", src,
		"-vn", "-ac", "1", "-ar", "16000", "-b:a", "64k",
		dest,
	}
	cmd := execCommand(ctx, ffmpegPath, cmdArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.GetLogger().Error("extract audio segment failed",
			zap.Error(err),
			zap.String("src", src),
			zap.Float64("start", start),
			zap.Float64("duration", duration),
			zap.String("output", string(output)))
		return fmt.Errorf("ffmpeg segment %s: %w", src, err)
	}
	return nil
}

// ProbeDuration returns the container duration in seconds.
func ProbeDuration(ctx context.Context, ffprobePath, path string) (float64, error) {
	cmd := execCommand(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: unexpected duration %q", path, strings.TrimSpace(string(output)))
	}
	return seconds, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
