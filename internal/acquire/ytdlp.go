package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"viral-clipper/internal/types"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
	"viral-clipper/pkg/util"
)

const localPrefix = "local:"

var (
	execCommand   = exec.CommandContext
	probeDuration = util.ProbeDuration
	extractAudio  = util.ExtractAudioSegment
)

// Ytdlp acquires audio with yt-dlp and cuts chunks with ffmpeg.
type Ytdlp struct {
	YtdlpPath   string
	FfmpegPath  string
	FfprobePath string
	CookiesPath string
	Proxy       string
}

type videoInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Channel    string  `json:"channel"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	WebpageURL string  `json:"webpage_url"`
}

func (y *Ytdlp) Fetch(ctx context.Context, sourceRef string, workDir string) (*types.AudioAsset, error) {
	if path, ok := LocalPath(sourceRef); ok {
		return y.fetchLocal(ctx, sourceRef, path)
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAcquisition, "create work dir", err)
	}

	info, err := y.dumpInfo(ctx, sourceRef)
	if err != nil {
		return nil, err
	}

	outTemplate := filepath.Join(workDir, "source.%(ext)s")
	cmdArgs := append([]string{
		"--no-playlist",
		"-f", "bestaudio/best",
		"-x", "--audio-format", "mp3",
		"-o", outTemplate,
	}, y.commonArgs()...)
	cmdArgs = append(cmdArgs, sourceRef)

	if _, err = y.run(ctx, cmdArgs); err != nil {
		return nil, err
	}

	audioPath := filepath.Join(workDir, "source.mp3")
	if _, err = os.Stat(audioPath); err != nil {
		return nil, apperrors.WrapWithDetail(apperrors.CodeAudioExtract, "downloaded audio missing", audioPath, err)
	}

	duration := info.Duration
	if duration <= 0 {
		if duration, err = probeDuration(ctx, y.FfprobePath, audioPath); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeAudioExtract, "probe audio duration", err)
		}
	}

	channel := info.Channel
	if channel == "" {
		channel = info.Uploader
	}
	webURL := info.WebpageURL
	if webURL == "" {
		webURL = sourceRef
	}

	log.GetLogger().Info("source acquired",
		zap.String("source", sourceRef),
		zap.String("title", info.Title),
		zap.Float64("duration", duration))

	return &types.AudioAsset{
		SourceRef:  sourceRef,
		Path:       audioPath,
		Duration:   duration,
		Title:      info.Title,
		Channel:    channel,
		WebpageURL: webURL,
	}, nil
}

func (y *Ytdlp) fetchLocal(ctx context.Context, sourceRef, path string) (*types.AudioAsset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apperrors.WrapWithDetail(apperrors.CodeAcquisition, "local source not found", path, err)
	}
	duration, err := probeDuration(ctx, y.FfprobePath, path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAudioExtract, "probe audio duration", err)
	}
	return &types.AudioAsset{
		SourceRef:  sourceRef,
		Path:       path,
		Duration:   duration,
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		WebpageURL: sourceRef,
	}, nil
}

// ExtractChunk writes [start, end) of the asset to its own file in workDir.
func (y *Ytdlp) ExtractChunk(ctx context.Context, asset *types.AudioAsset, start, end float64, workDir string) (string, error) {
	if end <= start {
		return "", apperrors.New(apperrors.CodeAudioExtract, fmt.Sprintf("empty chunk range [%.3f, %.3f)", start, end))
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.CodeAudioExtract, "create chunk dir", err)
	}
	dest := filepath.Join(workDir, fmt.Sprintf("chunk_%09.0f_%09.0f.mp3", start*1000, end*1000))
	if err := extractAudio(ctx, y.FfmpegPath, asset.Path, dest, start, end-start); err != nil {
		_ = os.Remove(dest)
		if ctx.Err() != nil {
			return "", apperrors.Wrap(apperrors.CodeCanceled, "chunk extraction canceled", ctx.Err())
		}
		return "", apperrors.Wrap(apperrors.CodeAudioExtract, "chunk extraction failed", err)
	}
	return dest, nil
}

func (y *Ytdlp) dumpInfo(ctx context.Context, sourceRef string) (*videoInfo, error) {
	cmdArgs := append([]string{"--skip-download", "--no-playlist", "--dump-json"}, y.commonArgs()...)
	cmdArgs = append(cmdArgs, sourceRef)

	output, err := y.run(ctx, cmdArgs)
	if err != nil {
		return nil, err
	}
	info, err := parseVideoInfo(output)
	if err != nil {
		return nil, apperrors.WrapWithDetail(apperrors.CodeAcquisition, "unreadable video metadata", sourceRef, err)
	}
	return info, nil
}

func (y *Ytdlp) commonArgs() []string {
	var args []string
	if y.CookiesPath != "" {
		if _, err := os.Stat(y.CookiesPath); err == nil {
			args = append(args, "--cookies", y.CookiesPath)
		}
	}
	if y.Proxy != "" {
		args = append(args, "--proxy", y.Proxy)
	}
	if y.FfmpegPath != "" && y.FfmpegPath != "ffmpeg" {
		args = append(args, "--ffmpeg-location", y.FfmpegPath)
	}
	return args
}

func (y *Ytdlp) run(ctx context.Context, cmdArgs []string) ([]byte, error) {
	cmd := execCommand(ctx, y.YtdlpPath, cmdArgs...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.CodeCanceled, "acquisition canceled", ctx.Err())
		}
		log.GetLogger().Error("yt-dlp failed", zap.Strings("args", cmdArgs), zap.String("stderr", stderr.String()), zap.Error(err))
		return nil, classifyYtdlpError(stderr.String(), err)
	}
	return output, nil
}

// parseVideoInfo takes the first JSON line; playlists print one per entry.
func parseVideoInfo(output []byte) (*videoInfo, error) {
	var info videoInfo
	if err := json.Unmarshal(output, &info); err == nil {
		return &info, nil
	}
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if err := json.Unmarshal([]byte(line), &info); err == nil {
			return &info, nil
		}
	}
	return nil, fmt.Errorf("no metadata object in yt-dlp output")
}

func classifyYtdlpError(stderr string, err error) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "unsupported url"):
		return apperrors.WrapWithDetail(apperrors.CodeUnsupportedSource, "unsupported source", lastLine(stderr), err)
	case strings.Contains(lower, "sign in to confirm"), strings.Contains(lower, "cookies"):
		return apperrors.WrapWithDetail(apperrors.CodeCookiesExpired, "source requires valid cookies", lastLine(stderr), err)
	default:
		return apperrors.WrapWithDetail(apperrors.CodeAcquisition, "source download failed", lastLine(stderr), err)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// LocalPath resolves "local:<path>" and plain existing file paths.
func LocalPath(sourceRef string) (string, bool) {
	if strings.HasPrefix(sourceRef, localPrefix) {
		return strings.TrimPrefix(sourceRef, localPrefix), true
	}
	if strings.HasPrefix(sourceRef, "file://") {
		return strings.TrimPrefix(sourceRef, "file://"), true
	}
	if strings.Contains(sourceRef, "://") {
		return "", false
	}
	if info, err := os.Stat(sourceRef); err == nil && !info.IsDir() {
		return sourceRef, true
	}
	return "", false
}
