package fasterwhisper

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"viral-clipper/internal/types"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

var execCommand = exec.CommandContext

// LocalBackend runs a whisper compatible CLI (openai-whisper or
// whisper-ctranslate2) and reads its JSON output.
type LocalBackend struct {
	Command  string
	Model    string
	Device   string
	ModelDir string
}

func NewLocalBackend(command, model, device, modelDir string) *LocalBackend {
	if command == "" {
		command = "whisper"
	}
	if model == "" {
		model = "base"
	}
	return &LocalBackend{Command: command, Model: model, Device: device, ModelDir: modelDir}
}

func (b *LocalBackend) Name() string {
	return "local:" + b.Model
}

type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (b *LocalBackend) Transcribe(ctx context.Context, audioPath string) ([]types.TranscriptSegment, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTranscribeFatal, "audio chunk unreadable", err)
	}

	outDir, err := os.MkdirTemp(filepath.Dir(audioPath), "whisper-*")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTranscribeFatal, "create whisper output dir", err)
	}
	defer os.RemoveAll(outDir)

	cmdArgs := []string{
		audioPath,
		"--model", b.Model,
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
	}
	if b.Device != "" {
		cmdArgs = append(cmdArgs, "--device", b.Device)
		if b.Device == "cpu" {
			cmdArgs = append(cmdArgs, "--fp16", "False")
		}
	}
	if b.ModelDir != "" {
		cmdArgs = append(cmdArgs, "--model_dir", b.ModelDir)
	}

	cmd := execCommand(ctx, b.Command, cmdArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.CodeCanceled, "local transcription canceled", ctx.Err())
		}
		log.GetLogger().Error("local whisper failed",
			zap.String("command", b.Command),
			zap.String("model", b.Model),
			zap.String("audio", audioPath),
			zap.String("output", string(output)),
			zap.Error(err))
		return nil, apperrors.Wrap(apperrors.CodeTranscribeFatal, "local transcription failed", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTranscribeFatal, "local transcription produced no output", err)
	}
	return parseWhisperJSON(data)
}

func parseWhisperJSON(data []byte) ([]types.TranscriptSegment, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTranscribeFatal, "decode local transcription", err)
	}
	segments := make([]types.TranscriptSegment, 0, len(out.Segments))
	for _, s := range out.Segments {
		segments = append(segments, types.TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text})
	}
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	return segments, nil
}
