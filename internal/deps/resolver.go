package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"viral-clipper/config"
	"viral-clipper/log"
)

type DependencyTier string

const (
	DependencyTierMust     DependencyTier = "must"
	DependencyTierShould   DependencyTier = "should"
	DependencyTierOptional DependencyTier = "optional"
)

type DependencyStatus string

const (
	DependencyStatusOK      DependencyStatus = "ok"
	DependencyStatusMissing DependencyStatus = "missing"
	DependencyStatusError   DependencyStatus = "error"
)

type DependencySource string

const (
	DependencySourceConfig   DependencySource = "config"
	DependencySourceLookPath DependencySource = "lookpath"
)

type DependencySpec struct {
	ID             string
	Name           string
	Command        string
	Tier           DependencyTier
	ConfiguredPath string
	Hint           string
}

type DependencyState struct {
	DependencySpec
	ResolvedPath string
	Status       DependencyStatus
	Source       DependencySource
	Version      string
	Error        string
}

type PathResolver struct {
	LookPath func(file string) (string, error)
	AbsPath  func(path string) (string, error)
	Stat     func(name string) (os.FileInfo, error)
}

func NewPathResolver() PathResolver {
	return PathResolver{
		LookPath: exec.LookPath,
		AbsPath:  filepath.Abs,
		Stat:     os.Stat,
	}
}

func (r PathResolver) Resolve(spec DependencySpec) DependencyState {
	state := DependencyState{DependencySpec: spec}
	configured := strings.TrimSpace(spec.ConfiguredPath)

	if configured != "" {
		state.Source = DependencySourceConfig
		resolvedPath, err := r.resolveConfiguredPath(configured)
		if err == nil {
			state.Status = DependencyStatusOK
			state.ResolvedPath = resolvedPath
			return state
		}

		if absPath, absErr := r.AbsPath(configured); absErr == nil {
			state.ResolvedPath = absPath
		} else {
			state.ResolvedPath = configured
		}
		state.Error = err.Error()
		if isMissingPathError(err) {
			state.Status = DependencyStatusMissing
		} else {
			state.Status = DependencyStatusError
		}
		return state
	}

	state.Source = DependencySourceLookPath
	resolvedPath, err := r.LookPath(spec.Command)
	if err == nil {
		state.Status = DependencyStatusOK
		state.ResolvedPath = resolvedPath
		return state
	}

	state.Error = err.Error()
	if isMissingPathError(err) {
		state.Status = DependencyStatusMissing
		return state
	}
	state.Status = DependencyStatusError
	return state
}

func (r PathResolver) resolveConfiguredPath(configuredPath string) (string, error) {
	if resolvedPath, err := r.LookPath(configuredPath); err == nil {
		return resolvedPath, nil
	}

	absPath, err := r.AbsPath(configuredPath)
	if err != nil {
		return "", err
	}
	if _, err = r.Stat(absPath); err != nil {
		return "", err
	}
	return absPath, nil
}

func ResolveDependencyStates(specs []DependencySpec, resolver PathResolver) []DependencyState {
	resolved := make([]DependencyState, 0, len(specs))
	for _, spec := range specs {
		resolved = append(resolved, resolver.Resolve(spec))
	}
	return resolved
}

// ResolveDependencyInventory resolves every external binary conf refers to.
func ResolveDependencyInventory(conf config.Config) []DependencyState {
	return ResolveDependencyStates(BuildDependencyInventory(conf), NewPathResolver())
}

func BuildDependencyInventory(conf config.Config) []DependencySpec {
	primary := strings.ToLower(strings.TrimSpace(conf.Transcribe.Primary))

	whisperTier := DependencyTierShould
	whisperHint := "Local fallback for chunks the remote API rejects or cannot take."
	if primary != "openai" {
		whisperTier = DependencyTierMust
		whisperHint = "No remote transcription is configured; every chunk is transcribed locally."
	}

	return []DependencySpec{
		{
			ID:             "yt-dlp",
			Name:           "yt-dlp",
			Command:        "yt-dlp",
			Tier:           DependencyTierMust,
			ConfiguredPath: conf.Deps.YtdlpPath,
			Hint:           "Required to fetch metadata and audio from video URLs.",
		},
		{
			ID:             "ffmpeg",
			Name:           "ffmpeg",
			Command:        "ffmpeg",
			Tier:           DependencyTierMust,
			ConfiguredPath: conf.Deps.FfmpegPath,
			Hint:           "Required for audio extraction and chunk cutting.",
		},
		{
			ID:             "ffprobe",
			Name:           "ffprobe",
			Command:        "ffprobe",
			Tier:           DependencyTierMust,
			ConfiguredPath: conf.Deps.FfprobePath,
			Hint:           "Required to measure local audio duration.",
		},
		{
			ID:             "whisper",
			Name:           "local whisper",
			Command:        "faster-whisper-xxl",
			Tier:           whisperTier,
			ConfiguredPath: conf.Transcribe.Local.Command,
			Hint:           whisperHint,
		},
	}
}

// CheckDependency logs the state of every dependency and fails when a
// must-tier binary is unusable.
func CheckDependency() error {
	states := ResolveDependencyInventory(config.Conf)
	var missing []string
	for _, state := range states {
		fields := []zap.Field{
			zap.String("dependency", state.Name),
			zap.String("status", string(state.Status)),
			zap.String("path", state.ResolvedPath),
		}
		if state.Status == DependencyStatusOK {
			log.GetLogger().Info("dependency resolved", fields...)
			continue
		}
		log.GetLogger().Warn("dependency unavailable", append(fields, zap.String("error", state.Error), zap.String("hint", state.Hint))...)
		if state.Tier == DependencyTierMust {
			missing = append(missing, state.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required dependencies unavailable: %s", strings.Join(missing, ", "))
	}
	return nil
}

func FormatDependencyReport(states []DependencyState) string {
	if len(states) == 0 {
		return "No dependencies to diagnose."
	}

	var builder strings.Builder
	builder.WriteString("Dependency status")

	for _, state := range states {
		resolvedPath := strings.TrimSpace(state.ResolvedPath)
		if resolvedPath == "" {
			resolvedPath = "unknown"
		}

		source := strings.TrimSpace(string(state.Source))
		if source == "" {
			source = "n/a"
		}

		builder.WriteString("\n")
		builder.WriteString(fmt.Sprintf("- %s [%s]: %s | path=%s | source=%s", state.Name, strings.ToUpper(string(state.Tier)), state.Status, resolvedPath, source))
		if state.Version != "" {
			builder.WriteString(" | version=")
			builder.WriteString(state.Version)
		}
		if state.Error != "" {
			builder.WriteString("\n")
			builder.WriteString("  error: ")
			builder.WriteString(state.Error)
		}
		if state.Hint != "" {
			builder.WriteString("\n")
			builder.WriteString("  hint: ")
			builder.WriteString(state.Hint)
		}
	}

	return builder.String()
}

func isMissingPathError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
		return true
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.Is(pathErr.Err, os.ErrNotExist) {
			return true
		}
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) {
		if errors.Is(execErr.Err, exec.ErrNotFound) {
			return true
		}
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "not found") || strings.Contains(message, "cannot find")
}
