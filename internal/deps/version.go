package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionTimeout = 10 * time.Second

var execCommand = exec.CommandContext

// versionArgs is the flag each tool prints its version with. The local
// whisper build has none.
var versionArgs = map[string][]string{
	"yt-dlp":  {"--version"},
	"ffmpeg":  {"-version"},
	"ffprobe": {"-version"},
}

// ProbeVersion runs a resolved dependency's version flag and returns the
// first line of its output. Unresolved or unversioned dependencies yield "".
func ProbeVersion(ctx context.Context, state DependencyState) (string, error) {
	args, ok := versionArgs[state.ID]
	if !ok || state.Status != DependencyStatusOK {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := execCommand(ctx, state.ResolvedPath, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", state.Name, strings.Join(args, " "), err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

// WithVersions fills Version on every state that can report one. Probe
// failures are recorded in Error without changing Status.
func WithVersions(ctx context.Context, states []DependencyState) []DependencyState {
	out := make([]DependencyState, len(states))
	for i, state := range states {
		version, err := ProbeVersion(ctx, state)
		if err != nil && state.Error == "" {
			state.Error = err.Error()
		}
		state.Version = version
		out[i] = state
	}
	return out
}
