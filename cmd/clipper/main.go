package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"viral-clipper/config"
	"viral-clipper/internal/types"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	log.InitLogger(log.WithStderr())
	defer log.GetLogger().Sync()
	config.LoadEnv()

	if err := newRootCmd().Execute(); err != nil {
		if kind := apperrors.Kind(err); kind != "" {
			fmt.Fprintf(os.Stderr, "error (%s): %v\n", kind, err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clipper",
		Short:         "Find the most shareable moments in a YouTube video",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	root.AddCommand(newAnalyzeCmd(), newVersionCmd(), newDiagnoseCmd())
	return root
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Transcribe a video and rank its viral moments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.maxClips, "max-clips", 4, "Number of clips to return")
	flags.StringVar(&opts.whisperModel, "whisper-model", "base", fmt.Sprintf("Whisper model size (%s)", strings.Join(types.WhisperModels, ", ")))
	flags.Float64Var(&opts.minDuration, "min", 25, "Minimum clip duration in seconds")
	flags.Float64Var(&opts.maxDuration, "max", 65, "Maximum clip duration in seconds")
	flags.StringVarP(&opts.output, "output", "o", "", "Write results as JSON to this file")
	flags.BoolVar(&opts.noTranscript, "no-transcript", false, "Leave the full transcript out of the JSON output")
	flags.StringVar(&opts.apiKey, "api-key", "", "LLM API key (overrides config and environment)")
	flags.BoolVar(&opts.noCache, "no-cache", false, "Skip the result cache")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func newDiagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Print runtime paths and external tool status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// diagnose reports on an existing config and never writes one
			if path, err := config.ResolveConfigPath(); err == nil {
				if _, err = os.Stat(path); err == nil {
					if _, err = config.LoadOrCreateConfig(); err != nil {
						return err
					}
				}
			}
			printDiagnose(cmd.OutOrStdout())
			return nil
		},
	}
}
