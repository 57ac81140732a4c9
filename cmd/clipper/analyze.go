package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"viral-clipper/config"
	"viral-clipper/internal/appcore"
	"viral-clipper/internal/dto"
	"viral-clipper/internal/service"
	"viral-clipper/internal/storage"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

type analyzeOptions struct {
	maxClips     int
	whisperModel string
	minDuration  float64
	maxDuration  float64
	output       string
	noTranscript bool
	apiKey       string
	noCache      bool
}

func (o analyzeOptions) analyzeConfig() dto.AnalyzeConfig {
	return dto.AnalyzeConfig{
		MaxClips:          o.maxClips,
		WhisperModel:      o.whisperModel,
		MinDuration:       o.minDuration,
		MaxDuration:       o.maxDuration,
		IncludeTranscript: !o.noTranscript,
	}
}

func runAnalyze(cmd *cobra.Command, url string, opts analyzeOptions) error {
	cfg := opts.analyzeConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if _, err := config.LoadOrCreateConfig(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.apiKey != "" {
		config.Conf.Llm.ApiKey = opts.apiKey
	}
	if opts.noCache {
		config.Conf.Storage.CacheEnabled = false
	}
	if err := config.CheckConfig(); err != nil {
		return apperrors.WrapWithDetail(apperrors.CodeInvalidParams, "invalid config", err.Error(), err)
	}
	if config.Conf.Storage.CacheEnabled {
		if err := storage.InitDB(); err != nil {
			log.GetLogger().Warn("result cache unavailable, continuing without it", zap.Error(err))
			config.Conf.Storage.CacheEnabled = false
		}
	}

	analyzer, err := service.NewAnalyzer()
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.GetLogger().Info("analyzing video", zap.String("url", url), zap.Int("max_clips", cfg.MaxClips), zap.String("whisper_model", cfg.WhisperModel))
	result, err := analyzer.Analyze(ctx, url, cfg, func(stage appcore.JobStage, message string) {
		log.GetLogger().Info("stage", zap.String("stage", stage.String()), zap.String("message", message))
	})
	if err != nil {
		return err
	}

	res := service.BuildResponse(result, cfg.IncludeTranscript)
	printReport(cmd.OutOrStdout(), res)

	if opts.output != "" {
		if err = service.WriteResult(opts.output, res); err != nil {
			return err
		}
		log.GetLogger().Info("Results saved to " + opts.output)
	}
	return nil
}

func printReport(w io.Writer, res dto.AnalyzeResult) {
	rule := strings.Repeat("=", 50)
	fmt.Fprintf(w, "\n%s\nVIRAL MOMENTS DETECTED\n%s\n", rule, rule)
	if res.VideoTitle != "" {
		fmt.Fprintf(w, "Video: %s\n", res.VideoTitle)
	}

	for _, clip := range res.TopClips {
		fmt.Fprintf(w, "\n#%d - %s\n", clip.Rank, clip.Hook)
		fmt.Fprintf(w, "   Timestamp: %s\n", clip.Timestamp)
		fmt.Fprintf(w, "   Score: %.2f\n", clip.ViralityScore)
		fmt.Fprintf(w, "   Why: %s\n", clip.WhyViral)
		fmt.Fprintf(w, "   Duration: %.1f seconds\n", clip.Duration)
		fmt.Fprintln(w, strings.Repeat("-", 50))
	}

	fmt.Fprintf(w, "\nFull results: %d moments found\n", res.ViralClipsFound)
}
