package service

import (
	"time"

	"go.uber.org/zap"

	"viral-clipper/config"
	"viral-clipper/internal/acquire"
	"viral-clipper/internal/assembler"
	"viral-clipper/internal/chunker"
	"viral-clipper/internal/extractor"
	"viral-clipper/internal/ranker"
	"viral-clipper/internal/storage"
	"viral-clipper/internal/transcriber"
	"viral-clipper/internal/types"
	"viral-clipper/internal/validator"
	"viral-clipper/log"
	"viral-clipper/pkg/fasterwhisper"
	"viral-clipper/pkg/openai"
)

// NewService wires a Service from config.Conf. CheckConfig must have passed.
func NewService() (*Service, error) {
	conf := config.Conf

	runRoot, err := resolveRunRoot()
	if err != nil {
		return nil, err
	}

	var primary types.TranscriptionBackend
	if conf.Transcribe.Primary == "openai" {
		client := openai.NewClient(conf.Transcribe.Openai.BaseUrl, conf.Transcribe.Openai.ApiKey, conf.App.Proxy)
		primary = openai.NewRemoteBackend(client, conf.Transcribe.Openai.Model)
	}
	local := conf.Transcribe.Local
	localBackend := func(model string) types.TranscriptionBackend {
		if model == "" {
			model = local.Model
		}
		return fasterwhisper.NewLocalBackend(local.Command, model, local.Device, local.ModelDir)
	}
	log.GetLogger().Info("transcription backends",
		zap.String("primary", conf.Transcribe.Primary),
		zap.String("local_command", local.Command))

	tr := transcriber.New(primary, localBackend(local.Model), transcriber.Options{
		MaxPrimaryBytes:     megabytes(conf.Transcribe.Openai.MaxFileSizeMB),
		MaxRetries:          conf.Transcribe.Openai.MaxRetries,
		InitialBackoff:      time.Duration(conf.Transcribe.Openai.InitialBackoffMs) * time.Millisecond,
		RequestsPerMinute:   conf.Transcribe.Openai.RequestsPerMinute,
		FallbackConcurrency: 1,
	})

	oracle := openai.NewClient(conf.Llm.BaseUrl, conf.Llm.ApiKey, conf.App.Proxy,
		openai.WithModel(conf.Llm.Model),
		openai.WithTemperature(conf.Llm.Temperature),
		openai.WithJSONMode(conf.Llm.JsonMode))

	return &Service{
		Acquirer: &acquire.Ytdlp{
			YtdlpPath:   conf.Deps.YtdlpPath,
			FfmpegPath:  conf.Deps.FfmpegPath,
			FfprobePath: conf.Deps.FfprobePath,
			CookiesPath: conf.Deps.CookiesPath,
			Proxy:       conf.App.Proxy,
		},
		Transcriber:  tr,
		LocalBackend: localBackend,
		Extractor:    extractor.New(oracle),
		Opts:         OptionsFromConfig(conf, runRoot),
	}, nil
}

// NewAnalyzer is NewService behind the result cache when caching is enabled.
// The cache requires storage.InitDB to have run.
func NewAnalyzer() (Analyzer, error) {
	svc, err := NewService()
	if err != nil {
		return nil, err
	}
	if !config.Conf.Storage.CacheEnabled {
		return svc, nil
	}
	ttl := time.Duration(config.Conf.Storage.CacheTTLHours) * time.Hour
	return &CachedAnalyzer{Inner: svc, Cache: storage.CacheStore{TTL: ttl}}, nil
}

// OptionsFromConfig maps the clipper section onto pipeline options.
func OptionsFromConfig(conf config.Config, runRoot string) Options {
	c := conf.Clipper
	return Options{
		Chunk: chunker.Options{
			Threshold: c.ChunkThresholdSec,
			ChunkSize: c.ChunkSizeSec,
			MinChunk:  c.MinChunkSec,
		},
		Assemble: assembler.Options{
			MergeSimilarity: c.MergeSimilarity,
			WindowWords:     c.BoundaryWindowWords,
			MaxBoundaryGap:  c.MaxBoundaryGapSec,
			Tolerance:       c.OffsetToleranceSec,
		},
		Validate: validator.Options{
			MinDuration:   c.MinDurationSec,
			MaxDuration:   c.MaxDurationSec,
			MinScore:      c.MinScore,
			SnapTolerance: c.SnapToleranceSec,
		},
		Rank:           ranker.Options{OverlapFraction: c.OverlapFraction},
		CandidateCount: c.CandidateCount,
		Concurrency:    conf.App.TranscribeParallelNum,
		RunTimeout:     time.Duration(conf.App.RunTimeoutSec) * time.Second,
		WorkRoot:       runRoot,
	}
}

// megabytes converts a decimal MB setting to bytes; the Whisper upload limit
// is 25 MB, not 25 MiB.
func megabytes(mb int) int64 {
	return int64(mb) * 1000 * 1000
}
