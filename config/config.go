package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"viral-clipper/internal/appdirs"
	"viral-clipper/internal/types"
	"viral-clipper/log"
)

type App struct {
	Proxy                 string   `toml:"proxy"`
	TranscribeParallelNum int      `toml:"transcribe_parallel_num"`
	RunTimeoutSec         int      `toml:"run_timeout_sec"`
	ParsedProxy           *url.URL `toml:"-"`
}

type Server struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	CallbackUrl    string `toml:"callback_url"`
	RetainFinished int    `toml:"retain_finished"`
}

type OpenaiTranscribe struct {
	BaseUrl           string `toml:"base_url"`
	ApiKey            string `toml:"api_key"`
	Model             string `toml:"model"`
	MaxFileSizeMB     int    `toml:"max_file_size_mb"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	MaxRetries        int    `toml:"max_retries"`
	InitialBackoffMs  int    `toml:"initial_backoff_ms"`
}

type LocalTranscribe struct {
	Command  string `toml:"command"`
	Device   string `toml:"device"`
	Model    string `toml:"model"`
	ModelDir string `toml:"model_dir"`
}

type Transcribe struct {
	// Primary is "openai" (remote with local fallback) or "local" (local only).
	Primary string           `toml:"primary"`
	Openai  OpenaiTranscribe `toml:"openai"`
	Local   LocalTranscribe  `toml:"local"`
}

type Llm struct {
	BaseUrl     string  `toml:"base_url"`
	ApiKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	JsonMode    bool    `toml:"json_mode"`
}

type Clipper struct {
	ChunkThresholdSec   float64 `toml:"chunk_threshold_sec"`
	ChunkSizeSec        float64 `toml:"chunk_size_sec"`
	MinChunkSec         float64 `toml:"min_chunk_sec"`
	MergeSimilarity     float64 `toml:"merge_similarity"`
	BoundaryWindowWords int     `toml:"boundary_window_words"`
	MaxBoundaryGapSec   float64 `toml:"max_boundary_gap_sec"`
	OffsetToleranceSec  float64 `toml:"offset_tolerance_sec"`
	MinDurationSec      float64 `toml:"min_duration_sec"`
	MaxDurationSec      float64 `toml:"max_duration_sec"`
	MinScore            float64 `toml:"min_score"`
	SnapToleranceSec    float64 `toml:"snap_tolerance_sec"`
	OverlapFraction     float64 `toml:"overlap_fraction"`
	MaxClips            int     `toml:"max_clips"`
	CandidateCount      int     `toml:"candidate_count"`
}

type Deps struct {
	YtdlpPath   string `toml:"ytdlp_path"`
	FfmpegPath  string `toml:"ffmpeg_path"`
	FfprobePath string `toml:"ffprobe_path"`
	CookiesPath string `toml:"cookies_path"`
}

type Storage struct {
	CacheEnabled  bool `toml:"cache_enabled"`
	CacheTTLHours int  `toml:"cache_ttl_hours"`
}

type Queue struct {
	Enabled       bool   `toml:"enabled"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Concurrency   int    `toml:"concurrency"`
}

type Config struct {
	App        App        `toml:"app"`
	Server     Server     `toml:"server"`
	Transcribe Transcribe `toml:"transcribe"`
	Llm        Llm        `toml:"llm"`
	Clipper    Clipper    `toml:"clipper"`
	Deps       Deps       `toml:"deps"`
	Storage    Storage    `toml:"storage"`
	Queue      Queue      `toml:"queue"`
}

var Conf = defaultConfig()

var resolveConfigPath = ResolveConfigPath

func defaultConfig() Config {
	return Config{
		App: App{
			TranscribeParallelNum: 2,
			RunTimeoutSec:         3600,
		},
		Server: Server{
			Host:           "127.0.0.1",
			Port:           8888,
			RetainFinished: 256,
		},
		Transcribe: Transcribe{
			Primary: "openai",
			Openai: OpenaiTranscribe{
				Model:             "whisper-1",
				MaxFileSizeMB:     25,
				RequestsPerMinute: 50,
				MaxRetries:        3,
				InitialBackoffMs:  1000,
			},
			Local: LocalTranscribe{
				Command: "whisper",
				Device:  "cpu",
				Model:   "base",
			},
		},
		Llm: Llm{
			Model:       "gpt-4-turbo-preview",
			Temperature: 0.7,
			JsonMode:    true,
		},
		Clipper: Clipper{
			ChunkThresholdSec:   600,
			ChunkSizeSec:        600,
			MinChunkSec:         30,
			MergeSimilarity:     0.9,
			BoundaryWindowWords: 30,
			MaxBoundaryGapSec:   2,
			OffsetToleranceSec:  1,
			MinDurationSec:      25,
			MaxDurationSec:      65,
			MinScore:            0.5,
			SnapToleranceSec:    3,
			OverlapFraction:     0.5,
			MaxClips:            4,
			CandidateCount:      8,
		},
		Deps: Deps{
			YtdlpPath:   "yt-dlp",
			FfmpegPath:  "ffmpeg",
			FfprobePath: "ffprobe",
		},
		Storage: Storage{
			CacheEnabled:  true,
			CacheTTLHours: 24,
		},
		Queue: Queue{
			RedisAddr:   "127.0.0.1:6379",
			Concurrency: 2,
		},
	}
}

func ResolveConfigPath() (string, error) {
	paths, err := appdirs.Resolve()
	if err != nil {
		return "", err
	}
	return paths.ConfigFile, nil
}

// LoadEnv reads a .env file from the working directory if there is one.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.GetLogger().Warn("failed to load .env", zap.Error(err))
	}
}

// LoadOrCreateConfig loads the config file, writing defaults first when it
// does not exist. created reports whether the file was generated.
func LoadOrCreateConfig() (created bool, err error) {
	configPath, err := resolveConfigPath()
	if err != nil {
		return false, err
	}

	if _, err = os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		Conf = defaultConfig()
		if err = SaveConfig(); err != nil {
			return false, err
		}
		log.GetLogger().Info("generated default config", zap.String("path", configPath))
		created = true
	} else if err != nil {
		return false, err
	} else {
		loaded := defaultConfig()
		if _, err = toml.DecodeFile(configPath, &loaded); err != nil {
			return false, fmt.Errorf("decode config %s: %w", configPath, err)
		}
		Conf = loaded
		log.GetLogger().Info("loaded config", zap.String("path", configPath))
	}

	applyEnvOverrides(&Conf, os.Getenv)
	return created, nil
}

// applyEnvOverrides lets secrets live in the environment instead of the file.
func applyEnvOverrides(c *Config, getenv func(string) string) {
	if v := getenv("LLM_API_KEY"); v != "" {
		c.Llm.ApiKey = v
	} else if v = getenv("OPENAI_API_KEY"); v != "" && c.Llm.ApiKey == "" {
		c.Llm.ApiKey = v
	}
	if v := getenv("LLM_BASE_URL"); v != "" {
		c.Llm.BaseUrl = v
	}
	if v := getenv("LLM_MODEL"); v != "" {
		c.Llm.Model = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" && c.Transcribe.Openai.ApiKey == "" {
		c.Transcribe.Openai.ApiKey = v
	}
	if v := getenv("YTDLP_COOKIES"); v != "" {
		c.Deps.CookiesPath = v
	}
}

func SaveConfig() error {
	configPath, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(Conf)
}

// CheckConfig validates Conf and fills derived fields.
func CheckConfig() error {
	if Conf.App.Proxy != "" {
		parsed, err := url.Parse(Conf.App.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy %q: %w", Conf.App.Proxy, err)
		}
		Conf.App.ParsedProxy = parsed
	}
	if Conf.App.TranscribeParallelNum <= 0 {
		Conf.App.TranscribeParallelNum = 1
	}

	switch Conf.Transcribe.Primary {
	case "openai":
		if Conf.Transcribe.Openai.ApiKey == "" {
			Conf.Transcribe.Openai.ApiKey = Conf.Llm.ApiKey
		}
		if Conf.Transcribe.Openai.ApiKey == "" {
			return errors.New("transcribe.openai.api_key is required when transcribe.primary is openai")
		}
	case "local":
	default:
		return fmt.Errorf("transcribe.primary must be openai or local, got %q", Conf.Transcribe.Primary)
	}
	if !types.IsWhisperModel(Conf.Transcribe.Local.Model) {
		return fmt.Errorf("transcribe.local.model must be one of %s", strings.Join(types.WhisperModels, ", "))
	}

	if Conf.Llm.ApiKey == "" {
		return errors.New("llm.api_key is required")
	}

	return checkClipper(Conf.Clipper)
}

func checkClipper(c Clipper) error {
	switch {
	case c.ChunkThresholdSec <= 0 || c.ChunkSizeSec <= 0:
		return errors.New("clipper chunk sizes must be positive")
	case c.ChunkSizeSec > c.ChunkThresholdSec:
		return errors.New("clipper.chunk_size_sec must not exceed chunk_threshold_sec")
	case c.MinChunkSec < 0 || c.MinChunkSec >= c.ChunkSizeSec:
		return errors.New("clipper.min_chunk_sec must be in [0, chunk_size_sec)")
	case c.MinDurationSec <= 0 || c.MinDurationSec > c.MaxDurationSec:
		return errors.New("clipper durations must satisfy 0 < min_duration_sec <= max_duration_sec")
	case c.MinScore < 0 || c.MinScore > 1:
		return errors.New("clipper.min_score must be in [0, 1]")
	case c.MergeSimilarity <= 0 || c.MergeSimilarity > 1:
		return errors.New("clipper.merge_similarity must be in (0, 1]")
	case c.OverlapFraction <= 0 || c.OverlapFraction > 1:
		return errors.New("clipper.overlap_fraction must be in (0, 1]")
	case c.SnapToleranceSec < 0:
		return errors.New("clipper.snap_tolerance_sec must not be negative")
	case c.MaxClips <= 0:
		return errors.New("clipper.max_clips must be positive")
	}
	return nil
}
