package dto

import "time"

// AnalyzeConfig is the per-run knob set accepted by every entry point.
type AnalyzeConfig struct {
	MaxClips          int     `json:"max_clips" validate:"gte=1,lte=20"`
	WhisperModel      string  `json:"whisper_model" validate:"oneof=tiny base small medium large"`
	MinDuration       float64 `json:"min_duration_s" validate:"gt=0"`
	MaxDuration       float64 `json:"max_duration_s" validate:"gt=0,gtefield=MinDuration"`
	IncludeTranscript bool    `json:"include_transcript"`
}

func DefaultAnalyzeConfig() AnalyzeConfig {
	return AnalyzeConfig{
		MaxClips:     4,
		WhisperModel: "base",
		MinDuration:  25,
		MaxDuration:  65,
	}
}

// WithDefaults fills zero fields from DefaultAnalyzeConfig.
func (c AnalyzeConfig) WithDefaults() AnalyzeConfig {
	d := DefaultAnalyzeConfig()
	if c.MaxClips == 0 {
		c.MaxClips = d.MaxClips
	}
	if c.WhisperModel == "" {
		c.WhisperModel = d.WhisperModel
	}
	if c.MinDuration == 0 {
		c.MinDuration = d.MinDuration
	}
	if c.MaxDuration == 0 {
		c.MaxDuration = d.MaxDuration
	}
	return c
}

func (c AnalyzeConfig) Validate() error {
	return validate(c)
}

// AnalyzeReq is the body of POST /api/clipper/analyze. Only http(s) sources
// are accepted over HTTP; local files are a CLI feature.
type AnalyzeReq struct {
	Url string `json:"url" validate:"required,http_url"`
	AnalyzeConfig
}

// SubmitJobReq is the body of POST /api/clipper/jobs.
type SubmitJobReq struct {
	Url         string `json:"url" validate:"required,http_url"`
	CallbackUrl string `json:"callback_url" validate:"omitempty,url"`
	AnalyzeConfig
}

type SubmitJobResData struct {
	JobId string `json:"job_id"`
}

type ClipItem struct {
	Rank              int     `json:"rank"`
	Hook              string  `json:"hook"`
	Timestamp         string  `json:"timestamp"`
	StartTime         string  `json:"start_time"`
	EndTime           string  `json:"end_time"`
	StartSeconds      float64 `json:"start_seconds"`
	EndSeconds        float64 `json:"end_seconds"`
	Duration          float64 `json:"duration"`
	ViralityScore     float64 `json:"virality_score"`
	WhyViral          string  `json:"why_viral"`
	TranscriptPreview string  `json:"transcript_preview"`
}

type TranscriptLine struct {
	Timestamp string  `json:"timestamp"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
}

// AnalyzeResult is the serialized RankedResult.
type AnalyzeResult struct {
	VideoTitle      string           `json:"video_title"`
	VideoUrl        string           `json:"video_url"`
	VideoDuration   float64          `json:"video_duration"`
	Channel         string           `json:"channel"`
	ViralClipsFound int              `json:"viral_clips_found"`
	TopClips        []ClipItem       `json:"top_clips"`
	FullTranscript  []TranscriptLine `json:"full_transcript,omitempty"`
}

type JobStatusData struct {
	JobId     string         `json:"job_id"`
	SourceUrl string         `json:"source_url"`
	Status    string         `json:"status"`
	Stage     string         `json:"stage"`
	ErrorKind string         `json:"error_kind,omitempty"`
	ErrorMsg  string         `json:"error_msg,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Result    *AnalyzeResult `json:"result,omitempty"`
}

type HistoryItem struct {
	JobId      string    `json:"job_id"`
	SourceUrl  string    `json:"source_url"`
	VideoTitle string    `json:"video_title"`
	Status     string    `json:"status"`
	ClipsFound int       `json:"clips_found"`
	CreatedAt  time.Time `json:"created_at"`
}

type HistoryResData struct {
	Items []HistoryItem `json:"items"`
	Total int64         `json:"total"`
}
