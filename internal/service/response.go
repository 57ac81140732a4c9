package service

import (
	"github.com/samber/lo"

	"viral-clipper/internal/dto"
	"viral-clipper/internal/types"
	"viral-clipper/pkg/util"
)

const previewRunes = 200

// BuildResponse serializes a ranked result for the CLI and HTTP surfaces.
func BuildResponse(result *types.RankedResult, includeTranscript bool) dto.AnalyzeResult {
	clips := lo.Map(result.Clips, func(c types.RankedClip, _ int) dto.ClipItem {
		start, end := util.FormatTimecode(c.Start), util.FormatTimecode(c.End)
		item := dto.ClipItem{
			Rank:          c.Rank,
			Hook:          c.Hook,
			Timestamp:     start + " - " + end,
			StartTime:     start,
			EndTime:       end,
			StartSeconds:  c.Start,
			EndSeconds:    c.End,
			Duration:      c.Duration,
			ViralityScore: c.Score,
			WhyViral:      c.Rationale,
		}
		if result.Transcript != nil {
			item.TranscriptPreview = util.TruncateRunes(result.Transcript.TextBetween(c.Start, c.End), previewRunes, "...")
		}
		return item
	})

	res := dto.AnalyzeResult{
		VideoTitle:      result.Source.Title,
		VideoUrl:        result.Source.URL,
		VideoDuration:   result.Source.Duration,
		Channel:         result.Source.Channel,
		ViralClipsFound: len(clips),
		TopClips:        clips,
	}
	if includeTranscript && result.Transcript != nil {
		res.FullTranscript = lo.Map(result.Transcript.Segments, func(s types.TranscriptSegment, _ int) dto.TranscriptLine {
			return dto.TranscriptLine{
				Timestamp: util.FormatTimecode(s.Start) + " - " + util.FormatTimecode(s.End),
				Start:     s.Start,
				End:       s.End,
				Text:      s.Text,
			}
		})
	}
	return res
}
