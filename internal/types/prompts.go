package types

const OracleSystemPrompt = "You are an expert at identifying viral video moments. Analyze transcripts to find highly engaging, shareable moments. Reply with one JSON object and nothing else."

// CandidatePromptTemplate arguments: title, channel, duration seconds,
// candidate count, min seconds, max seconds, min seconds, max seconds, transcript.
const CandidatePromptTemplate = `You help content creators find high-performing short-form clips inside long-form videos.

Video context:
- Title: %s
- Channel: %s
- Duration: %.0f seconds

Task: propose up to %d clips for TikTok, Reels and Shorts. Each clip must capture a complete thought with a natural beginning and end.

Selection rules:
1) Look for hooks, punchlines, reveals and strong reactions.
2) Expand boundaries to the complete thought, %.0f-%.0f seconds long.
3) Start at the beginning of a sentence and end at the end of one. Never cut mid-sentence.
4) If there is a punchline include its setup. If there is an exchange include both sides.
5) Clips must not overlap.

Score each clip from 0.0 to 1.0: emotional impact 0.3, shareability 0.3, completeness 0.2, platform fit 0.2.

Return JSON with exactly this structure:
{
  "candidates": [
    {
      "start": <seconds as a number>,
      "end": <seconds as a number>,
      "hook": "<8-12 word catchy title>",
      "score": <0.0-1.0>,
      "rationale": "<2-3 sentences on why it is viral and complete>"
    }
  ]
}

Clips shorter than %.0f seconds or longer than %.0f seconds will be rejected.

TRANSCRIPT WITH TIMESTAMPS:
%s`

// StrictRetrySuffix is appended after a malformed reply.
const StrictRetrySuffix = `

IMPORTANT: your previous reply could not be parsed. Respond with ONLY the JSON object described above. No prose, no markdown fences, no comments. Every candidate must have numeric "start", "end" and "score", and string "hook" and "rationale".`
