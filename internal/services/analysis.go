package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

const (
	minScore    = 0.0
	maxScore    = 100.0
	minSeverity = 1
	maxSeverity = 5
)

// normalizeResult rejects results that can never be persisted and coerces
// the rest into range. It mutates result in place.
func normalizeResult(result *models.AnalysisResult) error {
	if result == nil {
		return &UnusableResultError{Reason: "provider returned no result"}
	}

	result.Transcript = strings.TrimSpace(result.Transcript)
	if result.Transcript == "" {
		return &UnusableResultError{Reason: "empty transcript"}
	}

	scores := []struct {
		name  string
		value *float64
	}{
		{"pronunciation", &result.PronunciationScore},
		{"fluency", &result.FluencyScore},
		{"accuracy", &result.AccuracyScore},
	}
	for _, score := range scores {
		if math.IsNaN(*score.value) || math.IsInf(*score.value, 0) {
			return &UnusableResultError{Reason: fmt.Sprintf("%s score is not a finite number", score.name)}
		}
		*score.value = math.Max(minScore, math.Min(maxScore, *score.value))
	}

	items := make([]models.FeedbackItem, 0, len(result.Feedback))
	for _, item := range result.Feedback {
		item.Content = strings.TrimSpace(item.Content)
		if item.Content == "" {
			continue
		}
		item.Category = strings.TrimSpace(item.Category)
		if item.Category == "" {
			item.Category = models.DefaultFeedbackType
		}
		if item.Severity != 0 {
			item.Severity = clampInt(item.Severity, minSeverity, maxSeverity)
		}
		if item.WordPosition != nil && *item.WordPosition < 0 {
			item.WordPosition = nil
		}
		items = append(items, item)
	}
	result.Feedback = items
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// assessmentPayload mirrors the JSON document the LLM providers are asked
// to produce. Scores are pointers so a missing field is distinguishable
// from a zero score.
type assessmentPayload struct {
	Transcript         string                `json:"transcript"`
	PronunciationScore *float64              `json:"pronunciation_score"`
	FluencyScore       *float64              `json:"fluency_score"`
	AccuracyScore      *float64              `json:"accuracy_score"`
	Feedback           []models.FeedbackItem `json:"feedback"`
}

// parseAssessment decodes a model reply that should contain one JSON object,
// tolerating markdown fences and surrounding prose.
func parseAssessment(raw string) (*models.AnalysisResult, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var payload assessmentPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start == -1 || end <= start {
			return nil, &UnusableResultError{Reason: "reply contains no JSON object"}
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
			return nil, &UnusableResultError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
		}
	}

	if payload.PronunciationScore == nil || payload.FluencyScore == nil || payload.AccuracyScore == nil {
		return nil, &UnusableResultError{Reason: "reply is missing one or more scores"}
	}

	return &models.AnalysisResult{
		Transcript:         payload.Transcript,
		PronunciationScore: *payload.PronunciationScore,
		FluencyScore:       *payload.FluencyScore,
		AccuracyScore:      *payload.AccuracyScore,
		Feedback:           payload.Feedback,
	}, nil
}

const assessmentSchema = `Respond with a single JSON object and nothing else:
{
  "transcript": "<verbatim transcript>",
  "pronunciation_score": <number 0-100>,
  "fluency_score": <number 0-100>,
  "accuracy_score": <number 0-100>,
  "feedback": [
    {
      "category": "Pronunciation|Fluency|Grammar|Vocabulary",
      "content": "<one actionable comment>",
      "detailed_analysis": "<optional longer explanation>",
      "severity": <integer 1-5>,
      "word_position": <optional 0-based word index into the transcript>,
      "suggestion": "<optional concrete fix>"
    }
  ]
}
Give between 1 and 5 feedback items, most important first.`

func buildAudioAssessmentPrompt() string {
	return "You are an English speaking coach. Listen to the learner's recording, transcribe it verbatim, " +
		"then score pronunciation, fluency and grammatical accuracy from 0 to 100.\n\n" + assessmentSchema
}

func buildTranscriptAssessmentPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("You are an English speaking coach. Below is the automatic transcript of a learner's spoken answer. ")
	b.WriteString("Score pronunciation (judged from transcription artefacts such as misheard words), fluency and ")
	b.WriteString("grammatical accuracy from 0 to 100. Repeat the transcript unchanged in the \"transcript\" field.\n\n")
	b.WriteString(assessmentSchema)
	b.WriteString("\n\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}
