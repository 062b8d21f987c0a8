package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

func TestParseAssessment(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain", `{"transcript":"hello","pronunciation_score":81.5,"fluency_score":70,"accuracy_score":90,"feedback":[{"category":"Fluency","content":"ok","severity":2}]}`},
		{"fenced", "```json\n{\"transcript\":\"hello\",\"pronunciation_score\":81.5,\"fluency_score\":70,\"accuracy_score\":90,\"feedback\":[{\"category\":\"Fluency\",\"content\":\"ok\",\"severity\":2}]}\n```"},
		{"prose around", "Here is the assessment:\n{\"transcript\":\"hello\",\"pronunciation_score\":81.5,\"fluency_score\":70,\"accuracy_score\":90,\"feedback\":[{\"category\":\"Fluency\",\"content\":\"ok\",\"severity\":2}]}\nGood luck!"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := parseAssessment(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, "hello", result.Transcript)
			assert.Equal(t, 81.5, result.PronunciationScore)
			assert.Equal(t, 70.0, result.FluencyScore)
			assert.Equal(t, 90.0, result.AccuracyScore)
			require.Len(t, result.Feedback, 1)
			assert.Equal(t, 2, result.Feedback[0].Severity)
		})
	}
}

func TestParseAssessment_Unusable(t *testing.T) {
	for _, raw := range []string{
		"I cannot assess this recording.",
		`{"transcript":"hi","pronunciation_score":80}`,
		`{"transcript":"hi", "pronunciation_score": }`,
	} {
		_, err := parseAssessment(raw)
		var unusable *UnusableResultError
		assert.ErrorAs(t, err, &unusable, raw)
	}
}

func TestNormalizeResult(t *testing.T) {
	pos := -4
	result := &models.AnalysisResult{
		Transcript:         "  hello there ",
		PronunciationScore: 104,
		FluencyScore:       -3,
		AccuracyScore:      55.5,
		Feedback: []models.FeedbackItem{
			{Category: " ", Content: "Good linking", Severity: 0, WordPosition: &pos},
			{Category: "Grammar", Content: "", Severity: 3},
			{Category: "Grammar", Content: "Article missing", Severity: -2},
		},
	}

	require.NoError(t, normalizeResult(result))

	assert.Equal(t, "hello there", result.Transcript)
	assert.Equal(t, 100.0, result.PronunciationScore)
	assert.Equal(t, 0.0, result.FluencyScore)
	assert.Equal(t, 55.5, result.AccuracyScore)
	require.Len(t, result.Feedback, 2)
	assert.Equal(t, models.DefaultFeedbackType, result.Feedback[0].Category)
	assert.Zero(t, result.Feedback[0].Severity)
	assert.Nil(t, result.Feedback[0].WordPosition)
	assert.Equal(t, 1, result.Feedback[1].Severity)
}

func TestNormalizeResult_RejectsNonFiniteScores(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		result := fixedResult()
		result.FluencyScore = v
		err := normalizeResult(result)
		var unusable *UnusableResultError
		assert.ErrorAs(t, err, &unusable)
	}

	var unusable *UnusableResultError
	assert.ErrorAs(t, normalizeResult(nil), &unusable)
}
