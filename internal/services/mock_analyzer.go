package services

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

var mockTranscripts = []string{
	"Hi there, I am practising how to introduce myself in English.",
	"Yesterday I went to the market and bought some fresh vegetables.",
	"Could you tell me the way to the nearest train station, please?",
	"In my opinion, learning a language takes patience and daily practice.",
	"I'd like to book a table for two people at seven o'clock tonight.",
}

var mockFeedback = []models.FeedbackItem{
	{
		Category:         "Pronunciation",
		Content:          "Work on the voiced 'th' in words like 'the' and 'this'",
		DetailedAnalysis: strPtr("The tongue should rest lightly between the teeth rather than behind them"),
		Severity:         2,
		WordPosition:     intPtr(3),
		Suggestion:       strPtr("Repeat: this, that, these, those"),
	},
	{
		Category:         "Fluency",
		Content:          "Comfortable speaking rate with natural pauses",
		DetailedAnalysis: strPtr("Pauses fall at phrase boundaries, which keeps the sentence easy to follow"),
		Severity:         1,
		Suggestion:       strPtr("Keep linking words within each phrase"),
	},
	{
		Category:         "Grammar",
		Content:          "Sentence structure is correct",
		DetailedAnalysis: strPtr("Subject, verb and object order is consistent throughout"),
		Severity:         1,
		Suggestion:       strPtr("Try adding a subordinate clause for variety"),
	},
}

// MockAnalyzer is a local stand-in for a speech provider. Output is
// deterministic for a given audio reference: scores in [70,95] and one to
// three feedback items.
type MockAnalyzer struct {
	delay time.Duration
}

func NewMockAnalyzer(delay time.Duration) *MockAnalyzer {
	return &MockAnalyzer{delay: delay}
}

func (m *MockAnalyzer) Analyze(ctx context.Context, audioRef string) (*models.AnalysisResult, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	h := fnv.New64a()
	h.Write([]byte(audioRef))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	score := func() float64 {
		return math.Round((70+rng.Float64()*25)*100) / 100
	}

	result := &models.AnalysisResult{
		Transcript:         mockTranscripts[rng.Intn(len(mockTranscripts))],
		PronunciationScore: score(),
		FluencyScore:       score(),
		AccuracyScore:      score(),
	}

	n := 1 + rng.Intn(len(mockFeedback))
	for _, i := range rng.Perm(len(mockFeedback))[:n] {
		result.Feedback = append(result.Feedback, mockFeedback[i])
	}
	return result, nil
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
