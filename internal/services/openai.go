package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIAnalyzer transcribes with Whisper and scores the transcript with a
// JSON-mode chat completion.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
	audio  *AudioSource
}

func NewOpenAIAnalyzer(apiKey, baseURL, model string, audio *AudioSource) *OpenAIAnalyzer {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIAnalyzer{
		client: openai.NewClientWithConfig(config),
		model:  model,
		audio:  audio,
	}
}

func (o *OpenAIAnalyzer) Analyze(ctx context.Context, audioRef string) (*models.AnalysisResult, error) {
	audio, err := o.audio.Open(ctx, audioRef)
	if err != nil {
		return nil, err
	}

	transcription, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audio.FileName,
		Reader:   bytes.NewReader(audio.Data),
		Language: "en",
	})
	if err != nil {
		return nil, classifyOpenAIError("transcription", err)
	}

	transcript := strings.TrimSpace(transcription.Text)
	if transcript == "" {
		return nil, &UnusableResultError{Reason: "no speech detected"}
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildTranscriptAssessmentPrompt(transcript)},
		},
		Temperature:    0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, classifyOpenAIError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &UnusableResultError{Reason: "OpenAI returned no choices"}
	}

	result, err := parseAssessment(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	// Whisper output is authoritative; the model only echoes it.
	result.Transcript = transcript
	return result, nil
}

// classifyOpenAIError marks client-side failures as non-retryable and leaves
// rate limits and server errors to the retry policy.
func classifyOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.HTTPStatusCode
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
			return &ProviderRejectedError{Provider: "OpenAI " + op, StatusCode: status, Err: err}
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		status := reqErr.HTTPStatusCode
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
			return &ProviderRejectedError{Provider: "OpenAI " + op, StatusCode: status, Err: err}
		}
	}
	return fmt.Errorf("OpenAI %s failed: %w", op, err)
}
