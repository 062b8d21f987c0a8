package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiAnalyzer scores a recording in one multimodal call: the audio is
// uploaded through the File API and the model returns transcript, scores and
// feedback as JSON.
type GeminiAnalyzer struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	audio    *AudioSource
	rateChan chan struct{} // Token bucket
}

func NewGeminiAnalyzer(apiKey, modelName string, concurrentReqs int, audio *AudioSource) (*GeminiAnalyzer, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if modelName == "" {
		modelName = defaultGeminiModel
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.2)
	model.SetTopP(0.95)
	model.ResponseMIMEType = "application/json"

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiAnalyzer{
		client:   client,
		model:    model,
		audio:    audio,
		rateChan: rateChan,
	}, nil
}

func (g *GeminiAnalyzer) Close() {
	g.client.Close()
}

// acquireRate blocks until a rate slot is available or ctx ends.
func (g *GeminiAnalyzer) acquireRate(ctx context.Context) error {
	select {
	case <-g.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *GeminiAnalyzer) releaseRate() {
	g.rateChan <- struct{}{}
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, audioRef string) (*models.AnalysisResult, error) {
	audio, err := g.audio.Open(ctx, audioRef)
	if err != nil {
		return nil, err
	}
	if len(audio.Data) == 0 {
		return nil, &UnusableResultError{Reason: "audio payload is empty"}
	}

	if err := g.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer g.releaseRate()

	file, err := g.client.UploadFile(ctx, "", bytes.NewReader(audio.Data), &genai.UploadFileOptions{
		DisplayName: audio.FileName,
		MIMEType:    audio.MIMEType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio to Gemini: %w", err)
	}

	// Ensure remote file is cleaned up
	defer g.client.DeleteFile(context.Background(), file.Name)

	file, err = g.waitActive(ctx, file)
	if err != nil {
		return nil, err
	}

	resp, err := g.model.GenerateContent(ctx,
		genai.Text(buildAudioAssessmentPrompt()),
		genai.FileData{MIMEType: audio.MIMEType, URI: file.URI},
	)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Warn().Int("candidate", i).Str("finish_reason", cand.FinishReason.String()).Msg("Gemini stopped early")
		}
	}

	raw := strings.TrimSpace(extractText(resp))
	if raw == "" {
		return nil, &UnusableResultError{Reason: "Gemini returned an empty reply"}
	}
	return parseAssessment(raw)
}

func (g *GeminiAnalyzer) waitActive(ctx context.Context, file *genai.File) (*genai.File, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for i := 0; i < 20; i++ {
		current, err := g.client.GetFile(ctx, file.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to get uploaded file status: %w", err)
		}

		switch current.State {
		case genai.FileStateActive:
			return current, nil
		case genai.FileStateFailed:
			return nil, &UnusableResultError{Reason: "Gemini failed to process uploaded audio file"}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, fmt.Errorf("audio file did not become active in time")
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
