package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/mail-sentinel/internal/core"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiAnalyzer is an implementation of the ContentAnalyzer interface using Google Gemini
type GeminiAnalyzer struct {
	client       *genai.Client
	model        *genai.GenerativeModel
	modelName    string
	maxTokens    int
	temperature  float32
	topP         float32
	maxBodySize  int
	logger       *zap.Logger
	promptFormat string
}

// RiskAnalysisResponse represents the structured response from the LLM
type RiskAnalysisResponse struct {
	SenderRisk   float64 `json:"sender_risk"`
	ContentRisk  float64 `json:"content_risk"`
	OverallScore float64 `json:"overall_score"`
	Explanation  string  `json:"explanation"`
}

// NewGeminiAnalyzer creates a new Gemini analyzer
func NewGeminiAnalyzer(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
) (*GeminiAnalyzer, error) {
	// Create a new Gemini client
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Create a generative model
	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiAnalyzer{
		client:      client,
		model:       model,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		maxBodySize: maxBodySize,
		logger:      logger,
		promptFormat: `You are an email security analyst. Assess how risky the following email is for its recipient.
Respond with a JSON object containing:
- sender_risk: number between 0 and 10 (higher means the sender looks less trustworthy)
- content_risk: number between 0 and 10 (higher means the content applies more pressure or deception)
- overall_score: number between 0 and 10 (overall risk posed by this email)
- explanation: string (brief explanation of the assessment)

Email:
From: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`,
	}, nil
}

// Close closes the Gemini client
func (a *GeminiAnalyzer) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// truncateBody truncates the email body if it exceeds the maximum size
func (a *GeminiAnalyzer) truncateBody(body string) string {
	if a.maxBodySize <= 0 || len(body) <= a.maxBodySize {
		return body
	}

	truncated := body[:a.maxBodySize]
	a.logger.Debug("Email body truncated",
		zap.Int("original_size", len(body)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", a.maxBodySize))

	return truncated + "\n[... Content truncated due to size limits ...]"
}

// AssessEmail estimates sender and content risk for an email message
func (a *GeminiAnalyzer) AssessEmail(ctx context.Context, msg *core.EmailMessage) (*core.EmailRiskAssessment, error) {
	body := msg.Body
	if body == "" {
		// HTML-only messages carry no text body
		body = msg.HTMLBody
	}

	// Truncate the body if needed
	truncatedBody := a.truncateBody(body)

	prompt := fmt.Sprintf(a.promptFormat, msg.Sender, msg.Subject, truncatedBody)

	// Call Gemini API
	resp, err := a.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	// Extract the response text
	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	// Parse the LLM's JSON response
	var analysisResponse RiskAnalysisResponse
	if err := json.Unmarshal([]byte(responseText), &analysisResponse); err != nil {
		// Try to extract JSON from the text response
		jsonStart := 0
		jsonEnd := len(responseText)

		// Find JSON start
		for i := 0; i < len(responseText); i++ {
			if responseText[i] == '{' {
				jsonStart = i
				break
			}
		}

		// Find JSON end
		for i := len(responseText) - 1; i >= 0; i-- {
			if responseText[i] == '}' {
				jsonEnd = i + 1
				break
			}
		}

		if jsonStart < jsonEnd {
			jsonStr := responseText[jsonStart:jsonEnd]
			if err := json.Unmarshal([]byte(jsonStr), &analysisResponse); err != nil {
				return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to extract JSON from LLM response: %w", err)
		}
	}

	// Create the result
	result := &core.EmailRiskAssessment{
		SenderRisk:   analysisResponse.SenderRisk,
		ContentRisk:  analysisResponse.ContentRisk,
		OverallScore: analysisResponse.OverallScore,
		Explanation:  analysisResponse.Explanation,
		AnalyzedAt:   time.Now(),
		ModelUsed:    a.modelName,
	}

	return result, nil
}
