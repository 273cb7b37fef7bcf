package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/mail-sentinel/internal/core"
	"github.com/mikey/mail-sentinel/internal/utils"
	"go.uber.org/zap"
)

// BedrockAnalyzer is an implementation of the ContentAnalyzer interface using Amazon Bedrock
type BedrockAnalyzer struct {
	client        *bedrockruntime.Client
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	promptFormat  string
	textProcessor *utils.TextProcessor
}

// RiskAnalysisResponse represents the structured response from the LLM
type RiskAnalysisResponse struct {
	SenderRisk   float64 `json:"sender_risk"`
	ContentRisk  float64 `json:"content_risk"`
	OverallScore float64 `json:"overall_score"`
	Explanation  string  `json:"explanation"`
}

// NewBedrockAnalyzer creates a new Bedrock analyzer
func NewBedrockAnalyzer(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *BedrockAnalyzer {
	return &BedrockAnalyzer{
		client:        client,
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
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
	}
}

// AssessEmail estimates sender and content risk for an email message
func (a *BedrockAnalyzer) AssessEmail(ctx context.Context, msg *core.EmailMessage) (*core.EmailRiskAssessment, error) {
	body := msg.Body
	if body == "" {
		// HTML-only messages carry no text body
		body = msg.HTMLBody
	}

	// Process the body (truncate and sanitize)
	processedBody := a.textProcessor.ProcessText(body, a.maxBodySize)

	prompt := fmt.Sprintf(a.promptFormat, msg.Sender, msg.Subject, processedBody)

	// Create the request based on the model
	var payload []byte
	var err error

	if a.isAnthropicModel() {
		// Anthropic Claude models
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":               prompt,
			"max_tokens_to_sample": a.maxTokens,
			"temperature":          a.temperature,
			"top_p":                a.topP,
		})
	} else if a.isAmazonTitanModel() {
		// Amazon Titan models
		payload, err = json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": a.maxTokens,
				"temperature":   a.temperature,
				"topP":          a.topP,
			},
		})
	} else {
		// Default to a generic format
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  a.maxTokens,
			"temperature": a.temperature,
			"top_p":       a.topP,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	// Call Bedrock API
	resp, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &a.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	// Parse the response based on the model
	var responseText string

	if a.isAnthropicModel() {
		// Anthropic Claude models
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(resp.Body, &claudeResp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		responseText = claudeResp.Completion
	} else if a.isAmazonTitanModel() {
		// Amazon Titan models
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(resp.Body, &titanResp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) > 0 {
			responseText = titanResp.Results[0].OutputText
		} else {
			return nil, fmt.Errorf("empty response from Titan model")
		}
	} else {
		// Try a generic approach
		var genericResp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(resp.Body, &genericResp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal generic response: %w", err)
		}

		// Try different fields
		if genericResp.Output != "" {
			responseText = genericResp.Output
		} else if genericResp.Text != "" {
			responseText = genericResp.Text
		} else if genericResp.Response != "" {
			responseText = genericResp.Response
		} else {
			// Just use the raw response as a string
			responseText = string(resp.Body)
		}
	}

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
		ModelUsed:    a.modelID,
	}

	return result, nil
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (a *BedrockAnalyzer) isAnthropicModel() bool {
	return strings.HasPrefix(a.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (a *BedrockAnalyzer) isAmazonTitanModel() bool {
	return strings.HasPrefix(a.modelID, "amazon.titan")
}
