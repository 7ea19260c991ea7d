// Package ai contains the generative decision delegate: a structured
// OpenAI-compatible client, the ballot prompt builder, and the batch
// scheduler that resolves high-uncertainty personas.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"electsim/internal"
	"electsim/internal/config"
)

// StructuredClient provides typed JSON responses from LLM calls.
type StructuredClient[T any] struct {
	OpenAIClient *OpenAIClient
	log          *internal.Logger
}

// OpenAIClient holds the connection settings for a chat-completions API.
type OpenAIClient struct {
	APIKey      string
	BaseURL     string
	Timeout     int // in milliseconds
	Temperature float64
	MaxTokens   int
	Model       string
}

// ResponseFormat forces structured output from the model.
type ResponseFormat struct {
	Type string `json:"type"` // "json_object" for structured output
}

// NewStructuredClient creates a typed client from the AI configuration.
func NewStructuredClient[T any](cfg config.AIConfig, log *internal.Logger) *StructuredClient[T] {
	return &StructuredClient[T]{
		OpenAIClient: &OpenAIClient{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Timeout:     cfg.TimeoutMS,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Model:       cfg.Model,
		},
		log: log.Named("llm"),
	}
}

// GetJsonResponse makes a typed LLM call with context support and parses
// the JSON payload into T.
func (client *StructuredClient[T]) GetJsonResponse(ctx context.Context, systemMessage, prompt string) (*T, error) {
	timeout := time.Duration(client.OpenAIClient.Timeout) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type RequestBody struct {
		Model               string         `json:"model"`
		Messages            []Message      `json:"messages"`
		Temperature         float64        `json:"temperature,omitempty"`
		MaxCompletionTokens int            `json:"max_completion_tokens,omitempty"`
		ResponseFormat      ResponseFormat `json:"response_format,omitempty"`
	}

	// JSON mode requires the word JSON somewhere in the conversation.
	if !strings.Contains(strings.ToLower(systemMessage), "json") {
		systemMessage += "\n\nRespond with valid JSON output."
	}

	reqBody := RequestBody{
		Model: client.OpenAIClient.Model,
		Messages: []Message{
			{Role: "system", Content: systemMessage},
			{Role: "user", Content: prompt},
		},
		Temperature:         client.OpenAIClient.Temperature,
		MaxCompletionTokens: client.OpenAIClient.MaxTokens,
		ResponseFormat:      ResponseFormat{Type: "json_object"},
	}

	client.log.Debug("sending request to %s - promptLength=%d, temp=%.2f",
		client.OpenAIClient.Model, len(prompt), client.OpenAIClient.Temperature)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", client.OpenAIClient.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+client.OpenAIClient.APIKey)

	httpClient := &http.Client{Timeout: timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("request timeout after %v: %w", timeout, err)
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OpenAI API error (status %d): %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	type OpenAIResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	var openaiResp OpenAIResponse
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}
	if len(openaiResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in OpenAI response")
	}

	content := cleanJSONContent(openaiResp.Choices[0].Message.Content)

	var result T
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		client.log.Debug("unparseable content: %s", content)
		return nil, fmt.Errorf("failed to parse JSON content into result type: %w", err)
	}
	return &result, nil
}

// cleanJSONContent removes markdown code blocks and chatter around the
// JSON payload.
func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") && strings.HasSuffix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	} else if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	lines := strings.Split(content, "\n")
	cleanedLines := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" ||
			strings.HasPrefix(strings.ToLower(line), "here is") ||
			strings.HasPrefix(strings.ToLower(line), "the json") ||
			strings.HasPrefix(strings.ToLower(line), "output:") ||
			strings.HasPrefix(strings.ToLower(line), "response:") ||
			strings.HasPrefix(strings.ToLower(line), "##") {
			continue
		}
		cleanedLines = append(cleanedLines, line)
	}
	content = strings.TrimSpace(strings.Join(cleanedLines, "\n"))

	if strings.Contains(content, "\n{") {
		parts := strings.SplitN(content, "\n{", 2)
		if len(parts) == 2 && !strings.Contains(parts[0], "{") && !strings.Contains(parts[0], "[") {
			content = "{" + parts[1]
		}
	}
	return content
}
