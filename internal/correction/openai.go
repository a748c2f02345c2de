package correction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/docconv/internal/domain"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o"
)

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string               `json:"model"`
	Messages       []openAIMessage      `json:"messages"`
	Temperature    float64              `json:"temperature"`
	ResponseFormat openAIResponseFormat `json:"response_format"`
}

type openAIResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content *string `json:"content"`
			Refusal *string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// openAI corrects pages through the chat completions API
type openAI struct {
	config    OpenAIConfig
	system    string
	transport *transport
	logger    *slog.Logger
}

func newOpenAI(config Config, t *transport, logger *slog.Logger) *openAI {
	oc := config.OpenAI
	if oc.BaseURL == "" {
		oc.BaseURL = defaultOpenAIBaseURL
	}
	if oc.Model == "" {
		oc.Model = defaultOpenAIModel
	}
	if oc.ImageDetail == "" {
		oc.ImageDetail = "low"
	}
	return &openAI{
		config:    oc,
		system:    SystemPrompt(config.CustomInstruction),
		transport: t,
		logger:    logger.With(slog.String("provider", ProviderOpenAI)),
	}
}

// Correct sends one page to the chat completions endpoint
func (c *openAI) Correct(ctx context.Context, page Page) ([]domain.ContentBlock, error) {
	if len(page.Blocks) == 0 {
		return []domain.ContentBlock{}, nil
	}

	user, err := UserPrompt(page.Blocks)
	if err != nil {
		return nil, err
	}

	req := openAIRequest{
		Model: c.config.Model,
		Messages: []openAIMessage{
			{
				Role:    "system",
				Content: []openAIContentPart{{Type: "text", Text: c.system}},
			},
			{
				Role: "user",
				Content: []openAIContentPart{
					{Type: "text", Text: user},
					{
						Type: "image_url",
						ImageURL: &openAIImageURL{
							URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(page.Image),
							Detail: c.config.ImageDetail,
						},
					},
				},
			},
		},
		Temperature:    c.config.Temperature,
		ResponseFormat: openAIResponseFormat{Type: "json_object"},
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	raw, err := c.transport.postJSON(ctx, ProviderOpenAI, url, req, map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	})
	if err != nil {
		return nil, err
	}

	text, err := c.completionText(raw)
	if err != nil {
		return nil, err
	}

	blocks, err := parseBlocks(ProviderOpenAI, text, page.Index)
	if err != nil {
		c.logger.Error("OpenAI generated unusable JSON",
			slog.Int("page_idx", page.Index),
			slog.Any("error", err),
		)
		return nil, err
	}
	return blocks, nil
}

// completionText checks the finish reason and returns the message content
func (c *openAI) completionText(raw []byte) (string, error) {
	var resp openAIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &Failure{Provider: ProviderOpenAI, Reason: ReasonInvalidJSON, Detail: "malformed response envelope", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Failure{Provider: ProviderOpenAI, Reason: ReasonInvalidJSON, Detail: "response has no choices"}
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != nil && *choice.Message.Refusal != "" {
		return "", &Failure{Provider: ProviderOpenAI, Reason: ReasonRefusal, Detail: *choice.Message.Refusal}
	}

	switch choice.FinishReason {
	case "length":
		return "", &Failure{Provider: ProviderOpenAI, Reason: ReasonLength, Detail: "output truncated at the token limit"}
	case "content_filter":
		return "", &Failure{Provider: ProviderOpenAI, Reason: ReasonContentFilter, Detail: "content filter halted generation"}
	case "stop", "":
	default:
		return "", &Failure{Provider: ProviderOpenAI, Reason: ReasonInvalidJSON, Detail: fmt.Sprintf("unexpected finish reason %q", choice.FinishReason)}
	}

	if choice.Message.Content == nil {
		return "", &Failure{Provider: ProviderOpenAI, Reason: ReasonInvalidJSON, Detail: "empty message content"}
	}
	return *choice.Message.Content, nil
}
