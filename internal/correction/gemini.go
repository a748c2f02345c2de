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
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-1.5-flash"
)

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		FinishReason string        `json:"finishReason"`
		Content      geminiContent `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// gemini corrects pages through the generateContent API
type gemini struct {
	config    GeminiConfig
	system    string
	transport *transport
	logger    *slog.Logger
}

func newGemini(config Config, t *transport, logger *slog.Logger) *gemini {
	gc := config.Gemini
	if gc.BaseURL == "" {
		gc.BaseURL = defaultGeminiBaseURL
	}
	if gc.Model == "" {
		gc.Model = defaultGeminiModel
	}
	return &gemini{
		config:    gc,
		system:    SystemPrompt(config.CustomInstruction),
		transport: t,
		logger:    logger.With(slog.String("provider", ProviderGemini)),
	}
}

// Correct sends one page to the generateContent endpoint
func (c *gemini) Correct(ctx context.Context, page Page) ([]domain.ContentBlock, error) {
	if len(page.Blocks) == 0 {
		return []domain.ContentBlock{}, nil
	}

	user, err := UserPrompt(page.Blocks)
	if err != nil {
		return nil, err
	}

	req := geminiRequest{
		Contents: []geminiContent{
			{
				Role: "user",
				Parts: []geminiPart{
					{InlineData: &geminiInlineData{
						MimeType: "image/jpeg",
						Data:     base64.StdEncoding.EncodeToString(page.Image),
					}},
					{Text: c.system + "\n" + geminiJSONAddon + "\n" + user},
				},
			},
		},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			Temperature:      0.1,
		},
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(c.config.BaseURL, "/"), c.config.Model)
	raw, err := c.transport.postJSON(ctx, ProviderGemini, url, req, map[string]string{
		"x-goog-api-key": c.config.APIKey,
	})
	if err != nil {
		return nil, err
	}

	text, err := c.candidateText(raw)
	if err != nil {
		return nil, err
	}

	blocks, err := parseBlocks(ProviderGemini, text, page.Index)
	if err != nil {
		c.logger.Error("Gemini generated unusable JSON",
			slog.Int("page_idx", page.Index),
			slog.Any("error", err),
		)
		return nil, err
	}
	return blocks, nil
}

// candidateText checks block and finish reasons and joins the text parts
func (c *gemini) candidateText(raw []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &Failure{Provider: ProviderGemini, Reason: ReasonInvalidJSON, Detail: "malformed response envelope", Err: err}
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &Failure{Provider: ProviderGemini, Reason: ReasonSafety, Detail: "prompt blocked: " + resp.PromptFeedback.BlockReason}
	}
	if len(resp.Candidates) == 0 {
		return "", &Failure{Provider: ProviderGemini, Reason: ReasonInvalidJSON, Detail: "response has no candidates"}
	}

	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case "MAX_TOKENS":
		return "", &Failure{Provider: ProviderGemini, Reason: ReasonLength, Detail: "output truncated at the token limit"}
	case "SAFETY", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return "", &Failure{Provider: ProviderGemini, Reason: ReasonSafety, Detail: "finish reason " + cand.FinishReason}
	case "RECITATION":
		return "", &Failure{Provider: ProviderGemini, Reason: ReasonContentFilter, Detail: "finish reason RECITATION"}
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", &Failure{Provider: ProviderGemini, Reason: ReasonInvalidJSON, Detail: "empty candidate content"}
	}
	return sb.String(), nil
}
