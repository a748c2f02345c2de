// Package correction refines extracted page content with a vision-capable
// language model. One request is made per page, carrying the page's blocks
// as JSON and a JPEG of the page.
package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/docconv/internal/domain"
)

// Provider names. ProviderAuto is resolved to one of the others before New.
const (
	ProviderNone   = "none"
	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Reason classifies why a correction attempt produced no usable content
type Reason string

const (
	ReasonLength        Reason = "length"
	ReasonRefusal       Reason = "refusal"
	ReasonContentFilter Reason = "content_filter"
	ReasonSafety        Reason = "safety"
	ReasonInvalidJSON   Reason = "invalid_json"
	ReasonSchema        Reason = "schema"
	ReasonHTTP          Reason = "http"
)

// Failure is returned by a Corrector when a page cannot be corrected
type Failure struct {
	Provider string
	Reason   Reason
	Detail   string
	Err      error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("correction failed (%s, %s)", f.Provider, f.Reason)
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{domain.ErrCorrectionFailed}
	}
	return []error{domain.ErrCorrectionFailed, f.Err}
}

// ReasonOf returns the failure reason carried by err, if any
func ReasonOf(err error) (Reason, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason, true
	}
	return "", false
}

// Page is one page of a document to correct
type Page struct {
	Index  int
	Blocks []domain.ContentBlock
	Image  []byte // JPEG
}

// Corrector corrects the blocks of a single page
type Corrector interface {
	Correct(ctx context.Context, page Page) ([]domain.ContentBlock, error)
}

// Config holds the settings shared by every provider
type Config struct {
	CustomInstruction string
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	OpenAI            OpenAIConfig
	Gemini            GeminiConfig
}

// OpenAIConfig holds OpenAI chat completions settings
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	ImageDetail string
}

// GeminiConfig holds Gemini generateContent settings
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// New builds the Corrector for an already resolved provider. It returns
// nil for ProviderNone, which disables correction.
func New(provider string, config Config, logger *slog.Logger) (Corrector, error) {
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	t := &transport{
		client: &http.Client{Timeout: config.Timeout},
		retry: retryConfig{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: config.InitialBackoff,
			MaxBackoff:     config.MaxBackoff,
		},
		logger: logger,
	}

	switch provider {
	case ProviderNone, "":
		return nil, nil
	case ProviderOpenAI:
		return newOpenAI(config, t, logger), nil
	case ProviderGemini:
		return newGemini(config, t, logger), nil
	default:
		return nil, fmt.Errorf("unsupported correction provider: %q", provider)
	}
}
