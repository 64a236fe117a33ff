package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/prompts"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	"github.com/asaCurry/prescriber-point-sub001/pkg/config"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

const (
	providerName = "anthropic"
	defaultModel = "claude-3-5-haiku-latest"
)

// Client implements GenerationProvider on the Anthropic Messages API.
type Client struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	limiter     *rate.Limiter
}

var _ providers.GenerationProvider = (*Client)(nil)

// NewClient creates a new Anthropic client. SDK retries are disabled; the
// caller's retry policy owns retries.
func NewClient(cfg *config.GenerationConfig) (*Client, error) {
	if cfg == nil || cfg.AnthropicAPIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}

	model := cfg.AnthropicModel
	if model == "" {
		model = defaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.AnthropicAPIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if base := strings.TrimSpace(cfg.AnthropicURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")))
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	return &Client{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		limiter:     newLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst),
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return providerName }

// Generate sends one Messages request and returns the text content.
func (c *Client) Generate(ctx context.Context, req entities.GenerationRequest) (*entities.GeneratedOutput, error) {
	system, user, err := prompts.Build(req)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "anthropic.messages.new")
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			observability.RecordError(span, err)
			return nil, apperrors.NewRateLimitedError("anthropic request queue full", err)
		}
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: system}},
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, classify(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		// An empty body is treated as malformed output by the parser.
		return &entities.GeneratedOutput{Provider: providerName, Model: c.model}, nil
	}

	model := string(msg.Model)
	if model == "" {
		model = c.model
	}
	return &entities.GeneratedOutput{Text: text.String(), Provider: providerName, Model: model}, nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apperrors.FromHTTPStatus(providerName, apiErr.StatusCode, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// Connection resets, DNS failures and deadline expiry all land here.
	return apperrors.NewTransientError(fmt.Sprintf("%s request failed", providerName), err)
}

func newLimiter(rpm, burst int) *rate.Limiter {
	if rpm < 0 {
		return nil
	}
	if rpm == 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = 5
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst)
}
