// Package openai provides a unified client for OpenAI API access
// with support for both Azure OpenAI (primary) and OpenAI platform (fallback)
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"helpdesk/internal/config"
	"helpdesk/internal/llm"
	"helpdesk/internal/metrics"
)

// ErrCircuitOpen is returned while the breaker rejects calls after repeated provider failures
var ErrCircuitOpen = errors.New("openai circuit breaker is open")

// Options tunes a Client
type Options struct {
	GPTModel         string
	EmbeddingModel   string
	FallbackGPTModel string
	ProviderName     string
	Timeout          time.Duration // per attempt
	MaxRetries       int           // attempts after the first
	Backoff          time.Duration // base delay, doubled per retry
	Usage            llm.UsageRecorder
	Logger           zerolog.Logger
}

// Client wraps OpenAI client with Azure OpenAI support and fallback capability
type Client struct {
	primary      *openai.Client
	fallback     *openai.Client
	useAzure     bool
	gptModel     string
	fallbackGPT  string
	embedModel   openai.EmbeddingModel
	providerName string
	timeout      time.Duration
	maxRetries   int
	backoff      time.Duration
	breaker      *gobreaker.CircuitBreaker
	usage        llm.UsageRecorder
	logger       zerolog.Logger
}

// NewClient creates a new OpenAI client with Azure as primary and OpenAI as fallback
func NewClient(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	opts := Options{
		Timeout:    cfg.LLMTimeout(),
		MaxRetries: cfg.OpenAIMaxRetries,
		Backoff:    500 * time.Millisecond,
		Logger:     logger,
	}

	var primary openai.ClientConfig
	var fallback *openai.ClientConfig
	useAzure := false

	switch {
	case cfg.UseAzureOpenAI():
		primary = openai.DefaultAzureConfig(cfg.AzureOpenAIKey, cfg.AzureOpenAIEndpoint)
		opts.GPTModel = cfg.AzureOpenAIGPTDeployment
		opts.EmbeddingModel = cfg.AzureOpenAIEmbeddingDeployment
		opts.ProviderName = "Azure OpenAI"
		useAzure = true
		if cfg.HasOpenAIFallback() {
			fb := openai.DefaultConfig(cfg.OpenAIKey)
			fallback = &fb
		}
	case cfg.HasOpenAIFallback():
		primary = openai.DefaultConfig(cfg.OpenAIKey)
		opts.ProviderName = "OpenAI"
	default:
		return nil, fmt.Errorf("no OpenAI provider configured: set AZURE_OPENAI_ENDPOINT + AZURE_OPENAI_KEY or OPENAI_API_KEY")
	}

	client := New(primary, fallback, opts)
	client.useAzure = useAzure

	event := logger.Info().Str("component", "openai").Str("primary", client.providerName)
	if fallback != nil {
		event = event.Str("fallback", "OpenAI")
	}
	event.Msg("OpenAI client configured")

	return client, nil
}

// New builds a client from explicit go-openai configurations
func New(primary openai.ClientConfig, fallback *openai.ClientConfig, opts Options) *Client {
	if opts.GPTModel == "" {
		opts.GPTModel = openai.GPT4oMini
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if opts.FallbackGPTModel == "" {
		opts.FallbackGPTModel = openai.GPT4oMini
	}
	if opts.ProviderName == "" {
		opts.ProviderName = "OpenAI"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	logger := opts.Logger.With().Str("component", "openai").Logger()

	c := &Client{
		primary:      openai.NewClientWithConfig(primary),
		gptModel:     opts.GPTModel,
		fallbackGPT:  opts.FallbackGPTModel,
		embedModel:   openai.EmbeddingModel(opts.EmbeddingModel),
		providerName: opts.ProviderName,
		timeout:      opts.Timeout,
		maxRetries:   opts.MaxRetries,
		backoff:      opts.Backoff,
		usage:        opts.Usage,
		logger:       logger,
	}
	if fallback != nil {
		c.fallback = openai.NewClientWithConfig(*fallback)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openai",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Rejected requests say nothing about provider health
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return c
}

// SetUsageRecorder attaches a token usage sink
func (c *Client) SetUsageRecorder(usage llm.UsageRecorder) {
	c.usage = usage
}

// TestConnection verifies the API connection works
func (c *Client) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := c.CreateEmbeddings(ctx, []string{"test"}); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.providerName, err)
	}

	c.logger.Info().Str("provider", c.providerName).Msg("connection test successful")
	return nil
}

// CreateEmbeddings generates embeddings for the given texts
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	var resp openai.EmbeddingResponse
	err := c.execute(ctx, llm.OperationEmbed, func(ctx context.Context, client *openai.Client, isFallback bool) error {
		model := c.embedModel
		if isFallback {
			model = openai.SmallEmbedding3
		}
		var err error
		resp, err = client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:          texts,
			Model:          model,
			EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		embeddings[idx] = data.Embedding
	}

	c.recordUsage(llm.OperationEmbed, string(c.embedModel), resp.Usage.TotalTokens)
	return embeddings, nil
}

// Complete runs a single-turn chat completion and returns the message text
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	temperature := req.Temperature
	if temperature == 0 {
		// go-openai omits a zero temperature, which the API reads as 1
		temperature = math.SmallestNonzeroFloat32
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.gptModel,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: temperature,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	operation := req.Operation
	if operation == "" {
		operation = "completion"
	}

	var resp openai.ChatCompletionResponse
	err := c.execute(ctx, operation, func(ctx context.Context, client *openai.Client, isFallback bool) error {
		r := chatReq
		if isFallback {
			r.Model = c.fallbackGPT
		}
		var err error
		resp, err = client.CreateChatCompletion(ctx, r)
		return err
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	c.recordUsage(operation, resp.Model, resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// callFunc performs one provider call bound to an attempt context
type callFunc func(ctx context.Context, client *openai.Client, isFallback bool) error

// execute runs call through the circuit breaker with bounded retries on the
// primary provider, then once on the fallback provider
func (c *Client) execute(ctx context.Context, operation string, call callFunc) error {
	start := time.Now()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		err := c.withRetry(ctx, operation, c.primary, false, call)
		if err == nil || c.fallback == nil || ctx.Err() != nil {
			return nil, err
		}

		c.logger.Warn().Err(err).Str("operation", operation).Msg("primary provider failed, trying fallback")
		if fbErr := c.attempt(ctx, c.fallback, true, call); fbErr != nil {
			return nil, fmt.Errorf("both providers failed: %w", fbErr)
		}
		c.logger.Info().Str("operation", operation).Msg("fallback provider succeeded")
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordLLMCall(operation, status, time.Since(start))

	if err != nil {
		return fmt.Errorf("%s call failed: %w", operation, err)
	}
	return nil
}

// withRetry retries transient failures with exponential backoff
func (c *Client) withRetry(ctx context.Context, operation string, client *openai.Client, isFallback bool, call callFunc) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff * time.Duration(1<<(attempt-1))
			c.logger.Debug().Err(lastErr).Str("operation", operation).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying model call")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = c.attempt(ctx, client, isFallback, call)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// attempt performs a single call with the per-attempt timeout
func (c *Client) attempt(ctx context.Context, client *openai.Client, isFallback bool, call callFunc) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return call(attemptCtx, client, isFallback)
}

func (c *Client) recordUsage(operation, model string, tokens int) {
	if c.usage == nil {
		return
	}
	if err := c.usage.TrackOpenAICall(operation, model, tokens); err != nil {
		c.logger.Warn().Err(err).Msg("failed to record OpenAI usage")
	}
}

// statusCode extracts the HTTP status of a go-openai error, 0 when unknown
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// isClientError reports a request the provider rejected as invalid
func isClientError(err error) bool {
	code := statusCode(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}

// isRetryable reports transient failures: timeouts, throttling, server errors and transport errors
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return !isClientError(err)
}

// GetProviderName returns the current primary provider name
func (c *Client) GetProviderName() string {
	return c.providerName
}

// IsUsingAzure returns true if Azure OpenAI is the primary provider
func (c *Client) IsUsingAzure() bool {
	return c.useAzure
}

// GetGPTModel returns the GPT model/deployment name being used
func (c *Client) GetGPTModel() string {
	return c.gptModel
}

// GetEmbeddingModel returns the embedding model/deployment name being used
func (c *Client) GetEmbeddingModel() string {
	return string(c.embedModel)
}

// BreakerState returns the circuit breaker state
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
