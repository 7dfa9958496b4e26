package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk/internal/config"
	"helpdesk/internal/llm"
)

type fakeProvider struct {
	server   *httptest.Server
	calls    atomic.Int32
	mu       sync.Mutex
	lastBody map[string]interface{}
}

// newFakeProvider serves /v1/chat/completions and /v1/embeddings. status
// returns the HTTP status for the n-th call (1-based).
func newFakeProvider(t *testing.T, status func(n int32) int, delay time.Duration) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{}
	fp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := fp.calls.Add(1)

		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		fp.mu.Lock()
		fp.lastBody = body
		fp.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		code := status(n)
		if code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":{"message":"provider error","type":"server_error"}}`))
			return
		}

		switch r.URL.Path {
		case "/v1/chat/completions":
			_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
				"choices":[{"index":0,"message":{"role":"assistant","content":"Hello from the model"},"finish_reason":"stop"}],
				"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
		case "/v1/embeddings":
			_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
				"data":[{"object":"embedding","index":1,"embedding":[0.3,0.4]},{"object":"embedding","index":0,"embedding":[0.1,0.2]}],
				"usage":{"prompt_tokens":4,"total_tokens":4}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) config() openai.ClientConfig {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = fp.server.URL + "/v1"
	return cfg
}

func (fp *fakeProvider) body() map[string]interface{} {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.lastBody
}

func always(code int) func(int32) int {
	return func(int32) int { return code }
}

type usageSpy struct {
	mu     sync.Mutex
	tokens map[string]int
}

func (u *usageSpy) TrackOpenAICall(operation, model string, tokens int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tokens == nil {
		u.tokens = map[string]int{}
	}
	u.tokens[operation] += tokens
	return nil
}

func testOptions() Options {
	return Options{
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
		Logger:     zerolog.Nop(),
	}
}

func TestNewClient_NoProvider(t *testing.T) {
	client, err := NewClient(&config.Config{}, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "no OpenAI provider configured")
}

func TestNewClient_ProviderSelection(t *testing.T) {
	tests := []struct {
		name         string
		cfg          *config.Config
		wantAzure    bool
		wantProvider string
		wantFallback bool
	}{
		{
			name:         "OpenAI only",
			cfg:          &config.Config{OpenAIKey: "sk"},
			wantProvider: "OpenAI",
		},
		{
			name: "Azure with OpenAI fallback",
			cfg: &config.Config{
				OpenAIKey:                      "sk",
				AzureOpenAIEndpoint:            "https://example.openai.azure.com",
				AzureOpenAIKey:                 "az",
				AzureOpenAIGPTDeployment:       "gpt-dep",
				AzureOpenAIEmbeddingDeployment: "embed-dep",
			},
			wantAzure:    true,
			wantProvider: "Azure OpenAI",
			wantFallback: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.wantAzure, client.IsUsingAzure())
			assert.Equal(t, tt.wantProvider, client.GetProviderName())
			assert.Equal(t, tt.wantFallback, client.fallback != nil)
			if tt.wantAzure {
				assert.Equal(t, "gpt-dep", client.GetGPTModel())
				assert.Equal(t, "embed-dep", client.GetEmbeddingModel())
			} else {
				assert.Equal(t, openai.GPT4oMini, client.GetGPTModel())
			}
		})
	}
}

func TestComplete_Success(t *testing.T) {
	fp := newFakeProvider(t, always(http.StatusOK), 0)
	usage := &usageSpy{}
	opts := testOptions()
	opts.Usage = usage
	client := New(fp.config(), nil, opts)

	out, err := client.Complete(context.Background(), llm.CompletionRequest{
		Operation:   llm.OperationGrade,
		System:      "You grade replies.",
		Prompt:      "Grade this",
		Temperature: 0.2,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello from the model", out)
	assert.Equal(t, int32(1), fp.calls.Load())

	body := fp.body()
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.InDelta(t, 0.2, body["temperature"], 0.0001)
	format, ok := body["response_format"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, messages, 2)

	assert.Equal(t, 15, usage.tokens[llm.OperationGrade])
}

func TestComplete_ZeroTemperatureIsSent(t *testing.T) {
	fp := newFakeProvider(t, always(http.StatusOK), 0)
	client := New(fp.config(), nil, testOptions())

	_, err := client.Complete(context.Background(), llm.CompletionRequest{Prompt: "classify", Temperature: 0})
	require.NoError(t, err)

	temp, ok := fp.body()["temperature"]
	require.True(t, ok, "temperature must not be omitted")
	assert.InDelta(t, 0, temp, 0.0001)
	_, hasFormat := fp.body()["response_format"]
	assert.False(t, hasFormat)
}

func TestComplete_RetriesTransientFailures(t *testing.T) {
	fp := newFakeProvider(t, func(n int32) int {
		if n < 3 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	}, 0)
	client := New(fp.config(), nil, testOptions())

	out, err := client.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Hello from the model", out)
	assert.Equal(t, int32(3), fp.calls.Load())
}

func TestComplete_RetryBudgetExhausted(t *testing.T) {
	fp := newFakeProvider(t, always(http.StatusInternalServerError), 0)
	client := New(fp.config(), nil, testOptions())

	_, err := client.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	assert.Error(t, err)
	assert.Equal(t, int32(3), fp.calls.Load(), "one attempt plus two retries")
}

func TestComplete_ClientErrorIsNotRetried(t *testing.T) {
	fp := newFakeProvider(t, always(http.StatusBadRequest), 0)
	client := New(fp.config(), nil, testOptions())

	_, err := client.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), fp.calls.Load())
}

func TestComplete_FallbackProvider(t *testing.T) {
	primary := newFakeProvider(t, always(http.StatusBadGateway), 0)
	fallback := newFakeProvider(t, always(http.StatusOK), 0)
	fbCfg := fallback.config()

	opts := testOptions()
	opts.MaxRetries = 0
	opts.GPTModel = "azure-deployment"
	client := New(primary.config(), &fbCfg, opts)

	out, err := client.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Hello from the model", out)
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(1), fallback.calls.Load())
	assert.Equal(t, "gpt-4o-mini", fallback.body()["model"])
}

func TestComplete_AttemptTimeout(t *testing.T) {
	fp := newFakeProvider(t, always(http.StatusOK), 500*time.Millisecond)
	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond
	opts.MaxRetries = 0
	client := New(fp.config(), nil, opts)

	_, err := client.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestComplete_CircuitBreakerOpens(t *testing.T) {
	fp := newFakeProvider(t, always(http.StatusInternalServerError), 0)
	opts := testOptions()
	opts.MaxRetries = 0
	client := New(fp.config(), nil, opts)

	for i := 0; i < 5; i++ {
		_, err := client.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
		require.Error(t, err)
	}
	assert.Equal(t, "open", client.BreakerState())

	_, err := client.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(5), fp.calls.Load(), "open breaker must not reach the provider")
}

func TestComplete_ClientErrorsDoNotTripBreaker(t *testing.T) {
	fp := newFakeProvider(t, always(http.StatusBadRequest), 0)
	opts := testOptions()
	opts.MaxRetries = 0
	client := New(fp.config(), nil, opts)

	for i := 0; i < 6; i++ {
		_, _ = client.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	}
	assert.Equal(t, "closed", client.BreakerState())
	assert.Equal(t, int32(6), fp.calls.Load())
}

func TestCreateEmbeddings_OrdersByIndex(t *testing.T) {
	fp := newFakeProvider(t, always(http.StatusOK), 0)
	client := New(fp.config(), nil, testOptions())

	vectors, err := client.CreateEmbeddings(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
	assert.Equal(t, "text-embedding-3-small", fp.body()["model"])
}

func TestCreateEmbeddings_CountMismatch(t *testing.T) {
	fp := newFakeProvider(t, always(http.StatusOK), 0)
	client := New(fp.config(), nil, testOptions())

	_, err := client.CreateEmbeddings(context.Background(), []string{"only one"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "2 vectors for 1 inputs")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"throttled", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, false},
		{"unauthorized", &openai.RequestError{HTTPStatusCode: http.StatusUnauthorized}, false},
		{"transport", assert.AnError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}
