package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"hirequote-cloud/quote"
)

// APIError is an HTTP-level failure from the enhancement model. The engine's
// retry classifier inspects Status, so transport-level failures (which have
// no status) deliberately stay plain errors.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("enhancement model error %d: %s", e.Status, e.Message)
}

// Client calls an OpenAI-compatible chat-completions endpoint to infer the
// statutory employer obligations a provider's raw breakdown leaves out
// (13th-month salary, severance accrual, mandatory insurances).
type Client struct {
	client      *http.Client
	apiURL      string
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
	useTemp     bool
}

const (
	defaultEnhanceTimeout   = 60 * time.Second
	defaultEnhanceModel     = "gpt-4o-mini"
	defaultEnhanceMaxTokens = 800
)

const enhanceSystemPrompt = `You are an expert on employer-of-record costs and international employment law.
Given one provider's employer cost breakdown for a hire, identify statutory employer obligations in the hire country that the breakdown omits or understates.
Respond with JSON only: {"statutory": [{"name": string, "amount": number, "frequency": "monthly"|"annual"|"one-time"}], "notes": [string]}.
Amounts are in the quote currency. Return empty arrays when the breakdown already covers everything.`

// NewClient builds an enhancement client from the environment.
// ENHANCE_API_KEY is required; ENHANCE_API_URL and ENHANCE_MODEL_NAME have
// OpenAI defaults.
func NewClient() (*Client, error) {
	apiURL := strings.TrimSpace(os.Getenv("ENHANCE_API_URL"))
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1/chat/completions"
	}

	apiKey := strings.TrimSpace(os.Getenv("ENHANCE_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ENHANCE_API_KEY is required for quote enhancement")
	}

	model := strings.TrimSpace(os.Getenv("ENHANCE_MODEL_NAME"))
	if model == "" {
		model = defaultEnhanceModel
	}

	maxTokens := defaultEnhanceMaxTokens
	if raw := strings.TrimSpace(os.Getenv("ENHANCE_MAX_COMPLETION_TOKENS")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxTokens = n
		}
	}

	useTemp := false
	temp := float32(0)
	if raw := strings.TrimSpace(os.Getenv("ENHANCE_TEMPERATURE")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 32); err == nil && v >= 0 {
			temp = float32(v)
			useTemp = true
		}
	}

	return &Client{
		client:      &http.Client{Timeout: defaultEnhanceTimeout},
		apiURL:      apiURL,
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temp,
		useTemp:     useTemp,
	}, nil
}

type chatCompletionRequest struct {
	Model               string          `json:"model"`
	Messages            []chatMessage   `json:"messages"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	Temperature         float32         `json:"temperature,omitempty"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type statutoryExtras struct {
	Statutory []quote.CostItem `json:"statutory"`
	Notes     []string         `json:"notes"`
}

// EnhanceQuote asks the model for statutory extras and merges them onto a
// copy of the base quote. The input quote is never mutated; on any failure
// the caller still holds the untouched base.
func (c *Client) EnhanceQuote(ctx context.Context, provider string, base *quote.Quote, form quote.FormData) (*quote.Quote, error) {
	if c == nil {
		return nil, errors.New("enhancement client not initialized")
	}
	if base == nil {
		return nil, errors.New("no base quote to enhance")
	}

	body, err := c.buildEnhanceRequest(provider, base, form)
	if err != nil {
		return nil, fmt.Errorf("build enhancement request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call enhancement model: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	log.Printf("enhance: %s returned status %d in %v", provider, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode enhancement response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, errors.New("enhancement model returned empty response")
	}

	extras, err := parseStatutoryExtras(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parse enhancement result: %w", err)
	}

	enhanced := base.Clone()
	enhanced.Enhanced = true
	enhanced.Statutory = extras.Statutory
	enhanced.EnhancementNotes = extras.Notes
	return enhanced, nil
}

func (c *Client) buildEnhanceRequest(provider string, base *quote.Quote, form quote.FormData) ([]byte, error) {
	breakdown, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}

	userContent := fmt.Sprintf(
		"Provider: %s\nCountry: %s\nState: %s\nClient country: %s\nEmployee age: %d\nBreakdown: %s\n\nList the statutory employer obligations this breakdown misses.",
		provider,
		base.Country,
		form.State,
		form.ClientCountry,
		form.Age,
		string(breakdown),
	)

	req := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: enhanceSystemPrompt},
			{Role: "user", Content: userContent},
		},
		ResponseFormat:      &responseFormat{Type: "json_object"},
		MaxCompletionTokens: c.maxTokens,
	}
	if c.useTemp {
		req.Temperature = c.temperature
	}
	return json.Marshal(req)
}

// parseStatutoryExtras decodes the model's JSON, tolerating markdown fences
// some models wrap around structured output.
func parseStatutoryExtras(content string) (statutoryExtras, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	var extras statutoryExtras
	if err := json.Unmarshal([]byte(content), &extras); err != nil {
		return statutoryExtras{}, err
	}

	kept := extras.Statutory[:0]
	for _, item := range extras.Statutory {
		if strings.TrimSpace(item.Name) == "" || item.Amount < 0 {
			continue
		}
		if item.Frequency == "" {
			item.Frequency = "monthly"
		}
		kept = append(kept, item)
	}
	extras.Statutory = kept
	return extras, nil
}
