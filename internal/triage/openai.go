package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-api/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const defaultBaseURL = "https://api.openai.com/v1"

const urgencySystemPrompt = `You are a triage assistant for a clinic.
Given a patient's issue description, classify how urgently the patient needs
to be seen. Respond with exactly one word: high, medium, or low.`

// OpenAIConfig configures the OpenAI-backed assessor.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	RateLimitRPM   int
	RateLimitBurst int
}

// OpenAIAssessor classifies issues with a chat-completion call.
type OpenAIAssessor struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *circuitbreaker.CircuitBreaker
	metrics    *metrics.Metrics
}

func NewOpenAIAssessor(cfg OpenAIConfig, m *metrics.Metrics) (*OpenAIAssessor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPM > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), burst)
	}

	return &OpenAIAssessor{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: limiter,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "openai-triage",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		metrics: m,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	User        string        `json:"user,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (a *OpenAIAssessor) Urgency(ctx context.Context, sessionID, issue string) (string, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			a.metrics.TriageRequests.WithLabelValues("rate_limited").Inc()
			return "", err
		}
	}

	var label string
	start := time.Now()
	err := a.cb.Execute(func() error {
		var execErr error
		label, execErr = a.classify(ctx, sessionID, issue)
		return execErr
	})
	a.metrics.TriageLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		a.metrics.TriageRequests.WithLabelValues("error").Inc()
		return "", err
	}
	a.metrics.TriageRequests.WithLabelValues("success").Inc()
	return label, nil
}

func (a *OpenAIAssessor) classify(ctx context.Context, sessionID, issue string) (string, error) {
	payload := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: urgencySystemPrompt},
			{Role: "user", Content: issue},
		},
		Temperature: 0,
		MaxTokens:   5,
		User:        sessionID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai request failed with status %d", resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("openai response contained no choices")
	}

	label := strings.ToLower(strings.TrimSpace(decoded.Choices[0].Message.Content))
	switch label {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return label, nil
	default:
		// Unrecognized labels rank last downstream; pass them through.
		return label, nil
	}
}
