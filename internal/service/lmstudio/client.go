// Package lmstudio is a client for an LM Studio instance exposing the
// OpenAI-compatible chat completions API.
package lmstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uhafan/stream-dashboard-go/pkg/logger"
)

var (
	// ErrUnreachable indicates the LM Studio server did not answer.
	ErrUnreachable = errors.New("lmstudio: server unreachable")
	// ErrEmptyOutput indicates the model returned nothing usable after
	// cleanup.
	ErrEmptyOutput = errors.New("lmstudio: empty model output")
)

// systemPrompt pins the model to Korean output. Without it the small local
// models drift into English.
const systemPrompt = "You must respond ONLY in Korean. 당신은 한국어 전문 분석가입니다. " +
	"반드시 한국어로만 답변하세요. 영어나 다른 언어는 절대 사용 금지입니다. " +
	"2-3문장으로 간결하게 요약해주세요."

// Client is a client for the LM Studio chat completions API.
type Client struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	log         *zap.Logger
}

// Config holds the configuration for the LM Studio client.
type Config struct {
	BaseURL     string        // e.g. "http://localhost:1234"
	Model       string        // e.g. "qwen/qwen3-4b"
	MaxTokens   int           // default 500
	Temperature float64       // default 0.3
	Timeout     time.Duration // default 60 seconds
}

// NewClient creates a new LM Studio client.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	if config.Temperature == 0 {
		config.Temperature = 0.3
	}

	return &Client{
		baseURL:     strings.TrimSuffix(config.BaseURL, "/"),
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		httpClient:  &http.Client{Timeout: config.Timeout},
		log:         logger.Named("lmstudio"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Option overrides per-call generation parameters.
type Option struct {
	MaxTokens   *int
	Temperature *float64
}

// Complete sends one prompt through the chat endpoint and returns the
// cleaned model output.
func (c *Client) Complete(ctx context.Context, prompt string, opt Option) (string, error) {
	maxTokens := c.maxTokens
	if opt.MaxTokens != nil && *opt.MaxTokens > 0 {
		maxTokens = *opt.MaxTokens
	}
	temperature := c.temperature
	if opt.Temperature != nil {
		temperature = *opt.Temperature
	}

	reqPayload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stop:        []string{"\n\n", "요약:", "Summary:"},
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("chat completion request failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrUnreachable, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyOutput
	}

	cleaned := CleanOutput(chatResp.Choices[0].Message.Content)
	if cleaned == "" {
		return "", ErrEmptyOutput
	}
	return cleaned, nil
}

// Healthy probes the models endpoint. It reports status rather than
// failing so the health route always answers 200.
func (c *Client) Healthy(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return false, fmt.Sprintf("Error: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, "Cannot connect to LM Studio"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("LM Studio returned status %d", resp.StatusCode)
	}
	return true, "LM Studio is running"
}

var xmlTagRe = regexp.MustCompile(`<[^>]+>`)

// capRunes truncates s to at most n runes. Korean text is multi-byte, so
// a byte slice would cut mid-rune.
func capRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// CleanOutput strips reasoning blocks and XML-ish tags from model output
// and caps the result at four sentences.
func CleanOutput(content string) string {
	content = strings.TrimSpace(content)

	// Reasoning models emit their chain of thought in a think block.
	if strings.HasPrefix(content, "<think>") {
		if end := strings.Index(content, "</think>"); end != -1 {
			content = strings.TrimSpace(content[end+len("</think>"):])
		}
	}

	content = strings.TrimSpace(xmlTagRe.ReplaceAllString(content, ""))

	sentences := strings.Split(content, ".")
	if len(sentences) > 4 {
		content = strings.Join(sentences[:4], ". ") + "."
	}

	return strings.TrimSpace(content)
}

// Sentiment is a parsed sentiment verdict.
type Sentiment struct {
	Type        string  // "positive", "negative", or "neutral"
	Score       float64 // clamped to [0, 1]
	Description string
}

// String renders the verdict the way the stream cards display it.
func (s Sentiment) String() string {
	return fmt.Sprintf("%s (%.1f) - %s", s.Type, s.Score, s.Description)
}

const neutralDescription = "중립적인 반응의 스트림"

// AnalyzeSentiment asks the model for a sentiment verdict on the text.
// Any failure degrades to a neutral verdict instead of an error since
// sentiment is decoration, not data.
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) Sentiment {
	text = capRunes(text, 500)

	prompt := fmt.Sprintf(`
다음 텍스트의 감정을 분석하고 한국어로 답변해주세요.

텍스트: %s

다음 형식으로 답변해주세요:
감정: [positive/negative/neutral]
점수: [0.0-1.0 사이의 숫자]
설명: [한국어로 간단한 설명]

답변:`, text)

	out, err := c.Complete(ctx, prompt, Option{})
	if err != nil {
		c.log.Debug("sentiment analysis failed", zap.Error(err))
		return Sentiment{Type: "neutral", Score: 0.5, Description: neutralDescription}
	}
	return ParseSentiment(out)
}

// ParseSentiment reads the 감정/점수/설명 lines out of a model response.
// Missing or malformed lines keep their neutral defaults.
func ParseSentiment(response string) Sentiment {
	s := Sentiment{Type: "neutral", Score: 0.5, Description: neutralDescription}

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "감정:"):
			v := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "감정:")))
			if strings.Contains(v, "positive") || strings.Contains(v, "긍정") {
				s.Type = "positive"
			} else if strings.Contains(v, "negative") || strings.Contains(v, "부정") {
				s.Type = "negative"
			}
		case strings.HasPrefix(line, "점수:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "점수:"))
			var score float64
			if _, err := fmt.Sscanf(v, "%f", &score); err == nil {
				if score < 0 {
					score = 0
				}
				if score > 1 {
					score = 1
				}
				s.Score = score
			}
		case strings.HasPrefix(line, "설명:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "설명:"))
			if len([]rune(v)) > 5 {
				s.Description = v
			}
		}
	}

	return s
}
