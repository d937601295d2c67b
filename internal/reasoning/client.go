package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docsight/docsight/internal/domain"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "openai/gpt-oss-120b:free"
	defaultTimeout = 60 * time.Second

	maxErrorBodyBytes = 2048
)

// Sentinel errors for upstream failure classes.
var (
	ErrUnauthorized = errors.New("reasoning: invalid or missing API key")
	ErrRateLimited  = errors.New("reasoning: rate limited")
	ErrEmptyReply   = errors.New("reasoning: empty model reply")
)

// TransportError is a non-2xx or unreachable reasoning service. Error()
// returns the server-supplied failure text verbatim so the orchestrators can
// surface it as the turn's terminal message content without rewording.
type TransportError struct {
	Status  int
	Message string
}

func (e *TransportError) Error() string { return e.Message }

// Client calls an OpenRouter-compatible chat-completions endpoint for both
// the chat answerer and the insight planner.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// Option configures optional Client parameters.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

func WithModel(m string) Option {
	return func(c *Client) {
		c.model = m
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		model:   defaultModel,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat asks one question about the document with the full running
// conversation attached and decodes the {answer, pages?} reply.
func (c *Client) Chat(ctx context.Context, documentContext string, entries []domain.ConversationEntry) (*domain.ChatReply, error) {
	content, err := c.complete(ctx, buildChatPrompt(documentContext), entries, 0.1)
	if err != nil {
		return nil, err
	}

	var reply domain.ChatReply
	if err := json.Unmarshal([]byte(stripFences(content)), &reply); err != nil {
		return nil, fmt.Errorf("reasoning.Client.Chat: decode reply: %w", err)
	}
	if strings.TrimSpace(reply.Answer) == "" {
		return nil, ErrEmptyReply
	}

	return &reply, nil
}

// Plan asks the insight planner for its next action against the dataset
// schema and returns the raw (fence-stripped) action payload. Validation of
// the payload shape belongs to the caller.
func (c *Client) Plan(ctx context.Context, schema string, entries []domain.ConversationEntry) ([]byte, error) {
	content, err := c.complete(ctx, buildInsightPrompt(schema), entries, 0.2)
	if err != nil {
		return nil, err
	}

	return []byte(stripFences(content)), nil
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) complete(ctx context.Context, systemPrompt string, entries []domain.ConversationEntry, temperature float64) (string, error) {
	msgs := make([]chatMessage, 0, len(entries)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	for _, e := range entries {
		msgs = append(msgs, chatMessage{Role: string(e.Role), Content: e.Content})
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   2048,
	})
	if err != nil {
		return "", fmt.Errorf("reasoning.Client.complete: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("reasoning.Client.complete: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &TransportError{Message: "reasoning service unreachable: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.statusError(resp)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("reasoning.Client.complete: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", ErrEmptyReply
	}

	return decoded.Choices[0].Message.Content, nil
}

// statusError maps a non-2xx response to a TransportError carrying the
// server's error field when present, or a generic "request failed" message.
func (c *Client) statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var body apiError
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return &TransportError{Status: resp.StatusCode, Message: body.Error}
	}

	return &TransportError{
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("request failed (%d)", resp.StatusCode),
	}
}
