// Package chat answers utterances no command rule understood using an
// OpenAI chat model.
package chat

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const systemPrompt = `You are %s, a desktop voice assistant.
The user's message was transcribed from speech and did not match any built-in command.
Answer in one or two short plain sentences that sound natural when read aloud.
Do not use markdown, lists or emoji.
If the request needs an action you cannot perform, say so briefly.`

const (
	defaultModel   = openai.ChatModelGPT5Nano
	defaultTimeout = 30 * time.Second
	defaultMemory  = 6
)

var ErrEmptyAnswer = errors.New("empty answer")

type Options struct {
	Name       string
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Memory     int // past messages sent along, 0 = default
}

// Responder keeps a short rolling memory of the conversation.
type Responder struct {
	client  openai.Client
	model   string
	prompt  string
	timeout time.Duration
	memory  int

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

func New(opt Options) (*Responder, error) {
	if opt.APIKey == "" {
		return nil, errors.New("missing OpenAI API key")
	}
	if opt.Model == "" {
		opt.Model = string(defaultModel)
	}
	if opt.Timeout <= 0 {
		opt.Timeout = defaultTimeout
	}
	if opt.Memory <= 0 {
		opt.Memory = defaultMemory
	}

	opts := []option.RequestOption{
		option.WithAPIKey(opt.APIKey),
		option.WithMaxRetries(1),
	}
	if opt.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(opt.HTTPClient))
	}
	if opt.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(opt.BaseURL))
	}

	return &Responder{
		client:  openai.NewClient(opts...),
		model:   opt.Model,
		prompt:  fmt.Sprintf(systemPrompt, opt.Name),
		timeout: opt.Timeout,
		memory:  opt.Memory,
	}, nil
}

func (r *Responder) Respond(ctx context.Context, command string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	user := openai.UserMessage(command)
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(r.history)+2)
	messages = append(messages, openai.SystemMessage(r.prompt))
	messages = append(messages, r.history...)
	messages = append(messages, user)

	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    openai.ChatModel(r.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	log.Debug("Chat answered", "model", resp.Model, "tokens", resp.Usage.TotalTokens)

	r.remember(user, openai.AssistantMessage(answer))
	return answer, nil
}

func (r *Responder) remember(msgs ...openai.ChatCompletionMessageParamUnion) {
	r.history = append(r.history, msgs...)
	if over := len(r.history) - r.memory; over > 0 {
		r.history = append(r.history[:0:0], r.history[over:]...)
	}
}
