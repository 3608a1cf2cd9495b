// Package generator produces email content from a chat-completion model.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/autosendmail/autosendmail/internal/config"
	"github.com/autosendmail/autosendmail/internal/logger"
)

// Generation errors
var (
	ErrEmptyBody     = errors.New("model returned an empty email body")
	ErrEmptyResponse = errors.New("model returned no choices")
)

const (
	// fallbackSubject is used when the model response carries no subject.
	fallbackSubject = "Just checking in"

	requestTimeout = 60 * time.Second
	maxTokens      = 500
	temperature    = 0.9
)

// systemInstruction steers the model towards short, natural chat-style
// messages and a strict JSON reply.
const systemInstruction = `You write short personal emails that read like a real person catching up with a friend.

Rules:
1. The message must sound natural and warm, never like it was written by an assistant.
2. Keep it between 50 and 200 characters. Everyday topics work best: life, weather, mood, small things that happened.
3. Every message must be different; vary tone, opening and closing. No templated phrases.
4. Reply strictly with a JSON object and nothing else, no markdown code fences:
{"subject": "short casual subject, like a message between friends", "body": "plain-text email body in a natural chat style"}`

// CompletionClient is the subset of the OpenAI client used by the
// generator. It exists so tests can stub the API call.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// EmailContent is one generated subject/body pair. It lives for a single
// task firing and is never persisted.
type EmailContent struct {
	Subject string
	Body    string
}

// Generator calls a chat-completion API and turns the response into
// EmailContent.
type Generator struct {
	client CompletionClient
	model  string
	log    *logger.Logger
}

// New creates a Generator backed by an OpenAI-compatible endpoint.
func New(cfg config.AIConfig, log *logger.Logger) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientCfg.BaseURL = cfg.APIBase
	}
	return &Generator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		log:    log.WithComponent("generator"),
	}
}

// NewWithClient creates a Generator with a caller-supplied client.
func NewWithClient(client CompletionClient, model string, log *logger.Logger) *Generator {
	return &Generator{
		client: client,
		model:  model,
		log:    log.WithComponent("generator"),
	}
}

// Generate asks the model for one email. The account prompt becomes the
// user message; subjectPrefix, when set, is prepended to the subject in
// every path. A response that is not valid JSON degrades to the raw text
// as body rather than failing, so a send is always attempted.
func (g *Generator) Generate(ctx context.Context, aiPrompt, subjectPrefix string) (EmailContent, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	g.log.Info().Str("model", g.model).Msg("generating email content")

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: aiPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return EmailContent{}, fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return EmailContent{}, ErrEmptyResponse
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	g.log.Debug().Str("raw", raw).Msg("model response")

	content, err := parseContent(raw, subjectPrefix)
	if err != nil {
		return EmailContent{}, err
	}

	g.log.Info().Str("subject", content.Subject).Msg("email content generated")
	return content, nil
}

// parseContent applies the parsing policy: strip code fences, try JSON,
// otherwise fall back to the raw text as body.
func parseContent(raw, subjectPrefix string) (EmailContent, error) {
	cleaned := stripCodeFence(raw)

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		// Degrade path: the whole response becomes the body.
		return EmailContent{
			Subject: subjectPrefix + fallbackSubject,
			Body:    cleaned,
		}, nil
	}

	subject := stringField(doc, "subject")
	if strings.TrimSpace(subject) == "" {
		subject = fallbackSubject
	}
	body := stringField(doc, "body")
	if body == "" {
		return EmailContent{}, ErrEmptyBody
	}

	return EmailContent{
		Subject: subjectPrefix + subject,
		Body:    body,
	}, nil
}

// stringField coerces a loosely-typed document field into a string.
func stringField(doc map[string]json.RawMessage, key string) string {
	rawField, ok := doc[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(rawField, &s); err != nil {
		return ""
	}
	return s
}

// stripCodeFence removes lines starting with ``` so fenced model output
// still parses as JSON.
func stripCodeFence(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
