// Package completion turns retrieved passages and chat history into a bot
// reply using an Eino chat model.
package completion

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/waiterbot-go/internal/budget"
	"github.com/54b3r/waiterbot-go/internal/config"
	"github.com/54b3r/waiterbot-go/internal/prompt"
	"github.com/54b3r/waiterbot-go/internal/rag"
	"github.com/54b3r/waiterbot-go/internal/store"
)

// Generator is the part of model.ChatModel the client uses.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Config holds the dependencies of a Client.
type Config struct {
	// Model generates the reply.
	Model Generator
	// Builder renders the persona context and history lines.
	Builder *prompt.Builder
	// Mode is config.ModeChat (default) or config.ModePrompt.
	Mode string
	// MaxContextTokens bounds the request size; history is trimmed oldest
	// first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client produces bot replies.
type Client struct {
	model     Generator
	builder   *prompt.Builder
	mode      string
	maxTokens int
	log       *slog.Logger
}

// Request is one completion call.
type Request struct {
	// History is the full conversation, oldest first, ending with the
	// customer's latest message.
	History []store.ChatMessage
	// Passages are the retrieved menu texts, most relevant first.
	Passages []string
	// Temperature is the sampling temperature for this call.
	Temperature float32
}

// Response is the outcome of a completion call.
type Response struct {
	// Reply is the sanitised bot reply.
	Reply string
	// Context is the grounding text sent to the model: the system context in
	// chat mode, the full prompt in prompt mode.
	Context string
}

// New returns a Client. It fails when Model or Builder is missing or Mode is
// unknown.
func New(cfg Config) (*Client, error) {
	if cfg.Model == nil {
		return nil, errors.New("completion: model is required")
	}
	if cfg.Builder == nil {
		return nil, errors.New("completion: prompt builder is required")
	}
	mode := cfg.Mode
	if mode == "" {
		mode = config.ModeChat
	}
	if mode != config.ModeChat && mode != config.ModePrompt {
		return nil, errors.New("completion: mode must be chat or prompt")
	}
	maxTokens := cfg.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{model: cfg.Model, builder: cfg.Builder, mode: mode, maxTokens: maxTokens, log: log}, nil
}

// Complete generates a reply. Model failures and empty replies are returned
// as rag.UpstreamError.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	var (
		msgs      []*schema.Message
		grounding string
	)
	if c.mode == config.ModePrompt {
		msgs, grounding = c.promptMessages(req)
	} else {
		msgs, grounding = c.chatMessages(req)
	}

	c.log.Debug("completion: generating",
		slog.String("mode", c.mode),
		slog.Int("messages", len(msgs)),
		slog.Int("passages", len(req.Passages)),
		slog.Int("estimated_tokens", budget.EstimateMessages(msgs)),
	)

	out, err := c.model.Generate(ctx, msgs, model.WithTemperature(req.Temperature))
	if err != nil {
		return Response{}, rag.Upstream("completion", err)
	}
	if out == nil {
		return Response{}, rag.Upstream("completion", errors.New("model returned no message"))
	}
	reply := c.builder.Sanitize(out.Content)
	if reply == "" {
		return Response{}, rag.Upstream("completion", errors.New("model returned an empty reply"))
	}
	return Response{Reply: reply, Context: grounding}, nil
}

// chatMessages sends the persona context as a system message and the
// history as user and assistant turns: bot messages are assistant turns and
// every other author is the guest. The latest turn is never trimmed.
func (c *Client) chatMessages(req Request) ([]*schema.Message, string) {
	sys := c.builder.Context(req.Passages)
	fixed := []*schema.Message{schema.SystemMessage(sys)}

	turns := make([]*schema.Message, 0, len(req.History))
	for _, m := range req.History {
		if m.Author == store.SourceBot {
			turns = append(turns, schema.AssistantMessage(m.Content, nil))
		} else {
			turns = append(turns, schema.UserMessage(m.Content))
		}
	}
	if len(turns) == 0 {
		return fixed, sys
	}

	last := turns[len(turns)-1]
	earlier := budget.TrimHistory([]*schema.Message{fixed[0], last}, turns[:len(turns)-1], c.maxTokens)
	if dropped := len(turns) - 1 - len(earlier); dropped > 0 {
		c.log.Info("completion: trimmed history", slog.Int("dropped", dropped))
	}

	msgs := make([]*schema.Message, 0, len(earlier)+2)
	msgs = append(msgs, fixed...)
	msgs = append(msgs, earlier...)
	msgs = append(msgs, last)
	return msgs, sys
}

// promptMessages renders context and history into a single user prompt.
func (c *Client) promptMessages(req Request) ([]*schema.Message, string) {
	history := req.History
	if len(history) > 0 {
		lines := make([]string, len(history))
		for i, m := range history {
			lines[i] = c.builder.Line(m)
		}
		kept := budget.TrimLines(c.builder.Context(req.Passages), lines, c.maxTokens)
		if dropped := len(lines) - len(kept); dropped > 0 {
			c.log.Info("completion: trimmed history", slog.Int("dropped", dropped))
		}
		history = history[len(history)-len(kept):]
	}
	p := c.builder.Build(history, req.Passages)
	return []*schema.Message{schema.UserMessage(p)}, p
}
