// Package agent exposes the preprocessing operations to a chat model as tools
// and runs the call loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/menta2k/image-preprocessor/internal/logging"
	"github.com/menta2k/image-preprocessor/pkg/client"
)

// DefaultInstructions is the system prompt of the preprocessing agent
const DefaultInstructions = `You are an expert image preprocessing agent specialized in:

1. Resizing images to standard dimensions (default 640x640)
2. Adding bounding box annotations to images
3. Batch processing entire image datasets

When a user asks you to process images, you should:
- Clarify the input/output paths if not provided
- Ask about target dimensions if resizing
- Request bounding box annotations if needed
- Provide clear feedback on processing results

Always use the appropriate tool functions to complete tasks:
- resize_single_image: For single image resizing
- add_bounding_boxes_to_image: For adding annotations
- process_image_dataset: For batch processing
- create_sample_annotations: For generating test annotations

Be helpful, precise, and confirm successful operations.`

// ErrMaxTurns is returned when the model keeps calling tools past the turn limit
var ErrMaxTurns = errors.New("agent: maximum turns reached")

// ErrEmptyReply is returned when a client answers without a message or an error
var ErrEmptyReply = errors.New("agent: empty model reply")

// Agent keeps a conversation with a model that can call the preprocessing tools.
type Agent struct {
	Name         string
	Instructions string
	MaxTurns     int

	client client.ChatClient
	tools  *Toolset
	logger *bolt.Logger

	mu      sync.Mutex
	history []client.Message
}

// Option configures an Agent
type Option func(*Agent)

// WithName sets the agent name used in logs
func WithName(name string) Option {
	return func(a *Agent) {
		a.Name = name
	}
}

// WithInstructions replaces the system prompt
func WithInstructions(instructions string) Option {
	return func(a *Agent) {
		a.Instructions = instructions
	}
}

// WithMaxTurns bounds the number of model calls per Send
func WithMaxTurns(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.MaxTurns = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *bolt.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an agent talking to c with the given tools
func New(c client.ChatClient, tools *Toolset, opts ...Option) *Agent {
	a := &Agent{
		Name:         "Image Preprocessing Agent",
		Instructions: DefaultInstructions,
		MaxTurns:     10,
		client:       c,
		tools:        tools,
		logger:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Send adds input to the conversation and runs model turns, executing any
// requested tools, until the model answers with plain text. A failed model
// call leaves the conversation as it was before Send.
func (a *Agent) Send(ctx context.Context, input string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	mark := len(a.history)
	if mark == 0 && a.Instructions != "" {
		a.history = append(a.history, client.Message{Role: client.RoleSystem, Content: a.Instructions})
	}
	a.history = append(a.history, client.Message{Role: client.RoleUser, Content: input})

	var defs []client.ToolDefinition
	if a.tools != nil {
		defs = a.tools.Definitions()
	}

	for turn := 1; turn <= a.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			a.history = a.history[:mark]
			return "", err
		}

		start := time.Now()
		reply, err := a.client.Chat(ctx, a.history, defs)
		if err == nil && reply == nil {
			err = ErrEmptyReply
		}
		if err != nil {
			a.history = a.history[:mark]
			return "", fmt.Errorf("model call failed: %w", err)
		}
		a.logger.Debug().
			Str("agent", a.Name).
			Int("turn", turn).
			Int("tool_calls", len(reply.ToolCalls)).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("model replied")

		reply.Role = client.RoleAssistant
		a.history = append(a.history, *reply)

		if len(reply.ToolCalls) == 0 {
			return reply.Content, nil
		}

		for _, tc := range reply.ToolCalls {
			a.history = append(a.history, client.Message{
				Role:       client.RoleTool,
				Content:    a.runTool(ctx, tc),
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}
	}

	a.logger.Warn().Str("agent", a.Name).Int("max_turns", a.MaxTurns).Msg("turn limit reached")
	return "", ErrMaxTurns
}

func (a *Agent) runTool(ctx context.Context, tc client.ToolCall) string {
	if a.tools == nil {
		return ErrorOutput(fmt.Errorf("tool %s not found", tc.Name))
	}

	start := time.Now()
	out, err := a.tools.Call(ctx, tc.Name, tc.Arguments)
	logging.With(a.logger.Info(),
		logging.ToolName(tc.Name),
		logging.Duration(time.Since(start)),
		logging.ErrorField(err),
	).Msg("tool executed")

	if err != nil {
		return ErrorOutput(err)
	}
	return out
}

// History returns a copy of the conversation so far
func (a *Agent) History() []client.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]client.Message(nil), a.history...)
}

// Reset forgets the conversation
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}
