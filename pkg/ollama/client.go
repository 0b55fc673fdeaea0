// Package ollama implements client.ChatClient on a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"

	"github.com/menta2k/image-preprocessor/pkg/client"
)

const (
	// DefaultURL is where a local Ollama server listens
	DefaultURL = "http://localhost:11434"
	// DefaultModel must support tool calling
	DefaultModel   = "llama3.1"
	defaultTimeout = 300 * time.Second
)

// Config configures the Ollama backend
type Config struct {
	URL   string
	Model string
	// Timeout applies to calls whose context has no deadline.
	Timeout time.Duration
}

// Client wraps the Ollama API client
type Client struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// NewClient creates a new Ollama client
func NewClient(cfg Config) (*Client, error) {
	raw := cfg.URL
	if raw == "" {
		raw = DefaultURL
	}
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs a scheme and host", raw)
	}

	// Drop any path like /api/chat, the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		client:  api.NewClient(baseURL, http.DefaultClient),
		model:   model,
		timeout: timeout,
	}, nil
}

// Model returns the model name requests are sent to
func (c *Client) Model() string {
	return c.model
}

// Chat sends the conversation and returns the assistant reply
func (c *Client) Chat(ctx context.Context, messages []client.Message, tools []client.ToolDefinition) (*client.Message, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ollamaMessages, err := buildMessages(messages)
	if err != nil {
		return nil, err
	}
	ollamaTools, err := buildTools(tools)
	if err != nil {
		return nil, err
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: ollamaMessages,
		Stream:   &streamFalse,
		Tools:    ollamaTools,
	}

	var reply client.Message
	reply.Role = client.RoleAssistant
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.Content += resp.Message.Content
		for _, tc := range resp.Message.ToolCalls {
			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				return fmt.Errorf("encode %s arguments: %w", tc.Function.Name, err)
			}
			reply.ToolCalls = append(reply.ToolCalls, client.ToolCall{
				ID:        "call_" + uuid.NewString(),
				Name:      tc.Function.Name,
				Arguments: args,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}
	return &reply, nil
}

// wireMessage is the JSON shape of api.Message
type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
}

type wireToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// buildMessages converts through the wire format so api.Message internals stay opaque
func buildMessages(messages []client.Message) ([]api.Message, error) {
	wire := make([]wireMessage, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case client.RoleSystem, client.RoleUser:
			wire[i] = wireMessage{Role: msg.Role, Content: msg.Content}
		case client.RoleAssistant:
			wire[i] = wireMessage{Role: msg.Role, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				var call wireToolCall
				call.Function.Name = tc.Name
				call.Function.Arguments = tc.Arguments
				if len(call.Function.Arguments) == 0 {
					call.Function.Arguments = json.RawMessage("{}")
				}
				wire[i].ToolCalls = append(wire[i].ToolCalls, call)
			}
		case client.RoleTool:
			wire[i] = wireMessage{Role: msg.Role, Content: msg.Content, ToolName: msg.Name}
		default:
			return nil, fmt.Errorf("unknown role: %s", msg.Role)
		}
	}

	var out []api.Message
	if err := bridge(wire, &out); err != nil {
		return nil, fmt.Errorf("convert messages: %w", err)
	}
	return out, nil
}

func buildTools(tools []client.ToolDefinition) (api.Tools, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	wire := make([]map[string]any, len(tools))
	for i, t := range tools {
		wire[i] = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		}
	}

	var out api.Tools
	if err := bridge(wire, &out); err != nil {
		return nil, fmt.Errorf("convert tools: %w", err)
	}
	return out, nil
}

func bridge(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
