// Package gemini implements client.ChatClient on the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/menta2k/image-preprocessor/pkg/client"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-2.0-flash"

// Config configures the Gemini backend
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// Client wraps the genai client
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: c, model: model}, nil
}

// Model returns the model name requests are sent to
func (c *Client) Model() string {
	return c.model
}

// Chat sends the conversation and returns the model reply
func (c *Client) Chat(ctx context.Context, messages []client.Message, tools []client.ToolDefinition) (*client.Message, error) {
	system, contents, err := buildContents(messages)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(tools))
		for i, t := range tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			}
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini chat error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from gemini")
	}

	reply := &client.Message{Role: client.RoleAssistant}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
		if fc := part.FunctionCall; fc != nil {
			args, err := json.Marshal(fc.Args)
			if err != nil {
				return nil, fmt.Errorf("encode %s arguments: %w", fc.Name, err)
			}
			id := fc.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			reply.ToolCalls = append(reply.ToolCalls, client.ToolCall{ID: id, Name: fc.Name, Arguments: args})
		}
	}
	reply.Content = text.String()
	return reply, nil
}

// buildContents splits out the system prompt and converts the rest. Consecutive
// tool results are merged into one user turn.
func buildContents(messages []client.Message) (string, []*genai.Content, error) {
	var system []string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case client.RoleSystem:
			system = append(system, msg.Content)
		case client.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case client.RoleAssistant:
			content := &genai.Content{Role: string(genai.RoleModel)}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &args); err != nil {
						return "", nil, fmt.Errorf("decode %s arguments: %w", tc.Name, err)
					}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}
			contents = append(contents, content)
		case client.RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       msg.ToolCallID,
				Name:     msg.Name,
				Response: toolResponse(msg.Content),
			}}
			if n := len(contents); n > 0 && isFunctionResponse(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: string(genai.RoleUser), Parts: []*genai.Part{part}})
		default:
			return "", nil, fmt.Errorf("unknown role: %s", msg.Role)
		}
	}
	return strings.Join(system, "\n\n"), contents, nil
}

// toolResponse wraps tool output in the object Gemini expects
func toolResponse(output string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(output), &obj); err == nil && obj != nil {
		return obj
	}
	var v any
	if err := json.Unmarshal([]byte(output), &v); err == nil {
		return map[string]any{"output": v}
	}
	return map[string]any{"output": output}
}

func isFunctionResponse(c *genai.Content) bool {
	if c.Role != string(genai.RoleUser) || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}
