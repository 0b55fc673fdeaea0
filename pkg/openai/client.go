// Package openai implements client.ChatClient on the OpenAI chat completions API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/menta2k/image-preprocessor/pkg/client"
)

// DefaultModel is used when no model is configured
const DefaultModel = openai.ChatModelGPT4o

// Config configures the OpenAI backend
type Config struct {
	APIKey string
	Model  string
	// BaseURL points the client at an OpenAI compatible endpoint.
	BaseURL string
}

// Client wraps the OpenAI SDK client
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new OpenAI client. Extra options are applied last.
func NewClient(cfg Config, opts ...option.RequestOption) *Client {
	var reqOpts []option.RequestOption
	if cfg.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	c := openai.NewClient(reqOpts...)
	return &Client{client: &c, model: model}
}

// Model returns the model name requests are sent to
func (c *Client) Model() string {
	return c.model
}

// Chat sends the conversation and returns the assistant reply
func (c *Client) Chat(ctx context.Context, messages []client.Message, tools []client.ToolDefinition) (*client.Message, error) {
	openaiMessages, err := buildMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Messages: openaiMessages,
		Model:    c.model,
	}
	if len(tools) > 0 {
		params.Tools = buildTools(tools)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("empty response from openai")
	}

	choice := completion.Choices[0]
	reply := &client.Message{
		Role:    client.RoleAssistant,
		Content: choice.Message.Content,
	}
	for _, tc := range choice.Message.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, client.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return reply, nil
}

func buildMessages(messages []client.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case client.RoleSystem:
			openaiMessages[i] = openai.SystemMessage(msg.Content)
		case client.RoleUser:
			openaiMessages[i] = openai.UserMessage(msg.Content)
		case client.RoleAssistant:
			assistantMsg := openai.AssistantMessage(msg.Content)
			if len(msg.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
				for j, tc := range msg.ToolCalls {
					toolCalls[j] = openai.ChatCompletionMessageToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(tc.Arguments),
						},
					}
				}
				if assistantMsg.OfAssistant != nil {
					assistantMsg.OfAssistant.ToolCalls = toolCalls
				}
			}
			openaiMessages[i] = assistantMsg
		case client.RoleTool:
			openaiMessages[i] = openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					ToolCallID: msg.ToolCallID,
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		default:
			return nil, fmt.Errorf("unknown role: %s", msg.Role)
		}
	}
	return openaiMessages, nil
}

func buildTools(tools []client.ToolDefinition) []openai.ChatCompletionToolParam {
	openaiTools := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		openaiTools[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		}
	}
	return openaiTools
}
