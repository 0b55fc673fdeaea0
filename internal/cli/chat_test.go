package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-preprocessor/pkg/client"
)

// replayClient answers from a fixed list of replies
type replayClient struct {
	replies []*client.Message
	seen    [][]client.Message
}

func (r *replayClient) Chat(_ context.Context, messages []client.Message, _ []client.ToolDefinition) (*client.Message, error) {
	r.seen = append(r.seen, append([]client.Message(nil), messages...))
	if len(r.replies) == 0 {
		return nil, errors.New("no more replies")
	}
	reply := r.replies[0]
	r.replies = r.replies[1:]
	return reply, nil
}

func runChat(t *testing.T, c client.ChatClient, stdin string, args ...string) (string, error) {
	t.Helper()
	isolate(t)
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr).WithInput(strings.NewReader(stdin)).WithChatClient(c)
	err := app.ExecuteWithArgs(context.Background(), append([]string{"chat"}, args...))
	return stdout.String(), err
}

func TestChat_InteractiveLoop(t *testing.T) {
	c := &replayClient{replies: []*client.Message{
		{Content: "Hi! What should I process?"},
	}}

	out, err := runChat(t, c, "hello\n\n   \nBye\nnever sent\n")
	require.NoError(t, err)

	assert.Contains(t, out, "Agent: Hi! What should I process?")
	assert.Contains(t, out, "Goodbye!")
	require.Len(t, c.seen, 1)
	assert.Equal(t, "hello", c.seen[0][len(c.seen[0])-1].Content)
}

func TestChat_ErrorsDoNotEndSession(t *testing.T) {
	out, err := runChat(t, &replayClient{}, "first\nquit\n")
	require.NoError(t, err)
	assert.Contains(t, out, "Agent error:")
	assert.Contains(t, out, "Goodbye!")
}

func TestChat_EndOfInput(t *testing.T) {
	out, err := runChat(t, &replayClient{}, "")
	require.NoError(t, err)
	assert.Contains(t, out, "You: ")
}

func TestChat_SingleMessageRunsTools(t *testing.T) {
	c := &replayClient{replies: []*client.Message{
		{ToolCalls: []client.ToolCall{{
			ID:        "call_1",
			Name:      "create_sample_annotations",
			Arguments: json.RawMessage(`{"num_boxes":2}`),
		}}},
		{Content: "Created 2 boxes."},
	}}

	out, err := runChat(t, c, "", "-m", "make two boxes")
	require.NoError(t, err)
	assert.Equal(t, "Created 2 boxes.\n", out)

	require.Len(t, c.seen, 2)
	toolMsg := c.seen[1][len(c.seen[1])-1]
	assert.Equal(t, client.RoleTool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)

	var boxes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolMsg.Content), &boxes))
	assert.Len(t, boxes, 2)
}
