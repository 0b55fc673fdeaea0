package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-preprocessor/pkg/client"
)

// scriptedClient replays canned replies and records what it was sent
type scriptedClient struct {
	replies []*client.Message
	err     error
	calls   [][]client.Message
	tools   []client.ToolDefinition
}

func (s *scriptedClient) Chat(_ context.Context, messages []client.Message, tools []client.ToolDefinition) (*client.Message, error) {
	s.calls = append(s.calls, append([]client.Message(nil), messages...))
	s.tools = tools
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return &client.Message{Role: client.RoleAssistant, Content: "done"}, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func toolCall(id, name, args string) client.ToolCall {
	return client.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func TestSendPlainAnswer(t *testing.T) {
	c := &scriptedClient{replies: []*client.Message{{Content: "Hello!"}}}
	a := New(c, newTestToolset(t, &fakeOps{}))

	reply, err := a.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)

	require.Len(t, c.calls, 1)
	assert.Equal(t, client.RoleSystem, c.calls[0][0].Role)
	assert.Equal(t, DefaultInstructions, c.calls[0][0].Content)
	assert.Equal(t, client.Message{Role: client.RoleUser, Content: "hi"}, c.calls[0][1])
	assert.Len(t, c.tools, 4)

	history := a.History()
	require.Len(t, history, 3)
	assert.Equal(t, client.RoleAssistant, history[2].Role)
}

func TestSendRunsToolsAndFeedsResults(t *testing.T) {
	ops := &fakeOps{}
	c := &scriptedClient{replies: []*client.Message{
		{ToolCalls: []client.ToolCall{
			toolCall("call_1", ToolSampleBoxes, `{"num_boxes":2}`),
			toolCall("call_2", "unknown_tool", `{}`),
		}},
		{Content: "Created 2 boxes."},
	}}
	a := New(c, newTestToolset(t, ops), WithName("test"))

	reply, err := a.Send(context.Background(), "make boxes")
	require.NoError(t, err)
	assert.Equal(t, "Created 2 boxes.", reply)
	assert.Equal(t, [3]int{2, 640, 640}, ops.sampleArgs)

	require.Len(t, c.calls, 2)
	second := c.calls[1]
	require.Len(t, second, 5)

	sample := second[3]
	assert.Equal(t, client.RoleTool, sample.Role)
	assert.Equal(t, "call_1", sample.ToolCallID)
	assert.Equal(t, ToolSampleBoxes, sample.Name)
	var boxes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(sample.Content), &boxes))
	assert.Len(t, boxes, 2)

	unknown := second[4]
	assert.Equal(t, "call_2", unknown.ToolCallID)
	assert.Contains(t, unknown.Content, `"status": "error"`)
	assert.Contains(t, unknown.Content, "unknown tool")
}

func TestSendKeepsConversation(t *testing.T) {
	c := &scriptedClient{}
	a := New(c, nil, WithInstructions(""))

	_, err := a.Send(context.Background(), "one")
	require.NoError(t, err)
	_, err = a.Send(context.Background(), "two")
	require.NoError(t, err)

	assert.Len(t, a.History(), 4)
	assert.Equal(t, "one", c.calls[1][0].Content)

	a.Reset()
	assert.Empty(t, a.History())
}

func TestSendStopsAtMaxTurns(t *testing.T) {
	loop := &client.Message{ToolCalls: []client.ToolCall{toolCall("c", ToolSampleBoxes, `{}`)}}
	c := &scriptedClient{replies: []*client.Message{loop, loop, loop, loop}}
	a := New(c, newTestToolset(t, &fakeOps{}), WithMaxTurns(3))

	_, err := a.Send(context.Background(), "loop forever")
	assert.ErrorIs(t, err, ErrMaxTurns)
	assert.Len(t, c.calls, 3)
}

func TestSendModelError(t *testing.T) {
	c := &scriptedClient{err: errors.New("rate limited")}
	a := New(c, nil)

	_, err := a.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Empty(t, a.History(), "failed turn should not stay in the history")
}

func TestSendModelErrorKeepsEarlierTurns(t *testing.T) {
	c := &scriptedClient{}
	a := New(c, nil)

	_, err := a.Send(context.Background(), "one")
	require.NoError(t, err)
	before := a.History()

	c.err = errors.New("unavailable")
	_, err = a.Send(context.Background(), "two")
	require.Error(t, err)
	assert.Equal(t, before, a.History())

	c.err = nil
	_, err = a.Send(context.Background(), "three")
	require.NoError(t, err)
	last := c.calls[len(c.calls)-1]
	assert.Equal(t, "three", last[len(last)-1].Content)
	assert.Len(t, last, len(before)+1)
}

func TestSendNilReply(t *testing.T) {
	c := &scriptedClient{replies: []*client.Message{nil}}
	a := New(c, nil)

	var err error
	require.NotPanics(t, func() {
		_, err = a.Send(context.Background(), "hi")
	})
	assert.ErrorIs(t, err, ErrEmptyReply)
	assert.Empty(t, a.History())
}

func TestSendCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &scriptedClient{}
	_, err := New(c, nil).Send(ctx, "hi")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, c.calls)
}
