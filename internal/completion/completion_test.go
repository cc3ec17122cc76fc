package completion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/waiterbot-go/internal/config"
	"github.com/54b3r/waiterbot-go/internal/logging"
	"github.com/54b3r/waiterbot-go/internal/prompt"
	"github.com/54b3r/waiterbot-go/internal/rag"
	"github.com/54b3r/waiterbot-go/internal/store"
)

// fakeModel records the last request and returns a canned reply.
type fakeModel struct {
	reply string
	err   error
	nilOK bool

	got  []*schema.Message
	opts *model.Options
}

func (f *fakeModel) Generate(_ context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.got = in
	f.opts = model.GetCommonOptions(nil, opts...)
	if f.err != nil {
		return nil, f.err
	}
	if f.nilOK {
		return nil, nil
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func newClient(t *testing.T, m Generator, mode string, maxTokens int) *Client {
	t.Helper()
	c, err := New(Config{
		Model:            m,
		Builder:          prompt.New("WaiterBot", "Testaurant"),
		Mode:             mode,
		MaxContextTokens: maxTokens,
		Logger:           logging.Discard(),
	})
	require.NoError(t, err)
	return c
}

var conversation = []store.ChatMessage{
	{Author: "user", Content: "hi"},
	{Author: "bot", Content: "hello, what can I get you?"},
	{Author: "user", Content: "What soups do you have?"},
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	b := prompt.New("WaiterBot", "Testaurant")
	_, err := New(Config{Builder: b})
	assert.Error(t, err)
	_, err = New(Config{Model: &fakeModel{}})
	assert.Error(t, err)
	_, err = New(Config{Model: &fakeModel{}, Builder: b, Mode: "poem"})
	assert.Error(t, err)
}

func TestComplete_ChatMode(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: "WaiterBot: We have tomato soup."}
	c := newClient(t, m, config.ModeChat, 0)

	resp, err := c.Complete(context.Background(), Request{
		History:     conversation,
		Passages:    []string{"Food Name: Soup"},
		Temperature: 0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "We have tomato soup.", resp.Reply)
	assert.Contains(t, resp.Context, "1. Food Name: Soup")

	require.Len(t, m.got, 4)
	assert.Equal(t, schema.System, m.got[0].Role)
	assert.Equal(t, resp.Context, m.got[0].Content)
	assert.Equal(t, schema.User, m.got[1].Role)
	assert.Equal(t, schema.Assistant, m.got[2].Role)
	assert.Equal(t, schema.User, m.got[3].Role)
	assert.Equal(t, "What soups do you have?", m.got[3].Content)

	require.NotNil(t, m.opts.Temperature)
	assert.InDelta(t, 0.4, *m.opts.Temperature, 1e-6)
}

func TestComplete_ChatModeAnyNonBotAuthorIsUser(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: "Tomato soup."}
	c := newClient(t, m, config.ModeChat, 0)

	_, err := c.Complete(context.Background(), Request{History: []store.ChatMessage{
		{Author: "customer", Content: "hi"},
		{Author: store.SourceBot, Content: "hello"},
		{Author: "customer", Content: "What soups do you have?"},
	}})
	require.NoError(t, err)

	require.Len(t, m.got, 4)
	assert.Equal(t, schema.User, m.got[1].Role)
	assert.Equal(t, schema.Assistant, m.got[2].Role)
	assert.Equal(t, schema.User, m.got[3].Role, "latest guest turn must be sent as user")
	assert.Equal(t, "What soups do you have?", m.got[3].Content)
}

func TestComplete_ChatModeTrimsOldestButKeepsLatest(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: "ok"}
	c := newClient(t, m, config.ModeChat, 1)

	_, err := c.Complete(context.Background(), Request{History: conversation})
	require.NoError(t, err)
	require.Len(t, m.got, 2)
	assert.Equal(t, schema.System, m.got[0].Role)
	assert.Equal(t, "What soups do you have?", m.got[1].Content)
}

func TestComplete_PromptMode(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: "Tomato soup."}
	c := newClient(t, m, config.ModePrompt, 0)
	b := prompt.New("WaiterBot", "Testaurant")

	resp, err := c.Complete(context.Background(), Request{
		History:  conversation,
		Passages: []string{"Food Name: Soup"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tomato soup.", resp.Reply)

	require.Len(t, m.got, 1)
	assert.Equal(t, schema.User, m.got[0].Role)
	assert.Equal(t, b.Build(conversation, []string{"Food Name: Soup"}), m.got[0].Content)
	assert.Equal(t, m.got[0].Content, resp.Context)
}

func TestComplete_PromptModeTrims(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: "ok"}
	c := newClient(t, m, config.ModePrompt, 1)

	_, err := c.Complete(context.Background(), Request{History: conversation})
	require.NoError(t, err)
	require.Len(t, m.got, 1)
	assert.NotContains(t, m.got[0].Content, "User:hi\n")
	assert.True(t, strings.HasSuffix(m.got[0].Content, "User:What soups do you have?\n"))
}

func TestComplete_UpstreamErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		m    *fakeModel
	}{
		{"generate error", &fakeModel{err: errors.New("429 quota")}},
		{"nil message", &fakeModel{nilOK: true}},
		{"empty reply", &fakeModel{reply: "  WaiterBot:  "}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newClient(t, tc.m, config.ModeChat, 0)
			_, err := c.Complete(context.Background(), Request{History: conversation})
			require.Error(t, err)
			assert.True(t, rag.IsUpstream(err))
		})
	}
}
