package tools

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/recall/internal/config"
	"github.com/Napageneral/recall/internal/db"
	"github.com/Napageneral/recall/internal/query"
	"github.com/Napageneral/recall/internal/testutil"
)

func newHandler(t *testing.T) *Handler {
	t.Helper()
	dir := t.TempDir()
	now := time.Now()

	chat := testutil.NewChatDB(t)
	sms := chat.AddHandle("+12484108156", "SMS", "us")
	im := chat.AddHandle("+12484108156", "iMessage", "us")
	chat.AddMessage(testutil.Message{Text: "running late", HandleID: sms, Service: "SMS", Time: now.Add(-2 * time.Hour)})
	chat.AddMessage(testutil.Message{Text: "I hate this weather", HandleID: im, Time: now.Add(-1 * time.Hour)})
	chat.Close()

	ab := testutil.NewAddressBook(t, filepath.Join(dir, "AddressBook"))
	ab.AddPerson(testutil.Person{First: "Jane", Last: "Doe", Phones: []string{"+1 248 410 8156"}})
	ab.Close()

	cfg := config.Default()
	cfg.Stores.MessagesDB = chat.Path()
	cfg.Stores.ContactsDir = filepath.Join(dir, "AddressBook")
	cfg.Stores.Driver = db.DriverModernc
	return NewHandler(query.New(cfg, zerolog.Nop()), zerolog.Nop())
}

func call(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestToolDefinitions(t *testing.T) {
	h := newHandler(t)
	want := []string{"search_and_read", "search_contacts", "read_conversation", "get_conversation_stats", "analyze_message_sentiment"}

	tools := h.Tools()
	require.Len(t, tools, len(want))
	for i, st := range tools {
		assert.Equal(t, want[i], st.Tool.Name)
		assert.NotEmpty(t, st.Tool.Description)
		require.NotNil(t, st.Tool.Annotations.ReadOnlyHint, st.Tool.Name)
		assert.True(t, *st.Tool.Annotations.ReadOnlyHint, st.Tool.Name)
		assert.NotNil(t, st.Handler)
	}

	s := server.NewMCPServer("recall-test", "0.0.0", server.WithToolCapabilities(true))
	require.NoError(t, h.RegisterTools(s))
}

func TestSearchAndReadTool(t *testing.T) {
	h := newHandler(t)
	res, err := h.handleSearchAndRead(context.Background(), call(map[string]any{
		"query":  "(248) 410-8156",
		"format": "minimal",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	out := text(t, res)
	assert.Contains(t, out, "👤 Jane Doe · 2 msgs · 2 handles")
	assert.Contains(t, out, "running late")
}

func TestSearchAndReadToolRequiresQuery(t *testing.T) {
	h := newHandler(t)
	res, err := h.handleSearchAndRead(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "Error:")
}

func TestReadConversationToolUnknownGroup(t *testing.T) {
	h := newHandler(t)
	res, err := h.handleReadConversation(context.Background(), call(map[string]any{
		"identifier": "group:999999",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError, "an unknown group is an ordinary answer")
	assert.Equal(t, `No conversations found for "group:999999" in the last 30 days.`, text(t, res))
}

func TestSearchContactsTool(t *testing.T) {
	h := newHandler(t)
	res, err := h.handleSearchContacts(context.Background(), call(map[string]any{"query": "4108156"}))
	require.NoError(t, err)
	out := text(t, res)
	assert.Contains(t, out, `"count": 2`)
	assert.Contains(t, out, `"name": "Jane Doe"`)
}

func TestStatsTool(t *testing.T) {
	h := newHandler(t)
	res, err := h.handleConversationStats(context.Background(), call(map[string]any{
		"identifier": "Jane",
		"daily":      true,
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	out := text(t, res)
	assert.Contains(t, out, `"total": 2`)
	assert.Contains(t, out, `"days": [`)
}

func TestSentimentTool(t *testing.T) {
	h := newHandler(t)
	res, err := h.handleAnalyzeSentiment(context.Background(), call(map[string]any{
		"identifier": "+12484108156",
		"keywords":   []any{"HATE"},
	}))
	require.NoError(t, err)
	out := text(t, res)
	assert.Contains(t, out, `"matched": 1`)
	assert.Contains(t, out, "I hate this weather")
}

func TestToolsStoreUnavailable(t *testing.T) {
	cfg := config.Default()
	cfg.Stores.MessagesDB = filepath.Join(t.TempDir(), "missing", "chat.db")
	cfg.Stores.ContactsDir = t.TempDir()
	cfg.Stores.Driver = db.DriverModernc
	h := NewHandler(query.New(cfg, zerolog.Nop()), zerolog.Nop())

	res, err := h.handleSearchAndRead(context.Background(), call(map[string]any{"query": "Jane"}))
	require.NoError(t, err, "tool failures are reported in the result")
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "Full Disk Access")
}
