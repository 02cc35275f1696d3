// Package tools exposes the query operations as MCP tools.
package tools

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/Napageneral/recall/internal/query"
	"github.com/Napageneral/recall/internal/render"
)

// Handler serves the tools from a query.Service.
type Handler struct {
	svc    *query.Service
	logger zerolog.Logger
}

// NewHandler builds a tool handler.
func NewHandler(svc *query.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "tools").Logger()}
}

// RegisterTools registers every tool on s.
func (h *Handler) RegisterTools(s *server.MCPServer) error {
	s.AddTools(h.Tools()...)
	return nil
}

// Tools returns the tool definitions with their handlers.
func (h *Handler) Tools() []server.ServerTool {
	d := h.svc.Config().Defaults
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("search_and_read",
				mcp.WithDescription("Find conversations by phone number, email, contact name or group name and read their recent messages. All handles of one number (SMS, iMessage, RCS) are merged into a single conversation."),
				mcp.WithString("query", mcp.Required(), mcp.Description("Phone number (any format or partial digits), email, contact name, or group name")),
				mcp.WithBoolean("includeGroups", mcp.DefaultBool(true), mcp.Description("Also search group chats by name")),
				mcp.WithNumber("limit", mcp.DefaultNumber(float64(d.Limit)), mcp.Min(query.MinLimit), mcp.Max(query.MaxLimit), mcp.Description("Maximum messages per conversation")),
				mcp.WithNumber("daysBack", mcp.DefaultNumber(float64(d.DaysBack)), mcp.Min(0), mcp.Max(query.MaxDaysBack), mcp.Description("Only messages from the last N days")),
				formatOption(d.Format),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
			),
			Handler: h.handleSearchAndRead,
		},
		{
			Tool: mcp.NewTool("search_contacts",
				mcp.WithDescription("List the raw message handles (identifier, transport, region) a phone number, email or name resolves to, with matching address book entries."),
				mcp.WithString("query", mcp.Required(), mcp.Description("Phone number, email or name")),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
			),
			Handler: h.handleSearchContacts,
		},
		{
			Tool: mcp.NewTool("read_conversation",
				mcp.WithDescription("Read one conversation: a contact by phone, email or name (the most recently active match), or a group chat as group:<id>."),
				mcp.WithString("identifier", mcp.Required(), mcp.Description("Phone, email, name, or group:<id>")),
				mcp.WithNumber("limit", mcp.DefaultNumber(float64(d.Limit)), mcp.Min(query.MinLimit), mcp.Max(query.MaxLimit), mcp.Description("Maximum messages")),
				mcp.WithNumber("daysBack", mcp.DefaultNumber(float64(d.DaysBack)), mcp.Min(0), mcp.Max(query.MaxDaysBack), mcp.Description("Only messages from the last N days")),
				mcp.WithBoolean("includeSent", mcp.DefaultBool(true), mcp.Description("Include messages you sent")),
				formatOption(d.Format),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
			),
			Handler: h.handleReadConversation,
		},
		{
			Tool: mcp.NewTool("get_conversation_stats",
				mcp.WithDescription("Message counts for a conversation (total, sent, received, per transport, per participant for groups) without message bodies."),
				mcp.WithString("identifier", mcp.Required(), mcp.Description("Phone, email, name, or group:<id>")),
				mcp.WithNumber("daysBack", mcp.DefaultNumber(float64(d.DaysBack)), mcp.Min(0), mcp.Max(query.MaxDaysBack), mcp.Description("Only messages from the last N days")),
				mcp.WithBoolean("daily", mcp.DefaultBool(false), mcp.Description("Include a per-day breakdown")),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
			),
			Handler: h.handleConversationStats,
		},
		{
			Tool: mcp.NewTool("analyze_message_sentiment",
				mcp.WithDescription("Scan incoming messages of a conversation for hostile or negative keywords (case-insensitive, any keyword matches). Your own messages are never scanned."),
				mcp.WithString("identifier", mcp.Required(), mcp.Description("Phone, email, name, or group:<id>")),
				mcp.WithArray("keywords", mcp.WithStringItems(), mcp.Description("Keywords to look for; defaults to a built-in list")),
				mcp.WithNumber("daysBack", mcp.DefaultNumber(float64(d.DaysBack)), mcp.Min(0), mcp.Max(query.MaxDaysBack), mcp.Description("Only messages from the last N days")),
				mcp.WithBoolean("groupByDate", mcp.DefaultBool(false), mcp.Description("Count matches per day instead of listing them")),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
			),
			Handler: h.handleAnalyzeSentiment,
		},
	}
}

func formatOption(def string) mcp.ToolOption {
	enum := make([]string, len(render.Formats))
	for i, f := range render.Formats {
		enum[i] = string(f)
	}
	return mcp.WithString("format",
		mcp.DefaultString(def),
		mcp.Enum(enum...),
		mcp.Description("minimal: one line per message; compact: JSON with the 10 newest messages; full: JSON with every message and field"),
	)
}

func (h *Handler) handleSearchAndRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	q, err := req.RequireString("query")
	if err != nil {
		return h.invalid("search_and_read", start, err), nil
	}
	d := h.svc.Config().Defaults
	text, err := h.svc.SearchAndRead(ctx, query.SearchParams{
		Query:         q,
		IncludeGroups: req.GetBool("includeGroups", true),
		Limit:         req.GetInt("limit", d.Limit),
		DaysBack:      req.GetInt("daysBack", d.DaysBack),
		Format:        render.ParseFormat(req.GetString("format", d.Format)),
	})
	return h.result("search_and_read", start, text, err), nil
}

func (h *Handler) handleSearchContacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	q, err := req.RequireString("query")
	if err != nil {
		return h.invalid("search_contacts", start, err), nil
	}
	text, err := h.svc.SearchContacts(ctx, q)
	return h.result("search_contacts", start, text, err), nil
}

func (h *Handler) handleReadConversation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	id, err := req.RequireString("identifier")
	if err != nil {
		return h.invalid("read_conversation", start, err), nil
	}
	d := h.svc.Config().Defaults
	text, err := h.svc.ReadConversation(ctx, query.ReadParams{
		Identifier:  id,
		Limit:       req.GetInt("limit", d.Limit),
		DaysBack:    req.GetInt("daysBack", d.DaysBack),
		IncludeSent: req.GetBool("includeSent", true),
		Format:      render.ParseFormat(req.GetString("format", d.Format)),
	})
	return h.result("read_conversation", start, text, err), nil
}

func (h *Handler) handleConversationStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	id, err := req.RequireString("identifier")
	if err != nil {
		return h.invalid("get_conversation_stats", start, err), nil
	}
	text, err := h.svc.ConversationStats(ctx, query.StatsParams{
		Identifier: id,
		DaysBack:   req.GetInt("daysBack", h.svc.Config().Defaults.DaysBack),
		Daily:      req.GetBool("daily", false),
	})
	return h.result("get_conversation_stats", start, text, err), nil
}

func (h *Handler) handleAnalyzeSentiment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	id, err := req.RequireString("identifier")
	if err != nil {
		return h.invalid("analyze_message_sentiment", start, err), nil
	}
	text, err := h.svc.AnalyzeSentiment(ctx, query.SentimentParams{
		Identifier:  id,
		Keywords:    req.GetStringSlice("keywords", nil),
		DaysBack:    req.GetInt("daysBack", h.svc.Config().Defaults.DaysBack),
		GroupByDate: req.GetBool("groupByDate", false),
	})
	return h.result("analyze_message_sentiment", start, text, err), nil
}

func (h *Handler) invalid(tool string, start time.Time, err error) *mcp.CallToolResult {
	text := "Error: " + err.Error()
	h.logger.Warn().Str("tool", tool).Dur("duration", time.Since(start)).Err(err).Msg("invalid tool call")
	return mcp.NewToolResultError(text)
}

// result converts a service answer into a tool result. Not-found answers are
// ordinary text; every other failure is flagged as a tool error.
func (h *Handler) result(tool string, start time.Time, text string, err error) *mcp.CallToolResult {
	ev := h.logger.Info()
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, query.ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
		ev = h.logger.Warn().Err(err)
	}
	ev.Str("tool", tool).
		Str("request_id", uuid.NewString()).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Int("bytes", len(text)).
		Msg("tool call")

	if outcome == "error" {
		return mcp.NewToolResultError(text)
	}
	return mcp.NewToolResultText(text)
}
