// Package render turns conversation results into text at one of three
// verbosity tiers. Rendering never changes what was fetched.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Napageneral/recall/internal/conversation"
	"github.com/Napageneral/recall/internal/imessage"
	"github.com/Napageneral/recall/internal/timestamp"
)

// Format is a verbosity tier.
type Format string

const (
	FormatMinimal Format = "minimal"
	FormatCompact Format = "compact"
	FormatFull    Format = "full"
)

// Formats lists the tiers, smallest first.
var Formats = []Format{FormatMinimal, FormatCompact, FormatFull}

// ParseFormat maps a name to a Format. Unknown names fall back to compact.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatMinimal:
		return FormatMinimal
	case FormatFull:
		return FormatFull
	default:
		return FormatCompact
	}
}

const (
	// MinimalTextBudget is the rune budget of a message line in minimal output.
	MinimalTextBudget = 70
	// CompactMessageCap is the number of messages per conversation in compact output.
	CompactMessageCap = 10
	ellipsis          = "…"
)

// Render renders results in the given format.
func Render(results []conversation.Result, format Format, query string) string {
	switch format {
	case FormatMinimal:
		return Minimal(results)
	case FormatFull:
		return Full(results, query)
	default:
		return Compact(results, query)
	}
}

// NotFound is the text returned when a search matched nothing.
func NotFound(query string, daysBack int) string {
	return fmt.Sprintf("No conversations found for \"%s\" in the last %d days.", query, daysBack)
}

// Minimal renders a header per conversation and one short line per message.
func Minimal(results []conversation.Result) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(header(r))
		b.WriteString("\n")
		for _, m := range r.Messages {
			fmt.Fprintf(&b, "  %s %s: %s\n", timestamp.Compact(m.Native), m.Sender, Truncate(oneLine(m.Text), MinimalTextBudget))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func header(r conversation.Result) string {
	if r.Kind == conversation.KindGroup {
		return fmt.Sprintf("👥 %s · %s", r.Name, plural(len(r.Messages), "msg"))
	}
	return fmt.Sprintf("👤 %s · %s · %s", r.Name, plural(len(r.Messages), "msg"), plural(r.HandleCount, "handle"))
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// Truncate shortens s to at most budget runes, marking the cut with an ellipsis.
func Truncate(s string, budget int) string {
	runes := []rune(s)
	if budget <= 0 || len(runes) <= budget {
		return s
	}
	return strings.TrimRight(string(runes[:budget-1]), " ") + ellipsis
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type compactDoc struct {
	Query         string                `json:"query"`
	Conversations []compactConversation `json:"conversations"`
}

type compactConversation struct {
	Type         conversation.Kind `json:"type"`
	Name         string            `json:"name"`
	Identifier   string            `json:"identifier"`
	Handles      int               `json:"handles,omitempty"`
	MessageCount int               `json:"message_count"`
	Messages     []compactMessage  `json:"messages"`
}

type compactMessage struct {
	Time string `json:"time"`
	From string `json:"from"`
	Text string `json:"text"`
}

// Compact renders single-line JSON with the most recent messages of each
// conversation.
func Compact(results []conversation.Result, query string) string {
	doc := compactDoc{Query: query, Conversations: make([]compactConversation, 0, len(results))}
	for _, r := range results {
		c := compactConversation{
			Type:         r.Kind,
			Name:         r.Name,
			Identifier:   r.Identifier,
			Handles:      r.HandleCount,
			MessageCount: len(r.Messages),
			Messages:     make([]compactMessage, 0, CompactMessageCap),
		}
		for i, m := range r.Messages {
			if i == CompactMessageCap {
				break
			}
			c.Messages = append(c.Messages, compactMessage{Time: m.Readable, From: m.Sender, Text: m.Text})
		}
		doc.Conversations = append(doc.Conversations, c)
	}
	return encode(doc, false)
}

type fullDoc struct {
	Query         string             `json:"query"`
	Conversations []fullConversation `json:"conversations"`
}

type fullConversation struct {
	Type         conversation.Kind `json:"type"`
	Name         string            `json:"name"`
	Identifier   string            `json:"identifier"`
	GroupID      int64             `json:"group_id,omitempty"`
	HandleCount  int               `json:"handle_count,omitempty"`
	Handles      []imessage.Handle `json:"handles,omitempty"`
	MessageCount int               `json:"message_count"`
	Messages     []fullMessage     `json:"messages"`
}

type fullMessage struct {
	ID        int64              `json:"id"`
	Timestamp int64              `json:"timestamp"`
	Time      string             `json:"time"`
	From      string             `json:"from"`
	FromMe    bool               `json:"from_me"`
	Transport imessage.Transport `json:"transport"`
	Text      string             `json:"text"`
	Decoded   bool               `json:"decoded,omitempty"`
}

// Full renders indented JSON with every message and field.
func Full(results []conversation.Result, query string) string {
	doc := fullDoc{Query: query, Conversations: make([]fullConversation, 0, len(results))}
	for _, r := range results {
		c := fullConversation{
			Type:         r.Kind,
			Name:         r.Name,
			Identifier:   r.Identifier,
			GroupID:      r.GroupID,
			HandleCount:  r.HandleCount,
			Handles:      r.Handles,
			MessageCount: len(r.Messages),
			Messages:     make([]fullMessage, 0, len(r.Messages)),
		}
		for _, m := range r.Messages {
			c.Messages = append(c.Messages, fullMessage{
				ID:        m.ID,
				Timestamp: m.Native,
				Time:      m.Readable,
				From:      m.Sender,
				FromMe:    m.FromSelf,
				Transport: m.Transport,
				Text:      m.Text,
				Decoded:   m.Decoded,
			})
		}
		doc.Conversations = append(doc.Conversations, c)
	}
	return encode(doc, true)
}

// JSON renders v as indented JSON without HTML escaping.
func JSON(v any) string {
	return encode(v, true)
}

func encode(v any, indent bool) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("failed to render output: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}
