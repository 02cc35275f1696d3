package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Napageneral/recall/internal/conversation"
	"github.com/Napageneral/recall/internal/imessage"
	"github.com/Napageneral/recall/internal/timestamp"
)

func sampleResults(n int) []conversation.Result {
	base := time.Date(2026, 3, 14, 18, 30, 0, 0, time.Local)
	var msgs []conversation.RenderedMessage
	for i := 0; i < n; i++ {
		native := timestamp.FromTime(base.Add(-time.Duration(i) * time.Minute))
		m := conversation.RenderedMessage{
			ID:        int64(100 - i),
			Native:    native,
			Readable:  timestamp.ToReadable(native),
			Text:      fmt.Sprintf("message %d <b>&</b>", i),
			Sender:    "Jane Doe",
			Transport: imessage.TransportIMessage,
		}
		if i == 0 {
			m.Sender = conversation.SelfLabel
			m.FromSelf = true
		}
		msgs = append(msgs, m)
	}
	return []conversation.Result{
		{
			Kind:        conversation.KindIndividual,
			Name:        "Jane Doe",
			Identifier:  "+12484108156",
			HandleCount: 3,
			Handles: []imessage.Handle{
				{ID: 1, Identifier: "+12484108156", Transport: imessage.TransportRCS, Region: "us"},
				{ID: 2, Identifier: "+12484108156", Transport: imessage.TransportSMS, Region: "us"},
				{ID: 3, Identifier: "+12484108156", Transport: imessage.TransportIMessage, Region: "us"},
			},
			Messages: msgs,
		},
		{
			Kind:       conversation.KindGroup,
			Name:       "Book Club",
			Identifier: "group:7",
			GroupID:    7,
			Messages: []conversation.RenderedMessage{{
				Native:   timestamp.FromTime(base),
				Readable: timestamp.ToReadable(timestamp.FromTime(base)),
				Text:     "line one\nline two",
				Sender:   "bob",
			}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"minimal": FormatMinimal,
		" FULL ":  FormatFull,
		"compact": FormatCompact,
		"":        FormatCompact,
		"verbose": FormatCompact,
	}
	for in, want := range cases {
		if got := ParseFormat(in); got != want {
			t.Fatalf("ParseFormat(%q)=%q want %q", in, got, want)
		}
	}
}

func TestMinimal(t *testing.T) {
	out := Minimal(sampleResults(2))
	lines := strings.Split(out, "\n")
	want := []string{
		"👤 Jane Doe · 2 msgs · 3 handles",
		"  3/14 18:30 You: message 0 <b>&</b>",
		"  3/14 18:29 Jane Doe: message 1 <b>&</b>",
		"",
		"👥 Book Club · 1 msg",
		"  3/14 18:30 bob: line one line two",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q want %q", i, lines[i], want[i])
		}
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", 100)
	got := Truncate(long, MinimalTextBudget)
	if utf8.RuneCountInString(got) != MinimalTextBudget || !strings.HasSuffix(got, "…") {
		t.Fatalf("unexpected truncation %q (%d runes)", got, utf8.RuneCountInString(got))
	}
	if got := Truncate("short", MinimalTextBudget); got != "short" {
		t.Fatalf("short text changed: %q", got)
	}
	exact := strings.Repeat("a", MinimalTextBudget)
	if got := Truncate(exact, MinimalTextBudget); got != exact {
		t.Fatalf("text at budget should not be cut")
	}
}

func TestCompact(t *testing.T) {
	out := Compact(sampleResults(15), "jane")
	if strings.Contains(out, "\n") {
		t.Fatalf("compact output should be a single line")
	}

	var doc struct {
		Query         string `json:"query"`
		Conversations []struct {
			Type         string `json:"type"`
			Name         string `json:"name"`
			Handles      int    `json:"handles"`
			MessageCount int    `json:"message_count"`
			Messages     []struct {
				Time string `json:"time"`
				From string `json:"from"`
				Text string `json:"text"`
			} `json:"messages"`
		} `json:"conversations"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if doc.Query != "jane" || len(doc.Conversations) != 2 {
		t.Fatalf("unexpected doc %+v", doc)
	}
	c := doc.Conversations[0]
	if c.Type != "individual" || c.Handles != 3 || c.MessageCount != 15 || len(c.Messages) != CompactMessageCap {
		t.Fatalf("unexpected conversation %+v", c)
	}
	if c.Messages[0].From != "You" || c.Messages[0].Time != "2026-03-14 18:30:00" {
		t.Fatalf("unexpected first message %+v", c.Messages[0])
	}
	if !strings.Contains(out, "<b>&</b>") {
		t.Fatalf("text should not be HTML-escaped: %s", out)
	}
	if g := doc.Conversations[1]; g.Type != "group" || g.Handles != 0 {
		t.Fatalf("unexpected group %+v", g)
	}
}

func TestFull(t *testing.T) {
	results := sampleResults(15)
	out := Full(results, "jane")

	var doc struct {
		Conversations []struct {
			GroupID     int64 `json:"group_id"`
			HandleCount int   `json:"handle_count"`
			Handles     []struct {
				Identifier string `json:"identifier"`
				Transport  string `json:"transport"`
				Region     string `json:"region"`
			} `json:"handles"`
			Messages []struct {
				ID        int64  `json:"id"`
				Timestamp int64  `json:"timestamp"`
				FromMe    bool   `json:"from_me"`
				Transport string `json:"transport"`
			} `json:"messages"`
		} `json:"conversations"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	c := doc.Conversations[0]
	if len(c.Messages) != 15 || c.HandleCount != 3 || len(c.Handles) != 3 {
		t.Fatalf("full output should keep every message and handle: %+v", c)
	}
	if c.Handles[0].Transport != "rcs" || c.Handles[0].Region != "us" {
		t.Fatalf("unexpected handle %+v", c.Handles[0])
	}
	if !c.Messages[0].FromMe || c.Messages[0].Timestamp != results[0].Messages[0].Native {
		t.Fatalf("unexpected message %+v", c.Messages[0])
	}
	if doc.Conversations[1].GroupID != 7 {
		t.Fatalf("group id lost")
	}
}

func TestTiersShareMessages(t *testing.T) {
	results := sampleResults(5)
	for _, f := range Formats {
		out := Render(results, f, "jane")
		if !strings.Contains(out, "message 4") {
			t.Fatalf("%s output missing a fetched message:\n%s", f, out)
		}
	}
	if len(Render(results, FormatMinimal, "jane")) >= len(Render(results, FormatFull, "jane")) {
		t.Fatalf("minimal output should be smaller than full")
	}
}

func TestNotFound(t *testing.T) {
	want := `No conversations found for "jane" in the last 30 days.`
	if got := NotFound("jane", 30); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
