package imessage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Napageneral/recall/internal/db"
	"github.com/Napageneral/recall/internal/testutil"
	"github.com/Napageneral/recall/internal/timestamp"
)

func openFixture(t *testing.T, fx *testutil.ChatDB) *Store {
	t.Helper()
	fx.Close()
	s, err := Open(context.Background(), db.DriverModernc, fx.Path())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseTransport(t *testing.T) {
	cases := map[string]Transport{
		"SMS":      TransportSMS,
		"iMessage": TransportIMessage,
		"RCS":      TransportRCS,
		"":         TransportOther,
		"Whatever": TransportOther,
	}
	for in, want := range cases {
		if got := ParseTransport(in); got != want {
			t.Fatalf("ParseTransport(%q)=%q want %q", in, got, want)
		}
	}
}

func TestOpenMissingStore(t *testing.T) {
	_, err := Open(context.Background(), db.DriverModernc, filepath.Join(t.TempDir(), "chat.db"))
	if !errors.Is(err, db.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestFindHandles(t *testing.T) {
	fx := testutil.NewChatDB(t)
	rcs := fx.AddHandle("+12484108156", "RCS", "us")
	sms := fx.AddHandle("+12484108156", "SMS", "us")
	im := fx.AddHandle("+12484108156", "iMessage", "us")
	fx.AddHandle("jane@example.com", "iMessage", "")
	fx.AddHandle("+15550001111", "SMS", "us")
	s := openFixture(t, fx)
	ctx := context.Background()

	for _, term := range []string{"4108156", "(248) 410-8156", "+1 248 410 8156"} {
		got, err := s.FindHandles(ctx, term)
		if err != nil {
			t.Fatalf("FindHandles(%q): %v", term, err)
		}
		if len(got) != 3 {
			t.Fatalf("FindHandles(%q) returned %d handles, want 3: %+v", term, len(got), got)
		}
		if got[0].ID != rcs || got[1].ID != sms || got[2].ID != im {
			t.Fatalf("unexpected order: %+v", got)
		}
		if got[0].Transport != TransportRCS || got[2].Region != "us" {
			t.Fatalf("unexpected fields: %+v", got)
		}
	}

	// Idempotent.
	a, _ := s.FindHandles(ctx, "4108156")
	b, _ := s.FindHandles(ctx, "4108156")
	if len(a) != len(b) {
		t.Fatalf("repeat lookup differs: %d vs %d", len(a), len(b))
	}

	got, err := s.FindHandles(ctx, "JANE@example")
	if err != nil || len(got) != 1 {
		t.Fatalf("email lookup: %v %+v", err, got)
	}

	got, err = s.FindHandles(ctx, "nobody")
	if err != nil {
		t.Fatalf("no-match lookup should not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no handles, got %+v", got)
	}

	// LIKE wildcards in the term are literals.
	got, _ = s.FindHandles(ctx, "%")
	if len(got) != 0 {
		t.Fatalf("wildcard should not match everything: %+v", got)
	}
}

func TestHandleMessagesFilters(t *testing.T) {
	fx := testutil.NewChatDB(t)
	h1 := fx.AddHandle("+12484108156", "SMS", "us")
	h2 := fx.AddHandle("+12484108156", "iMessage", "us")
	other := fx.AddHandle("+15550001111", "SMS", "us")

	now := time.Now()
	fx.AddMessage(testutil.Message{Text: "old", HandleID: h1, Time: now.Add(-40 * 24 * time.Hour)})
	fx.AddMessage(testutil.Message{Text: "sms recent", HandleID: h1, Service: "SMS", Time: now.Add(-2 * time.Hour)})
	fx.AddMessage(testutil.Message{Text: "imessage newest", HandleID: h2, Time: now.Add(-1 * time.Hour)})
	fx.AddMessage(testutil.Message{Text: "mine", HandleID: h2, FromMe: true, Time: now.Add(-90 * time.Minute)})
	fx.AddMessage(testutil.Message{AttributedBody: []byte("streamtyped body"), HandleID: h2, Time: now.Add(-3 * time.Hour)})
	fx.AddMessage(testutil.Message{Text: "   ", HandleID: h1, Time: now.Add(-4 * time.Hour)})
	fx.AddMessage(testutil.Message{Text: "someone else", HandleID: other, Time: now.Add(-1 * time.Hour)})
	s := openFixture(t, fx)
	ctx := context.Background()

	since := timestamp.ThresholdAt(now, 30)
	msgs, err := s.HandleMessages(ctx, []int64{h1, h2}, Filter{Since: since, Limit: 10, IncludeSent: true})
	if err != nil {
		t.Fatalf("HandleMessages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages want 4: %+v", len(msgs), msgs)
	}
	if msgs[0].Text != "imessage newest" || msgs[1].Text != "mine" || msgs[2].Text != "sms recent" {
		t.Fatalf("unexpected order: %+v", msgs)
	}
	if !msgs[1].FromMe || msgs[1].Sender != "" {
		t.Fatalf("sent message should have no sender: %+v", msgs[1])
	}
	if msgs[0].Sender != "+12484108156" || msgs[2].Transport != TransportSMS {
		t.Fatalf("unexpected fields: %+v", msgs)
	}
	if msgs[3].Text != "" || len(msgs[3].Body) == 0 {
		t.Fatalf("expected encoded-body-only message last: %+v", msgs[3])
	}
	for _, m := range msgs {
		if m.Date <= since {
			t.Fatalf("message %d at or before threshold", m.ID)
		}
	}

	msgs, _ = s.HandleMessages(ctx, []int64{h1, h2}, Filter{Since: since, Limit: 10})
	for _, m := range msgs {
		if m.FromMe {
			t.Fatalf("sent message returned with IncludeSent=false")
		}
	}

	msgs, _ = s.HandleMessages(ctx, []int64{h1, h2}, Filter{Since: since, Limit: 2, IncludeSent: true})
	if len(msgs) != 2 {
		t.Fatalf("limit not applied: %d", len(msgs))
	}

	msgs, _ = s.HandleMessages(ctx, []int64{h1, h2}, Filter{Since: since, IncludeSent: true, TextOnly: true})
	if len(msgs) != 3 {
		t.Fatalf("text-only got %d want 3", len(msgs))
	}

	msgs, _ = s.HandleMessages(ctx, []int64{h1, h2}, Filter{Since: timestamp.ThresholdAt(now, 0), IncludeSent: true})
	if len(msgs) != 0 {
		t.Fatalf("zero lookback should return nothing, got %d", len(msgs))
	}
}

func TestGroups(t *testing.T) {
	fx := testutil.NewChatDB(t)
	a := fx.AddHandle("+15550001111", "iMessage", "us")
	b := fx.AddHandle("bob@example.com", "iMessage", "")
	family := fx.AddChat("chat111111111", "Family Chat", testutil.GroupStyle, a, b)
	fx.AddChat("chat222222222", "", testutil.GroupStyle, a)

	now := time.Now()
	fx.AddMessage(testutil.Message{Text: "hi all", HandleID: a, ChatID: family, Time: now.Add(-time.Hour)})
	fx.AddMessage(testutil.Message{Text: "me here", FromMe: true, ChatID: family, Time: now.Add(-30 * time.Minute)})
	fx.AddMessage(testutil.Message{Text: "ancient", HandleID: b, ChatID: family, Time: now.Add(-400 * 24 * time.Hour)})
	direct := fx.AddChat("+15550001111", "", testutil.DirectStyle, a)
	fx.AddMessage(testutil.Message{Text: "just us", HandleID: a, ChatID: direct, Time: now.Add(-2 * time.Hour)})
	fx.AddMessage(testutil.Message{Text: "no chat row", HandleID: a, Time: now.Add(-3 * time.Hour)})
	s := openFixture(t, fx)
	ctx := context.Background()

	groups, err := s.FindGroups(ctx, "Family", 5)
	if err != nil {
		t.Fatalf("FindGroups: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != family {
		t.Fatalf("unexpected groups %+v", groups)
	}

	// Case-sensitive.
	groups, _ = s.FindGroups(ctx, "family", 5)
	if len(groups) != 0 {
		t.Fatalf("expected case-sensitive match, got %+v", groups)
	}

	// Direct chats are not groups.
	groups, _ = s.FindGroups(ctx, "5550001111", 5)
	if len(groups) != 0 {
		t.Fatalf("direct chat matched as group: %+v", groups)
	}

	groups, _ = s.FindGroups(ctx, "chat", 1)
	if len(groups) != 1 || groups[0].ID != family {
		t.Fatalf("expected most recently active group first: %+v", groups)
	}

	g, ok, err := s.GroupByID(ctx, family)
	if err != nil || !ok || g.DisplayName != "Family Chat" {
		t.Fatalf("GroupByID: %+v %v %v", g, ok, err)
	}
	_, ok, err = s.GroupByID(ctx, 999999)
	if err != nil || ok {
		t.Fatalf("GroupByID missing: ok=%v err=%v", ok, err)
	}

	parts, err := s.GroupParticipants(ctx, family)
	if err != nil || len(parts) != 2 {
		t.Fatalf("GroupParticipants: %+v %v", parts, err)
	}

	msgs, err := s.GroupMessages(ctx, family, Filter{Since: timestamp.ThresholdAt(now, 30), Limit: 10, IncludeSent: true})
	if err != nil {
		t.Fatalf("GroupMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "me here" || msgs[1].Sender != "+15550001111" {
		t.Fatalf("unexpected group messages %+v", msgs)
	}

	act, err := s.GroupActivity(ctx, family, timestamp.ThresholdAt(now, 3650))
	if err != nil || len(act) != 3 {
		t.Fatalf("GroupActivity: %+v %v", act, err)
	}
	// A handle's history covers every chat it wrote in: group, direct, and
	// messages with no chat row at all.
	hact, err := s.HandleActivity(ctx, []int64{a}, timestamp.ThresholdAt(now, 30))
	if err != nil || len(hact) != 3 || hact[0].Sender != "+15550001111" {
		t.Fatalf("HandleActivity: %+v %v", hact, err)
	}
	history, err := s.HandleMessages(ctx, []int64{a}, Filter{Since: timestamp.ThresholdAt(now, 30), IncludeSent: true})
	if err != nil || len(history) != 3 {
		t.Fatalf("HandleMessages: %+v %v", history, err)
	}
	if history[0].Text != "hi all" || history[1].Text != "just us" || history[2].Text != "no chat row" {
		t.Fatalf("unexpected handle history %+v", history)
	}
}
