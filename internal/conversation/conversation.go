// Package conversation merges every handle that shares a raw identifier into
// one conversation and reads its recent messages.
//
// A person reachable over SMS, iMessage and RCS has three handle rows with the
// same identifier. Searching for them by several terms (the query, the digits
// of a phone, the phones and emails found by name) matches those rows many
// times over; the aggregator collapses the matches into one canonical contact
// per identifier and fetches its messages with a single query.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Napageneral/recall/internal/contacts"
	"github.com/Napageneral/recall/internal/decode"
	"github.com/Napageneral/recall/internal/identify"
	"github.com/Napageneral/recall/internal/imessage"
	"github.com/Napageneral/recall/internal/timestamp"
)

// NoTextContent replaces the text of messages whose body could not be decoded.
const NoTextContent = "[no text content]"

// SelfLabel is the sender label of messages sent by the owner.
const SelfLabel = "You"

// DefaultGroupCandidates bounds how many groups a query may match.
const DefaultGroupCandidates = 5

var (
	// ErrNoConversations means the search ran and matched nothing in the window.
	ErrNoConversations = errors.New("no conversations found")
	// ErrNotFound means a referenced group does not exist.
	ErrNotFound = errors.New("conversation not found")
)

// MessageSource is the subset of the Messages store the aggregator reads.
type MessageSource interface {
	FindHandles(ctx context.Context, term string) ([]imessage.Handle, error)
	HandleMessages(ctx context.Context, handleIDs []int64, f imessage.Filter) ([]imessage.Message, error)
	FindGroups(ctx context.Context, query string, limit int) ([]imessage.Group, error)
	GroupByID(ctx context.Context, id int64) (imessage.Group, bool, error)
	GroupMessages(ctx context.Context, groupID int64, f imessage.Filter) ([]imessage.Message, error)
}

// NameResolver turns a raw identifier into a display name. It never fails.
type NameResolver interface {
	ResolveName(ctx context.Context, identifier string) string
}

// PersonSearcher finds contacts by name.
type PersonSearcher interface {
	SearchByName(ctx context.Context, name string) []contacts.Person
}

// Kind distinguishes individual and group conversations.
type Kind string

const (
	KindIndividual Kind = "individual"
	KindGroup      Kind = "group"
)

// CanonicalContact is every handle sharing one raw identifier.
type CanonicalContact struct {
	Key     string
	Handles []imessage.Handle
}

// HandleIDs returns the handle row ids in ascending order.
func (c CanonicalContact) HandleIDs() []int64 {
	ids := make([]int64, len(c.Handles))
	for i, h := range c.Handles {
		ids[i] = h.ID
	}
	return ids
}

// RenderedMessage is a message ready for display.
type RenderedMessage struct {
	ID        int64
	Native    int64
	Time      time.Time
	Readable  string
	Text      string
	Sender    string
	FromSelf  bool
	Transport imessage.Transport
	// Decoded is set when Text came from the encoded body.
	Decoded bool
}

// Result is one conversation. Messages are newest first.
type Result struct {
	Kind        Kind
	Name        string
	Identifier  string
	Handles     []imessage.Handle
	HandleCount int
	GroupID     int64
	Messages    []RenderedMessage
}

// Newest returns the timestamp of the most recent message, or zero.
func (r Result) Newest() int64 {
	if len(r.Messages) == 0 {
		return 0
	}
	return r.Messages[0].Native
}

// Options control a fetch.
type Options struct {
	IncludeGroups bool
	IncludeSent   bool
	Limit         int
	DaysBack      int
}

func (o Options) filter(now time.Time) imessage.Filter {
	return imessage.Filter{
		Since:       timestamp.ThresholdAt(now, o.DaysBack),
		Limit:       o.Limit,
		IncludeSent: o.IncludeSent,
	}
}

// Aggregator builds conversations from a Messages store.
type Aggregator struct {
	Messages MessageSource
	Names    NameResolver
	// People is optional; without it only the query itself is searched.
	People  PersonSearcher
	Decoder decode.Decoder
	// Now defaults to time.Now.
	Now func() time.Time
	// GroupCandidates defaults to DefaultGroupCandidates.
	GroupCandidates int
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// SearchTerms returns the query plus, when the query looks like a name, the
// phones and emails of every contact whose name matches it, deduplicated.
func (a *Aggregator) SearchTerms(ctx context.Context, query string) []string {
	n := identify.Normalize(query)
	terms := []string{n.Exact}
	if a.People != nil && n.LooksLikeName {
		for _, p := range a.People.SearchByName(ctx, n.Exact) {
			terms = append(terms, p.Phones...)
			terms = append(terms, p.Emails...)
		}
	}
	return identify.DedupeStrings(terms, strings.TrimSpace)
}

// Contacts resolves a query to canonical contacts, one per distinct raw
// identifier, in the order the identifiers were first matched. Handles are
// deduplicated by row id, so any number of overlapping terms yields the same
// result.
func (a *Aggregator) Contacts(ctx context.Context, query string) ([]CanonicalContact, error) {
	var order []string
	byKey := make(map[string]map[int64]imessage.Handle)

	for _, term := range a.SearchTerms(ctx, query) {
		handles, err := a.Messages.FindHandles(ctx, term)
		if err != nil {
			return nil, err
		}
		for _, h := range handles {
			set, ok := byKey[h.Identifier]
			if !ok {
				set = make(map[int64]imessage.Handle)
				byKey[h.Identifier] = set
				order = append(order, h.Identifier)
			}
			set[h.ID] = h
		}
	}

	out := make([]CanonicalContact, 0, len(order))
	for _, key := range order {
		set := byKey[key]
		handles := make([]imessage.Handle, 0, len(set))
		for _, h := range set {
			handles = append(handles, h)
		}
		sort.Slice(handles, func(i, j int) bool { return handles[i].ID < handles[j].ID })
		out = append(out, CanonicalContact{Key: key, Handles: handles})
	}
	return out, nil
}

// Aggregate returns one result per canonical contact with messages in the
// window, followed by matching groups when IncludeGroups is set. Individuals
// are ordered by their newest message. ErrNoConversations is returned when
// nothing matched.
func (a *Aggregator) Aggregate(ctx context.Context, query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoConversations
	}
	f := opts.filter(a.now())

	found, err := a.Contacts(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := a.individuals(ctx, found, f)
	if err != nil {
		return nil, err
	}

	if opts.IncludeGroups {
		limit := a.GroupCandidates
		if limit <= 0 {
			limit = DefaultGroupCandidates
		}
		groups, err := a.Messages.FindGroups(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			r, err := a.group(ctx, g, f)
			if err != nil {
				return nil, err
			}
			if len(r.Messages) > 0 {
				results = append(results, r)
			}
		}
	}

	if len(results) == 0 {
		return nil, ErrNoConversations
	}
	return results, nil
}

// Read returns a single conversation for a parsed target. For individuals
// matching several identifiers, the most recently active one wins.
func (a *Aggregator) Read(ctx context.Context, target identify.Target, opts Options) (Result, error) {
	if target.Kind == identify.Group {
		return a.ReadGroup(ctx, target.GroupID, opts)
	}
	found, err := a.Contacts(ctx, target.Identifier)
	if err != nil {
		return Result{}, err
	}
	return a.ReadContacts(ctx, found, opts)
}

// ReadContacts reads already resolved contacts and returns the most recently
// active one. Groups are never included.
func (a *Aggregator) ReadContacts(ctx context.Context, found []CanonicalContact, opts Options) (Result, error) {
	results, err := a.individuals(ctx, found, opts.filter(a.now()))
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return Result{}, ErrNoConversations
	}
	return results[0], nil
}

// individuals fetches each contact's messages, drops contacts with none, and
// orders the rest by their newest message.
func (a *Aggregator) individuals(ctx context.Context, found []CanonicalContact, f imessage.Filter) ([]Result, error) {
	var results []Result
	for _, c := range found {
		r, err := a.individual(ctx, c, f)
		if err != nil {
			return nil, err
		}
		if len(r.Messages) > 0 {
			results = append(results, r)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Newest() > results[j].Newest()
	})
	return results, nil
}

// ReadGroup returns a group's messages. ErrNotFound is returned when the group
// does not exist, ErrNoConversations when it has no messages in the window.
func (a *Aggregator) ReadGroup(ctx context.Context, groupID int64, opts Options) (Result, error) {
	g, ok, err := a.Messages.GroupByID(ctx, groupID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
	}
	r, err := a.group(ctx, g, opts.filter(a.now()))
	if err != nil {
		return Result{}, err
	}
	if len(r.Messages) == 0 {
		return Result{}, ErrNoConversations
	}
	return r, nil
}

func (a *Aggregator) individual(ctx context.Context, c CanonicalContact, f imessage.Filter) (Result, error) {
	msgs, err := a.Messages.HandleMessages(ctx, c.HandleIDs(), f)
	if err != nil {
		return Result{}, fmt.Errorf("messages for %s: %w", c.Key, err)
	}
	r := Result{
		Kind:        KindIndividual,
		Identifier:  c.Key,
		Handles:     c.Handles,
		HandleCount: len(c.Handles),
	}
	if len(msgs) == 0 {
		return r, nil
	}

	r.Name = a.Names.ResolveName(ctx, c.Key)
	r.Messages = make([]RenderedMessage, 0, len(msgs))
	for _, m := range msgs {
		sender := r.Name
		if m.FromMe {
			sender = SelfLabel
		}
		r.Messages = append(r.Messages, a.render(m, sender))
	}
	return r, nil
}

func (a *Aggregator) group(ctx context.Context, g imessage.Group, f imessage.Filter) (Result, error) {
	msgs, err := a.Messages.GroupMessages(ctx, g.ID, f)
	if err != nil {
		return Result{}, fmt.Errorf("messages for group %d: %w", g.ID, err)
	}
	r := Result{
		Kind:       KindGroup,
		Name:       GroupName(g),
		Identifier: identify.GroupPrefix + fmt.Sprint(g.ID),
		GroupID:    g.ID,
	}
	r.Messages = make([]RenderedMessage, 0, len(msgs))
	for _, m := range msgs {
		r.Messages = append(r.Messages, a.render(m, a.senderLabel(ctx, m)))
	}
	return r, nil
}

// GroupName is the display name of a group, falling back to its identifier.
func GroupName(g imessage.Group) string {
	if name := strings.TrimSpace(g.DisplayName); name != "" {
		return name
	}
	if g.Identifier != "" {
		return g.Identifier
	}
	return fmt.Sprintf("Group %d", g.ID)
}

func (a *Aggregator) senderLabel(ctx context.Context, m imessage.Message) string {
	switch {
	case m.FromMe:
		return SelfLabel
	case m.Sender == "":
		return "Unknown"
	default:
		return a.Names.ResolveName(ctx, m.Sender)
	}
}

func (a *Aggregator) render(m imessage.Message, sender string) RenderedMessage {
	rm := RenderedMessage{
		ID:        m.ID,
		Native:    m.Date,
		Time:      timestamp.ToTime(m.Date),
		Readable:  timestamp.ToReadable(m.Date),
		Sender:    sender,
		FromSelf:  m.FromMe,
		Transport: m.Transport,
	}
	if strings.TrimSpace(m.Text) != "" {
		rm.Text = m.Text
		return rm
	}
	if text, ok := decode.Text(a.Decoder, "", m.Body); ok {
		rm.Text = text
		rm.Decoded = true
		return rm
	}
	rm.Text = NoTextContent
	return rm
}
