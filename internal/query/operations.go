package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Napageneral/recall/internal/contacts"
	"github.com/Napageneral/recall/internal/conversation"
	"github.com/Napageneral/recall/internal/identify"
	"github.com/Napageneral/recall/internal/imessage"
	"github.com/Napageneral/recall/internal/render"
	"github.com/Napageneral/recall/internal/sentiment"
	"github.com/Napageneral/recall/internal/timeline"
	"github.com/Napageneral/recall/internal/timestamp"
)

// SearchParams are the inputs of search_and_read.
type SearchParams struct {
	Query         string
	IncludeGroups bool
	Limit         int
	DaysBack      int
	Format        render.Format
}

// SearchAndRead finds every conversation matching a phone, email, name or
// group name and renders their recent messages.
func (s *Service) SearchAndRead(ctx context.Context, p SearchParams) (string, error) {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return s.fail("search_and_read", fmt.Errorf("%w: query is required", ErrInvalidInput))
	}
	days := ClampDaysBack(p.DaysBack)

	ss, err := s.open(ctx)
	if err != nil {
		return s.fail("search_and_read", err)
	}
	defer ss.Close()

	results, err := ss.agg.Aggregate(ctx, query, conversation.Options{
		IncludeGroups: p.IncludeGroups,
		IncludeSent:   true,
		Limit:         s.ClampLimit(p.Limit),
		DaysBack:      days,
	})
	if isNotFound(err) {
		return notFound(render.NotFound(query, days), err)
	}
	if err != nil {
		return s.fail("search_and_read", err)
	}
	return render.Render(results, p.Format, query), nil
}

// HandleMatch is one raw handle in a search_contacts answer.
type HandleMatch struct {
	ID         int64              `json:"id"`
	Identifier string             `json:"identifier"`
	Transport  imessage.Transport `json:"transport"`
	Region     string             `json:"region,omitempty"`
	Name       string             `json:"name"`
}

// ContactsReport is the search_contacts answer.
type ContactsReport struct {
	Query   string            `json:"query"`
	Count   int               `json:"count"`
	Handles []HandleMatch     `json:"handles"`
	People  []contacts.Person `json:"people,omitempty"`
}

// SearchContacts lists the raw handles a query resolves to, with the
// AddressBook people whose name matched.
func (s *Service) SearchContacts(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.fail("search_contacts", fmt.Errorf("%w: query is required", ErrInvalidInput))
	}

	ss, err := s.open(ctx)
	if err != nil {
		return s.fail("search_contacts", err)
	}
	defer ss.Close()

	found, err := ss.agg.Contacts(ctx, query)
	if err != nil {
		return s.fail("search_contacts", err)
	}
	report := ContactsReport{Query: query, Handles: []HandleMatch{}}
	for _, c := range found {
		name := s.resolver.ResolveName(ctx, c.Key)
		for _, h := range c.Handles {
			report.Handles = append(report.Handles, HandleMatch{
				ID:         h.ID,
				Identifier: h.Identifier,
				Transport:  h.Transport,
				Region:     h.Region,
				Name:       name,
			})
		}
	}
	report.Count = len(report.Handles)
	if identify.Normalize(query).LooksLikeName {
		report.People = s.resolver.SearchByName(ctx, query)
	}

	if report.Count == 0 && len(report.People) == 0 {
		return notFound(fmt.Sprintf("No contacts found for \"%s\".", query), nil)
	}
	return render.JSON(report), nil
}

// ReadParams are the inputs of read_conversation.
type ReadParams struct {
	Identifier  string
	Limit       int
	DaysBack    int
	IncludeSent bool
	Format      render.Format
}

// ReadConversation renders one conversation: a group by "group:<id>", or the
// most recently active contact matching a phone, email or name.
func (s *Service) ReadConversation(ctx context.Context, p ReadParams) (string, error) {
	identifier := strings.TrimSpace(p.Identifier)
	days := ClampDaysBack(p.DaysBack)
	target, err := parseTarget(identifier)
	if errors.Is(err, ErrInvalidInput) {
		return s.fail("read_conversation", err)
	}
	if err != nil {
		return notFound(render.NotFound(identifier, days), err)
	}

	ss, err := s.open(ctx)
	if err != nil {
		return s.fail("read_conversation", err)
	}
	defer ss.Close()

	r, err := ss.agg.Read(ctx, target, conversation.Options{
		IncludeSent: p.IncludeSent,
		Limit:       s.ClampLimit(p.Limit),
		DaysBack:    days,
	})
	if isNotFound(err) {
		return notFound(render.NotFound(identifier, days), err)
	}
	if err != nil {
		return s.fail("read_conversation", err)
	}
	return render.Render([]conversation.Result{r}, p.Format, identifier), nil
}

// StatsParams are the inputs of get_conversation_stats.
type StatsParams struct {
	Identifier string
	DaysBack   int
	// Daily adds a per-day breakdown.
	Daily bool
}

// ConversationStats counts messages without reading their bodies. A contact
// with no messages in the window yields zero counts, not an error.
func (s *Service) ConversationStats(ctx context.Context, p StatsParams) (string, error) {
	identifier := strings.TrimSpace(p.Identifier)
	days := ClampDaysBack(p.DaysBack)
	target, err := parseTarget(identifier)
	if errors.Is(err, ErrInvalidInput) {
		return s.fail("get_conversation_stats", err)
	}
	if err != nil {
		return notFound(render.NotFound(identifier, days), err)
	}

	ss, err := s.open(ctx)
	if err != nil {
		return s.fail("get_conversation_stats", err)
	}
	defer ss.Close()

	now := s.now()
	since := timestamp.ThresholdAt(now, days)
	opts := timeline.Options{Now: now, Daily: p.Daily}

	if target.Kind == identify.Group {
		g, ok, err := ss.store.GroupByID(ctx, target.GroupID)
		if err != nil {
			return s.fail("get_conversation_stats", err)
		}
		if !ok {
			return notFound(render.NotFound(identifier, days), conversation.ErrNotFound)
		}
		activity, err := ss.store.GroupActivity(ctx, g.ID, since)
		if err != nil {
			return s.fail("get_conversation_stats", err)
		}
		members, err := ss.store.GroupParticipants(ctx, g.ID)
		if err != nil {
			return s.fail("get_conversation_stats", err)
		}
		opts.Label = func(id string) string { return s.resolver.ResolveName(ctx, id) }
		stats := timeline.ForGroup(conversation.GroupName(g), target.String(), days, activity, opts)
		stats.Handles = len(members)
		return render.JSON(stats), nil
	}

	found, err := ss.agg.Contacts(ctx, target.Identifier)
	if err != nil {
		return s.fail("get_conversation_stats", err)
	}
	if len(found) == 0 {
		return notFound(render.NotFound(identifier, days), nil)
	}

	// Several identifiers may match; report the most recently active one.
	var best conversation.CanonicalContact
	var bestActivity []imessage.Activity
	for i, c := range found {
		activity, err := ss.store.HandleActivity(ctx, c.HandleIDs(), since)
		if err != nil {
			return s.fail("get_conversation_stats", err)
		}
		if i == 0 || newest(activity) > newest(bestActivity) {
			best, bestActivity = c, activity
		}
	}
	stats := timeline.ForIndividual(s.resolver.ResolveName(ctx, best.Key), best.Key, len(best.Handles), days, bestActivity, opts)
	return render.JSON(stats), nil
}

func newest(activity []imessage.Activity) int64 {
	var n int64
	for _, a := range activity {
		if a.Date > n {
			n = a.Date
		}
	}
	return n
}

// SentimentParams are the inputs of analyze_message_sentiment.
type SentimentParams struct {
	Identifier  string
	Keywords    []string
	DaysBack    int
	GroupByDate bool
}

// AnalyzeSentiment scans incoming messages of a conversation for keywords.
func (s *Service) AnalyzeSentiment(ctx context.Context, p SentimentParams) (string, error) {
	identifier := strings.TrimSpace(p.Identifier)
	days := ClampDaysBack(p.DaysBack)
	target, err := parseTarget(identifier)
	if errors.Is(err, ErrInvalidInput) {
		return s.fail("analyze_message_sentiment", err)
	}
	if err != nil {
		return notFound(render.NotFound(identifier, days), err)
	}

	ss, err := s.open(ctx)
	if err != nil {
		return s.fail("analyze_message_sentiment", err)
	}
	defer ss.Close()

	opts := conversation.Options{
		IncludeSent: false,
		Limit:       s.cfg.Defaults.ScanLimit,
		DaysBack:    days,
	}
	keywords := sentiment.Keywords(p.Keywords, s.cfg.Keywords)

	var name, key string
	var messages []conversation.RenderedMessage
	if target.Kind == identify.Group {
		r, err := ss.agg.ReadGroup(ctx, target.GroupID, opts)
		switch {
		case errors.Is(err, conversation.ErrNotFound):
			return notFound(render.NotFound(identifier, days), err)
		case errors.Is(err, conversation.ErrNoConversations):
			g, _, gerr := ss.store.GroupByID(ctx, target.GroupID)
			if gerr != nil {
				return s.fail("analyze_message_sentiment", gerr)
			}
			name, key = conversation.GroupName(g), target.String()
		case err != nil:
			return s.fail("analyze_message_sentiment", err)
		default:
			name, key, messages = r.Name, r.Identifier, r.Messages
		}
	} else {
		found, err := ss.agg.Contacts(ctx, target.Identifier)
		if err != nil {
			return s.fail("analyze_message_sentiment", err)
		}
		if len(found) == 0 {
			return notFound(render.NotFound(identifier, days), nil)
		}
		r, err := ss.agg.ReadContacts(ctx, found, opts)
		switch {
		case errors.Is(err, conversation.ErrNoConversations):
			key = found[0].Key
			name = s.resolver.ResolveName(ctx, key)
		case err != nil:
			return s.fail("analyze_message_sentiment", err)
		default:
			name, key, messages = r.Name, r.Identifier, r.Messages
		}
	}

	report := sentiment.Scan(messages, keywords, p.GroupByDate)
	report.Identifier = key
	report.Name = name
	report.DaysBack = days
	return render.JSON(report), nil
}
