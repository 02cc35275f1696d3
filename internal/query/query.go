// Package query implements the read-only operations exposed as tools. Each
// call opens the Messages store, runs, and closes it again; the only state
// kept between calls is the contact name cache.
//
// Every method returns text that can be shown to the caller as-is, even when
// it also returns an error. Errors classify the outcome: ErrNotFound for
// searches that matched nothing, db.ErrStoreUnavailable when chat.db cannot be
// opened, ErrInvalidInput for missing arguments.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Napageneral/recall/internal/config"
	"github.com/Napageneral/recall/internal/contacts"
	"github.com/Napageneral/recall/internal/conversation"
	"github.com/Napageneral/recall/internal/db"
	"github.com/Napageneral/recall/internal/decode"
	"github.com/Napageneral/recall/internal/identify"
	"github.com/Napageneral/recall/internal/imessage"
)

const (
	MinLimit    = 1
	MaxLimit    = 500
	MaxDaysBack = 3650
)

var (
	// ErrNotFound marks a search or reference that matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks a missing or unusable argument.
	ErrInvalidInput = errors.New("invalid input")
)

// Service runs the query operations.
type Service struct {
	cfg      *config.Config
	logger   zerolog.Logger
	resolver *contacts.Resolver
	decoder  decode.Decoder
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNameCache shares a name cache across services.
func WithNameCache(c *contacts.NameCache) Option {
	return func(s *Service) {
		s.resolver = contacts.NewResolver(s.cfg.Stores.ContactsDir, s.cfg.Stores.Driver, c, s.logger)
	}
}

// WithDecoder replaces the default body decoder.
func WithDecoder(d decode.Decoder) Option {
	return func(s *Service) { s.decoder = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a Service from configuration.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{
		cfg:     cfg,
		logger:  logger.With().Str("component", "query").Logger(),
		decoder: decode.Default(),
		now:     time.Now,
	}
	s.resolver = contacts.NewResolver(cfg.Stores.ContactsDir, cfg.Stores.Driver, contacts.NewNameCache(), s.logger)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Contacts returns the contact resolver (and its cache).
func (s *Service) Contacts() *contacts.Resolver { return s.resolver }

// ClampLimit bounds a message limit; non-positive values take the default.
func (s *Service) ClampLimit(limit int) int {
	if limit <= 0 {
		limit = s.cfg.Defaults.Limit
	}
	return clamp(limit, MinLimit, MaxLimit)
}

// ClampDaysBack bounds a lookback window.
func ClampDaysBack(days int) int {
	return clamp(days, 0, MaxDaysBack)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Text renders an error as a single line.
func Text(err error) string {
	if err == nil {
		return ""
	}
	var line string
	switch {
	case errors.Is(err, db.ErrStoreUnavailable):
		line = fmt.Sprintf("Error: cannot read the Messages database (%v). Grant Full Disk Access to the process running recall.", err)
	default:
		line = "Error: " + err.Error()
	}
	return strings.Join(strings.Fields(line), " ")
}

func (s *Service) fail(op string, err error) (string, error) {
	s.logger.Warn().Err(err).Str("op", op).Msg("query failed")
	return Text(err), err
}

func notFound(text string, cause error) (string, error) {
	if cause == nil {
		return text, ErrNotFound
	}
	return text, fmt.Errorf("%w: %w", ErrNotFound, cause)
}

// session is one open Messages store and the aggregator over it.
type session struct {
	store *imessage.Store
	agg   *conversation.Aggregator
}

func (s *Service) open(ctx context.Context) (*session, error) {
	store, err := imessage.Open(ctx, s.cfg.Stores.Driver, s.cfg.Stores.MessagesDB)
	if err != nil {
		return nil, err
	}
	return &session{
		store: store,
		agg: &conversation.Aggregator{
			Messages:        store,
			Names:           s.resolver,
			People:          s.resolver,
			Decoder:         s.decoder,
			Now:             s.now,
			GroupCandidates: s.cfg.Defaults.GroupCandidate,
		},
	}, nil
}

func (ss *session) Close() error { return ss.store.Close() }

func parseTarget(identifier string) (identify.Target, error) {
	if strings.TrimSpace(identifier) == "" {
		return identify.Target{}, fmt.Errorf("%w: identifier is required", ErrInvalidInput)
	}
	return identify.ParseTarget(identifier)
}

// isNotFound reports whether err from the aggregator means "nothing matched".
func isNotFound(err error) bool {
	return errors.Is(err, conversation.ErrNoConversations) ||
		errors.Is(err, conversation.ErrNotFound) ||
		errors.Is(err, identify.ErrMalformedIdentifier)
}
