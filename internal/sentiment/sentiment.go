// Package sentiment scans incoming messages for hostile or negative keywords.
package sentiment

import (
	"sort"
	"strings"

	"github.com/Napageneral/recall/internal/conversation"
	"github.com/Napageneral/recall/internal/identify"
	"github.com/Napageneral/recall/internal/timestamp"
)

// DefaultKeywords is used when the caller supplies none.
var DefaultKeywords = []string{
	"hate",
	"angry",
	"mad",
	"furious",
	"annoyed",
	"upset",
	"disappointed",
	"stupid",
	"idiot",
	"shut up",
	"leave me alone",
	"never again",
	"done with you",
	"sick of",
	"fed up",
	"wtf",
	"screw you",
	"whatever",
}

// SampleSize is the number of message texts kept per day.
const SampleSize = 3

// Keywords trims, lowercases and dedupes kws, falling back to defaults when
// nothing usable remains.
func Keywords(kws []string, defaults []string) []string {
	out := identify.DedupeStrings(kws, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
	if len(out) > 0 {
		return out
	}
	if len(defaults) == 0 {
		defaults = DefaultKeywords
	}
	return identify.DedupeStrings(defaults, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}

// Match returns the keywords found in text, case-insensitively.
// Keywords are expected in lower case.
func Match(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// DayCount is one calendar day of matches.
type DayCount struct {
	Date    string   `json:"date"`
	Count   int      `json:"count"`
	Samples []string `json:"samples"`
}

// Hit is one matching message.
type Hit struct {
	Time     string   `json:"time"`
	From     string   `json:"from"`
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
}

// Report is the outcome of a scan.
type Report struct {
	Identifier string     `json:"identifier"`
	Name       string     `json:"name"`
	DaysBack   int        `json:"days_back"`
	Keywords   []string   `json:"keywords"`
	Scanned    int        `json:"scanned"`
	Matched    int        `json:"matched"`
	ByDate     []DayCount `json:"by_date,omitempty"`
	Matches    []Hit      `json:"matches,omitempty"`
}

// Scan checks every incoming message with plain text against keywords.
// Messages from the owner and messages without text are skipped. With
// groupByDate, matches are counted per day (newest day first); otherwise every
// match is listed in message order.
func Scan(messages []conversation.RenderedMessage, keywords []string, groupByDate bool) Report {
	r := Report{Keywords: keywords}
	byDay := make(map[string]*DayCount)

	for _, m := range messages {
		if m.FromSelf || m.Decoded || strings.TrimSpace(m.Text) == "" || m.Text == conversation.NoTextContent {
			continue
		}
		r.Scanned++
		hits := Match(m.Text, keywords)
		if len(hits) == 0 {
			continue
		}
		r.Matched++

		if !groupByDate {
			r.Matches = append(r.Matches, Hit{Time: m.Readable, From: m.Sender, Text: m.Text, Keywords: hits})
			continue
		}
		day := timestamp.Day(m.Native)
		dc, ok := byDay[day]
		if !ok {
			dc = &DayCount{Date: day, Samples: []string{}}
			byDay[day] = dc
		}
		dc.Count++
		if len(dc.Samples) < SampleSize {
			dc.Samples = append(dc.Samples, m.Text)
		}
	}

	if groupByDate {
		r.ByDate = make([]DayCount, 0, len(byDay))
		for _, dc := range byDay {
			r.ByDate = append(r.ByDate, *dc)
		}
		sort.Slice(r.ByDate, func(i, j int) bool { return r.ByDate[i].Date > r.ByDate[j].Date })
	}
	return r
}
