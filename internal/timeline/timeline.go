// Package timeline summarizes message activity for a conversation: counts by
// direction, transport, participant and day. It never reads message bodies.
package timeline

import (
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Napageneral/recall/internal/imessage"
	"github.com/Napageneral/recall/internal/timestamp"
)

const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// DayStats holds aggregated statistics for a single day
type DayStats struct {
	Date        string         `json:"date"` // YYYY-MM-DD format
	Total       int            `json:"total"`
	BySender    map[string]int `json:"by_sender,omitempty"`
	ByTransport map[string]int `json:"by_transport"`
	ByDirection map[string]int `json:"by_direction"`
}

// ParticipantCount is one sender's share of a group.
type ParticipantCount struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier,omitempty"`
	Count      int    `json:"count"`
}

// Stats is the summary returned by get_conversation_stats.
type Stats struct {
	Type         string             `json:"type"`
	Name         string             `json:"name"`
	Identifier   string             `json:"identifier"`
	DaysBack     int                `json:"days_back"`
	Handles      int                `json:"handles,omitempty"`
	Total        int                `json:"total"`
	Sent         int                `json:"sent"`
	Received     int                `json:"received"`
	First        string             `json:"first_message,omitempty"`
	Last         string             `json:"last_message,omitempty"`
	LastAgo      string             `json:"last_message_ago,omitempty"`
	ByTransport  map[string]int     `json:"by_transport"`
	ActiveDays   int                `json:"active_days"`
	BusiestDay   *DayStats          `json:"busiest_day,omitempty"`
	Participants []ParticipantCount `json:"participants,omitempty"`
	Days         []DayStats         `json:"days,omitempty"`
}

// Options control a summary.
type Options struct {
	// Now anchors last_message_ago.
	Now time.Time
	// Daily keeps the per-day breakdown in Stats.Days.
	Daily bool
	// Label names the sender of a received message. Nil leaves senders
	// unattributed and skips participant counts.
	Label func(identifier string) string
}

// ForIndividual summarizes the activity of one canonical contact.
func ForIndividual(name, identifier string, handles, daysBack int, activity []imessage.Activity, opts Options) Stats {
	s := summarize(activity, opts)
	s.Type = "individual"
	s.Name = name
	s.Identifier = identifier
	s.Handles = handles
	s.DaysBack = daysBack
	s.Participants = nil
	return s
}

// ForGroup summarizes a group chat, including per-participant counts.
func ForGroup(name, identifier string, daysBack int, activity []imessage.Activity, opts Options) Stats {
	s := summarize(activity, opts)
	s.Type = "group"
	s.Name = name
	s.Identifier = identifier
	s.DaysBack = daysBack
	return s
}

func summarize(activity []imessage.Activity, opts Options) Stats {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	s := Stats{ByTransport: make(map[string]int)}

	dayMap := make(map[string]*DayStats)
	participants := make(map[string]*ParticipantCount)
	var first, last int64

	for _, a := range activity {
		s.Total++
		direction := DirectionReceived
		if a.FromMe {
			direction = DirectionSent
			s.Sent++
		} else {
			s.Received++
		}
		s.ByTransport[string(a.Transport)]++

		if first == 0 || a.Date < first {
			first = a.Date
		}
		if a.Date > last {
			last = a.Date
		}

		sender := ""
		if !a.FromMe && opts.Label != nil {
			sender = "Unknown"
			if a.Sender != "" {
				sender = opts.Label(a.Sender)
			}
			p, ok := participants[a.Sender]
			if !ok {
				p = &ParticipantCount{Name: sender, Identifier: a.Sender}
				participants[a.Sender] = p
			}
			p.Count++
		}

		day := timestamp.Day(a.Date)
		stats, exists := dayMap[day]
		if !exists {
			stats = &DayStats{
				Date:        day,
				BySender:    make(map[string]int),
				ByTransport: make(map[string]int),
				ByDirection: make(map[string]int),
			}
			dayMap[day] = stats
		}
		stats.Total++
		stats.ByTransport[string(a.Transport)]++
		stats.ByDirection[direction]++
		if sender != "" {
			stats.BySender[sender]++
		}
	}

	if s.Total == 0 {
		return s
	}
	s.First = timestamp.ToReadable(first)
	s.Last = timestamp.ToReadable(last)
	s.LastAgo = humanize.RelTime(timestamp.ToTime(last), opts.Now, "ago", "from now")

	days := make([]DayStats, 0, len(dayMap))
	for _, d := range dayMap {
		if len(d.BySender) == 0 {
			d.BySender = nil
		}
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date > days[j].Date })
	s.ActiveDays = len(days)

	busiest := days[0]
	for _, d := range days[1:] {
		if d.Total > busiest.Total {
			busiest = d
		}
	}
	s.BusiestDay = &busiest
	if opts.Daily {
		s.Days = days
	}

	for _, p := range participants {
		s.Participants = append(s.Participants, *p)
	}
	sort.Slice(s.Participants, func(i, j int) bool {
		if s.Participants[i].Count != s.Participants[j].Count {
			return s.Participants[i].Count > s.Participants[j].Count
		}
		return s.Participants[i].Name < s.Participants[j].Name
	})
	return s
}
