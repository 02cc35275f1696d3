// Package identify turns free-form identifiers (names, phone numbers in any
// punctuation, emails, group references) into search keys.
package identify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Normalized holds the search keys derived from one identifier.
type Normalized struct {
	Exact         string
	DigitsOnly    string
	LooksLikeName bool
}

// Normalize derives search keys from input. It is pure and does no I/O.
func Normalize(input string) Normalized {
	exact := strings.TrimSpace(input)
	return Normalized{
		Exact:         exact,
		DigitsOnly:    Digits(exact),
		LooksLikeName: exact != "" && !strings.ContainsAny(exact, "@+-()0123456789"),
	}
}

// Digits strips every non-digit character.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SearchPatterns returns the substrings a raw handle identifier is matched
// against: the term itself, its digits, and its digits with a leading "+".
func SearchPatterns(term string) []string {
	n := Normalize(term)
	candidates := []string{n.Exact}
	if n.DigitsOnly != "" {
		candidates = append(candidates, n.DigitsOnly, "+"+n.DigitsOnly)
	}
	return DedupeStrings(candidates, func(s string) string { return s })
}

// PhoneVariants returns the forms under which a phone number may be stored in
// the contacts store, including the ten-digit national number for +1 numbers.
func PhoneVariants(identifier string) []string {
	n := Normalize(identifier)
	out := []string{n.Exact}
	if n.DigitsOnly != "" {
		out = append(out, n.DigitsOnly, "+"+n.DigitsOnly)
		if len(n.DigitsOnly) == 11 && n.DigitsOnly[0] == '1' {
			out = append(out, n.DigitsOnly[1:])
		}
	}
	return DedupeStrings(out, func(s string) string { return s })
}

// FormatFallback renders an identifier for display when no contact name exists.
func FormatFallback(identifier string) string {
	if strings.Contains(identifier, "@") {
		return strings.SplitN(identifier, "@", 2)[0]
	}
	d := Digits(identifier)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) == 10 && LooksLikePhoneOrEmail(identifier) {
		return fmt.Sprintf("(%s) %s-%s", d[:3], d[3:6], d[6:])
	}
	return identifier
}

// LooksLikePhoneOrEmail checks if a string looks like a phone number or email
func LooksLikePhoneOrEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if strings.Contains(s, "@") {
		return true
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case strings.ContainsRune("+-() .", r):
		default:
			return false
		}
	}
	return len(Digits(s)) >= 7
}

// DedupeStrings normalizes each value and drops empties and repeats, keeping order.
func DedupeStrings(s []string, normalize func(string) string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(s))
	for _, v := range s {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// TargetKind distinguishes individual identifiers from group references.
type TargetKind int

const (
	Individual TargetKind = iota
	Group
)

func (k TargetKind) String() string {
	if k == Group {
		return "group"
	}
	return "individual"
}

// GroupPrefix marks a group reference, e.g. "group:42".
const GroupPrefix = "group:"

// ErrMalformedIdentifier is returned for a group reference whose id is not an integer.
var ErrMalformedIdentifier = errors.New("malformed identifier")

// Target is an identifier parsed once at the request boundary.
type Target struct {
	Kind       TargetKind
	Identifier string
	GroupID    int64
}

func (t Target) String() string {
	if t.Kind == Group {
		return GroupPrefix + strconv.FormatInt(t.GroupID, 10)
	}
	return t.Identifier
}

// ParseTarget splits "group:<id>" references from individual identifiers.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if len(s) >= len(GroupPrefix) && strings.EqualFold(s[:len(GroupPrefix)], GroupPrefix) {
		raw := strings.TrimSpace(s[len(GroupPrefix):])
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Target{Kind: Group, Identifier: s}, fmt.Errorf("%w: group id %q is not a positive integer", ErrMalformedIdentifier, raw)
		}
		return Target{Kind: Group, Identifier: s, GroupID: id}, nil
	}
	if s == "" {
		return Target{}, fmt.Errorf("%w: empty identifier", ErrMalformedIdentifier)
	}
	return Target{Kind: Individual, Identifier: s}, nil
}
