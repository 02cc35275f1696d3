package contacts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Napageneral/recall/internal/db"
	"github.com/Napageneral/recall/internal/identify"
)

// maxSearchResults caps records returned per source.
const maxSearchResults = 20

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchByName finds AddressBook records whose full name, nickname or
// organization contains name (case-insensitive). Unreadable sources are skipped.
func (r *Resolver) SearchByName(ctx context.Context, name string) []Person {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	var out []Person
	seen := make(map[string]bool)
	for _, src := range DiscoverSources(r.dir) {
		people, err := r.searchSource(ctx, src, name)
		if err != nil {
			r.logger.Debug().Err(err).Str("source", src).Msg("contacts search failed")
			continue
		}
		for _, p := range people {
			key := p.Name + "\x00" + strings.Join(p.Phones, ",") + "\x00" + strings.Join(p.Emails, ",")
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	return out
}

func (r *Resolver) searchSource(ctx context.Context, src, name string) ([]Person, error) {
	conn, err := db.OpenReadOnly(ctx, r.driver, src)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	pattern := "%" + likeEscaper.Replace(strings.ToLower(name)) + "%"
	rows, err := conn.QueryContext(ctx, `
		SELECT r.Z_PK, COALESCE(r.ZFIRSTNAME, ''), COALESCE(r.ZLASTNAME, ''), COALESCE(r.ZORGANIZATION, '')
		FROM ZABCDRECORD r
		WHERE LOWER(TRIM(COALESCE(r.ZFIRSTNAME, '') || ' ' || COALESCE(r.ZLASTNAME, ''))) LIKE ? ESCAPE '\'
		   OR LOWER(COALESCE(r.ZNICKNAME, '')) LIKE ? ESCAPE '\'
		   OR LOWER(COALESCE(r.ZORGANIZATION, '')) LIKE ? ESCAPE '\'
		ORDER BY r.Z_PK
		LIMIT ?
	`, pattern, pattern, pattern, maxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	var pks []int64
	byPK := make(map[int64]*Person)
	for rows.Next() {
		var pk int64
		var first, last, org string
		if err := rows.Scan(&pk, &first, &last, &org); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		pks = append(pks, pk)
		byPK[pk] = &Person{Name: displayName(first, last, org)}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pks) == 0 {
		return nil, nil
	}

	if err := collect(ctx, conn, `SELECT ZOWNER, ZFULLNUMBER FROM ZABCDPHONENUMBER WHERE ZFULLNUMBER IS NOT NULL AND ZOWNER IN `, pks, func(p *Person, v string) {
		p.Phones = append(p.Phones, v)
	}, byPK); err != nil {
		return nil, err
	}
	if err := collect(ctx, conn, `SELECT ZOWNER, ZADDRESS FROM ZABCDEMAILADDRESS WHERE ZADDRESS IS NOT NULL AND ZOWNER IN `, pks, func(p *Person, v string) {
		p.Emails = append(p.Emails, v)
	}, byPK); err != nil {
		return nil, err
	}

	out := make([]Person, 0, len(pks))
	for _, pk := range pks {
		p := byPK[pk]
		p.Phones = dedupeBy(p.Phones, identify.Digits)
		p.Emails = dedupeBy(p.Emails, strings.ToLower)
		out = append(out, *p)
	}
	return out, nil
}

func collect(ctx context.Context, conn *sql.DB, prefix string, pks []int64, add func(*Person, string), byPK map[int64]*Person) error {
	marks := make([]string, len(pks))
	args := make([]any, len(pks))
	for i, pk := range pks {
		marks[i] = "?"
		args[i] = pk
	}
	rows, err := conn.QueryContext(ctx, prefix+"("+strings.Join(marks, ", ")+") ORDER BY Z_PK", args...)
	if err != nil {
		return fmt.Errorf("failed to query identifiers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var owner int64
		var value string
		if err := rows.Scan(&owner, &value); err != nil {
			return fmt.Errorf("failed to scan identifier: %w", err)
		}
		if p, ok := byPK[owner]; ok {
			add(p, strings.TrimSpace(value))
		}
	}
	return rows.Err()
}

// dedupeBy keeps the first spelling of values that normalize to the same key.
func dedupeBy(values []string, key func(string) string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		k := key(v)
		if v == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}
