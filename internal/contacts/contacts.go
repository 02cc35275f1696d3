// Package contacts resolves raw handle identifiers to display names using the
// macOS AddressBook databases, and finds the phones/emails behind a name.
//
// The AddressBook keeps one database at its root and one per account under
// Sources/<uuid>/. Each lookup opens the files read-only and closes them before
// returning. A missing or unreadable AddressBook is never an error: lookups
// degrade to formatting the identifier itself.
package contacts

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Napageneral/recall/internal/db"
	"github.com/Napageneral/recall/internal/identify"
)

// SourceFile is the AddressBook database file name.
const SourceFile = "AddressBook-v22.abcddb"

// Person is an AddressBook record with its identifiers.
type Person struct {
	Name   string   `json:"name"`
	Phones []string `json:"phones,omitempty"`
	Emails []string `json:"emails,omitempty"`
}

// Resolver looks up names in the AddressBook, caching every answer.
type Resolver struct {
	dir    string
	driver string
	cache  *NameCache
	logger zerolog.Logger
}

// NewResolver builds a resolver over the AddressBook directory dir.
func NewResolver(dir, driver string, cache *NameCache, logger zerolog.Logger) *Resolver {
	if cache == nil {
		cache = NewNameCache()
	}
	return &Resolver{dir: dir, driver: driver, cache: cache, logger: logger}
}

// Cache exposes the resolver's cache.
func (r *Resolver) Cache() *NameCache { return r.cache }


// DiscoverSources returns every AddressBook database under dir, root first.
func DiscoverSources(dir string) []string {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	var out []string
	root := filepath.Join(dir, SourceFile)
	if _, err := os.Stat(root); err == nil {
		out = append(out, root)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "Sources", "*", SourceFile))
	sort.Strings(matches)
	return append(out, matches...)
}

// ResolveName returns the display name for a raw identifier. It never fails:
// when no record has a name, the identifier is formatted for display.
func (r *Resolver) ResolveName(ctx context.Context, identifier string) string {
	if name, ok := r.cache.Get(identifier); ok {
		return name
	}

	name, ok := r.lookupName(ctx, identifier)
	if !ok {
		name = identify.FormatFallback(identifier)
	}
	r.cache.Put(identifier, name)
	return name
}

func (r *Resolver) lookupName(ctx context.Context, identifier string) (string, bool) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", false
	}
	for _, src := range DiscoverSources(r.dir) {
		name, ok := r.withSource(ctx, src, func(conn *sql.DB) (string, bool, error) {
			if strings.Contains(identifier, "@") {
				return nameByEmail(ctx, conn, identifier)
			}
			return nameByPhone(ctx, conn, identifier)
		})
		if ok {
			return name, true
		}
	}
	return "", false
}

func (r *Resolver) withSource(ctx context.Context, src string, fn func(*sql.DB) (string, bool, error)) (string, bool) {
	conn, err := db.OpenReadOnly(ctx, r.driver, src)
	if err != nil {
		r.logger.Debug().Err(err).Str("source", src).Msg("contacts source unavailable")
		return "", false
	}
	defer conn.Close()

	name, ok, err := fn(conn)
	if err != nil {
		r.logger.Debug().Err(err).Str("source", src).Msg("contacts lookup failed")
		return "", false
	}
	return name, ok
}

// digitsExpr strips common phone punctuation inside SQLite.
const digitsExpr = `REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(p.ZFULLNUMBER, ' ', ''), '(', ''), ')', ''), '-', ''), '.', ''), '+', '')`

func nameByPhone(ctx context.Context, conn *sql.DB, identifier string) (string, bool, error) {
	variants := identify.PhoneVariants(identifier)
	digits := identify.Digits(identifier)

	var digitVariants []string
	if len(digits) >= 7 {
		digitVariants = append(digitVariants, digits)
		if len(digits) == 11 && digits[0] == '1' {
			digitVariants = append(digitVariants, digits[1:])
		}
		if len(digits) == 10 {
			digitVariants = append(digitVariants, "1"+digits)
		}
	}

	exactIn, args := stringPlaceholders(variants)
	query := `
		SELECT COALESCE(r.ZFIRSTNAME, ''), COALESCE(r.ZLASTNAME, ''), COALESCE(r.ZORGANIZATION, '')
		FROM ZABCDRECORD r
		JOIN ZABCDPHONENUMBER p ON p.ZOWNER = r.Z_PK
		WHERE p.ZFULLNUMBER IN (` + exactIn + `)`
	if len(digitVariants) > 0 {
		digitIn, digitArgs := stringPlaceholders(digitVariants)
		query += ` OR ` + digitsExpr + ` IN (` + digitIn + `)`
		args = append(args, digitArgs...)
	}
	query += `
		ORDER BY (r.ZFIRSTNAME IS NULL AND r.ZLASTNAME IS NULL), r.Z_PK
		LIMIT 1`
	return scanName(conn.QueryRowContext(ctx, query, args...))
}

func nameByEmail(ctx context.Context, conn *sql.DB, identifier string) (string, bool, error) {
	return scanName(conn.QueryRowContext(ctx, `
		SELECT COALESCE(r.ZFIRSTNAME, ''), COALESCE(r.ZLASTNAME, ''), COALESCE(r.ZORGANIZATION, '')
		FROM ZABCDRECORD r
		JOIN ZABCDEMAILADDRESS e ON e.ZOWNER = r.Z_PK
		WHERE LOWER(e.ZADDRESS) = LOWER(?)
		ORDER BY (r.ZFIRSTNAME IS NULL AND r.ZLASTNAME IS NULL), r.Z_PK
		LIMIT 1
	`, strings.TrimSpace(identifier)))
}

func scanName(row *sql.Row) (string, bool, error) {
	var first, last, org string
	if err := row.Scan(&first, &last, &org); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	name := displayName(first, last, org)
	return name, name != "", nil
}

func displayName(first, last, org string) string {
	if name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last)); name != "" {
		return name
	}
	return strings.TrimSpace(org)
}

func stringPlaceholders(values []string) (string, []any) {
	marks := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = v
	}
	return strings.Join(marks, ", "), args
}
