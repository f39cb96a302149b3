// Package identck validates field paths and table names before they reach
// the SQL buffer, which is the only line of defence against identifier
// injection since the renderer never otherwise quotes or escapes names. A
// memoizing cache sits in front of both checks since the same paths recur
// across every stage of a pipeline and across repeated translations
// sharing a Validator.
package identck

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	gocache "github.com/eko/gocache/lib/v4/cache"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	go_cache "github.com/patrickmn/go-cache"
)

var fieldSegment = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
var tableName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,127}$`)

const maxFieldPathLen = 128

// Error reports an invalid identifier, carrying the sanitized offending
// text (truncated to 50 characters, control characters replaced with "?").
type Error struct {
	Kind      string // "field_path" or "table_name"
	Offending string
	Reason    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Offending, e.Reason)
}

func sanitize(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i >= 50 {
			break
		}
		if r < 0x20 || r == 0x7f {
			b.WriteByte('?')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Validator validates and caches identifier checks.
type Validator struct {
	cache *gocache.Cache[bool]
}

// New builds a Validator with a fresh in-memory cache.
func New() *Validator {
	store := gocache_store.NewGoCache(go_cache.New(go_cache.NoExpiration, go_cache.NoExpiration))
	return &Validator{cache: gocache.New[bool](store)}
}

// FieldPath validates a dotted field path: splits on ".", validates each
// segment against [a-zA-Z_][a-zA-Z0-9_]*, rejects empty segments, and caps
// total length at 128 characters. A single leading "$" is stripped before
// validation.
func (v *Validator) FieldPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "$")
	key := "field:" + trimmed
	if ok, err := v.cache.Get(context.Background(), key); err == nil && ok {
		return trimmed, nil
	}
	if err := validateFieldPath(trimmed); err != nil {
		return "", err
	}
	_ = v.cache.Set(context.Background(), key, true)
	return trimmed, nil
}

// TableName validates an unqualified table/collection name: stricter
// grammar [a-zA-Z][a-zA-Z0-9_]{0,127}, no dots.
func (v *Validator) TableName(name string) error {
	key := "table:" + name
	if ok, err := v.cache.Get(context.Background(), key); err == nil && ok {
		return nil
	}
	if !tableName.MatchString(name) {
		return &Error{Kind: "table_name", Offending: sanitize(name), Reason: "must match [a-zA-Z][a-zA-Z0-9_]{0,127}"}
	}
	_ = v.cache.Set(context.Background(), key, true)
	return nil
}

func validateFieldPath(path string) error {
	if len(path) > maxFieldPathLen {
		return &Error{Kind: "field_path", Offending: sanitize(path), Reason: "exceeds maximum length of 128 characters"}
	}
	if path == "" {
		return &Error{Kind: "field_path", Offending: "", Reason: "empty field path"}
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return &Error{Kind: "field_path", Offending: sanitize(path), Reason: "empty path segment"}
		}
		if !fieldSegment.MatchString(seg) {
			return &Error{Kind: "field_path", Offending: sanitize(path), Reason: fmt.Sprintf("invalid path segment %q", sanitize(seg))}
		}
	}
	return nil
}
