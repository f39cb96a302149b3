// Package fuzz exercises the translator's quantified invariants (bind-count
// alignment, identifier safety, determinism, stage-sequence preservation)
// against randomly generated small pipelines, the way the teacher's own
// fuzz suite hammered its SQL parser for panics and parse/format
// round-trip mismatches.
package fuzz

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/aggquery/aggquery"
)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func translateMatch(field, value string) (*aggquery.Result, error) {
	tr := aggquery.New(aggquery.Config{Collection: "orders"})
	stages := []bson.D{{{Key: "$match", Value: bson.D{{Key: field, Value: value}}}}}
	return tr.Translate(context.Background(), stages, aggquery.Options{})
}

// FuzzBindCountAlignment checks that the number of ":n" placeholders in the
// emitted SQL equals len(Binds), with indices exactly {1, ..., N}.
func FuzzBindCountAlignment(f *testing.F) {
	f.Add("status", "completed")
	f.Add("customer.tier", "gold")
	f.Add("a", "")
	f.Fuzz(func(t *testing.T, field, value string) {
		result, err := translateMatch(field, value)
		if err != nil {
			return
		}
		n := len(result.Binds)
		for i := 1; i <= n; i++ {
			if !strings.Contains(result.SQL, bindToken(i)) {
				t.Fatalf("missing bind placeholder %s in SQL with %d binds: %s", bindToken(i), n, result.SQL)
			}
		}
		if strings.Contains(result.SQL, bindToken(n+1)) {
			t.Fatalf("SQL contains unexpected bind placeholder %s beyond bind count %d: %s", bindToken(n+1), n, result.SQL)
		}
	})
}

func bindToken(n int) string {
	return ":" + strconv.Itoa(n)
}

// FuzzIdentifierSafety checks that a field path either gets rejected by
// identifier validation, or, if accepted, is reflected into the emitted SQL
// only in forms matching [a-zA-Z_][a-zA-Z0-9_]* segments of length <= 128.
func FuzzIdentifierSafety(f *testing.F) {
	f.Add("status")
	f.Add("a.b.c")
	f.Add("bad..path")
	f.Add("$dangerous")
	f.Fuzz(func(t *testing.T, field string) {
		_, err := translateMatch(field, "x")
		if err == nil {
			for _, seg := range strings.Split(strings.TrimPrefix(field, "$"), ".") {
				if !identRe.MatchString(seg) || len(seg) > 128 {
					t.Fatalf("accepted field path with invalid segment %q in %q", seg, field)
				}
			}
		}
	})
}

// FuzzDeterminism checks that translating the same pipeline twice produces
// byte-equal SQL and an equal bind list.
func FuzzDeterminism(f *testing.F) {
	f.Add("status", "completed")
	f.Add("category", "")
	f.Fuzz(func(t *testing.T, field, value string) {
		r1, err1 := translateMatch(field, value)
		r2, err2 := translateMatch(field, value)
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("non-deterministic error outcome: %v vs %v", err1, err2)
		}
		if err1 != nil {
			return
		}
		if r1.SQL != r2.SQL {
			t.Fatalf("non-deterministic SQL:\n%s\nvs\n%s", r1.SQL, r2.SQL)
		}
		if len(r1.Binds) != len(r2.Binds) {
			t.Fatalf("non-deterministic bind count: %d vs %d", len(r1.Binds), len(r2.Binds))
		}
		for i := range r1.Binds {
			if r1.Binds[i] != r2.Binds[i] {
				t.Fatalf("non-deterministic bind at %d: %v vs %v", i, r1.Binds[i], r2.Binds[i])
			}
		}
	})
}

// FuzzStageSequencePreservation checks that N independent $match stages on
// distinct fields produce exactly N bind values (one predicate per stage,
// AND-combined), regardless of N within a small fuzzed bound.
func FuzzStageSequencePreservation(f *testing.F) {
	f.Add(uint8(0))
	f.Add(uint8(1))
	f.Add(uint8(3))
	f.Add(uint8(20))
	f.Fuzz(func(t *testing.T, rawN uint8) {
		n := int(rawN % 6)
		stages := make([]bson.D, n)
		for i := 0; i < n; i++ {
			field := string(rune('a' + i))
			stages[i] = bson.D{{Key: "$match", Value: bson.D{{Key: field, Value: i}}}}
		}
		tr := aggquery.New(aggquery.Config{Collection: "orders"})
		result, err := tr.Translate(context.Background(), stages, aggquery.Options{})
		if n == 0 {
			return
		}
		if err != nil {
			t.Fatalf("unexpected error for %d distinct-field matches: %v", n, err)
		}
		if len(result.Binds) != n {
			t.Fatalf("expected %d binds for %d $match stages, got %d", n, n, len(result.Binds))
		}
		if n > 1 && !strings.Contains(result.SQL, " AND ") {
			t.Fatalf("expected AND-combined WHERE clause for %d $match stages: %s", n, result.SQL)
		}
	})
}
