// Package aggquery translates a MongoDB-style aggregation pipeline into a
// single equivalent Oracle SQL/JSON query: SQL text plus an ordered list of
// bound parameter values. Translation never opens a database connection —
// it is pure source-to-source compilation from an in-memory document
// representation to a string. The package is organised as three stages
// (parse, typed AST, render), exposed here behind a single Translate call
// the way the teacher's own top-level sqlparser.go re-exports its internal
// lexer/parser/formatter pipeline as one function.
package aggquery

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zoobzio/ddml"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/aggquery/aggquery/dialect"
	"github.com/aggquery/aggquery/identck"
	"github.com/aggquery/aggquery/mparse"
	"github.com/aggquery/aggquery/render"
	"github.com/aggquery/aggquery/schemahint"
)

// identifierIssueCode is the ValidationIssue code used when mparse surfaces
// an *identck.Error from a field path or table name it failed to validate.
const identifierIssueCode = "bad_identifier"

// Config names the source collection and target table shape: the table
// backing the collection, the JSON document column within it, an optional
// schema qualifier, and which Oracle feature set to target.
type Config struct {
	// Collection is the base table name translated $match/$group/etc.
	// stages run against.
	Collection string
	// DataColumn is the JSON document column on every table this translator
	// references (defaults to "data").
	DataColumn string
	// Schema optionally qualifies every table reference.
	Schema string
	// Dialect selects which Oracle feature set to target (native SAMPLE);
	// see the dialect package.
	Dialect dialect.Tag
	// DeclaredSchema optionally names field types across collections. When
	// set, a field path declared TypeInt or TypeFloat is rendered with an
	// explicit NUMBER hint (CAST(... AS NUMBER)) instead of
	// Oracle's default VARCHAR2 JSON projection. Nil skips this entirely;
	// every field is comparable through Oracle's usual implicit JSON
	// dot-notation typing.
	DeclaredSchema *ddml.Schema
}

// Options controls a single Translate call's output shape without changing
// Config's longer-lived identity.
type Options struct {
	// InlineBinds renders literal values directly into the SQL text
	// instead of as bind placeholders. Off by default; intended for
	// debugging/logging output, never for a query that will actually be
	// executed.
	InlineBinds bool
	// PrettyPrint is currently a no-op reserved for a future formatting
	// pass; the renderer always emits single-line SQL today.
	PrettyPrint bool
	// OracleHints are optimizer hint bodies, e.g. "PARALLEL(4)", joined with
	// spaces into a single /*+ ... */ comment placed after the leading
	// SELECT/INSERT/MERGE keyword.
	OracleHints []string
	// Strict promotes recursive $graphLookup, which has no single-query
	// Oracle equivalent, from a best-effort SQL comment placeholder into an
	// UnsupportedOperatorError, so a caller can choose between "translate what's
	// supported" and "refuse anything partial".
	Strict bool
}

// Result is a successful translation: the SQL text and its bind values in
// the same left-to-right order as the ":1", ":2", ... placeholders that
// appear in SQL.
type Result struct {
	SQL   string
	Binds []any
}

// Translator holds configuration and the identifier-validation cache shared
// across repeated Translate calls; construct one per (collection, dialect)
// combination and reuse it.
type Translator struct {
	cfg    Config
	idck   *identck.Validator
	schema *schemahint.Resolver
}

// New builds a Translator for cfg. cfg.Collection must be a valid table
// identifier; validity is checked lazily on the first Translate call rather
// than here, so New itself cannot fail.
func New(cfg Config) *Translator {
	if cfg.DataColumn == "" {
		cfg.DataColumn = "data"
	}
	return &Translator{cfg: cfg, idck: identck.New(), schema: schemahint.New(cfg.DeclaredSchema)}
}

// Translate parses stages (an ordered aggregation pipeline, e.g. as decoded
// from a JSON array of stage documents) and renders the equivalent Oracle
// query. ctx is accepted for interface symmetry with a future
// execution-helper call and for cancellation of a pathologically large
// input pipeline's parsing; rendering itself performs no I/O.
func (t *Translator) Translate(ctx context.Context, stages []bson.D, opts Options) (*Result, error) {
	if err := t.idck.TableName(t.cfg.Collection); err != nil {
		return nil, translateParseError(err)
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	p := mparse.NewWithSchema(t.schema)
	pipeline, err := p.ParsePipeline(t.cfg.Collection, stages)
	if err != nil {
		return nil, translateParseError(err)
	}

	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	rc := render.NewContext(render.Config{
		Collection: t.cfg.Collection,
		DataColumn: t.cfg.DataColumn,
		Schema:     t.cfg.Schema,
		Dialect:    t.cfg.Dialect,
	}, render.Options{
		InlineBinds: opts.InlineBinds,
		PrettyPrint: opts.PrettyPrint,
		OracleHints: opts.OracleHints,
		Strict:      opts.Strict,
	})
	out, err := render.Render(rc, pipeline)
	if err != nil {
		if se, ok := err.(*render.StrictModeError); ok {
			return nil, &UnsupportedOperatorError{Operator: se.Stage, Reason: se.Reason}
		}
		return nil, &TranslationError{Reason: errors.Wrap(err, "rendering pipeline").Error()}
	}
	return &Result{SQL: out.SQL(), Binds: out.Binds()}, nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// translateParseError converts an *mparse.Error into the exported error
// taxonomy (spec §7): an unrecognised operator becomes
// UnsupportedOperatorError, a structural shape problem becomes a
// single-issue ValidationError.
func translateParseError(err error) error {
	if ie, ok := err.(*identck.Error); ok {
		return NewValidationError(identifierIssueCode, ie.Reason, ie.Offending)
	}
	pe, ok := err.(*mparse.Error)
	if !ok {
		return &TranslationError{Reason: err.Error()}
	}
	if pe.UnsupportedOp != "" {
		return &UnsupportedOperatorError{Operator: pe.UnsupportedOp, Reason: "no registered parser for this operator"}
	}
	return NewValidationError(pe.Code, pe.Message, "")
}
