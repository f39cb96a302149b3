// Package render turns a parsed ast.Pipeline into Oracle SQL text and an
// ordered bind-value list. It mirrors the teacher's single-buffer
// formatter: one mutable Context threaded explicitly through every render
// call, a type-switch dispatcher, and a handful of write* helpers that are
// the only code allowed to touch the underlying buffer.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aggquery/aggquery/ast"
	"github.com/aggquery/aggquery/dialect"
)

// Config mirrors the translator's public configuration, duplicated here so
// the render package has no import-cycle back to the root package.
type Config struct {
	Collection string
	DataColumn string
	Schema     string
	Dialect    dialect.Tag
}

// Options mirrors the translator's public render options.
type Options struct {
	InlineBinds bool
	PrettyPrint bool
	OracleHints []string
	Strict      bool
}

// modeFlag is one entry of the push/pop mode-flag stack.
type modeFlag struct {
	jsonOutput     bool
	nestedPipeline bool
}

// Context is the single mutable object threaded through every render call.
// No rendering code may hold a reference to SQL text, bind values, or
// registries outside of a *Context.
type Context struct {
	cfg  Config
	opts Options

	buf      bytes.Buffer
	binds    []any
	bindN    int
	aliasN   int
	modes    []modeFlag

	virtualFields    map[string]ast.Expression // $addFields: name -> expression
	lookups          map[string]*lookupBinding // $lookup as-name -> binding
	unwindAlias      map[string]string         // unwind path -> JSON_TABLE alias
	unwindIndexAlias map[string]string         // $unwind includeArrayIndex name -> JSON_TABLE alias

	// columnAliasFields names output columns (window outputs, accumulators)
	// that a field path appearing in this WHERE clause must resolve to by
	// quoted alias rather than by a fresh JSON path lookup against the base
	// row, because the clause sits in a wrapping query outside the SELECT
	// that computed them (a post-window $match's predicate, spec §4.8.1).
	// Populated only while rendering such a clause.
	columnAliasFields map[string]bool

	baseAlias string // alias of the outermost base table, for field-path resolution fallback
}

// lookupBinding records a lookup's join shape and the alias assigned to it,
// plus whether an expression elsewhere (a $size on the lookup's As name)
// has already "consumed" it, meaning the stage renderer must suppress the
// corresponding JOIN.
type lookupBinding struct {
	From     string
	Local    string
	Foreign  string
	Alias    string
	Consumed bool
}

// NewContext builds a fresh Context. Safe to call concurrently with other
// NewContext calls; a Context itself must not be shared across goroutines.
func NewContext(cfg Config, opts Options) *Context {
	if cfg.DataColumn == "" {
		cfg.DataColumn = "data"
	}
	return &Context{
		cfg:           cfg,
		opts:          opts,
		modes:         []modeFlag{{}},
		virtualFields: map[string]ast.Expression{},
		lookups:          map[string]*lookupBinding{},
		unwindAlias:      map[string]string{},
		unwindIndexAlias: map[string]string{},
	}
}

// SQL returns the accumulated SQL text.
func (c *Context) SQL() string { return c.buf.String() }

// Binds returns the accumulated bind values in emission order.
func (c *Context) Binds() []any { return c.binds }

func (c *Context) write(s string) { c.buf.WriteString(s) }

func (c *Context) writeByte(b byte) { c.buf.WriteByte(b) }

// writeLeadingKeyword writes kw and, only when kw is the very first thing
// written to this Context's buffer, appends Options.OracleHints as an
// Oracle optimizer hint comment immediately after it. The buf.Len()==0
// check is what distinguishes a statement's own leading SELECT/INSERT
// INTO/MERGE INTO from an identical keyword appearing later as part of a
// nested subquery written into the same buffer: a hint belongs only on the
// outermost statement's keyword (spec's Options.OracleHints doc comment).
func (c *Context) writeLeadingKeyword(kw string) {
	leading := c.buf.Len() == 0
	c.write(kw)
	if leading && len(c.opts.OracleHints) > 0 {
		fmt.Fprintf(&c.buf, " /*+ %s */", strings.Join(c.opts.OracleHints, " "))
	}
}

// writeIdent writes a validated identifier. Segments requiring quoting
// (none, given identck's grammar, but kept for defensive symmetry with the
// teacher's writeIdent) would be double-quoted here.
func (c *Context) writeIdent(id string) { c.write(id) }

// nextAlias allocates a short unique base-table alias, mirroring the
// teacher formatter's style but generating "t0", "t1", ... rather than
// reusing "base" for every call.
func (c *Context) nextAlias() string {
	a := fmt.Sprintf("t%d", c.aliasN)
	c.aliasN++
	return a
}

// bindOrInline appends a bind value and writes its placeholder, unless
// Options.InlineBinds is set, in which case it writes an inline SQL literal
// instead and does not grow the bind list. Either way this is the only
// path by which a Literal reaches the buffer.
func (c *Context) bindOrInline(v any) {
	if c.opts.InlineBinds {
		c.write(inlineLiteral(v))
		return
	}
	c.bindN++
	c.binds = append(c.binds, v)
	fmt.Fprintf(&c.buf, ":%d", c.bindN)
}

func (c *Context) pushMode(m modeFlag) { c.modes = append(c.modes, m) }
func (c *Context) popMode()            { c.modes = c.modes[:len(c.modes)-1] }
func (c *Context) mode() modeFlag      { return c.modes[len(c.modes)-1] }

func (c *Context) inJSONOutput() bool     { return c.mode().jsonOutput }
func (c *Context) inNestedPipeline() bool { return c.mode().nestedPipeline }

// dataRef returns "<alias>.<dataColumn>", the JSON document column
// reference used throughout field-path rendering.
func (c *Context) dataRef(alias string) string {
	return alias + "." + c.cfg.DataColumn
}

// qualifiedTable returns the collection name qualified by the configured
// schema, if any.
func (c *Context) qualifiedTable(name string) string {
	if c.cfg.Schema == "" {
		return name
	}
	return c.cfg.Schema + "." + name
}

func inlineLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return "'" + escapeOracleString(x) + "'"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// StrictModeError reports a semantic gap that Options.Strict promotes from a
// best-effort SQL comment placeholder into a hard failure (spec §9's
// suggested "consider returning UnsupportedOperator in strict mode").
type StrictModeError struct {
	Stage  string
	Reason string
}

func (e *StrictModeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func escapeOracleString(s string) string {
	out := make([]byte, 0, len(s)+2)
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
