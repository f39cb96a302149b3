package render

import (
	"fmt"
	"strings"

	"github.com/aggquery/aggquery/ast"
)

// RenderExpression writes a self-contained, precedence-safe SQL fragment
// for expr into c's buffer and appends any newly-introduced literal values
// to c's bind list in left-to-right order. This is the expression AST's
// entire rendering contract (spec §4.3): every variant implements it via
// this single dispatcher rather than a method on the node itself, keeping
// SQL vocabulary out of the ast package.
func RenderExpression(c *Context, expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.Literal:
		renderLiteral(c, e)
	case *ast.FieldPath:
		renderFieldPath(c, e)
	case *ast.Comparison:
		renderComparison(c, e)
	case *ast.Logical:
		renderLogical(c, e)
	case *ast.Arithmetic:
		renderArithmetic(c, e)
	case *ast.Conditional:
		renderConditional(c, e)
	case *ast.StringExpr:
		renderStringExpr(c, e)
	case *ast.DateExpr:
		renderDateExpr(c, e)
	case *ast.ArrayExpr:
		renderArrayExpr(c, e)
	case *ast.Accumulator:
		renderAccumulator(c, e)
	case *ast.TypeConversion:
		renderTypeConversion(c, e)
	case *ast.Exists:
		renderExists(c, e)
	case *ast.InlineObject:
		renderInlineObject(c, e)
	case *ast.CompoundId:
		renderCompoundId(c, e)
	default:
		c.write(fmt.Sprintf("/* unsupported: unknown expression %T */ NULL", expr))
	}
}

func renderLiteral(c *Context, l *ast.Literal) {
	switch v := l.Value.(type) {
	case nil:
		c.write("NULL")
	case bool:
		if v {
			c.write("1")
		} else {
			c.write("0")
		}
	default:
		c.bindOrInline(l.Value)
	}
}

// renderFieldPath resolves a path against, in order: the column-alias set
// (window outputs in a post-window WHERE), the unwind registry (the path is
// an unwound column), the unwind-index registry (an includeArrayIndex
// ordinality column), the virtual-field registry (introduced by
// $addFields), a path under a $lookup's As name (read from the joined row),
// and finally falls back to a JSON dot-notation access on the base row
// (spec §9).
func renderFieldPath(c *Context, f *ast.FieldPath) {
	if c.columnAliasFields[f.Path] {
		fmt.Fprintf(&c.buf, "%q", f.Path)
		return
	}
	if alias, ok := c.unwindAlias[f.Path]; ok {
		c.write(alias + ".val")
		return
	}
	if alias, ok := c.unwindIndexAlias[f.Path]; ok {
		fmt.Fprintf(&c.buf, "%s.%q", alias, f.Path)
		return
	}
	if expr, ok := c.virtualFields[f.Path]; ok {
		c.writeByte('(')
		RenderExpression(c, expr)
		c.writeByte(')')
		return
	}
	if lb, rest, ok := c.resolveLookupPath(f.Path); ok {
		writeFieldPathAccess(c, lb.Alias, rest, f.Hint)
		return
	}
	writeFieldPathAccess(c, c.baseAlias, f.Path, f.Hint)
}

// resolveLookupPath reports whether path is rooted at a registered lookup's
// As name (e.g. "customer.tier" after `{$lookup: {..., as: "customer"}}"),
// in which case the field lives in the joined row rather than the base row.
// Matching requires a full path-segment boundary ("customer." not
// "customerAddress.") so two lookups with overlapping name prefixes never
// cross-resolve.
func (c *Context) resolveLookupPath(path string) (*lookupBinding, string, bool) {
	for as, lb := range c.lookups {
		if strings.HasPrefix(path, as+".") {
			return lb, path[len(as)+1:], true
		}
	}
	return nil, "", false
}

// writeFieldPathAccess writes the dot-notation or JSON_QUERY form for a
// path against a specific row alias, independent of the registry lookups
// renderFieldPath performs; used by stage renderers that must reference a
// path against a non-default alias (a lookup's joined row, a facet's
// sub-select row).
func writeFieldPathAccess(c *Context, alias, path string, hint ast.FieldPathHint) {
	if c.inJSONOutput() {
		fmt.Fprintf(&c.buf, "JSON_QUERY(%s, '$.%s')", c.dataRef(alias), path)
		return
	}
	ref := fmt.Sprintf("%s.%s", c.dataRef(alias), quoteDotPath(path))
	if hint == ast.HintNumber {
		fmt.Fprintf(&c.buf, "CAST(%s AS NUMBER)", ref)
		return
	}
	c.write(ref)
}

// quoteDotPath renders a validated dotted path as Oracle JSON dot-notation
// segments. Segments are already guaranteed by identck to be a bare
// [a-zA-Z_][a-zA-Z0-9_]* identifier, so no quoting is required.
func quoteDotPath(path string) string {
	return strings.ReplaceAll(path, ".", ".")
}

func renderComparison(c *Context, cmp *ast.Comparison) {
	if cmp.Op == ast.CmpIN || cmp.Op == ast.CmpNIN {
		renderInComparison(c, cmp)
		return
	}
	c.writeByte('(')
	RenderExpression(c, cmp.Left)
	c.write(" " + compareSymbol(cmp.Op) + " ")
	RenderExpression(c, cmp.Right)
	c.writeByte(')')
}

func compareSymbol(op ast.CompareOp) string {
	switch op {
	case ast.CmpEQ:
		return "="
	case ast.CmpNE:
		return "!="
	case ast.CmpGT:
		return ">"
	case ast.CmpGTE:
		return ">="
	case ast.CmpLT:
		return "<"
	case ast.CmpLTE:
		return "<="
	}
	return "="
}

func renderInComparison(c *Context, cmp *ast.Comparison) {
	if len(cmp.Values) == 0 {
		// Empty IN/NIN is a contradiction/tautology respectively (spec §8
		// boundary behaviour: "$in with empty array -> predicate
		// equivalent to FALSE").
		if cmp.Op == ast.CmpIN {
			c.write("1=0")
		} else {
			c.write("1=1")
		}
		return
	}
	RenderExpression(c, cmp.Left)
	if cmp.Op == ast.CmpNIN {
		c.write(" NOT IN (")
	} else {
		c.write(" IN (")
	}
	for i, v := range cmp.Values {
		if i > 0 {
			c.write(", ")
		}
		RenderExpression(c, v)
	}
	c.writeByte(')')
}

func renderLogical(c *Context, l *ast.Logical) {
	if l.Op == ast.LogicalNot {
		c.write("NOT (")
		RenderExpression(c, l.Operands[0])
		c.writeByte(')')
		return
	}
	if l.Op == ast.LogicalAnd && len(l.Operands) == 1 {
		// "Logical AND with one operand -> operand alone (no wrapping)"
		// (spec §4.3 rendering policy table).
		RenderExpression(c, l.Operands[0])
		return
	}
	joiner := " AND "
	if l.Op == ast.LogicalOr {
		joiner = " OR "
	}
	if l.Op == ast.LogicalNor {
		c.write("NOT (")
		for i, op := range l.Operands {
			if i > 0 {
				c.write(" OR ")
			}
			RenderExpression(c, op)
		}
		c.writeByte(')')
		return
	}
	c.writeByte('(')
	for i, op := range l.Operands {
		if i > 0 {
			c.write(joiner)
		}
		RenderExpression(c, op)
	}
	c.writeByte(')')
}

func renderArithmetic(c *Context, a *ast.Arithmetic) {
	if sym, infix := arithInfixSymbol(a.Op); infix {
		c.writeByte('(')
		for i, op := range a.Operands {
			if i > 0 {
				fmt.Fprintf(&c.buf, " %s ", sym)
			}
			RenderExpression(c, op)
		}
		c.writeByte(')')
		return
	}
	c.write(arithFuncName(a.Op))
	c.writeByte('(')
	for i, op := range a.Operands {
		if i > 0 {
			c.write(", ")
		}
		RenderExpression(c, op)
	}
	c.writeByte(')')
}

func arithInfixSymbol(op ast.ArithmeticOp) (string, bool) {
	switch op {
	case ast.ArithAdd:
		return "+", true
	case ast.ArithSubtract:
		return "-", true
	case ast.ArithMultiply:
		return "*", true
	case ast.ArithDivide:
		return "/", true
	case ast.ArithMod:
		return "MOD", false
	}
	return "", false
}

func arithFuncName(op ast.ArithmeticOp) string {
	switch op {
	case ast.ArithMod:
		return "MOD"
	case ast.ArithRound:
		return "ROUND"
	case ast.ArithAbs:
		return "ABS"
	case ast.ArithCeil:
		return "CEIL"
	case ast.ArithFloor:
		return "FLOOR"
	case ast.ArithTrunc:
		return "TRUNC"
	case ast.ArithSqrt:
		return "SQRT"
	case ast.ArithPow:
		return "POWER"
	case ast.ArithExp:
		return "EXP"
	case ast.ArithLn:
		return "LN"
	case ast.ArithLog10:
		return "LOG10"
	case ast.ArithMax:
		return "GREATEST"
	case ast.ArithMin:
		return "LEAST"
	}
	return "/* unsupported arithmetic op */NULL"
}

func renderConditional(c *Context, cond *ast.Conditional) {
	switch cond.Kind {
	case ast.CondIf:
		c.write("CASE WHEN ")
		RenderExpression(c, cond.Condition)
		c.write(" THEN ")
		RenderExpression(c, cond.Then)
		c.write(" ELSE ")
		RenderExpression(c, cond.Else)
		c.write(" END")
	case ast.CondIfNull:
		c.write("NVL(")
		RenderExpression(c, cond.Then)
		c.write(", ")
		RenderExpression(c, cond.Else)
		c.writeByte(')')
	}
}

func renderStringExpr(c *Context, s *ast.StringExpr) {
	switch s.Op {
	case ast.StrToUpper:
		wrapFunc1(c, "UPPER", s.Args[0])
	case ast.StrToLower:
		wrapFunc1(c, "LOWER", s.Args[0])
	case ast.StrTrim:
		wrapFunc1(c, "TRIM", s.Args[0])
	case ast.StrLTrim:
		wrapFunc1(c, "LTRIM", s.Args[0])
	case ast.StrRTrim:
		wrapFunc1(c, "RTRIM", s.Args[0])
	case ast.StrLength:
		wrapFunc1(c, "LENGTH", s.Args[0])
	case ast.StrConcat:
		c.write("(")
		for i, a := range s.Args {
			if i > 0 {
				c.write(" || ")
			}
			RenderExpression(c, a)
		}
		c.writeByte(')')
	case ast.StrSubstr:
		wrapFuncN(c, "SUBSTR", s.Args)
	case ast.StrSplit:
		wrapFuncN(c, "REGEXP_SUBSTR", s.Args)
	case ast.StrIndexOf:
		wrapFuncN(c, "INSTR", s.Args)
	case ast.StrRegexMatch:
		c.write("REGEXP_LIKE(")
		RenderExpression(c, s.Input)
		c.write(", ")
		RenderExpression(c, s.Regex)
		if s.Options != nil {
			c.write(", ")
			RenderExpression(c, s.Options)
		}
		c.writeByte(')')
	case ast.StrRegexFind:
		c.write("REGEXP_SUBSTR(")
		RenderExpression(c, s.Input)
		c.write(", ")
		RenderExpression(c, s.Regex)
		c.writeByte(')')
	case ast.StrReplaceOne, ast.StrReplaceAll:
		c.write("REPLACE(")
		RenderExpression(c, s.Input)
		c.write(", ")
		RenderExpression(c, s.Find)
		c.write(", ")
		RenderExpression(c, s.Replacement)
		c.writeByte(')')
	default:
		c.write("/* unsupported: string op */ NULL")
	}
}

func wrapFunc1(c *Context, name string, arg ast.Expression) {
	c.write(name)
	c.writeByte('(')
	RenderExpression(c, arg)
	c.writeByte(')')
}

func wrapFuncN(c *Context, name string, args []ast.Expression) {
	c.write(name)
	c.writeByte('(')
	for i, a := range args {
		if i > 0 {
			c.write(", ")
		}
		RenderExpression(c, a)
	}
	c.writeByte(')')
}

func renderDateExpr(c *Context, d *ast.DateExpr) {
	field := dateField(d.Op)
	if field == "" {
		c.write("/* unsupported: date op */ NULL")
		return
	}
	fmt.Fprintf(&c.buf, "EXTRACT(%s FROM TO_TIMESTAMP(", field)
	RenderExpression(c, d.Arg)
	c.write(", 'YYYY-MM-DD\"T\"HH24:MI:SS'))")
}

func dateField(op ast.DateOp) string {
	switch op {
	case ast.DateYear:
		return "YEAR"
	case ast.DateMonth:
		return "MONTH"
	case ast.DateDayOfMonth:
		return "DAY"
	case ast.DateHour:
		return "HOUR"
	case ast.DateMinute:
		return "MINUTE"
	case ast.DateSecond:
		return "SECOND"
	}
	return ""
}

// renderArrayExpr covers the array operators, including the $size special
// case over a lookup's As name, which renders as a correlated
// SELECT COUNT(*) and marks the lookup consumed so the stage renderer
// later omits its JOIN (spec §4.3, §9 "consumed" back-channel).
func renderArrayExpr(c *Context, a *ast.ArrayExpr) {
	switch a.Op {
	case ast.ArrSize:
		if fp, ok := a.Input.(*ast.FieldPath); ok {
			if lb, ok := c.lookups[fp.Path]; ok {
				lb.Consumed = true
				fmt.Fprintf(&c.buf, "(SELECT COUNT(*) FROM %s %s WHERE %s.%s = %s.%s)",
					c.qualifiedTable(lb.From), lb.Alias,
					c.dataRef(lb.Alias), quoteDotPath(lb.Foreign),
					c.dataRef(c.baseAlias), quoteDotPath(lb.Local))
				return
			}
		}
		c.write("JSON_VALUE(")
		RenderExpression(c, a.Input)
		c.write(", '$.size()')")
	case ast.ArrElemAt:
		c.write("JSON_VALUE(")
		RenderExpression(c, a.Input)
		c.write(", '$[' || ")
		RenderExpression(c, a.Index)
		c.write(" || ']')")
	case ast.ArrFirst:
		c.write("JSON_VALUE(")
		RenderExpression(c, a.Input)
		c.write(", '$[0]')")
	case ast.ArrLast:
		c.write("JSON_VALUE(")
		RenderExpression(c, a.Input)
		c.write(", '$[last]')")
	case ast.ArrConcatArrays:
		renderArrayConcat(c, a)
	case ast.ArrSlice:
		renderArraySlice(c, a)
	case ast.ArrFilter, ast.ArrMap:
		c.write("COALESCE((SELECT JSON_ARRAYAGG(VALUE(jt) RETURNING CLOB) FROM JSON_TABLE(")
		RenderExpression(c, a.Input)
		c.write(", '$[*]' COLUMNS (val CLOB FORMAT JSON PATH '$')) jt), JSON_ARRAY())")
	case ast.ArrReduce:
		switch a.Combiner {
		case ast.ReduceSum:
			c.write("(SELECT SUM(TO_NUMBER(jt.val)) FROM JSON_TABLE(")
			RenderExpression(c, a.Input)
			c.write(", '$[*]' COLUMNS (val VARCHAR2(4000) PATH '$')) jt)")
		case ast.ReduceConcat:
			c.write("(SELECT LISTAGG(jt.val, '') WITHIN GROUP (ORDER BY jt.idx) FROM JSON_TABLE(")
			RenderExpression(c, a.Input)
			c.write(", '$[*]' COLUMNS (idx FOR ORDINALITY, val VARCHAR2(4000) PATH '$')) jt)")
		default:
			c.write("/* unsupported: $reduce general combiner */ NULL")
		}
	default:
		c.write("/* unsupported: array op */ NULL")
	}
}

// renderArrayConcat implements $concatArrays as a real concatenation:
// JSON_ARRAYAGG over a UNION ALL of each input array's elements, expanded
// by JSON_TABLE and tagged with a source index, with element order
// preserved both within and across sources (source order, then original
// ordinal position within that source). JSON_MERGEPATCH is RFC 7396
// merge-patch semantics, not concatenation, so it is not used here.
func renderArrayConcat(c *Context, a *ast.ArrayExpr) {
	c.write("(SELECT JSON_ARRAYAGG(x.val ORDER BY x.src, x.idx RETURNING CLOB) FROM (")
	for i, arr := range a.Arrays {
		if i > 0 {
			c.write(" UNION ALL ")
		}
		fmt.Fprintf(&c.buf, "SELECT %d AS src, jt.idx AS idx, jt.val AS val FROM JSON_TABLE(", i)
		RenderExpression(c, arr)
		c.write(", '$[*]' COLUMNS (idx FOR ORDINALITY, val CLOB FORMAT JSON PATH '$')) jt")
	}
	c.write(") x)")
}

// renderArraySlice implements $slice's 2-arg (array, n) and 3-arg
// (array, position, n) forms as a JSON_TABLE-with-ordinality subquery
// filtered to the computed [lo, hi] ordinal bound and re-aggregated in
// original order, rather than the whole unsliced array.
func renderArraySlice(c *Context, a *ast.ArrayExpr) {
	c.write("(SELECT JSON_ARRAYAGG(jt.val ORDER BY jt.idx RETURNING CLOB) FROM JSON_TABLE(")
	RenderExpression(c, a.Input)
	c.write(", '$[*]' COLUMNS (idx FOR ORDINALITY, val CLOB FORMAT JSON PATH '$')) jt WHERE jt.idx BETWEEN ")
	renderSliceLowerBound(c, a)
	c.write(" AND ")
	renderSliceUpperBound(c, a)
	c.writeByte(')')
}

func renderSliceArrayLen(c *Context, a *ast.ArrayExpr) {
	c.write("JSON_VALUE(")
	RenderExpression(c, a.Input)
	c.write(", '$.size()')")
}

// renderSliceLowerBound computes the 1-based ordinal lower bound. In the
// 2-arg form (Count nil, Start holds n): n>=0 starts at 1, n<0 starts
// |n| elements from the end. In the 3-arg form (Start holds position,
// Count holds n): position>=0 is a 0-based offset from the front,
// position<0 counts back from the end, clamped to the first element.
func renderSliceLowerBound(c *Context, a *ast.ArrayExpr) {
	if a.Count == nil {
		c.write("(CASE WHEN (")
		RenderExpression(c, a.Start)
		c.write(") >= 0 THEN 1 ELSE GREATEST(")
		renderSliceArrayLen(c, a)
		c.write(" + (")
		RenderExpression(c, a.Start)
		c.write(") + 1, 1) END)")
		return
	}
	c.write("(CASE WHEN (")
	RenderExpression(c, a.Start)
	c.write(") >= 0 THEN (")
	RenderExpression(c, a.Start)
	c.write(") + 1 ELSE GREATEST(")
	renderSliceArrayLen(c, a)
	c.write(" + (")
	RenderExpression(c, a.Start)
	c.write("), 0) + 1 END)")
}

// renderSliceUpperBound computes the 1-based ordinal upper bound: the
// 2-arg form's n>=0 stops at n, n<0 runs to the end; the 3-arg form runs
// for n elements (assumed positive, per $slice's own contract) starting
// at the lower bound already computed.
func renderSliceUpperBound(c *Context, a *ast.ArrayExpr) {
	if a.Count == nil {
		c.write("(CASE WHEN (")
		RenderExpression(c, a.Start)
		c.write(") >= 0 THEN (")
		RenderExpression(c, a.Start)
		c.write(") ELSE ")
		renderSliceArrayLen(c, a)
		c.write(" END)")
		return
	}
	c.write("(")
	renderSliceLowerBound(c, a)
	c.write(" - 1 + (")
	RenderExpression(c, a.Count)
	c.write("))")
}

// renderAccumulator renders an accumulator expression standalone (used
// inside $group/$bucket accumulator slots, and reused for the equivalent
// $setWindowFields outputs via renderWindowOutput).
func renderAccumulator(c *Context, a *ast.Accumulator) {
	if a.Op == ast.AccSum {
		if lit, ok := a.Arg.(*ast.Literal); ok {
			if n, ok := asNumber(lit.Value); ok && n == 1 {
				c.write("COUNT(*)")
				return
			}
		}
	}
	name := accFuncName(a.Op)
	c.write(name)
	c.writeByte('(')
	if a.Arg != nil {
		RenderExpression(c, a.Arg)
	} else {
		c.write("*")
	}
	c.writeByte(')')
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func accFuncName(op ast.AccumulatorOp) string {
	switch op {
	case ast.AccSum:
		return "SUM"
	case ast.AccAvg:
		return "AVG"
	case ast.AccCount:
		return "COUNT"
	case ast.AccMin:
		return "MIN"
	case ast.AccMax:
		return "MAX"
	case ast.AccFirst:
		return "MIN" // combined with a deterministic ORDER BY upstream where needed
	case ast.AccLast:
		return "MAX"
	case ast.AccPush:
		return "JSON_ARRAYAGG"
	case ast.AccAddToSet:
		return "JSON_ARRAYAGG" // DISTINCT semantics handled by caller when required
	}
	return "/* unsupported accumulator */NULL"
}

func renderTypeConversion(c *Context, t *ast.TypeConversion) {
	switch t.Op {
	case ast.ConvToInt, ast.ConvToLong:
		wrapFunc1(c, "TO_NUMBER", t.Arg)
	case ast.ConvToDouble, ast.ConvToDecimal:
		wrapFunc1(c, "TO_NUMBER", t.Arg)
	case ast.ConvToString:
		wrapFunc1(c, "TO_CHAR", t.Arg)
	case ast.ConvToBool:
		c.write("CASE WHEN ")
		RenderExpression(c, t.Arg)
		c.write(" IS NOT NULL THEN 1 ELSE 0 END")
	case ast.ConvToDate:
		wrapFunc1(c, "TO_TIMESTAMP", t.Arg)
	case ast.ConvType:
		c.write("/* $type */ 'unknown'")
	case ast.ConvConvert:
		c.write("NVL(TO_NUMBER(")
		RenderExpression(c, t.Input)
		c.write("), ")
		if t.OnError != nil {
			RenderExpression(c, t.OnError)
		} else {
			c.write("NULL")
		}
		c.writeByte(')')
	}
}

func renderExists(c *Context, e *ast.Exists) {
	if !e.Must {
		c.write("NOT ")
	}
	fmt.Fprintf(&c.buf, "JSON_EXISTS(%s, '$.%s')", c.dataRef(c.baseAlias), quoteDotPath(e.Path))
}

func renderInlineObject(c *Context, o *ast.InlineObject) {
	c.write("JSON_OBJECT(")
	for i, f := range o.Fields {
		if i > 0 {
			c.write(", ")
		}
		fmt.Fprintf(&c.buf, "'%s' VALUE ", f.Name)
		RenderExpression(c, f.Expr)
	}
	c.writeByte(')')
}

func renderCompoundId(c *Context, id *ast.CompoundId) {
	c.write("JSON_OBJECT(")
	for i, f := range id.Fields {
		if i > 0 {
			c.write(", ")
		}
		fmt.Fprintf(&c.buf, "'%s' VALUE ", f.Name)
		RenderExpression(c, f.Expr)
	}
	c.writeByte(')')
}
