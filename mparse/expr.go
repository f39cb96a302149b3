// Package mparse maps untyped BSON document trees to the typed ast
// package, in two entry points mirroring the filter-vs-expression
// distinction of the source language: Parse for predicate (filter)
// context, ParseValue for projection/expression context. The split exists
// because $not, $and, and $or accept different argument shapes depending
// on which context they appear in.
package mparse

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/aggquery/aggquery/ast"
	"github.com/aggquery/aggquery/identck"
	"github.com/aggquery/aggquery/optoken"
	"github.com/aggquery/aggquery/schemahint"
)

// Error reports a parse-time failure: either an operator with no
// registered parser (UnsupportedOp set) or a structural shape error
// (Code/Message set).
type Error struct {
	UnsupportedOp string
	Code          string
	Message       string
}

func (e *Error) Error() string {
	if e.UnsupportedOp != "" {
		return fmt.Sprintf("unsupported operator %q", e.UnsupportedOp)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func unsupported(op string) error { return &Error{UnsupportedOp: op} }
func shapeErr(code, msg string) error { return &Error{Code: code, Message: msg} }

// Parser holds the identifier validator and, for stage-level recursion
// (nested pipelines in $lookup/$facet/$unionWith), the stage registry. An
// optional schema Resolver feeds a NUMBER hint onto field paths declared
// numeric, so the renderer can skip a VARCHAR2-vs-numeric-literal
// comparison; collection names the current ParsePipeline call's collection,
// the schema lookup key, and is empty (so every lookup misses) outside of
// ParsePipeline or when no schema was supplied.
type Parser struct {
	idck       *identck.Validator
	schema     *schemahint.Resolver
	collection string
}

// New builds a Parser with a fresh identifier validator and no declared
// schema; every field path gets ast.HintNone.
func New() *Parser {
	return &Parser{idck: identck.New()}
}

// NewWithSchema builds a Parser that also consults schema to hint numeric
// field paths. A nil schema behaves identically to New.
func NewWithSchema(schema *schemahint.Resolver) *Parser {
	return &Parser{idck: identck.New(), schema: schema}
}

// fieldPath builds an *ast.FieldPath for an already-validated path, setting
// Hint from the declared schema (if any) for the Parser's current
// collection.
func (p *Parser) fieldPath(path string) *ast.FieldPath {
	fp := &ast.FieldPath{Path: path}
	if p.schema.IsNumeric(p.collection, path) {
		fp.Hint = ast.HintNumber
	}
	return fp
}

// Parse parses a filter document (match context): sibling keys are
// implicitly AND-combined, and $not/$and/$or/$nor at the top level take the
// filter-context argument shapes.
func (p *Parser) Parse(doc bson.D) (ast.Expression, error) {
	if len(doc) == 0 {
		return nil, shapeErr("empty_filter", "filter document must not be empty")
	}
	var preds []ast.Expression
	for _, el := range doc {
		pred, err := p.parseFilterElement(el.Key, el.Value)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return &ast.Logical{Op: ast.LogicalAnd, Operands: preds}, nil
}

func (p *Parser) parseFilterElement(key string, value any) (ast.Expression, error) {
	switch key {
	case "$and":
		return p.parseLogicalList(ast.LogicalAnd, value)
	case "$or":
		return p.parseLogicalList(ast.LogicalOr, value)
	case "$nor":
		return p.parseLogicalList(ast.LogicalNor, value)
	case "$not":
		// Filter context: $not takes a document of further field
		// operators (spec §4.6).
		sub, ok := value.(bson.D)
		if !ok {
			return nil, shapeErr("bad_not", "$not requires a document of field operators")
		}
		inner, err := p.Parse(sub)
		if err != nil {
			return nil, err
		}
		return &ast.Logical{Op: ast.LogicalNot, Operands: []ast.Expression{inner}}, nil
	}
	if strings.HasPrefix(key, "$") {
		return nil, unsupported(key)
	}
	path, err := p.idck.FieldPath(key)
	if err != nil {
		return nil, err
	}
	return p.parseFieldCondition(path, value)
}

func (p *Parser) parseLogicalList(op ast.LogicalOp, value any) (ast.Expression, error) {
	arr, ok := value.(bson.A)
	if !ok {
		return nil, shapeErr("bad_logical_arg", fmt.Sprintf("logical operator requires an array argument"))
	}
	var operands []ast.Expression
	for _, item := range arr {
		d, ok := item.(bson.D)
		if !ok {
			return nil, shapeErr("bad_logical_item", "logical operator array items must be documents")
		}
		e, err := p.Parse(d)
		if err != nil {
			return nil, err
		}
		operands = append(operands, e)
	}
	if len(operands) == 0 {
		return nil, shapeErr("empty_logical", "logical operator requires at least one operand")
	}
	return &ast.Logical{Op: op, Operands: operands}, nil
}

// parseFieldCondition handles `{field: value}` and `{field: {$op: value,
// ...}}` shapes, AND-combining multiple operators on the same field.
func (p *Parser) parseFieldCondition(path string, value any) (ast.Expression, error) {
	doc, isDoc := value.(bson.D)
	if !isDoc || !isOperatorDoc(doc) {
		lit, err := p.parseLiteralOrValue(value)
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Op: ast.CmpEQ, Left: p.fieldPath(path), Right: lit}, nil
	}
	var preds []ast.Expression
	for _, el := range doc {
		pred, err := p.parseFieldOperator(path, el.Key, el.Value)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return &ast.Logical{Op: ast.LogicalAnd, Operands: preds}, nil
}

func isOperatorDoc(d bson.D) bool {
	return len(d) > 0 && strings.HasPrefix(d[0].Key, "$")
}

func (p *Parser) parseFieldOperator(path, op string, value any) (ast.Expression, error) {
	fp := p.fieldPath(path)
	switch op {
	case "$eq":
		v, err := p.parseLiteralOrValue(value)
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Op: ast.CmpEQ, Left: fp, Right: v}, nil
	case "$ne":
		v, err := p.parseLiteralOrValue(value)
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Op: ast.CmpNE, Left: fp, Right: v}, nil
	case "$gt", "$gte", "$lt", "$lte":
		v, err := p.parseLiteralOrValue(value)
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Op: compareOpFor(op), Left: fp, Right: v}, nil
	case "$in", "$nin":
		vals, err := p.parseValueArray(value)
		if err != nil {
			return nil, err
		}
		cop := ast.CmpIN
		if op == "$nin" {
			cop = ast.CmpNIN
		}
		return &ast.Comparison{Op: cop, Left: fp, Values: vals}, nil
	case "$exists":
		b, ok := value.(bool)
		if !ok {
			return nil, shapeErr("bad_exists", "$exists requires a boolean argument")
		}
		return &ast.Exists{Path: path, Must: b}, nil
	case "$not":
		// Expression/field context: $not here takes a single
		// sub-expression operator document, not a further field-operator
		// document (spec §4.6 distinguishes this from filter-context $not).
		sub, ok := value.(bson.D)
		if !ok {
			return nil, shapeErr("bad_not", "$not requires an operator document")
		}
		inner, err := p.parseFieldCondition(path, sub)
		if err != nil {
			return nil, err
		}
		return &ast.Logical{Op: ast.LogicalNot, Operands: []ast.Expression{inner}}, nil
	}
	return nil, unsupported(op)
}

func compareOpFor(op string) ast.CompareOp {
	switch op {
	case "$gt":
		return ast.CmpGT
	case "$gte":
		return ast.CmpGTE
	case "$lt":
		return ast.CmpLT
	case "$lte":
		return ast.CmpLTE
	}
	return ast.CmpEQ
}

func (p *Parser) parseValueArray(value any) ([]ast.Expression, error) {
	arr, ok := value.(bson.A)
	if !ok {
		return nil, shapeErr("bad_array", "expected array argument")
	}
	out := make([]ast.Expression, 0, len(arr))
	for _, v := range arr {
		e, err := p.parseLiteralOrValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// parseLiteralOrValue parses a bare value in filter-comparison position:
// could be a literal, or (rarely) a field reference / sub-expression.
func (p *Parser) parseLiteralOrValue(value any) (ast.Expression, error) {
	return p.ParseValue(value)
}

// ParseValue parses an arbitrary value in projection/expression context
// (spec §4.6): strings beginning with "$" are field references, numbers
// and booleans are literals, documents are either operator applications
// (first key begins with "$") or inline object literals, and "$and"/"$or"
// in this context take a plain expression-list argument (no nested
// documents required).
func (p *Parser) ParseValue(value any) (ast.Expression, error) {
	switch v := value.(type) {
	case nil:
		return &ast.Literal{Value: nil}, nil
	case string:
		if strings.HasPrefix(v, "$") {
			path, err := p.idck.FieldPath(v)
			if err != nil {
				return nil, err
			}
			return p.fieldPath(path), nil
		}
		return &ast.Literal{Value: v}, nil
	case bool, int, int32, int64, float64:
		return &ast.Literal{Value: v}, nil
	case bson.A:
		var items []ast.Expression
		for _, item := range v {
			e, err := p.ParseValue(item)
			if err != nil {
				return nil, err
			}
			items = append(items, e)
		}
		return &ast.Literal{Value: items}, nil
	case bson.D:
		return p.parseValueDoc(v)
	default:
		return &ast.Literal{Value: v}, nil
	}
}

func (p *Parser) parseValueDoc(doc bson.D) (ast.Expression, error) {
	if len(doc) == 0 {
		return &ast.InlineObject{}, nil
	}
	if !strings.HasPrefix(doc[0].Key, "$") {
		return p.parseInlineObject(doc)
	}
	if len(doc) != 1 {
		// A document whose first key is an operator but that carries
		// additional sibling keys is ambiguous; the source language never
		// produces this shape for a single operator application.
		return p.parseInlineObject(doc)
	}
	op := doc[0].Key
	arg := doc[0].Value

	// These operators take a document-shaped argument whose fields have
	// distinct roles (condition/regex/replacement/...), not a uniform
	// operand list, so they are parsed before the generic arity-based
	// dispatch below gets a chance to misinterpret the document as an
	// inline-object single operand.
	switch op {
	case "$cond":
		return p.parseCond(arg)
	case "$ifNull":
		return p.parseIfNull(arg)
	case "$regexMatch", "$regexFind":
		return p.parseRegexOp(op, arg)
	case "$replaceOne", "$replaceAll":
		return p.parseReplaceOp(op, arg)
	case "$convert":
		return p.parseConvert(arg)
	case "$filter":
		return p.parseFilterMapOp(ast.ArrFilter, arg)
	case "$map":
		return p.parseFilterMapOp(ast.ArrMap, arg)
	case "$reduce":
		return p.parseReduce(arg)
	case "$mergeObjects":
		return p.parseInlineObjectArg(arg)
	}
	if kind, traits, ok := optoken.Lookup(op); ok {
		return p.parseOperatorApplication(op, kind, traits, arg)
	}
	return nil, unsupported(op)
}

func (p *Parser) parseInlineObject(doc bson.D) (ast.Expression, error) {
	fields := make([]ast.NamedExpr, 0, len(doc))
	for _, el := range doc {
		e, err := p.ParseValue(el.Value)
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.NamedExpr{Name: el.Key, Expr: e})
	}
	return &ast.InlineObject{Fields: fields}, nil
}

func (p *Parser) parseInlineObjectArg(arg any) (ast.Expression, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_mergeObjects", "$mergeObjects requires a document argument")
	}
	return p.parseInlineObject(doc)
}

// parseOperatorApplication dispatches by operator kind class to the
// matching arithmetic/logical/comparison/string/date/array/conversion
// constructor, coercing the argument into an operand list per the
// operator's arity (spec §4.6: accepts a single bare value when
// AllowsSingleOperand, otherwise an array).
func (p *Parser) parseOperatorApplication(op string, kind optoken.Kind, traits optoken.Traits, arg any) (ast.Expression, error) {
	operands, err := p.coerceOperands(arg, traits)
	if err != nil {
		return nil, err
	}
	if err := checkArity(op, traits, len(operands)); err != nil {
		return nil, err
	}
	switch {
	case kind.IsComparison():
		return buildComparison(kind, operands)
	case kind.IsLogical():
		return &ast.Logical{Op: logicalOpFor(kind), Operands: operands}, nil
	case kind.IsArithmetic():
		return &ast.Arithmetic{Op: arithOpFor(kind), Operands: operands}, nil
	case kind.IsString():
		return &ast.StringExpr{Op: stringOpFor(kind), Args: operands}, nil
	case kind.IsDate():
		return &ast.DateExpr{Op: dateOpFor(kind), Arg: operands[0]}, nil
	case kind.IsArray():
		return buildArrayExpr(kind, operands)
	case kind.IsConversion():
		return &ast.TypeConversion{Op: convOpFor(kind), Arg: operands[0]}, nil
	}
	return nil, unsupported(op)
}

func (p *Parser) coerceOperands(arg any, traits optoken.Traits) ([]ast.Expression, error) {
	if arr, ok := arg.(bson.A); ok {
		out := make([]ast.Expression, 0, len(arr))
		for _, v := range arr {
			e, err := p.ParseValue(v)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	}
	e, err := p.ParseValue(arg)
	if err != nil {
		return nil, err
	}
	return []ast.Expression{e}, nil
}

func checkArity(op string, t optoken.Traits, n int) error {
	if n < t.MinArity || (t.MaxArity >= 0 && n > t.MaxArity) {
		return shapeErr("bad_arity", fmt.Sprintf("%s expects between %d and %d arguments, got %d", op, t.MinArity, t.MaxArity, n))
	}
	return nil
}

func buildComparison(kind optoken.Kind, ops []ast.Expression) (ast.Expression, error) {
	cop := map[optoken.Kind]ast.CompareOp{
		optoken.KindEQ: ast.CmpEQ, optoken.KindNE: ast.CmpNE,
		optoken.KindGT: ast.CmpGT, optoken.KindGTE: ast.CmpGTE,
		optoken.KindLT: ast.CmpLT, optoken.KindLTE: ast.CmpLTE,
	}
	if kind == optoken.KindIN || kind == optoken.KindNIN {
		c := ast.CmpIN
		if kind == optoken.KindNIN {
			c = ast.CmpNIN
		}
		return &ast.Comparison{Op: c, Left: ops[0], Values: ops[1:]}, nil
	}
	return &ast.Comparison{Op: cop[kind], Left: ops[0], Right: ops[1]}, nil
}

func logicalOpFor(k optoken.Kind) ast.LogicalOp {
	switch k {
	case optoken.KindAND:
		return ast.LogicalAnd
	case optoken.KindOR:
		return ast.LogicalOr
	case optoken.KindNOT:
		return ast.LogicalNot
	case optoken.KindNOR:
		return ast.LogicalNor
	}
	return ast.LogicalAnd
}

func arithOpFor(k optoken.Kind) ast.ArithmeticOp {
	m := map[optoken.Kind]ast.ArithmeticOp{
		optoken.KindADD: ast.ArithAdd, optoken.KindSUBTRACT: ast.ArithSubtract,
		optoken.KindMULTIPLY: ast.ArithMultiply, optoken.KindDIVIDE: ast.ArithDivide,
		optoken.KindMOD: ast.ArithMod, optoken.KindROUND: ast.ArithRound,
		optoken.KindABS: ast.ArithAbs, optoken.KindCEIL: ast.ArithCeil,
		optoken.KindFLOOR: ast.ArithFloor, optoken.KindTRUNC: ast.ArithTrunc,
		optoken.KindSQRT: ast.ArithSqrt, optoken.KindPOW: ast.ArithPow,
		optoken.KindEXP: ast.ArithExp, optoken.KindLN: ast.ArithLn,
		optoken.KindLOG10: ast.ArithLog10, optoken.KindMAX: ast.ArithMax,
		optoken.KindMIN: ast.ArithMin,
	}
	return m[k]
}

func stringOpFor(k optoken.Kind) ast.StringOp {
	m := map[optoken.Kind]ast.StringOp{
		optoken.KindTOUPPER: ast.StrToUpper, optoken.KindTOLOWER: ast.StrToLower,
		optoken.KindTRIM: ast.StrTrim, optoken.KindLTRIM: ast.StrLTrim,
		optoken.KindRTRIM: ast.StrRTrim, optoken.KindSTRLEN: ast.StrLength,
		optoken.KindCONCAT: ast.StrConcat, optoken.KindSUBSTR: ast.StrSubstr,
		optoken.KindSPLIT: ast.StrSplit, optoken.KindINDEXOFBYTES: ast.StrIndexOf,
	}
	return m[k]
}

func dateOpFor(k optoken.Kind) ast.DateOp {
	m := map[optoken.Kind]ast.DateOp{
		optoken.KindYEAR: ast.DateYear, optoken.KindMONTH: ast.DateMonth,
		optoken.KindDAYOFMONTH: ast.DateDayOfMonth, optoken.KindHOUR: ast.DateHour,
		optoken.KindMINUTE: ast.DateMinute, optoken.KindSECOND: ast.DateSecond,
		optoken.KindDAYOFWEEK: ast.DateDayOfWeek, optoken.KindDAYOFYEAR: ast.DateDayOfYear,
	}
	return m[k]
}

func convOpFor(k optoken.Kind) ast.ConversionOp {
	m := map[optoken.Kind]ast.ConversionOp{
		optoken.KindTYPE: ast.ConvType, optoken.KindTOINT: ast.ConvToInt,
		optoken.KindTOLONG: ast.ConvToLong, optoken.KindTODOUBLE: ast.ConvToDouble,
		optoken.KindTODECIMAL: ast.ConvToDecimal, optoken.KindTOSTRING: ast.ConvToString,
		optoken.KindTOBOOL: ast.ConvToBool, optoken.KindTODATE: ast.ConvToDate,
	}
	return m[k]
}

func buildArrayExpr(k optoken.Kind, ops []ast.Expression) (ast.Expression, error) {
	switch k {
	case optoken.KindARRAYELEMAT:
		return &ast.ArrayExpr{Op: ast.ArrElemAt, Input: ops[0], Index: ops[1]}, nil
	case optoken.KindSIZE:
		return &ast.ArrayExpr{Op: ast.ArrSize, Input: ops[0]}, nil
	case optoken.KindFIRST:
		return &ast.ArrayExpr{Op: ast.ArrFirst, Input: ops[0]}, nil
	case optoken.KindLAST:
		return &ast.ArrayExpr{Op: ast.ArrLast, Input: ops[0]}, nil
	case optoken.KindCONCATARRAYS:
		return &ast.ArrayExpr{Op: ast.ArrConcatArrays, Arrays: ops}, nil
	case optoken.KindSLICE:
		e := &ast.ArrayExpr{Op: ast.ArrSlice, Input: ops[0], Start: ops[1]}
		if len(ops) == 3 {
			e.Count = ops[2]
		}
		return e, nil
	}
	return nil, shapeErr("bad_array_op", "unrecognised array operator shape")
}

// parseCond parses the $cond operator, which the source language allows in
// either array form [if, then, else] or document form
// {if:, then:, else:}.
func (p *Parser) parseCond(arg any) (ast.Expression, error) {
	var ifE, thenE, elseE any
	switch v := arg.(type) {
	case bson.A:
		if len(v) != 3 {
			return nil, shapeErr("bad_cond", "$cond array form requires exactly 3 elements")
		}
		ifE, thenE, elseE = v[0], v[1], v[2]
	case bson.D:
		m := docMap(v)
		var ok1, ok2, ok3 bool
		if ifE, ok1 = m["if"]; !ok1 {
			return nil, shapeErr("bad_cond", "$cond document form requires an \"if\" field")
		}
		if thenE, ok2 = m["then"]; !ok2 {
			return nil, shapeErr("bad_cond", "$cond document form requires a \"then\" field")
		}
		if elseE, ok3 = m["else"]; !ok3 {
			return nil, shapeErr("bad_cond", "$cond document form requires an \"else\" field")
		}
	default:
		return nil, shapeErr("bad_cond", "$cond requires an array or document argument")
	}
	cond, err := p.ParseValue(ifE)
	if err != nil {
		return nil, err
	}
	then, err := p.ParseValue(thenE)
	if err != nil {
		return nil, err
	}
	els, err := p.ParseValue(elseE)
	if err != nil {
		return nil, err
	}
	return &ast.Conditional{Kind: ast.CondIf, Condition: cond, Then: then, Else: els}, nil
}

func (p *Parser) parseIfNull(arg any) (ast.Expression, error) {
	arr, ok := arg.(bson.A)
	if !ok || len(arr) < 2 {
		return nil, shapeErr("bad_ifNull", "$ifNull requires an array of at least 2 elements")
	}
	value, err := p.ParseValue(arr[0])
	if err != nil {
		return nil, err
	}
	replacement, err := p.ParseValue(arr[1])
	if err != nil {
		return nil, err
	}
	return &ast.Conditional{Kind: ast.CondIfNull, Then: value, Else: replacement}, nil
}

func (p *Parser) parseRegexOp(op string, arg any) (ast.Expression, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_regex", op+" requires a document argument")
	}
	m := docMap(doc)
	input, err := p.requireField(m, "input")
	if err != nil {
		return nil, err
	}
	regex, err := p.requireField(m, "regex")
	if err != nil {
		return nil, err
	}
	se := &ast.StringExpr{Input: input, Regex: regex}
	if opts, ok := m["options"]; ok {
		o, err := p.ParseValue(opts)
		if err != nil {
			return nil, err
		}
		se.Options = o
	}
	if op == "$regexMatch" {
		se.Op = ast.StrRegexMatch
	} else {
		se.Op = ast.StrRegexFind
	}
	return se, nil
}

func (p *Parser) parseReplaceOp(op string, arg any) (ast.Expression, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_replace", op+" requires a document argument")
	}
	m := docMap(doc)
	input, err := p.requireField(m, "input")
	if err != nil {
		return nil, err
	}
	find, err := p.requireField(m, "find")
	if err != nil {
		return nil, err
	}
	replacement, err := p.requireField(m, "replacement")
	if err != nil {
		return nil, err
	}
	se := &ast.StringExpr{Input: input, Find: find, Replacement: replacement}
	if op == "$replaceOne" {
		se.Op = ast.StrReplaceOne
	} else {
		se.Op = ast.StrReplaceAll
	}
	return se, nil
}

func (p *Parser) parseConvert(arg any) (ast.Expression, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_convert", "$convert requires a document argument")
	}
	m := docMap(doc)
	input, err := p.requireField(m, "input")
	if err != nil {
		return nil, err
	}
	tc := &ast.TypeConversion{Op: ast.ConvConvert, Input: input}
	if v, ok := m["onError"]; ok {
		e, err := p.ParseValue(v)
		if err != nil {
			return nil, err
		}
		tc.OnError = e
	}
	if v, ok := m["onNull"]; ok {
		e, err := p.ParseValue(v)
		if err != nil {
			return nil, err
		}
		tc.OnNull = e
	}
	return tc, nil
}

// parseFilterMapOp parses $filter's {input, as, cond} and $map's {input, as,
// in} shapes. The "as" variable name is not modelled separately: nested
// field references inside cond/in that use the "$$var" syntax are out of
// scope (spec non-goal), so cond/in are parsed as ordinary expressions
// evaluated against the outer document.
func (p *Parser) parseFilterMapOp(op ast.ArrayOp, arg any) (ast.Expression, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_filter_map", "requires a document argument")
	}
	m := docMap(doc)
	input, err := p.requireField(m, "input")
	if err != nil {
		return nil, err
	}
	key := "cond"
	if op == ast.ArrMap {
		key = "in"
	}
	condOrIn, err := p.requireField(m, key)
	if err != nil {
		return nil, err
	}
	return &ast.ArrayExpr{Op: op, Input: input, Cond: condOrIn}, nil
}

func (p *Parser) parseReduce(arg any) (ast.Expression, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_reduce", "$reduce requires a document argument")
	}
	m := docMap(doc)
	input, err := p.requireField(m, "input")
	if err != nil {
		return nil, err
	}
	initial, err := p.requireField(m, "initialValue")
	if err != nil {
		return nil, err
	}
	e := &ast.ArrayExpr{Op: ast.ArrReduce, Input: input, Initial: initial}
	if v, ok := m["in"]; ok {
		e.Combiner = detectReduceCombiner(v)
	}
	return e, nil
}

// detectReduceCombiner structurally recognises $reduce's "in" expression as
// one of the two idioms the renderer supports, without parsing it as a
// general Expression (it would fail: "$$value"/"$$this" are not valid
// outer-document field paths). Anything else, including a valid but
// unrecognised combiner, is ast.ReduceUnrecognized.
func detectReduceCombiner(in any) ast.ReduceCombiner {
	doc, ok := in.(bson.D)
	if !ok || len(doc) != 1 {
		return ast.ReduceUnrecognized
	}
	arr, ok := doc[0].Value.(bson.A)
	if !ok || len(arr) != 2 {
		return ast.ReduceUnrecognized
	}
	a, aok := arr[0].(string)
	b, bok := arr[1].(string)
	if !aok || !bok {
		return ast.ReduceUnrecognized
	}
	isValueThisPair := (a == "$$value" && b == "$$this") || (a == "$$this" && b == "$$value")
	if !isValueThisPair {
		return ast.ReduceUnrecognized
	}
	switch doc[0].Key {
	case "$add":
		return ast.ReduceSum
	case "$concat":
		return ast.ReduceConcat
	default:
		return ast.ReduceUnrecognized
	}
}

func (p *Parser) requireField(m map[string]any, key string) (ast.Expression, error) {
	v, ok := m[key]
	if !ok {
		return nil, shapeErr("missing_field", fmt.Sprintf("missing required field %q", key))
	}
	return p.ParseValue(v)
}

func docMap(d bson.D) map[string]any {
	m := make(map[string]any, len(d))
	for _, el := range d {
		m[el.Key] = el.Value
	}
	return m
}
