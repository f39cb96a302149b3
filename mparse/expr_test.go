package mparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/aggquery/aggquery/ast"
)

func TestParseSimpleEquality(t *testing.T) {
	p := New()
	expr, err := p.Parse(bson.D{{Key: "status", Value: "active"}})
	require.NoError(t, err)
	cmp, ok := expr.(*ast.Comparison)
	require.True(t, ok)
	assert.Equal(t, ast.CmpEQ, cmp.Op)
	fp, ok := cmp.Left.(*ast.FieldPath)
	require.True(t, ok)
	assert.Equal(t, "status", fp.Path)
}

func TestParseComparisonOperators(t *testing.T) {
	p := New()
	expr, err := p.Parse(bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: int32(18)}}}})
	require.NoError(t, err)
	cmp := expr.(*ast.Comparison)
	assert.Equal(t, ast.CmpGTE, cmp.Op)
}

func TestParseImplicitAndAcrossFields(t *testing.T) {
	p := New()
	expr, err := p.Parse(bson.D{
		{Key: "status", Value: "active"},
		{Key: "age", Value: bson.D{{Key: "$gt", Value: int32(21)}}},
	})
	require.NoError(t, err)
	and, ok := expr.(*ast.Logical)
	require.True(t, ok)
	assert.Equal(t, ast.LogicalAnd, and.Op)
	assert.Len(t, and.Operands, 2)
}

func TestParseTopLevelAndOr(t *testing.T) {
	p := New()
	expr, err := p.Parse(bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "a", Value: 1}},
		bson.D{{Key: "b", Value: 2}},
	}}})
	require.NoError(t, err)
	or := expr.(*ast.Logical)
	assert.Equal(t, ast.LogicalOr, or.Op)
	assert.Len(t, or.Operands, 2)
}

func TestParseInAndNinEmptyArray(t *testing.T) {
	p := New()
	expr, err := p.Parse(bson.D{{Key: "tag", Value: bson.D{{Key: "$in", Value: bson.A{}}}}})
	require.NoError(t, err)
	cmp := expr.(*ast.Comparison)
	assert.Equal(t, ast.CmpIN, cmp.Op)
	assert.Empty(t, cmp.Values)
}

func TestParseExists(t *testing.T) {
	p := New()
	expr, err := p.Parse(bson.D{{Key: "optionalField", Value: bson.D{{Key: "$exists", Value: true}}}})
	require.NoError(t, err)
	ex := expr.(*ast.Exists)
	assert.Equal(t, "optionalField", ex.Path)
	assert.True(t, ex.Must)
}

func TestParseValueFieldReference(t *testing.T) {
	p := New()
	expr, err := p.ParseValue("$total")
	require.NoError(t, err)
	fp := expr.(*ast.FieldPath)
	assert.Equal(t, "total", fp.Path)
}

func TestParseValueArithmeticOperator(t *testing.T) {
	p := New()
	expr, err := p.ParseValue(bson.D{{Key: "$add", Value: bson.A{"$a", "$b"}}})
	require.NoError(t, err)
	ar := expr.(*ast.Arithmetic)
	assert.Equal(t, ast.ArithAdd, ar.Op)
	assert.Len(t, ar.Operands, 2)
}

func TestParseValueSingleOperandArithmeticAllowsBareArg(t *testing.T) {
	p := New()
	expr, err := p.ParseValue(bson.D{{Key: "$abs", Value: "$delta"}})
	require.NoError(t, err)
	ar := expr.(*ast.Arithmetic)
	assert.Equal(t, ast.ArithAbs, ar.Op)
	assert.Len(t, ar.Operands, 1)
}

func TestParseValueCondArrayForm(t *testing.T) {
	p := New()
	expr, err := p.ParseValue(bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$gt", Value: bson.A{"$qty", int32(100)}}},
		"big",
		"small",
	}}})
	require.NoError(t, err)
	cond := expr.(*ast.Conditional)
	assert.Equal(t, ast.CondIf, cond.Kind)
}

func TestParseValueCondDocumentForm(t *testing.T) {
	p := New()
	expr, err := p.ParseValue(bson.D{{Key: "$cond", Value: bson.D{
		{Key: "if", Value: bson.D{{Key: "$gt", Value: bson.A{"$qty", int32(100)}}}},
		{Key: "then", Value: "big"},
		{Key: "else", Value: "small"},
	}}})
	require.NoError(t, err)
	cond := expr.(*ast.Conditional)
	assert.Equal(t, ast.CondIf, cond.Kind)
}

func TestParseValueIfNull(t *testing.T) {
	p := New()
	expr, err := p.ParseValue(bson.D{{Key: "$ifNull", Value: bson.A{"$nickname", "anonymous"}}})
	require.NoError(t, err)
	cond := expr.(*ast.Conditional)
	assert.Equal(t, ast.CondIfNull, cond.Kind)
}

func TestParseValueInlineObject(t *testing.T) {
	p := New()
	expr, err := p.ParseValue(bson.D{{Key: "x", Value: 1}, {Key: "y", Value: "$field"}})
	require.NoError(t, err)
	obj := expr.(*ast.InlineObject)
	assert.Len(t, obj.Fields, 2)
}

func TestParseValueRegexMatch(t *testing.T) {
	p := New()
	expr, err := p.ParseValue(bson.D{{Key: "$regexMatch", Value: bson.D{
		{Key: "input", Value: "$name"},
		{Key: "regex", Value: "^A"},
	}}})
	require.NoError(t, err)
	se := expr.(*ast.StringExpr)
	assert.Equal(t, ast.StrRegexMatch, se.Op)
}

func TestParseValueFilterOp(t *testing.T) {
	p := New()
	expr, err := p.ParseValue(bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: "$items"},
		{Key: "cond", Value: bson.D{{Key: "$gt", Value: bson.A{"$$this", int32(0)}}}},
	}}})
	require.NoError(t, err)
	ae := expr.(*ast.ArrayExpr)
	assert.Equal(t, ast.ArrFilter, ae.Op)
}

func TestParseValueUnsupportedOperatorReturnsUnsupportedOp(t *testing.T) {
	p := New()
	_, err := p.ParseValue(bson.D{{Key: "$setUnion", Value: bson.A{}}})
	require.Error(t, err)
	me, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, "$setUnion", me.UnsupportedOp)
}

func TestParseRejectsUnrecognizedTopLevelOperatorKey(t *testing.T) {
	p := New()
	_, err := p.Parse(bson.D{{Key: "$dangerous", Value: 1}})
	require.Error(t, err)
	me, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, "$dangerous", me.UnsupportedOp)
}

func TestParseRejectsInvalidFieldPath(t *testing.T) {
	p := New()
	_, err := p.Parse(bson.D{{Key: "bad..path", Value: 1}})
	assert.Error(t, err)
}
