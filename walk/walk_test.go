package walk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aggquery/aggquery/ast"
)

func TestCollectFieldPathsFindsNestedPaths(t *testing.T) {
	expr := &ast.Comparison{
		Op:   ast.CmpEQ,
		Left: &ast.Arithmetic{Op: ast.ArithAdd, Operands: []ast.Expression{&ast.FieldPath{Path: "a"}, &ast.FieldPath{Path: "b"}}},
		Right: &ast.Literal{Value: 5},
	}
	paths := CollectFieldPaths(expr)
	assert.ElementsMatch(t, []string{"a", "b"}, paths)
}

func TestWalkStopsDescendingWhenVisitorReturnsFalse(t *testing.T) {
	expr := &ast.Logical{Op: ast.LogicalAnd, Operands: []ast.Expression{
		&ast.FieldPath{Path: "skip.me"},
		&ast.FieldPath{Path: "visit.me"},
	}}
	var visited []string
	Walk(expr, func(n ast.Expression) bool {
		if fp, ok := n.(*ast.FieldPath); ok {
			visited = append(visited, fp.Path)
			return fp.Path != "skip.me"
		}
		return true
	})
	assert.Contains(t, visited, "skip.me")
	assert.Contains(t, visited, "visit.me")
}

func TestWalkNilIsNoOp(t *testing.T) {
	called := false
	Walk(nil, func(ast.Expression) bool {
		called = true
		return true
	})
	assert.False(t, called)
}

func TestCollectFieldPathsThroughInlineObjectAndCompoundId(t *testing.T) {
	obj := &ast.InlineObject{Fields: []ast.NamedExpr{
		{Name: "x", Expr: &ast.FieldPath{Path: "p.q"}},
	}}
	assert.Equal(t, []string{"p.q"}, CollectFieldPaths(obj))

	id := &ast.CompoundId{Fields: []ast.NamedExpr{
		{Name: "y", Expr: &ast.FieldPath{Path: "r.s"}},
	}}
	assert.Equal(t, []string{"r.s"}, CollectFieldPaths(id))
}
