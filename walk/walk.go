// Package walk provides depth-first traversal over the expression AST, the
// way the teacher's visitor package traverses the SQL AST. It is used
// internally by the pipeline renderer's post-window-match classification
// (a recursive scan for field-path references) and is exported so an
// external optimiser pass operating on the same AST has a shared traversal
// primitive rather than reimplementing one.
package walk

import "github.com/aggquery/aggquery/ast"

// VisitFunc is called once per node in the traversal. Returning false skips
// that node's children only; the node's siblings and the rest of the tree
// are still visited, matching the teacher's Visit-returns-nil-to-stop
// convention.
type VisitFunc func(ast.Expression) bool

// Walk recursively visits expr and every expression it contains. A nil
// expr is a no-op, matching the teacher's Walk(nil) behaviour.
func Walk(expr ast.Expression, visit VisitFunc) {
	if expr == nil {
		return
	}
	if !visit(expr) {
		return
	}
	switch e := expr.(type) {
	case *ast.Literal, *ast.FieldPath, *ast.Exists:
		// leaves
	case *ast.Comparison:
		Walk(e.Left, visit)
		Walk(e.Right, visit)
		for _, v := range e.Values {
			Walk(v, visit)
		}
	case *ast.Logical:
		for _, op := range e.Operands {
			Walk(op, visit)
		}
	case *ast.Arithmetic:
		for _, op := range e.Operands {
			Walk(op, visit)
		}
	case *ast.Conditional:
		Walk(e.Condition, visit)
		Walk(e.Then, visit)
		Walk(e.Else, visit)
	case *ast.StringExpr:
		for _, a := range e.Args {
			Walk(a, visit)
		}
		Walk(e.Input, visit)
		Walk(e.Regex, visit)
		Walk(e.Options, visit)
		Walk(e.Find, visit)
		Walk(e.Replacement, visit)
	case *ast.DateExpr:
		Walk(e.Arg, visit)
	case *ast.ArrayExpr:
		Walk(e.Input, visit)
		Walk(e.Index, visit)
		for _, a := range e.Arrays {
			Walk(a, visit)
		}
		Walk(e.Start, visit)
		Walk(e.Count, visit)
		Walk(e.Cond, visit)
		Walk(e.Initial, visit)
	case *ast.Accumulator:
		Walk(e.Arg, visit)
	case *ast.TypeConversion:
		Walk(e.Arg, visit)
		Walk(e.Input, visit)
		Walk(e.OnError, visit)
		Walk(e.OnNull, visit)
	case *ast.InlineObject:
		for _, f := range e.Fields {
			Walk(f.Expr, visit)
		}
	case *ast.CompoundId:
		for _, f := range e.Fields {
			Walk(f.Expr, visit)
		}
	}
}

// CollectFieldPaths returns every field path referenced anywhere within
// expr, in visitation order, duplicates included.
func CollectFieldPaths(expr ast.Expression) []string {
	var paths []string
	Walk(expr, func(e ast.Expression) bool {
		if fp, ok := e.(*ast.FieldPath); ok {
			paths = append(paths, fp.Path)
		}
		return true
	})
	return paths
}
