package render

import (
	"fmt"

	"github.com/aggquery/aggquery/ast"
)

// renderFrame implements the $setWindowFields framing state machine (spec
// §4.4.1): a (frame-unit, lower-bound, upper-bound) triple where each
// bound is one of {unbounded, current, <integer>}.
func renderFrame(c *Context, f *ast.Frame) {
	unit := "ROWS"
	if f.Unit == ast.FrameRange {
		unit = "RANGE"
	}
	fmt.Fprintf(&c.buf, " %s BETWEEN %s AND %s", unit, renderBound(f.Lower, false), renderBound(f.Upper, true))
}

func renderBound(b ast.Bound, upper bool) string {
	switch b.Kind {
	case ast.BoundUnbounded:
		if upper {
			return "UNBOUNDED FOLLOWING"
		}
		return "UNBOUNDED PRECEDING"
	case ast.BoundCurrent:
		return "CURRENT ROW"
	case ast.BoundOffset:
		n := b.OffsetRows
		if n == 0 {
			return "CURRENT ROW"
		}
		if upper {
			if n < 0 {
				n = -n
			}
			return fmt.Sprintf("%d FOLLOWING", n)
		}
		if n < 0 {
			n = -n
		}
		return fmt.Sprintf("%d PRECEDING", n)
	}
	return "CURRENT ROW"
}

// renderWindowOutput renders one $setWindowFields output entry as an
// analytic function with an OVER clause, given the stage's shared
// partition/sort fields.
func renderWindowOutput(c *Context, alias string, w ast.WindowOutput, partition ast.Expression, sortBy []ast.SortField) {
	switch w.Op {
	case ast.WinRank:
		c.write("RANK()")
	case ast.WinDenseRank:
		c.write("DENSE_RANK()")
	case ast.WinRowNumber:
		c.write("ROW_NUMBER()")
	default:
		c.write(windowAggFuncName(w.Op))
		c.writeByte('(')
		if w.Arg != nil {
			RenderExpression(c, w.Arg)
		} else {
			c.write("*")
		}
		c.writeByte(')')
	}
	c.write(" OVER (")
	wrote := false
	if partition != nil {
		c.write("PARTITION BY ")
		RenderExpression(c, partition)
		wrote = true
	}
	if len(sortBy) > 0 {
		if wrote {
			c.write(" ")
		}
		c.write("ORDER BY ")
		for i, sf := range sortBy {
			if i > 0 {
				c.write(", ")
			}
			writeFieldPathAccess(c, alias, sf.Path, ast.HintNone)
			if sf.Descending {
				c.write(" DESC")
			}
		}
	}
	if w.Frame != nil {
		renderFrame(c, w.Frame)
	}
	c.writeByte(')')
}

func windowAggFuncName(op ast.WindowOp) string {
	switch op {
	case ast.WinSum:
		return "SUM"
	case ast.WinAvg:
		return "AVG"
	case ast.WinCount:
		return "COUNT"
	case ast.WinMin:
		return "MIN"
	case ast.WinMax:
		return "MAX"
	case ast.WinFirst:
		return "FIRST_VALUE"
	case ast.WinLast:
		return "LAST_VALUE"
	case ast.WinPush, ast.WinAddToSet:
		return "JSON_ARRAYAGG"
	}
	return "/* unsupported window op */NULL"
}
