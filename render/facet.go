package render

import (
	"fmt"

	"github.com/aggquery/aggquery/ast"
)

// renderFacet implements spec §4.8.3: each facet produces a scalar
// subquery placed inside an outer JSON_OBJECT, with two special-case
// recognisers (a $count-only facet, and a $skip/$limit-only facet that
// paginates a parent $group) plus a post-facet $project reshape.
func renderFacet(ctx *Context, collection string, cl *classification) error {
	facet := cl.facet
	parentGroup := cl.group
	cl.facet = nil

	if cl.postFacetProject != nil {
		return renderFacetWithPostProject(ctx, collection, cl, facet, parentGroup)
	}

	ctx.writeLeadingKeyword("SELECT")
	ctx.write(" JSON_OBJECT(")
	for i, nf := range facet.Facets {
		if i > 0 {
			ctx.write(", ")
		}
		fmt.Fprintf(&ctx.buf, "'%s' VALUE (", nf.Name)
		if err := renderFacetBranch(ctx, collection, cl, parentGroup, nf); err != nil {
			return err
		}
		ctx.write(")")
	}
	ctx.write(fmt.Sprintf(") AS %s FROM DUAL", ctx.cfg.DataColumn))
	return nil
}

// renderFacetWithPostProject reshapes the facet output via a post-facet
// $project: JSON_VALUE extraction for count facets, JSON_TABLE projection
// for facets exposing nested fields (spec §4.8.3 last bullet).
func renderFacetWithPostProject(ctx *Context, collection string, cl *classification, facet *ast.Facet, parentGroup *ast.Group) error {
	proj := cl.postFacetProject
	cl.postFacetProject = nil

	ctx.writeLeadingKeyword("SELECT")
	ctx.writeByte(' ')
	for i, f := range proj.Fields {
		if i > 0 {
			ctx.write(", ")
		}
		nf, isCount := facetNamed(facet, f.Name)
		if isCount && isCountOnlyFacet(nf.Pipeline) {
			ctx.write("JSON_VALUE((")
			if err := renderFacetBranch(ctx, collection, cl, parentGroup, nf); err != nil {
				return err
			}
			fmt.Fprintf(&ctx.buf, "), '$[0].%s')", countFieldName(nf.Pipeline))
		} else {
			ctx.write("JSON_QUERY((")
			if err := renderFacetBranch(ctx, collection, cl, parentGroup, nf); err != nil {
				return err
			}
			ctx.write("), '$')")
		}
		fmt.Fprintf(&ctx.buf, " AS %q", f.Name)
	}
	ctx.write(" FROM DUAL")
	return nil
}

func facetNamed(facet *ast.Facet, name string) (ast.NamedFacet, bool) {
	for _, nf := range facet.Facets {
		if nf.Name == name {
			return nf, isCountOnlyFacet(nf.Pipeline)
		}
	}
	return ast.NamedFacet{}, false
}

func isCountOnlyFacet(pipeline []ast.Stage) bool {
	return len(pipeline) == 1 && isCountStage(pipeline[0])
}

func isCountStage(s ast.Stage) bool {
	_, ok := s.(*ast.Count)
	return ok
}

func countFieldName(pipeline []ast.Stage) string {
	if c, ok := pipeline[0].(*ast.Count); ok {
		return c.Field
	}
	return "count"
}

// renderFacetBranch emits one facet's scalar subquery. A $count-only
// sub-pipeline inherits the parent's matches/group and counts the
// resulting rows; a $skip/$limit-only sub-pipeline when the parent has a
// $group paginates the grouped result; otherwise the sub-pipeline is
// rendered as an ordinary nested pipeline producing a JSON_ARRAYAGG.
func renderFacetBranch(ctx *Context, collection string, parentCl *classification, parentGroup *ast.Group, nf ast.NamedFacet) error {
	if isCountOnlyFacet(nf.Pipeline) {
		field := countFieldName(nf.Pipeline)
		fmt.Fprintf(&ctx.buf, "SELECT JSON_ARRAYAGG(JSON_OBJECT('%s' VALUE cnt) RETURNING CLOB) FROM (SELECT COUNT(*) AS cnt FROM (", field)
		if err := renderStandard(ctx, collection, cloneForFacetCount(parentCl)); err != nil {
			return err
		}
		ctx.write(") base_rows)")
		return nil
	}
	if isPaginationOnlyFacet(nf.Pipeline) && parentGroup != nil {
		skip, limit := paginationOf(nf.Pipeline)
		ctx.write("SELECT JSON_ARRAYAGG(VALUE(jt) RETURNING CLOB) FROM (")
		if err := renderStandard(ctx, collection, parentClWithGroupPagination(parentCl, skip, limit)); err != nil {
			return err
		}
		ctx.write(") jt")
		return nil
	}
	// General case: the sub-pipeline's own terminal stage already decides
	// its SQL shape (most commonly the JSON-aggregation wrap, shape 7, for
	// a facet ending in $project), so the facet slot only needs to embed
	// that rendering as a scalar subquery (spec §4.8.3's general form).
	sub := &ast.Pipeline{Collection: collection, Stages: nf.Pipeline}
	inner := NewContext(ctx.cfg, ctx.opts)
	inner.opts.OracleHints = nil // hint belongs on the outermost statement's keyword only
	inner.bindN = ctx.bindN
	inner.aliasN = ctx.aliasN
	if _, err := Render(inner, sub); err != nil {
		return err
	}
	ctx.write(inner.SQL())
	ctx.binds = append(ctx.binds, inner.binds...)
	ctx.bindN = inner.bindN
	ctx.aliasN = inner.aliasN
	return nil
}

func cloneForFacetCount(cl *classification) *classification {
	clone := *cl
	clone.facet = nil
	clone.postFacetProject = nil
	clone.sort = nil
	clone.limit = nil
	clone.skip = nil
	return &clone
}

func parentClWithGroupPagination(cl *classification, skip *ast.Skip, limit *ast.Limit) *classification {
	clone := *cl
	clone.facet = nil
	clone.postFacetProject = nil
	clone.skip = skip
	clone.limit = limit
	return &clone
}

func isPaginationOnlyFacet(pipeline []ast.Stage) bool {
	for _, s := range pipeline {
		switch s.(type) {
		case *ast.Skip, *ast.Limit:
		default:
			return false
		}
	}
	return len(pipeline) > 0
}

func paginationOf(pipeline []ast.Stage) (*ast.Skip, *ast.Limit) {
	var skip *ast.Skip
	var limit *ast.Limit
	for _, s := range pipeline {
		switch v := s.(type) {
		case *ast.Skip:
			skip = v
		case *ast.Limit:
			limit = v
		}
	}
	return skip, limit
}
