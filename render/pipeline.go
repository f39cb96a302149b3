package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aggquery/aggquery/ast"
)

// Render is the pipeline renderer's entry point (spec §4.8): classify the
// stage sequence once, then dispatch to one of the emission procedures in
// precedence order (§4.8.2). It returns the same *Context it was given,
// now holding the emitted SQL and bind list, for caller convenience.
func Render(ctx *Context, p *ast.Pipeline) (*Context, error) {
	ctx.baseAlias = ctx.nextAlias()
	cl := classify(p.Stages)

	switch {
	case cl.out != nil:
		return ctx, renderOut(ctx, p.Collection, cl)
	case cl.merge != nil:
		return ctx, renderMerge(ctx, p.Collection, cl)
	default:
		return ctx, renderSelectBody(ctx, p.Collection, cl)
	}
}

// renderOut implements shape 1: INSERT INTO <target> (<data>) <select>,
// where <select> is produced by recursing on the same classification with
// the $out slot cleared (spec §4.8.2 item 1).
func renderOut(ctx *Context, collection string, cl *classification) error {
	out := cl.out
	cl.out = nil
	target := out.Into
	if out.IntoDB != "" {
		target = out.IntoDB + "." + target
	}
	ctx.writeLeadingKeyword("INSERT INTO")
	fmt.Fprintf(&ctx.buf, " %s (%s) ", target, ctx.cfg.DataColumn)
	return renderSelectBody(ctx, collection, cl)
}

// renderMerge implements shape 2 (spec §4.8.2 item 2).
func renderMerge(ctx *Context, collection string, cl *classification) error {
	merge := cl.merge
	cl.merge = nil
	on := merge.On
	if len(on) == 0 {
		on = []string{"_id"}
	}
	target := merge.Into
	if merge.IntoDB != "" {
		target = merge.IntoDB + "." + target
	}
	ctx.writeLeadingKeyword("MERGE INTO")
	fmt.Fprintf(&ctx.buf, " %s t USING (", target)
	if err := renderSelectBody(ctx, collection, cl); err != nil {
		return err
	}
	ctx.write(") s ON (")
	for i, field := range on {
		if i > 0 {
			ctx.write(" AND ")
		}
		fmt.Fprintf(&ctx.buf, "JSON_VALUE(t.%s, '$.%s') = JSON_VALUE(s.%s, '$.%s')",
			ctx.cfg.DataColumn, field, ctx.cfg.DataColumn, field)
	}
	ctx.write(")")
	switch merge.WhenMatched {
	case ast.MergeReplace, ast.MergeMerge:
		fmt.Fprintf(&ctx.buf, " WHEN MATCHED THEN UPDATE SET t.%s = s.%s", ctx.cfg.DataColumn, ctx.cfg.DataColumn)
	case ast.MergeKeepExisting:
		// no UPDATE clause: existing row is left untouched
	case ast.MergeFail:
		ctx.write(" /* whenMatched: fail is not enforceable within a MERGE statement */")
	}
	switch merge.WhenNotMatched {
	case ast.MergeInsert:
		fmt.Fprintf(&ctx.buf, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (s.%s)", ctx.cfg.DataColumn, ctx.cfg.DataColumn)
	case ast.MergeDiscard:
		// no INSERT clause
	case ast.MergeFailNotMatched:
		ctx.write(" /* whenNotMatched: fail is not enforceable within a MERGE statement */")
	}
	return nil
}

// renderSelectBody dispatches shapes 3 through 8 (spec §4.8.2 items 3-8).
func renderSelectBody(ctx *Context, collection string, cl *classification) error {
	switch {
	case cl.hasPostUnionGroup:
		return renderPostUnionGroupWrap(ctx, collection, cl)
	case cl.hasPostWindowMatch:
		return renderPostWindowWrap(ctx, collection, cl)
	case cl.hasPostGroupAddFields:
		return renderPostGroupAddFieldsWrap(ctx, collection, cl)
	case cl.bucketAuto != nil:
		return renderBucketAutoWrap(ctx, collection, cl)
	case cl.facet != nil:
		return renderFacet(ctx, collection, cl)
	case isPlainProjectShape(cl):
		return renderJSONAggregationWrap(ctx, collection, cl)
	default:
		return renderStandard(ctx, collection, cl)
	}
}

// isPlainProjectShape recognises spec §4.8.2 item 7: a project stage
// present, no group/facet/count/bucket/bucketAuto/replaceRoot, no union.
// Whether the pipeline is itself a union branch is not checked; each branch
// is rendered through Render with a fresh Context.
func isPlainProjectShape(cl *classification) bool {
	return cl.project != nil &&
		cl.group == nil && cl.facet == nil && cl.count == nil &&
		cl.bucket == nil && cl.bucketAuto == nil && cl.replaceRoot == nil &&
		len(cl.unions) == 0
}

// prepareRegistries populates the virtual-field, lookup, and unwind
// registries ahead of emission (spec §4.5), and resolves the $unwind x
// $lookup suppression rule (spec §4.8.4): an $unwind whose path is a
// preceding $lookup's As name (or a child of it) must not get its own
// JSON_TABLE join, since the join already produces the right multiplicity.
func prepareRegistries(ctx *Context, cl *classification) (suppressedUnwind map[int]bool) {
	for _, af := range cl.addFields {
		for _, f := range af.Fields {
			ctx.virtualFields[f.Name] = f.Expr
		}
	}
	for _, lk := range cl.lookups {
		ctx.lookups[lk.As] = &lookupBinding{
			From:    lk.From,
			Local:   lk.Local,
			Foreign: lk.Foreign,
			Alias:   ctx.nextAlias(),
		}
	}
	suppressedUnwind = map[int]bool{}
	for i, uw := range cl.unwinds {
		isLookupAs := false
		for as := range ctx.lookups {
			if uw.Path == as || hasPrefixPath(uw.Path, as) {
				isLookupAs = true
				break
			}
		}
		if isLookupAs {
			suppressedUnwind[i] = true
			continue
		}
		alias := ctx.nextAlias()
		ctx.unwindAlias[uw.Path] = alias
		if uw.IncludeArrayIndex != "" {
			ctx.unwindIndexAlias[uw.IncludeArrayIndex] = alias
		}
	}
	return suppressedUnwind
}

func hasPrefixPath(path, prefix string) bool {
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '.'
}

// renderFrom emits "FROM <collection> <alias>" plus lookup joins (skipping
// consumed ones), unwind JSON_TABLE joins, and graphLookup LATERAL joins.
func renderFrom(ctx *Context, collection string, cl *classification, suppressedUnwind map[int]bool) error {
	fmt.Fprintf(&ctx.buf, "FROM %s %s", ctx.qualifiedTable(collection), ctx.baseAlias)
	for _, lk := range cl.lookups {
		lb := ctx.lookups[lk.As]
		if lb.Consumed {
			continue
		}
		fmt.Fprintf(&ctx.buf, " LEFT OUTER JOIN %s %s ON %s.%s = %s.%s",
			ctx.qualifiedTable(lk.From), lb.Alias,
			ctx.dataRef(lb.Alias), quoteDotPath(lk.Foreign),
			ctx.dataRef(ctx.baseAlias), quoteDotPath(lk.Local))
	}
	for i, uw := range cl.unwinds {
		if suppressedUnwind[i] {
			continue
		}
		alias := ctx.unwindAlias[uw.Path]
		cols := "val VARCHAR2(4000) PATH '$'"
		if uw.IncludeArrayIndex != "" {
			cols = fmt.Sprintf("%q FOR ORDINALITY, ", uw.IncludeArrayIndex) + cols
		}
		if uw.PreserveNullAndEmptyArrays {
			fmt.Fprintf(&ctx.buf, " LEFT OUTER JOIN JSON_TABLE(%s, '$.%s[*]' COLUMNS (%s)) %s ON 1=1",
				ctx.dataRef(ctx.baseAlias), quoteDotPath(uw.Path), cols, alias)
			continue
		}
		fmt.Fprintf(&ctx.buf, ", JSON_TABLE(%s, '$.%s[*]' COLUMNS (%s)) %s",
			ctx.dataRef(ctx.baseAlias), quoteDotPath(uw.Path), cols, alias)
	}
	for _, gl := range cl.graphLookups {
		if err := renderGraphLookupJoin(ctx, gl); err != nil {
			return err
		}
	}
	return nil
}

// renderGraphLookupJoin implements spec §4.4.3: a maxDepth=0 LATERAL
// aggregate join when supported. Recursive $graphLookup (maxDepth nil or
// >0) has no single-query Oracle equivalent; under Options.Strict this
// returns a StrictModeError, which the root facade reports as an
// UnsupportedOperatorError, otherwise it degrades to an empty-result
// LATERAL placeholder with an explanatory comment.
func renderGraphLookupJoin(ctx *Context, gl *ast.GraphLookup) error {
	alias := ctx.nextAlias()
	if gl.MaxDepth != nil && *gl.MaxDepth == 0 {
		fmt.Fprintf(&ctx.buf, " LEFT OUTER JOIN LATERAL (SELECT JSON_ARRAYAGG(g.%s) AS agg FROM %s g WHERE g.%s.%s = ",
			ctx.cfg.DataColumn, ctx.qualifiedTable(gl.From),
			ctx.cfg.DataColumn, quoteDotPath(gl.ConnectToField))
		RenderExpression(ctx, gl.StartWith)
		if gl.RestrictSearchWithMatch != nil {
			ctx.write(" AND ")
			RenderExpression(ctx, gl.RestrictSearchWithMatch)
		}
		fmt.Fprintf(&ctx.buf, ") %s ON 1=1", alias)
		return nil
	}
	if ctx.opts.Strict {
		return &StrictModeError{Stage: "$graphLookup", Reason: fmt.Sprintf("recursive lookup (as %q) has no Oracle equivalent", gl.As)}
	}
	ctx.write(" /* unsupported: recursive $graphLookup, emitting empty result */")
	fmt.Fprintf(&ctx.buf, " LEFT OUTER JOIN LATERAL (SELECT JSON_ARRAY() AS agg FROM DUAL) %s ON 1=1", alias)
	return nil
}

// renderWhere emits the WHERE clause from AND-combined match filters
// (pre-window matches only reach here; post-window matches are handled by
// the outer wrap) followed by $redact exclusions (spec §4.8.5: redact
// filters append after match filters, before GROUP BY).
func renderWhere(ctx *Context, matches []*ast.Match, redacts []*ast.Redact) {
	var preds []ast.Expression
	for _, m := range matches {
		preds = append(preds, m.Filter)
	}
	if len(preds) == 0 && len(redacts) == 0 {
		return
	}
	ctx.write(" WHERE ")
	first := true
	for _, p := range preds {
		if !first {
			ctx.write(" AND ")
		}
		RenderExpression(ctx, p)
		first = false
	}
	for _, r := range redacts {
		if !first {
			ctx.write(" AND ")
		}
		RenderExpression(ctx, r.Expr)
		ctx.write(" != '$$PRUNE'")
		first = false
	}
}

func renderGroupBy(ctx *Context, g *ast.Group) {
	if g == nil || g.Id == nil {
		return
	}
	ctx.write(" GROUP BY ")
	RenderExpression(ctx, g.Id)
}

func renderOrderByLimit(ctx *Context, sort *ast.Sort, skip *ast.Skip, limit *ast.Limit, sample *ast.Sample, columnMode bool) {
	if sample != nil {
		if ctx.cfg.Dialect.SupportsNativeSample() {
			fmt.Fprintf(&ctx.buf, " SAMPLE(%d)", sampleBlockPercent(sample.Size))
		} else {
			ctx.write(" ORDER BY DBMS_RANDOM.VALUE")
		}
		fmt.Fprintf(&ctx.buf, " FETCH FIRST %d ROWS ONLY", sample.Size)
		return
	}
	if sort != nil && len(sort.Fields) > 0 {
		ctx.write(" ORDER BY ")
		for i, sf := range sort.Fields {
			if i > 0 {
				ctx.write(", ")
			}
			if columnMode {
				fmt.Fprintf(&ctx.buf, "%q", sf.Path)
			} else {
				writeFieldPathAccess(ctx, ctx.baseAlias, sf.Path, ast.HintNone)
			}
			if sf.Descending {
				ctx.write(" DESC")
			}
		}
	}
	if skip != nil {
		fmt.Fprintf(&ctx.buf, " OFFSET %d ROWS", skip.N)
	}
	if limit != nil {
		fmt.Fprintf(&ctx.buf, " FETCH FIRST %d ROWS ONLY", limit.N)
	}
}

func sampleBlockPercent(n int64) int64 {
	if n <= 0 {
		return 1
	}
	return n
}

// renderStandard implements shape 8, the default/fallback shape (spec
// §4.8.2 item 8): SELECT list chosen by the highest-priority producer,
// FROM with joins, WHERE, GROUP BY, ORDER BY/OFFSET/FETCH, then any
// $unionWith branches appended with UNION ALL.
func renderStandard(ctx *Context, collection string, cl *classification) error {
	suppressed := prepareRegistries(ctx, cl)

	ctx.writeLeadingKeyword("SELECT")
	ctx.writeByte(' ')
	if err := renderSelectList(ctx, cl); err != nil {
		return err
	}
	ctx.writeByte(' ')
	if err := renderFrom(ctx, collection, cl, suppressed); err != nil {
		return err
	}
	renderWhere(ctx, cl.preWindowMatches, cl.redacts)
	renderGroupBy(ctx, cl.group)
	if len(cl.unions) == 0 {
		renderOrderByLimit(ctx, cl.sort, cl.skip, cl.limit, cl.sample, cl.group != nil)
		return nil
	}
	for _, u := range cl.unions {
		ctx.write(" UNION ALL ")
		ctx.pushMode(modeFlag{nestedPipeline: true})
		err := renderUnionBranch(ctx, u)
		ctx.popMode()
		if err != nil {
			return err
		}
	}
	renderOrderByLimit(ctx, cl.postUnionSort, nil, cl.postUnionLimit, nil, cl.postUnionGroup != nil)
	return nil
}

func renderUnionBranch(ctx *Context, u *ast.UnionWith) error {
	sub := &ast.Pipeline{Collection: u.Collection, Stages: u.Pipeline}
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

// renderSelectList picks the SELECT list producer by priority: count,
// replaceRoot, group, bucket, project, unset, default ($facet and
// $bucketAuto are rendered by their own shapes before this point). After a
// project, unset or default list, addFields and window output columns are
// appended; a $graphLookup's joined array is not added to the list.
func renderSelectList(ctx *Context, cl *classification) error {
	switch {
	case cl.count != nil:
		fmt.Fprintf(&ctx.buf, "COUNT(*) AS %q", cl.count.Field)
		return nil
	case cl.replaceRoot != nil:
		RenderExpression(ctx, cl.replaceRoot.NewRoot)
		ctx.write(" AS " + ctx.cfg.DataColumn)
		return nil
	case cl.group != nil:
		return renderGroupSelectList(ctx, cl.group)
	case cl.bucket != nil:
		return renderBucketSelectList(ctx, cl.bucket)
	case cl.project != nil:
		renderProjectSelectList(ctx, cl.project)
	case len(cl.unsets) > 0:
		renderUnsetDocument(ctx, cl.unsets)
	default:
		ctx.write(ctx.dataRef(ctx.baseAlias))
	}
	for _, af := range cl.addFields {
		for _, f := range af.Fields {
			ctx.write(", ")
			// Hide the field's own registry entry while rendering it, so a
			// self-reference ("$x" inside x's definition) reads the base row.
			prev := ctx.virtualFields[f.Name]
			delete(ctx.virtualFields, f.Name)
			RenderExpression(ctx, f.Expr)
			ctx.virtualFields[f.Name] = prev
			fmt.Fprintf(&ctx.buf, " AS %q", f.Name)
		}
	}
	for _, af := range cl.postGroupAddFields {
		for _, f := range af.Fields {
			ctx.write(", ")
			RenderExpression(ctx, f.Expr)
			fmt.Fprintf(&ctx.buf, " AS %q", f.Name)
		}
	}
	for _, w := range cl.windows {
		for _, out := range w.Output {
			ctx.write(", ")
			renderWindowOutput(ctx, ctx.baseAlias, out, w.Partition, w.SortBy)
			fmt.Fprintf(&ctx.buf, " AS %q", out.Name)
		}
	}
	return nil
}

// renderUnsetDocument implements $unset by JSON_MERGEPATCH-ing the base
// document against a patch that sets each named path to null. RFC 7396
// merge-patch semantics delete the key a null value is assigned to
// (nested objects delete nested keys in turn), which is exactly $unset's
// contract -- unlike $concatArrays, which needs real concatenation and so
// does not use JSON_MERGEPATCH (see renderArrayConcat).
func renderUnsetDocument(ctx *Context, unsets []*ast.Unset) {
	fmt.Fprintf(&ctx.buf, "JSON_MERGEPATCH(%s, '%s')", ctx.dataRef(ctx.baseAlias), escapeOracleString(unsetPatchLiteral(unsets)))
}

// unsetPatchLiteral builds the merge-patch document for a set of $unset
// stages: each dotted path becomes a chain of nested objects bottoming out
// in a null, so the patch drops exactly that key.
func unsetPatchLiteral(unsets []*ast.Unset) string {
	patch := map[string]any{}
	for _, u := range unsets {
		for _, path := range u.Paths {
			insertNullPath(patch, strings.Split(path, "."))
		}
	}
	b, err := json.Marshal(patch)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func insertNullPath(m map[string]any, segments []string) {
	if len(segments) == 1 {
		m[segments[0]] = nil
		return
	}
	next, ok := m[segments[0]].(map[string]any)
	if !ok {
		next = map[string]any{}
		m[segments[0]] = next
	}
	insertNullPath(next, segments[1:])
}

func renderGroupSelectList(ctx *Context, g *ast.Group) error {
	if g.Id == nil {
		ctx.write("NULL AS dummy")
	} else {
		RenderExpression(ctx, g.Id)
		ctx.write(` AS "_id"`)
	}
	for _, out := range g.Outputs {
		ctx.write(", ")
		RenderExpression(ctx, out.Expr)
		fmt.Fprintf(&ctx.buf, " AS %q", out.Name)
	}
	return nil
}

func renderBucketSelectList(ctx *Context, b *ast.Bucket) error {
	ctx.write(`CASE`)
	for i := 0; i < len(b.Boundaries)-1; i++ {
		ctx.write(" WHEN ")
		RenderExpression(ctx, b.GroupBy)
		ctx.write(" >= ")
		RenderExpression(ctx, b.Boundaries[i])
		ctx.write(" AND ")
		RenderExpression(ctx, b.GroupBy)
		ctx.write(" < ")
		RenderExpression(ctx, b.Boundaries[i+1])
		ctx.write(" THEN ")
		RenderExpression(ctx, b.Boundaries[i])
	}
	if b.Default != nil {
		ctx.write(" ELSE ")
		RenderExpression(ctx, b.Default)
	}
	ctx.write(` END AS "_id"`)
	for _, out := range b.Output {
		ctx.write(", ")
		RenderExpression(ctx, out.Expr)
		fmt.Fprintf(&ctx.buf, " AS %q", out.Name)
	}
	return nil
}

func renderProjectSelectList(ctx *Context, p *ast.Project) {
	if p.Exclude {
		ctx.write(ctx.dataRef(ctx.baseAlias))
		return
	}
	ctx.pushMode(modeFlag{jsonOutput: true})
	ctx.write("JSON_OBJECT(")
	for i, f := range p.Fields {
		if i > 0 {
			ctx.write(", ")
		}
		fmt.Fprintf(&ctx.buf, "'%s' VALUE ", f.Name)
		RenderExpression(ctx, f.Expr)
	}
	ctx.write(")")
	ctx.popMode()
}

// renderJSONAggregationWrap implements shape 7: a $project with no
// grouping/facet/count/bucket/replaceRoot/union present, collapsed into a
// single JSON_ARRAYAGG of JSON_OBJECT rows (spec §4.8.2 item 7).
func renderJSONAggregationWrap(ctx *Context, collection string, cl *classification) error {
	suppressed := prepareRegistries(ctx, cl)
	ctx.writeLeadingKeyword("SELECT")
	ctx.write(" JSON_ARRAYAGG(")
	ctx.pushMode(modeFlag{jsonOutput: true})
	renderProjectSelectList(ctx, cl.project)
	ctx.popMode()
	ctx.write(" RETURNING CLOB) FROM (SELECT ")
	ctx.write(ctx.dataRef(ctx.baseAlias))
	ctx.writeByte(' ')
	if err := renderFrom(ctx, collection, cl, suppressed); err != nil {
		return err
	}
	renderWhere(ctx, cl.preWindowMatches, cl.redacts)
	renderOrderByLimit(ctx, cl.sort, cl.skip, cl.limit, cl.sample, false)
	ctx.write(")")
	return nil
}

// renderPostGroupAddFieldsWrap implements shape 5: outer SELECT of
// inner_query.*, <computed fields> FROM (<full group query>) inner_query,
// with ORDER BY/OFFSET/FETCH on column aliases (spec §4.8.2 item 5).
func renderPostGroupAddFieldsWrap(ctx *Context, collection string, cl *classification) error {
	postAF := cl.postGroupAddFields
	cl.hasPostGroupAddFields = false
	cl.postGroupAddFields = nil

	ctx.writeLeadingKeyword("SELECT")
	ctx.write(" inner_query.*")
	for _, af := range postAF {
		for _, f := range af.Fields {
			ctx.write(", ")
			RenderExpression(ctx, f.Expr)
			fmt.Fprintf(&ctx.buf, " AS %q", f.Name)
		}
	}
	ctx.write(" FROM (")
	if err := renderStandard(ctx, collection, cl); err != nil {
		return err
	}
	ctx.write(") inner_query")
	renderOrderByLimit(ctx, cl.sort, cl.skip, cl.limit, nil, true)
	return nil
}

// renderPostWindowWrap implements shape 4: outer SELECT * FROM (SELECT id,
// data, <window-funcs> FROM base WHERE <pre-window matches>) w WHERE
// filtering on window output columns, then ORDER BY/OFFSET/FETCH (spec
// §4.8.2 item 4). A $project in the same pipeline is not applied in this
// shape.
func renderPostWindowWrap(ctx *Context, collection string, cl *classification) error {
	postMatches := cl.postWindowMatches
	cl.hasPostWindowMatch = false
	cl.postWindowMatches = nil

	ctx.writeLeadingKeyword("SELECT")
	ctx.write(" * FROM (SELECT id, " + ctx.cfg.DataColumn)
	for _, w := range cl.windows {
		for _, out := range w.Output {
			ctx.write(", ")
			renderWindowOutput(ctx, ctx.baseAlias, out, w.Partition, w.SortBy)
			fmt.Fprintf(&ctx.buf, " AS %q", out.Name)
		}
	}
	ctx.write(" FROM " + ctx.qualifiedTable(collection) + " " + ctx.baseAlias)
	renderWhere(ctx, cl.preWindowMatches, cl.redacts)
	ctx.write(") w")
	if len(postMatches) > 0 {
		ctx.write(" WHERE ")
		ctx.columnAliasFields = windowOutputNames(cl.windows)
		for i, m := range postMatches {
			if i > 0 {
				ctx.write(" AND ")
			}
			RenderExpression(ctx, m.Filter)
		}
		ctx.columnAliasFields = nil
	}
	renderOrderByLimit(ctx, cl.sort, cl.skip, cl.limit, nil, true)
	return nil
}

func windowOutputNames(windows []*ast.SetWindowFields) map[string]bool {
	names := map[string]bool{}
	for _, w := range windows {
		for _, out := range w.Output {
			names[out.Name] = true
		}
	}
	return names
}

// renderPostUnionGroupWrap implements shape 3: outer SELECT of group
// accumulators FROM (pre-union body UNION ALL union-branches) with GROUP
// BY, field references inside the outer aggregates resolving to column
// identifiers (spec §4.8.2 item 3).
func renderPostUnionGroupWrap(ctx *Context, collection string, cl *classification) error {
	g := cl.postUnionGroup
	cl.hasPostUnionGroup = false
	cl.postUnionGroup = nil
	unions := cl.unions
	cl.unions = nil

	ctx.writeLeadingKeyword("SELECT")
	ctx.writeByte(' ')
	if err := renderGroupSelectList(ctx, g); err != nil {
		return err
	}
	ctx.write(" FROM (")
	suppressed := prepareRegistries(ctx, cl)
	ctx.write("SELECT " + ctx.dataRef(ctx.baseAlias) + " ")
	if err := renderFrom(ctx, collection, cl, suppressed); err != nil {
		return err
	}
	renderWhere(ctx, cl.preWindowMatches, cl.redacts)
	for _, u := range unions {
		ctx.write(" UNION ALL ")
		ctx.pushMode(modeFlag{nestedPipeline: true})
		err := renderUnionBranch(ctx, u)
		ctx.popMode()
		if err != nil {
			return err
		}
	}
	ctx.write(") u")
	ctx.write(" GROUP BY ")
	RenderExpression(ctx, g.Id)
	renderOrderByLimit(ctx, cl.postUnionSort, nil, cl.postUnionLimit, nil, true)
	return nil
}

// renderBucketAutoWrap implements shape 6: outer SELECT of bucket
// aggregates FROM subquery projecting NTILE(n) OVER (ORDER BY groupBy) AS
// bucket_id, GROUP BY bucket_id, ORDER BY bucket_id (spec §4.8.2 item 6).
func renderBucketAutoWrap(ctx *Context, collection string, cl *classification) error {
	ba := cl.bucketAuto
	cl.bucketAuto = nil
	suppressed := prepareRegistries(ctx, cl)

	ctx.writeLeadingKeyword("SELECT")
	ctx.write(` MIN(bucketed.grp) AS "_id"`)
	for _, out := range ba.Output {
		ctx.write(", ")
		RenderExpression(ctx, out.Expr)
		fmt.Fprintf(&ctx.buf, " AS %q", out.Name)
	}
	ctx.write(" FROM (SELECT ")
	ctx.write(ctx.dataRef(ctx.baseAlias))
	ctx.write(", ")
	RenderExpression(ctx, ba.GroupBy)
	ctx.write(" AS grp, NTILE(")
	fmt.Fprintf(&ctx.buf, "%d", ba.Count)
	ctx.write(") OVER (ORDER BY ")
	RenderExpression(ctx, ba.GroupBy)
	ctx.write(") AS bucket_id ")
	if err := renderFrom(ctx, collection, cl, suppressed); err != nil {
		return err
	}
	renderWhere(ctx, cl.preWindowMatches, cl.redacts)
	ctx.write(") bucketed GROUP BY bucketed.bucket_id ORDER BY bucketed.bucket_id")
	return nil
}
