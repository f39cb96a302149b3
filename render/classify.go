package render

import (
	"github.com/aggquery/aggquery/ast"
	"github.com/aggquery/aggquery/walk"
)

// classification is the struct of slots and flags the pipeline renderer
// builds in a single pass over the stage sequence (spec §4.8.1), ahead of
// choosing which of the emission procedures in §4.8.2 applies.
type classification struct {
	preWindowMatches  []*ast.Match
	postWindowMatches []*ast.Match
	hasPostWindowMatch bool

	group              *ast.Group
	postUnionGroup     *ast.Group
	hasPostUnionGroup  bool

	addFields          []*ast.AddFields
	postGroupAddFields []*ast.AddFields
	hasPostGroupAddFields bool

	sort           *ast.Sort
	postUnionSort  *ast.Sort
	limit          *ast.Limit
	postUnionLimit *ast.Limit

	project           *ast.Project
	postFacetProject  *ast.Project

	count       *ast.Count
	sample      *ast.Sample
	bucket      *ast.Bucket
	bucketAuto  *ast.BucketAuto
	facet       *ast.Facet
	replaceRoot *ast.ReplaceRoot
	out         *ast.Out
	merge       *ast.Merge

	lookups      []*ast.Lookup
	unwinds      []*ast.Unwind
	unions       []*ast.UnionWith
	graphLookups []*ast.GraphLookup
	windows      []*ast.SetWindowFields
	redacts      []*ast.Redact
	unsets       []*ast.Unset

	skip *ast.Skip
}

// classify walks stages once, populating a classification per the rules in
// spec §4.8.1.
func classify(stages []ast.Stage) *classification {
	cl := &classification{}
	seenWindow := false
	seenUnion := false
	seenGroup := false
	seenFacet := false

	for _, st := range stages {
		switch s := st.(type) {
		case *ast.Match:
			if seenWindow && referencesWindowOutput(s.Filter, cl.windows) {
				cl.postWindowMatches = append(cl.postWindowMatches, s)
				cl.hasPostWindowMatch = true
			} else {
				cl.preWindowMatches = append(cl.preWindowMatches, s)
			}
		case *ast.Group:
			if seenUnion {
				cl.postUnionGroup = s
				cl.hasPostUnionGroup = true
			} else {
				cl.group = s
			}
			seenGroup = true
		case *ast.AddFields:
			if seenGroup {
				cl.postGroupAddFields = append(cl.postGroupAddFields, s)
				cl.hasPostGroupAddFields = true
			} else {
				cl.addFields = append(cl.addFields, s)
			}
		case *ast.Sort:
			if seenUnion {
				cl.postUnionSort = s
			} else {
				cl.sort = s
			}
		case *ast.Limit:
			if seenUnion {
				cl.postUnionLimit = s
			} else {
				cl.limit = s
			}
		case *ast.Skip:
			cl.skip = s
		case *ast.Project:
			if seenFacet {
				cl.postFacetProject = s
			} else {
				cl.project = s
			}
		case *ast.Count:
			cl.count = s
		case *ast.Sample:
			cl.sample = s
		case *ast.Bucket:
			cl.bucket = s
		case *ast.BucketAuto:
			cl.bucketAuto = s
		case *ast.Facet:
			cl.facet = s
			seenFacet = true
		case *ast.ReplaceRoot:
			cl.replaceRoot = s
		case *ast.Out:
			cl.out = s
		case *ast.Merge:
			cl.merge = s
		case *ast.Lookup:
			cl.lookups = append(cl.lookups, s)
		case *ast.Unwind:
			cl.unwinds = append(cl.unwinds, s)
		case *ast.UnionWith:
			cl.unions = append(cl.unions, s)
			seenUnion = true
		case *ast.GraphLookup:
			cl.graphLookups = append(cl.graphLookups, s)
		case *ast.SetWindowFields:
			cl.windows = append(cl.windows, s)
			seenWindow = true
		case *ast.Redact:
			cl.redacts = append(cl.redacts, s)
		case *ast.Unset:
			cl.unsets = append(cl.unsets, s)
		}
	}
	return cl
}

// referencesWindowOutput recursively scans expr's field-path nodes (via the
// walk package) and reports whether any of them names an output field
// introduced by one of the preceding $setWindowFields stages.
func referencesWindowOutput(expr ast.Expression, windows []*ast.SetWindowFields) bool {
	names := map[string]bool{}
	for _, w := range windows {
		for _, out := range w.Output {
			names[out.Name] = true
		}
	}
	found := false
	walk.Walk(expr, func(n ast.Expression) bool {
		if fp, ok := n.(*ast.FieldPath); ok && names[fp.Path] {
			found = true
			return false
		}
		return true
	})
	return found
}
