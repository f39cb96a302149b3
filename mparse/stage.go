package mparse

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/aggquery/aggquery/ast"
)

// ParsePipeline parses an ordered list of raw stage documents into a
// Pipeline, dispatching each by its single top-level key through the stage
// registry (spec §4.7). $lookup's pipeline form, $facet, and $unionWith
// recurse back into ParsePipeline for their nested stage lists.
func (p *Parser) ParsePipeline(collection string, stages []bson.D) (*ast.Pipeline, error) {
	prevCollection := p.collection
	p.collection = collection
	defer func() { p.collection = prevCollection }()

	out := make([]ast.Stage, 0, len(stages))
	for i, doc := range stages {
		if len(doc) != 1 {
			return nil, shapeErr("bad_stage", fmt.Sprintf("stage %d must have exactly one operator key", i))
		}
		if doc[0].Key == "$sortByCount" {
			group, sort, err := p.parseSortByCountStage(doc[0].Value)
			if err != nil {
				return nil, err
			}
			out = append(out, group, sort)
			continue
		}
		st, err := p.parseStage(doc[0].Key, doc[0].Value)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return &ast.Pipeline{Collection: collection, Stages: out}, nil
}

func (p *Parser) parseStage(op string, arg any) (ast.Stage, error) {
	switch op {
	case "$match":
		return p.parseMatchStage(arg)
	case "$group":
		return p.parseGroupStage(arg)
	case "$project":
		return p.parseProjectStage(arg)
	case "$sort":
		return p.parseSortStage(arg)
	case "$limit":
		return p.parseLimitStage(arg)
	case "$skip":
		return p.parseSkipStage(arg)
	case "$lookup":
		return p.parseLookupStage(arg)
	case "$unwind":
		return p.parseUnwindStage(arg)
	case "$addFields", "$set":
		return p.parseAddFieldsStage(arg)
	case "$unionWith":
		return p.parseUnionWithStage(arg)
	case "$bucket":
		return p.parseBucketStage(arg)
	case "$bucketAuto":
		return p.parseBucketAutoStage(arg)
	case "$facet":
		return p.parseFacetStage(arg)
	case "$graphLookup":
		return p.parseGraphLookupStage(arg)
	case "$setWindowFields":
		return p.parseSetWindowFieldsStage(arg)
	case "$redact":
		return p.parseRedactStage(arg)
	case "$sample":
		return p.parseSampleStage(arg)
	case "$count":
		return p.parseCountStage(arg)
	case "$merge":
		return p.parseMergeStage(arg)
	case "$out":
		return p.parseOutStage(arg)
	case "$replaceRoot", "$replaceWith":
		return p.parseReplaceRootStage(op, arg)
	case "$unset":
		return p.parseUnsetStage(arg)
	}
	return nil, unsupported(op)
}

func (p *Parser) parseMatchStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_match", "$match requires a document argument")
	}
	filter, err := p.Parse(doc)
	if err != nil {
		return nil, err
	}
	return &ast.Match{Filter: filter}, nil
}

func (p *Parser) parseGroupStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_group", "$group requires a document argument")
	}
	var idExpr ast.Expression
	var outputs []ast.NamedExpr
	for _, el := range doc {
		if el.Key == "_id" {
			e, err := p.parseGroupID(el.Value)
			if err != nil {
				return nil, err
			}
			idExpr = e
			continue
		}
		acc, err := p.parseAccumulatorValue(el.Value)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, ast.NamedExpr{Name: el.Key, Expr: acc})
	}
	return &ast.Group{Id: idExpr, Outputs: outputs}, nil
}

func (p *Parser) parseGroupID(value any) (ast.Expression, error) {
	if value == nil {
		return nil, nil
	}
	if doc, ok := value.(bson.D); ok && len(doc) > 0 && doc[0].Key[0] != '$' {
		fields := make([]ast.NamedExpr, 0, len(doc))
		for _, el := range doc {
			e, err := p.ParseValue(el.Value)
			if err != nil {
				return nil, err
			}
			fields = append(fields, ast.NamedExpr{Name: el.Key, Expr: e})
		}
		return &ast.CompoundId{Fields: fields}, nil
	}
	return p.ParseValue(value)
}

// parseAccumulatorValue parses the value side of a $group/$bucket output
// mapping entry: a single-key document whose key is an accumulator token.
func (p *Parser) parseAccumulatorValue(value any) (ast.Expression, error) {
	doc, ok := value.(bson.D)
	if !ok || len(doc) != 1 {
		return nil, shapeErr("bad_accumulator", "group output field must be a single-key accumulator document")
	}
	return p.buildAccumulator(doc[0].Key, doc[0].Value)
}

func (p *Parser) buildAccumulator(op string, arg any) (ast.Expression, error) {
	accOp, ok := accumulatorOpFor(op)
	if !ok {
		return nil, unsupported(op)
	}
	if op == "$count" {
		return &ast.Accumulator{Op: ast.AccCount}, nil
	}
	e, err := p.ParseValue(arg)
	if err != nil {
		return nil, err
	}
	return &ast.Accumulator{Op: accOp, Arg: e}, nil
}

func accumulatorOpFor(op string) (ast.AccumulatorOp, bool) {
	switch op {
	case "$sum":
		return ast.AccSum, true
	case "$avg":
		return ast.AccAvg, true
	case "$count":
		return ast.AccCount, true
	case "$min":
		return ast.AccMin, true
	case "$max":
		return ast.AccMax, true
	case "$first":
		return ast.AccFirst, true
	case "$last":
		return ast.AccLast, true
	case "$push":
		return ast.AccPush, true
	case "$addToSet":
		return ast.AccAddToSet, true
	}
	return 0, false
}

func (p *Parser) parseProjectStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_project", "$project requires a document argument")
	}
	exclude, mixed := detectProjectMode(doc)
	if mixed {
		return nil, shapeErr("mixed_project", "$project cannot mix inclusion and exclusion")
	}
	fields := make([]ast.NamedExpr, 0, len(doc))
	for _, el := range doc {
		if exclude {
			fields = append(fields, ast.NamedExpr{Name: el.Key})
			continue
		}
		e, err := p.projectFieldExpr(el.Key, el.Value)
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.NamedExpr{Name: el.Key, Expr: e})
	}
	return &ast.Project{Exclude: exclude, Fields: fields}, nil
}

func (p *Parser) projectFieldExpr(key string, value any) (ast.Expression, error) {
	if b, ok := value.(bool); ok && b {
		path, err := p.idck.FieldPath(key)
		if err != nil {
			return nil, err
		}
		return p.fieldPath(path), nil
	}
	if n, ok := asInt(value); ok && n == 1 {
		path, err := p.idck.FieldPath(key)
		if err != nil {
			return nil, err
		}
		return p.fieldPath(path), nil
	}
	return p.ParseValue(value)
}

func detectProjectMode(doc bson.D) (exclude bool, mixed bool) {
	sawInclude, sawExclude := false, false
	for _, el := range doc {
		if el.Key == "_id" {
			continue
		}
		if isProjectExclusionValue(el.Value) {
			sawExclude = true
		} else {
			sawInclude = true
		}
	}
	if sawExclude && !sawInclude {
		return true, false
	}
	if sawInclude && sawExclude {
		return false, true
	}
	return false, false
}

func isProjectExclusionValue(v any) bool {
	if b, ok := v.(bool); ok {
		return !b
	}
	if n, ok := asInt(v); ok {
		return n == 0
	}
	return false
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func (p *Parser) parseSortStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_sort", "$sort requires a document argument")
	}
	if len(doc) == 0 {
		return nil, shapeErr("empty_sort", "$sort requires at least one field")
	}
	fields := make([]ast.SortField, 0, len(doc))
	for _, el := range doc {
		path, err := p.idck.FieldPath(el.Key)
		if err != nil {
			return nil, err
		}
		n, _ := asInt(el.Value)
		fields = append(fields, ast.SortField{Path: path, Descending: n < 0})
	}
	return &ast.Sort{Fields: fields}, nil
}

func (p *Parser) parseLimitStage(arg any) (ast.Stage, error) {
	n, ok := asInt(arg)
	if !ok || n <= 0 {
		return nil, shapeErr("bad_limit", "$limit requires a positive integer argument")
	}
	return &ast.Limit{N: n}, nil
}

func (p *Parser) parseSkipStage(arg any) (ast.Stage, error) {
	n, ok := asInt(arg)
	if !ok || n < 0 {
		return nil, shapeErr("bad_skip", "$skip requires a non-negative integer argument")
	}
	return &ast.Skip{N: n}, nil
}

func (p *Parser) parseLookupStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_lookup", "$lookup requires a document argument")
	}
	m := docMap(doc)
	from, _ := m["from"].(string)
	as, _ := m["as"].(string)
	if from == "" || as == "" {
		return nil, shapeErr("bad_lookup", "$lookup requires \"from\" and \"as\"")
	}
	if err := p.idck.TableName(from); err != nil {
		return nil, err
	}
	lk := &ast.Lookup{From: from, As: as}
	if local, ok := m["localField"].(string); ok {
		lf, err := p.idck.FieldPath(local)
		if err != nil {
			return nil, err
		}
		lk.Local = lf
	}
	if foreign, ok := m["foreignField"].(string); ok {
		ff, err := p.idck.FieldPath(foreign)
		if err != nil {
			return nil, err
		}
		lk.Foreign = ff
	}
	if letDoc, ok := m["let"].(bson.D); ok {
		for _, el := range letDoc {
			e, err := p.ParseValue(el.Value)
			if err != nil {
				return nil, err
			}
			lk.Let = append(lk.Let, ast.NamedExpr{Name: el.Key, Expr: e})
		}
	}
	if pipeline, ok := m["pipeline"].(bson.A); ok {
		stages, err := p.parseNestedPipeline(from, pipeline)
		if err != nil {
			return nil, err
		}
		lk.Pipeline = stages
	}
	return lk, nil
}

func (p *Parser) parseNestedPipeline(collection string, arr bson.A) ([]ast.Stage, error) {
	docs := make([]bson.D, 0, len(arr))
	for _, item := range arr {
		d, ok := item.(bson.D)
		if !ok {
			return nil, shapeErr("bad_nested_pipeline", "nested pipeline items must be documents")
		}
		docs = append(docs, d)
	}
	sub, err := p.ParsePipeline(collection, docs)
	if err != nil {
		return nil, err
	}
	return sub.Stages, nil
}

func (p *Parser) parseUnwindStage(arg any) (ast.Stage, error) {
	switch v := arg.(type) {
	case string:
		path, err := p.idck.FieldPath(v)
		if err != nil {
			return nil, err
		}
		return &ast.Unwind{Path: path}, nil
	case bson.D:
		m := docMap(v)
		pathStr, _ := m["path"].(string)
		path, err := p.idck.FieldPath(pathStr)
		if err != nil {
			return nil, err
		}
		u := &ast.Unwind{Path: path}
		if idxRaw, ok := m["includeArrayIndex"].(string); ok {
			idx, err := p.idck.FieldPath(idxRaw)
			if err != nil {
				return nil, err
			}
			u.IncludeArrayIndex = idx
		}
		if preserve, ok := m["preserveNullAndEmptyArrays"].(bool); ok {
			u.PreserveNullAndEmptyArrays = preserve
		}
		return u, nil
	}
	return nil, shapeErr("bad_unwind", "$unwind requires a string or document argument")
}

func (p *Parser) parseAddFieldsStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_addFields", "$addFields requires a document argument")
	}
	fields := make([]ast.NamedExpr, 0, len(doc))
	for _, el := range doc {
		e, err := p.ParseValue(el.Value)
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.NamedExpr{Name: el.Key, Expr: e})
	}
	return &ast.AddFields{Fields: fields}, nil
}

func (p *Parser) parseUnionWithStage(arg any) (ast.Stage, error) {
	switch v := arg.(type) {
	case string:
		if err := p.idck.TableName(v); err != nil {
			return nil, err
		}
		return &ast.UnionWith{Collection: v}, nil
	case bson.D:
		m := docMap(v)
		coll, _ := m["coll"].(string)
		if err := p.idck.TableName(coll); err != nil {
			return nil, err
		}
		uw := &ast.UnionWith{Collection: coll}
		if pipeline, ok := m["pipeline"].(bson.A); ok {
			stages, err := p.parseNestedPipeline(coll, pipeline)
			if err != nil {
				return nil, err
			}
			uw.Pipeline = stages
		}
		return uw, nil
	}
	return nil, shapeErr("bad_unionWith", "$unionWith requires a string or document argument")
}

func (p *Parser) parseBucketStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_bucket", "$bucket requires a document argument")
	}
	m := docMap(doc)
	groupBy, err := p.requireField(m, "groupBy")
	if err != nil {
		return nil, err
	}
	boundaries, err := p.parseBoundaries(m)
	if err != nil {
		return nil, err
	}
	b := &ast.Bucket{GroupBy: groupBy, Boundaries: boundaries}
	if v, ok := m["default"]; ok {
		d, err := p.ParseValue(v)
		if err != nil {
			return nil, err
		}
		b.Default = d
	}
	if outDoc, ok := m["output"].(bson.D); ok {
		for _, el := range outDoc {
			acc, err := p.parseAccumulatorValue(el.Value)
			if err != nil {
				return nil, err
			}
			b.Output = append(b.Output, ast.NamedExpr{Name: el.Key, Expr: acc})
		}
	}
	return b, nil
}

func (p *Parser) parseBoundaries(m map[string]any) ([]ast.Expression, error) {
	arr, ok := m["boundaries"].(bson.A)
	if !ok || len(arr) < 2 {
		return nil, shapeErr("bad_boundaries", "$bucket requires a \"boundaries\" array of at least 2 elements")
	}
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

func (p *Parser) parseBucketAutoStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_bucketAuto", "$bucketAuto requires a document argument")
	}
	m := docMap(doc)
	groupBy, err := p.requireField(m, "groupBy")
	if err != nil {
		return nil, err
	}
	count, ok := asInt(m["buckets"])
	if !ok || count <= 0 {
		return nil, shapeErr("bad_bucketAuto", "$bucketAuto requires a positive integer \"buckets\"")
	}
	ba := &ast.BucketAuto{GroupBy: groupBy, Count: count}
	if g, ok := m["granularity"].(string); ok {
		ba.Granularity = g
	}
	if outDoc, ok := m["output"].(bson.D); ok {
		for _, el := range outDoc {
			acc, err := p.parseAccumulatorValue(el.Value)
			if err != nil {
				return nil, err
			}
			ba.Output = append(ba.Output, ast.NamedExpr{Name: el.Key, Expr: acc})
		}
	}
	return ba, nil
}

func (p *Parser) parseFacetStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_facet", "$facet requires a document argument")
	}
	f := &ast.Facet{}
	for _, el := range doc {
		arr, ok := el.Value.(bson.A)
		if !ok {
			return nil, shapeErr("bad_facet", "each facet value must be an array of stages")
		}
		stages, err := p.parseNestedPipeline(p.collection, arr)
		if err != nil {
			return nil, err
		}
		f.Facets = append(f.Facets, ast.NamedFacet{Name: el.Key, Pipeline: stages})
	}
	return f, nil
}

func (p *Parser) parseGraphLookupStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_graphLookup", "$graphLookup requires a document argument")
	}
	m := docMap(doc)
	from, _ := m["from"].(string)
	as, _ := m["as"].(string)
	connectFrom, _ := m["connectFromField"].(string)
	connectTo, _ := m["connectToField"].(string)
	if from == "" || as == "" || connectFrom == "" || connectTo == "" {
		return nil, shapeErr("bad_graphLookup", "$graphLookup requires from/as/connectFromField/connectToField")
	}
	if err := p.idck.TableName(from); err != nil {
		return nil, err
	}
	startWith, err := p.requireField(m, "startWith")
	if err != nil {
		return nil, err
	}
	cff, err := p.idck.FieldPath(connectFrom)
	if err != nil {
		return nil, err
	}
	ctf, err := p.idck.FieldPath(connectTo)
	if err != nil {
		return nil, err
	}
	gl := &ast.GraphLookup{From: from, StartWith: startWith, ConnectFromField: cff, ConnectToField: ctf, As: as}
	if depth, ok := asInt(m["maxDepth"]); ok {
		gl.MaxDepth = &depth
	}
	if df, ok := m["depthField"].(string); ok {
		gl.DepthField = df
	}
	if rsm, ok := m["restrictSearchWithMatch"].(bson.D); ok {
		filter, err := p.Parse(rsm)
		if err != nil {
			return nil, err
		}
		gl.RestrictSearchWithMatch = filter
	}
	return gl, nil
}

func (p *Parser) parseSetWindowFieldsStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_setWindowFields", "$setWindowFields requires a document argument")
	}
	m := docMap(doc)
	swf := &ast.SetWindowFields{}
	if part, ok := m["partitionBy"]; ok {
		e, err := p.ParseValue(part)
		if err != nil {
			return nil, err
		}
		swf.Partition = e
	}
	if sortDoc, ok := m["sortBy"].(bson.D); ok {
		for _, el := range sortDoc {
			path, err := p.idck.FieldPath(el.Key)
			if err != nil {
				return nil, err
			}
			n, _ := asInt(el.Value)
			swf.SortBy = append(swf.SortBy, ast.SortField{Path: path, Descending: n < 0})
		}
	}
	outputDoc, ok := m["output"].(bson.D)
	if !ok {
		return nil, shapeErr("bad_setWindowFields", "$setWindowFields requires an \"output\" document")
	}
	for _, el := range outputDoc {
		wo, err := p.parseWindowOutput(el.Key, el.Value)
		if err != nil {
			return nil, err
		}
		swf.Output = append(swf.Output, wo)
	}
	return swf, nil
}

func (p *Parser) parseWindowOutput(name string, value any) (ast.WindowOutput, error) {
	doc, ok := value.(bson.D)
	if !ok || len(doc) == 0 {
		return ast.WindowOutput{}, shapeErr("bad_window_output", "window output entry must be a document")
	}
	var opKey string
	var opArg any
	var frameArg any
	for _, el := range doc {
		if el.Key == "window" {
			frameArg = el.Value
			continue
		}
		opKey, opArg = el.Key, el.Value
	}
	op, hasArg, ok := windowOpFor(opKey)
	if !ok {
		return ast.WindowOutput{}, unsupported(opKey)
	}
	wo := ast.WindowOutput{Name: name, Op: op}
	if hasArg {
		e, err := p.ParseValue(opArg)
		if err != nil {
			return ast.WindowOutput{}, err
		}
		wo.Arg = e
	}
	if frameDoc, ok := frameArg.(bson.D); ok {
		frame, err := p.parseWindowFrame(frameDoc)
		if err != nil {
			return ast.WindowOutput{}, err
		}
		wo.Frame = frame
	}
	return wo, nil
}

func windowOpFor(op string) (ast.WindowOp, bool, bool) {
	switch op {
	case "$sum":
		return ast.WinSum, true, true
	case "$avg":
		return ast.WinAvg, true, true
	case "$count":
		return ast.WinCount, false, true
	case "$min":
		return ast.WinMin, true, true
	case "$max":
		return ast.WinMax, true, true
	case "$first":
		return ast.WinFirst, true, true
	case "$last":
		return ast.WinLast, true, true
	case "$push":
		return ast.WinPush, true, true
	case "$addToSet":
		return ast.WinAddToSet, true, true
	case "$rank":
		return ast.WinRank, false, true
	case "$denseRank":
		return ast.WinDenseRank, false, true
	case "$rowNumber":
		return ast.WinRowNumber, false, true
	}
	return 0, false, false
}

func (p *Parser) parseWindowFrame(doc bson.D) (*ast.Frame, error) {
	m := docMap(doc)
	f := &ast.Frame{Unit: ast.FrameDocuments}
	if _, ok := m["range"]; ok {
		f.Unit = ast.FrameRange
	}
	boundsKey := "documents"
	if f.Unit == ast.FrameRange {
		boundsKey = "range"
	}
	arr, ok := m[boundsKey].(bson.A)
	if !ok || len(arr) != 2 {
		return nil, shapeErr("bad_window_frame", "window frame requires a 2-element bounds array")
	}
	lower, err := parseWindowBound(arr[0])
	if err != nil {
		return nil, err
	}
	upper, err := parseWindowBound(arr[1])
	if err != nil {
		return nil, err
	}
	f.Lower, f.Upper = lower, upper
	return f, nil
}

func parseWindowBound(v any) (ast.Bound, error) {
	if s, ok := v.(string); ok {
		switch s {
		case "unbounded":
			return ast.Bound{Kind: ast.BoundUnbounded}, nil
		case "current":
			return ast.Bound{Kind: ast.BoundCurrent}, nil
		}
		return ast.Bound{}, shapeErr("bad_window_bound", fmt.Sprintf("unrecognised window bound %q", s))
	}
	if n, ok := asInt(v); ok {
		if n == 0 {
			return ast.Bound{Kind: ast.BoundCurrent}, nil
		}
		return ast.Bound{Kind: ast.BoundOffset, OffsetRows: int(n)}, nil
	}
	return ast.Bound{}, shapeErr("bad_window_bound", "window bound must be a string or integer")
}

func (p *Parser) parseRedactStage(arg any) (ast.Stage, error) {
	e, err := p.ParseValue(arg)
	if err != nil {
		return nil, err
	}
	return &ast.Redact{Expr: e}, nil
}

func (p *Parser) parseSampleStage(arg any) (ast.Stage, error) {
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_sample", "$sample requires a document argument")
	}
	m := docMap(doc)
	size, ok := asInt(m["size"])
	if !ok || size <= 0 {
		return nil, shapeErr("bad_sample", "$sample requires a positive integer \"size\"")
	}
	return &ast.Sample{Size: size}, nil
}

func (p *Parser) parseCountStage(arg any) (ast.Stage, error) {
	field, ok := arg.(string)
	if !ok || field == "" || field[0] == '$' {
		return nil, shapeErr("bad_count", "$count requires a non-empty string argument not starting with \"$\"")
	}
	return &ast.Count{Field: field}, nil
}

func (p *Parser) parseMergeStage(arg any) (ast.Stage, error) {
	switch v := arg.(type) {
	case string:
		if err := p.idck.TableName(v); err != nil {
			return nil, err
		}
		return &ast.Merge{Into: v, On: []string{"_id"}}, nil
	case bson.D:
		m := docMap(v)
		into, _ := m["into"].(string)
		if into == "" {
			return nil, shapeErr("bad_merge", "$merge requires \"into\"")
		}
		if err := p.idck.TableName(into); err != nil {
			return nil, err
		}
		mg := &ast.Merge{Into: into, On: []string{"_id"}}
		if on, ok := m["on"].(string); ok {
			mg.On = []string{on}
		} else if onArr, ok := m["on"].(bson.A); ok {
			mg.On = nil
			for _, f := range onArr {
				if s, ok := f.(string); ok {
					mg.On = append(mg.On, s)
				}
			}
		}
		if wm, ok := m["whenMatched"].(string); ok {
			switch wm {
			case "replace":
				mg.WhenMatched = ast.MergeReplace
			case "keepExisting":
				mg.WhenMatched = ast.MergeKeepExisting
			case "merge":
				mg.WhenMatched = ast.MergeMerge
			case "fail":
				mg.WhenMatched = ast.MergeFail
			}
		}
		if wnm, ok := m["whenNotMatched"].(string); ok {
			switch wnm {
			case "insert":
				mg.WhenNotMatched = ast.MergeInsert
			case "discard":
				mg.WhenNotMatched = ast.MergeDiscard
			case "fail":
				mg.WhenNotMatched = ast.MergeFailNotMatched
			}
		}
		return mg, nil
	}
	return nil, shapeErr("bad_merge", "$merge requires a string or document argument")
}

func (p *Parser) parseOutStage(arg any) (ast.Stage, error) {
	switch v := arg.(type) {
	case string:
		if err := p.idck.TableName(v); err != nil {
			return nil, err
		}
		return &ast.Out{Into: v}, nil
	case bson.D:
		m := docMap(v)
		into, _ := m["coll"].(string)
		if into == "" {
			return nil, shapeErr("bad_out", "$out requires \"coll\"")
		}
		if err := p.idck.TableName(into); err != nil {
			return nil, err
		}
		db, _ := m["db"].(string)
		return &ast.Out{Into: into, IntoDB: db}, nil
	}
	return nil, shapeErr("bad_out", "$out requires a string or document argument")
}

func (p *Parser) parseReplaceRootStage(op string, arg any) (ast.Stage, error) {
	if op == "$replaceWith" {
		e, err := p.ParseValue(arg)
		if err != nil {
			return nil, err
		}
		return &ast.ReplaceRoot{NewRoot: e}, nil
	}
	doc, ok := arg.(bson.D)
	if !ok {
		return nil, shapeErr("bad_replaceRoot", "$replaceRoot requires a document argument")
	}
	m := docMap(doc)
	newRoot, err := p.requireField(m, "newRoot")
	if err != nil {
		return nil, err
	}
	return &ast.ReplaceRoot{NewRoot: newRoot}, nil
}

func (p *Parser) parseUnsetStage(arg any) (ast.Stage, error) {
	switch v := arg.(type) {
	case string:
		path, err := p.idck.FieldPath(v)
		if err != nil {
			return nil, err
		}
		return &ast.Unset{Paths: []string{path}}, nil
	case bson.A:
		var paths []string
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, shapeErr("bad_unset", "$unset array items must be strings")
			}
			path, err := p.idck.FieldPath(s)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
		return &ast.Unset{Paths: paths}, nil
	}
	return nil, shapeErr("bad_unset", "$unset requires a string or array argument")
}

// parseSortByCountStage desugars $sortByCount into the {$group, $sort} pair
// it is defined as an alias for, grouping by the given expression and
// sorting the resulting counts descending.
func (p *Parser) parseSortByCountStage(arg any) (ast.Stage, ast.Stage, error) {
	groupBy, err := p.ParseValue(arg)
	if err != nil {
		return nil, nil, err
	}
	group := &ast.Group{
		Id:      groupBy,
		Outputs: []ast.NamedExpr{{Name: "count", Expr: &ast.Accumulator{Op: ast.AccCount}}},
	}
	sort := &ast.Sort{Fields: []ast.SortField{{Path: "count", Descending: true}}}
	return group, sort, nil
}
