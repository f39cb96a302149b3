package mparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/aggquery/aggquery/ast"
)

func parseOne(t *testing.T, doc bson.D) ast.Stage {
	t.Helper()
	p := New()
	pipeline, err := p.ParsePipeline("orders", []bson.D{doc})
	require.NoError(t, err)
	require.Len(t, pipeline.Stages, 1)
	return pipeline.Stages[0]
}

func TestParseMatchStage(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$match", Value: bson.D{{Key: "status", Value: "open"}}}})
	_, ok := st.(*ast.Match)
	assert.True(t, ok)
}

func TestParseGroupStageWithCompoundId(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: bson.D{{Key: "year", Value: "$year"}, {Key: "status", Value: "$status"}}},
		{Key: "total", Value: bson.D{{Key: "$sum", Value: "$amount"}}},
	}}})
	g := st.(*ast.Group)
	_, ok := g.Id.(*ast.CompoundId)
	assert.True(t, ok)
	require.Len(t, g.Outputs, 1)
	assert.Equal(t, "total", g.Outputs[0].Name)
}

func TestParseGroupStageCountShorthand(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: nil},
		{Key: "n", Value: bson.D{{Key: "$sum", Value: int32(1)}}},
	}}})
	g := st.(*ast.Group)
	assert.Nil(t, g.Id)
	acc := g.Outputs[0].Expr.(*ast.Accumulator)
	assert.Equal(t, ast.AccSum, acc.Op)
}

func TestParseProjectInclusionMode(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$project", Value: bson.D{{Key: "name", Value: int32(1)}, {Key: "age", Value: true}}}})
	proj := st.(*ast.Project)
	assert.False(t, proj.Exclude)
	assert.Len(t, proj.Fields, 2)
}

func TestParseProjectExclusionMode(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$project", Value: bson.D{{Key: "password", Value: int32(0)}}}})
	proj := st.(*ast.Project)
	assert.True(t, proj.Exclude)
}

func TestParseProjectMixedModeRejected(t *testing.T) {
	p := New()
	_, err := p.ParsePipeline("orders", []bson.D{
		{{Key: "$project", Value: bson.D{{Key: "a", Value: int32(1)}, {Key: "b", Value: int32(0)}}}},
	})
	assert.Error(t, err)
}

func TestParseSortDescending(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: int32(-1)}}}})
	sort := st.(*ast.Sort)
	require.Len(t, sort.Fields, 1)
	assert.True(t, sort.Fields[0].Descending)
}

func TestParseLookupEqualityForm(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: "customers"},
		{Key: "localField", Value: "customerId"},
		{Key: "foreignField", Value: "_id"},
		{Key: "as", Value: "customer"},
	}}})
	lk := st.(*ast.Lookup)
	assert.Equal(t, "customers", lk.From)
	assert.Equal(t, "customer", lk.As)
}

func TestParseLookupPipelineFormRecursesStages(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: "customers"},
		{Key: "as", Value: "customer"},
		{Key: "pipeline", Value: bson.A{
			bson.D{{Key: "$match", Value: bson.D{{Key: "active", Value: true}}}},
		}},
	}}})
	lk := st.(*ast.Lookup)
	require.Len(t, lk.Pipeline, 1)
	_, ok := lk.Pipeline[0].(*ast.Match)
	assert.True(t, ok)
}

func TestParseUnwindStringForm(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$unwind", Value: "$items"}})
	u := st.(*ast.Unwind)
	assert.Equal(t, "items", u.Path)
}

func TestParseUnwindDocumentForm(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$unwind", Value: bson.D{
		{Key: "path", Value: "$items"},
		{Key: "preserveNullAndEmptyArrays", Value: true},
	}}})
	u := st.(*ast.Unwind)
	assert.True(t, u.PreserveNullAndEmptyArrays)
}

func TestParseFacetStageRecurses(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$facet", Value: bson.D{
		{Key: "counts", Value: bson.A{bson.D{{Key: "$count", Value: "n"}}}},
	}}})
	f := st.(*ast.Facet)
	require.Len(t, f.Facets, 1)
	assert.Equal(t, "counts", f.Facets[0].Name)
}

func TestParseSetWindowFieldsStage(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$setWindowFields", Value: bson.D{
		{Key: "partitionBy", Value: "$category"},
		{Key: "sortBy", Value: bson.D{{Key: "price", Value: int32(1)}}},
		{Key: "output", Value: bson.D{
			{Key: "rank", Value: bson.D{{Key: "$rank", Value: bson.D{}}}},
		}},
	}}})
	swf := st.(*ast.SetWindowFields)
	require.Len(t, swf.Output, 1)
	assert.Equal(t, ast.WinRank, swf.Output[0].Op)
}

func TestParseSortByCountDesugarsToTwoStages(t *testing.T) {
	p := New()
	pipeline, err := p.ParsePipeline("orders", []bson.D{
		{{Key: "$sortByCount", Value: "$status"}},
	})
	require.NoError(t, err)
	require.Len(t, pipeline.Stages, 2)
	_, ok := pipeline.Stages[0].(*ast.Group)
	assert.True(t, ok)
	sort, ok := pipeline.Stages[1].(*ast.Sort)
	require.True(t, ok)
	assert.True(t, sort.Fields[0].Descending)
}

func TestParseMergeStringForm(t *testing.T) {
	st := parseOne(t, bson.D{{Key: "$merge", Value: "archive"}})
	m := st.(*ast.Merge)
	assert.Equal(t, "archive", m.Into)
	assert.Equal(t, []string{"_id"}, m.On)
}

func TestParseUnknownStageOperatorIsUnsupported(t *testing.T) {
	p := New()
	_, err := p.ParsePipeline("orders", []bson.D{{{Key: "$geoNear", Value: bson.D{}}}})
	require.Error(t, err)
	me, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, "$geoNear", me.UnsupportedOp)
}
