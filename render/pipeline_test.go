package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/aggquery/aggquery/mparse"
)

// decodeStages parses a JSON array of extended-JSON stage documents into
// []bson.D, mirroring how the root translator feeds mparse.
func decodeStages(t *testing.T, jsonArray string) []bson.D {
	t.Helper()
	var raw []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(jsonArray), &raw))
	stages := make([]bson.D, len(raw))
	for i, r := range raw {
		var d bson.D
		require.NoError(t, bson.UnmarshalExtJSON(r, false, &d))
		stages[i] = d
	}
	return stages
}

// renderStages is the shared mparse -> render harness used by every case
// below: parse the given collection/stages pair, render it, and return the
// resulting SQL text and bind list.
func renderStages(t *testing.T, collection string, jsonArray string) (string, []any) {
	t.Helper()
	stages := decodeStages(t, jsonArray)
	pipeline, err := mparse.New().ParsePipeline(collection, stages)
	require.NoError(t, err)
	ctx := NewContext(Config{Collection: collection, DataColumn: "data"}, Options{})
	out, err := Render(ctx, pipeline)
	require.NoError(t, err)
	return out.SQL(), out.Binds()
}

func TestRenderStandardShapeMatchAndSort(t *testing.T) {
	sql, binds := renderStages(t, "orders", `[
		{"$match": {"status": "open"}},
		{"$sort": {"createdAt": -1}}
	]`)
	assert.Contains(t, sql, "FROM orders")
	assert.NotContains(t, sql, "JSON_ARRAYAGG")
	assert.Contains(t, sql, "ORDER BY")
	require.Len(t, binds, 1)
	assert.Equal(t, "open", binds[0])
}

func TestRenderOutShape(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$match": {"status": "open"}},
		{"$out": "archivedOrders"}
	]`)
	assert.Contains(t, sql, "INSERT INTO archivedOrders")
}

func TestRenderMergeShape(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[{"$merge": {"into": "summary", "on": "_id"}}]`)
	assert.Contains(t, sql, "MERGE INTO summary")
	assert.Contains(t, sql, "WHEN MATCHED THEN UPDATE")
	assert.Contains(t, sql, "WHEN NOT MATCHED THEN INSERT")
}

func TestRenderGroupShape(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$group": {"_id": "$status", "total": {"$sum": "$amount"}}}
	]`)
	assert.Contains(t, sql, "GROUP BY")
}

func TestRenderBucketAutoShape(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$bucketAuto": {"groupBy": "$price", "buckets": 4}}
	]`)
	assert.Contains(t, sql, "NTILE(4)")
}

func TestRenderProjectPlainJSONAggregation(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$project": {"customer": 1, "total": 1}}
	]`)
	assert.Contains(t, sql, "JSON_ARRAYAGG")
	assert.Contains(t, sql, "JSON_OBJECT")
}

func TestRenderLimitAndSkip(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[{"$skip": 3}, {"$limit": 2}]`)
	assert.Contains(t, sql, "OFFSET 3 ROWS")
	assert.Contains(t, sql, "FETCH FIRST 2 ROWS ONLY")
}

func TestRenderFacetCountOnlySpecialCase(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$facet": {"total": [{"$count": "n"}]}}
	]`)
	assert.Contains(t, sql, "total")
	assert.Contains(t, sql, "COUNT(*)")
}

func TestRenderFacetMultipleBranches(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$facet": {
			"byStatus": [{"$group": {"_id": "$status", "n": {"$sum": 1}}}],
			"total": [{"$count": "n"}]
		}}
	]`)
	assert.Contains(t, sql, "byStatus")
	assert.Contains(t, sql, "total")
}

func TestRenderUnwindSuppressedWhenLookupPrefixMatches(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$lookup": {"from": "customers", "localField": "customerId", "foreignField": "_id", "as": "customer"}},
		{"$unwind": "$customer"}
	]`)
	assert.Contains(t, sql, "customers")
	assert.NotContains(t, sql, "JSON_TABLE")
}

func TestRenderSetWindowFieldsPostWindowMatch(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$setWindowFields": {
			"partitionBy": "$status",
			"sortBy": {"amount": -1},
			"output": {"rnk": {"$rank": {}}}
		}},
		{"$match": {"rnk": 1}}
	]`)
	assert.Contains(t, sql, "RANK()")
	assert.Contains(t, sql, "OVER")
}

func TestRenderUnionWithShape(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[{"$unionWith": "archivedOrders"}]`)
	assert.Contains(t, sql, "UNION ALL")
}

func TestRenderUnsetDropsNamedPathFromDocument(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[{"$unset": ["customer.ssn", "internalNote"]}]`)
	assert.Contains(t, sql, "JSON_MERGEPATCH(t0.data, ")
	assert.Contains(t, sql, `"customer":{"ssn":null}`)
	assert.Contains(t, sql, `"internalNote":null`)
}

func TestRenderUnwindPreserveNullAndEmptyArraysUsesOuterJoin(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$unwind": {"path": "$items", "preserveNullAndEmptyArrays": true}}
	]`)
	assert.Contains(t, sql, "LEFT OUTER JOIN JSON_TABLE(")
	assert.Contains(t, sql, "ON 1=1")
}

func TestRenderUnwindDefaultStillInnerJoins(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[{"$unwind": "$items"}]`)
	assert.NotContains(t, sql, "LEFT OUTER JOIN JSON_TABLE(")
	assert.Contains(t, sql, ", JSON_TABLE(")
}

func TestRenderUnwindIncludeArrayIndexAddsOrdinalityColumn(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$unwind": {"path": "$items", "includeArrayIndex": "itemIdx"}},
		{"$project": {"itemIdx": 1}}
	]`)
	assert.Contains(t, sql, `"itemIdx" FOR ORDINALITY`)
	assert.Contains(t, sql, `."itemIdx"`)
}

func TestRenderOracleHintsOnLeadingKeywordOnly(t *testing.T) {
	stages := decodeStages(t, `[
		{"$match": {"status": "open"}},
		{"$unionWith": "archivedOrders"}
	]`)
	pipeline, err := mparse.New().ParsePipeline("orders", stages)
	require.NoError(t, err)
	ctx := NewContext(Config{Collection: "orders", DataColumn: "data"}, Options{OracleHints: []string{"PARALLEL(4)"}})
	out, err := Render(ctx, pipeline)
	require.NoError(t, err)
	sql := out.SQL()
	assert.Equal(t, 1, strings.Count(sql, "/*+ PARALLEL(4) */"), "hint must appear exactly once, on the outermost SELECT")
	assert.True(t, strings.HasPrefix(sql, "SELECT /*+ PARALLEL(4) */"))
}

func TestRenderInlineBindsProducesNoBindList(t *testing.T) {
	stages := decodeStages(t, `[{"$match": {"status": "open"}}]`)
	pipeline, err := mparse.New().ParsePipeline("orders", stages)
	require.NoError(t, err)
	ctx := NewContext(Config{Collection: "orders", DataColumn: "data"}, Options{InlineBinds: true})
	out, err := Render(ctx, pipeline)
	require.NoError(t, err)
	assert.Empty(t, out.Binds())
	assert.Contains(t, out.SQL(), "'open'")
}
