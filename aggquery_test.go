package aggquery

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/ddml"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// decodeStages parses a JSON array of extended-JSON stage documents into
// []bson.D, the shape Translate expects.
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

func TestTranslateSimpleMatchProject(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	stages := decodeStages(t, `[
		{"$match": {"status": "open"}},
		{"$project": {"customer": 1, "total": 1}}
	]`)
	result, err := tr.Translate(context.Background(), stages, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "FROM orders")
	assert.Contains(t, result.SQL, "JSON_ARRAYAGG")
	require.Len(t, result.Binds, 1)
	assert.Equal(t, "open", result.Binds[0])
}

func TestTranslateGroupAndSort(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	stages := decodeStages(t, `[
		{"$group": {"_id": "$status", "total": {"$sum": "$amount"}}},
		{"$sort": {"total": -1}}
	]`)
	result, err := tr.Translate(context.Background(), stages, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "GROUP BY")
	assert.Contains(t, result.SQL, "ORDER BY")
}

func TestTranslateLimitSkip(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	stages := decodeStages(t, `[{"$skip": 10}, {"$limit": 5}]`)
	result, err := tr.Translate(context.Background(), stages, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "OFFSET 10 ROWS")
	assert.Contains(t, result.SQL, "FETCH FIRST 5 ROWS ONLY")
}

func TestTranslateInlineBindsSkipsBindList(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	stages := decodeStages(t, `[{"$match": {"status": "open"}}]`)
	result, err := tr.Translate(context.Background(), stages, Options{InlineBinds: true})
	require.NoError(t, err)
	assert.Empty(t, result.Binds)
	assert.Contains(t, result.SQL, "'open'")
}

func TestTranslateRejectsInvalidCollectionName(t *testing.T) {
	tr := New(Config{Collection: "bad table"})
	_, err := tr.Translate(context.Background(), nil, Options{})
	require.Error(t, err)
	_, ok := err.(*ValidationError)
	assert.True(t, ok)
}

func TestTranslateUnsupportedOperatorError(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	stages := decodeStages(t, `[{"$geoNear": {}}]`)
	_, err := tr.Translate(context.Background(), stages, Options{})
	require.Error(t, err)
	_, ok := err.(*UnsupportedOperatorError)
	assert.True(t, ok)
}

func TestTranslateCancelledContext(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Translate(ctx, nil, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTranslateCountStage(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	stages := decodeStages(t, `[{"$match": {"status": "open"}}, {"$count": "n"}]`)
	result, err := tr.Translate(context.Background(), stages, Options{})
	require.NoError(t, err)
	assert.True(t, strings.Contains(result.SQL, `COUNT(*) AS "n"`))
}

func TestTranslateBadIdentifierInPipelineBecomesValidationError(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	stages := decodeStages(t, `[{"$match": {"bad..field": 1}}]`)
	_, err := tr.Translate(context.Background(), stages, Options{})
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	require.Len(t, ve.Issues, 1)
	assert.Equal(t, identifierIssueCode, ve.Issues[0].Code)
}

func TestTranslateStrictModeRejectsRecursiveGraphLookup(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	stages := decodeStages(t, `[{"$graphLookup": {
		"from": "orders",
		"startWith": "$parentId",
		"connectFromField": "parentId",
		"connectToField": "_id",
		"as": "ancestors"
	}}]`)
	_, err := tr.Translate(context.Background(), stages, Options{Strict: true})
	require.Error(t, err)
	uoe, ok := err.(*UnsupportedOperatorError)
	require.True(t, ok)
	assert.Equal(t, "$graphLookup", uoe.Operator)
}

func TestTranslateNonStrictAllowsRecursiveGraphLookupPlaceholder(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	stages := decodeStages(t, `[{"$graphLookup": {
		"from": "orders",
		"startWith": "$parentId",
		"connectFromField": "parentId",
		"connectToField": "_id",
		"as": "ancestors"
	}}]`)
	result, err := tr.Translate(context.Background(), stages, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "unsupported: recursive $graphLookup")
}

func TestTranslateLookupAndUnwind(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	stages := decodeStages(t, `[
		{"$lookup": {"from": "customers", "localField": "customerId", "foreignField": "_id", "as": "customer"}},
		{"$unwind": "$customer"}
	]`)
	result, err := tr.Translate(context.Background(), stages, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "customers")
}

func TestTranslateDeclaredSchemaCastsNumericFieldComparison(t *testing.T) {
	schema := ddml.NewSchema("test")
	orders := ddml.NewCollection("orders")
	orders.AddField(ddml.NewField("total", ddml.TypeFloat))
	orders.AddField(ddml.NewField("status", ddml.TypeString))
	schema.AddCollection(orders)

	tr := New(Config{Collection: "orders", DeclaredSchema: schema})
	stages := decodeStages(t, `[{"$match": {"total": {"$gt": 100}}}]`)
	result, err := tr.Translate(context.Background(), stages, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "CAST(")
	assert.Contains(t, result.SQL, "AS NUMBER)")
}

func TestTranslateWithoutDeclaredSchemaOmitsNumericCast(t *testing.T) {
	tr := New(Config{Collection: "orders"})
	stages := decodeStages(t, `[{"$match": {"total": {"$gt": 100}}}]`)
	result, err := tr.Translate(context.Background(), stages, Options{})
	require.NoError(t, err)
	assert.NotContains(t, result.SQL, "CAST(")
}
