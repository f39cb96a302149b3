package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The six cases below are literal end-to-end input/output pairs: each names
// an SQL shape a human reviewer can check against the aggregation input
// without running anything. Four of them assert the whole SQL text exactly;
// the lookup and facet cases assert the required fragments with Contains.
// Expected text is computed from the known, deterministic rendering rules
// (base alias "t0" is always the first alias allocated by Render, a bare
// field path renders as "<alias>.<data column>.<path>").

func TestScenarioSimplePagination(t *testing.T) {
	sql, binds := renderStages(t, "orders", `[{"$skip":10},{"$limit":5}]`)
	assert.Equal(t, `SELECT t0.data FROM orders t0 OFFSET 10 ROWS FETCH FIRST 5 ROWS ONLY`, sql)
	assert.Empty(t, binds)
}

func TestScenarioMatchGroupSortLimit(t *testing.T) {
	sql, binds := renderStages(t, "orders", `[
		{"$match":{"status":"completed"}},
		{"$group":{"_id":"$customerId","totalAmount":{"$sum":"$amount"}}},
		{"$sort":{"totalAmount":-1}},
		{"$limit":3}
	]`)
	want := `SELECT t0.data.customerId AS "_id", SUM(t0.data.amount) AS "totalAmount" ` +
		`FROM orders t0 WHERE (t0.data.status = :1) GROUP BY t0.data.customerId ` +
		`ORDER BY "totalAmount" DESC FETCH FIRST 3 ROWS ONLY`
	assert.Equal(t, want, sql)
	assert.Equal(t, []any{"completed"}, binds)
}

func TestScenarioLookupUnwindMatch(t *testing.T) {
	sql, binds := renderStages(t, "orders", `[
		{"$lookup":{"from":"customers","localField":"customerId","foreignField":"email","as":"customer"}},
		{"$unwind":"$customer"},
		{"$match":{"customer.tier":"gold"}}
	]`)
	assert.Contains(t, sql, "FROM orders t0 LEFT OUTER JOIN customers t1 ON t1.data.email = t0.data.customerId")
	assert.NotContains(t, sql, "JSON_TABLE", "unwind of the lookup's own as-name must not also emit a JSON_TABLE join")
	assert.Contains(t, sql, "WHERE (t1.data.tier = :1)")
	assert.Equal(t, []any{"gold"}, binds)
}

func TestScenarioWindowFunctionPostWindowMatch(t *testing.T) {
	sql, binds := renderStages(t, "employees", `[
		{"$setWindowFields":{"partitionBy":"$state","sortBy":{"salary":-1},"output":{"rank":{"$rank":{}}}}},
		{"$match":{"rank":{"$lte":3}}}
	]`)
	want := `SELECT * FROM (SELECT id, data, RANK() OVER (PARTITION BY t0.data.state ` +
		`ORDER BY t0.data.salary DESC) AS "rank" FROM employees t0) w WHERE ("rank" <= :1)`
	assert.Equal(t, want, sql)
	assert.Equal(t, []any{int32(3)}, binds)
}

func TestScenarioFacetPagination(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$match":{"active":true}},
		{"$group":{"_id":"$category","total":{"$sum":"$amount"}}},
		{"$facet":{"recordCount":[{"$count":"count"}],"data":[{"$skip":0},{"$limit":5}]}}
	]`)
	assert.Contains(t, sql, "JSON_OBJECT(")
	assert.Contains(t, sql, `'recordCount' VALUE (`)
	assert.Contains(t, sql, `'data' VALUE (`)
	assert.Contains(t, sql, "FROM DUAL")
}

func TestScenarioOutStage(t *testing.T) {
	sql, binds := renderStages(t, "orders", `[
		{"$match":{"status":"completed"}},
		{"$out":"archive"}
	]`)
	want := `INSERT INTO archive (data) SELECT t0.data FROM orders t0 WHERE (t0.data.status = :1)`
	assert.Equal(t, want, sql)
	assert.Equal(t, []any{"completed"}, binds)
}
