package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// These cases exercise $reduce/$slice/$concatArrays's real rendering, each
// added via a plain $addFields so the computed expression lands directly in
// the SELECT list as a named output column.

func TestRenderReduceSumPattern(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$addFields": {"total": {"$reduce": {
			"input": "$amounts",
			"initialValue": 0,
			"in": {"$add": ["$$value", "$$this"]}
		}}}}
	]`)
	assert.Contains(t, sql, "SUM(TO_NUMBER(jt.val))")
}

func TestRenderReduceConcatPattern(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$addFields": {"joined": {"$reduce": {
			"input": "$parts",
			"initialValue": "",
			"in": {"$concat": ["$$value", "$$this"]}
		}}}}
	]`)
	assert.Contains(t, sql, "LISTAGG(jt.val, '')")
}

func TestRenderReduceUnrecognizedPatternEmitsPlaceholder(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$addFields": {"weird": {"$reduce": {
			"input": "$parts",
			"initialValue": 0,
			"in": {"$multiply": ["$$value", "$$this"]}
		}}}}
	]`)
	assert.Contains(t, sql, "/* unsupported: $reduce general combiner */ NULL")
}

func TestRenderSliceTwoArgPositiveCount(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$addFields": {"firstTwo": {"$slice": ["$items", 2]}}}
	]`)
	assert.Contains(t, sql, "JSON_TABLE(")
	assert.Contains(t, sql, "idx FOR ORDINALITY")
	assert.Contains(t, sql, "WHERE jt.idx BETWEEN")
}

func TestRenderSliceThreeArgForm(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$addFields": {"page": {"$slice": ["$items", 1, 2]}}}
	]`)
	assert.Contains(t, sql, "WHERE jt.idx BETWEEN")
}

func TestRenderConcatArraysUsesUnionNotMergePatch(t *testing.T) {
	sql, _ := renderStages(t, "orders", `[
		{"$addFields": {"merged": {"$concatArrays": ["$a", "$b"]}}}
	]`)
	assert.NotContains(t, sql, "JSON_MERGEPATCH")
	assert.Contains(t, sql, "UNION ALL")
	assert.Contains(t, sql, "JSON_ARRAYAGG(x.val ORDER BY x.src, x.idx")
}
