package optoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupResolvesExpressionContextOperators(t *testing.T) {
	k, traits, ok := Lookup("$eq")
	require.True(t, ok)
	assert.Equal(t, KindEQ, k)
	assert.Equal(t, 2, traits.MinArity)
	assert.True(t, k.IsComparison())
}

func TestLookupUnknownToken(t *testing.T) {
	_, _, ok := Lookup("$doesNotExist")
	assert.False(t, ok)
}

func TestAccumulatorContextIsSeparateFromExpressionContext(t *testing.T) {
	exprKind, exprTraits, ok := Lookup("$min")
	require.True(t, ok)
	assert.True(t, exprKind.IsArithmetic())
	assert.Equal(t, -1, exprTraits.MaxArity)

	accKind, accTraits, ok := LookupAccumulator("$min")
	require.True(t, ok)
	assert.True(t, accKind.IsAccumulator())
	assert.Equal(t, 1, accTraits.MaxArity)
	assert.NotEqual(t, exprKind, accKind)
}

func TestFirstLastOverloadedBetweenContexts(t *testing.T) {
	exprKind, _, ok := Lookup("$first")
	require.True(t, ok)
	assert.True(t, exprKind.IsArray())

	accKind, _, ok := LookupAccumulator("$first")
	require.True(t, ok)
	assert.True(t, accKind.IsAccumulator())
}

func TestKindRangePredicatesAreExclusive(t *testing.T) {
	assert.True(t, KindEQ.IsComparison())
	assert.False(t, KindEQ.IsLogical())
	assert.False(t, KindEQ.IsArithmetic())

	assert.True(t, KindSUM.IsAccumulator())
	assert.False(t, KindSUM.IsArray())
}

func TestTraitsForMatchesLookup(t *testing.T) {
	k, want, ok := Lookup("$concat")
	require.True(t, ok)
	assert.Equal(t, want, TraitsFor(k))
}
