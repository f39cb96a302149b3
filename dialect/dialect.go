// Package dialect names the Oracle SQL/JSON feature set a translation
// targets. The renderer never assumes extended features when the base
// dialect is selected.
package dialect

// Tag selects among the supported Oracle feature sets.
type Tag int

const (
	// Base is the default feature set: field paths render as JSON
	// dot-notation access and $sample as ORDER BY DBMS_RANDOM.VALUE.
	Base Tag = iota
	// Extended differs from Base only in $sample, which renders as native
	// SAMPLE(n) block sampling. JSON_VALUE ... RETURNING and JSON_TABLE
	// NESTED PATH are not emitted under either tag.
	Extended
)

// SupportsReturning reports whether JSON_VALUE ... RETURNING and similar
// typed-return clauses are available.
func (t Tag) SupportsReturning() bool { return t == Extended }

// SupportsNativeSample reports whether the SAMPLE(n) block-sampling clause
// should be used for $sample instead of ORDER BY DBMS_RANDOM.VALUE.
func (t Tag) SupportsNativeSample() bool { return t == Extended }
