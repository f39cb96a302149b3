package ast

// Match filters documents by a predicate expression, evaluated in filter
// context.
type Match struct {
	Filter Expression
}

func (*Match) isStage() {}

// Group reduces a set of documents keyed by Id (nil means group-all) into
// one output document per group via Outputs (accumulator expressions).
type Group struct {
	Id      Expression // nil, a FieldPath, a CompoundId, or any expression
	Outputs []NamedExpr
}

func (*Group) isStage() {}

// Project selects or reshapes fields. Exclude is true when Fields lists
// names to remove (exclusion mode) rather than name->expression computed
// projections (inclusion mode); the two modes are never mixed within one
// stage.
type Project struct {
	Exclude bool
	Fields  []NamedExpr // in exclusion mode, Expr is unused
}

func (*Project) isStage() {}

// Sort orders by an ordered list of (field, direction) pairs. LimitHint is
// set by an external optimiser pass to mark a Top-N candidate; the core
// renderer does not set it itself.
type Sort struct {
	Fields    []SortField
	LimitHint int // 0 means unset
}

func (*Sort) isStage() {}

// Limit caps the result at N rows (N must be positive).
type Limit struct {
	N int64
}

func (*Limit) isStage() {}

// Skip discards the first N rows (N may be zero).
type Skip struct {
	N int64
}

func (*Skip) isStage() {}

// Lookup performs a left outer join against another collection, either in
// equality form (Local/Foreign set, Pipeline nil) or pipeline form
// (Let/Pipeline set, Local/Foreign empty).
type Lookup struct {
	From     string
	Local    string
	Foreign  string
	Let      []NamedExpr
	Pipeline []Stage
	As       string
}

func (*Lookup) isStage() {}

// Unwind flattens an array field into one row per element.
type Unwind struct {
	Path                       string
	IncludeArrayIndex          string // empty means not requested
	PreserveNullAndEmptyArrays bool
}

func (*Unwind) isStage() {}

// AddFields adds or overwrites computed fields, registering each as a
// virtual field for subsequent stages.
type AddFields struct {
	Fields []NamedExpr
}

func (*AddFields) isStage() {}

// UnionWith appends the rows of another collection, optionally transformed
// by an inner pipeline, via UNION ALL.
type UnionWith struct {
	Collection string
	Pipeline   []Stage
}

func (*UnionWith) isStage() {}

// Bucket groups into explicit, user-defined boundary ranges.
type Bucket struct {
	GroupBy     Expression
	Boundaries  []Expression // len >= 2, assumed monotonically non-decreasing
	Default     Expression   // nil means no default bucket
	Output      []NamedExpr
}

func (*Bucket) isStage() {}

// BucketAuto groups into Count equal-population buckets determined at
// render time via NTILE.
type BucketAuto struct {
	GroupBy     Expression
	Count       int64
	Output      []NamedExpr
	Granularity string // optional, informational only
}

func (*BucketAuto) isStage() {}

// Facet runs each named sub-pipeline independently and collects the results
// into one output document.
type Facet struct {
	Facets []NamedFacet
}

func (*Facet) isStage() {}

// NamedFacet is one entry of a $facet stage.
type NamedFacet struct {
	Name     string
	Pipeline []Stage
}

// GraphLookup performs a recursive search that in the general case
// (MaxDepth absent or > 0) has no supported SQL translation; see the
// render package for the placeholder it emits.
type GraphLookup struct {
	From                    string
	StartWith               Expression
	ConnectFromField        string
	ConnectToField          string
	As                      string
	MaxDepth                *int64
	DepthField              string
	RestrictSearchWithMatch Expression
}

func (*GraphLookup) isStage() {}

// SetWindowFields computes one or more window functions over an optionally
// partitioned, optionally sorted window.
type SetWindowFields struct {
	Partition Expression // nil means a single partition
	SortBy    []SortField
	Output    []WindowOutput
}

func (*SetWindowFields) isStage() {}

// Redact evaluates Expr per document; only the $$PRUNE sentinel has a
// supported translation (as a WHERE exclusion). See render package.
type Redact struct {
	Expr Expression
}

func (*Redact) isStage() {}

// Sample selects Size rows at random.
type Sample struct {
	Size int64
}

func (*Sample) isStage() {}

// Count emits a single document with one field (Field, must not start with
// "$") holding the input row count.
type Count struct {
	Field string
}

func (*Count) isStage() {}

// WhenMatched enumerates $merge's policy for rows with an existing match.
type WhenMatched int

const (
	MergeReplace WhenMatched = iota
	MergeKeepExisting
	MergeMerge
	MergeFail
)

// WhenNotMatched enumerates $merge's policy for rows with no existing match.
type WhenNotMatched int

const (
	MergeInsert WhenNotMatched = iota
	MergeDiscard
	MergeFailNotMatched
)

// Merge upserts the pipeline's output into another collection.
type Merge struct {
	Into           string
	IntoDB         string // optional
	On             []string // defaults to ["_id"]
	WhenMatched    WhenMatched
	WhenNotMatched WhenNotMatched
}

func (*Merge) isStage() {}

// Out writes the pipeline's output into another collection, replacing its
// contents.
type Out struct {
	Into   string
	IntoDB string // optional
}

func (*Out) isStage() {}

// ReplaceRoot replaces each document with the value of NewRoot.
type ReplaceRoot struct {
	NewRoot Expression
}

func (*ReplaceRoot) isStage() {}

// Unset removes the named field paths.
type Unset struct {
	Paths []string
}

func (*Unset) isStage() {}
