package ast

// FrameUnit selects ROWS BETWEEN vs RANGE BETWEEN framing for a window.
type FrameUnit int

const (
	FrameDocuments FrameUnit = iota
	FrameRange
)

// BoundKind is one of the three states a window frame bound can take:
// unbounded, the current row, or an explicit offset in OffsetRows.
type BoundKind int

const (
	BoundUnbounded BoundKind = iota
	BoundCurrent
	BoundOffset
)

// Bound is one edge of a window frame. OffsetRows is only meaningful when
// Kind is BoundOffset: positive values render as "n FOLLOWING" on the upper
// bound, negative values render as "n PRECEDING" on the lower bound, and
// zero on either side collapses to CURRENT ROW.
type Bound struct {
	Kind       BoundKind
	OffsetRows int
}

// Frame describes a $setWindowFields window's (unit, lower, upper) triple.
// A nil *Frame means the output field has no explicit frame (the default,
// unbounded-to-current, frame applies).
type Frame struct {
	Unit  FrameUnit
	Lower Bound
	Upper Bound
}

// SortField is a single (field-path, direction) pair.
type SortField struct {
	Path       string
	Descending bool
}

// WindowOp enumerates the operators $setWindowFields may name in its output
// mapping: every group accumulator doubles as a window function, plus the
// ordinal/ranking functions that have no group-accumulator equivalent.
type WindowOp int

const (
	WinSum WindowOp = iota
	WinAvg
	WinCount
	WinMin
	WinMax
	WinFirst
	WinLast
	WinPush
	WinAddToSet
	WinRank
	WinDenseRank
	WinRowNumber
)

// WindowOutput is one named window computation within a $setWindowFields
// stage's output mapping. Arg is nil for the argument-less ranking
// functions (rank, denseRank, rowNumber).
type WindowOutput struct {
	Name  string
	Op    WindowOp
	Arg   Expression
	Frame *Frame
}
