// Package optoken is the closed enumeration of aggregation operator tokens
// and their mapping to internal kinds, mirroring the source language's
// operator surface ($eq, $sum, $rank, ...) the way a SQL parser's token
// package maps keywords to a closed token set.
package optoken

// Kind is the closed set of internal operator kinds a token can resolve to.
// Ranges are delimited by sentinel markers so a kind can be classified by
// range membership without a second lookup table.
type Kind int

const (
	compareBeg Kind = iota
	KindEQ
	KindNE
	KindGT
	KindGTE
	KindLT
	KindLTE
	KindIN
	KindNIN
	compareEnd

	logicalBeg
	KindAND
	KindOR
	KindNOT
	KindNOR
	logicalEnd

	arithBeg
	KindADD
	KindSUBTRACT
	KindMULTIPLY
	KindDIVIDE
	KindMOD
	KindROUND
	KindABS
	KindCEIL
	KindFLOOR
	KindTRUNC
	KindSQRT
	KindPOW
	KindEXP
	KindLN
	KindLOG10
	KindMAX
	KindMIN
	arithEnd

	condBeg
	KindCOND
	KindIFNULL
	condEnd

	stringBeg
	KindTOUPPER
	KindTOLOWER
	KindTRIM
	KindLTRIM
	KindRTRIM
	KindSTRLEN
	KindCONCAT
	KindSUBSTR
	KindSPLIT
	KindINDEXOFBYTES
	KindREGEXMATCH
	KindREGEXFIND
	KindREPLACEONE
	KindREPLACEALL
	stringEnd

	dateBeg
	KindYEAR
	KindMONTH
	KindDAYOFMONTH
	KindHOUR
	KindMINUTE
	KindSECOND
	KindDAYOFWEEK
	KindDAYOFYEAR
	dateEnd

	arrayBeg
	KindARRAYELEMAT
	KindSIZE
	KindFIRST
	KindLAST
	KindCONCATARRAYS
	KindSLICE
	KindFILTER
	KindMAP
	KindREDUCE
	arrayEnd

	accBeg
	KindSUM
	KindAVG
	KindCOUNT
	KindACCMIN
	KindACCMAX
	KindACCFIRST
	KindACCLAST
	KindPUSH
	KindADDTOSET
	accEnd

	convBeg
	KindTYPE
	KindTOINT
	KindTOLONG
	KindTODOUBLE
	KindTODECIMAL
	KindTOSTRING
	KindTOBOOL
	KindTODATE
	KindCONVERT
	convEnd
)

// Traits carries the per-kind properties the renderer and parser consult to
// avoid ad-hoc string comparisons: arity bounds and a handful of behaviour
// flags.
type Traits struct {
	MinArity              int
	MaxArity              int // -1 means unbounded
	AllowsSingleOperand   bool
	RequiresFunctionCall  bool
	IsAccumulator         bool
	IsStringOp            bool
	IsDateOp              bool
	IsArrayOp             bool
}

// IsComparison reports whether k is one of the comparison kinds.
func (k Kind) IsComparison() bool { return k > compareBeg && k < compareEnd }

// IsLogical reports whether k is one of the logical kinds.
func (k Kind) IsLogical() bool { return k > logicalBeg && k < logicalEnd }

// IsArithmetic reports whether k is one of the arithmetic kinds.
func (k Kind) IsArithmetic() bool { return k > arithBeg && k < arithEnd }

// IsConditional reports whether k is one of the conditional kinds.
func (k Kind) IsConditional() bool { return k > condBeg && k < condEnd }

// IsString reports whether k is one of the string kinds.
func (k Kind) IsString() bool { return k > stringBeg && k < stringEnd }

// IsDate reports whether k is one of the date kinds.
func (k Kind) IsDate() bool { return k > dateBeg && k < dateEnd }

// IsArray reports whether k is one of the array kinds.
func (k Kind) IsArray() bool { return k > arrayBeg && k < arrayEnd }

// IsAccumulator reports whether k is one of the accumulator kinds.
func (k Kind) IsAccumulator() bool { return k > accBeg && k < accEnd }

// IsConversion reports whether k is one of the type-conversion kinds.
func (k Kind) IsConversion() bool { return k > convBeg && k < convEnd }

var byToken = map[string]Kind{}
var byAccumulatorToken = map[string]Kind{}
var traits = map[Kind]Traits{}

func reg(token string, k Kind, t Traits) {
	byToken[token] = k
	traits[k] = t
}

// regAcc registers a token that only resolves in accumulator context
// ($group/$bucket/$bucketAuto output, $setWindowFields output). Several
// tokens ($min, $max, $first, $last) are legitimately overloaded between
// accumulator context and plain expression context (arithmetic min/max,
// array first/last) with different arities and semantics in each, so the
// two contexts are kept in separate tables rather than one map with a
// last-registration-wins collision.
func regAcc(token string, k Kind, t Traits) {
	byAccumulatorToken[token] = k
	traits[k] = t
}

func init() {
	reg("$eq", KindEQ, Traits{MinArity: 2, MaxArity: 2})
	reg("$ne", KindNE, Traits{MinArity: 2, MaxArity: 2})
	reg("$gt", KindGT, Traits{MinArity: 2, MaxArity: 2})
	reg("$gte", KindGTE, Traits{MinArity: 2, MaxArity: 2})
	reg("$lt", KindLT, Traits{MinArity: 2, MaxArity: 2})
	reg("$lte", KindLTE, Traits{MinArity: 2, MaxArity: 2})
	reg("$in", KindIN, Traits{MinArity: 2, MaxArity: -1})
	reg("$nin", KindNIN, Traits{MinArity: 2, MaxArity: -1})

	reg("$and", KindAND, Traits{MinArity: 1, MaxArity: -1})
	reg("$or", KindOR, Traits{MinArity: 1, MaxArity: -1})
	reg("$not", KindNOT, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true})
	reg("$nor", KindNOR, Traits{MinArity: 1, MaxArity: -1})

	reg("$add", KindADD, Traits{MinArity: 2, MaxArity: -1, RequiresFunctionCall: false})
	reg("$subtract", KindSUBTRACT, Traits{MinArity: 2, MaxArity: 2})
	reg("$multiply", KindMULTIPLY, Traits{MinArity: 2, MaxArity: -1})
	reg("$divide", KindDIVIDE, Traits{MinArity: 2, MaxArity: 2})
	reg("$mod", KindMOD, Traits{MinArity: 2, MaxArity: 2})
	reg("$round", KindROUND, Traits{MinArity: 1, MaxArity: 2, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$abs", KindABS, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$ceil", KindCEIL, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$floor", KindFLOOR, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$trunc", KindTRUNC, Traits{MinArity: 1, MaxArity: 2, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$sqrt", KindSQRT, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$pow", KindPOW, Traits{MinArity: 2, MaxArity: 2, RequiresFunctionCall: true})
	reg("$exp", KindEXP, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$ln", KindLN, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$log10", KindLOG10, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$max", KindMAX, Traits{MinArity: 1, MaxArity: -1, RequiresFunctionCall: true})
	reg("$min", KindMIN, Traits{MinArity: 1, MaxArity: -1, RequiresFunctionCall: true})

	reg("$cond", KindCOND, Traits{MinArity: 3, MaxArity: 3})
	reg("$ifNull", KindIFNULL, Traits{MinArity: 2, MaxArity: 2})

	reg("$toUpper", KindTOUPPER, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsStringOp: true, RequiresFunctionCall: true})
	reg("$toLower", KindTOLOWER, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsStringOp: true, RequiresFunctionCall: true})
	reg("$trim", KindTRIM, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsStringOp: true, RequiresFunctionCall: true})
	reg("$ltrim", KindLTRIM, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsStringOp: true, RequiresFunctionCall: true})
	reg("$rtrim", KindRTRIM, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsStringOp: true, RequiresFunctionCall: true})
	reg("$strLenCP", KindSTRLEN, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsStringOp: true, RequiresFunctionCall: true})
	reg("$concat", KindCONCAT, Traits{MinArity: 1, MaxArity: -1, IsStringOp: true, RequiresFunctionCall: true})
	reg("$substrCP", KindSUBSTR, Traits{MinArity: 3, MaxArity: 3, IsStringOp: true, RequiresFunctionCall: true})
	reg("$split", KindSPLIT, Traits{MinArity: 2, MaxArity: 2, IsStringOp: true, RequiresFunctionCall: true})
	reg("$indexOfBytes", KindINDEXOFBYTES, Traits{MinArity: 2, MaxArity: 4, IsStringOp: true, RequiresFunctionCall: true})
	reg("$regexMatch", KindREGEXMATCH, Traits{MinArity: 2, MaxArity: 3, IsStringOp: true, RequiresFunctionCall: true})
	reg("$regexFind", KindREGEXFIND, Traits{MinArity: 2, MaxArity: 3, IsStringOp: true, RequiresFunctionCall: true})
	reg("$replaceOne", KindREPLACEONE, Traits{MinArity: 3, MaxArity: 3, IsStringOp: true, RequiresFunctionCall: true})
	reg("$replaceAll", KindREPLACEALL, Traits{MinArity: 3, MaxArity: 3, IsStringOp: true, RequiresFunctionCall: true})

	reg("$year", KindYEAR, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsDateOp: true, RequiresFunctionCall: true})
	reg("$month", KindMONTH, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsDateOp: true, RequiresFunctionCall: true})
	reg("$dayOfMonth", KindDAYOFMONTH, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsDateOp: true, RequiresFunctionCall: true})
	reg("$hour", KindHOUR, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsDateOp: true, RequiresFunctionCall: true})
	reg("$minute", KindMINUTE, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsDateOp: true, RequiresFunctionCall: true})
	reg("$second", KindSECOND, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsDateOp: true, RequiresFunctionCall: true})
	reg("$dayOfWeek", KindDAYOFWEEK, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsDateOp: true, RequiresFunctionCall: true})
	reg("$dayOfYear", KindDAYOFYEAR, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsDateOp: true, RequiresFunctionCall: true})

	reg("$arrayElemAt", KindARRAYELEMAT, Traits{MinArity: 2, MaxArity: 2, IsArrayOp: true, RequiresFunctionCall: true})
	reg("$size", KindSIZE, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsArrayOp: true, RequiresFunctionCall: true})
	reg("$first", KindFIRST, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsArrayOp: true, RequiresFunctionCall: true})
	reg("$last", KindLAST, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, IsArrayOp: true, RequiresFunctionCall: true})
	reg("$concatArrays", KindCONCATARRAYS, Traits{MinArity: 1, MaxArity: -1, IsArrayOp: true, RequiresFunctionCall: true})
	reg("$slice", KindSLICE, Traits{MinArity: 2, MaxArity: 3, IsArrayOp: true, RequiresFunctionCall: true})
	reg("$filter", KindFILTER, Traits{MinArity: 1, MaxArity: 1, IsArrayOp: true, RequiresFunctionCall: true})
	reg("$map", KindMAP, Traits{MinArity: 1, MaxArity: 1, IsArrayOp: true, RequiresFunctionCall: true})
	reg("$reduce", KindREDUCE, Traits{MinArity: 1, MaxArity: 1, IsArrayOp: true, RequiresFunctionCall: true})

	regAcc("$sum", KindSUM, Traits{MinArity: 1, MaxArity: 1, IsAccumulator: true, RequiresFunctionCall: true})
	regAcc("$avg", KindAVG, Traits{MinArity: 1, MaxArity: 1, IsAccumulator: true, RequiresFunctionCall: true})
	regAcc("$count", KindCOUNT, Traits{MinArity: 0, MaxArity: 0, IsAccumulator: true, RequiresFunctionCall: true})
	regAcc("$min", KindACCMIN, Traits{MinArity: 1, MaxArity: 1, IsAccumulator: true, RequiresFunctionCall: true})
	regAcc("$max", KindACCMAX, Traits{MinArity: 1, MaxArity: 1, IsAccumulator: true, RequiresFunctionCall: true})
	regAcc("$first", KindACCFIRST, Traits{MinArity: 1, MaxArity: 1, IsAccumulator: true, RequiresFunctionCall: true})
	regAcc("$last", KindACCLAST, Traits{MinArity: 1, MaxArity: 1, IsAccumulator: true, RequiresFunctionCall: true})
	regAcc("$push", KindPUSH, Traits{MinArity: 1, MaxArity: 1, IsAccumulator: true, RequiresFunctionCall: true})
	regAcc("$addToSet", KindADDTOSET, Traits{MinArity: 1, MaxArity: 1, IsAccumulator: true, RequiresFunctionCall: true})

	reg("$type", KindTYPE, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$toInt", KindTOINT, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$toLong", KindTOLONG, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$toDouble", KindTODOUBLE, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$toDecimal", KindTODECIMAL, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$toString", KindTOSTRING, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$toBool", KindTOBOOL, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$toDate", KindTODATE, Traits{MinArity: 1, MaxArity: 1, AllowsSingleOperand: true, RequiresFunctionCall: true})
	reg("$convert", KindCONVERT, Traits{MinArity: 1, MaxArity: 1, RequiresFunctionCall: true})
}

// Lookup resolves a source token (e.g. "$eq") to its internal kind. The
// second value is true and the returned traits are valid when the mapping
// exists.
func Lookup(token string) (Kind, Traits, bool) {
	k, ok := byToken[token]
	if !ok {
		return 0, Traits{}, false
	}
	return k, traits[k], true
}

// LookupAccumulator resolves a token within accumulator context (the value
// side of a $group/$bucket/$bucketAuto output mapping, or a
// $setWindowFields output entry).
func LookupAccumulator(token string) (Kind, Traits, bool) {
	k, ok := byAccumulatorToken[token]
	if !ok {
		return 0, Traits{}, false
	}
	return k, traits[k], true
}

// TraitsFor returns the trait record for an already-resolved kind.
func TraitsFor(k Kind) Traits { return traits[k] }
