package mellow

// TokenKind tags the lexical category of a Token.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokInt
	TokFloat
	TokString

	// keywords
	TokTo
	TokGive
	TokBack
	TokRemember
	TokWhen
	TokOtherwise
	TokRepeat
	TokTimes
	TokOnly
	TokIf
	TokOkayWord
	TokAttempt
	TokSafely
	TokReassure
	TokComplain
	TokThanks
	TokHello
	TokGoodbye
	TokWorker
	TokSide
	TokQuest
	TokSuperpower
	TokSpawn
	TokSend
	TokReceive
	TokChannel
	TokAwait
	TokCancel
	TokFrom
	TokDecide
	TokBased
	TokOn
	TokMeasured
	TokIn
	TokUse
	TokRenamed
	TokShare
	TokType
	TokConst
	TokStringType
	TokIntType
	TokFloatType
	TokBoolType
	TokMaybeType
	TokMust
	TokHave
	TokCare
	TokStrict
	TokVerbose
	TokTrue
	TokFalse
	TokAnd
	TokOr
	TokNot
	TokOkayCtor
	TokOopsCtor
	TokUnwrap

	// operators and punctuation
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokPercent
	TokEqEq
	TokNotEq
	TokLt
	TokGt
	TokLe
	TokGe
	TokAssign
	TokArrow    // ->
	TokArrowU   // →
	TokAmp
	TokPipe
	TokHash
	TokUnderscore
	TokQuestion
	TokLParen
	TokRParen
	TokLBrace
	TokRBrace
	TokLBracket
	TokRBracket
	TokComma
	TokSemicolon
	TokColon
	TokDot
	TokAt
)

var keywords = map[string]TokenKind{
	"to":         TokTo,
	"give":       TokGive,
	"back":       TokBack,
	"remember":   TokRemember,
	"when":       TokWhen,
	"otherwise":  TokOtherwise,
	"repeat":     TokRepeat,
	"times":      TokTimes,
	"only":       TokOnly,
	"if":         TokIf,
	"okay":       TokOkayWord,
	"attempt":    TokAttempt,
	"safely":     TokSafely,
	"reassure":   TokReassure,
	"complain":   TokComplain,
	"thanks":     TokThanks,
	"hello":      TokHello,
	"goodbye":    TokGoodbye,
	"worker":     TokWorker,
	"side":       TokSide,
	"quest":      TokQuest,
	"superpower": TokSuperpower,
	"spawn":      TokSpawn,
	"send":       TokSend,
	"receive":    TokReceive,
	"channel":    TokChannel,
	"await":      TokAwait,
	"cancel":     TokCancel,
	"from":       TokFrom,
	"decide":     TokDecide,
	"based":      TokBased,
	"on":         TokOn,
	"measured":   TokMeasured,
	"in":         TokIn,
	"use":        TokUse,
	"renamed":    TokRenamed,
	"share":      TokShare,
	"type":       TokType,
	"const":      TokConst,
	"String":     TokStringType,
	"Int":        TokIntType,
	"Float":      TokFloatType,
	"Bool":       TokBoolType,
	"Maybe":      TokMaybeType,
	"must":       TokMust,
	"have":       TokHave,
	"care":       TokCare,
	"strict":     TokStrict,
	"verbose":    TokVerbose,
	"true":       TokTrue,
	"false":      TokFalse,
	"and":        TokAnd,
	"or":         TokOr,
	"not":        TokNot,
	"Okay":       TokOkayCtor,
	"Oops":       TokOopsCtor,
	"unwrap":     TokUnwrap,
}

// Token is a single lexical unit together with the byte Range it
// occupies in the source and the decoded literal payload, if any.
type Token struct {
	Kind    TokenKind
	Range   Range
	Literal string // decoded identifier/string/number text
}

func (t Token) String() string {
	return t.Literal
}
