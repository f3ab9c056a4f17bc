package lexer

// Kind is a closed enumeration of token kinds: the standard Lua 5.3 set
// plus the Luraph-variant kinds it calls out.
type Kind int

const (
	EOF Kind = iota
	Unknown // synthetic: unknown byte, lexer never aborts on it

	Name
	ObfuscatedName // Name matching Luraph identifier-confusion heuristics
	Number
	String
	EncryptedString // String whose body looks like an encrypted blob
	VmCall          // produced downstream (parser/analyzer), never by the lexer itself

	Newline

	// keywords
	KwAnd
	KwBreak
	KwDo
	KwElse
	KwElseif
	KwEnd
	KwFalse
	KwFor
	KwFunction
	KwGoto
	KwIf
	KwIn
	KwLocal
	KwNil
	KwNot
	KwOr
	KwRepeat
	KwReturn
	KwThen
	KwTrue
	KwUntil
	KwWhile

	// separators
	SepSemi
	SepComma
	SepDot
	SepColon
	SepLabel // ::
	SepLParen
	SepRParen
	SepLBrack
	SepRBrack
	SepLCurly
	SepRCurly

	// operators
	OpAssign
	OpAdd
	OpMinus
	OpMul
	OpDiv
	OpIDiv
	OpPow
	OpMod
	OpBand
	OpBor
	OpBxor
	OpShl
	OpShr
	OpLen
	OpWave // ~ unary bnot
	OpConcat
	OpVararg
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpAnd // "and" keyword is KwAnd; kept distinct from bitwise ops above
)

var keywords = map[string]Kind{
	"and": KwAnd, "break": KwBreak, "do": KwDo, "else": KwElse,
	"elseif": KwElseif, "end": KwEnd, "false": KwFalse, "for": KwFor,
	"function": KwFunction, "goto": KwGoto, "if": KwIf, "in": KwIn,
	"local": KwLocal, "nil": KwNil, "not": KwNot, "or": KwOr,
	"repeat": KwRepeat, "return": KwReturn, "then": KwThen, "true": KwTrue,
	"until": KwUntil, "while": KwWhile,
}

var kindNames = map[Kind]string{
	EOF: "EOF", Unknown: "Unknown", Name: "Name", ObfuscatedName: "ObfuscatedName",
	Number: "Number", String: "String", EncryptedString: "EncryptedString",
	VmCall: "VmCall", Newline: "Newline",
	SepSemi: ";", SepComma: ",", SepDot: ".", SepColon: ":", SepLabel: "::",
	SepLParen: "(", SepRParen: ")", SepLBrack: "[", SepRBrack: "]",
	SepLCurly: "{", SepRCurly: "}",
	OpAssign: "=", OpAdd: "+", OpMinus: "-", OpMul: "*", OpDiv: "/",
	OpIDiv: "//", OpPow: "^", OpMod: "%", OpBand: "&", OpBor: "|",
	OpBxor: "~", OpShl: "<<", OpShr: ">>", OpLen: "#", OpWave: "~",
	OpConcat: "..", OpVararg: "...", OpEq: "==", OpNe: "~=", OpLt: "<",
	OpGt: ">", OpLe: "<=", OpGe: ">=",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	for kw, kind := range keywords {
		if kind == k {
			return kw
		}
	}
	return "?"
}

// Token is one lexical unit: kind, literal text, and source position.
type Token struct {
	Kind       Kind
	Lexeme     string
	Line       int
	Column     int
	ByteOffset int

	// StringMethod carries an explicit decryption method for an
	// EncryptedString token. The lexer never sets it, so it is always empty
	// ("auto") and the method is decided later by the Decryptor.
	StringMethod string
}
