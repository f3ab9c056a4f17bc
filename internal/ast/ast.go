// Package ast defines the abstract syntax tree the parser builds.
//
// Design Note: the luago reference compiler's AST (compiler/ast) models Exp/Stat as
// untyped interface{} sums and leans on type assertions everywhere. We
// instead use a closed tagged union: every node is a distinct Go struct
// implementing the Node marker interface, and every visitor is an
// exhaustive type switch over known shapes — "unknown shape" becomes an
// explicit default case, never a crash from an unchecked assertion.
package ast

// Node is implemented by every AST node; Pos reports its source position.
type Node interface {
	Pos() Position
}

type Position struct {
	Line   int
	Column int
}

func (p Position) Pos() Position { return p }

// LuaType names the four literal value types the Literal node and
// VMConstant share.
type LuaType int

const (
	TNil LuaType = iota
	TBool
	TNumber
	TString
)

// ---- expressions ----

type Literal struct {
	Position
	Value interface{} // nil, bool, int64, float64, or string
	Type  LuaType
}

type EncryptedString struct {
	Position
	Bytes  []byte
	Method string // "" means unresolved / auto
}

type Identifier struct {
	Position
	Name       string
	Obfuscated bool
}

type Vararg struct{ Position }

type Unary struct {
	Position
	Op string
	A  Node
}

type Binary struct {
	Position
	Op   string
	L, R Node
}

// Call covers both plain calls and the parser's VM-dispatch annotation:
// a call whose callee matches a MOVE/LOADK/CALL/JMP-like name is flagged
// VMCall with VMOp set to the matched mnemonic.
type Call struct {
	Position
	Callee Node
	Args   []Node
	Method string // non-empty for obj:method(...) calls
	VMCall bool
	VMOp   string
}

type FuncDef struct {
	Position
	LastLine int
	Params   []string
	IsVararg bool
	Body     *Block
}

type TableField struct {
	Position
	Key  Node // nil for positional (list) fields
	Val  Node
	Kind FieldKind
}

type FieldKind int

const (
	FieldList FieldKind = iota
	FieldRecord
)

type TableCtor struct {
	Position
	LastLine      int
	Fields        []*TableField
	ConstantTable bool // set when every field is a Literal/EncryptedString and len >= 6
}

// ---- statements ----

type Block struct {
	Position
	LastLine int
	Stats    []Node
	Return   []Node // nil if the block has no return statement
}

type Assign struct {
	Position
	LastLine int
	Targets  []Node
	Values   []Node
	IsLocal  bool
	Names    []string // used only when IsLocal and targets are plain names
}

type FunctionDecl struct {
	Position
	Name         string
	Params       []string
	IsVararg     bool
	Body         *Block
	IsLocal      bool
	IsMethod     bool
	VMHandler    bool
	HandlerIndex int // valid only if VMHandler
}

type If struct {
	Position
	Conds  []Node // parallel to Blocks; Conds[i] guards Blocks[i]
	Blocks []*Block
	Else   *Block // nil if no else
}

type ForKind int

const (
	ForNumeric ForKind = iota
	ForGeneric
)

type For struct {
	Position
	Kind ForKind
	// numeric
	Var              string
	Init, Limit, Step Node
	// generic
	Names []string
	Exprs []Node

	Body *Block
}

type While struct {
	Position
	Cond   Node
	Body   *Block
	Repeat bool // true => "repeat ... until cond" (cond tested after body)
}

type Return struct {
	Position
	Args []Node
}

type Break struct{ Position }
type Goto struct {
	Position
	Label string
}
type Label struct {
	Position
	Name string
}
type Do struct {
	Position
	Body *Block
}
