// Package reconstruct lifts analyzed VM handlers into Lua 5.3
// instructions, then runs a peephole pass over the result to a fixed
// point before handing a VMProto to the emitter.
package reconstruct

import "github.com/Spencer-png/luraph-unscrambler/internal/luaopcode"

// VMInstruction is one decoded Lua 5.3 instruction. At most one of
// Bx/SBx/Ax is meaningful, selected by Opcode.ArgMode() (none for ABC
// opcodes); the rest are zero.
type VMInstruction struct {
	Opcode luaopcode.Op
	A, B, C int
	Bx     int
	SBx    int
	Ax     int
	Line   int
}

// Upvalue describes one upvalue slot of a VMProto.
type Upvalue struct {
	Name    string
	IsLocal bool
	Register int
}

// VMProto is the fully reconstructed function prototype the emitter
// writes out.
type VMProto struct {
	Code            []VMInstruction
	Consts          []VMConstant
	Upvals          []Upvalue
	Nested          []*VMProto
	Source          string
	LineDefined     int
	LastLineDefined int
	NumParams       int
	IsVararg        bool
	MaxStack        int
}

// VMConstant mirrors vmanalyze.Constant but belongs to the reconstructed
// proto rather than the analyzer's working context, since dedup/remap
// during the peephole pass mutates the pool independently of analysis.
type VMConstant struct {
	Type  ConstType
	Value interface{}
}

// ConstType names a VMConstant's Lua value kind.
type ConstType int

const (
	ConstNil ConstType = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
)
