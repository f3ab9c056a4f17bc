package vmanalyze

import (
	"strings"

	"github.com/Spencer-png/luraph-unscrambler/internal/ast"
	"github.com/Spencer-png/luraph-unscrambler/internal/luaopcode"
)

// nameHints maps lowercase substrings found in a handler's declared name
// to the opcode family they signal. Checked in table order; first match
// wins.
var nameHints = []struct {
	sub string
	op  luaopcode.Op
}{
	{"move", luaopcode.MOVE},
	{"copy", luaopcode.MOVE},
	{"loadk", luaopcode.LOADK},
	{"loadbool", luaopcode.LOADBOOL},
	{"loadnil", luaopcode.LOADNIL},
	{"getupval", luaopcode.GETUPVAL},
	{"gettabup", luaopcode.GETTABUP},
	{"gettable", luaopcode.GETTABLE},
	{"settabup", luaopcode.SETTABUP},
	{"setupval", luaopcode.SETUPVAL},
	{"settable", luaopcode.SETTABLE},
	{"newtable", luaopcode.NEWTABLE},
	{"self", luaopcode.SELF},
	// generic "table" catches a bare name like "table_7" once the more
	// specific get/set/new-table hints above have had first crack.
	{"table", luaopcode.NEWTABLE},
	{"add", luaopcode.ADD},
	{"sub", luaopcode.SUB},
	{"mul", luaopcode.MUL},
	{"mod", luaopcode.MOD},
	{"pow", luaopcode.POW},
	{"div", luaopcode.DIV},
	{"idiv", luaopcode.IDIV},
	{"band", luaopcode.BAND},
	{"bor", luaopcode.BOR},
	{"bxor", luaopcode.BXOR},
	{"shl", luaopcode.SHL},
	{"shr", luaopcode.SHR},
	{"unm", luaopcode.UNM},
	{"bnot", luaopcode.BNOT},
	{"not", luaopcode.NOT},
	{"len", luaopcode.LEN},
	{"concat", luaopcode.CONCAT},
	{"jmp", luaopcode.JMP},
	{"jump", luaopcode.JMP},
	{"eq", luaopcode.EQ},
	{"lt", luaopcode.LT},
	{"le", luaopcode.LE},
	{"test", luaopcode.TEST},
	{"call", luaopcode.CALL},
	{"tailcall", luaopcode.TAILCALL},
	{"return", luaopcode.RETURN},
	{"forloop", luaopcode.FORLOOP},
	{"forprep", luaopcode.FORPREP},
	{"tforcall", luaopcode.TFORCALL},
	{"tforloop", luaopcode.TFORLOOP},
	{"setlist", luaopcode.SETLIST},
	{"closure", luaopcode.CLOSURE},
	{"vararg", luaopcode.VARARG},
}

// inferOpcodes runs the three-rule cascade over every handler: declared
// name, then a pattern match on the body's first statement, then a
// bounded symbolic walk. The first rule to produce an answer wins.
func inferOpcodes(ctx *Context) {
	for _, h := range ctx.Handlers {
		if op, ok := inferFromName(h.Decl.Name); ok {
			h.Opcode = op
			continue
		}
		body := h.BodyCode
		if h.DecryptedCode != "" {
			body = h.DecryptedCode
		}
		if op, ok := inferFromBody(h.Decl.Body); ok {
			h.Opcode = op
			continue
		}
		h.Opcode = symbolicInfer(h.Decl.Body, body)
	}
}

func inferFromName(name string) (luaopcode.Op, bool) {
	// The conventional "handler" prefix is dropped first so that its own
	// letters (the "le" in "handler") are never read as a hint.
	lower := strings.ReplaceAll(strings.ToLower(name), "handler", "")
	for _, hint := range nameHints {
		if strings.Contains(lower, hint.sub) {
			return hint.op, true
		}
	}
	return luaopcode.MOVE, false
}

// inferFromBody looks at the handler's first statement shape: an
// assignment of the form R[a] := R[b] is a MOVE, R[a] := K[b] is a
// LOADK, R[a] := R[b] <arith-op> R[c] is the matching arithmetic opcode,
// a bare call expression is CALL, and a return statement is RETURN.
func inferFromBody(b *ast.Block) (luaopcode.Op, bool) {
	if b == nil || len(b.Stats) == 0 {
		if b != nil && len(b.Return) > 0 {
			return luaopcode.RETURN, true
		}
		return luaopcode.MOVE, false
	}
	switch s := b.Stats[0].(type) {
	case *ast.Assign:
		if len(s.Targets) != 1 || len(s.Values) != 1 {
			return luaopcode.MOVE, false
		}
		target, ok := isIndexExpr(s.Targets[0], "R")
		if !ok {
			return luaopcode.MOVE, false
		}
		_ = target
		switch rhs := s.Values[0].(type) {
		case *ast.Binary:
			if rhs.Op == "[]" {
				if _, ok := isIndexExpr(rhs, "R"); ok {
					return luaopcode.MOVE, true
				}
				if _, ok := isIndexExpr(rhs, "K"); ok {
					return luaopcode.LOADK, true
				}
				return luaopcode.MOVE, false
			}
			if op, ok := arithOpcode(rhs.Op); ok {
				return op, true
			}
		case *ast.Call:
			return luaopcode.CALL, true
		}
	case *ast.Call:
		return luaopcode.CALL, true
	}
	if len(b.Return) > 0 {
		return luaopcode.RETURN, true
	}
	return luaopcode.MOVE, false
}

// isIndexExpr reports whether e is shaped like base[index] where base is
// an Identifier named prefix (i.e. R[_] or K[_]).
func isIndexExpr(e ast.Node, prefix string) (ast.Node, bool) {
	bin, ok := e.(*ast.Binary)
	if !ok || bin.Op != "[]" {
		return nil, false
	}
	id, ok := bin.L.(*ast.Identifier)
	if !ok || id.Name != prefix {
		return nil, false
	}
	return bin.R, true
}

var arithOps = map[string]luaopcode.Op{
	"+":   luaopcode.ADD,
	"-":   luaopcode.SUB,
	"*":   luaopcode.MUL,
	"%":   luaopcode.MOD,
	"^":   luaopcode.POW,
	"/":   luaopcode.DIV,
	"//":  luaopcode.IDIV,
	"&":   luaopcode.BAND,
	"|":   luaopcode.BOR,
	"~":   luaopcode.BXOR,
	"<<":  luaopcode.SHL,
	">>":  luaopcode.SHR,
	"..":  luaopcode.CONCAT,
	"==":  luaopcode.EQ,
	"<":   luaopcode.LT,
	"<=":  luaopcode.LE,
}

func arithOpcode(op string) (luaopcode.Op, bool) {
	o, ok := arithOps[op]
	return o, ok
}

// SymbolicContext is the bounded interpreter state for the inference
// cascade's last resort: registers/constants/globals plus a program
// counter, stepped at most maxSymbolicSteps times.
type SymbolicContext struct {
	Registers map[int]interface{}
	Constants map[int]interface{}
	Globals   map[string]interface{}
	PC        int
}

const maxSymbolicSteps = 1000

// symbolicInfer walks the handler body statement by statement, applying
// each assignment to a SymbolicContext, and returns the opcode
// corresponding to the last statement it could fully evaluate. Statements
// of an unrecognized shape are skipped and the walk goes on; a statement
// with a non-literal register/constant index is tracked as index -1 and
// then skipped; the walk stops at the step cap.
func symbolicInfer(b *ast.Block, _ string) luaopcode.Op {
	sc := &SymbolicContext{
		Registers: map[int]interface{}{},
		Constants: map[int]interface{}{},
		Globals:   map[string]interface{}{},
	}
	last := luaopcode.MOVE
	found := false
	if b == nil {
		return last
	}
	steps := 0
	for _, s := range b.Stats {
		if steps >= maxSymbolicSteps {
			break
		}
		steps++
		sc.PC++
		asg, ok := s.(*ast.Assign)
		if !ok {
			continue
		}
		if len(asg.Targets) != 1 || len(asg.Values) != 1 {
			continue
		}
		if op, ok := symbolicStep(sc, asg); ok {
			last = op
			found = true
		}
	}
	if !found && len(b.Return) > 0 {
		return luaopcode.RETURN
	}
	return last
}

func symbolicStep(sc *SymbolicContext, asg *ast.Assign) (luaopcode.Op, bool) {
	dstNode, srcIsR := isIndexExpr(asg.Targets[0], "R")
	if !srcIsR {
		return luaopcode.MOVE, false
	}
	if symbolicIndex(dstNode) < 0 {
		sc.Registers[-1] = struct{}{}
		return luaopcode.MOVE, false
	}
	switch rhs := asg.Values[0].(type) {
	case *ast.Binary:
		if rhs.Op == "[]" {
			idxNode, isR := isIndexExpr(rhs, "R")
			if isR {
				idx := symbolicIndex(idxNode)
				sc.Registers[idx] = struct{}{}
				return luaopcode.MOVE, idx >= 0
			}
			idxNode, isK := isIndexExpr(rhs, "K")
			if isK {
				idx := symbolicIndex(idxNode)
				sc.Constants[idx] = struct{}{}
				return luaopcode.LOADK, idx >= 0
			}
			return luaopcode.MOVE, false
		}
		if op, ok := arithOpcode(rhs.Op); ok {
			return op, true
		}
	case *ast.Call:
		return luaopcode.CALL, true
	case *ast.Literal:
		return luaopcode.LOADK, true
	}
	return luaopcode.MOVE, false
}

// symbolicIndex extracts a literal integer index, or -1 when the index
// expression isn't a literal (a dynamically computed register/constant
// slot the symbolic walk can't resolve).
func symbolicIndex(e ast.Node) int {
	lit, ok := e.(*ast.Literal)
	if !ok {
		return -1
	}
	switch v := lit.Value.(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return -1
	}
}
