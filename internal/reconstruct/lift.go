package reconstruct

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/Spencer-png/luraph-unscrambler/internal/ast"
	"github.com/Spencer-png/luraph-unscrambler/internal/luaopcode"
	"github.com/Spencer-png/luraph-unscrambler/internal/vmanalyze"
)

// Build turns an analyzer Context into a VMProto: handlers sorted by
// index, each lifted to instructions, constants carried over from the
// analyzer pool, then the peephole pass run to a fixed point.
func Build(ctx *vmanalyze.Context, source string) (*VMProto, []string) {
	var warnings []string
	handlers := make([]*vmanalyze.Handler, len(ctx.Handlers))
	copy(handlers, ctx.Handlers)
	sort.Slice(handlers, func(i, j int) bool { return handlers[i].Index < handlers[j].Index })

	proto := &VMProto{
		Source:   source,
		IsVararg: true,
	}
	for _, c := range ctx.Constants {
		t := constTypeOf(c.Type)
		if _, isInt := c.Value.(int64); isInt && t == ConstFloat {
			t = ConstInt
		}
		proto.Consts = append(proto.Consts, VMConstant{Type: t, Value: c.Value})
	}

	for _, h := range handlers {
		insts, ok := lift(h)
		if !ok {
			warnings = append(warnings, "handler #"+strconv.Itoa(h.Index)+": no recognizable body, emitted nop")
		}
		for _, in := range insts {
			in.Line = h.Index
			proto.Code = append(proto.Code, in)
		}
	}

	runPeephole(proto)
	proto.MaxStack = computeMaxStack(proto)
	if proto.MaxStack < 2 {
		proto.MaxStack = 2
	}
	return proto, warnings
}

func constTypeOf(t ast.LuaType) ConstType {
	switch t {
	case ast.TNil:
		return ConstNil
	case ast.TBool:
		return ConstBool
	case ast.TString:
		return ConstString
	default:
		return ConstFloat
	}
}

// lift produces the sequence of instructions a single handler
// corresponds to. This obfuscator's handlers are 1:1 with instructions,
// so the slice returned here always has length 1 on success; the slice
// return type keeps room for a future handler that legitimately expands
// to a short macro-op sequence without a signature change.
func lift(h *vmanalyze.Handler) ([]VMInstruction, bool) {
	body := h.BodyCode
	if h.DecryptedCode != "" {
		body = h.DecryptedCode
	}
	if in, ok := symbolicLift(h); ok {
		return []VMInstruction{in}, true
	}
	if in, ok := regexLift(body, h.Opcode); ok {
		return []VMInstruction{in}, true
	}
	return []VMInstruction{{Opcode: luaopcode.MOVE, A: 0, B: 0, C: 0}}, false
}

// symbolicLift re-derives concrete operands from the handler's AST body
// using the same shape recognized by the analyzer's body-pattern rule:
// the first Assign statement of the form R[a] := R[b], R[a] := K[b], or
// R[a] := R[b] <op> R[c].
func symbolicLift(h *vmanalyze.Handler) (VMInstruction, bool) {
	b := h.Decl.Body
	if b == nil || len(b.Stats) == 0 {
		return VMInstruction{}, false
	}
	asg, ok := b.Stats[0].(*ast.Assign)
	if !ok || len(asg.Targets) != 1 || len(asg.Values) != 1 {
		return VMInstruction{}, false
	}
	aIdx, ok := regIndex(asg.Targets[0], "R")
	if !ok {
		return VMInstruction{}, false
	}
	switch rhs := asg.Values[0].(type) {
	case *ast.Binary:
		if rhs.Op == "[]" {
			if bIdx, ok := regIndex(rhs, "R"); ok {
				return VMInstruction{Opcode: luaopcode.MOVE, A: aIdx, B: bIdx}, true
			}
			if kIdx, ok := regIndex(rhs, "K"); ok {
				return VMInstruction{Opcode: luaopcode.LOADK, A: aIdx, Bx: kIdx}, true
			}
			return VMInstruction{}, false
		}
		op, ok := arithOp(rhs.Op)
		if !ok {
			return VMInstruction{}, false
		}
		bIdx, bOK := regIndex(rhs.L, "R")
		cIdx, cOK := regIndex(rhs.R, "R")
		if !bOK || !cOK {
			return VMInstruction{}, false
		}
		return VMInstruction{Opcode: op, A: aIdx, B: bIdx, C: cIdx}, true
	}
	return VMInstruction{}, false
}

func regIndex(e ast.Node, prefix string) (int, bool) {
	bin, ok := e.(*ast.Binary)
	if !ok || bin.Op != "[]" {
		return 0, false
	}
	id, ok := bin.L.(*ast.Identifier)
	if !ok || id.Name != prefix {
		return 0, false
	}
	lit, ok := bin.R.(*ast.Literal)
	if !ok {
		return 0, false
	}
	switch v := lit.Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

var arithOpsR = map[string]luaopcode.Op{
	"+": luaopcode.ADD, "-": luaopcode.SUB, "*": luaopcode.MUL,
	"/": luaopcode.DIV, "%": luaopcode.MOD, "^": luaopcode.POW,
	"..": luaopcode.CONCAT,
}

func arithOp(op string) (luaopcode.Op, bool) {
	o, ok := arithOpsR[op]
	return o, ok
}

// regexLift is the fallback pass for handler bodies that survived only
// as opaque strings (e.g. still encrypted, or too irregular for the
// symbolic walk): same vocabulary as the analyzer's body-pattern rule,
// applied to the serialized text instead of the AST.
var (
	reMove  = regexp.MustCompile(`R\[(\d+)\]\s*=\s*R\[(\d+)\]`)
	reLoadK = regexp.MustCompile(`R\[(\d+)\]\s*=\s*K\[(\d+)\]`)
)

func regexLift(body string, fallbackOp luaopcode.Op) (VMInstruction, bool) {
	if m := reMove.FindStringSubmatch(body); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		return VMInstruction{Opcode: luaopcode.MOVE, A: a, B: b}, true
	}
	if m := reLoadK.FindStringSubmatch(body); m != nil {
		a, _ := strconv.Atoi(m[1])
		k, _ := strconv.Atoi(m[2])
		return VMInstruction{Opcode: luaopcode.LOADK, A: a, Bx: k}, true
	}
	if fallbackOp.Valid() && fallbackOp != luaopcode.MOVE {
		return VMInstruction{Opcode: fallbackOp}, true
	}
	return VMInstruction{}, false
}
