package reconstruct

import (
	"testing"

	"github.com/Spencer-png/luraph-unscrambler/internal/ast"
	"github.com/Spencer-png/luraph-unscrambler/internal/luaopcode"
	"github.com/Spencer-png/luraph-unscrambler/internal/vmanalyze"
)

func regRef(name string, idx int64) *ast.Binary {
	return &ast.Binary{
		Op: "[]",
		L:  &ast.Identifier{Name: name},
		R:  &ast.Literal{Value: idx, Type: ast.TNumber},
	}
}

func TestLiftMove(t *testing.T) {
	decl := &ast.FunctionDecl{
		Name: "handler_1",
		Body: &ast.Block{
			Stats: []ast.Node{
				&ast.Assign{Targets: []ast.Node{regRef("R", 0)}, Values: []ast.Node{regRef("R", 1)}},
			},
		},
	}
	h := &vmanalyze.Handler{Index: 1, Opcode: luaopcode.MOVE, Decl: decl}
	insts, ok := lift(h)
	if !ok {
		t.Fatal("lift reported failure for a well-formed MOVE handler")
	}
	if len(insts) != 1 {
		t.Fatalf("len(insts) = %d, want 1", len(insts))
	}
	in := insts[0]
	if in.Opcode != luaopcode.MOVE || in.A != 0 || in.B != 1 {
		t.Fatalf("got %+v, want MOVE a=0 b=1", in)
	}
}

func TestLiftLoadK(t *testing.T) {
	decl := &ast.FunctionDecl{
		Body: &ast.Block{
			Stats: []ast.Node{
				&ast.Assign{Targets: []ast.Node{regRef("R", 0)}, Values: []ast.Node{regRef("K", 0)}},
			},
		},
	}
	h := &vmanalyze.Handler{Index: 0, Decl: decl}
	insts, ok := lift(h)
	if !ok || insts[0].Opcode != luaopcode.LOADK || insts[0].A != 0 || insts[0].Bx != 0 {
		t.Fatalf("got %+v ok=%v, want LOADK a=0 bx=0", insts, ok)
	}
}

func TestLiftUnrecognizedBodyFallsBackToNop(t *testing.T) {
	decl := &ast.FunctionDecl{Body: &ast.Block{}}
	h := &vmanalyze.Handler{Index: 0, Decl: decl}
	insts, ok := lift(h)
	if ok {
		t.Fatal("expected fallback failure signal for an empty body")
	}
	if insts[0].Opcode != luaopcode.MOVE || insts[0].A != 0 || insts[0].B != 0 || insts[0].C != 0 {
		t.Fatalf("fallback = %+v, want MOVE 0 0 0", insts[0])
	}
}

func TestRemoveMoveToSelf(t *testing.T) {
	p := &VMProto{Code: []VMInstruction{{Opcode: luaopcode.MOVE, A: 3, B: 3}, {Opcode: luaopcode.RETURN}}}
	removeMoveToSelf(p)
	if len(p.Code) != 1 || p.Code[0].Opcode != luaopcode.RETURN {
		t.Fatalf("code = %+v, want only RETURN left", p.Code)
	}
}

func TestDedupeConstantsRemapsLoadK(t *testing.T) {
	p := &VMProto{
		Consts: []VMConstant{
			{Type: ConstString, Value: "print"},
			{Type: ConstString, Value: "print"},
		},
		Code: []VMInstruction{
			{Opcode: luaopcode.LOADK, A: 0, Bx: 0},
			{Opcode: luaopcode.LOADK, A: 1, Bx: 1},
		},
	}
	dedupeConstants(p)
	if len(p.Consts) != 1 {
		t.Fatalf("len(consts) = %d, want 1", len(p.Consts))
	}
	if p.Code[1].Bx != 0 {
		t.Fatalf("second LOADK.Bx = %d, want 0 after dedup", p.Code[1].Bx)
	}
}

func TestPruneUnreachableDropsCodeAfterReturn(t *testing.T) {
	p := &VMProto{Code: []VMInstruction{
		{Opcode: luaopcode.RETURN},
		{Opcode: luaopcode.ADD, A: 0, B: 1, C: 2},
	}}
	pruneUnreachable(p)
	if len(p.Code) != 1 {
		t.Fatalf("len(code) = %d, want 1 (dead ADD pruned)", len(p.Code))
	}
}

func TestComputeMaxStackBeforeClamp(t *testing.T) {
	p := &VMProto{Code: []VMInstruction{{Opcode: luaopcode.MOVE, A: 0, B: 0}}}
	if got := computeMaxStack(p); got != 1 {
		t.Fatalf("computeMaxStack = %d, want 1 (Build is what clamps to >= 2)", got)
	}
}
