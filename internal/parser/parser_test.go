package parser

import (
	"testing"

	"github.com/Spencer-png/luraph-unscrambler/internal/ast"
)

func TestParseLocalAssign(t *testing.T) {
	block, err := Parse("local x = 1", "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(block.Stats) != 1 {
		t.Fatalf("len(stats) = %d, want 1", len(block.Stats))
	}
	asg, ok := block.Stats[0].(*ast.Assign)
	if !ok || !asg.IsLocal {
		t.Fatalf("stat = %#v, want local Assign", block.Stats[0])
	}
}

func TestParseHandlerIsAnnotated(t *testing.T) {
	src := `local function handler_3(a, b)
	R[0] = R[1]
end`
	block, err := Parse(src, "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	decl, ok := block.Stats[0].(*ast.FunctionDecl)
	if !ok {
		t.Fatalf("stat = %#v, want FunctionDecl", block.Stats[0])
	}
	if !decl.VMHandler {
		t.Fatal("handler_3 should be annotated VMHandler")
	}
	if decl.HandlerIndex != 3 {
		t.Fatalf("HandlerIndex = %d, want 3", decl.HandlerIndex)
	}
}

func TestParseConstantTable(t *testing.T) {
	src := `local K = {"print", 1, 2, 3, 4, 5}`
	block, err := Parse(src, "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	asg := block.Stats[0].(*ast.Assign)
	ctor, ok := asg.Values[0].(*ast.TableCtor)
	if !ok {
		t.Fatalf("value = %#v, want TableCtor", asg.Values[0])
	}
	if !ctor.ConstantTable {
		t.Fatal("6-entry literal table should be flagged ConstantTable")
	}
}

func TestParseShortTableIsNotConstant(t *testing.T) {
	src := `local t = {1, 2, 3}`
	block, err := Parse(src, "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	asg := block.Stats[0].(*ast.Assign)
	ctor := asg.Values[0].(*ast.TableCtor)
	if ctor.ConstantTable {
		t.Fatal("a 3-entry table should not be flagged ConstantTable")
	}
}

func TestParseIfElseif(t *testing.T) {
	src := `if a then
	return 1
elseif b then
	return 2
else
	return 3
end`
	block, err := Parse(src, "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ifStat, ok := block.Stats[0].(*ast.If)
	if !ok {
		t.Fatalf("stat = %#v, want If", block.Stats[0])
	}
	if len(ifStat.Conds) != 2 || ifStat.Else == nil {
		t.Fatalf("If = %#v, want 2 conds and an else", ifStat)
	}
}

func TestParseRecoversFromSyntaxError(t *testing.T) {
	src := `local x = +
local y = 1`
	block, _ := Parse(src, "test")
	found := false
	for _, s := range block.Stats {
		if asg, ok := s.(*ast.Assign); ok && asg.IsLocal && len(asg.Names) == 1 && asg.Names[0] == "y" {
			found = true
		}
	}
	if !found {
		t.Fatal("parser should recover and still parse 'local y = 1'")
	}
}

func TestVMCallAnnotation(t *testing.T) {
	src := `MOVE_1(a, b)`
	block, err := Parse(src, "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	call, ok := block.Stats[0].(*ast.Call)
	if !ok {
		t.Fatalf("stat = %#v, want Call", block.Stats[0])
	}
	if !call.VMCall || call.VMOp != "MOVE" {
		t.Fatalf("call = %#v, want VMCall with VMOp=MOVE", call)
	}
}
