package vmanalyze

import (
	"testing"

	"github.com/Spencer-png/luraph-unscrambler/internal/luaopcode"
	"github.com/Spencer-png/luraph-unscrambler/internal/parser"
)

func TestAnalyzeTrivialMoveHandler(t *testing.T) {
	src := `local function handler_1(a, b)
	R[0] = R[1]
end`
	block, err := parser.Parse(src, "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctx := Analyze(block, Options{})
	if len(ctx.Handlers) != 1 {
		t.Fatalf("len(handlers) = %d, want 1", len(ctx.Handlers))
	}
	if ctx.Handlers[0].Opcode != luaopcode.MOVE {
		t.Fatalf("opcode = %v, want MOVE", ctx.Handlers[0].Opcode)
	}
}

func TestAnalyzeLoadKHandler(t *testing.T) {
	src := `local K = {"print", 1, 2, 3, 4, 5}
local function handler_1(a)
	R[0] = K[0]
end`
	block, err := parser.Parse(src, "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctx := Analyze(block, Options{})
	if len(ctx.Constants) != 6 {
		t.Fatalf("len(constants) = %d, want 6", len(ctx.Constants))
	}
	if ctx.Constants[0].Value != "print" {
		t.Fatalf("constants[0] = %v, want \"print\"", ctx.Constants[0].Value)
	}
	if ctx.Handlers[0].Opcode != luaopcode.LOADK {
		t.Fatalf("opcode = %v, want LOADK", ctx.Handlers[0].Opcode)
	}
}

func TestAnalyzeOpcodeByName(t *testing.T) {
	src := `local function op_add(a, b, c)
	x = a
end`
	block, err := parser.Parse(src, "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctx := Analyze(block, Options{})
	if len(ctx.Handlers) != 1 || ctx.Handlers[0].Opcode != luaopcode.ADD {
		t.Fatalf("handlers = %+v, want one ADD-opcode handler", ctx.Handlers)
	}
}

func TestPartialDecryptionWarning(t *testing.T) {
	src := "local K = {\"print\", 1, 2, 3, 4, \"\x01\x02\x03\x04\x05\"}"
	block, err := parser.Parse(src, "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctx := Analyze(block, Options{})
	if len(ctx.Constants) != 6 {
		t.Fatalf("len(constants) = %d, want 6", len(ctx.Constants))
	}
	want := "constant #5: decryption failed, kept ciphertext"
	found := false
	for _, w := range ctx.Warnings {
		if w == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want to contain %q", ctx.Warnings, want)
	}
}

func TestNameHintSynonyms(t *testing.T) {
	cases := []struct {
		name string
		want luaopcode.Op
	}{
		{"handler_copy_1", luaopcode.MOVE},
		{"handler_jump_2", luaopcode.JMP},
		{"table_7", luaopcode.NEWTABLE},
		{"gettable_8", luaopcode.GETTABLE},
		{"settable_9", luaopcode.SETTABLE},
		{"newtable_10", luaopcode.NEWTABLE},
	}
	for _, c := range cases {
		op, ok := inferFromName(c.name)
		if !ok || op != c.want {
			t.Fatalf("inferFromName(%q) = %v, %v; want %v, true", c.name, op, ok, c.want)
		}
	}
}

func TestHandlersSortedByIndex(t *testing.T) {
	src := `local function handler_5(a)
	R[0] = R[1]
end
local function handler_2(a)
	R[0] = R[1]
end`
	block, err := parser.Parse(src, "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctx := Analyze(block, Options{})
	if len(ctx.Handlers) != 2 {
		t.Fatalf("len(handlers) = %d, want 2", len(ctx.Handlers))
	}
	if ctx.Handlers[0].Index != 2 || ctx.Handlers[1].Index != 5 {
		t.Fatalf("handlers not sorted by index: %+v", ctx.Handlers)
	}
}
