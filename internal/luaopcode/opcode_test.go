package luaopcode

import "testing"

func TestStringAndByNameRoundTrip(t *testing.T) {
	for op := Op(0); op < numOpcodes; op++ {
		name := op.String()
		got, ok := ByName(name)
		if !ok || got != op {
			t.Fatalf("ByName(%q) = %v, %v; want %v, true", name, got, ok, op)
		}
	}
}

func TestArgModeMatchesTable(t *testing.T) {
	if MOVE.ArgMode() != ABC {
		t.Fatalf("MOVE mode = %v, want ABC", MOVE.ArgMode())
	}
	if LOADK.ArgMode() != ABx {
		t.Fatalf("LOADK mode = %v, want ABx", LOADK.ArgMode())
	}
	if JMP.ArgMode() != AsBx {
		t.Fatalf("JMP mode = %v, want AsBx", JMP.ArgMode())
	}
	if EXTRAARG.ArgMode() != Ax {
		t.Fatalf("EXTRAARG mode = %v, want Ax", EXTRAARG.ArgMode())
	}
}

func TestWritesStackExcludesControlAndStores(t *testing.T) {
	for _, op := range []Op{EQ, LT, LE, TEST, JMP, RETURN, TAILCALL, SETTABLE, SETTABUP, SETUPVAL, SETLIST, EXTRAARG} {
		if op.WritesStack() {
			t.Fatalf("%v should not write the stack", op)
		}
	}
	if !MOVE.WritesStack() {
		t.Fatal("MOVE should write the stack")
	}
}

func TestInvalidOpcode(t *testing.T) {
	bad := Op(numOpcodes)
	if bad.Valid() {
		t.Fatal("numOpcodes should not be a valid opcode")
	}
	if bad.String() != "UNKNOWN" {
		t.Fatalf("bad.String() = %q, want UNKNOWN", bad.String())
	}
}
