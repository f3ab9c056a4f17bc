package orchestrator

import (
	"strings"
	"testing"
)

func TestNotLuraphGate(t *testing.T) {
	_, err := Deobfuscate([]byte("print(\"hello\")\n"), Options{})
	oe, ok := err.(*Error)
	if !ok || oe.Kind != NotLuraph {
		t.Fatalf("err = %v, want NotLuraph", err)
	}
}

func TestTrivialHandlerRecovery(t *testing.T) {
	src := `-- protected using luraph
local function handler_1(a, b)
	R[0] = R[1]
end
`
	res, err := Deobfuscate([]byte(src), Options{})
	if err != nil {
		t.Fatalf("Deobfuscate: %v", err)
	}
	if res.Stats.HandlersProcessed != 1 {
		t.Fatalf("HandlersProcessed = %d, want 1", res.Stats.HandlersProcessed)
	}
}

func TestLoadKViaConstantPool(t *testing.T) {
	src := `-- luraph
local K = {"print", 1, 2, 3, 4, 5}
local function handler_1(a)
	R[0] = K[0]
end
`
	res, err := Deobfuscate([]byte(src), Options{})
	if err != nil {
		t.Fatalf("Deobfuscate: %v", err)
	}
	if res.Stats.HandlersProcessed != 1 {
		t.Fatalf("HandlersProcessed = %d, want 1", res.Stats.HandlersProcessed)
	}
}

func TestEmptyInputIsInvalidLua(t *testing.T) {
	_, err := Deobfuscate([]byte(""), Options{})
	if err == nil {
		t.Fatal("expected an error for empty input")
	}
	oe, ok := err.(*Error)
	if !ok || (oe.Kind != NotLuraph && oe.Kind != InvalidLua) {
		t.Fatalf("err = %v, want NotLuraph or InvalidLua", err)
	}
}

func TestProgressEventsFireInOrder(t *testing.T) {
	src := `-- luraph
local function handler_1(a, b)
	R[0] = R[1]
end
`
	var steps []string
	_, err := Deobfuscate([]byte(src), Options{Sink: func(e ProgressEvent) {
		steps = append(steps, e.Step)
	}})
	if err != nil {
		t.Fatalf("Deobfuscate: %v", err)
	}
	joined := strings.Join(steps, ",")
	for i := 1; i < len(stageOrder); i++ {
		prev := strings.Index(joined, stageOrder[i-1])
		cur := strings.Index(joined, stageOrder[i])
		if prev == -1 || cur == -1 || prev > cur {
			t.Fatalf("stage %q did not fire before %q in %v", stageOrder[i-1], stageOrder[i], steps)
		}
	}
}

func TestDebugJSONIsStable(t *testing.T) {
	src := `-- luraph
local function handler_1(a, b)
	R[0] = R[1]
end
`
	res, err := Deobfuscate([]byte(src), Options{})
	if err != nil {
		t.Fatalf("Deobfuscate: %v", err)
	}
	a, err := res.DebugJSON()
	if err != nil {
		t.Fatalf("DebugJSON: %v", err)
	}
	b, _ := res.DebugJSON()
	if string(a) != string(b) {
		t.Fatalf("DebugJSON not stable across calls: %q vs %q", a, b)
	}
	if !strings.Contains(string(a), `"handlers_processed"`) {
		t.Fatalf("DebugJSON = %s, missing handlers_processed key", a)
	}
}

func TestDeterministicOutput(t *testing.T) {
	src := `-- luraph
local K = {"print", 1, 2, 3, 4, 5}
local function handler_1(a)
	R[0] = K[0]
end
`
	r1, err := Deobfuscate([]byte(src), Options{})
	if err != nil {
		t.Fatalf("Deobfuscate: %v", err)
	}
	r2, err := Deobfuscate([]byte(src), Options{})
	if err != nil {
		t.Fatalf("Deobfuscate: %v", err)
	}
	if string(r1.Bytecode) != string(r2.Bytecode) {
		t.Fatal("Deobfuscate is not deterministic across repeated runs on the same input")
	}
}

func TestCancellationStopsEarly(t *testing.T) {
	src := `-- luraph
local function handler_1(a, b)
	R[0] = R[1]
end
`
	calls := 0
	_, err := Deobfuscate([]byte(src), Options{Cancel: func() bool {
		calls++
		return calls > 1
	}})
	oe, ok := err.(*Error)
	if !ok || oe.Kind != Cancelled {
		t.Fatalf("err = %v, want Cancelled", err)
	}
}
