package emit

import (
	"testing"

	"github.com/Spencer-png/luraph-unscrambler/internal/luaopcode"
	"github.com/Spencer-png/luraph-unscrambler/internal/reconstruct"
)

func emptyProto() *reconstruct.VMProto {
	return &reconstruct.VMProto{
		Source:   "test",
		MaxStack: 2,
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	data := Write(emptyProto())
	magic, version, format, sizes, err := ReadHeader(data)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if magic != 0x1B4C7561 {
		t.Fatalf("magic = %#x, want 0x1B4C7561", magic)
	}
	if version != 0x53 {
		t.Fatalf("version = %#x, want 0x53", version)
	}
	if format != 0 {
		t.Fatalf("format = %d, want 0", format)
	}
	want := [5]byte{4, 8, 4, 8, 8}
	if sizes != want {
		t.Fatalf("sizes = %v, want %v", sizes, want)
	}
}

func TestValidateAcceptsWrittenChunk(t *testing.T) {
	data := Write(emptyProto())
	if err := Validate(data); err != nil {
		t.Fatalf("Validate rejected our own output: %v", err)
	}
}

func TestValidateRejectsBadMagic(t *testing.T) {
	data := Write(emptyProto())
	data[0] = 0
	if err := Validate(data); err == nil {
		t.Fatal("Validate accepted a corrupted magic")
	}
}

func TestEncodeInstructionABC(t *testing.T) {
	in := reconstruct.VMInstruction{Opcode: luaopcode.ADD, A: 1, B: 2, C: 3}
	word := encodeInstruction(in)
	gotA := int((word >> 6) & 0xFF)
	gotC := int((word >> 14) & 0x1FF)
	gotB := int((word >> 23) & 0x1FF)
	if gotA != 1 || gotB != 2 || gotC != 3 {
		t.Fatalf("decoded (a,b,c) = (%d,%d,%d), want (1,2,3)", gotA, gotB, gotC)
	}
}

func TestEncodeInstructionAsBxExtremes(t *testing.T) {
	for _, sbx := range []int{-131071, 131072} {
		in := reconstruct.VMInstruction{Opcode: luaopcode.JMP, SBx: sbx}
		word := encodeInstruction(in)
		bx := int((word >> 14) & 0x3FFFF)
		got := bx - luaopcode.MaxArgSBx
		if got != sbx {
			t.Fatalf("sbx %d: decoded %d", sbx, got)
		}
	}
}

func TestWriteStringEmptyIsSingleZero(t *testing.T) {
	buf := writeString(nil, "")
	if len(buf) != 1 || buf[0] != 0 {
		t.Fatalf("empty string encoding = %v, want [0]", buf)
	}
}

func TestWriteStringLengthPlusOne(t *testing.T) {
	buf := writeString(nil, "hi")
	if buf[0] != 3 {
		t.Fatalf("size byte = %d, want 3 (len+1)", buf[0])
	}
	if string(buf[1:]) != "hi" {
		t.Fatalf("payload = %q, want %q", buf[1:], "hi")
	}
}
