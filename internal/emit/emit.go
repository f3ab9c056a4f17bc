// Package emit serializes a reconstructed VMProto into a Lua 5.3
// compiled chunk (.luac), matching the byte layout a standard
// Undump/checkHeader implementation reads back.
package emit

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Spencer-png/luraph-unscrambler/internal/luaopcode"
	"github.com/Spencer-png/luraph-unscrambler/internal/reconstruct"
)

const (
	signature   = "\x1bLua"
	luacVersion = 0x53
	luacFormat  = 0
	luacData    = "\x19\x93\r\n\x1a\n"
	cintSize    = 4
	sizetSize   = 8
	instrSize   = 4
	intSize     = 8
	numSize     = 8
	luacInt     = 0x5678
	luacNum     = 370.5
)

// Write produces the full .luac image for proto.
func Write(proto *reconstruct.VMProto) []byte {
	buf := make([]byte, 0, 256)
	buf = writeHeader(buf)
	buf = append(buf, 0) // sizeupvalues of the top-level chunk: 0 upvalues for main
	buf = writeFunction(buf, proto)
	return buf
}

func writeHeader(buf []byte) []byte {
	buf = append(buf, signature...)
	buf = append(buf, luacVersion, luacFormat)
	buf = append(buf, luacData...)
	buf = append(buf, cintSize, sizetSize, instrSize, intSize, numSize)
	buf = appendU64(buf, luacInt)
	buf = appendF64(buf, luacNum)
	return buf
}

func writeFunction(buf []byte, p *reconstruct.VMProto) []byte {
	buf = writeString(buf, p.Source)
	buf = appendU32(buf, uint32(p.LineDefined))
	buf = appendU32(buf, uint32(p.LastLineDefined))
	buf = append(buf, byte(p.NumParams))
	buf = append(buf, boolByte(p.IsVararg))
	buf = append(buf, byte(p.MaxStack))

	buf = appendU32(buf, uint32(len(p.Code)))
	for _, in := range p.Code {
		buf = appendU32(buf, encodeInstruction(in))
	}

	buf = appendU32(buf, uint32(len(p.Consts)))
	for _, c := range p.Consts {
		buf = writeConstant(buf, c)
	}

	buf = appendU32(buf, uint32(len(p.Upvals)))
	for _, u := range p.Upvals {
		buf = append(buf, boolByte(u.IsLocal), byte(u.Register))
	}

	buf = appendU32(buf, uint32(len(p.Nested)))
	for _, nested := range p.Nested {
		buf = writeFunction(buf, nested)
	}

	// debug info: line_info aligned with code, empty locals, upvalue names
	buf = appendU32(buf, uint32(len(p.Code)))
	for _, in := range p.Code {
		buf = appendU32(buf, uint32(in.Line))
	}
	buf = appendU32(buf, 0) // locals: always empty, this project strips debug detail
	buf = appendU32(buf, uint32(len(p.Upvals)))
	for _, u := range p.Upvals {
		buf = writeString(buf, u.Name)
	}
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// writeString encodes size:u8 = len+1 then raw bytes; an empty string is
// a single 0 byte with no payload.
func writeString(buf []byte, s string) []byte {
	if s == "" {
		return append(buf, 0)
	}
	buf = append(buf, byte(len(s)+1))
	return append(buf, s...)
}

func writeConstant(buf []byte, c reconstruct.VMConstant) []byte {
	switch c.Type {
	case reconstruct.ConstNil:
		return append(buf, 0)
	case reconstruct.ConstBool:
		buf = append(buf, 1)
		v, _ := c.Value.(bool)
		return append(buf, boolByte(v))
	case reconstruct.ConstInt:
		buf = append(buf, 3)
		v, _ := c.Value.(int64)
		return appendU64(buf, uint64(v))
	case reconstruct.ConstFloat:
		buf = append(buf, 19)
		v, _ := c.Value.(float64)
		return appendF64(buf, v)
	case reconstruct.ConstString:
		buf = append(buf, 4)
		v, _ := c.Value.(string)
		return writeString(buf, v)
	default:
		return append(buf, 0)
	}
}

// encodeInstruction packs a, b, c, bx, sbx, or ax into the 32-bit word
// for in.Opcode's argument mode.
func encodeInstruction(in reconstruct.VMInstruction) uint32 {
	op := uint32(in.Opcode)
	switch in.Opcode.ArgMode() {
	case luaopcode.ABC:
		return op | uint32(in.A)<<6 | uint32(in.C)<<14 | uint32(in.B)<<23
	case luaopcode.ABx:
		return op | uint32(in.A)<<6 | uint32(in.Bx)<<14
	case luaopcode.AsBx:
		return op | uint32(in.A)<<6 | uint32(in.SBx+luaopcode.MaxArgSBx)<<14
	case luaopcode.Ax:
		return op | uint32(in.Ax)<<6
	default:
		return op
	}
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendF64(buf []byte, v float64) []byte {
	return appendU64(buf, math.Float64bits(v))
}

// Validate re-reads the header fields from data and confirms they match
// what Write always produces. A mismatch is a hard emit error: there's
// no recovery path for a malformed chunk once the caller asked for
// bytes.
func Validate(data []byte) error {
	if len(data) < 4+1+1+6+5+8+8+1 {
		return fmt.Errorf("emit: chunk too short to contain a header (%d bytes)", len(data))
	}
	if string(data[:4]) != signature {
		return fmt.Errorf("emit: bad magic %x", data[:4])
	}
	pos := 4
	if data[pos] != luacVersion {
		return fmt.Errorf("emit: bad version %#x", data[pos])
	}
	pos++
	if data[pos] != luacFormat {
		return fmt.Errorf("emit: bad format %#x", data[pos])
	}
	pos++
	if string(data[pos:pos+6]) != luacData {
		return fmt.Errorf("emit: bad luac data marker")
	}
	pos += 6
	sizes := data[pos : pos+5]
	if sizes[0] != cintSize || sizes[1] != sizetSize || sizes[2] != instrSize ||
		sizes[3] != intSize || sizes[4] != numSize {
		return fmt.Errorf("emit: unexpected type sizes %v", sizes)
	}
	pos += 5
	gotInt := binary.LittleEndian.Uint64(data[pos : pos+8])
	if gotInt != luacInt {
		return fmt.Errorf("emit: bad int_check %#x", gotInt)
	}
	pos += 8
	gotNum := math.Float64frombits(binary.LittleEndian.Uint64(data[pos : pos+8]))
	if gotNum != luacNum {
		return fmt.Errorf("emit: bad num_check %v", gotNum)
	}
	return nil
}

// ReadHeader extracts (magic, version, format, sizes) from an emitted
// chunk for the "emitter / validator agreement" property: re-parsing
// the header must reproduce exactly what was written.
func ReadHeader(data []byte) (magic uint32, version, format byte, sizes [5]byte, err error) {
	if err = Validate(data); err != nil {
		return
	}
	magic = binary.BigEndian.Uint32(data[:4])
	version = data[4]
	format = data[5]
	copy(sizes[:], data[12:17])
	return
}
