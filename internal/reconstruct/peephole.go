package reconstruct

import "github.com/Spencer-png/luraph-unscrambler/internal/luaopcode"

// runPeephole applies the optimization rules in order (MOVE-to-self,
// dead LOADK, duplicate arithmetic, constant dedup, unreachable-code
// pruning), repeating the whole sequence until none of them change the
// code.
func runPeephole(p *VMProto) {
	for {
		changed := false
		if removeMoveToSelf(p) {
			changed = true
		}
		if removeDeadLoadK(p) {
			changed = true
		}
		if removeDuplicateArith(p) {
			changed = true
		}
		dedupeConstants(p)
		before := len(p.Code)
		pruneUnreachable(p)
		if len(p.Code) != before {
			changed = true
		}
		if !changed {
			break
		}
	}
}

// removeMoveToSelf deletes MOVE a a instructions; they're a no-op by
// construction.
func removeMoveToSelf(p *VMProto) bool {
	out := p.Code[:0]
	changed := false
	for _, in := range p.Code {
		if in.Opcode == luaopcode.MOVE && in.A == in.B {
			changed = true
			continue
		}
		out = append(out, in)
	}
	p.Code = out
	return changed
}

// removeDeadLoadK drops a LOADK into register a when the very next
// instruction is another LOADK into the same register: the first value
// is never observed.
func removeDeadLoadK(p *VMProto) bool {
	changed := false
	var out []VMInstruction
	for i := 0; i < len(p.Code); i++ {
		in := p.Code[i]
		if in.Opcode == luaopcode.LOADK && i+1 < len(p.Code) {
			next := p.Code[i+1]
			if next.Opcode == luaopcode.LOADK && next.A == in.A {
				changed = true
				continue
			}
		}
		out = append(out, in)
	}
	if changed {
		p.Code = out
	}
	return changed
}

// removeDuplicateArith drops an arithmetic triple that exactly repeats
// the preceding instruction (same opcode, a, b, c).
func removeDuplicateArith(p *VMProto) bool {
	changed := false
	var out []VMInstruction
	for i, in := range p.Code {
		if i > 0 && isArith(in.Opcode) {
			prev := out[len(out)-1]
			if prev.Opcode == in.Opcode && prev.A == in.A && prev.B == in.B && prev.C == in.C {
				changed = true
				continue
			}
		}
		out = append(out, in)
	}
	if changed {
		p.Code = out
	}
	return changed
}

func isArith(op luaopcode.Op) bool {
	switch op {
	case luaopcode.ADD, luaopcode.SUB, luaopcode.MUL, luaopcode.MOD,
		luaopcode.POW, luaopcode.DIV, luaopcode.IDIV, luaopcode.BAND,
		luaopcode.BOR, luaopcode.BXOR, luaopcode.SHL, luaopcode.SHR,
		luaopcode.CONCAT:
		return true
	default:
		return false
	}
}

// dedupeConstants collapses (type, value)-equal constants and remaps
// every LOADK.Bx accordingly.
func dedupeConstants(p *VMProto) {
	type key struct {
		t ConstType
		v interface{}
	}
	seen := map[key]int{}
	var deduped []VMConstant
	remap := make([]int, len(p.Consts))
	for i, c := range p.Consts {
		k := key{c.Type, c.Value}
		if idx, ok := seen[k]; ok {
			remap[i] = idx
			continue
		}
		idx := len(deduped)
		seen[k] = idx
		deduped = append(deduped, c)
		remap[i] = idx
	}
	p.Consts = deduped
	for i := range p.Code {
		if p.Code[i].Opcode == luaopcode.LOADK {
			if bx := p.Code[i].Bx; bx >= 0 && bx < len(remap) {
				p.Code[i].Bx = remap[bx]
			}
		}
	}
}

// pruneUnreachable performs forward-reachability dead-code elimination
// from pc=0: JMP.sbx branches to pc+1+sbx, RETURN has no successor, every
// other instruction falls through to pc+1.
func pruneUnreachable(p *VMProto) {
	n := len(p.Code)
	if n == 0 {
		return
	}
	reachable := make([]bool, n)
	var stack []int
	stack = append(stack, 0)
	for len(stack) > 0 {
		pc := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if pc < 0 || pc >= n || reachable[pc] {
			continue
		}
		reachable[pc] = true
		in := p.Code[pc]
		switch in.Opcode {
		case luaopcode.JMP:
			stack = append(stack, pc+1+in.SBx)
		case luaopcode.RETURN:
		default:
			stack = append(stack, pc+1)
		}
	}
	var out []VMInstruction
	for i, in := range p.Code {
		if reachable[i] {
			out = append(out, in)
		}
	}
	p.Code = out
}

// computeMaxStack is the maximum of: highest a+1 among stack-writing
// opcodes, a+b-1 for CALL with b>0, and a+c-1 for CALL with c>0.
func computeMaxStack(p *VMProto) int {
	max := 0
	for _, in := range p.Code {
		if in.Opcode.WritesStack() {
			if v := in.A + 1; v > max {
				max = v
			}
		}
		if in.Opcode == luaopcode.CALL {
			if in.B > 0 {
				if v := in.A + in.B - 1; v > max {
					max = v
				}
			}
			if in.C > 0 {
				if v := in.A + in.C - 1; v > max {
					max = v
				}
			}
		}
	}
	return max
}
