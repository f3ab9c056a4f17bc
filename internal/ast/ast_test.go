package ast

import "testing"

// TestEveryNodeImplementsNode exercises the Node marker interface against every concrete
// type so a mistyped embedding of Position is caught here rather than
// further up the pipeline.
func TestEveryNodeImplementsNode(t *testing.T) {
	nodes := []Node{
		&Literal{},
		&EncryptedString{},
		&Identifier{},
		&Vararg{},
		&Unary{},
		&Binary{},
		&Call{},
		&FuncDef{},
		&TableField{},
		&TableCtor{},
		&Block{},
		&Assign{},
		&FunctionDecl{},
		&If{},
		&For{},
		&While{},
		&Return{},
		&Break{},
		&Goto{},
		&Label{},
		&Do{},
	}
	for i, n := range nodes {
		if n == nil {
			t.Fatalf("node %d is nil", i)
		}
	}
}

func TestPositionReportsItself(t *testing.T) {
	p := Position{Line: 3, Column: 7}
	if p.Pos() != p {
		t.Fatalf("Pos() = %+v, want %+v", p.Pos(), p)
	}
	lit := &Literal{Position: p, Value: int64(1), Type: TNumber}
	if lit.Pos() != p {
		t.Fatalf("lit.Pos() = %+v, want %+v", lit.Pos(), p)
	}
}

func TestLuaTypeValuesAreDistinct(t *testing.T) {
	seen := map[LuaType]bool{}
	for _, ty := range []LuaType{TNil, TBool, TNumber, TString} {
		if seen[ty] {
			t.Fatalf("duplicate LuaType value %d", ty)
		}
		seen[ty] = true
	}
}

func TestFieldKindValuesAreDistinct(t *testing.T) {
	if FieldList == FieldRecord {
		t.Fatal("FieldList and FieldRecord must differ")
	}
}

func TestForKindValuesAreDistinct(t *testing.T) {
	if ForNumeric == ForGeneric {
		t.Fatal("ForNumeric and ForGeneric must differ")
	}
}
