package parser

import (
	"regexp"

	"github.com/Spencer-png/luraph-unscrambler/internal/ast"
)

// handlerNameRe matches the name-based half of the vm_handler heuristic:
// handler_\d+, vm_\w+, op_\w+, exec_\w+.
var handlerNameRe = regexp.MustCompile(`(?i)^(handler_[0-9]+|vm_\w+|op_\w+|exec_\w+)$`)

func looksLikeHandlerName(name string) bool {
	return handlerNameRe.MatchString(name) || len(name) >= 16
}

// annotateHandler sets VMHandler/HandlerIndex on a FunctionDecl per the
// name heuristic or, failing that, by scanning its body for a call to
// something that looks like VM machinery.
func annotateHandler(decl *ast.FunctionDecl, _lastLine int) {
	if looksLikeHandlerName(decl.Name) {
		decl.VMHandler = true
	} else if bodyLooksLikeHandler(decl.Body) {
		decl.VMHandler = true
	}
	if decl.VMHandler {
		decl.HandlerIndex = deriveHandlerIndex(decl.Name)
	}
}

func bodyLooksLikeHandler(block *ast.Block) bool {
	found := false
	walkBlock(block, func(n ast.Node) {
		if found {
			return
		}
		call, ok := n.(*ast.Call)
		if !ok {
			return
		}
		name := calleeName(call.Callee)
		if call.Method != "" {
			name = call.Method
		}
		if looksLikeHandlerName(name) {
			found = true
			return
		}
		if len(call.Args) >= 3 && len(name) > 15 {
			found = true
		}
	})
	return found
}

// walkBlock is a small exhaustive visitor over statements/expressions,
// enough to find Call nodes anywhere in a handler body. It does not need
// to be a generic tree-walker: the analyzer re-walks with its own
// cascade once a handler is identified.
func walkBlock(b *ast.Block, visit func(ast.Node)) {
	if b == nil {
		return
	}
	for _, s := range b.Stats {
		walkStat(s, visit)
	}
	for _, e := range b.Return {
		walkExpr(e, visit)
	}
}

func walkStat(s ast.Node, visit func(ast.Node)) {
	switch v := s.(type) {
	case *ast.Assign:
		for _, t := range v.Targets {
			walkExpr(t, visit)
		}
		for _, e := range v.Values {
			walkExpr(e, visit)
		}
	case *ast.FunctionDecl:
		walkBlock(v.Body, visit)
	case *ast.If:
		for _, c := range v.Conds {
			walkExpr(c, visit)
		}
		for _, blk := range v.Blocks {
			walkBlock(blk, visit)
		}
		walkBlock(v.Else, visit)
	case *ast.For:
		walkExpr(v.Init, visit)
		walkExpr(v.Limit, visit)
		walkExpr(v.Step, visit)
		for _, e := range v.Exprs {
			walkExpr(e, visit)
		}
		walkBlock(v.Body, visit)
	case *ast.While:
		walkExpr(v.Cond, visit)
		walkBlock(v.Body, visit)
	case *ast.Do:
		walkBlock(v.Body, visit)
	case *ast.Call:
		walkExpr(v, visit)
	}
}

func walkExpr(e ast.Node, visit func(ast.Node)) {
	if e == nil {
		return
	}
	visit(e)
	switch v := e.(type) {
	case *ast.Binary:
		walkExpr(v.L, visit)
		walkExpr(v.R, visit)
	case *ast.Unary:
		walkExpr(v.A, visit)
	case *ast.Call:
		walkExpr(v.Callee, visit)
		for _, a := range v.Args {
			walkExpr(a, visit)
		}
	case *ast.TableCtor:
		for _, f := range v.Fields {
			walkExpr(f.Key, visit)
			walkExpr(f.Val, visit)
		}
	case *ast.FuncDef:
		walkBlock(v.Body, visit)
	}
}

var reDecimalRun = regexp.MustCompile(`[0-9]+`)

// deriveHandlerIndex picks the handler index from the first decimal run in the
// name, else hash(name) mod 1000.
func deriveHandlerIndex(name string) int {
	if m := reDecimalRun.FindString(name); m != "" {
		n := 0
		for _, c := range m {
			n = n*10 + int(c-'0')
		}
		return n
	}
	return int(fnv32(name) % 1000)
}

func fnv32(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
