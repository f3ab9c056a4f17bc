package vmanalyze

import (
	"strconv"
	"strings"

	"github.com/Spencer-png/luraph-unscrambler/internal/ast"
)

// extractHandlers traverses the AST, collecting
// every FunctionDecl marked VMHandler by the parser.
func extractHandlers(block *ast.Block, ctx *Context) {
	walkDecls(block, func(decl *ast.FunctionDecl) {
		if !decl.VMHandler {
			return
		}
		body := renderBody(decl.Body)
		ctx.Handlers = append(ctx.Handlers, &Handler{
			Index:     decl.HandlerIndex,
			Decl:      decl,
			BodyCode:  body,
			Encrypted: strings.Contains(body, "<encrypted>"),
		})
	})
}

func walkDecls(b *ast.Block, visit func(*ast.FunctionDecl)) {
	if b == nil {
		return
	}
	for _, s := range b.Stats {
		walkStatDecls(s, visit)
	}
}

func walkStatDecls(s ast.Node, visit func(*ast.FunctionDecl)) {
	switch v := s.(type) {
	case *ast.FunctionDecl:
		visit(v)
		walkDecls(v.Body, visit)
	case *ast.Assign:
		// function expressions assigned to a name can also be handlers in
		// obfuscated output (`t[1] = function(...) ... end`); the parser
		// doesn't annotate bare FuncDef values, so nested FuncDefs are
		// surfaced only through FunctionDecl statements here, matching the
		// teacher's own convention of only emitting closures through
		// LocalFuncDefStat/FunctionDecl-shaped statements.
	case *ast.If:
		for _, blk := range v.Blocks {
			walkDecls(blk, visit)
		}
		walkDecls(v.Else, visit)
	case *ast.For:
		walkDecls(v.Body, visit)
	case *ast.While:
		walkDecls(v.Body, visit)
	case *ast.Do:
		walkDecls(v.Body, visit)
	}
}

// renderBody serializes a handler body to a short deterministic string
// form so the Reconstructor doesn't need to keep AST references across
// stage boundaries.
func renderBody(b *ast.Block) string {
	var out string
	for _, s := range b.Stats {
		out += renderStat(s) + "\n"
	}
	for _, r := range b.Return {
		out += "return " + renderExpr(r) + "\n"
	}
	return out
}

func renderStat(s ast.Node) string {
	switch v := s.(type) {
	case *ast.Assign:
		lhs := ""
		for i, t := range v.Targets {
			if i > 0 {
				lhs += ", "
			}
			lhs += renderExpr(t)
		}
		rhs := ""
		for i, e := range v.Values {
			if i > 0 {
				rhs += ", "
			}
			rhs += renderExpr(e)
		}
		return lhs + " = " + rhs
	case *ast.Call:
		return renderExpr(v)
	default:
		return ""
	}
}

func renderExpr(e ast.Node) string {
	switch v := e.(type) {
	case *ast.Identifier:
		return v.Name
	case *ast.Literal:
		return renderLiteral(v)
	case *ast.Binary:
		switch v.Op {
		case "[]":
			return renderExpr(v.L) + "[" + renderExpr(v.R) + "]"
		case ".":
			return renderExpr(v.L) + "." + renderExpr(v.R)
		default:
			return renderExpr(v.L) + " " + v.Op + " " + renderExpr(v.R)
		}
	case *ast.Unary:
		if v.Op == "()" {
			return "(" + renderExpr(v.A) + ")"
		}
		return v.Op + renderExpr(v.A)
	case *ast.Call:
		callee := renderExpr(v.Callee)
		if v.Method != "" {
			callee += ":" + v.Method
		}
		args := ""
		for i, a := range v.Args {
			if i > 0 {
				args += ", "
			}
			args += renderExpr(a)
		}
		return callee + "(" + args + ")"
	case *ast.EncryptedString:
		return "<encrypted>"
	case nil:
		return ""
	default:
		return "?"
	}
}

func renderLiteral(l *ast.Literal) string {
	switch v := l.Value.(type) {
	case nil:
		return "nil"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case string:
		return "\"" + v + "\""
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return "0"
	}
}
