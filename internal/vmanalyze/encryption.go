package vmanalyze

import (
	"github.com/Spencer-png/luraph-unscrambler/internal/ast"
	"github.com/Spencer-png/luraph-unscrambler/internal/decrypt"
)

// discoverEncryption finds the first string
// literal whose shape matches a key (16+ Base64 chars or 32+ hex chars)
// and adopt it as the session key, unless the caller already pinned one
// via Options.
func discoverEncryption(block *ast.Block, ctx *Context, opts Options) {
	info := decrypt.Info{Method: decrypt.Auto, Version: opts.Version}
	if opts.Method != "" {
		info.Method = opts.Method
	}
	if opts.Key != nil {
		info.Key = opts.Key
	}
	if opts.IV != nil {
		info.IV = opts.IV
	}

	if info.Key == nil {
		walkLiterals(block, func(lit *ast.Literal) {
			if info.Key != nil {
				return
			}
			s, ok := lit.Value.(string)
			if !ok {
				return
			}
			if decrypt.LooksLikeKeyShape(s) {
				info.Key = []byte(s)
			}
		})
	}

	// An EncryptedString node with an explicit method annotation wins over
	// "auto" 
	walkEncryptedStrings(block, func(es *ast.EncryptedString) {
		if es.Method != "" {
			info.Method = decrypt.Method(es.Method)
		}
	})

	ctx.Encryption = info
}

func walkLiterals(b *ast.Block, visit func(*ast.Literal)) {
	walkAllNodes(b, func(n ast.Node) {
		if lit, ok := n.(*ast.Literal); ok {
			visit(lit)
		}
	})
}

func walkEncryptedStrings(b *ast.Block, visit func(*ast.EncryptedString)) {
	walkAllNodes(b, func(n ast.Node) {
		if es, ok := n.(*ast.EncryptedString); ok {
			visit(es)
		}
	})
}

// walkAllNodes is an exhaustive visitor over every statement/expression
// shape; unknown shapes are simply not descended into (an explicit no-op
// case, never a crash), per Design Note 1.
func walkAllNodes(b *ast.Block, visit func(ast.Node)) {
	if b == nil {
		return
	}
	for _, s := range b.Stats {
		walkStatAll(s, visit)
	}
	for _, e := range b.Return {
		walkExprAll(e, visit)
	}
}

func walkStatAll(s ast.Node, visit func(ast.Node)) {
	if s == nil {
		return
	}
	visit(s)
	switch v := s.(type) {
	case *ast.Assign:
		for _, t := range v.Targets {
			walkExprAll(t, visit)
		}
		for _, e := range v.Values {
			walkExprAll(e, visit)
		}
	case *ast.FunctionDecl:
		walkAllNodes(v.Body, visit)
	case *ast.If:
		for _, c := range v.Conds {
			walkExprAll(c, visit)
		}
		for _, blk := range v.Blocks {
			walkAllNodes(blk, visit)
		}
		walkAllNodes(v.Else, visit)
	case *ast.For:
		walkExprAll(v.Init, visit)
		walkExprAll(v.Limit, visit)
		walkExprAll(v.Step, visit)
		for _, e := range v.Exprs {
			walkExprAll(e, visit)
		}
		walkAllNodes(v.Body, visit)
	case *ast.While:
		walkExprAll(v.Cond, visit)
		walkAllNodes(v.Body, visit)
	case *ast.Do:
		walkAllNodes(v.Body, visit)
	case *ast.Call:
		walkExprAll(v, visit)
	}
}

func walkExprAll(e ast.Node, visit func(ast.Node)) {
	if e == nil {
		return
	}
	visit(e)
	switch v := e.(type) {
	case *ast.Binary:
		walkExprAll(v.L, visit)
		walkExprAll(v.R, visit)
	case *ast.Unary:
		walkExprAll(v.A, visit)
	case *ast.Call:
		walkExprAll(v.Callee, visit)
		for _, a := range v.Args {
			walkExprAll(a, visit)
		}
	case *ast.TableCtor:
		for _, f := range v.Fields {
			walkExprAll(f.Key, visit)
			walkExprAll(f.Val, visit)
		}
	case *ast.FuncDef:
		walkAllNodes(v.Body, visit)
	}
}

// decryptHandlerBodies decrypts each handler whose body embeds an
// EncryptedString (the handler's real implementation is hidden behind a
// decode-and-load call) before opcode inference runs.
func decryptHandlerBodies(ctx *Context) {
	for _, h := range ctx.Handlers {
		if !h.Encrypted {
			continue
		}
		es := firstEncryptedString(h.Decl.Body)
		if es == nil {
			continue
		}
		method := ctx.Encryption.Method
		if es.Method != "" {
			method = decrypt.Method(es.Method)
		}
		r := decrypt.Decrypt(es.Bytes, ctx.Encryption.Key, ctx.Encryption.IV, method)
		if r.OK {
			h.DecryptedCode = string(r.Plaintext)
		} else {
			ctx.Warnings = append(ctx.Warnings, "handler #"+itoa(h.Index)+": decryption failed, body left encrypted")
		}
	}
}

func firstEncryptedString(b *ast.Block) *ast.EncryptedString {
	var found *ast.EncryptedString
	walkAllNodes(b, func(n ast.Node) {
		if found != nil {
			return
		}
		if es, ok := n.(*ast.EncryptedString); ok {
			found = es
		}
	})
	return found
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}
