// Package vmanalyze identifies VM handlers in the AST, infers which Lua
// 5.3 opcode each one implements, and decrypts the constant pool.
//
// Design Note: this project's equivalent analysis (had one existed) would
// likely keep handlers/constants/key as object fields reset at the start
// of each run, the way compiler/codegen/func_info.go's funcInfo is a
// fresh value per function rather than a package global. We follow that
// model: everything below hangs off a per-invocation *Context, never a
// package-level var, so concurrent invocations never interfere.
package vmanalyze

import (
	"sort"

	"github.com/Spencer-png/luraph-unscrambler/internal/ast"
	"github.com/Spencer-png/luraph-unscrambler/internal/decrypt"
	"github.com/Spencer-png/luraph-unscrambler/internal/luaopcode"
)

// Handler is VMHandler; identity is Index.
type Handler struct {
	Index         int
	Opcode        luaopcode.Op
	Decl          *ast.FunctionDecl
	BodyCode      string // serialized short form, survives past this pass
	Encrypted     bool
	DecryptedCode string
}

// Constant is VMConstant.
type Constant struct {
	Type      ast.LuaType
	Value     interface{}
	PoolIndex int
}

// Context is the per-invocation bundle threaded between the analyzer's
// three sub-passes; nothing here survives across calls to Analyze.
type Context struct {
	Handlers   []*Handler
	Constants  []Constant
	Encryption decrypt.Info
	Warnings   []string

	// ConstantsDecrypted/ConstantsEncrypted let the orchestrator apply the
	// "fatal if >= 50% of constants failed" rule without re-walking the
	// pool itself.
	ConstantsDecrypted int
	ConstantsEncrypted int
}

// Analyze runs handler extraction, encryption discovery, and opcode
// inference over block, in that order.
func Analyze(block *ast.Block, opts Options) *Context {
	ctx := &Context{}
	extractHandlers(block, ctx)
	extractConstants(block, ctx)
	discoverEncryption(block, ctx, opts)
	decryptHandlerBodies(ctx)
	ctx.ConstantsDecrypted, ctx.ConstantsEncrypted = decryptConstants(ctx)
	inferOpcodes(ctx)
	sort.Slice(ctx.Handlers, func(i, j int) bool { return ctx.Handlers[i].Index < ctx.Handlers[j].Index })
	return ctx
}

// Options lets the caller pin method/key/iv/version instead of relying on
// auto-detection.
type Options struct {
	Method  decrypt.Method
	Key     []byte
	IV      []byte
	Version decrypt.Version
}
