// Package orchestrator sequences the lexer, parser, VM analyzer,
// reconstructor, and emitter into a single deobfuscate call, posting
// progress events and classifying failures per the stage each one
// originates from.
package orchestrator

import (
	"regexp"
	"strconv"

	"github.com/iancoleman/orderedmap"

	"github.com/Spencer-png/luraph-unscrambler/internal/ast"
	"github.com/Spencer-png/luraph-unscrambler/internal/decrypt"
	"github.com/Spencer-png/luraph-unscrambler/internal/emit"
	"github.com/Spencer-png/luraph-unscrambler/internal/lexer"
	"github.com/Spencer-png/luraph-unscrambler/internal/parser"
	"github.com/Spencer-png/luraph-unscrambler/internal/reconstruct"
	"github.com/Spencer-png/luraph-unscrambler/internal/vmanalyze"
)

// ErrorKind classifies why Deobfuscate failed.
type ErrorKind int

const (
	NotLuraph ErrorKind = iota
	InvalidLua
	DecryptionFailed
	Cancelled
	EmitFailed
)

func (k ErrorKind) String() string {
	switch k {
	case NotLuraph:
		return "NotLuraph"
	case InvalidLua:
		return "InvalidLua"
	case DecryptionFailed:
		return "DecryptionFailed"
	case Cancelled:
		return "Cancelled"
	case EmitFailed:
		return "EmitFailed"
	default:
		return "Unknown"
	}
}

// Error is the taxonomy described by ErrorKind, plus optional
// position/message detail for InvalidLua and EmitFailed.
type Error struct {
	Kind ErrorKind
	Line int
	Col  int
	Msg  string
}

func (e *Error) Error() string {
	switch e.Kind {
	case InvalidLua:
		return "invalid lua at " + strconv.Itoa(e.Line) + ":" + strconv.Itoa(e.Col) + ": " + e.Msg
	case EmitFailed:
		return "emit failed: " + e.Msg
	default:
		return e.Kind.String()
	}
}

// Stats summarizes one Deobfuscate run.
type Stats struct {
	HandlersProcessed        int
	InstructionsReconstructed int
	ConstantsDecrypted       int
	Warnings                 []string
}

// Result is what a successful (or partially successful) Deobfuscate
// call returns.
type Result struct {
	SourceCode *string
	Bytecode   []byte
	Stats      Stats
}

// Options lets the caller pin decryption parameters instead of relying
// on auto-detection, and supply a cooperative cancellation flag and a
// progress sink.
type Options struct {
	Method  decrypt.Method
	Key     []byte
	IV      []byte
	Version decrypt.Version
	Cancel  func() bool
	Sink    func(ProgressEvent)
}

// ProgressEvent is posted at each stage boundary.
type ProgressEvent struct {
	Step     string
	Fraction float64
}

var stageOrder = []string{
	"lex", "parse", "detect_vm", "find_encryption", "decrypt",
	"strip_antidecompile", "optimize", "emit",
}

func stageFraction(stage string) float64 {
	for i, s := range stageOrder {
		if s == stage {
			return float64(i+1) / float64(len(stageOrder))
		}
	}
	return 0
}

// Deobfuscate runs lex -> parse -> detect_vm gate -> analyze ->
// reconstruct -> emit -> validate over source.
func Deobfuscate(source []byte, opts Options) (Result, error) {
	post := func(stage string) {
		if opts.Sink != nil {
			opts.Sink(ProgressEvent{Step: stage, Fraction: stageFraction(stage)})
		}
	}
	cancelled := func() bool { return opts.Cancel != nil && opts.Cancel() }

	src := string(source)
	toks := lexer.All(src, "input")
	post("lex")
	if cancelled() {
		return Result{}, &Error{Kind: Cancelled}
	}

	block, err := parser.ParseTokens(toks)
	post("parse")
	if err != nil {
		pe, ok := err.(*parser.ParseError)
		if ok {
			return Result{}, &Error{Kind: InvalidLua, Line: pe.Line, Col: pe.Col, Msg: "expected " + pe.Expected + ", got " + pe.Got}
		}
		return Result{}, &Error{Kind: InvalidLua, Msg: err.Error()}
	}
	if cancelled() {
		return Result{}, &Error{Kind: Cancelled}
	}

	if !looksLikeLuraph(src, toks, block) {
		post("detect_vm")
		return Result{}, &Error{Kind: NotLuraph}
	}
	post("detect_vm")
	if cancelled() {
		return Result{}, &Error{Kind: Cancelled}
	}

	analyzeOpts := vmanalyze.Options{Method: opts.Method, Key: opts.Key, IV: opts.IV, Version: opts.Version}
	ctx := vmanalyze.Analyze(block, analyzeOpts)
	post("find_encryption")
	if cancelled() {
		return Result{}, &Error{Kind: Cancelled}
	}

	warnings := append([]string{}, ctx.Warnings...)
	post("decrypt")
	if decErr := checkDecryption(ctx); decErr != nil {
		return Result{}, decErr
	}
	if cancelled() {
		return Result{}, &Error{Kind: Cancelled}
	}
	post("strip_antidecompile")

	proto, liftWarnings := reconstruct.Build(ctx, src)
	warnings = append(warnings, liftWarnings...)
	post("optimize")
	if cancelled() {
		return Result{}, &Error{Kind: Cancelled}
	}

	bytecode := emit.Write(proto)
	post("emit")
	if err := emit.Validate(bytecode); err != nil {
		return Result{}, &Error{Kind: EmitFailed, Msg: err.Error()}
	}

	stats := Stats{
		HandlersProcessed:         len(ctx.Handlers),
		InstructionsReconstructed: len(proto.Code),
		ConstantsDecrypted:        ctx.ConstantsDecrypted,
		Warnings:                  warnings,
	}
	return Result{Bytecode: bytecode, Stats: stats}, nil
}

// DebugJSON renders the run's stats as stable-key-order JSON, independent
// of Go's randomized map iteration, for archiving or diffing between runs.
func (r Result) DebugJSON() ([]byte, error) {
	o := orderedmap.New()
	o.Set("handlers_processed", r.Stats.HandlersProcessed)
	o.Set("instructions_reconstructed", r.Stats.InstructionsReconstructed)
	o.Set("constants_decrypted", r.Stats.ConstantsDecrypted)
	o.Set("bytecode_size", len(r.Bytecode))
	o.Set("warnings", r.Stats.Warnings)
	return o.MarshalJSON()
}

// checkDecryption applies the "fatal if >= 50% of constants failed"
// rule; below that threshold the failures already logged onto
// ctx.Warnings by the analyzer are sufficient and the pass continues
// with ciphertext kept in place of the unresolved constants.
func checkDecryption(ctx *vmanalyze.Context) *Error {
	total := len(ctx.Constants)
	if total == 0 {
		return nil
	}
	failed := ctx.ConstantsEncrypted - ctx.ConstantsDecrypted
	if failed*2 >= total {
		return &Error{Kind: DecryptionFailed, Msg: "every algorithm scored below threshold for at least half of the constants"}
	}
	return nil
}

var (
	reLuraphMarker = regexp.MustCompile(`(?i)luraph|lura\.ph|protected using luraph|obfuscator`)
	reRegisterRef  = regexp.MustCompile(`R\[[^\]]*\]`)
	reConstRef     = regexp.MustCompile(`K\[[^\]]*\]`)
	reHandlerName  = regexp.MustCompile(`handler_\d+`)
	reVMName       = regexp.MustCompile(`\bvm_\w+`)
	reHexLit       = regexp.MustCompile(`0x[0-9a-fA-F]+`)
)

// looksLikeLuraph is the detect_vm gate: a source/AST shape strong
// enough to be worth running the rest of the pipeline on.
func looksLikeLuraph(src string, toks []lexer.Token, block *ast.Block) bool {
	if reLuraphMarker.MatchString(src) {
		return true
	}

	patterns := 0
	if reRegisterRef.MatchString(src) {
		patterns++
	}
	if reConstRef.MatchString(src) {
		patterns++
	}
	if reHandlerName.MatchString(src) {
		patterns++
	}
	if reVMName.MatchString(src) {
		patterns++
	}
	if reHexLit.MatchString(src) {
		patterns++
	}
	if hasLongIdentifier(toks) {
		patterns++
	}
	if patterns >= 2 {
		return true
	}

	return hasVMHandlerAndEncryptedString(block)
}

func hasLongIdentifier(toks []lexer.Token) bool {
	for _, t := range toks {
		if (t.Kind == lexer.Name || t.Kind == lexer.ObfuscatedName) && len(t.Lexeme) > 15 {
			return true
		}
	}
	return false
}

func hasVMHandlerAndEncryptedString(block *ast.Block) bool {
	hasHandler, hasEncrypted := false, false
	var walk func(*ast.Block)
	walk = func(b *ast.Block) {
		if b == nil || (hasHandler && hasEncrypted) {
			return
		}
		for _, s := range b.Stats {
			switch v := s.(type) {
			case *ast.FunctionDecl:
				if v.VMHandler {
					hasHandler = true
				}
				walk(v.Body)
			case *ast.If:
				for _, blk := range v.Blocks {
					walk(blk)
				}
				walk(v.Else)
			case *ast.For:
				walk(v.Body)
			case *ast.While:
				walk(v.Body)
			case *ast.Do:
				walk(v.Body)
			case *ast.Assign:
				for _, val := range v.Values {
					if containsEncryptedString(val) {
						hasEncrypted = true
					}
				}
			}
		}
	}
	walk(block)
	return hasHandler && hasEncrypted
}

func containsEncryptedString(n ast.Node) bool {
	switch v := n.(type) {
	case *ast.EncryptedString:
		return true
	case *ast.TableCtor:
		for _, f := range v.Fields {
			if containsEncryptedString(f.Val) {
				return true
			}
		}
	}
	return false
}
