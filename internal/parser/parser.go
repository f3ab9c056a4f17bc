// Package parser is a recursive-descent, Pratt-precedence parser for the
// Lua 5.3 grammar, annotating nodes suspected of being Luraph VM-dispatch
// machinery as it builds the tree.
package parser

import (
	"fmt"
	"regexp"

	"github.com/Spencer-png/luraph-unscrambler/internal/ast"
	"github.com/Spencer-png/luraph-unscrambler/internal/lexer"
)

// ParseError describes one syntax error. Parsing recovers from each one by
// skip-to-sync; recoverable errors and errors at EOF inside a construct
// are not told apart.
type ParseError struct {
	Line, Col int
	Expected  string
	Got       string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: expected %s, got %q", e.Line, e.Col, e.Expected, e.Got)
}

type Parser struct {
	toks []lexer.Token
	pos  int
	errs []error
}

// Parse tokenizes src and parses it into a Block. It always returns the
// best recovered AST. When any syntax error was met, err is the first one
// (a *ParseError), even if parsing recovered from it; an error at EOF
// inside a construct is not singled out.
func Parse(src, name string) (*ast.Block, error) {
	toks := lexer.All(src, name)
	return ParseTokens(toks)
}

func ParseTokens(toks []lexer.Token) (*ast.Block, error) {
	filtered := make([]lexer.Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind != lexer.Newline {
			filtered = append(filtered, t)
		}
	}
	p := &Parser{toks: filtered}
	block := p.parseBlock()
	if !p.at(lexer.EOF) {
		return block, &ParseError{Line: p.cur().Line, Col: p.cur().Column, Expected: "EOF", Got: p.cur().Lexeme}
	}
	if len(p.errs) > 0 {
		return block, p.errs[0]
	}
	return block, nil
}

func (p *Parser) cur() lexer.Token {
	if p.pos >= len(p.toks) {
		return lexer.Token{Kind: lexer.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) at(k lexer.Kind) bool { return p.cur().Kind == k }

func (p *Parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k lexer.Kind, what string) (lexer.Token, error) {
	if p.at(k) {
		return p.advance(), nil
	}
	return p.cur(), &ParseError{Line: p.cur().Line, Col: p.cur().Column, Expected: what, Got: p.cur().Lexeme}
}

func pos(t lexer.Token) ast.Position { return ast.Position{Line: t.Line, Column: t.Column} }

// syncKinds are the statement-starting keywords (or ';') a recoverable
// error skips forward to during recovery.
var syncKinds = map[lexer.Kind]bool{
	lexer.KwFunction: true, lexer.KwLocal: true, lexer.KwFor: true,
	lexer.KwIf: true, lexer.KwWhile: true, lexer.KwReturn: true,
	lexer.SepSemi: true, lexer.EOF: true,
}

func (p *Parser) recover(err error) {
	p.errs = append(p.errs, err)
	for !syncKinds[p.cur().Kind] {
		p.advance()
	}
}

// ---- blocks & statements ----

func isBlockEnd(k lexer.Kind) bool {
	switch k {
	case lexer.EOF, lexer.KwEnd, lexer.KwElse, lexer.KwElseif, lexer.KwUntil, lexer.KwReturn:
		return true
	}
	return false
}

func (p *Parser) parseBlock() *ast.Block {
	start := p.cur()
	b := &ast.Block{Position: pos(start)}
	for !isBlockEnd(p.cur().Kind) {
		before := p.pos
		stat := p.parseStat()
		if stat != nil {
			b.Stats = append(b.Stats, stat)
		}
		if p.pos == before {
			// guaranteed forward progress against malformed input
			p.advance()
		}
	}
	if p.at(lexer.KwReturn) {
		p.advance()
		if !isBlockEnd(p.cur().Kind) && !p.at(lexer.SepSemi) {
			b.Return = p.parseExprList()
		} else {
			b.Return = []ast.Node{}
		}
		if p.at(lexer.SepSemi) {
			p.advance()
		}
	}
	b.LastLine = p.cur().Line
	return b
}

func (p *Parser) parseStat() ast.Node {
	switch p.cur().Kind {
	case lexer.SepSemi:
		p.advance()
		return nil
	case lexer.SepLabel:
		t := p.advance()
		name, err := p.expect(lexer.Name, "label name")
		if err != nil {
			p.recover(err)
			return nil
		}
		if _, err := p.expect(lexer.SepLabel, "::"); err != nil {
			p.recover(err)
		}
		return &ast.Label{Position: pos(t), Name: name.Lexeme}
	case lexer.KwBreak:
		t := p.advance()
		return &ast.Break{Position: pos(t)}
	case lexer.KwGoto:
		t := p.advance()
		name, err := p.expect(lexer.Name, "goto label")
		if err != nil {
			p.recover(err)
			return nil
		}
		return &ast.Goto{Position: pos(t), Label: name.Lexeme}
	case lexer.KwDo:
		t := p.advance()
		body := p.parseBlock()
		p.closeEnd()
		return &ast.Do{Position: pos(t), Body: body}
	case lexer.KwWhile:
		return p.parseWhile()
	case lexer.KwRepeat:
		return p.parseRepeat()
	case lexer.KwIf:
		return p.parseIf()
	case lexer.KwFor:
		return p.parseFor()
	case lexer.KwFunction:
		return p.parseFunctionStat()
	case lexer.KwLocal:
		return p.parseLocal()
	default:
		return p.parseExprOrAssignStat()
	}
}

func (p *Parser) closeEnd() {
	if _, err := p.expect(lexer.KwEnd, "'end'"); err != nil {
		p.recover(err)
	}
}

func (p *Parser) parseWhile() ast.Node {
	t := p.advance()
	cond := p.parseExpr()
	if _, err := p.expect(lexer.KwDo, "'do'"); err != nil {
		p.recover(err)
	}
	body := p.parseBlock()
	p.closeEnd()
	return &ast.While{Position: pos(t), Cond: cond, Body: body}
}

func (p *Parser) parseRepeat() ast.Node {
	t := p.advance()
	body := p.parseBlock()
	if _, err := p.expect(lexer.KwUntil, "'until'"); err != nil {
		p.recover(err)
	}
	cond := p.parseExpr()
	return &ast.While{Position: pos(t), Cond: cond, Body: body, Repeat: true}
}

func (p *Parser) parseIf() ast.Node {
	t := p.advance()
	n := &ast.If{Position: pos(t)}
	cond := p.parseExpr()
	if _, err := p.expect(lexer.KwThen, "'then'"); err != nil {
		p.recover(err)
	}
	n.Conds = append(n.Conds, cond)
	n.Blocks = append(n.Blocks, p.parseBlock())
	for p.at(lexer.KwElseif) {
		p.advance()
		c := p.parseExpr()
		if _, err := p.expect(lexer.KwThen, "'then'"); err != nil {
			p.recover(err)
		}
		n.Conds = append(n.Conds, c)
		n.Blocks = append(n.Blocks, p.parseBlock())
	}
	if p.at(lexer.KwElse) {
		p.advance()
		n.Else = p.parseBlock()
	}
	p.closeEnd()
	return n
}

func (p *Parser) parseFor() ast.Node {
	t := p.advance()
	name, err := p.expect(lexer.Name, "loop variable")
	if err != nil {
		p.recover(err)
		return nil
	}
	if p.at(lexer.OpAssign) {
		p.advance()
		init := p.parseExpr()
		if _, err := p.expect(lexer.SepComma, "','"); err != nil {
			p.recover(err)
		}
		limit := p.parseExpr()
		var step ast.Node
		if p.at(lexer.SepComma) {
			p.advance()
			step = p.parseExpr()
		}
		if _, err := p.expect(lexer.KwDo, "'do'"); err != nil {
			p.recover(err)
		}
		body := p.parseBlock()
		p.closeEnd()
		return &ast.For{Position: pos(t), Kind: ast.ForNumeric, Var: name.Lexeme,
			Init: init, Limit: limit, Step: step, Body: body}
	}

	names := []string{name.Lexeme}
	for p.at(lexer.SepComma) {
		p.advance()
		n2, err := p.expect(lexer.Name, "name")
		if err != nil {
			p.recover(err)
			break
		}
		names = append(names, n2.Lexeme)
	}
	if _, err := p.expect(lexer.KwIn, "'in'"); err != nil {
		p.recover(err)
	}
	exprs := p.parseExprList()
	if _, err := p.expect(lexer.KwDo, "'do'"); err != nil {
		p.recover(err)
	}
	body := p.parseBlock()
	p.closeEnd()
	return &ast.For{Position: pos(t), Kind: ast.ForGeneric, Names: names, Exprs: exprs, Body: body}
}

func (p *Parser) parseFunctionStat() ast.Node {
	t := p.advance()
	name, err := p.expect(lexer.Name, "function name")
	if err != nil {
		p.recover(err)
		return nil
	}
	fullName := name.Lexeme
	isMethod := false
	for p.at(lexer.SepDot) || p.at(lexer.SepColon) {
		sep := p.advance()
		part, err := p.expect(lexer.Name, "name")
		if err != nil {
			p.recover(err)
			break
		}
		fullName += "." + part.Lexeme
		if sep.Kind == lexer.SepColon {
			isMethod = true
			break
		}
	}
	params, isVararg, body, lastLine := p.parseFuncBody(isMethod)
	decl := &ast.FunctionDecl{Position: pos(t), Name: fullName, Params: params,
		IsVararg: isVararg, Body: body, IsMethod: isMethod}
	annotateHandler(decl, lastLine)
	return decl
}

func (p *Parser) parseLocal() ast.Node {
	t := p.advance()
	if p.at(lexer.KwFunction) {
		p.advance()
		name, err := p.expect(lexer.Name, "function name")
		if err != nil {
			p.recover(err)
			return nil
		}
		params, isVararg, body, lastLine := p.parseFuncBody(false)
		decl := &ast.FunctionDecl{Position: pos(t), Name: name.Lexeme, Params: params,
			IsVararg: isVararg, Body: body, IsLocal: true}
		annotateHandler(decl, lastLine)
		return decl
	}

	names := []string{}
	for {
		n, err := p.expect(lexer.Name, "name")
		if err != nil {
			p.recover(err)
			return nil
		}
		names = append(names, n.Lexeme)
		if p.at(lexer.SepComma) {
			p.advance()
			continue
		}
		break
	}
	var values []ast.Node
	if p.at(lexer.OpAssign) {
		p.advance()
		values = p.parseExprList()
	}
	return &ast.Assign{Position: pos(t), Targets: nil, Values: values, IsLocal: true, Names: names}
}

func (p *Parser) parseFuncBody(isMethod bool) (params []string, isVararg bool, body *ast.Block, lastLine int) {
	if _, err := p.expect(lexer.SepLParen, "'('"); err != nil {
		p.recover(err)
	}
	if isMethod {
		params = append(params, "self")
	}
	if !p.at(lexer.SepRParen) {
		for {
			if p.at(lexer.OpVararg) {
				p.advance()
				isVararg = true
				break
			}
			n, err := p.expect(lexer.Name, "parameter")
			if err != nil {
				p.recover(err)
				break
			}
			params = append(params, n.Lexeme)
			if p.at(lexer.SepComma) {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(lexer.SepRParen, "')'"); err != nil {
		p.recover(err)
	}
	body = p.parseBlock()
	lastLine = p.cur().Line
	p.closeEnd()
	return
}

func (p *Parser) parseExprOrAssignStat() ast.Node {
	t := p.cur()
	first := p.parseSuffixedExpr()
	if p.at(lexer.OpAssign) || p.at(lexer.SepComma) {
		targets := []ast.Node{first}
		for p.at(lexer.SepComma) {
			p.advance()
			targets = append(targets, p.parseSuffixedExpr())
		}
		if _, err := p.expect(lexer.OpAssign, "'='"); err != nil {
			p.recover(err)
			return nil
		}
		values := p.parseExprList()
		return &ast.Assign{Position: pos(t), Targets: targets, Values: values}
	}
	return first
}

// ---- expressions (Pratt precedence) ----
//
// or < and < comparison < concat(right) < additive < multiplicative
//     < unary < power(right) < call/index

type precLevel int

const (
	precNone precLevel = iota
	precOr
	precAnd
	precCompare
	precConcat
	precAdditive
	precMultiplicative
	precUnary
	precPower
)

func binPrec(k lexer.Kind) (precLevel, bool, bool) { // level, rightAssoc, ok
	switch k {
	case lexer.KwOr:
		return precOr, false, true
	case lexer.KwAnd:
		return precAnd, false, true
	case lexer.OpLt, lexer.OpGt, lexer.OpLe, lexer.OpGe, lexer.OpNe, lexer.OpEq:
		return precCompare, false, true
	case lexer.OpConcat:
		return precConcat, true, true
	case lexer.OpAdd, lexer.OpMinus, lexer.OpBor, lexer.OpBxor, lexer.OpBand, lexer.OpShl, lexer.OpShr:
		return precAdditive, false, true
	case lexer.OpMul, lexer.OpDiv, lexer.OpIDiv, lexer.OpMod:
		return precMultiplicative, false, true
	case lexer.OpPow:
		return precPower, true, true
	}
	return precNone, false, false
}

func (p *Parser) parseExpr() ast.Node { return p.parseBinExpr(precNone) }

func (p *Parser) parseBinExpr(min precLevel) ast.Node {
	left := p.parseUnary()
	for {
		level, right, ok := binPrec(p.cur().Kind)
		if !ok || level < min {
			return left
		}
		opTok := p.advance()
		nextMin := level + 1
		if right {
			nextMin = level
		}
		rhs := p.parseBinExpr(nextMin)
		if opTok.Kind == lexer.OpConcat {
			left = &ast.Binary{Position: pos(opTok), Op: "..", L: left, R: rhs}
		} else {
			left = &ast.Binary{Position: pos(opTok), Op: opTok.Lexeme, L: left, R: rhs}
		}
	}
}

func (p *Parser) parseUnary() ast.Node {
	switch p.cur().Kind {
	case lexer.KwNot, lexer.OpMinus, lexer.OpLen, lexer.OpBxor:
		t := p.advance()
		operand := p.parseBinExpr(precUnary)
		return &ast.Unary{Position: pos(t), Op: t.Lexeme, A: operand}
	}
	return p.parsePow()
}

func (p *Parser) parsePow() ast.Node {
	base := p.parseSimpleExpr()
	if p.at(lexer.OpPow) {
		t := p.advance()
		exp := p.parseBinExpr(precUnary) // unary binds tighter than ^ on the RHS
		return &ast.Binary{Position: pos(t), Op: "^", L: base, R: exp}
	}
	return base
}

func (p *Parser) parseSimpleExpr() ast.Node {
	t := p.cur()
	switch t.Kind {
	case lexer.KwNil:
		p.advance()
		return &ast.Literal{Position: pos(t), Value: nil, Type: ast.TNil}
	case lexer.KwTrue:
		p.advance()
		return &ast.Literal{Position: pos(t), Value: true, Type: ast.TBool}
	case lexer.KwFalse:
		p.advance()
		return &ast.Literal{Position: pos(t), Value: false, Type: ast.TBool}
	case lexer.Number:
		p.advance()
		return parseNumberLit(t)
	case lexer.String:
		p.advance()
		return &ast.Literal{Position: pos(t), Value: t.Lexeme, Type: ast.TString}
	case lexer.EncryptedString:
		p.advance()
		return &ast.EncryptedString{Position: pos(t), Bytes: []byte(t.Lexeme), Method: t.StringMethod}
	case lexer.OpVararg:
		p.advance()
		return &ast.Vararg{Position: pos(t)}
	case lexer.KwFunction:
		p.advance()
		params, isVararg, body, lastLine := p.parseFuncBody(false)
		return &ast.FuncDef{Position: pos(t), Params: params, IsVararg: isVararg, Body: body, LastLine: lastLine}
	case lexer.SepLCurly:
		return p.parseTableCtor()
	default:
		return p.parseSuffixedExpr()
	}
}

func parseNumberLit(t lexer.Token) ast.Node {
	lit := t.Lexeme
	if i, ok := parseLuaInt(lit); ok {
		return &ast.Literal{Position: pos(t), Value: i, Type: ast.TNumber}
	}
	f, _ := parseLuaFloat(lit)
	return &ast.Literal{Position: pos(t), Value: f, Type: ast.TNumber}
}

var reHexInt = regexp.MustCompile(`^0[xX][0-9a-fA-F]+$`)
var reDecInt = regexp.MustCompile(`^[0-9]+$`)

func parseLuaInt(s string) (int64, bool) {
	if reHexInt.MatchString(s) {
		var v uint64
		for _, c := range s[2:] {
			v = v*16 + uint64(hexDigit(byte(c)))
		}
		return int64(v), true
	}
	if reDecInt.MatchString(s) {
		var v int64
		for _, c := range s {
			v = v*10 + int64(c-'0')
		}
		return v, true
	}
	return 0, false
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 0
}

func parseLuaFloat(s string) (float64, bool) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err == nil
}

// ---- prefix/suffixed expressions: var | functioncall | '(' exp ')' ----

func (p *Parser) parsePrimaryExpr() ast.Node {
	t := p.cur()
	switch t.Kind {
	case lexer.SepLParen:
		p.advance()
		e := p.parseExpr()
		if _, err := p.expect(lexer.SepRParen, "')'"); err != nil {
			p.recover(err)
		}
		return &ast.Unary{Position: pos(t), Op: "()", A: e} // parens: wraps to suppress multi-value spread
	case lexer.Name, lexer.ObfuscatedName:
		p.advance()
		return &ast.Identifier{Position: pos(t), Name: t.Lexeme, Obfuscated: t.Kind == lexer.ObfuscatedName}
	}
	err := &ParseError{Line: t.Line, Col: t.Column, Expected: "expression", Got: t.Lexeme}
	p.recover(err)
	return &ast.Literal{Position: pos(t), Value: nil, Type: ast.TNil}
}

func (p *Parser) parseSuffixedExpr() ast.Node {
	e := p.parsePrimaryExpr()
	for {
		t := p.cur()
		switch t.Kind {
		case lexer.SepDot:
			p.advance()
			name, err := p.expect(lexer.Name, "field name")
			if err != nil {
				p.recover(err)
				return e
			}
			e = &ast.Binary{Position: pos(t), Op: ".", L: e, R: &ast.Literal{Position: pos(name), Value: name.Lexeme, Type: ast.TString}}
		case lexer.SepLBrack:
			p.advance()
			idx := p.parseExpr()
			if _, err := p.expect(lexer.SepRBrack, "']'"); err != nil {
				p.recover(err)
			}
			e = &ast.Binary{Position: pos(t), Op: "[]", L: e, R: idx}
		case lexer.SepColon:
			p.advance()
			name, err := p.expect(lexer.Name, "method name")
			if err != nil {
				p.recover(err)
				return e
			}
			args := p.parseArgs()
			e = newCall(t, e, name.Lexeme, args)
		case lexer.SepLParen, lexer.String, lexer.EncryptedString, lexer.SepLCurly:
			args := p.parseArgs()
			e = newCall(t, e, "", args)
		default:
			return e
		}
	}
}

func (p *Parser) parseArgs() []ast.Node {
	t := p.cur()
	switch t.Kind {
	case lexer.String:
		p.advance()
		return []ast.Node{&ast.Literal{Position: pos(t), Value: t.Lexeme, Type: ast.TString}}
	case lexer.EncryptedString:
		p.advance()
		return []ast.Node{&ast.EncryptedString{Position: pos(t), Bytes: []byte(t.Lexeme)}}
	case lexer.SepLCurly:
		return []ast.Node{p.parseTableCtor()}
	}
	if _, err := p.expect(lexer.SepLParen, "'('"); err != nil {
		p.recover(err)
		return nil
	}
	var args []ast.Node
	if !p.at(lexer.SepRParen) {
		args = p.parseExprList()
	}
	if _, err := p.expect(lexer.SepRParen, "')'"); err != nil {
		p.recover(err)
	}
	return args
}

func (p *Parser) parseExprList() []ast.Node {
	list := []ast.Node{p.parseExpr()}
	for p.at(lexer.SepComma) {
		p.advance()
		list = append(list, p.parseExpr())
	}
	return list
}

func (p *Parser) parseTableCtor() ast.Node {
	t := p.advance() // '{'
	ctor := &ast.TableCtor{Position: pos(t)}
	for !p.at(lexer.SepRCurly) {
		field := p.parseField()
		ctor.Fields = append(ctor.Fields, field)
		if p.at(lexer.SepComma) || p.at(lexer.SepSemi) {
			p.advance()
			continue
		}
		break
	}
	end, err := p.expect(lexer.SepRCurly, "'}'")
	if err != nil {
		p.recover(err)
	}
	ctor.LastLine = end.Line
	ctor.ConstantTable = isConstantTable(ctor)
	return ctor
}

func (p *Parser) parseField() *ast.TableField {
	t := p.cur()
	if p.at(lexer.SepLBrack) {
		p.advance()
		key := p.parseExpr()
		if _, err := p.expect(lexer.SepRBrack, "']'"); err != nil {
			p.recover(err)
		}
		if _, err := p.expect(lexer.OpAssign, "'='"); err != nil {
			p.recover(err)
		}
		val := p.parseExpr()
		return &ast.TableField{Position: pos(t), Key: key, Val: val, Kind: ast.FieldRecord}
	}
	if (p.at(lexer.Name) || p.at(lexer.ObfuscatedName)) && p.peekIs(1, lexer.OpAssign) {
		name := p.advance()
		p.advance() // '='
		val := p.parseExpr()
		key := &ast.Literal{Position: pos(name), Value: name.Lexeme, Type: ast.TString}
		return &ast.TableField{Position: pos(t), Key: key, Val: val, Kind: ast.FieldRecord}
	}
	val := p.parseExpr()
	return &ast.TableField{Position: pos(t), Val: val, Kind: ast.FieldList}
}

func (p *Parser) peekIs(n int, k lexer.Kind) bool {
	i := p.pos + n
	if i >= len(p.toks) {
		return k == lexer.EOF
	}
	return p.toks[i].Kind == k
}

// isConstantTable reports whether every field value
// is a Literal or EncryptedString, and field count >= 6.
func isConstantTable(ctor *ast.TableCtor) bool {
	if len(ctor.Fields) < 6 {
		return false
	}
	for _, f := range ctor.Fields {
		switch f.Val.(type) {
		case *ast.Literal, *ast.EncryptedString:
		default:
			return false
		}
	}
	return true
}

func newCall(t lexer.Token, callee ast.Node, method string, args []ast.Node) *ast.Call {
	c := &ast.Call{Position: pos(t), Callee: callee, Args: args, Method: method}
	name := calleeName(callee)
	if method != "" {
		name = method
	}
	if op, ok := vmCallOp(name); ok {
		c.VMCall = true
		c.VMOp = op
	}
	return c
}

func calleeName(n ast.Node) string {
	switch v := n.(type) {
	case *ast.Identifier:
		return v.Name
	case *ast.Binary:
		if v.Op == "." {
			if lit, ok := v.R.(*ast.Literal); ok {
				if s, ok := lit.Value.(string); ok {
					return s
				}
			}
		}
	}
	return ""
}

var vmOpNames = []string{"MOVE", "LOADK", "CALL", "JMP"}

func vmCallOp(name string) (string, bool) {
	for _, op := range vmOpNames {
		if containsFold(name, op) {
			return op, true
		}
	}
	return "", false
}

func containsFold(s, substr string) bool {
	ls, lsub := toLower(s), toLower(substr)
	for i := 0; i+len(lsub) <= len(ls); i++ {
		if ls[i:i+len(lsub)] == lsub {
			return true
		}
	}
	return false
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
