package parse

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/gosmo-lang/gosmo/src/bytecode"
	"github.com/gosmo-lang/gosmo/src/conf"
	"github.com/gosmo-lang/gosmo/src/lerrors"
)

type (
	fnKind  int
	parseFn func(p *Parser, canAssign bool)
	// parseRule drives the pratt parser. Each token may start an expression
	// with prefix, continue one with infix, and binds at prec.
	parseRule struct {
		prefix parseFn
		infix  parseFn
		prec   precedence
	}
	loopState struct {
		scope  int
		start  int
		breaks []int
	}
	// fnState is the per-function compile state. Function literals nest, so
	// these form a stack through prev while the shared Parser walks tokens.
	fnState struct {
		prev     *fnState
		fn       *FnProto
		kind     fnKind
		scope    int
		pushed   int
		expected int
		loop     *loopState
	}
	// Parser compiles a token stream directly into an FnProto, emitting
	// bytecode as it goes. There is no intermediate syntax tree.
	Parser struct {
		filename string
		lex      *lexer
		fs       *fnState
		current  *token
		previous *token
		err      error
		panicked bool
	}
)

const (
	scriptFn fnKind = iota
	functionFn
	methodFn
)

var parseRules map[tokenType]parseRule

// the rule table refers to handlers that recurse through parsePrecedence, so
// it cannot be a plain package var without an initialization cycle.
func init() {
	parseRules = map[tokenType]parseRule{
		tokenOpenParen:  {prefix: (*Parser).group, infix: (*Parser).call, prec: precCall},
		tokenOpenCurly:  {prefix: (*Parser).tableLiteral},
		tokenOpenBracket: {infix: (*Parser).index, prec: precCall},
		tokenPeriod:     {infix: (*Parser).dot, prec: precCall},
		tokenColon:      {infix: (*Parser).invoke, prec: precCall},
		tokenConcat:     {infix: (*Parser).concat, prec: precConcat},
		tokenMinus:      {prefix: (*Parser).unary, infix: (*Parser).binary, prec: precTerm},
		tokenAdd:        {infix: (*Parser).binary, prec: precTerm},
		tokenIncrement:  {prefix: (*Parser).preIncrement},
		tokenDecrement:  {prefix: (*Parser).preDecrement},
		tokenMultiply:   {infix: (*Parser).binary, prec: precFactor},
		tokenDivide:     {infix: (*Parser).binary, prec: precFactor},
		tokenModulo:     {infix: (*Parser).binary, prec: precFactor},
		tokenLength:     {prefix: (*Parser).unary},
		tokenBang:       {prefix: (*Parser).unary},
		tokenNot:        {prefix: (*Parser).unary},
		tokenEq:         {infix: (*Parser).binary, prec: precEquality},
		tokenNe:         {infix: (*Parser).binary, prec: precEquality},
		tokenGt:         {infix: (*Parser).binary, prec: precComparison},
		tokenGe:         {infix: (*Parser).binary, prec: precComparison},
		tokenLt:         {infix: (*Parser).binary, prec: precComparison},
		tokenLe:         {infix: (*Parser).binary, prec: precComparison},
		tokenAnd:        {infix: (*Parser).and, prec: precAnd},
		tokenOr:         {infix: (*Parser).or, prec: precOr},
		tokenIdentifier: {prefix: (*Parser).variable},
		tokenString:     {prefix: (*Parser).str},
		tokenNumber:     {prefix: (*Parser).number},
		tokenNil:        {prefix: (*Parser).literal},
		tokenTrue:       {prefix: (*Parser).literal},
		tokenFalse:      {prefix: (*Parser).literal},
		tokenFunction:   {prefix: (*Parser).anonFunction},
	}
}

// File is a helper around Parse to open and close a source file automatically.
func File(path string) (*FnProto, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()
	return Parse(path, src)
}

// ParseString compiles source held in memory, mostly for the repl and tests.
func ParseString(filename, src string) (*FnProto, error) {
	return Parse(filename, strings.NewReader(src))
}

// Parse compiles a chunk into an FnProto ready for the vm. On a compile error
// the proto is nil and only the first error is returned; recovery inside the
// parser lets the statements after a broken one still parse.
func Parse(filename string, src io.Reader) (*FnProto, error) {
	p := &Parser{filename: filename, lex: newLexer(filename, src)}
	p.fs = &fnState{
		kind: scriptFn,
		fn:   NewFnProto(filename, conf.UNNAMEDCHUNK, nil, nil, false, LineInfo{Line: 1, Column: 0}),
	}
	p.advance()
	for !p.match(tokenEOS) {
		p.declaration()
	}
	fn := p.endFunction()
	if p.err != nil {
		return nil, p.err
	}
	return fn, nil
}

// ================================ token flow ================================

func (p *Parser) advance() {
	p.previous = p.current
	for {
		tk, err := p.lex.Next()
		if errors.Is(err, io.EOF) {
			p.current = &token{Kind: tokenEOS, LineInfo: p.lex.LineInfo}
			return
		} else if err != nil {
			p.record(err)
			p.current = &token{Kind: tokenEOS, LineInfo: p.lex.LineInfo}
			return
		} else if tk.Kind == tokenComment {
			continue
		}
		p.current = tk
		return
	}
}

func (p *Parser) check(kind tokenType) bool {
	return p.current.Kind == kind
}

func (p *Parser) match(kind tokenType) bool {
	if !p.check(kind) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(kind tokenType, msg string) {
	if p.check(kind) {
		p.advance()
		return
	}
	p.errorAt(p.current, msg)
}

// errorAt records a parse error once per statement. After the first error the
// parser is panicked and stays quiet until declaration resynchronizes it.
func (p *Parser) errorAt(tk *token, msg string, data ...any) {
	if p.panicked {
		return
	}
	err := fmt.Errorf(msg, data...)
	if tk.Kind == tokenEOS {
		// source ran out mid-construct; the repl matches on this to keep
		// reading more lines instead of reporting.
		err = fmt.Errorf("%v: %w", err, io.ErrUnexpectedEOF)
	}
	p.record(&lerrors.Error{
		Kind:     lerrors.ParserErr,
		Filename: p.filename,
		Line:     tk.Line,
		Column:   tk.Column,
		Err:      err,
	})
}

func (p *Parser) record(err error) {
	p.panicked = true
	if p.err == nil {
		p.err = err
	}
}

// synchronize skips tokens until a statement boundary so that one broken
// statement does not cascade.
func (p *Parser) synchronize() {
	p.panicked = false
	for !p.check(tokenEOS) {
		if p.previous != nil && p.previous.Kind == tokenSemiColon {
			return
		}
		switch p.current.Kind {
		case tokenEnd, tokenElse, tokenElseif:
			return
		}
		p.advance()
	}
}

// ================================ emission ==================================

func (p *Parser) code(op bytecode.Op, linfo LineInfo) {
	p.fs.fn.code(op, linfo)
}

func (p *Parser) codeU8(op bytecode.Op, a uint8, linfo LineInfo) {
	p.fs.fn.codeU8(op, a, linfo)
}

func (p *Parser) codeU8U8(op bytecode.Op, a, b uint8, linfo LineInfo) {
	p.fs.fn.codeU8U8(op, a, b, linfo)
}

func (p *Parser) codeU16(op bytecode.Op, val uint16, linfo LineInfo) {
	p.fs.fn.codeU16(op, val, linfo)
}

func (p *Parser) codeU8U16(op bytecode.Op, a uint8, val uint16, linfo LineInfo) {
	p.fs.fn.codeU8U16(op, a, val, linfo)
}

func (p *Parser) codeJmp(op bytecode.Op) int {
	return p.fs.fn.codeJmp(op, p.previous.LineInfo)
}

func (p *Parser) patchJmp(operandAt int) {
	if err := p.fs.fn.patchJmp(operandAt); err != nil {
		p.errorAt(p.previous, "%v", err)
	}
}

func (p *Parser) codeJmpBack(target int) {
	if err := p.fs.fn.codeJmpBack(target, p.previous.LineInfo); err != nil {
		p.errorAt(p.previous, "%v", err)
	}
}

func (p *Parser) makeConst(val any) uint16 {
	idx, err := p.fs.fn.addConst(val)
	if err != nil {
		p.errorAt(p.previous, "%v", err)
		return 0
	}
	return idx
}

func (p *Parser) writeConstant(val any, linfo LineInfo) {
	p.codeU16(bytecode.LOADCONST, p.makeConst(val), linfo)
	p.valuePushed(1)
}

func (p *Parser) writePop(count int) {
	p.codeU8(bytecode.POP, uint8(count), p.previous.LineInfo)
}

func (p *Parser) valuePushed(count int) { p.fs.pushed += count }
func (p *Parser) valuePopped(count int) { p.fs.pushed -= count }

// alignStack restores the statement-level stack balance, popping leftovers
// from expressions whose results go unused.
func (p *Parser) alignStack(target int) {
	if p.fs.pushed > target {
		p.writePop(p.fs.pushed - target)
	} else if p.fs.pushed < target {
		p.errorAt(p.previous, "missing expression")
	}
	p.fs.pushed = target
}

// ============================ scope and locals ==============================

func (p *Parser) beginScope() { p.fs.scope++ }

func (p *Parser) endScope() {
	p.fs.scope--
	p.popLocals(p.fs.scope)
}

// popLocals discards locals above toScope. Captured locals emit CLOSE so
// their upvalues migrate off the stack, plain locals batch into a single POP.
func (p *Parser) popLocals(toScope int) {
	if p.err != nil {
		return
	}
	count := 0
	locals := p.fs.fn.locals
	for len(locals) > 0 && locals[len(locals)-1].depth > toScope {
		if locals[len(locals)-1].captured {
			if count > 0 {
				p.writePop(count)
				count = 0
			}
			p.code(bytecode.CLOSE, p.previous.LineInfo)
		} else {
			count++
		}
		locals = locals[:len(locals)-1]
	}
	if count > 0 {
		p.writePop(count)
	}
	p.fs.fn.locals = locals
}

func (p *Parser) declareLocal(forceLocal bool) {
	if p.fs.scope == 0 && !forceLocal {
		return
	}
	name := p.previous.StringVal
	for i := len(p.fs.fn.locals) - 1; i >= 0; i-- {
		lcl := p.fs.fn.locals[i]
		if lcl.depth != -1 && lcl.depth < p.fs.scope {
			break
		}
		if lcl.name == name && name != "" {
			p.errorAt(p.previous, "there is already a local named %v in scope", name)
		}
	}
	if _, err := p.fs.fn.addLocal(&local{name: name, depth: -1}); err != nil {
		p.errorAt(p.previous, "%v", err)
	}
}

// parseVariable consumes an identifier and returns either its local slot or,
// for globals, the index of its name constant.
func (p *Parser) parseVariable(msg string, forceLocal bool) uint16 {
	p.consume(tokenIdentifier, msg)
	p.declareLocal(forceLocal)
	if p.fs.scope > 0 || forceLocal {
		return uint16(len(p.fs.fn.locals) - 1)
	}
	return p.makeConst(p.previous.StringVal)
}

func (p *Parser) markInitialized(idx int) {
	p.fs.fn.locals[idx].depth = p.fs.scope
}

func (p *Parser) defineVariable(ident uint16, forceLocal bool) {
	if p.err != nil && p.panicked {
		return
	}
	if p.fs.scope > 0 || forceLocal {
		// the local's value simply stays on the stack in its slot.
		p.markInitialized(int(ident))
		p.valuePopped(1)
		return
	}
	p.codeU16(bytecode.SETGLOBAL, ident, p.previous.LineInfo)
	p.valuePopped(1)
}

func (p *Parser) resolveLocal(fs *fnState, name string) int {
	for i := len(fs.fn.locals) - 1; i >= 0; i-- {
		lcl := fs.fn.locals[i]
		if lcl.depth != -1 && lcl.name == name && name != "" {
			return i
		}
	}
	return -1
}

// resolveUpvalue recurses through enclosing functions. A hit on an enclosing
// local marks it captured and records a from-stack upvalue; a hit further out
// chains through the intermediate function's upvalue list.
func (p *Parser) resolveUpvalue(fs *fnState, name string) int {
	if fs.prev == nil {
		return -1
	}
	if idx := p.resolveLocal(fs.prev, name); idx != -1 {
		fs.prev.fn.locals[idx].captured = true
		return p.addUpvalue(fs.fn, name, uint8(idx), true)
	}
	if idx := p.resolveUpvalue(fs.prev, name); idx != -1 {
		return p.addUpvalue(fs.fn, name, uint8(idx), false)
	}
	return -1
}

func (p *Parser) addUpvalue(fn *FnProto, name string, index uint8, fromStack bool) int {
	for i, up := range fn.UpIndexes {
		if up.Index == index && up.FromStack == fromStack {
			return i
		}
	}
	if err := fn.addUpindex(name, index, fromStack); err != nil {
		p.errorAt(p.previous, "%v", err)
		return 0
	}
	return len(fn.UpIndexes) - 1
}

// ============================== expressions =================================

// expression parses one expression that should leave needed values on the
// stack. Extra values are popped immediately; missing values are an error
// only when forceNeeded. It returns how many values were actually produced.
func (p *Parser) expression(needed int, forceNeeded bool) int {
	lastExpected := p.fs.expected
	saved := p.fs.pushed + needed
	p.fs.expected = needed
	p.parsePrecedence(precAssignment)
	if p.fs.pushed > saved {
		p.writePop(p.fs.pushed - saved)
		p.fs.pushed = saved
	} else if forceNeeded && p.fs.pushed < saved {
		p.errorAt(p.previous, "missing expression")
	}
	p.fs.expected = lastExpected
	return p.fs.pushed - (saved - needed)
}

func (p *Parser) parsePrecedence(prec precedence) {
	p.advance()
	rule := parseRules[p.previous.Kind]
	if rule.prefix == nil {
		return
	}
	canAssign := prec <= precAssignment
	rule.prefix(p, canAssign)

	for prec <= parseRules[p.current.Kind].prec {
		infix := parseRules[p.current.Kind].infix
		if infix == nil {
			break
		}
		p.advance()
		infix(p, canAssign)
	}

	if canAssign && p.match(tokenAssign) {
		p.errorAt(p.previous, "invalid assignment target")
	}
}

func (p *Parser) number(bool) {
	p.writeConstant(p.previous.NumVal, p.previous.LineInfo)
}

func (p *Parser) str(bool) {
	p.writeConstant(p.previous.StringVal, p.previous.LineInfo)
}

func (p *Parser) literal(bool) {
	switch p.previous.Kind {
	case tokenTrue:
		p.code(bytecode.TRUE, p.previous.LineInfo)
	case tokenFalse:
		p.code(bytecode.FALSE, p.previous.LineInfo)
	case tokenNil:
		p.code(bytecode.NIL, p.previous.LineInfo)
	}
	p.valuePushed(1)
}

func (p *Parser) group(bool) {
	p.expression(1, true)
	p.consume(tokenCloseParen, "expected ')' to close expression")
}

func (p *Parser) unary(bool) {
	kind := p.previous.Kind
	linfo := p.previous.LineInfo
	p.parsePrecedence(precUnary)
	switch kind {
	case tokenMinus:
		p.code(bytecode.NEGATE, linfo)
	case tokenBang, tokenNot:
		p.code(bytecode.NOT, linfo)
	case tokenLength:
		p.code(bytecode.COUNT, linfo)
	}
}

func (p *Parser) binary(bool) {
	kind := p.previous.Kind
	linfo := p.previous.LineInfo
	p.parsePrecedence(parseRules[kind].prec + 1)
	if kind == tokenNe {
		p.code(bytecode.EQUAL, linfo)
		p.code(bytecode.NOT, linfo)
	} else if op, ok := tokenToBytecodeOp[kind]; ok {
		p.code(op, linfo)
	} else {
		p.errorAt(p.previous, "unexpected operator %v", kind)
	}
	p.valuePopped(1)
}

func (p *Parser) and(bool) {
	jmp := p.codeJmp(bytecode.EJMP)
	p.writePop(1)
	p.valuePopped(1)
	p.parsePrecedence(precAnd)
	p.patchJmp(jmp)
}

func (p *Parser) or(bool) {
	elseJmp := p.codeJmp(bytecode.EJMP)
	endJmp := p.codeJmp(bytecode.JMP)
	p.patchJmp(elseJmp)
	p.writePop(1)
	p.valuePopped(1)
	p.parsePrecedence(precOr)
	p.patchJmp(endJmp)
}

func (p *Parser) concat(bool) {
	count := 1
	for {
		p.parsePrecedence(precConcat + 1)
		count++
		if !p.match(tokenConcat) {
			break
		}
	}
	p.codeU8(bytecode.CONCAT, uint8(count), p.previous.LineInfo)
	p.valuePopped(count - 1)
}

func (p *Parser) variable(canAssign bool) {
	p.namedVariable(p.previous, canAssign, true)
}

func (p *Parser) namedVariable(name *token, canAssign, canIncrement bool) {
	var opGet, opSet, opInc bytecode.Op
	var arg int
	global := false
	if idx := p.resolveLocal(p.fs, name.StringVal); idx != -1 {
		arg = idx
		opGet, opSet, opInc = bytecode.GETLOCAL, bytecode.SETLOCAL, bytecode.INCLOCAL
	} else if idx := p.resolveUpvalue(p.fs, name.StringVal); idx != -1 {
		arg = idx
		opGet, opSet, opInc = bytecode.GETUPVAL, bytecode.SETUPVAL, bytecode.INCUPVAL
	} else {
		global = true
		arg = int(p.makeConst(name.StringVal))
		opGet, opSet, opInc = bytecode.GETGLOBAL, bytecode.SETGLOBAL, bytecode.INCGLOBAL
	}

	switch {
	case canAssign && p.match(tokenAssign):
		p.expression(1, true)
		if global {
			p.codeU16(opSet, uint16(arg), name.LineInfo)
		} else {
			p.codeU8(opSet, uint8(arg), name.LineInfo)
		}
		p.valuePopped(1)
	case canIncrement && p.match(tokenIncrement):
		p.codeIncrement(opInc, arg, 1, global, name.LineInfo)
		p.valuePushed(1)
	case canIncrement && p.match(tokenDecrement):
		p.codeIncrement(opInc, arg, -1, global, name.LineInfo)
		p.valuePushed(1)
	default:
		if global {
			p.codeU16(opGet, uint16(arg), name.LineInfo)
		} else {
			p.codeU8(opGet, uint8(arg), name.LineInfo)
		}
		p.valuePushed(1)
	}
}

func (p *Parser) codeIncrement(op bytecode.Op, arg, delta int, global bool, linfo LineInfo) {
	if global {
		p.codeU8U16(op, bytecode.Bias(delta), uint16(arg), linfo)
	} else {
		p.codeU8U8(op, bytecode.Bias(delta), uint8(arg), linfo)
	}
}

func (p *Parser) anonFunction(bool) {
	p.function(functionFn, "")
}

func (p *Parser) call(bool) {
	args := p.parseArguments()
	p.valuePopped(args + 1)
	p.codeU8U8(bytecode.CALL, uint8(args), uint8(p.fs.expected), p.previous.LineInfo)
	p.valuePushed(p.fs.expected)
}

// invoke compiles obj:name(args). The method name travels on the stack above
// self so the vm can resolve it through the receiver's prototype chain.
func (p *Parser) invoke(bool) {
	p.consume(tokenIdentifier, "expected method name after ':'")
	linfo := p.previous.LineInfo
	p.codeU16(bytecode.LOADCONST, p.makeConst(p.previous.StringVal), linfo)
	p.consume(tokenOpenParen, "expected '(' to call method")
	args := p.parseArguments()
	p.codeU8U8(bytecode.INVOKE, uint8(args), uint8(p.fs.expected), linfo)
	p.valuePopped(args + 1)
	p.valuePushed(p.fs.expected)
}

func (p *Parser) parseArguments() int {
	args := 0
	if !p.check(tokenCloseParen) {
		for {
			p.expression(1, true)
			args++
			if !p.match(tokenComma) {
				break
			}
		}
	}
	p.consume(tokenCloseParen, "expected ')' to end call")
	if args > math.MaxUint8 {
		p.errorAt(p.current, "too many arguments in call")
	}
	return args
}

func (p *Parser) tableLiteral(bool) {
	entries := 0
	if !p.match(tokenCloseCurly) {
		for {
			if p.match(tokenIdentifier) {
				// a bare name key stands for its own string
				p.writeConstant(p.previous.StringVal, p.previous.LineInfo)
			} else {
				// primary level stops before ':', which would otherwise parse
				// as a method invoke on the key
				pushed := p.fs.pushed
				p.parsePrecedence(precPrimary)
				if p.fs.pushed == pushed {
					p.errorAt(p.previous, "missing expression")
				}
			}
			p.consume(tokenColon, "expected ':' between key and value")
			p.expression(1, true)
			p.valuePopped(2)
			entries++
			if !p.match(tokenComma) || p.panicked || p.check(tokenCloseCurly) {
				break
			}
		}
		p.consume(tokenCloseCurly, "expected '}' to close table")
	}
	p.codeU16(bytecode.NEWDICT, uint16(entries), p.previous.LineInfo)
	p.valuePushed(1)
}

func (p *Parser) dot(canAssign bool) {
	p.consume(tokenIdentifier, "expected field name after '.'")
	linfo := p.previous.LineInfo
	name := p.makeConst(p.previous.StringVal)

	switch {
	case canAssign && p.match(tokenAssign):
		p.codeU16(bytecode.LOADCONST, name, linfo)
		p.expression(1, true)
		p.code(bytecode.SETOBJECT, linfo)
		p.valuePopped(2)
	case p.match(tokenIncrement):
		p.codeU8U16(bytecode.INCOBJECT, bytecode.Bias(1), name, linfo)
	case p.match(tokenDecrement):
		p.codeU8U16(bytecode.INCOBJECT, bytecode.Bias(-1), name, linfo)
	case p.match(tokenOpenParen):
		// field call sugar, identical to ':' invocation.
		p.codeU16(bytecode.LOADCONST, name, linfo)
		args := p.parseArguments()
		p.codeU8U8(bytecode.INVOKE, uint8(args), uint8(p.fs.expected), linfo)
		p.valuePopped(args + 1)
		p.valuePushed(p.fs.expected)
	default:
		p.codeU16(bytecode.GETOBJECT, name, linfo)
	}
}

func (p *Parser) index(canAssign bool) {
	p.expression(1, true)
	p.consume(tokenCloseBracket, "expected ']' to end index")
	linfo := p.previous.LineInfo

	switch {
	case canAssign && p.match(tokenAssign):
		p.expression(1, true)
		p.code(bytecode.NEWINDEX, linfo)
		p.valuePopped(2)
	case p.match(tokenIncrement):
		p.codeU8(bytecode.INCINDEX, bytecode.Bias(1), linfo)
	case p.match(tokenDecrement):
		p.codeU8(bytecode.INCINDEX, bytecode.Bias(-1), linfo)
	default:
		p.code(bytecode.INDEX, linfo)
	}
	p.valuePopped(1)
}

// walkIndexes compiles the trailing field/index path of a prefix increment,
// emitting plain lookups for every step but the last, which becomes the
// in-place increment.
func (p *Parser) walkIndexes(lastWasIndex bool, lastIdent uint16, delta int) {
	ident := lastIdent
	wasIndex := lastWasIndex
	for {
		if p.match(tokenPeriod) {
			p.consume(tokenIdentifier, "expected field name after '.'")
			ident = p.makeConst(p.previous.StringVal)
			wasIndex = false
		} else if p.match(tokenOpenBracket) {
			wasIndex = true
		} else {
			break
		}

		if lastWasIndex {
			p.code(bytecode.INDEX, p.previous.LineInfo)
			p.valuePopped(1)
		} else {
			p.codeU16(bytecode.GETOBJECT, lastIdent, p.previous.LineInfo)
		}

		if wasIndex {
			p.expression(1, true)
			p.consume(tokenCloseBracket, "expected ']' to end index")
		}
		lastWasIndex = wasIndex
		lastIdent = ident
	}

	if wasIndex {
		p.codeU8(bytecode.INCINDEX, bytecode.Bias(delta), p.previous.LineInfo)
		p.valuePopped(2)
	} else {
		p.codeU8U16(bytecode.INCOBJECT, bytecode.Bias(delta), ident, p.previous.LineInfo)
		p.valuePopped(1)
	}
}

// increment handles the prefix forms ++x and --x. The INC instructions push
// the previous value, so the new value is recovered by re-applying the delta.
func (p *Parser) increment(delta int) {
	name := p.previous
	if p.match(tokenPeriod) {
		p.namedVariable(name, false, false)
		p.consume(tokenIdentifier, "expected field name after '.'")
		p.walkIndexes(false, p.makeConst(p.previous.StringVal), delta)
	} else if p.match(tokenOpenBracket) {
		p.namedVariable(name, false, false)
		p.expression(1, true)
		p.consume(tokenCloseBracket, "expected ']' to end index")
		p.walkIndexes(true, 0, delta)
	} else {
		var op bytecode.Op
		var arg int
		global := false
		if idx := p.resolveLocal(p.fs, name.StringVal); idx != -1 {
			arg, op = idx, bytecode.INCLOCAL
		} else if idx := p.resolveUpvalue(p.fs, name.StringVal); idx != -1 {
			arg, op = idx, bytecode.INCUPVAL
		} else {
			global = true
			arg, op = int(p.makeConst(name.StringVal)), bytecode.INCGLOBAL
		}
		p.codeIncrement(op, arg, delta, global, name.LineInfo)
	}
	p.writeConstant(float64(delta), p.previous.LineInfo)
	p.code(bytecode.ADD, p.previous.LineInfo)
}

func (p *Parser) preIncrement(bool) {
	p.consume(tokenIdentifier, "expected identifier after '++'")
	p.increment(1)
}

func (p *Parser) preDecrement(bool) {
	p.consume(tokenIdentifier, "expected identifier after '--'")
	p.increment(-1)
}

// ============================== statements ==================================

func (p *Parser) declaration() {
	p.statement()
	if p.panicked {
		p.synchronize()
	}
}

func (p *Parser) statement() {
	saved := p.fs.pushed
	switch {
	case p.match(tokenVar):
		p.varDeclaration(false, 0)
	case p.match(tokenLocal):
		if p.match(tokenFunction) {
			p.localFunction()
		} else {
			p.varDeclaration(true, 0)
		}
	case p.match(tokenIf):
		p.ifStatement()
	case p.match(tokenDo):
		p.beginScope()
		p.block()
		p.endScope()
	case p.match(tokenWhile):
		p.whileStatement()
	case p.match(tokenFor):
		p.forStatement()
	case p.match(tokenFunction):
		p.functionDeclaration()
	case p.match(tokenProto):
		p.protoDeclaration()
	case p.match(tokenBreak):
		p.breakStatement()
	case p.match(tokenContinue):
		p.continueStatement()
	case p.match(tokenReturn):
		p.returnStatement()
	default:
		// a plain expression statement needs no values left behind.
		p.expression(0, false)
	}
	p.alignStack(saved)
}

// block parses statements until the closing 'end' of the current construct.
func (p *Parser) block() {
	for !p.check(tokenEnd) && !p.check(tokenEOS) && !p.panicked {
		p.declaration()
	}
	p.consume(tokenEnd, "expected 'end' to close block")
}

// varDeclaration compiles var/local lists. Left-hand slots are distributed
// across the right-hand expressions, padding missing values with nil and
// popping extras, so `var a, b = f()` works with any arity of f.
func (p *Parser) varDeclaration(forceLocal bool, expected int) {
	ident := p.parseVariable("expected variable name", forceLocal)
	expected++

	if p.match(tokenAssign) {
		for {
			p.valuePopped(1)
			pushed := p.expression(expected, false)
			p.valuePushed(1)
			expected -= pushed
			if expected < 0 {
				p.writePop(-expected)
				p.valuePopped(-expected)
				expected = 1
			}
			if !p.match(tokenComma) {
				break
			}
		}
		for expected > 0 {
			p.valuePushed(1)
			p.code(bytecode.NIL, p.previous.LineInfo)
			expected--
		}
	} else if p.match(tokenComma) {
		p.varDeclaration(forceLocal, expected)
	} else {
		p.code(bytecode.NIL, p.previous.LineInfo)
		p.valuePushed(1)
	}

	p.defineVariable(ident, forceLocal)
}

func (p *Parser) functionDeclaration() {
	ident := p.parseVariable("expected function name", false)
	name := p.previous.StringVal
	if p.fs.scope > 0 {
		p.markInitialized(int(ident))
	}
	p.function(functionFn, name)
	p.defineVariable(ident, false)
}

func (p *Parser) localFunction() {
	ident := p.parseVariable("expected function name", true)
	name := p.previous.StringVal
	p.markInitialized(int(ident))
	p.function(functionFn, name)
	p.defineVariable(ident, true)
}

// function compiles a parameter list and body into a nested FnProto, then
// emits CLOSURE with the inline directives telling the vm where each upvalue
// comes from.
func (p *Parser) function(kind fnKind, name string) {
	linfo := p.previous.LineInfo
	p.consume(tokenOpenParen, "expected '(' to start parameter list")

	params := []string{}
	varargs := false
	if !p.check(tokenCloseParen) && !p.check(tokenDots) {
		for {
			p.consume(tokenIdentifier, "expected parameter name")
			params = append(params, p.previous.StringVal)
			if !p.match(tokenComma) {
				break
			}
			if p.check(tokenDots) {
				break
			}
		}
	}
	if p.match(tokenDots) {
		// the variadic table lands in the final parameter slot.
		p.consume(tokenIdentifier, "expected a name for the variadic table")
		params = append(params, p.previous.StringVal)
		varargs = true
	}
	p.consume(tokenCloseParen, "expected ')' to close parameter list")
	if len(params) >= conf.MAXLOCALS {
		p.errorAt(p.previous, "too many parameters")
	}

	fn := NewFnProto(p.fs.fn.Module, name, p.fs.fn, params, varargs, linfo)
	p.fs = &fnState{prev: p.fs, fn: fn, kind: kind}
	p.beginScope()
	p.block()
	p.alignStack(0)
	p.endScope()
	proto := p.endFunction()

	p.codeU16(bytecode.CLOSURE, p.makeConst(proto), linfo)
	p.valuePushed(1)
	for _, up := range proto.UpIndexes {
		if up.FromStack {
			p.codeU8(bytecode.GETLOCAL, up.Index, linfo)
		} else {
			p.codeU8(bytecode.GETUPVAL, up.Index, linfo)
		}
	}
}

// endFunction seals the current FnProto with an implicit `return nil` and
// pops back to the enclosing compile state.
func (p *Parser) endFunction() *FnProto {
	p.popLocals(p.fs.scope)
	p.code(bytecode.NIL, p.previous.LineInfo)
	p.codeU8(bytecode.RETURN, 1, p.previous.LineInfo)
	fn := p.fs.fn
	p.fs = p.fs.prev
	return fn
}

// protoDeclaration compiles `proto Name ... end` into a NEWOBJECT whose
// entries are the method definitions of the body.
func (p *Parser) protoDeclaration() {
	ident := p.parseVariable("expected prototype name", false)
	entries := 0

	for !p.match(tokenEnd) {
		if p.check(tokenEOS) || p.panicked {
			p.consume(tokenEnd, "expected 'end' to close prototype body")
			break
		}
		p.consume(tokenFunction, "expected method definition in prototype body")
		p.consume(tokenIdentifier, "expected method name")
		name := p.previous.StringVal
		p.codeU16(bytecode.LOADCONST, p.makeConst(name), p.previous.LineInfo)
		p.function(methodFn, name)
		p.valuePopped(1)
		entries++
	}

	p.codeU16(bytecode.NEWOBJECT, uint16(entries), p.previous.LineInfo)
	p.valuePushed(1)
	p.defineVariable(ident, false)
}

func (p *Parser) ifStatement() {
	p.expression(1, true)
	p.consume(tokenThen, "expected 'then' after condition")

	jmp := p.codeJmp(bytecode.PEJMP)
	p.valuePopped(1)

	p.beginScope()
	for !p.check(tokenEnd) && !p.check(tokenElse) && !p.check(tokenElseif) &&
		!p.check(tokenEOS) && !p.panicked {
		p.declaration()
	}
	p.endScope()

	if p.match(tokenElse) {
		elseJmp := p.codeJmp(bytecode.JMP)
		p.patchJmp(jmp)
		p.beginScope()
		p.block()
		p.endScope()
		p.patchJmp(elseJmp)
	} else if p.match(tokenElseif) {
		elseJmp := p.codeJmp(bytecode.JMP)
		p.patchJmp(jmp)
		p.ifStatement()
		p.patchJmp(elseJmp)
	} else {
		p.patchJmp(jmp)
		p.consume(tokenEnd, "expected 'end' to close block")
	}
}

func (p *Parser) endLoop() {
	for _, at := range p.fs.loop.breaks {
		p.patchJmp(at)
	}
}

func (p *Parser) whileStatement() {
	cached := p.fs.loop
	top := len(p.fs.fn.Code)
	p.fs.loop = &loopState{scope: p.fs.scope, start: top}

	p.expression(1, true)
	p.consume(tokenDo, "expected 'do' after loop condition")

	exit := p.codeJmp(bytecode.PEJMP)
	p.valuePopped(1)

	p.beginScope()
	p.block()
	p.endScope()

	p.codeJmpBack(top)
	p.endLoop()
	p.fs.loop = cached
	p.patchJmp(exit)
}

func (p *Parser) forStatement() {
	if p.check(tokenIdentifier) {
		p.forEachLoop()
		return
	}
	p.numericForLoop()
}

// numericForLoop compiles the C style `for (init; cond; step) do ... end`.
// The step clause is emitted before the body, as in the source, but runs
// between iterations, so the loop jumps thread body -> step -> condition.
func (p *Parser) numericForLoop() {
	p.beginScope()
	p.consume(tokenOpenParen, "expected '(' after 'for'")

	if !p.match(tokenSemiColon) {
		p.statement()
		p.consume(tokenSemiColon, "expected ';' after loop initializer")
	}

	cached := p.fs.loop
	top := len(p.fs.fn.Code)
	p.fs.loop = &loopState{scope: p.fs.scope, start: top}

	exit := -1
	if !p.match(tokenSemiColon) {
		p.expression(1, true)
		p.consume(tokenSemiColon, "expected ';' after loop condition")
		exit = p.codeJmp(bytecode.PEJMP)
		p.valuePopped(1)
	}

	if !p.match(tokenCloseParen) {
		body := p.codeJmp(bytecode.JMP)
		p.endLoop()
		stepStart := len(p.fs.fn.Code)
		p.fs.loop = &loopState{scope: p.fs.scope, start: stepStart}
		p.expression(0, true)
		p.consume(tokenCloseParen, "expected ')' after loop step")
		p.codeJmpBack(top)
		top = stepStart
		p.patchJmp(body)
	}

	p.consume(tokenDo, "expected 'do' before loop body")
	p.beginScope()
	p.block()
	p.endScope()

	p.codeJmpBack(top)
	if exit != -1 {
		p.patchJmp(exit)
	}
	p.endLoop()
	p.fs.loop = cached
	p.endScope()
}

// forEachLoop compiles `for a, b in expr do ... end`. An unnamed local
// reserves the stack slot that holds the iterator between NEXT steps.
func (p *Parser) forEachLoop() {
	p.beginScope()
	p.fs.fn.locals = append(p.fs.fn.locals, &local{name: "", depth: p.fs.scope})

	p.beginScope()
	values := 0
	for {
		ident := p.parseVariable("expected loop variable", true)
		p.defineVariable(ident, true)
		values++
		if !p.match(tokenComma) {
			break
		}
	}
	if values > math.MaxUint8 {
		p.errorAt(p.previous, "too many loop variables")
		return
	}

	p.consume(tokenIn, "expected 'in' before iterable")
	p.expression(1, true)
	p.consume(tokenDo, "expected 'do' before loop body")
	p.code(bytecode.ITER, p.previous.LineInfo)

	cached := p.fs.loop
	top := len(p.fs.fn.Code)
	p.fs.loop = &loopState{scope: p.fs.scope - 1, start: top}

	p.codeU8U16(bytecode.NEXT, uint8(values), 0, p.previous.LineInfo)
	exhaust := len(p.fs.fn.Code) - 2
	p.valuePushed(values)

	p.block()
	p.endScope()

	p.codeJmpBack(top)
	p.endLoop()
	p.fs.loop = cached
	p.patchJmp(exhaust)

	p.endScope()
	p.valuePopped(1)
}

func (p *Parser) breakStatement() {
	if p.fs.loop == nil {
		p.errorAt(p.previous, "'break' used outside of a loop body")
		return
	}
	saved := p.fs.fn.locals
	p.popLocals(p.fs.loop.scope)
	p.fs.fn.locals = saved
	p.fs.loop.breaks = append(p.fs.loop.breaks, p.codeJmp(bytecode.JMP))
}

func (p *Parser) continueStatement() {
	if p.fs.loop == nil {
		p.errorAt(p.previous, "'continue' used outside of a loop body")
		return
	}
	saved := p.fs.fn.locals
	p.popLocals(p.fs.loop.scope)
	p.fs.fn.locals = saved
	p.codeJmpBack(p.fs.loop.start)
}

func (p *Parser) returnStatement() {
	if p.fs.kind == scriptFn {
		p.errorAt(p.previous, "'return' used outside of a function")
		return
	}

	if p.blockFollow() {
		p.code(bytecode.NIL, p.previous.LineInfo)
		p.codeU8(bytecode.RETURN, 1, p.previous.LineInfo)
		return
	}

	rvalues := 0
	for {
		p.expression(1, true)
		rvalues++
		if !p.match(tokenComma) {
			break
		}
	}
	if rvalues > conf.MAXRESULTS {
		p.errorAt(p.previous, "too many return values")
	}
	p.codeU8(bytecode.RETURN, uint8(rvalues), p.previous.LineInfo)
	p.valuePopped(rvalues)
}

func (p *Parser) blockFollow() bool {
	switch p.current.Kind {
	case tokenEnd, tokenElse, tokenElseif, tokenSemiColon, tokenEOS:
		return true
	default:
		return false
	}
}
