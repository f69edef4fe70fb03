package runtime

import (
	"errors"
	"io"
	"math"
	"os"
	"strings"

	"github.com/gosmo-lang/gosmo/src/bytecode"
	"github.com/gosmo-lang/gosmo/src/conf"
	"github.com/gosmo-lang/gosmo/src/parse"
)

type (
	// frame is one activation record. base points at stack slot 0 of the
	// running function, which holds the callee for plain calls and keeps
	// holding the receiver's method closure for invokes.
	frame struct {
		closure *Object
		fn      *parse.FnProto
		base    int
		pc      int
	}
	// State is a full interpreter instance: operand stack, call stack, heap,
	// globals, and interned strings. States share nothing with each other, so
	// any number of them can coexist without locking. A single state is not
	// reentrant; only one call chain runs on it at a time.
	State struct {
		stack  []Value
		top    int
		frames []*frame

		globals    *Object
		protos     [objKindCount]*Object
		openUpvals []*Object

		heap        *Object
		interned    map[string]*Object
		allocCount  int
		gcThreshold int
		frozen      int
		anchors     []Value

		metaDepth int
		stdout    io.Writer
	}
)

// metamethod names; each lookup interns the name through the state's string
// table.
const (
	metaInit     = "__init"
	metaIndex    = "__index"
	metaNewindex = "__newindex"
	metaGetter   = "__getter"
	metaSetter   = "__setter"
	metaIter     = "__iter"
	metaNext     = "__next"
	metaTostring = "__tostring"
	metaEqual    = "__equal"
)

// NewState creates an empty interpreter state. The globals table starts empty;
// library registration is up to the embedder.
func NewState() *State {
	s := &State{
		stack:       make([]Value, conf.INITIALSTACKSIZE),
		interned:    map[string]*Object{},
		gcThreshold: conf.GCPAUSE,
		stdout:      os.Stdout,
	}
	s.globals = s.newTable(32)
	return s
}

// Close releases every heap object owned by the state. The state must not be
// used afterwards.
func (s *State) Close() {
	s.heap = nil
	s.interned = map[string]*Object{}
	s.openUpvals = nil
	s.frames = nil
	s.anchors = nil
	s.globals = nil
	s.top = 0
	s.allocCount = 0
}

// SetOutput redirects where print and the repl echo write to.
func (s *State) SetOutput(out io.Writer) { s.stdout = out }

// Globals returns the state's global table object.
func (s *State) Globals() *Object { return s.globals }

func (s *State) setGlobals(tbl *Object) { s.globals = tbl }

// ============================== operand stack ===============================

func (s *State) push(val Value) error {
	if err := s.ensureStack(s.top + 1); err != nil {
		return err
	}
	s.stack[s.top] = val
	s.top++
	return nil
}

func (s *State) pop() Value {
	s.top--
	return s.stack[s.top]
}

func (s *State) peek(fromTop int) Value {
	return s.stack[s.top-1-fromTop]
}

func (s *State) ensureStack(size int) error {
	if size > conf.MAXSTACKSIZE {
		return errors.New("stack overflow")
	}
	for size > len(s.stack) {
		s.stack = append(s.stack, make([]Value, len(s.stack))...)
	}
	return nil
}

// ================================= calling ==================================

// vmCall calls the value at stack slot base with nargs arguments sitting
// above it, leaving the results adjusted to nresults at base. nresults 0
// means the caller consumes nothing and all results are discarded, keeping
// the stack balance the compiler accounted for.
func (s *State) vmCall(base, nargs, nresults int) error {
	callee := s.stack[base]
	obj := callee.Object()
	if obj == nil {
		return s.runtimeErr(s.callerLine(), "attempt to call a %v value", TypeName(callee))
	}
	if len(s.frames) >= conf.MAXCALLDEPTH {
		return s.runtimeErr(s.callerLine(), "call stack overflow")
	}

	switch obj.kind {
	case ObjClosure:
		return s.callClosure(obj, base, nargs, nresults)
	case ObjGoFunc:
		args := make([]Value, nargs)
		copy(args, s.stack[base+1:base+1+nargs])
		f := &frame{closure: obj, base: base}
		s.frames = append(s.frames, f)
		results, err := obj.gofn(s, args)
		s.frames = s.frames[:len(s.frames)-1]
		if err != nil {
			return s.wrapErr(s.callerLine(), err)
		}
		s.adjustResults(base, results, nresults)
		return nil
	case ObjObject:
		return s.construct(obj, base, nargs, nresults)
	default:
		return s.runtimeErr(s.callerLine(), "attempt to call a %v value", TypeName(callee))
	}
}

func (s *State) callClosure(cl *Object, base, nargs, nresults int) error {
	fn := cl.fnproto
	fixed := fn.Arity
	if fn.Varargs {
		fixed--
	}
	if err := s.ensureStack(base + 1 + fn.Arity); err != nil {
		return s.runtimeErr(s.callerLine(), "%v", err)
	}
	for i := nargs; i < fixed; i++ {
		s.stack[base+1+i] = Value{}
	}
	if fn.Varargs {
		rest := s.newTable(0)
		for i := fixed; i < nargs; i++ {
			rest.fields.append(s.stack[base+1+i])
		}
		s.stack[base+1+fixed] = objValue(rest)
	}
	s.top = base + 1 + fn.Arity

	f := &frame{closure: cl, fn: fn, base: base}
	s.frames = append(s.frames, f)
	results, err := s.run(f)
	s.frames = s.frames[:len(s.frames)-1]
	if err != nil {
		return err
	}
	s.adjustResults(base, results, nresults)
	return nil
}

// construct implements calling a prototype object like a function: allocate a
// new object chained to the prototype and run its __init on it.
func (s *State) construct(proto *Object, base, nargs, nresults int) error {
	initFn := s.chainGet(proto, s.str(metaInit))
	if !initFn.isCallable() {
		return s.runtimeErr(s.callerLine(), "attempt to call an object without an __init metamethod")
	}
	inst := s.newObject(4)
	inst.proto = proto
	instVal := objValue(inst)
	s.stack[base] = instVal // roots the instance through __init

	args := make([]Value, 0, nargs+1)
	args = append(args, instVal)
	args = append(args, s.stack[base+1:base+1+nargs]...)
	if _, err := s.metaCall(initFn, args, 0); err != nil {
		return err
	}
	s.adjustResults(base, []Value{instVal}, nresults)
	return nil
}

func (s *State) adjustResults(base int, results []Value, nresults int) {
	if nresults == 0 {
		s.top = base
		return
	}
	// negative means the go-level caller keeps however many came back.
	if nresults < 0 {
		nresults = len(results)
	}
	_ = s.ensureStack(base + nresults)
	for i := 0; i < nresults; i++ {
		if i < len(results) {
			s.stack[base+i] = results[i]
		} else {
			s.stack[base+i] = Value{}
		}
	}
	s.top = base + nresults
}

// callValue is the go-level calling convention used by metamethod dispatch
// and the standard library: stage callee and args above the current top, run
// the call, and hand the results back as a slice.
func (s *State) callValue(callee Value, args []Value, nresults int) ([]Value, error) {
	base := s.top
	if err := s.push(callee); err != nil {
		return nil, err
	}
	for _, arg := range args {
		if err := s.push(arg); err != nil {
			return nil, err
		}
	}
	if err := s.vmCall(base, len(args), nresults); err != nil {
		s.top = base
		return nil, err
	}
	results := make([]Value, s.top-base)
	copy(results, s.stack[base:s.top])
	s.top = base
	return results, nil
}

func (s *State) metaCall(callee Value, args []Value, nresults int) ([]Value, error) {
	if s.metaDepth >= conf.MAXMETADEPTH {
		return nil, s.runtimeErr(s.callerLine(), "metamethod recursion depth exceeded")
	}
	s.metaDepth++
	defer func() { s.metaDepth-- }()
	return s.callValue(callee, args, nresults)
}

// callerLine is the source position of the instruction currently executing in
// the innermost scripted frame, used when an error has no better anchor.
func (s *State) callerLine() parse.LineInfo {
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if f.fn != nil && f.pc < len(f.fn.LineTrace) {
			return f.fn.LineTrace[f.pc]
		}
	}
	return parse.LineInfo{}
}

// ============================== field access ================================

// chainGet finds a key in an object's own fields or anywhere up its prototype
// chain, without consulting metamethods. Lookup depth is bounded so a cyclic
// chain cannot spin forever.
func (s *State) chainGet(obj *Object, key Value) Value {
	for walk, depth := obj, 0; walk != nil && depth <= conf.MAXPROTODEPTH; walk, depth = walk.proto, depth+1 {
		if walk.fields != nil && walk.fields.has(key) {
			return walk.fields.get(key)
		}
	}
	return Value{}
}

// fieldGet resolves container[key] with full dispatch: raw access for tables,
// the prototype protocol for objects, and the registered string prototype for
// strings.
func (s *State) fieldGet(container, key Value) (Value, error) {
	switch {
	case container.isObjKind(ObjTable):
		return container.obj.fields.get(key), nil
	case container.isObjKind(ObjObject):
		return s.objectGet(container, container.obj, key)
	case container.isString():
		if proto := s.protos[ObjString]; proto != nil {
			return s.objectGet(container, proto, key)
		}
		return Value{}, nil
	default:
		return Value{}, s.runtimeErr(s.callerLine(), "attempt to index a %v value", TypeName(container))
	}
}

// objectGet walks the prototype chain for key, then falls back to a
// registered per-field getter, then to __index.
func (s *State) objectGet(self Value, obj *Object, key Value) (Value, error) {
	for walk, depth := obj, 0; walk != nil; walk, depth = walk.proto, depth+1 {
		if depth > conf.MAXPROTODEPTH {
			return Value{}, s.runtimeErr(s.callerLine(), "prototype chain too deep")
		}
		if walk.fields != nil && walk.fields.has(key) {
			return walk.fields.get(key), nil
		}
	}
	for walk, depth := obj, 0; walk != nil && depth <= conf.MAXPROTODEPTH; walk, depth = walk.proto, depth+1 {
		if getters := s.chainGet(walk, s.str(metaGetter)); getters.isObjKind(ObjTable) {
			if getter := getters.obj.fields.get(key); getter.isCallable() {
				results, err := s.metaCall(getter, []Value{self}, 1)
				if err != nil {
					return Value{}, err
				}
				return results[0], nil
			}
		}
	}
	if index := s.chainGet(obj, s.str(metaIndex)); index.isCallable() {
		results, err := s.metaCall(index, []Value{self, key}, 1)
		if err != nil {
			return Value{}, err
		}
		return results[0], nil
	}
	return Value{}, nil
}

func (s *State) fieldSet(container, key, val Value) error {
	switch {
	case container.isObjKind(ObjTable):
		container.obj.fields.set(key, val)
		return nil
	case container.isObjKind(ObjObject):
		return s.objectSet(container, container.obj, key, val)
	default:
		return s.runtimeErr(s.callerLine(), "attempt to assign a field on a %v value", TypeName(container))
	}
}

// objectSet honors a registered per-field setter, then __newindex; otherwise
// assignment always lands in the object's own fields, never a prototype's.
func (s *State) objectSet(self Value, obj *Object, key, val Value) error {
	for walk, depth := obj, 0; walk != nil && depth <= conf.MAXPROTODEPTH; walk, depth = walk.proto, depth+1 {
		if setters := s.chainGet(walk, s.str(metaSetter)); setters.isObjKind(ObjTable) {
			if setter := setters.obj.fields.get(key); setter.isCallable() {
				_, err := s.metaCall(setter, []Value{self, val}, 0)
				return err
			}
		}
	}
	if newindex := s.chainGet(obj, s.str(metaNewindex)); newindex.isCallable() {
		_, err := s.metaCall(newindex, []Value{self, key, val}, 0)
		return err
	}
	obj.fields.set(key, val)
	return nil
}

// valueEqual applies raw equality first and only then the __equal metamethod,
// so identical references never pay for a dispatch.
func (s *State) valueEqual(a, b Value) (bool, error) {
	if equal(a, b) {
		return true, nil
	}
	if a.isObjKind(ObjObject) && b.isObjKind(ObjObject) {
		if eq := s.chainGet(a.obj, s.str(metaEqual)); eq.isCallable() {
			results, err := s.metaCall(eq, []Value{a, b}, 1)
			if err != nil {
				return false, err
			}
			return results[0].Truthy(), nil
		}
	}
	return false, nil
}

// displayString renders a value for concat, print, and tostring, routing
// through a __tostring metamethod when one is registered.
func (s *State) displayString(val Value) (string, error) {
	var meta Value
	switch {
	case val.isObjKind(ObjObject):
		meta = s.chainGet(val.obj, s.str(metaTostring))
	case val.isString():
		if proto := s.protos[ObjString]; proto != nil {
			meta = s.chainGet(proto, s.str(metaTostring))
		}
	}
	if meta.isCallable() {
		results, err := s.metaCall(meta, []Value{val}, 1)
		if err != nil {
			return "", err
		}
		if !results[0].isString() {
			return "", s.runtimeErr(s.callerLine(), "__tostring must return a string, got %v", TypeName(results[0]))
		}
		return results[0].Str(), nil
	}
	return ToString(val), nil
}

// =============================== interpreter ================================

// run executes one frame's bytecode until its RETURN, recursing through
// vmCall for nested calls. Collection checks happen between instructions so
// that no instruction ever observes a half-built object.
func (s *State) run(f *frame) ([]Value, error) {
	code := f.fn.Code
	consts := f.fn.Constants
	for f.pc < len(code) {
		s.maybeCollect()
		at := f.pc
		op := bytecode.Op(code[at])
		linfo := f.fn.LineTrace[at]
		f.pc = at + op.Size()

		switch op {
		case bytecode.LOADCONST:
			if err := s.push(s.constValue(consts[bytecode.U16(code, at+1)])); err != nil {
				return nil, s.wrapErr(linfo, err)
			}
		case bytecode.NIL:
			if err := s.push(Value{}); err != nil {
				return nil, s.wrapErr(linfo, err)
			}
		case bytecode.TRUE:
			if err := s.push(Bool(true)); err != nil {
				return nil, s.wrapErr(linfo, err)
			}
		case bytecode.FALSE:
			if err := s.push(Bool(false)); err != nil {
				return nil, s.wrapErr(linfo, err)
			}
		case bytecode.POP:
			s.top -= int(code[at+1])
		case bytecode.NEGATE:
			val := s.peek(0)
			if !val.isNumber() {
				return nil, s.runtimeErr(linfo, "attempt to negate a %v value", TypeName(val))
			}
			s.stack[s.top-1] = Number(-val.num)
		case bytecode.NOT:
			s.stack[s.top-1] = Bool(!s.peek(0).Truthy())
		case bytecode.COUNT:
			length, err := s.valueCount(linfo, s.peek(0))
			if err != nil {
				return nil, err
			}
			s.stack[s.top-1] = Number(float64(length))
		case bytecode.ADD, bytecode.SUB, bytecode.MULT, bytecode.DIV, bytecode.MOD:
			rhs, lhs := s.pop(), s.pop()
			result, err := s.arith(linfo, op, lhs, rhs)
			if err != nil {
				return nil, err
			}
			s.stack[s.top] = result
			s.top++
		case bytecode.EQUAL:
			rhs, lhs := s.pop(), s.pop()
			eq, err := s.valueEqual(lhs, rhs)
			if err != nil {
				return nil, err
			}
			s.stack[s.top] = Bool(eq)
			s.top++
		case bytecode.GREATER, bytecode.LESS, bytecode.GREATEREQUAL, bytecode.LESSEQUAL:
			rhs, lhs := s.pop(), s.pop()
			if !lhs.isNumber() || !rhs.isNumber() {
				return nil, s.runtimeErr(linfo, "attempt to compare %v with %v", TypeName(lhs), TypeName(rhs))
			}
			s.stack[s.top] = compareOp(op, lhs.num, rhs.num)
			s.top++
		case bytecode.CONCAT:
			count := int(code[at+1])
			var sb strings.Builder
			for _, part := range s.stack[s.top-count : s.top] {
				str, err := s.displayString(part)
				if err != nil {
					return nil, err
				}
				sb.WriteString(str)
			}
			s.top -= count
			s.stack[s.top] = s.str(sb.String())
			s.top++
		case bytecode.GETLOCAL:
			if err := s.push(s.stack[f.base+int(code[at+1])]); err != nil {
				return nil, s.wrapErr(linfo, err)
			}
		case bytecode.SETLOCAL:
			s.stack[f.base+int(code[at+1])] = s.pop()
		case bytecode.INCLOCAL:
			slot := f.base + int(code[at+2])
			prev, err := s.increment(linfo, &s.stack[slot], bytecode.Delta(code[at+1]))
			if err != nil {
				return nil, err
			}
			if err := s.push(prev); err != nil {
				return nil, s.wrapErr(linfo, err)
			}
		case bytecode.GETUPVAL:
			if err := s.push(s.upvalGet(f.closure.upvals[code[at+1]])); err != nil {
				return nil, s.wrapErr(linfo, err)
			}
		case bytecode.SETUPVAL:
			s.upvalSet(f.closure.upvals[code[at+1]], s.pop())
		case bytecode.INCUPVAL:
			upval := f.closure.upvals[code[at+2]]
			prev := s.upvalGet(upval)
			if !prev.isNumber() {
				return nil, s.runtimeErr(linfo, "attempt to increment a %v value", TypeName(prev))
			}
			s.upvalSet(upval, Number(prev.num+float64(bytecode.Delta(code[at+1]))))
			if err := s.push(prev); err != nil {
				return nil, s.wrapErr(linfo, err)
			}
		case bytecode.GETGLOBAL:
			name := s.constValue(consts[bytecode.U16(code, at+1)])
			if err := s.push(s.globals.fields.get(name)); err != nil {
				return nil, s.wrapErr(linfo, err)
			}
		case bytecode.SETGLOBAL:
			name := s.constValue(consts[bytecode.U16(code, at+1)])
			s.globals.fields.set(name, s.pop())
		case bytecode.INCGLOBAL:
			name := s.constValue(consts[bytecode.U16(code, at+2)])
			prev := s.globals.fields.get(name)
			if !prev.isNumber() {
				return nil, s.runtimeErr(linfo, "attempt to increment a %v value", TypeName(prev))
			}
			s.globals.fields.set(name, Number(prev.num+float64(bytecode.Delta(code[at+1]))))
			if err := s.push(prev); err != nil {
				return nil, s.wrapErr(linfo, err)
			}
		case bytecode.GETOBJECT:
			container := s.pop()
			key := s.constValue(consts[bytecode.U16(code, at+1)])
			val, err := s.fieldGet(container, key)
			if err != nil {
				return nil, err
			}
			s.stack[s.top] = val
			s.top++
		case bytecode.SETOBJECT:
			val := s.pop()
			key := s.pop()
			container := s.pop()
			if err := s.fieldSet(container, key, val); err != nil {
				return nil, err
			}
		case bytecode.INCOBJECT:
			container := s.pop()
			key := s.constValue(consts[bytecode.U16(code, at+2)])
			prev, err := s.incrementField(linfo, container, key, bytecode.Delta(code[at+1]))
			if err != nil {
				return nil, err
			}
			s.stack[s.top] = prev
			s.top++
		case bytecode.INDEX:
			key := s.pop()
			container := s.pop()
			val, err := s.fieldGet(container, key)
			if err != nil {
				return nil, err
			}
			s.stack[s.top] = val
			s.top++
		case bytecode.NEWINDEX:
			val := s.pop()
			key := s.pop()
			container := s.pop()
			if err := s.fieldSet(container, key, val); err != nil {
				return nil, err
			}
		case bytecode.INCINDEX:
			key := s.pop()
			container := s.pop()
			prev, err := s.incrementField(linfo, container, key, bytecode.Delta(code[at+1]))
			if err != nil {
				return nil, err
			}
			s.stack[s.top] = prev
			s.top++
		case bytecode.NEWDICT:
			entries := int(bytecode.U16(code, at+1))
			tbl := s.newTable(entries)
			s.collectEntries(tbl, entries)
			s.stack[s.top] = objValue(tbl)
			s.top++
		case bytecode.NEWOBJECT:
			entries := int(bytecode.U16(code, at+1))
			obj := s.newObject(entries)
			s.collectEntries(obj, entries)
			s.stack[s.top] = objValue(obj)
			s.top++
		case bytecode.CLOSURE:
			fn, ok := consts[bytecode.U16(code, at+1)].(*parse.FnProto)
			if !ok {
				return nil, s.runtimeErr(linfo, "closure constant is not a function")
			}
			cl := s.newClosure(fn)
			// the inline directives mirror fn.UpIndexes, so the upvalue
			// sources come from there and the directive bytes are skipped.
			f.pc += 2 * len(fn.UpIndexes)
			if err := s.push(objValue(cl)); err != nil {
				return nil, s.wrapErr(linfo, err)
			}
			for _, up := range fn.UpIndexes {
				if up.FromStack {
					cl.upvals = append(cl.upvals, s.captureUpvalue(f.base+int(up.Index)))
				} else {
					cl.upvals = append(cl.upvals, f.closure.upvals[up.Index])
				}
			}
		case bytecode.CLOSE:
			s.closeUpvalues(s.top - 1)
			s.top--
		case bytecode.CALL:
			nargs, nresults := int(code[at+1]), int(code[at+2])
			if err := s.vmCall(s.top-nargs-1, nargs, nresults); err != nil {
				return nil, err
			}
		case bytecode.INVOKE:
			nargs, nresults := int(code[at+1]), int(code[at+2])
			if err := s.invoke(nargs, nresults); err != nil {
				return nil, err
			}
		case bytecode.RETURN:
			count := int(code[at+1])
			results := make([]Value, count)
			copy(results, s.stack[s.top-count:s.top])
			s.closeUpvalues(f.base)
			return results, nil
		case bytecode.JMP:
			f.pc = at + 3 + int(bytecode.U16(code, at+1))
		case bytecode.JMPBACK:
			f.pc = at + 3 - int(bytecode.U16(code, at+1))
		case bytecode.PEJMP:
			if !s.pop().Truthy() {
				f.pc = at + 3 + int(bytecode.U16(code, at+1))
			}
		case bytecode.EJMP:
			if !s.peek(0).Truthy() {
				f.pc = at + 3 + int(bytecode.U16(code, at+1))
			}
		case bytecode.ITER:
			if err := s.makeIterator(linfo); err != nil {
				return nil, err
			}
		case bytecode.NEXT:
			count, dist := int(code[at+1]), int(bytecode.U16(code, at+2))
			done, err := s.iterNext(linfo, count)
			if err != nil {
				return nil, err
			}
			if done {
				f.pc = at + 4 + dist
			}
		default:
			return nil, s.runtimeErr(linfo, "unknown opcode %v", op)
		}
	}
	return nil, nil
}

// invoke resolves stack layout [self, name, args...] into [method, self,
// args...] and calls it, so that slot 0 of the method frame is the method and
// self arrives as its first parameter.
func (s *State) invoke(nargs, nresults int) error {
	selfPos := s.top - nargs - 2
	self := s.stack[selfPos]
	name := s.stack[selfPos+1]
	method, err := s.fieldGet(self, name)
	if err != nil {
		return err
	}
	if !method.isCallable() {
		return s.runtimeErr(s.callerLine(), "attempt to call missing method '%v' on a %v value", ToString(name), TypeName(self))
	}
	s.stack[selfPos] = method
	s.stack[selfPos+1] = self
	return s.vmCall(selfPos, nargs+1, nresults)
}

// makeIterator replaces the iterable on top of the stack with its iterator: a
// value that already answers __next iterates itself, otherwise __iter is
// asked to produce the iterator.
func (s *State) makeIterator(linfo parse.LineInfo) error {
	val := s.peek(0)
	if nextFn, err := s.fieldGet(val, s.str(metaNext)); err == nil && nextFn.isCallable() {
		return nil
	} else if err != nil {
		return s.runtimeErr(linfo, "attempt to iterate a %v value", TypeName(val))
	}
	iterFn, err := s.fieldGet(val, s.str(metaIter))
	if err != nil || !iterFn.isCallable() {
		return s.runtimeErr(linfo, "attempt to iterate a %v value", TypeName(val))
	}
	results, err := s.metaCall(iterFn, []Value{val}, 1)
	if err != nil {
		return err
	}
	s.stack[s.top-1] = results[0]
	return nil
}

// iterNext steps the iterator sitting on top of the stack, pushing count loop
// values, or reports exhaustion when the first value comes back nil.
func (s *State) iterNext(linfo parse.LineInfo, count int) (bool, error) {
	iter := s.peek(0)
	nextFn, err := s.fieldGet(iter, s.str(metaNext))
	if err != nil || !nextFn.isCallable() {
		return false, s.runtimeErr(linfo, "iterator lost its __next metamethod")
	}
	results, err := s.metaCall(nextFn, []Value{iter}, count)
	if err != nil {
		return false, err
	}
	if results[0].IsNil() {
		return true, nil
	}
	for _, val := range results {
		if err := s.push(val); err != nil {
			return false, s.wrapErr(linfo, err)
		}
	}
	return false, nil
}

// collectEntries pops count interleaved key/value pairs into a container in
// push order, preserving literal order in iteration.
func (s *State) collectEntries(container *Object, count int) {
	start := s.top - count*2
	for i := 0; i < count; i++ {
		container.fields.set(s.stack[start+i*2], s.stack[start+i*2+1])
	}
	s.top = start
}

func (s *State) arith(linfo parse.LineInfo, op bytecode.Op, lhs, rhs Value) (Value, error) {
	if !lhs.isNumber() || !rhs.isNumber() {
		bad := lhs
		if lhs.isNumber() {
			bad = rhs
		}
		return Value{}, s.runtimeErr(linfo, "attempt to perform arithmetic on a %v value", TypeName(bad))
	}
	switch op {
	case bytecode.ADD:
		return Number(lhs.num + rhs.num), nil
	case bytecode.SUB:
		return Number(lhs.num - rhs.num), nil
	case bytecode.MULT:
		return Number(lhs.num * rhs.num), nil
	case bytecode.DIV:
		// IEEE-754 division: dividing by zero yields an infinity or NaN.
		return Number(lhs.num / rhs.num), nil
	default:
		return Number(math.Mod(lhs.num, rhs.num)), nil
	}
}

func compareOp(op bytecode.Op, lhs, rhs float64) Value {
	switch op {
	case bytecode.GREATER:
		return Bool(lhs > rhs)
	case bytecode.LESS:
		return Bool(lhs < rhs)
	case bytecode.GREATEREQUAL:
		return Bool(lhs >= rhs)
	default:
		return Bool(lhs <= rhs)
	}
}

func (s *State) valueCount(linfo parse.LineInfo, val Value) (int, error) {
	switch {
	case val.isString():
		return len(val.Str()), nil
	case val.isObjKind(ObjTable):
		return val.obj.fields.arrayLen(), nil
	case val.isObjKind(ObjObject):
		return val.obj.fields.size(), nil
	default:
		return 0, s.runtimeErr(linfo, "attempt to get length of a %v value", TypeName(val))
	}
}

func (s *State) increment(linfo parse.LineInfo, addr *Value, delta int) (Value, error) {
	prev := *addr
	if !prev.isNumber() {
		return Value{}, s.runtimeErr(linfo, "attempt to increment a %v value", TypeName(prev))
	}
	*addr = Number(prev.num + float64(delta))
	return prev, nil
}

func (s *State) incrementField(linfo parse.LineInfo, container, key Value, delta int) (Value, error) {
	prev, err := s.fieldGet(container, key)
	if err != nil {
		return Value{}, err
	}
	if !prev.isNumber() {
		return Value{}, s.runtimeErr(linfo, "attempt to increment a %v value", TypeName(prev))
	}
	if err := s.fieldSet(container, key, Number(prev.num+float64(delta))); err != nil {
		return Value{}, err
	}
	return prev, nil
}

func (s *State) constValue(konst any) Value {
	switch val := konst.(type) {
	case string:
		return s.str(val)
	case float64:
		return Number(val)
	default:
		return Value{}
	}
}
