package runtime

import (
	"github.com/gosmo-lang/gosmo/src/parse"
)

// The embedding API speaks the same operand stack the interpreter runs on.
// Values pushed from Go are rooted by the stack, so the collector never frees
// them while the embedder can still see them. Holding a Value in a Go
// variable across calls requires Anchor.

// PushNil pushes nil.
func (s *State) PushNil() error { return s.push(Value{}) }

// PushBool pushes a boolean.
func (s *State) PushBool(b bool) error { return s.push(Bool(b)) }

// PushNumber pushes a number.
func (s *State) PushNumber(n float64) error { return s.push(Number(n)) }

// PushString interns str and pushes it.
func (s *State) PushString(str string) error { return s.push(s.str(str)) }

// PushGoFunc wraps fn into a callable object and pushes it.
func (s *State) PushGoFunc(name string, fn GoFn) error {
	return s.push(objValue(s.newGoFunc(name, fn)))
}

// PushValue pushes a value previously obtained from the state.
func (s *State) PushValue(val Value) error { return s.push(val) }

// Pop discards the top n values.
func (s *State) Pop(n int) {
	if n > s.top {
		n = s.top
	}
	s.top -= n
}

// Top reports how many values sit on the stack.
func (s *State) Top() int { return s.top }

// At reads the stack without popping: index 0 is the bottom, negative indexes
// count back from the top, so At(-1) is the top value.
func (s *State) At(i int) Value {
	if i < 0 {
		i += s.top
	}
	if i < 0 || i >= s.top {
		return Value{}
	}
	return s.stack[i]
}

// Insert moves the top value into position i, shifting everything above up.
func (s *State) Insert(i int) {
	if i < 0 {
		i += s.top
	}
	if i < 0 || i >= s.top {
		return
	}
	val := s.stack[s.top-1]
	copy(s.stack[i+1:s.top], s.stack[i:s.top-1])
	s.stack[i] = val
}

// CompileString compiles src and pushes the resulting closure. On a compile
// error nil is pushed instead and the diagnostic is returned.
func (s *State) CompileString(module, src string) error {
	s.FreezeGC()
	defer s.UnfreezeGC()
	fn, err := parse.ParseString(module, src)
	if err != nil {
		if perr := s.push(Value{}); perr != nil {
			return perr
		}
		return err
	}
	return s.push(objValue(s.newClosure(fn)))
}

// Call invokes the value sitting below nargs arguments on the stack, leaving
// nresults results in their place. nresults -1 keeps everything the callee
// returned.
func (s *State) Call(nargs, nresults int) error {
	return s.vmCall(s.top-nargs-1, nargs, nresults)
}

// PCall is Call with a protected boundary: on error the stack is unwound to
// where the callee sat and the raised value is pushed, and the error is also
// returned to the Go caller.
func (s *State) PCall(nargs, nresults int) error {
	base := s.top - nargs - 1
	if err := s.vmCall(base, nargs, nresults); err != nil {
		s.top = base
		if perr := s.push(s.errValue(err)); perr != nil {
			return perr
		}
		return err
	}
	return nil
}

// Eval runs a compiled function on the state and hands back everything it
// returned.
func (s *State) Eval(fn *parse.FnProto) ([]Value, error) {
	base := s.top
	if err := s.push(objValue(s.newClosure(fn))); err != nil {
		return nil, err
	}
	if err := s.vmCall(base, 0, -1); err != nil {
		s.top = base
		return nil, err
	}
	results := make([]Value, s.top-base)
	copy(results, s.stack[base:s.top])
	s.top = base
	return results, nil
}

// Register pops n name/value pairs off the stack and writes them into the
// globals table, first pair pushed first.
func (s *State) Register(n int) {
	s.collectEntries(s.globals, n)
}

// SetGlobal assigns a global by name.
func (s *State) SetGlobal(name string, val Value) {
	s.globals.fields.set(s.str(name), val)
}

// GetGlobal reads a global by name.
func (s *State) GetGlobal(name string) Value {
	return s.globals.fields.get(s.str(name))
}

// MakeTable pops n key/value pairs off the stack and pushes the table built
// from them, first pair pushed first.
func (s *State) MakeTable(n int) error {
	tbl := s.newTable(n)
	s.collectEntries(tbl, n)
	return s.push(objValue(tbl))
}

// MakeObject pops n key/value pairs off the stack and pushes an object built
// from them, chained to the default object prototype.
func (s *State) MakeObject(n int) error {
	obj := s.newObject(n)
	s.collectEntries(obj, n)
	return s.push(objValue(obj))
}

// RegisterProtoObject replaces the base prototype for a value kind. Strings
// resolve their methods through the ObjString entry.
func (s *State) RegisterProtoObject(kind ObjKind, obj *Object) {
	s.protos[kind] = obj
}

// Anchor roots a value against collection until Release. Use it for values
// held in Go variables while the stack no longer references them.
func (s *State) Anchor(val Value) {
	s.anchors = append(s.anchors, val)
}

// Release drops one anchor previously added for the value.
func (s *State) Release(val Value) {
	for i, anchor := range s.anchors {
		if equal(anchor, val) {
			s.anchors = append(s.anchors[:i], s.anchors[i+1:]...)
			return
		}
	}
}
