package parse

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/gosmo-lang/gosmo/src/bytecode"
	"github.com/gosmo-lang/gosmo/src/conf"
)

type (
	upindex struct {
		Name      string
		FromStack bool
		Index     uint8
	}
	local struct {
		name     string
		depth    int
		captured bool
	}
	// FnProto is a compiled function scope. It is not always a function, the
	// main scope of a chunk outside of any function is a FnProto as well. It
	// is immutable once compilation finishes.
	FnProto struct {
		prev *FnProto // enclosing FnProto while compiling

		Name      string
		Module    string
		Constants []any     // constant values referenced by the code
		UpIndexes []upindex // captured variables, in closure order
		Code      []byte    // flat instruction stream
		LineTrace []LineInfo
		LineInfo
		Arity   int
		Varargs bool

		// parsing only data
		locals []*local
	}
)

const fnProtoTemplate = `{{.Name}} <{{.Module}}:{{.Line}}> ({{.Code | len}} bytes)
{{.Arity}}{{if .Varargs}}+{{end}} params, {{.UpIndexes | len}} upvalues, {{.Constants | len}} constants
{{- range .Instructions}}
	{{.Offset}}	[{{.Line}}]	{{.Text -}}
{{end}}
{{range .Protos}}
{{. -}}
{{end}}`

// NewFnProto creates a new FnProto for parsing. The result from parsing
// contains the bytecode and debugging information for if an error happens.
func NewFnProto(module, name string, prev *FnProto, params []string, vararg bool, linfo LineInfo) *FnProto {
	// slot 0 is reserved for the running closure, in methods too; a method's
	// receiver is not placed there and arrives as its first declared parameter.
	locals := []*local{{name: ""}}
	for _, param := range params {
		locals = append(locals, &local{name: param})
	}
	return &FnProto{
		Module:   module,
		Name:     name,
		LineInfo: linfo,
		prev:     prev,
		Arity:    len(params),
		Varargs:  vararg,
		locals:   locals,
	}
}

func (fn *FnProto) addLocal(lcl *local) (uint8, error) {
	if len(fn.locals) >= conf.MAXLOCALS {
		return 0, fmt.Errorf("too many locals while adding %v", lcl.name)
	}
	fn.locals = append(fn.locals, lcl)
	return uint8(len(fn.locals) - 1), nil
}

func (fn *FnProto) addConst(val any) (uint16, error) {
	for i, konst := range fn.Constants {
		if constEqual(konst, val) {
			return uint16(i), nil
		}
	}
	if len(fn.Constants) >= conf.MAXCONST {
		return 0, fmt.Errorf("constant overflow while adding %v", val)
	}
	fn.Constants = append(fn.Constants, val)
	return uint16(len(fn.Constants) - 1), nil
}

func constEqual(a, b any) bool {
	switch aval := a.(type) {
	case string:
		bval, ok := b.(string)
		return ok && aval == bval
	case float64:
		bval, ok := b.(float64)
		return ok && aval == bval
	case *FnProto:
		return a == b
	default:
		return false
	}
}

// GetConst gets a constant from predefined constants in the fn.
func (fn *FnProto) GetConst(idx int64) any {
	if idx < 0 || int(idx) >= len(fn.Constants) {
		return nil
	}
	return fn.Constants[idx]
}

func (fn *FnProto) addUpindex(name string, index uint8, stack bool) error {
	if len(fn.UpIndexes) >= conf.MAXUPVALUES {
		return fmt.Errorf("too many upvalues while adding %v", name)
	}
	fn.UpIndexes = append(fn.UpIndexes, upindex{FromStack: stack, Name: name, Index: index})
	return nil
}

// every operand byte carries the line of its opcode so runtime errors can be
// attributed from any pc.
func (fn *FnProto) code(op bytecode.Op, linfo LineInfo) int {
	at := len(fn.Code)
	fn.Code = append(fn.Code, byte(op))
	fn.LineTrace = append(fn.LineTrace, linfo)
	return at
}

func (fn *FnProto) codeU8(op bytecode.Op, a uint8, linfo LineInfo) int {
	at := fn.code(op, linfo)
	fn.Code = append(fn.Code, a)
	fn.LineTrace = append(fn.LineTrace, linfo)
	return at
}

func (fn *FnProto) codeU8U8(op bytecode.Op, a, b uint8, linfo LineInfo) int {
	at := fn.codeU8(op, a, linfo)
	fn.Code = append(fn.Code, b)
	fn.LineTrace = append(fn.LineTrace, linfo)
	return at
}

func (fn *FnProto) codeU16(op bytecode.Op, val uint16, linfo LineInfo) int {
	at := fn.code(op, linfo)
	fn.Code = append(fn.Code, 0, 0)
	bytecode.PutU16(fn.Code, at+1, val)
	fn.LineTrace = append(fn.LineTrace, linfo, linfo)
	return at
}

func (fn *FnProto) codeU8U16(op bytecode.Op, a uint8, val uint16, linfo LineInfo) int {
	at := fn.codeU8(op, a, linfo)
	fn.Code = append(fn.Code, 0, 0)
	bytecode.PutU16(fn.Code, at+2, val)
	fn.LineTrace = append(fn.LineTrace, linfo, linfo)
	return at
}

// codeJmp emits a forward jump with a placeholder distance and returns the
// offset of the operand to be patched once the target is known.
func (fn *FnProto) codeJmp(op bytecode.Op, linfo LineInfo) int {
	fn.codeU16(op, 0, linfo)
	return len(fn.Code) - 2
}

// patchJmp resolves a forward jump to the current end of the code. The
// distance is measured from the byte after the operand.
func (fn *FnProto) patchJmp(operandAt int) error {
	dist := len(fn.Code) - operandAt - 2
	if dist > conf.MAXJUMP {
		return fmt.Errorf("jump distance %v is too large", dist)
	}
	bytecode.PutU16(fn.Code, operandAt, uint16(dist))
	return nil
}

// codeJmpBack emits a backward jump to target, measured from the byte after
// the emitted instruction.
func (fn *FnProto) codeJmpBack(target int, linfo LineInfo) error {
	dist := len(fn.Code) + 3 - target
	if dist > conf.MAXJUMP {
		return fmt.Errorf("jump distance %v is too large", dist)
	}
	fn.codeU16(bytecode.JMPBACK, uint16(dist), linfo)
	return nil
}

type instLine struct {
	Offset int
	Line   int64
	Text   string
}

// Instructions decodes the code stream for display.
func (fn *FnProto) Instructions() []instLine {
	out := []instLine{}
	pc := 0
	for pc < len(fn.Code) {
		at := pc
		var text string
		text, pc = bytecode.ToString(fn.Code, pc)
		op := bytecode.Op(fn.Code[at])
		switch op {
		case bytecode.LOADCONST, bytecode.GETGLOBAL, bytecode.SETGLOBAL, bytecode.GETOBJECT:
			text += fmt.Sprintf(" ; %v", constText(fn.GetConst(int64(bytecode.U16(fn.Code, at+1)))))
		case bytecode.CLOSURE:
			proto, _ := fn.GetConst(int64(bytecode.U16(fn.Code, at+1))).(*FnProto)
			if proto != nil {
				text += " ; " + proto.Name
				// skip the inline upvalue directives
				pc += 2 * len(proto.UpIndexes)
			}
		}
		out = append(out, instLine{Offset: at, Line: fn.LineTrace[at].Line, Text: text})
	}
	return out
}

// Protos lists the function constants for display.
func (fn *FnProto) Protos() []*FnProto {
	out := []*FnProto{}
	for _, konst := range fn.Constants {
		if proto, ok := konst.(*FnProto); ok {
			out = append(out, proto)
		}
	}
	return out
}

func constText(val any) string {
	if str, ok := val.(string); ok {
		return fmt.Sprintf("%q", str)
	}
	return fmt.Sprintf("%v", val)
}

func (fn *FnProto) String() string {
	var buf bytes.Buffer
	tmpl := template.Must(template.New("fnproto").Parse(fnProtoTemplate))
	if err := tmpl.Execute(&buf, fn); err != nil {
		panic(err)
	}
	return buf.String()
}
