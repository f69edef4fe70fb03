package parse

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosmo-lang/gosmo/src/bytecode"
)

func TestParseGlobalVar(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `var a = 1`)
	assert.Equal(t, []any{"a", float64(1)}, fn.Constants)
	assertByteCodes(t, fn,
		iU16(bytecode.LOADCONST, 1),
		iU16(bytecode.SETGLOBAL, 0),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseLocalVar(t *testing.T) {
	t.Parallel()
	t.Run("assign and reassign", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `
local a = 1
a = 2`)
		require.Len(t, fn.locals, 2)
		assert.Equal(t, "a", fn.locals[1].name)
		assert.Equal(t, []any{float64(1), float64(2)}, fn.Constants)
		assertByteCodes(t, fn,
			iU16(bytecode.LOADCONST, 0),
			iU16(bytecode.LOADCONST, 1),
			iU8(bytecode.SETLOCAL, 1),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})

	t.Run("missing values pad with nil", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `local a, b = 1`)
		require.Len(t, fn.locals, 3)
		assert.Equal(t, "a", fn.locals[1].name)
		assert.Equal(t, "b", fn.locals[2].name)
		assertByteCodes(t, fn,
			iU16(bytecode.LOADCONST, 0),
			i(bytecode.NIL),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})

	t.Run("call spreads over targets", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `var a, b = f()`)
		assert.Equal(t, []any{"a", "b", "f"}, fn.Constants)
		assertByteCodes(t, fn,
			iU16(bytecode.GETGLOBAL, 2),
			iU8U8(bytecode.CALL, 0, 2),
			iU16(bytecode.SETGLOBAL, 1),
			iU16(bytecode.SETGLOBAL, 0),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})
}

func TestParsePrecedence(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `var x = 1 + 2 * 3`)
	assert.Equal(t, []any{"x", float64(1), float64(2), float64(3)}, fn.Constants)
	assertByteCodes(t, fn,
		iU16(bytecode.LOADCONST, 1),
		iU16(bytecode.LOADCONST, 2),
		iU16(bytecode.LOADCONST, 3),
		i(bytecode.MULT),
		i(bytecode.ADD),
		iU16(bytecode.SETGLOBAL, 0),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseUnary(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `var x = -a var y = !a var z = #a`)
	assertByteCodes(t, fn,
		iU16(bytecode.GETGLOBAL, 1),
		i(bytecode.NEGATE),
		iU16(bytecode.SETGLOBAL, 0),
		iU16(bytecode.GETGLOBAL, 1),
		i(bytecode.NOT),
		iU16(bytecode.SETGLOBAL, 2),
		iU16(bytecode.GETGLOBAL, 1),
		i(bytecode.COUNT),
		iU16(bytecode.SETGLOBAL, 3),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseNotEqual(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `var x = 1 != 2`)
	assertByteCodes(t, fn,
		iU16(bytecode.LOADCONST, 1),
		iU16(bytecode.LOADCONST, 2),
		i(bytecode.EQUAL),
		i(bytecode.NOT),
		iU16(bytecode.SETGLOBAL, 0),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseAnd(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `a and b`)
	assertByteCodes(t, fn,
		iU16(bytecode.GETGLOBAL, 0),
		iU16(bytecode.EJMP, 5),
		iU8(bytecode.POP, 1),
		iU16(bytecode.GETGLOBAL, 1),
		iU8(bytecode.POP, 1),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseOr(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `a or b`)
	assertByteCodes(t, fn,
		iU16(bytecode.GETGLOBAL, 0),
		iU16(bytecode.EJMP, 3),
		iU16(bytecode.JMP, 5),
		iU8(bytecode.POP, 1),
		iU16(bytecode.GETGLOBAL, 1),
		iU8(bytecode.POP, 1),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseConcat(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `var s = "a" .. "b" .. "c"`)
	assert.Equal(t, []any{"s", "a", "b", "c"}, fn.Constants)
	assertByteCodes(t, fn,
		iU16(bytecode.LOADCONST, 1),
		iU16(bytecode.LOADCONST, 2),
		iU16(bytecode.LOADCONST, 3),
		iU8(bytecode.CONCAT, 3),
		iU16(bytecode.SETGLOBAL, 0),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseFunction(t *testing.T) {
	t.Parallel()
	t.Run("closure captures a local", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `
local a = 1
local function get()
	return a
end`)
		require.Len(t, fn.Constants, 2)
		proto, ok := fn.Constants[1].(*FnProto)
		require.True(t, ok)
		assert.Equal(t, "get", proto.Name)
		assert.Equal(t, 0, proto.Arity)
		assert.False(t, proto.Varargs)
		assert.Equal(t, []upindex{{Name: "a", FromStack: true, Index: 1}}, proto.UpIndexes)
		assertByteCodes(t, fn,
			iU16(bytecode.LOADCONST, 0),
			iU16(bytecode.CLOSURE, 1),
			iU8(bytecode.GETLOCAL, 1),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
		assertByteCodes(t, proto,
			iU8(bytecode.GETUPVAL, 0),
			iU8(bytecode.RETURN, 1),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})

	t.Run("upvalues chain through nested functions", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `
local function outer()
	local x = 1
	local function mid()
		local function inner()
			return x
		end
		return inner
	end
	return mid
end`)
		outer, ok := fn.Constants[0].(*FnProto)
		require.True(t, ok)
		require.Len(t, outer.Protos(), 1)
		mid := outer.Protos()[0]
		require.Len(t, mid.Protos(), 1)
		inner := mid.Protos()[0]
		assert.Equal(t, []upindex{{Name: "x", FromStack: true, Index: 1}}, mid.UpIndexes)
		assert.Equal(t, []upindex{{Name: "x", FromStack: false, Index: 0}}, inner.UpIndexes)
	})

	t.Run("variadic parameter", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `function f(a, ... rest) end`)
		proto, ok := fn.Constants[1].(*FnProto)
		require.True(t, ok)
		assert.Equal(t, 2, proto.Arity)
		assert.True(t, proto.Varargs)
	})

	t.Run("multiple return values", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `var f = function() return 1, 2 end`)
		proto, ok := fn.Constants[1].(*FnProto)
		require.True(t, ok)
		assertByteCodes(t, proto,
			iU16(bytecode.LOADCONST, 0),
			iU16(bytecode.LOADCONST, 1),
			iU8(bytecode.RETURN, 2),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})
}

func TestParseCall(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `f(1, 2)`)
	assertByteCodes(t, fn,
		iU16(bytecode.GETGLOBAL, 0),
		iU16(bytecode.LOADCONST, 1),
		iU16(bytecode.LOADCONST, 2),
		iU8U8(bytecode.CALL, 2, 0),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseInvoke(t *testing.T) {
	t.Parallel()
	expected := [][]byte{
		iU16(bytecode.GETGLOBAL, 0),
		iU16(bytecode.LOADCONST, 1),
		iU16(bytecode.LOADCONST, 2),
		iU8U8(bytecode.INVOKE, 1, 0),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	}
	// field call and method call sugar compile identically.
	assertByteCodes(t, testParse(t, `console:log("hi")`), expected...)
	assertByteCodes(t, testParse(t, `console.log("hi")`), expected...)
}

func TestParseFieldAccess(t *testing.T) {
	t.Parallel()
	t.Run("get", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `var y = t.x`)
		assert.Equal(t, []any{"y", "t", "x"}, fn.Constants)
		assertByteCodes(t, fn,
			iU16(bytecode.GETGLOBAL, 1),
			iU16(bytecode.GETOBJECT, 2),
			iU16(bytecode.SETGLOBAL, 0),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})

	t.Run("set", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `t.x = 1`)
		assert.Equal(t, []any{"t", "x", float64(1)}, fn.Constants)
		assertByteCodes(t, fn,
			iU16(bytecode.GETGLOBAL, 0),
			iU16(bytecode.LOADCONST, 1),
			iU16(bytecode.LOADCONST, 2),
			i(bytecode.SETOBJECT),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})

	t.Run("postfix increment", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `t.x++`)
		assertByteCodes(t, fn,
			iU16(bytecode.GETGLOBAL, 0),
			iU8U16(bytecode.INCOBJECT, bytecode.Bias(1), 1),
			iU8(bytecode.POP, 1),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})
}

func TestParseIndex(t *testing.T) {
	t.Parallel()
	t.Run("get", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `var y = t[k]`)
		assertByteCodes(t, fn,
			iU16(bytecode.GETGLOBAL, 1),
			iU16(bytecode.GETGLOBAL, 2),
			i(bytecode.INDEX),
			iU16(bytecode.SETGLOBAL, 0),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})

	t.Run("set", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `t[k] = 2`)
		assertByteCodes(t, fn,
			iU16(bytecode.GETGLOBAL, 0),
			iU16(bytecode.GETGLOBAL, 1),
			iU16(bytecode.LOADCONST, 2),
			i(bytecode.NEWINDEX),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})

	t.Run("postfix decrement", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `t[k]--`)
		assertByteCodes(t, fn,
			iU16(bytecode.GETGLOBAL, 0),
			iU16(bytecode.GETGLOBAL, 1),
			iU8(bytecode.INCINDEX, bytecode.Bias(-1)),
			iU8(bytecode.POP, 1),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})
}

func TestParsePrefixIncrement(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `var x = ++a`)
	assert.Equal(t, []any{"x", "a", float64(1)}, fn.Constants)
	assertByteCodes(t, fn,
		iU8U16(bytecode.INCGLOBAL, bytecode.Bias(1), 1),
		iU16(bytecode.LOADCONST, 2),
		i(bytecode.ADD),
		iU16(bytecode.SETGLOBAL, 0),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseTableLiteral(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `var t = {x: 1, y: 2}`)
	assert.Equal(t, []any{"t", "x", float64(1), "y", float64(2)}, fn.Constants)
	assertByteCodes(t, fn,
		iU16(bytecode.LOADCONST, 1),
		iU16(bytecode.LOADCONST, 2),
		iU16(bytecode.LOADCONST, 3),
		iU16(bytecode.LOADCONST, 4),
		iU16(bytecode.NEWDICT, 2),
		iU16(bytecode.SETGLOBAL, 0),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseProto(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `
proto Point
	function new(self, x)
		self.x = x
	end
end`)
	require.Len(t, fn.Constants, 3)
	assert.Equal(t, "Point", fn.Constants[0])
	assert.Equal(t, "new", fn.Constants[1])
	proto, ok := fn.Constants[2].(*FnProto)
	require.True(t, ok)
	assert.Equal(t, "new", proto.Name)
	assert.Equal(t, 2, proto.Arity)
	assertByteCodes(t, fn,
		iU16(bytecode.LOADCONST, 1),
		iU16(bytecode.CLOSURE, 2),
		iU16(bytecode.NEWOBJECT, 1),
		iU16(bytecode.SETGLOBAL, 0),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
	assertByteCodes(t, proto,
		iU8(bytecode.GETLOCAL, 1),
		iU16(bytecode.LOADCONST, 0),
		iU8(bytecode.GETLOCAL, 2),
		i(bytecode.SETOBJECT),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseIf(t *testing.T) {
	t.Parallel()
	t.Run("plain if", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `if true then a = 1 end`)
		assertByteCodes(t, fn,
			i(bytecode.TRUE),
			iU16(bytecode.PEJMP, 6),
			iU16(bytecode.LOADCONST, 1),
			iU16(bytecode.SETGLOBAL, 0),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})

	t.Run("if else", func(t *testing.T) {
		t.Parallel()
		fn := testParse(t, `if a then else b = 1 end`)
		assertByteCodes(t, fn,
			iU16(bytecode.GETGLOBAL, 0),
			iU16(bytecode.PEJMP, 3),
			iU16(bytecode.JMP, 6),
			iU16(bytecode.LOADCONST, 2),
			iU16(bytecode.SETGLOBAL, 1),
			i(bytecode.NIL),
			iU8(bytecode.RETURN, 1),
		)
	})
}

func TestParseWhile(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `while true do break end`)
	assertByteCodes(t, fn,
		i(bytecode.TRUE),
		iU16(bytecode.PEJMP, 6),
		iU16(bytecode.JMP, 3),
		iU16(bytecode.JMPBACK, 10),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseNumericFor(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `for (var i = 0; i < 3; i = i + 1) do end`)
	assert.Equal(t, []any{float64(0), float64(3), float64(1)}, fn.Constants)
	assertByteCodes(t, fn,
		iU16(bytecode.LOADCONST, 0),
		iU8(bytecode.GETLOCAL, 1),
		iU16(bytecode.LOADCONST, 1),
		i(bytecode.LESS),
		iU16(bytecode.PEJMP, 17),
		iU16(bytecode.JMP, 11),
		iU8(bytecode.GETLOCAL, 1),
		iU16(bytecode.LOADCONST, 2),
		i(bytecode.ADD),
		iU8(bytecode.SETLOCAL, 1),
		iU16(bytecode.JMPBACK, 23),
		iU16(bytecode.JMPBACK, 14),
		iU8(bytecode.POP, 1),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseForEach(t *testing.T) {
	t.Parallel()
	fn := testParse(t, `for k, v in t do end`)
	assertByteCodes(t, fn,
		iU16(bytecode.GETGLOBAL, 0),
		i(bytecode.ITER),
		iU8U16(bytecode.NEXT, 2, 5),
		iU8(bytecode.POP, 2),
		iU16(bytecode.JMPBACK, 9),
		iU8(bytecode.POP, 1),
		i(bytecode.NIL),
		iU8(bytecode.RETURN, 1),
	)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src string
		msg string
	}{
		{`1 = 2`, "invalid assignment target"},
		{`var a = (`, "missing expression"},
		{`break`, "'break' used outside of a loop body"},
		{`continue`, "'continue' used outside of a loop body"},
		{`return 1`, "'return' used outside of a function"},
		{`local a local a`, "there is already a local named a in scope"},
		{`if true then`, "expected 'end' to close block"},
		{`f(1`, "expected ')' to end call"},
		{`t.`, "expected field name after '.'"},
		{`var a = "unterminated`, "unterminated string"},
	}
	for _, test := range tests {
		fn, err := ParseString("test", test.src)
		require.Error(t, err, test.src)
		assert.Nil(t, fn, test.src)
		assert.ErrorContains(t, err, test.msg, test.src)
	}
}

func TestParseRecoversPerStatement(t *testing.T) {
	t.Parallel()
	// the first broken statement reports, later statements still parse.
	_, err := ParseString("test", `
1 = 2;
var ok = 1
`)
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid assignment target")
}

func TestParseTooManyLocals(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	sb.WriteString("function crowded()\n")
	for i := 0; i < 257; i++ {
		fmt.Fprintf(&sb, "local x%d\n", i)
	}
	sb.WriteString("end")
	_, err := ParseString("test", sb.String())
	require.Error(t, err)
	assert.ErrorContains(t, err, "too many locals")
}

func TestParseConstantOverflow(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	sb.WriteString("function bulky()\nreturn 0")
	for i := 1; i <= 65_537; i++ {
		fmt.Fprintf(&sb, " + %d", i)
	}
	sb.WriteString("\nend")
	_, err := ParseString("test", sb.String())
	require.Error(t, err)
	assert.ErrorContains(t, err, "constant overflow")
}

func TestParseJumpTooFar(t *testing.T) {
	t.Parallel()
	src := "while 1 == 2 do\n" + strings.Repeat("x = 1\n", 12_000) + "end"
	_, err := ParseString("test", src)
	require.Error(t, err)
	assert.ErrorContains(t, err, "jump distance")
}

func testParse(t *testing.T, src string) *FnProto {
	t.Helper()
	fn, err := ParseString("testparse", src)
	require.NoError(t, err)
	return fn
}

func i(op bytecode.Op) []byte { return []byte{byte(op)} }

func iU8(op bytecode.Op, a uint8) []byte { return []byte{byte(op), a} }

func iU8U8(op bytecode.Op, a, b uint8) []byte { return []byte{byte(op), a, b} }

func iU16(op bytecode.Op, val uint16) []byte {
	buf := []byte{byte(op), 0, 0}
	bytecode.PutU16(buf, 1, val)
	return buf
}

func iU8U16(op bytecode.Op, a uint8, val uint16) []byte {
	buf := []byte{byte(op), a, 0, 0}
	bytecode.PutU16(buf, 2, val)
	return buf
}

func assertByteCodes(t *testing.T, fn *FnProto, codes ...[]byte) {
	t.Helper()
	expected := []byte{}
	for _, code := range codes {
		expected = append(expected, code...)
	}
	assert.Equal(t, expected, fn.Code, `
Bytecodes are not equal.
expected:
%s
actual:
%s`,
		fmtBytecodes(expected),
		fmtBytecodes(fn.Code),
	)
}

func fmtBytecodes(code []byte) string {
	parts := []string{}
	pc := 0
	for pc < len(code) {
		var text string
		text, pc = bytecode.ToString(code, pc)
		parts = append(parts, "\t"+text)
	}
	return strings.Join(parts, "\n")
}
