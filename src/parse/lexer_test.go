package parse

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parseTokenTest struct {
	src   string
	token *token
}

func TestNextToken(t *testing.T) {
	t.Parallel()
	linfo := LineInfo{Line: 1, Column: 1}
	tests := []parseTokenTest{
		{"//this is a comment\n", &token{Kind: tokenComment, StringVal: "this is a comment", LineInfo: linfo}},
		{"/*this is a comment*/", &token{Kind: tokenComment, StringVal: "this is a comment", LineInfo: linfo}},
		{"\"this is a string\"", &token{Kind: tokenString, StringVal: "this is a string", LineInfo: linfo}},
		{`"tab\tnewline\n"`, &token{Kind: tokenString, StringVal: "tab\tnewline\n", LineInfo: linfo}},
		{`"\x41\66"`, &token{Kind: tokenString, StringVal: "AB", LineInfo: linfo}},
		{"22", &token{Kind: tokenNumber, NumVal: 22, LineInfo: linfo}},
		{"23.43", &token{Kind: tokenNumber, NumVal: 23.43, LineInfo: linfo}},
		{"23.43e-12", &token{Kind: tokenNumber, NumVal: 23.43e-12, LineInfo: linfo}},
		{"23.43e5", &token{Kind: tokenNumber, NumVal: 23.43e5, LineInfo: linfo}},
		{"2E+1", &token{Kind: tokenNumber, NumVal: 20, LineInfo: linfo}},
		{"0xAF2", &token{Kind: tokenNumber, NumVal: 2802, LineInfo: linfo}},
		{"0", &token{Kind: tokenNumber, NumVal: 0, LineInfo: linfo}},
		{".5", &token{Kind: tokenNumber, NumVal: 0.5, LineInfo: linfo}},
		{"foobar", &token{Kind: tokenIdentifier, StringVal: "foobar", LineInfo: linfo}},
		{"foobar42", &token{Kind: tokenIdentifier, StringVal: "foobar42", LineInfo: linfo}},
		{"_foo_bar42", &token{Kind: tokenIdentifier, StringVal: "_foo_bar42", LineInfo: linfo}},
	}

	operators := []tokenType{
		tokenEq, tokenNe, tokenLe, tokenGe, tokenIncrement, tokenDecrement,
		tokenConcat, tokenDots, tokenBang, tokenLength, tokenColon,
	}

	linfo = LineInfo{Line: 1, Column: 0}
	for _, op := range operators {
		tests = append(tests, parseTokenTest{string(op), &token{Kind: op, LineInfo: linfo}})
	}

	for key, kw := range keywords {
		tests = append(tests, parseTokenTest{key, &token{Kind: kw, LineInfo: linfo}})
	}

	for _, test := range tests {
		out, err := lex(test.src)
		require.NoError(t, err, test.src)
		assert.Equal(t, test.token, out, test.src)
	}
}

func TestLexErrors(t *testing.T) {
	t.Parallel()
	for _, src := range []string{`"unterminated`, `"\q"`, "/*unterminated", "$"} {
		_, err := lex(src)
		assert.Error(t, err, src)
	}
}

func TestLexSource(t *testing.T) {
	t.Parallel()
	src := `
var a = 1
function foo(self, name)
	self:println(name)
end
foo(1)
`
	lexer := newLexer("test", bytes.NewBufferString(src))
	tokens := []*token{}
	var tk *token
	var err error
	for {
		tk, err = lexer.Next()
		if err != nil {
			break
		}
		tokens = append(tokens, tk)
	}
	assert.Len(t, tokens, 22)
	assert.Equal(t, io.EOF, err)
}

func TestLexPeek(t *testing.T) {
	t.Parallel()
	lexer := newLexer("test", bytes.NewBufferString(`var a = 1`))
	tk, err := lexer.Peek()
	require.NoError(t, err)
	assert.Equal(t, tokenVar, tk.Kind)
	tk, err = lexer.Peek()
	require.NoError(t, err)
	assert.Equal(t, tokenVar, tk.Kind)
	tk, err = lexer.Next()
	require.NoError(t, err)
	assert.Equal(t, tokenVar, tk.Kind)

	tk, err = lexer.Next()
	require.NoError(t, err)
	assert.Equal(t, tokenIdentifier, tk.Kind)

	tk, err = lexer.Next()
	require.NoError(t, err)
	assert.Equal(t, tokenAssign, tk.Kind)

	tk, err = lexer.Next()
	require.NoError(t, err)
	assert.Equal(t, tokenNumber, tk.Kind)

	tk, err = lexer.Peek()
	require.NoError(t, err)
	assert.Equal(t, tokenEOS, tk.Kind)
}

func lex(str string) (*token, error) {
	return newLexer("test", bytes.NewBufferString(str)).Next()
}
