package parse

import (
	"fmt"

	"github.com/gosmo-lang/gosmo/src/bytecode"
)

type (
	tokenType string
	token     struct {
		LineInfo
		Kind      tokenType
		StringVal string
		NumVal    float64
	}
	// LineInfo is the position of a token or instruction in the source text.
	LineInfo struct {
		Line   int64
		Column int64
	}
)

const (
	tokenAdd          tokenType = "+"
	tokenMinus        tokenType = "-"
	tokenMultiply     tokenType = "*"
	tokenDivide       tokenType = "/"
	tokenModulo       tokenType = "%"
	tokenAssign       tokenType = "="
	tokenBang         tokenType = "!"
	tokenColon        tokenType = ":"
	tokenComma        tokenType = ","
	tokenPeriod       tokenType = "."
	tokenSemiColon    tokenType = ";"
	tokenLength       tokenType = "#"
	tokenOpenParen    tokenType = "("
	tokenCloseParen   tokenType = ")"
	tokenOpenCurly    tokenType = "{"
	tokenCloseCurly   tokenType = "}"
	tokenOpenBracket  tokenType = "["
	tokenCloseBracket tokenType = "]"
	tokenIncrement    tokenType = "++"
	tokenDecrement    tokenType = "--"
	tokenConcat       tokenType = ".."
	tokenDots         tokenType = "..."
	tokenEq           tokenType = "=="
	tokenNe           tokenType = "!="
	tokenGe           tokenType = ">="
	tokenGt           tokenType = ">"
	tokenLe           tokenType = "<="
	tokenLt           tokenType = "<"
	tokenAnd          tokenType = "and"
	tokenBreak        tokenType = "break"
	tokenContinue     tokenType = "continue"
	tokenDo           tokenType = "do"
	tokenElse         tokenType = "else"
	tokenElseif       tokenType = "elseif"
	tokenEnd          tokenType = "end"
	tokenFalse        tokenType = "false"
	tokenFor          tokenType = "for"
	tokenFunction     tokenType = "function"
	tokenIf           tokenType = "if"
	tokenIn           tokenType = "in"
	tokenLocal        tokenType = "local"
	tokenNil          tokenType = "nil"
	tokenNot          tokenType = "not"
	tokenOr           tokenType = "or"
	tokenProto        tokenType = "proto"
	tokenReturn       tokenType = "return"
	tokenThen         tokenType = "then"
	tokenTrue         tokenType = "true"
	tokenVar          tokenType = "var"
	tokenWhile        tokenType = "while"
	tokenNumber       tokenType = "number"
	tokenIdentifier   tokenType = "identifier"
	tokenString       tokenType = "string"
	tokenComment      tokenType = "comment"
	tokenEOS          tokenType = "<EOS>"
)

type precedence int

// Precedence, low to high. Arithmetic, comparison and equality rules parse
// their right side one level higher than their own, so those operators are
// left associative; `and` and `or` parse their right side at their own level.
const (
	precNone precedence = iota
	precAssignment
	precConcat
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

var (
	keywords = map[string]tokenType{
		string(tokenAnd):      tokenAnd,
		string(tokenBreak):    tokenBreak,
		string(tokenContinue): tokenContinue,
		string(tokenDo):       tokenDo,
		string(tokenElse):     tokenElse,
		string(tokenElseif):   tokenElseif,
		string(tokenEnd):      tokenEnd,
		string(tokenFalse):    tokenFalse,
		string(tokenFor):      tokenFor,
		string(tokenFunction): tokenFunction,
		string(tokenIf):       tokenIf,
		string(tokenIn):       tokenIn,
		string(tokenLocal):    tokenLocal,
		string(tokenNil):      tokenNil,
		string(tokenNot):      tokenNot,
		string(tokenOr):       tokenOr,
		string(tokenProto):    tokenProto,
		string(tokenReturn):   tokenReturn,
		string(tokenThen):     tokenThen,
		string(tokenTrue):     tokenTrue,
		string(tokenVar):      tokenVar,
		string(tokenWhile):    tokenWhile,
	}
	tokenToBytecodeOp = map[tokenType]bytecode.Op{
		tokenAdd:      bytecode.ADD,
		tokenMinus:    bytecode.SUB,
		tokenMultiply: bytecode.MULT,
		tokenDivide:   bytecode.DIV,
		tokenModulo:   bytecode.MOD,
		tokenEq:       bytecode.EQUAL,
		tokenGt:       bytecode.GREATER,
		tokenLt:       bytecode.LESS,
		tokenGe:       bytecode.GREATEREQUAL,
		tokenLe:       bytecode.LESSEQUAL,
	}
)

func (tk *token) String() string {
	switch tk.Kind {
	case tokenNumber:
		return fmt.Sprintf("n%v", tk.NumVal)
	case tokenIdentifier:
		return fmt.Sprintf("<%v>", tk.StringVal)
	case tokenString:
		return fmt.Sprintf("%q", tk.StringVal)
	case tokenComment:
		return fmt.Sprintf("// %v", tk.StringVal)
	default:
		return string(tk.Kind)
	}
}
